package clients

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/modelrelay/modelrelay/pkg/uir"
)

// signaturePlaceholder is emitted when a reasoning block has no provider
// signature to echo. Anthropic clients require the field to be present.
var signaturePlaceholder = base64.StdEncoding.EncodeToString([]byte("signature_placeholder"))

// AnthropicMessagesAdapter speaks the Anthropic Messages dialect.
type AnthropicMessagesAdapter struct{}

func NewAnthropicMessagesAdapter() *AnthropicMessagesAdapter {
	return &AnthropicMessagesAdapter{}
}

func (a *AnthropicMessagesAdapter) Format() string {
	return FormatAnthropicMessages
}

func (a *AnthropicMessagesAdapter) Operation() uir.Operation {
	return uir.OperationMessages
}

func (a *AnthropicMessagesAdapter) ToUIR(body []byte, headers http.Header) (*uir.Request, error) {
	raw, err := decodeBody(body)
	if err != nil {
		return nil, err
	}

	req := &uir.Request{
		Model:     asString(raw["model"]),
		Operation: uir.OperationMessages,
		Stream:    asBool(raw["stream"]),
		State:     uir.NewState(),
		Parameters: uir.Parameters{
			Temperature: floatPtr(raw["temperature"]),
			TopP:        floatPtr(raw["top_p"]),
			TopK:        intPtr(raw["top_k"]),
			MaxTokens:   intPtr(raw["max_tokens"]),
		},
		Metadata: uir.Metadata{
			ClientFormat:  FormatAnthropicMessages,
			ClientRequest: raw,
			Headers:       headers,
		},
	}

	// Anthropic carries the system prompt as a top-level parameter.
	if system := systemText(raw["system"]); system != "" {
		req.Messages = append(req.Messages, uir.Message{
			Role:    uir.RoleSystem,
			Content: []uir.ContentBlock{uir.TextBlock(system)},
		})
	}

	for _, m := range asSlice(raw["messages"]) {
		msg, ok := m.(map[string]any)
		if !ok {
			continue
		}
		req.Messages = append(req.Messages, a.parseMessage(msg)...)
	}

	for _, t := range asSlice(raw["tools"]) {
		tool, ok := t.(map[string]any)
		if !ok {
			continue
		}
		if parsed, ok := parseAnthropicTool(tool); ok {
			req.Tools = append(req.Tools, parsed)
		}
	}

	return req, nil
}

func systemText(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case []any:
		var out string
		for _, part := range v {
			if p, ok := part.(map[string]any); ok {
				out += asString(p["text"])
			}
		}
		return out
	default:
		return ""
	}
}

// parseMessage expands one Anthropic message into UIR messages: tool_result
// blocks become standalone tool messages, everything else folds into a
// message of the original role.
func (a *AnthropicMessagesAdapter) parseMessage(msg map[string]any) []uir.Message {
	role := uir.Role(asString(msg["role"]))

	content, ok := msg["content"].(string)
	if ok {
		return []uir.Message{{Role: role, Content: []uir.ContentBlock{uir.TextBlock(content)}}}
	}

	var out []uir.Message
	current := uir.Message{Role: role}
	flush := func() {
		if len(current.Content) > 0 || len(current.ToolCalls) > 0 {
			out = append(out, current)
			current = uir.Message{Role: role}
		}
	}

	for _, b := range asSlice(msg["content"]) {
		block, ok := b.(map[string]any)
		if !ok {
			continue
		}

		blockType := asString(block["type"])
		if blockType == "" {
			if _, hasText := block["text"]; hasText {
				blockType = "text"
			}
		}

		switch blockType {
		case "text":
			current.Content = append(current.Content, uir.TextBlock(asString(block["text"])))

		case "thinking":
			rb := uir.ReasoningBlock(asString(block["thinking"]))
			if sig := asString(block["signature"]); sig != "" {
				rb.Data = map[string]any{"signature": sig}
			}
			current.Content = append(current.Content, rb)

		case "image":
			if url := imageSourceURL(asMap(block["source"])); url != "" {
				current.Content = append(current.Content, uir.ContentBlock{Type: uir.ContentImageURL, URL: url})
			}

		case "document":
			current.Content = append(current.Content, uir.TextBlock(documentText(block)))

		case "tool_use":
			args, _ := json.Marshal(block["input"])
			current.ToolCalls = append(current.ToolCalls, uir.ToolCall{
				ID:        asString(block["id"]),
				Type:      "function",
				Name:      asString(block["name"]),
				Arguments: string(args),
			})

		case "tool_result":
			flush()
			out = append(out, uir.Message{
				Role:       uir.RoleTool,
				ToolCallID: asString(block["tool_use_id"]),
				Content:    contentBlocks(block["content"]),
			})
		}
	}
	flush()

	if len(out) == 0 {
		out = append(out, uir.Message{Role: role})
	}
	return out
}

// imageSourceURL maps Anthropic image sources to a single URL: url sources
// pass through, base64 sources become a data URL.
func imageSourceURL(source map[string]any) string {
	if source == nil {
		return ""
	}
	switch asString(source["type"]) {
	case "url":
		return asString(source["url"])
	case "base64":
		mediaType := asString(source["media_type"])
		if mediaType == "" {
			mediaType = "application/octet-stream"
		}
		return fmt.Sprintf("data:%s;base64,%s", mediaType, asString(source["data"]))
	default:
		return asString(source["url"])
	}
}

func documentText(block map[string]any) string {
	source := asMap(block["source"])
	title := asString(block["title"])
	url := asString(source["url"])
	switch {
	case title != "" && url != "":
		return fmt.Sprintf("[document: %s] %s", title, url)
	case url != "":
		return "[document] " + url
	case title != "":
		return "[document: " + title + "]"
	default:
		return "[document]"
	}
}

// parseAnthropicTool keeps function declarations and drops provider-defined
// tools (code execution, web search) that have no input schema to forward.
func parseAnthropicTool(tool map[string]any) (uir.Tool, bool) {
	name := asString(tool["name"])
	schema := asMap(tool["input_schema"])
	if name == "" || schema == nil {
		return uir.Tool{}, false
	}
	return uir.Tool{
		Type:        "function",
		Name:        name,
		Description: asString(tool["description"]),
		Parameters:  schema,
	}, true
}

func (a *AnthropicMessagesAdapter) FromUIR(resp *uir.Response, req *uir.Request) (map[string]any, error) {
	if resp.Error != nil {
		return map[string]any{
			"type": "error",
			"error": map[string]any{
				"type":    "api_error",
				"message": resp.Error.Message,
			},
		}, nil
	}

	id := resp.ID
	if id == "" {
		id = uir.NewResponseID()
	}

	var content []any

	// Thinking blocks always precede text and tool use.
	for _, item := range resp.ReasoningItems() {
		for _, b := range item.Content {
			if b.Text == "" {
				continue
			}
			sig := signaturePlaceholder
			if b.Data != nil {
				if s := asString(b.Data["signature"]); s != "" {
					sig = s
				}
			}
			content = append(content, map[string]any{
				"type":      "thinking",
				"thinking":  b.Text,
				"signature": sig,
			})
		}
	}

	stopReason := "end_turn"
	item := resp.MessageItem()
	if item != nil {
		for _, b := range item.Content {
			switch b.Type {
			case uir.ContentText:
				if b.Text != "" {
					content = append(content, map[string]any{"type": "text", "text": b.Text})
				}
			case uir.ContentReasoning:
				if b.Text != "" {
					sig := signaturePlaceholder
					if b.Data != nil {
						if s := asString(b.Data["signature"]); s != "" {
							sig = s
						}
					}
					content = append(content, map[string]any{
						"type":      "thinking",
						"thinking":  b.Text,
						"signature": sig,
					})
				}
			}
		}

		for i, tc := range item.ToolCalls {
			tcID := tc.ID
			if tcID == "" {
				tcID = uir.NewToolCallID(req.ID, i)
			}
			var input map[string]any
			if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
				input = map[string]any{}
			}
			content = append(content, map[string]any{
				"type":  "tool_use",
				"id":    tcID,
				"name":  tc.Name,
				"input": input,
			})
		}

		switch {
		case len(item.ToolCalls) > 0:
			stopReason = "tool_use"
		case item.Status == uir.StatusIncomplete:
			stopReason = "max_tokens"
		}
	}
	if resp.FinishReason == "length" {
		stopReason = "max_tokens"
	}

	out := map[string]any{
		"id":          id,
		"type":        "message",
		"role":        "assistant",
		"model":       resp.Model,
		"content":     content,
		"stop_reason": stopReason,
	}

	if resp.Usage != nil {
		out["usage"] = map[string]any{
			"input_tokens":  resp.Usage.InputTokens,
			"output_tokens": resp.Usage.OutputTokens,
		}
	}

	return out, nil
}
