package clients

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/modelrelay/modelrelay/pkg/uir"
)

// OpenAIResponsesAdapter speaks the OpenAI Responses dialect.
type OpenAIResponsesAdapter struct{}

func NewOpenAIResponsesAdapter() *OpenAIResponsesAdapter {
	return &OpenAIResponsesAdapter{}
}

func (a *OpenAIResponsesAdapter) Format() string {
	return FormatOpenAIResponses
}

func (a *OpenAIResponsesAdapter) Operation() uir.Operation {
	return uir.OperationResponses
}

func (a *OpenAIResponsesAdapter) ToUIR(body []byte, headers http.Header) (*uir.Request, error) {
	raw, err := decodeBody(body)
	if err != nil {
		return nil, err
	}

	req := &uir.Request{
		Model:     asString(raw["model"]),
		Operation: uir.OperationResponses,
		Stream:    asBool(raw["stream"]),
		State:     uir.NewState(),
		Parameters: uir.Parameters{
			Temperature: floatPtr(raw["temperature"]),
			TopP:        floatPtr(raw["top_p"]),
			MaxTokens:   intPtr(raw["max_output_tokens"]),
		},
		Metadata: uir.Metadata{
			ClientFormat:  FormatOpenAIResponses,
			ClientRequest: raw,
			Headers:       headers,
		},
	}

	if instructions := asString(raw["instructions"]); instructions != "" {
		req.Messages = append(req.Messages, uir.Message{
			Role:    uir.RoleSystem,
			Content: []uir.ContentBlock{uir.TextBlock(instructions)},
		})
	}

	req.Messages = append(req.Messages, parseResponsesInput(raw["input"])...)

	for _, t := range asSlice(raw["tools"]) {
		tool, ok := t.(map[string]any)
		if !ok {
			continue
		}
		if parsed, ok := parseResponsesTool(tool); ok {
			req.Tools = append(req.Tools, parsed)
		}
	}

	return req, nil
}

// parseResponsesInput tolerates every input shape the Responses API accepts:
// a bare string, an array of strings, message objects with or without a type
// tag, and untagged function_call / function_call_output entries. Consecutive
// plain strings buffer into a single synthetic user message.
func parseResponsesInput(input any) []uir.Message {
	if text, ok := input.(string); ok {
		return []uir.Message{{
			Role:    uir.RoleUser,
			Content: []uir.ContentBlock{uir.TextBlock(text)},
		}}
	}

	entries, ok := input.([]any)
	if !ok {
		return nil
	}

	var out []uir.Message
	var buffered []string
	flush := func() {
		if len(buffered) == 0 {
			return
		}
		out = append(out, uir.Message{
			Role:    uir.RoleUser,
			Content: []uir.ContentBlock{uir.TextBlock(strings.Join(buffered, "\n"))},
		})
		buffered = nil
	}

	for _, e := range entries {
		if text, ok := e.(string); ok {
			buffered = append(buffered, text)
			continue
		}
		entry, ok := e.(map[string]any)
		if !ok {
			continue
		}
		flush()

		switch responsesEntryKind(entry) {
		case "function_call":
			out = append(out, uir.Message{
				Role: uir.RoleAssistant,
				ToolCalls: []uir.ToolCall{{
					ID:        asString(entry["call_id"]),
					Type:      "function",
					Name:      asString(entry["name"]),
					Arguments: stringifyArguments(entry["arguments"]),
				}},
			})

		case "function_call_output":
			out = append(out, uir.Message{
				Role:       uir.RoleTool,
				ToolCallID: asString(entry["call_id"]),
				Content:    contentBlocks(entry["output"]),
			})

		case "message":
			role := uir.Role(asString(entry["role"]))
			if role == "" {
				role = uir.RoleUser
			}
			out = append(out, uir.Message{
				Role:    role,
				Content: contentBlocks(entry["content"]),
			})
		}
	}
	flush()

	return out
}

// responsesEntryKind classifies an input entry. Untagged entries are keyed off
// their fields: call_id+output marks a tool output, call_id+name a tool call.
func responsesEntryKind(entry map[string]any) string {
	switch asString(entry["type"]) {
	case "function_call":
		return "function_call"
	case "function_call_output":
		return "function_call_output"
	case "message":
		return "message"
	case "":
		if _, hasCallID := entry["call_id"]; hasCallID {
			if _, hasOutput := entry["output"]; hasOutput {
				return "function_call_output"
			}
			return "function_call"
		}
		if _, hasRole := entry["role"]; hasRole {
			return "message"
		}
		if _, hasContent := entry["content"]; hasContent {
			return "message"
		}
		return ""
	default:
		return ""
	}
}

// parseResponsesTool reads the flat Responses tool shape (name and parameters
// at the top level, no nested function object).
func parseResponsesTool(tool map[string]any) (uir.Tool, bool) {
	if t := asString(tool["type"]); t != "" && t != "function" {
		return uir.Tool{}, false
	}
	name := asString(tool["name"])
	if name == "" {
		return uir.Tool{}, false
	}
	params := asMap(tool["parameters"])
	if params == nil {
		params = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return uir.Tool{
		Type:        "function",
		Name:        name,
		Description: asString(tool["description"]),
		Parameters:  params,
		Strict:      asBool(tool["strict"]),
	}, true
}

func (a *OpenAIResponsesAdapter) FromUIR(resp *uir.Response, req *uir.Request) (map[string]any, error) {
	if resp.Error != nil {
		return map[string]any{
			"error": map[string]any{
				"message": resp.Error.Message,
				"type":    "invalid_request_error",
				"code":    resp.Error.Code,
			},
		}, nil
	}

	id := resp.ID
	if id == "" {
		id = "resp_" + req.ID
	}

	status := "completed"
	var output []any

	// Reasoning items render first, as summary text.
	for i, item := range resp.ReasoningItems() {
		var summary []any
		blocks := item.Summary
		if len(blocks) == 0 {
			blocks = item.Content
		}
		for _, b := range blocks {
			if b.Text == "" {
				continue
			}
			summary = append(summary, map[string]any{"type": "summary_text", "text": b.Text})
		}
		output = append(output, map[string]any{
			"type":    "reasoning",
			"id":      fmt.Sprintf("rs_%s_%d", req.ID, i),
			"summary": summary,
		})
	}

	if item := resp.MessageItem(); item != nil {
		if item.Status == uir.StatusIncomplete {
			status = "incomplete"
		}

		if text := uir.TextContent(item.Content); text != "" {
			output = append(output, map[string]any{
				"type":   "message",
				"id":     "msg_" + req.ID,
				"role":   "assistant",
				"status": string(statusOrCompleted(item.Status)),
				"content": []any{map[string]any{
					"type":        "output_text",
					"text":        text,
					"annotations": []any{},
				}},
			})
		}

		for i, tc := range item.ToolCalls {
			callID := tc.ID
			if callID == "" {
				callID = uir.NewToolCallID(req.ID, i)
			}
			output = append(output, map[string]any{
				"type":      "function_call",
				"id":        fmt.Sprintf("fc_%s_%d", req.ID, i),
				"call_id":   callID,
				"name":      tc.Name,
				"arguments": tc.Arguments,
				"status":    "completed",
			})
		}
	}

	out := map[string]any{
		"id":         id,
		"object":     "response",
		"created_at": time.Now().Unix(),
		"status":     status,
		"model":      resp.Model,
		"output":     output,
	}

	if resp.Usage != nil {
		out["usage"] = map[string]any{
			"input_tokens":  resp.Usage.InputTokens,
			"output_tokens": resp.Usage.OutputTokens,
			"total_tokens":  resp.Usage.TotalTokens,
		}
	}

	return out, nil
}

func statusOrCompleted(s uir.MessageStatus) uir.MessageStatus {
	if s == "" {
		return uir.StatusCompleted
	}
	return s
}
