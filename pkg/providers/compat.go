package providers

import (
	"encoding/json"
	"fmt"

	"github.com/modelrelay/modelrelay/pkg/kimi"
	"github.com/modelrelay/modelrelay/pkg/uir"
)

// chatCompletionsBody renders a UIR request as an OpenAI Chat Completions
// payload. Shared by every OpenAI-compatible adapter.
func chatCompletionsBody(req *uir.Request) map[string]any {
	body := map[string]any{
		"model":    req.Model,
		"messages": chatMessages(req.Messages),
	}

	if req.Parameters.Temperature != nil {
		body["temperature"] = *req.Parameters.Temperature
	}
	if req.Parameters.TopP != nil {
		body["top_p"] = *req.Parameters.TopP
	}
	if req.Parameters.MaxTokens != nil {
		body["max_tokens"] = *req.Parameters.MaxTokens
	}

	if len(req.Tools) > 0 {
		tools := make([]any, 0, len(req.Tools))
		for _, t := range req.Tools {
			fn := map[string]any{
				"name":       t.Name,
				"parameters": t.Parameters,
			}
			if t.Description != "" {
				fn["description"] = t.Description
			}
			if t.Strict {
				fn["strict"] = true
			}
			tools = append(tools, map[string]any{"type": "function", "function": fn})
		}
		body["tools"] = tools
	}

	return body
}

func chatMessages(messages []uir.Message) []any {
	out := make([]any, 0, len(messages))
	for _, m := range messages {
		entry := map[string]any{"role": string(m.Role)}

		switch m.Role {
		case uir.RoleTool:
			entry["tool_call_id"] = m.ToolCallID
			entry["content"] = uir.TextContent(m.Content)

		case uir.RoleAssistant:
			text := uir.TextContent(m.Content)
			if text != "" {
				entry["content"] = text
			} else {
				entry["content"] = nil
			}
			if reasoning := reasoningContent(m.Content); reasoning != "" {
				entry["reasoning_content"] = reasoning
			}
			if len(m.ToolCalls) > 0 {
				calls := make([]any, 0, len(m.ToolCalls))
				for _, tc := range m.ToolCalls {
					calls = append(calls, map[string]any{
						"id":   tc.ID,
						"type": "function",
						"function": map[string]any{
							"name":      tc.Name,
							"arguments": tc.Arguments,
						},
					})
				}
				entry["tool_calls"] = calls
			}

		default:
			entry["content"] = chatContent(m.Content)
		}

		out = append(out, entry)
	}
	return out
}

// chatContent renders user/system content: a plain string for pure text,
// a parts array when images are present.
func chatContent(blocks []uir.ContentBlock) any {
	hasImage := false
	for _, b := range blocks {
		if b.Type == uir.ContentImageURL {
			hasImage = true
			break
		}
	}
	if !hasImage {
		return uir.TextContent(blocks)
	}

	parts := make([]any, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case uir.ContentText:
			parts = append(parts, map[string]any{"type": "text", "text": b.Text})
		case uir.ContentImageURL:
			parts = append(parts, map[string]any{
				"type":      "image_url",
				"image_url": map[string]any{"url": b.URL},
			})
		}
	}
	return parts
}

func reasoningContent(blocks []uir.ContentBlock) string {
	var out string
	for _, b := range blocks {
		if b.Type == uir.ContentReasoning {
			out += b.Text
		}
	}
	return out
}

// NormalizeChatResponse converts a raw OpenAI Chat Completions body into UIR,
// tolerating the shapes real upstreams produce: null content, numeric tool
// names, string-or-array reasoning_content, missing ids and finish reasons.
// The Kimi repair pass runs first and is idempotent.
func NormalizeChatResponse(pr *uir.ProviderResponse, req *uir.Request) (*uir.Response, error) {
	if pr.Status >= 400 {
		return errorResponse(pr, req), nil
	}

	meta := kimi.Fix(pr.Body, req.Tools)
	if req.State != nil {
		if stashed, ok := req.State.Extra[kimi.RepairStateKey].(kimi.Metadata); ok {
			meta = meta.Merge(stashed)
			delete(req.State.Extra, kimi.RepairStateKey)
		}
	}

	resp := &uir.Response{
		ID:        asString(pr.Body["id"]),
		Model:     asString(pr.Body["model"]),
		Operation: req.Operation,
	}
	if resp.Model == "" {
		resp.Model = req.Model
	}

	choices := asSlice(pr.Body["choices"])
	if len(choices) == 0 {
		return &uir.Response{
			ID:        resp.ID,
			Model:     resp.Model,
			Operation: req.Operation,
			Error: &uir.ResponseError{
				Message: "provider response has no choices",
				Code:    "invalid_response",
			},
		}, nil
	}

	choice, ok := choices[0].(map[string]any)
	if !ok {
		return &uir.Response{
			ID:        resp.ID,
			Model:     resp.Model,
			Operation: req.Operation,
			Error: &uir.ResponseError{
				Message: "provider response choice is not an object",
				Code:    "invalid_response",
			},
		}, nil
	}

	message := asMap(choice["message"])
	finishReason := asString(choice["finish_reason"])

	// Reasoning always precedes the message item in UIR output.
	if reasoning := normalizeReasoning(message["reasoning_content"]); len(reasoning) > 0 {
		resp.Output = append(resp.Output, uir.OutputItem{
			Type:    uir.OutputReasoning,
			Content: reasoning,
		})
	}

	item := uir.OutputItem{
		Type:    uir.OutputMessage,
		Role:    uir.RoleAssistant,
		Content: normalizeContent(message["content"]),
		Status:  uir.StatusCompleted,
	}
	if finishReason == "length" {
		item.Status = uir.StatusIncomplete
	}

	for i, c := range asSlice(message["tool_calls"]) {
		call, ok := c.(map[string]any)
		if !ok {
			continue
		}
		fn := asMap(call["function"])
		id := asString(call["id"])
		if id == "" {
			id = uir.NewToolCallID(req.ID, i)
		}
		item.ToolCalls = append(item.ToolCalls, uir.ToolCall{
			ID:        id,
			Type:      "function",
			Name:      toolName(fn["name"]),
			Arguments: stringifyArguments(fn["arguments"]),
		})
	}

	resp.Output = append(resp.Output, item)

	switch {
	case finishReason != "":
		resp.FinishReason = finishReason
	case len(item.ToolCalls) > 0:
		resp.FinishReason = "tool_calls"
	default:
		resp.FinishReason = "stop"
	}

	if usage := asMap(pr.Body["usage"]); usage != nil {
		resp.Usage = &uir.Usage{
			InputTokens:  asInt(usage["prompt_tokens"]),
			OutputTokens: asInt(usage["completion_tokens"]),
			TotalTokens:  asInt(usage["total_tokens"]),
		}
	}

	if meta.Changed() {
		resp.Metadata = map[string]any{
			"extractedToolCalls":     meta.ExtractedToolCalls,
			"extractedFromContent":   meta.ExtractedFromContent,
			"extractedFromReasoning": meta.ExtractedFromReasoning,
			"repairedToolNames":      meta.RepairedToolNames,
		}
	}

	return resp, nil
}

// normalizeContent maps an OpenAI message content field to UIR blocks. Null
// becomes an empty slice, never nil-as-missing.
func normalizeContent(raw any) []uir.ContentBlock {
	switch v := raw.(type) {
	case nil:
		return []uir.ContentBlock{}
	case string:
		if v == "" {
			return []uir.ContentBlock{}
		}
		return []uir.ContentBlock{uir.TextBlock(v)}
	case []any:
		blocks := []uir.ContentBlock{}
		for _, p := range v {
			part, ok := p.(map[string]any)
			if !ok {
				continue
			}
			if text := asString(part["text"]); text != "" {
				blocks = append(blocks, uir.TextBlock(text))
			}
		}
		return blocks
	default:
		return []uir.ContentBlock{}
	}
}

// normalizeReasoning accepts reasoning_content as a plain string or an array
// of {thinking|text, signature?} objects.
func normalizeReasoning(raw any) []uir.ContentBlock {
	switch v := raw.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []uir.ContentBlock{uir.ReasoningBlock(v)}
	case []any:
		var blocks []uir.ContentBlock
		for _, p := range v {
			part, ok := p.(map[string]any)
			if !ok {
				continue
			}
			text := asString(part["thinking"])
			if text == "" {
				text = asString(part["text"])
			}
			if text == "" {
				continue
			}
			block := uir.ReasoningBlock(text)
			if sig := asString(part["signature"]); sig != "" {
				block.Data = map[string]any{"signature": sig}
			}
			blocks = append(blocks, block)
		}
		return blocks
	default:
		return nil
	}
}

func errorResponse(pr *uir.ProviderResponse, req *uir.Request) *uir.Response {
	message := "upstream request failed"
	code := "upstream_error"
	if errObj := asMap(pr.Body["error"]); errObj != nil {
		if m := asString(errObj["message"]); m != "" {
			message = m
		}
		if c := asString(errObj["code"]); c != "" {
			code = c
		} else if t := asString(errObj["type"]); t != "" {
			code = t
		}
	} else if raw := asString(pr.Body["raw"]); raw != "" {
		message = raw
	}

	return &uir.Response{
		ID:        asString(pr.Body["id"]),
		Model:     req.Model,
		Operation: req.Operation,
		Error:     &uir.ResponseError{Message: message, Code: code},
	}
}

func toolName(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	case json.Number:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func stringifyArguments(raw any) string {
	switch v := raw.(type) {
	case string:
		if v == "" {
			return "{}"
		}
		return v
	case nil:
		return "{}"
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "{}"
		}
		return string(data)
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func asInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	default:
		return 0
	}
}
