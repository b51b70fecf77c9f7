package clients

import (
	"net/http"
	"time"

	"github.com/modelrelay/modelrelay/pkg/uir"
)

// OpenAIChatAdapter speaks the OpenAI Chat Completions dialect.
type OpenAIChatAdapter struct{}

func NewOpenAIChatAdapter() *OpenAIChatAdapter {
	return &OpenAIChatAdapter{}
}

func (a *OpenAIChatAdapter) Format() string {
	return FormatOpenAIChat
}

func (a *OpenAIChatAdapter) Operation() uir.Operation {
	return uir.OperationChat
}

func (a *OpenAIChatAdapter) ToUIR(body []byte, headers http.Header) (*uir.Request, error) {
	raw, err := decodeBody(body)
	if err != nil {
		return nil, err
	}

	req := &uir.Request{
		Model:     asString(raw["model"]),
		Operation: uir.OperationChat,
		Stream:    asBool(raw["stream"]),
		State:     uir.NewState(),
		Parameters: uir.Parameters{
			Temperature: floatPtr(raw["temperature"]),
			TopP:        floatPtr(raw["top_p"]),
			MaxTokens:   intPtr(raw["max_tokens"]),
		},
		Metadata: uir.Metadata{
			ClientFormat:  FormatOpenAIChat,
			ClientRequest: raw,
			Headers:       headers,
		},
	}

	for _, m := range asSlice(raw["messages"]) {
		msg, ok := m.(map[string]any)
		if !ok {
			continue
		}
		req.Messages = append(req.Messages, a.parseMessage(msg))
	}

	for _, t := range asSlice(raw["tools"]) {
		tool, ok := t.(map[string]any)
		if !ok {
			continue
		}
		if parsed, ok := parseOpenAITool(tool); ok {
			req.Tools = append(req.Tools, parsed)
		}
	}

	return req, nil
}

func (a *OpenAIChatAdapter) parseMessage(msg map[string]any) uir.Message {
	out := uir.Message{
		Role:       uir.Role(asString(msg["role"])),
		Content:    contentBlocks(msg["content"]),
		ToolCallID: asString(msg["tool_call_id"]),
	}

	// Assistant reasoning round-trips as a reasoning content block.
	if rc := asString(msg["reasoning_content"]); rc != "" {
		out.Content = append([]uir.ContentBlock{uir.ReasoningBlock(rc)}, out.Content...)
	}

	for _, c := range asSlice(msg["tool_calls"]) {
		call, ok := c.(map[string]any)
		if !ok {
			continue
		}
		fn := asMap(call["function"])
		if fn == nil {
			continue
		}
		out.ToolCalls = append(out.ToolCalls, uir.ToolCall{
			ID:        asString(call["id"]),
			Type:      "function",
			Name:      asString(fn["name"]),
			Arguments: stringifyArguments(fn["arguments"]),
		})
	}

	return out
}

// parseOpenAITool handles the nested Chat Completions tool shape. Tools with
// no function declaration (provider-defined types) are dropped.
func parseOpenAITool(tool map[string]any) (uir.Tool, bool) {
	if t := asString(tool["type"]); t != "" && t != "function" {
		return uir.Tool{}, false
	}
	fn := asMap(tool["function"])
	if fn == nil {
		return uir.Tool{}, false
	}
	name := asString(fn["name"])
	if name == "" {
		return uir.Tool{}, false
	}

	params := asMap(fn["parameters"])
	if params == nil {
		params = map[string]any{"type": "object", "properties": map[string]any{}}
	}

	return uir.Tool{
		Type:        "function",
		Name:        name,
		Description: asString(fn["description"]),
		Parameters:  params,
		Strict:      asBool(fn["strict"]),
	}, true
}

func (a *OpenAIChatAdapter) FromUIR(resp *uir.Response, req *uir.Request) (map[string]any, error) {
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
		id = uir.NewResponseID()
	}

	message := map[string]any{"role": "assistant"}

	// Reasoning always renders ahead of the final answer.
	if reasoning := reasoningText(resp.ReasoningItems()); reasoning != "" {
		message["reasoning_content"] = reasoning
	}

	finishReason := resp.FinishReason
	if item := resp.MessageItem(); item != nil {
		if text := uir.TextContent(item.Content); text != "" {
			message["content"] = text
		} else {
			message["content"] = nil
		}
		if calls := renderedToolCalls(req.ID, item.ToolCalls); calls != nil {
			message["tool_calls"] = calls
			if finishReason == "" {
				finishReason = "tool_calls"
			}
		}
		if item.Status == uir.StatusIncomplete {
			finishReason = "length"
		}
	} else {
		message["content"] = nil
	}
	if finishReason == "" {
		finishReason = "stop"
	}

	out := map[string]any{
		"id":      id,
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   resp.Model,
		"choices": []any{
			map[string]any{
				"index":         0,
				"message":       message,
				"finish_reason": finishReason,
			},
		},
	}

	if resp.Usage != nil {
		out["usage"] = map[string]any{
			"prompt_tokens":     resp.Usage.InputTokens,
			"completion_tokens": resp.Usage.OutputTokens,
			"total_tokens":      resp.Usage.TotalTokens,
		}
	}

	return out, nil
}
