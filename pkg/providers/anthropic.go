package providers

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/modelrelay/modelrelay/pkg/config"
	"github.com/modelrelay/modelrelay/pkg/httpclient"
	"github.com/modelrelay/modelrelay/pkg/uir"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
	anthropicMaxTokens      = 4096
)

// AnthropicAdapter talks to the Anthropic Messages API.
type AnthropicAdapter struct {
	cfg    config.AnthropicProviderConfig
	client *httpclient.Client
}

func NewAnthropicAdapter(cfg config.AnthropicProviderConfig) *AnthropicAdapter {
	return &AnthropicAdapter{
		cfg:    cfg,
		client: httpclient.New(httpclient.WithHeaderParser(httpclient.ParseAnthropicRateLimitHeaders)),
	}
}

func (a *AnthropicAdapter) Key() string    { return KeyAnthropic }
func (a *AnthropicAdapter) Format() string { return FormatAnthropic }

func (a *AnthropicAdapter) BuildRequestBody(req *uir.Request) (map[string]any, error) {
	body := map[string]any{
		"model":      req.Model,
		"max_tokens": anthropicMaxTokens,
	}
	if req.Parameters.MaxTokens != nil {
		body["max_tokens"] = *req.Parameters.MaxTokens
	}
	if req.Parameters.Temperature != nil {
		body["temperature"] = *req.Parameters.Temperature
	}
	if req.Parameters.TopP != nil {
		body["top_p"] = *req.Parameters.TopP
	}
	if req.Parameters.TopK != nil {
		body["top_k"] = *req.Parameters.TopK
	}

	var system string
	var messages []any
	for _, m := range req.Messages {
		switch m.Role {
		case uir.RoleSystem:
			system += uir.TextContent(m.Content)

		case uir.RoleTool:
			messages = append(messages, map[string]any{
				"role": "user",
				"content": []any{map[string]any{
					"type":        "tool_result",
					"tool_use_id": m.ToolCallID,
					"content":     uir.TextContent(m.Content),
				}},
			})

		default:
			messages = append(messages, map[string]any{
				"role":    string(m.Role),
				"content": anthropicContent(m),
			})
		}
	}
	if system != "" {
		body["system"] = system
	}
	body["messages"] = messages

	if len(req.Tools) > 0 {
		tools := make([]any, 0, len(req.Tools))
		for _, t := range req.Tools {
			tool := map[string]any{
				"name":         t.Name,
				"input_schema": t.Parameters,
			}
			if t.Description != "" {
				tool["description"] = t.Description
			}
			tools = append(tools, tool)
		}
		body["tools"] = tools
	}

	return body, nil
}

func anthropicContent(m uir.Message) []any {
	var blocks []any
	for _, b := range m.Content {
		switch b.Type {
		case uir.ContentReasoning:
			block := map[string]any{"type": "thinking", "thinking": b.Text}
			if b.Data != nil {
				if sig := asString(b.Data["signature"]); sig != "" {
					block["signature"] = sig
				}
			}
			blocks = append(blocks, block)
		case uir.ContentText:
			if b.Text != "" {
				blocks = append(blocks, map[string]any{"type": "text", "text": b.Text})
			}
		case uir.ContentImageURL:
			blocks = append(blocks, anthropicImage(b.URL))
		}
	}

	for _, tc := range m.ToolCalls {
		var input map[string]any
		if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
			input = map[string]any{}
		}
		blocks = append(blocks, map[string]any{
			"type":  "tool_use",
			"id":    tc.ID,
			"name":  tc.Name,
			"input": input,
		})
	}

	if blocks == nil {
		blocks = []any{}
	}
	return blocks
}

func anthropicImage(url string) map[string]any {
	if rest, ok := strings.CutPrefix(url, "data:"); ok {
		if mediaType, data, found := strings.Cut(rest, ";base64,"); found {
			return map[string]any{
				"type": "image",
				"source": map[string]any{
					"type":       "base64",
					"media_type": mediaType,
					"data":       data,
				},
			}
		}
	}
	return map[string]any{
		"type":   "image",
		"source": map[string]any{"type": "url", "url": url},
	}
}

func (a *AnthropicAdapter) Invoke(ctx context.Context, req *uir.Request, body map[string]any, ov Overrides) (*uir.ProviderResponse, error) {
	apiKey := a.cfg.APIKey
	if ov.APIKey != "" {
		apiKey = ov.APIKey
	}
	baseURL := a.cfg.BaseURL
	if ov.BaseURL != "" {
		baseURL = ov.BaseURL
	}
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}

	url := strings.TrimSuffix(baseURL, "/") + "/v1/messages"
	headers := map[string]string{
		"x-api-key":         apiKey,
		"anthropic-version": anthropicVersion,
	}
	return postJSON(ctx, a.client, url, headers, body)
}

func (a *AnthropicAdapter) ToUIRResponse(pr *uir.ProviderResponse, req *uir.Request) (*uir.Response, error) {
	if pr.Status >= 400 {
		return errorResponse(pr, req), nil
	}

	resp := &uir.Response{
		ID:        asString(pr.Body["id"]),
		Model:     asString(pr.Body["model"]),
		Operation: req.Operation,
	}
	if resp.Model == "" {
		resp.Model = req.Model
	}

	item := uir.OutputItem{
		Type:    uir.OutputMessage,
		Role:    uir.RoleAssistant,
		Content: []uir.ContentBlock{},
		Status:  uir.StatusCompleted,
	}
	var reasoning []uir.ContentBlock

	for _, b := range asSlice(pr.Body["content"]) {
		block, ok := b.(map[string]any)
		if !ok {
			continue
		}
		switch asString(block["type"]) {
		case "thinking":
			rb := uir.ReasoningBlock(asString(block["thinking"]))
			if sig := asString(block["signature"]); sig != "" {
				rb.Data = map[string]any{"signature": sig}
			}
			reasoning = append(reasoning, rb)
		case "text":
			if text := asString(block["text"]); text != "" {
				item.Content = append(item.Content, uir.TextBlock(text))
			}
		case "tool_use":
			args, _ := json.Marshal(block["input"])
			item.ToolCalls = append(item.ToolCalls, uir.ToolCall{
				ID:        asString(block["id"]),
				Type:      "function",
				Name:      asString(block["name"]),
				Arguments: string(args),
			})
		}
	}

	switch asString(pr.Body["stop_reason"]) {
	case "tool_use":
		resp.FinishReason = "tool_calls"
	case "max_tokens":
		resp.FinishReason = "length"
		item.Status = uir.StatusIncomplete
	default:
		resp.FinishReason = "stop"
	}

	if len(reasoning) > 0 {
		resp.Output = append(resp.Output, uir.OutputItem{Type: uir.OutputReasoning, Content: reasoning})
	}
	resp.Output = append(resp.Output, item)

	if usage := asMap(pr.Body["usage"]); usage != nil {
		in := asInt(usage["input_tokens"])
		out := asInt(usage["output_tokens"])
		resp.Usage = &uir.Usage{InputTokens: in, OutputTokens: out, TotalTokens: in + out}
	}

	return resp, nil
}
