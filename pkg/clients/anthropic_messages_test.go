package clients

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelrelay/modelrelay/pkg/uir"
)

func TestAnthropicToUIR(t *testing.T) {
	body := []byte(`{
		"model": "claude-sonnet-4",
		"max_tokens": 1024,
		"system": "be helpful",
		"messages": [
			{"role": "user", "content": "hello"},
			{"role": "assistant", "content": [
				{"type": "text", "text": "let me check"},
				{"type": "tool_use", "id": "toolu_1", "name": "lookup", "input": {"q": "x"}}
			]},
			{"role": "user", "content": [
				{"type": "tool_result", "tool_use_id": "toolu_1", "content": "found it"},
				{"type": "text", "text": "so?"}
			]}
		],
		"tools": [
			{"name": "lookup", "description": "find things", "input_schema": {"type": "object", "properties": {"q": {"type": "string"}}}},
			{"type": "code_execution_20250522", "name": "code_execution"}
		]
	}`)

	req, err := NewAnthropicMessagesAdapter().ToUIR(body, http.Header{})
	require.NoError(t, err)

	assert.Equal(t, uir.OperationMessages, req.Operation)
	require.NotNil(t, req.Parameters.MaxTokens)
	assert.Equal(t, 1024, *req.Parameters.MaxTokens)

	// system + user + assistant + tool + trailing user text
	require.Len(t, req.Messages, 5)
	assert.Equal(t, uir.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, "be helpful", uir.TextContent(req.Messages[0].Content))

	assistant := req.Messages[2]
	require.Len(t, assistant.ToolCalls, 1)
	assert.Equal(t, "toolu_1", assistant.ToolCalls[0].ID)
	assert.JSONEq(t, `{"q":"x"}`, assistant.ToolCalls[0].Arguments)

	tool := req.Messages[3]
	assert.Equal(t, uir.RoleTool, tool.Role)
	assert.Equal(t, "toolu_1", tool.ToolCallID)
	assert.Equal(t, "found it", uir.TextContent(tool.Content))

	trailing := req.Messages[4]
	assert.Equal(t, uir.RoleUser, trailing.Role)
	assert.Equal(t, "so?", uir.TextContent(trailing.Content))

	// provider-defined tool without an input schema is dropped
	require.Len(t, req.Tools, 1)
	assert.Equal(t, "lookup", req.Tools[0].Name)
}

func TestAnthropicToUIRThinkingRoundTrip(t *testing.T) {
	body := []byte(`{
		"model": "m",
		"messages": [
			{"role": "assistant", "content": [
				{"type": "thinking", "thinking": "step by step", "signature": "sig123"},
				{"type": "text", "text": "the answer"}
			]}
		]
	}`)

	req, err := NewAnthropicMessagesAdapter().ToUIR(body, http.Header{})
	require.NoError(t, err)

	require.Len(t, req.Messages, 1)
	blocks := req.Messages[0].Content
	require.Len(t, blocks, 2)
	assert.Equal(t, uir.ContentReasoning, blocks[0].Type)
	assert.Equal(t, "step by step", blocks[0].Text)
	assert.Equal(t, "sig123", blocks[0].Data["signature"])
}

func TestAnthropicToUIRImageSources(t *testing.T) {
	body := []byte(`{
		"model": "m",
		"messages": [
			{"role": "user", "content": [
				{"type": "image", "source": {"type": "url", "url": "https://example.com/a.png"}},
				{"type": "image", "source": {"type": "base64", "media_type": "image/png", "data": "AAAA"}}
			]}
		]
	}`)

	req, err := NewAnthropicMessagesAdapter().ToUIR(body, http.Header{})
	require.NoError(t, err)

	blocks := req.Messages[0].Content
	require.Len(t, blocks, 2)
	assert.Equal(t, "https://example.com/a.png", blocks[0].URL)
	assert.Equal(t, "data:image/png;base64,AAAA", blocks[1].URL)
}

func TestAnthropicFromUIR(t *testing.T) {
	req := &uir.Request{ID: "req_abc", Model: "m"}
	resp := &uir.Response{
		ID:    "msg_1",
		Model: "m",
		Output: []uir.OutputItem{{
			Type:    uir.OutputMessage,
			Role:    uir.RoleAssistant,
			Content: []uir.ContentBlock{uir.TextBlock("hello")},
		}},
		Usage: &uir.Usage{InputTokens: 8, OutputTokens: 2},
	}

	out, err := NewAnthropicMessagesAdapter().FromUIR(resp, req)
	require.NoError(t, err)

	assert.Equal(t, "message", out["type"])
	assert.Equal(t, "end_turn", out["stop_reason"])

	content := out["content"].([]any)
	require.Len(t, content, 1)
	assert.Equal(t, "hello", content[0].(map[string]any)["text"])

	usage := out["usage"].(map[string]any)
	assert.Equal(t, 8, usage["input_tokens"])
}

func TestAnthropicFromUIRToolUse(t *testing.T) {
	req := &uir.Request{ID: "req_abc", Model: "m"}
	resp := &uir.Response{
		Model: "m",
		Output: []uir.OutputItem{{
			Type: uir.OutputMessage,
			Role: uir.RoleAssistant,
			ToolCalls: []uir.ToolCall{
				{ID: "call_1", Type: "function", Name: "lookup", Arguments: `{"q":"x"}`},
			},
		}},
	}

	out, err := NewAnthropicMessagesAdapter().FromUIR(resp, req)
	require.NoError(t, err)

	assert.Equal(t, "tool_use", out["stop_reason"])

	content := out["content"].([]any)
	require.Len(t, content, 1)
	block := content[0].(map[string]any)
	assert.Equal(t, "tool_use", block["type"])
	assert.Equal(t, "call_1", block["id"])
	assert.Equal(t, map[string]any{"q": "x"}, block["input"])
}

func TestAnthropicFromUIRThinkingSignature(t *testing.T) {
	req := &uir.Request{ID: "req_abc", Model: "m"}
	resp := &uir.Response{
		Model: "m",
		Output: []uir.OutputItem{
			{Type: uir.OutputReasoning, Content: []uir.ContentBlock{
				{Type: uir.ContentReasoning, Text: "with sig", Data: map[string]any{"signature": "real_sig"}},
			}},
			{Type: uir.OutputReasoning, Content: []uir.ContentBlock{
				uir.ReasoningBlock("no sig"),
			}},
			{Type: uir.OutputMessage, Role: uir.RoleAssistant, Content: []uir.ContentBlock{uir.TextBlock("done")}},
		},
	}

	out, err := NewAnthropicMessagesAdapter().FromUIR(resp, req)
	require.NoError(t, err)

	content := out["content"].([]any)
	require.Len(t, content, 3)

	first := content[0].(map[string]any)
	assert.Equal(t, "thinking", first["type"])
	assert.Equal(t, "real_sig", first["signature"])

	second := content[1].(map[string]any)
	assert.Equal(t, signaturePlaceholder, second["signature"])
}

func TestAnthropicFromUIRError(t *testing.T) {
	out, err := NewAnthropicMessagesAdapter().FromUIR(&uir.Response{
		Error: &uir.ResponseError{Message: "upstream failed"},
	}, &uir.Request{})
	require.NoError(t, err)

	assert.Equal(t, "error", out["type"])
	errObj := out["error"].(map[string]any)
	assert.Equal(t, "api_error", errObj["type"])
	assert.Equal(t, "upstream failed", errObj["message"])
}
