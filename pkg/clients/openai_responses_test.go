package clients

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelrelay/modelrelay/pkg/uir"
)

func TestResponsesInputString(t *testing.T) {
	body := []byte(`{"model": "gpt-4o", "input": "hello"}`)

	req, err := NewOpenAIResponsesAdapter().ToUIR(body, http.Header{})
	require.NoError(t, err)

	require.Len(t, req.Messages, 1)
	assert.Equal(t, uir.RoleUser, req.Messages[0].Role)
	assert.Equal(t, "hello", uir.TextContent(req.Messages[0].Content))
}

func TestResponsesInputStringArray(t *testing.T) {
	body := []byte(`{"model": "m", "input": ["first", "second"]}`)

	req, err := NewOpenAIResponsesAdapter().ToUIR(body, http.Header{})
	require.NoError(t, err)

	require.Len(t, req.Messages, 1)
	assert.Equal(t, uir.RoleUser, req.Messages[0].Role)
	assert.Equal(t, "first\nsecond", uir.TextContent(req.Messages[0].Content))
}

func TestResponsesInputUntaggedEntries(t *testing.T) {
	body := []byte(`{
		"model": "m",
		"input": [
			{"role": "user", "content": "run the tool"},
			{"call_id": "call_7", "name": "lookup", "arguments": "{\"q\":\"x\"}"},
			{"call_id": "call_7", "output": "result text"}
		]
	}`)

	req, err := NewOpenAIResponsesAdapter().ToUIR(body, http.Header{})
	require.NoError(t, err)

	require.Len(t, req.Messages, 3)

	assert.Equal(t, uir.RoleUser, req.Messages[0].Role)

	assistant := req.Messages[1]
	assert.Equal(t, uir.RoleAssistant, assistant.Role)
	require.Len(t, assistant.ToolCalls, 1)
	assert.Equal(t, "call_7", assistant.ToolCalls[0].ID)
	assert.Equal(t, "lookup", assistant.ToolCalls[0].Name)

	tool := req.Messages[2]
	assert.Equal(t, uir.RoleTool, tool.Role)
	assert.Equal(t, "call_7", tool.ToolCallID)
	assert.Equal(t, "result text", uir.TextContent(tool.Content))
}

func TestResponsesInputMixedStringsAndMessages(t *testing.T) {
	body := []byte(`{
		"model": "m",
		"input": [
			"buffered one",
			"buffered two",
			{"type": "message", "role": "assistant", "content": [{"type": "output_text", "text": "prior answer"}]},
			"trailing"
		]
	}`)

	req, err := NewOpenAIResponsesAdapter().ToUIR(body, http.Header{})
	require.NoError(t, err)

	require.Len(t, req.Messages, 3)
	assert.Equal(t, "buffered one\nbuffered two", uir.TextContent(req.Messages[0].Content))
	assert.Equal(t, uir.RoleAssistant, req.Messages[1].Role)
	assert.Equal(t, "trailing", uir.TextContent(req.Messages[2].Content))
}

func TestResponsesInstructionsAndTools(t *testing.T) {
	body := []byte(`{
		"model": "m",
		"instructions": "stay terse",
		"max_output_tokens": 100,
		"input": "hi",
		"tools": [
			{"type": "function", "name": "done", "parameters": {"type": "object"}, "strict": true},
			{"type": "web_search"}
		]
	}`)

	req, err := NewOpenAIResponsesAdapter().ToUIR(body, http.Header{})
	require.NoError(t, err)

	require.Len(t, req.Messages, 2)
	assert.Equal(t, uir.RoleSystem, req.Messages[0].Role)
	require.NotNil(t, req.Parameters.MaxTokens)
	assert.Equal(t, 100, *req.Parameters.MaxTokens)

	require.Len(t, req.Tools, 1)
	assert.Equal(t, "done", req.Tools[0].Name)
	assert.True(t, req.Tools[0].Strict)
}

func TestResponsesFromUIROrdersReasoningFirst(t *testing.T) {
	req := &uir.Request{ID: "req_abc", Model: "m"}
	resp := &uir.Response{
		Model: "m",
		Output: []uir.OutputItem{
			{Type: uir.OutputReasoning, Content: []uir.ContentBlock{uir.ReasoningBlock("thought")}},
			{
				Type:    uir.OutputMessage,
				Role:    uir.RoleAssistant,
				Content: []uir.ContentBlock{uir.TextBlock("answer")},
				ToolCalls: []uir.ToolCall{
					{ID: "call_1", Type: "function", Name: "lookup", Arguments: "{}"},
				},
			},
		},
		Usage: &uir.Usage{InputTokens: 3, OutputTokens: 4, TotalTokens: 7},
	}

	out, err := NewOpenAIResponsesAdapter().FromUIR(resp, req)
	require.NoError(t, err)

	assert.Equal(t, "response", out["object"])
	assert.Equal(t, "completed", out["status"])

	output := out["output"].([]any)
	require.Len(t, output, 3)

	reasoning := output[0].(map[string]any)
	assert.Equal(t, "reasoning", reasoning["type"])
	summary := reasoning["summary"].([]any)
	require.Len(t, summary, 1)
	assert.Equal(t, "thought", summary[0].(map[string]any)["text"])

	message := output[1].(map[string]any)
	assert.Equal(t, "message", message["type"])

	call := output[2].(map[string]any)
	assert.Equal(t, "function_call", call["type"])
	assert.Equal(t, "call_1", call["call_id"])
	assert.Equal(t, "lookup", call["name"])
}

func TestResponsesFromUIRIncomplete(t *testing.T) {
	req := &uir.Request{ID: "req_abc", Model: "m"}
	resp := &uir.Response{
		Model: "m",
		Output: []uir.OutputItem{{
			Type:    uir.OutputMessage,
			Role:    uir.RoleAssistant,
			Status:  uir.StatusIncomplete,
			Content: []uir.ContentBlock{uir.TextBlock("truncat")},
		}},
	}

	out, err := NewOpenAIResponsesAdapter().FromUIR(resp, req)
	require.NoError(t, err)
	assert.Equal(t, "incomplete", out["status"])
}
