package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelrelay/modelrelay/pkg/config"
	"github.com/modelrelay/modelrelay/pkg/uir"
)

func TestOpenAIInvoke(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"chatcmpl-1","choices":[{"finish_reason":"stop","message":{"role":"assistant","content":"hi"}}]}`))
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter(config.OpenAIProviderConfig{APIKey: "base-key", BaseURL: server.URL})
	req := &uir.Request{
		ID:       "req_abc",
		Model:    "gpt-4o",
		Messages: []uir.Message{{Role: uir.RoleUser, Content: []uir.ContentBlock{uir.TextBlock("hello")}}},
	}
	body, err := adapter.BuildRequestBody(req)
	require.NoError(t, err)

	pr, err := adapter.Invoke(context.Background(), req, body, Overrides{APIKey: "model-key"})
	require.NoError(t, err)

	assert.Equal(t, "Bearer model-key", gotAuth)
	assert.Equal(t, "gpt-4o", gotBody["model"])
	assert.Equal(t, 200, pr.Status)
	assert.Equal(t, body, pr.RequestBody)

	resp, err := adapter.ToUIRResponse(pr, req)
	require.NoError(t, err)
	assert.Equal(t, "hi", uir.TextContent(resp.MessageItem().Content))
}

func TestOpenAIInvokeTransportFailure(t *testing.T) {
	adapter := NewOpenAIAdapter(config.OpenAIProviderConfig{APIKey: "k", BaseURL: "http://127.0.0.1:1"})
	req := &uir.Request{ID: "req_abc", Model: "m"}
	body, err := adapter.BuildRequestBody(req)
	require.NoError(t, err)

	pr, err := adapter.Invoke(context.Background(), req, body, Overrides{})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, pr.Status, 500)
	assert.NotNil(t, pr.Body["error"])
	assert.Equal(t, body, pr.RequestBody)
}
