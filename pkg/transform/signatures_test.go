package transform

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelrelay/modelrelay/pkg/sigcache"
	"github.com/modelrelay/modelrelay/pkg/uir"
)

func TestThoughtSignatureRoundTrip(t *testing.T) {
	cache, err := sigcache.Open(filepath.Join(t.TempDir(), "sigs.db"))
	require.NoError(t, err)
	defer cache.Close()

	req := &uir.Request{ID: "req_sig", Model: "google/gemini-3-pro-preview", State: uir.NewState()}

	// Provider attaches a signature to its tool call.
	extract := NewExtractThoughtSignatures(cache)
	ptc := testContext(req)
	ptc.Provider = &uir.ProviderResponse{
		Status:  200,
		Headers: map[string]string{},
		Body: map[string]any{
			"choices": []any{map[string]any{
				"message": map[string]any{
					"role": "assistant",
					"tool_calls": []any{map[string]any{
						"id":       "call_sig_1",
						"function": map[string]any{"name": "lookup", "arguments": "{}"},
						"extra_content": map[string]any{
							"google": map[string]any{"thought_signature": "opaque-sig"},
						},
					}},
				},
			}},
		},
	}
	require.True(t, extract.Applies(ptc))
	require.NoError(t, extract.Transform(ptc))

	// Follow-up request replays the assistant turn; the signature comes back.
	restore := NewRestoreThoughtSignatures(cache)
	itc := testContext(req)
	itc.Body = map[string]any{
		"messages": []any{map[string]any{
			"role": "assistant",
			"tool_calls": []any{map[string]any{
				"id":       "call_sig_1",
				"function": map[string]any{"name": "lookup", "arguments": "{}"},
			}},
		}},
	}
	require.True(t, restore.Applies(itc))
	require.NoError(t, restore.Transform(itc))

	call := itc.Body["messages"].([]any)[0].(map[string]any)["tool_calls"].([]any)[0].(map[string]any)
	extra := call["extra_content"].(map[string]any)
	assert.Equal(t, "opaque-sig", extra["google"].(map[string]any)["thought_signature"])
}

func TestRestoreSkipsNonGeminiModels(t *testing.T) {
	cache, err := sigcache.Open(filepath.Join(t.TempDir(), "sigs.db"))
	require.NoError(t, err)
	defer cache.Close()

	req := &uir.Request{ID: "req_x", Model: "gpt-4o", State: uir.NewState()}
	tc := testContext(req)
	tc.Body = map[string]any{}

	assert.False(t, NewRestoreThoughtSignatures(cache).Applies(tc))
}

func TestRestoreKeepsExistingExtraContent(t *testing.T) {
	cache, err := sigcache.Open(filepath.Join(t.TempDir(), "sigs.db"))
	require.NoError(t, err)
	defer cache.Close()
	require.NoError(t, cache.Store("call_1", "new-sig"))

	req := &uir.Request{ID: "req_x", Model: "gemini-3-pro-preview", State: uir.NewState()}
	tc := testContext(req)
	existing := map[string]any{"google": map[string]any{"thought_signature": "old-sig"}}
	tc.Body = map[string]any{
		"messages": []any{map[string]any{
			"role": "assistant",
			"tool_calls": []any{map[string]any{
				"id":            "call_1",
				"extra_content": existing,
			}},
		}},
	}

	require.NoError(t, NewRestoreThoughtSignatures(cache).Transform(tc))

	call := tc.Body["messages"].([]any)[0].(map[string]any)["tool_calls"].([]any)[0].(map[string]any)
	assert.Equal(t, existing, call["extra_content"])
}
