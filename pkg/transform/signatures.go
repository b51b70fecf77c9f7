package transform

import (
	"strings"

	"github.com/modelrelay/modelrelay/pkg/sigcache"
)

// Gemini thinking models require the opaque thought signature from a prior
// tool call to be echoed back on the follow-up request. The proxy persists
// signatures on the way out and re-injects them on the way in.

func signatureGated(model string) bool {
	return strings.Contains(model, "gemini-3")
}

// RestoreThoughtSignatures re-attaches cached signatures to the tool calls
// of assistant history messages in the outgoing provider body.
type RestoreThoughtSignatures struct {
	cache *sigcache.Cache
}

func NewRestoreThoughtSignatures(cache *sigcache.Cache) *RestoreThoughtSignatures {
	return &RestoreThoughtSignatures{cache: cache}
}

func (t *RestoreThoughtSignatures) Name() string  { return "restore_thought_signatures" }
func (t *RestoreThoughtSignatures) Stage() Stage  { return StageIngress }
func (t *RestoreThoughtSignatures) Priority() int { return 90 }

func (t *RestoreThoughtSignatures) Applies(tc *Context) bool {
	return t.cache != nil && tc.Body != nil && signatureGated(tc.Request.Model)
}

func (t *RestoreThoughtSignatures) Transform(tc *Context) error {
	calls := assistantToolCalls(tc.Body)
	if len(calls) == 0 {
		return nil
	}

	ids := make([]string, 0, len(calls))
	for _, call := range calls {
		if id := asString(call["id"]); id != "" {
			ids = append(ids, id)
		}
	}

	signatures, err := t.cache.BatchRetrieve(ids)
	if err != nil {
		// Cache is best-effort: a failed lookup degrades quality, not
		// correctness.
		tc.Logger.Warn("thought signature lookup failed", "error", err)
		return nil
	}

	restored := 0
	for _, call := range calls {
		sig, ok := signatures[asString(call["id"])]
		if !ok {
			continue
		}
		if _, exists := call["extra_content"]; exists {
			continue
		}
		call["extra_content"] = map[string]any{
			"google": map[string]any{"thought_signature": sig},
		}
		restored++
	}
	if restored > 0 {
		tc.Logger.Debug("restored thought signatures", "count", restored)
	}
	return nil
}

// ExtractThoughtSignatures persists signatures the provider attached to the
// tool calls of the raw response.
type ExtractThoughtSignatures struct {
	cache *sigcache.Cache
}

func NewExtractThoughtSignatures(cache *sigcache.Cache) *ExtractThoughtSignatures {
	return &ExtractThoughtSignatures{cache: cache}
}

func (t *ExtractThoughtSignatures) Name() string  { return "extract_thought_signatures" }
func (t *ExtractThoughtSignatures) Stage() Stage  { return StageProvider }
func (t *ExtractThoughtSignatures) Priority() int { return 50 }

func (t *ExtractThoughtSignatures) Applies(tc *Context) bool {
	return t.cache != nil && tc.Provider != nil && !tc.Provider.Synthetic() &&
		signatureGated(tc.Request.Model)
}

func (t *ExtractThoughtSignatures) Transform(tc *Context) error {
	message := firstChoiceMessage(tc.Provider.Body)
	if message == nil {
		return nil
	}

	for _, c := range asSlice(message["tool_calls"]) {
		call, ok := c.(map[string]any)
		if !ok {
			continue
		}
		id := asString(call["id"])
		sig := asString(asMap(asMap(call["extra_content"])["google"])["thought_signature"])
		if id == "" || sig == "" {
			continue
		}
		if err := t.cache.Store(id, sig); err != nil {
			tc.Logger.Warn("failed to store thought signature", "tool_call_id", id, "error", err)
		}
	}
	return nil
}

// assistantToolCalls collects the tool_call objects of every assistant
// message in an OpenAI-compatible request body.
func assistantToolCalls(body map[string]any) []map[string]any {
	var out []map[string]any
	for _, m := range asSlice(body["messages"]) {
		msg, ok := m.(map[string]any)
		if !ok || asString(msg["role"]) != "assistant" {
			continue
		}
		for _, c := range asSlice(msg["tool_calls"]) {
			if call, ok := c.(map[string]any); ok {
				out = append(out, call)
			}
		}
	}
	return out
}
