package transform

import (
	"os"
	"strconv"
)

const defaultMaxTokensCap = 4096

// ClampMaxTokens caps max_tokens on outgoing provider bodies. The cap comes
// from MAX_TOKENS_CAP, read once at construction.
type ClampMaxTokens struct {
	cap int
}

func NewClampMaxTokens() *ClampMaxTokens {
	cap := defaultMaxTokensCap
	if raw := os.Getenv("MAX_TOKENS_CAP"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			cap = parsed
		}
	}
	return &ClampMaxTokens{cap: cap}
}

func (t *ClampMaxTokens) Name() string  { return "clamp_max_tokens" }
func (t *ClampMaxTokens) Stage() Stage  { return StageIngress }
func (t *ClampMaxTokens) Priority() int { return 10 }

func (t *ClampMaxTokens) Applies(tc *Context) bool {
	return tc.Body != nil && bodyInt(tc.Body["max_tokens"]) > t.cap
}

func (t *ClampMaxTokens) Transform(tc *Context) error {
	tc.Body["max_tokens"] = t.cap
	tc.Request.State.MaxTokensClamped = true
	tc.Logger.Debug("clamped max_tokens", "cap", t.cap)
	return nil
}

func bodyInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}
