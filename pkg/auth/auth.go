// Package auth gates the proxy routes behind static API keys. Keys arrive
// either as a Bearer token or in the x-api-key header, matching what OpenAI
// and Anthropic SDK clients send.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Verifier holds the accepted API keys. Immutable after construction.
type Verifier struct {
	keys []string
}

// NewVerifier builds a verifier. An empty key list means authentication is
// disabled and every request passes.
func NewVerifier(keys []string) *Verifier {
	trimmed := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			trimmed = append(trimmed, k)
		}
	}
	return &Verifier{keys: trimmed}
}

// Enabled reports whether any keys are configured.
func (v *Verifier) Enabled() bool {
	return len(v.keys) > 0
}

// Verify checks a presented key against the configured set in constant time.
func (v *Verifier) Verify(key string) bool {
	if !v.Enabled() {
		return true
	}
	for _, k := range v.keys {
		if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
			return true
		}
	}
	return false
}

// requestKey pulls the API key off an inbound request. Bearer token wins
// over x-api-key when both are present.
func requestKey(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token := strings.TrimPrefix(header, "Bearer "); token != header {
			return token
		}
	}
	return r.Header.Get("x-api-key")
}

// Middleware rejects requests that do not carry an accepted key. A verifier
// with no keys passes everything through untouched.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	if !v.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !v.Verify(requestKey(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"message":"invalid or missing API key","code":"unauthorized"}}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
