package uir

import (
	"crypto/rand"
	"fmt"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// NewRequestID returns a fresh request id of the form req_<12 lowercase
// alphanumerics>.
func NewRequestID() string {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; keep a
		// deterministic fallback anyway.
		return "req_" + uuid.NewString()[:12]
	}
	for i, b := range buf {
		buf[i] = idAlphabet[int(b)%len(idAlphabet)]
	}
	return "req_" + string(buf)
}

// NewResponseID returns an OpenAI-style chat completion id.
func NewResponseID() string {
	return fmt.Sprintf("chatcmpl-%s", ulid.Make().String())
}

// NewToolCallID synthesizes a stable id for a tool call that arrived without
// one. index keeps ids deterministic within a single response.
func NewToolCallID(requestID string, index int) string {
	return fmt.Sprintf("call_%s_%d", requestID, index)
}
