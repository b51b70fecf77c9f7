// Package clients parses client dialects (OpenAI Chat Completions, OpenAI
// Responses, Anthropic Messages) into the UIR and renders UIR responses back
// into the caller's dialect.
package clients

import (
	"fmt"
	"net/http"

	"github.com/modelrelay/modelrelay/pkg/registry"
	"github.com/modelrelay/modelrelay/pkg/uir"
)

// Client dialect identifiers, used as registry keys and recorded in
// request metadata.
const (
	FormatOpenAIChat        = "openai-chat"
	FormatOpenAIResponses   = "openai-responses"
	FormatAnthropicMessages = "anthropic-messages"
)

// Adapter converts one client dialect to and from the UIR. Parsing is
// tolerant: unrecognized shapes degrade to best effort rather than erroring.
type Adapter interface {
	Format() string
	Operation() uir.Operation

	// ToUIR parses an inbound request body into a UIR request.
	ToUIR(body []byte, headers http.Header) (*uir.Request, error)

	// FromUIR renders a UIR response in this adapter's dialect. req is the
	// UIR request the response answers.
	FromUIR(resp *uir.Response, req *uir.Request) (map[string]any, error)
}

// Registry holds the client adapters keyed by format.
type Registry struct {
	*registry.Registry[Adapter]
}

func NewRegistry() *Registry {
	return &Registry{Registry: registry.New[Adapter]()}
}

// RegisterDefaults registers the three built-in dialects.
func (r *Registry) RegisterDefaults() error {
	for _, a := range []Adapter{
		NewOpenAIChatAdapter(),
		NewOpenAIResponsesAdapter(),
		NewAnthropicMessagesAdapter(),
	} {
		if err := r.Register(a.Format(), a); err != nil {
			return err
		}
	}
	return nil
}

// Resolve returns the adapter for a client format.
func (r *Registry) Resolve(format string) (Adapter, error) {
	a, ok := r.Get(format)
	if !ok {
		return nil, fmt.Errorf("unregistered client format %q", format)
	}
	return a, nil
}
