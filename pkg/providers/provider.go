// Package providers implements the upstream adapters: payload construction,
// the HTTP call, and conversion of raw provider bodies back into UIR.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/modelrelay/modelrelay/pkg/httpclient"
	"github.com/modelrelay/modelrelay/pkg/uir"
)

const (
	KeyOpenAI     = "openai"
	KeyOpenRouter = "openrouter"
	KeyVertex     = "vertex"
	KeyAnthropic  = "anthropic"
)

// FormatOpenAICompatible marks adapters whose request and response bodies
// follow the OpenAI Chat Completions wire shape.
const (
	FormatOpenAICompatible = "openai-compatible"
	FormatAnthropic        = "anthropic"
)

// UpstreamTimeout is the hard deadline for a single provider call.
const UpstreamTimeout = 120 * time.Second

// Overrides are per-model config values merged onto the adapter's base
// config before a call. Zero values mean "keep the base".
type Overrides struct {
	APIKey           string
	BaseURL          string
	ProjectID        string
	Location         string
	Credentials      string
	CredentialsPath  string
	EndpointOverride string
}

// Adapter is one upstream provider. BuildRequestBody produces the
// provider-native body from UIR; the pipeline runs ingress transforms over
// that body before Invoke sends it.
type Adapter interface {
	Key() string
	Format() string
	BuildRequestBody(req *uir.Request) (map[string]any, error)
	Invoke(ctx context.Context, req *uir.Request, body map[string]any, ov Overrides) (*uir.ProviderResponse, error)
	ToUIRResponse(pr *uir.ProviderResponse, req *uir.Request) (*uir.Response, error)
}

// Registry maps provider keys to adapters. Immutable after construction;
// read without synchronization.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Key()] = a
	}
	return r
}

func (r *Registry) Resolve(key string) (Adapter, error) {
	a, ok := r.adapters[key]
	if !ok {
		return nil, fmt.Errorf("provider %q is not registered", key)
	}
	return a, nil
}

func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.adapters))
	for k := range r.adapters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// postJSON performs one upstream call and always returns a ProviderResponse
// suitable for logging. Transport failures become a synthetic status-502
// response carrying the error body; only context cancellation propagates as
// an error.
func postJSON(ctx context.Context, client *httpclient.Client, url string, headers map[string]string, body map[string]any) (*uir.ProviderResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode provider request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, UpstreamTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build provider request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return transportFailure(err, body), nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportFailure(err, body), nil
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		// Non-JSON upstream bodies still get logged verbatim.
		decoded = map[string]any{"raw": string(raw)}
	}

	return &uir.ProviderResponse{
		Status:      resp.StatusCode,
		Headers:     flattenHeaders(resp.Header),
		Body:        decoded,
		RequestBody: body,
	}, nil
}

func transportFailure(err error, requestBody map[string]any) *uir.ProviderResponse {
	return &uir.ProviderResponse{
		Status: http.StatusBadGateway,
		Headers: map[string]string{
			"content-type": "application/json",
		},
		Body: map[string]any{
			"error": map[string]any{
				"message": err.Error(),
				"type":    "upstream_transport_error",
			},
		},
		RequestBody: requestBody,
	}
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out
}
