// Package pipeline runs one request through the proxy: client dialect to
// UIR, ingress transforms, the provider call, response repair, and back out
// through the client dialect. The controller owns the bounded retry loop.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/modelrelay/modelrelay/pkg/clients"
	"github.com/modelrelay/modelrelay/pkg/providers"
	"github.com/modelrelay/modelrelay/pkg/router"
	"github.com/modelrelay/modelrelay/pkg/transform"
	"github.com/modelrelay/modelrelay/pkg/uir"
)

const maxAttemptsCap = 5

// Controller wires the registries together and executes pipelines.
type Controller struct {
	clients    *clients.Registry
	providers  *providers.Registry
	router     *router.Router
	transforms *transform.Registry
	logger     *slog.Logger
}

func NewController(cl *clients.Registry, pv *providers.Registry, rt *router.Router, tr *transform.Registry, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{clients: cl, providers: pv, router: rt, transforms: tr, logger: logger}
}

// Result is everything the server and log store need from one exchange.
type Result struct {
	Request  *uir.Request
	Response *uir.Response
	Rendered map[string]any
	Status   int
	Provider string

	// ProviderRequest and Provider capture the last upstream exchange for
	// logging. Nil when the attempt was synthetic and never left the proxy.
	ProviderRequest  map[string]any
	ProviderResponse *uir.ProviderResponse

	Attempts int
}

// Execute runs the full pipeline for one inbound request body.
func (c *Controller) Execute(ctx context.Context, clientFormat string, body []byte, headers http.Header) (*Result, error) {
	adapter, err := c.clients.Resolve(clientFormat)
	if err != nil {
		return nil, err
	}

	req, err := adapter.ToUIR(body, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	if req.ID == "" {
		req.ID = uir.NewRequestID()
	}
	req.Operation = adapter.Operation()
	if req.State == nil {
		req.State = uir.NewState()
	}

	logger := c.logger.With("request_id", req.ID, "model", req.Model, "operation", string(req.Operation))

	resolution, err := c.router.Resolve(req.Model)
	if err != nil {
		return c.renderError(adapter, req, http.StatusInternalServerError, err.Error(), "invalid_config")
	}

	provider, err := c.providers.Resolve(resolution.ProviderKey)
	if err != nil {
		return c.renderError(adapter, req, http.StatusInternalServerError, err.Error(), "invalid_config")
	}

	req.State.ResolvedModel = req.Model
	req.Model = resolution.UpstreamModel
	req.Metadata.ProviderFormat = provider.Format()

	if resolution.EnsureToolCall {
		if req.State.EnsureToolCall == nil {
			req.State.EnsureToolCall = uir.NewEnsureToolCallState("")
		}
		req.State.MaxAttempts = ensureMaxAttempts()
	}

	providerBody, err := provider.BuildRequestBody(req)
	if err != nil {
		return nil, fmt.Errorf("failed to build provider request: %w", err)
	}

	result := &Result{Request: req, Provider: resolution.ProviderKey}

	for attempt := 1; attempt <= req.State.MaxAttempts; attempt++ {
		req.State.RetryRequested = false
		result.Attempts = attempt

		tc := &transform.Context{
			Ctx:            ctx,
			Request:        req,
			Body:           providerBody,
			ProviderFormat: provider.Format(),
			Logger:         logger,
		}
		if err := c.transforms.Run(transform.StageIngress, tc); err != nil {
			return nil, err
		}

		if req.State.SyntheticRequested {
			req.State.SyntheticRequested = false
			return c.finishSynthetic(adapter, req, result)
		}

		pr, err := provider.Invoke(ctx, req, providerBody, resolution.Overrides)
		if err != nil {
			return nil, err
		}
		result.ProviderRequest = providerBody
		result.ProviderResponse = pr

		if pr.Status >= 400 {
			resp, convErr := provider.ToUIRResponse(pr, req)
			if convErr != nil {
				return nil, convErr
			}
			req.State.RetryRequested = false
			logger.Warn("upstream returned error", "status", pr.Status, "attempt", attempt)
			return c.finish(adapter, req, resp, pr.Status, result)
		}

		tc.Provider = pr
		if err := c.transforms.Run(transform.StageProvider, tc); err != nil {
			return nil, err
		}

		resp, err := provider.ToUIRResponse(pr, req)
		if err != nil {
			return nil, err
		}
		if resp.Error != nil {
			req.State.RetryRequested = false
			return c.finish(adapter, req, resp, http.StatusBadGateway, result)
		}

		tc.Response = resp
		if err := c.transforms.Run(transform.StageEgress, tc); err != nil {
			return nil, err
		}

		if attempt < req.State.MaxAttempts && req.State.RetryRequested {
			req.State.RetryRequested = false
			logger.Info("retrying pipeline attempt", "attempt", attempt+1)
			continue
		}

		req.State.RetryRequested = false
		return c.finish(adapter, req, resp, http.StatusOK, result)
	}

	// Unreachable: the loop always returns.
	return nil, fmt.Errorf("pipeline exited without a response")
}

func (c *Controller) finish(adapter clients.Adapter, req *uir.Request, resp *uir.Response, status int, result *Result) (*Result, error) {
	rendered, err := adapter.FromUIR(resp, req)
	if err != nil {
		return nil, fmt.Errorf("failed to render response: %w", err)
	}
	result.Response = resp
	result.Rendered = rendered
	result.Status = status
	return result, nil
}

func (c *Controller) finishSynthetic(adapter clients.Adapter, req *uir.Request, result *Result) (*Result, error) {
	result.ProviderResponse = SyntheticProviderResponse()
	return c.finish(adapter, req, SyntheticResponse(req), http.StatusOK, result)
}

func (c *Controller) renderError(adapter clients.Adapter, req *uir.Request, status int, message, code string) (*Result, error) {
	resp := &uir.Response{
		ID:        req.ID,
		Model:     req.Model,
		Operation: req.Operation,
		Error:     &uir.ResponseError{Message: message, Code: code},
	}
	return c.finish(adapter, req, resp, status, &Result{Request: req, Attempts: 0})
}

// ensureMaxAttempts reads ENSURE_TOOL_CALL_MAX_ATTEMPTS, defaulting to 3 and
// clamping to [1, 5].
func ensureMaxAttempts() int {
	attempts := 3
	if raw := os.Getenv("ENSURE_TOOL_CALL_MAX_ATTEMPTS"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			attempts = parsed
		}
	}
	if attempts < 1 {
		attempts = 1
	}
	if attempts > maxAttemptsCap {
		attempts = maxAttemptsCap
	}
	return attempts
}
