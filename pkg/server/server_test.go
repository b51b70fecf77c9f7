package server

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelrelay/modelrelay/pkg/clients"
	"github.com/modelrelay/modelrelay/pkg/config"
	"github.com/modelrelay/modelrelay/pkg/logstore"
	"github.com/modelrelay/modelrelay/pkg/pipeline"
	"github.com/modelrelay/modelrelay/pkg/providers"
	"github.com/modelrelay/modelrelay/pkg/router"
	"github.com/modelrelay/modelrelay/pkg/transform"
	"github.com/modelrelay/modelrelay/pkg/uir"
)

// cannedProvider returns one fixed upstream body for every call.
type cannedProvider struct {
	body   map[string]any
	status int
	calls  int
}

func (p *cannedProvider) Key() string    { return "canned" }
func (p *cannedProvider) Format() string { return providers.FormatOpenAICompatible }

func (p *cannedProvider) BuildRequestBody(req *uir.Request) (map[string]any, error) {
	messages := make([]any, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, map[string]any{
			"role":    string(m.Role),
			"content": uir.TextContent(m.Content),
		})
	}
	return map[string]any{"model": req.Model, "messages": messages}, nil
}

func (p *cannedProvider) Invoke(ctx context.Context, req *uir.Request, body map[string]any, ov providers.Overrides) (*uir.ProviderResponse, error) {
	p.calls++
	status := p.status
	if status == 0 {
		status = 200
	}
	return &uir.ProviderResponse{
		Status:      status,
		Headers:     map[string]string{},
		Body:        p.body,
		RequestBody: body,
	}, nil
}

func (p *cannedProvider) ToUIRResponse(pr *uir.ProviderResponse, req *uir.Request) (*uir.Response, error) {
	return providers.NormalizeChatResponse(pr, req)
}

func chatBody(content string) map[string]any {
	return map[string]any{
		"id":    "chatcmpl-1",
		"model": "upstream-model",
		"choices": []any{map[string]any{
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"prompt_tokens": 3.0, "completion_tokens": 2.0, "total_tokens": 5.0},
	}
}

func newTestServer(t *testing.T, provider providers.Adapter, store *logstore.Store) *Server {
	cfg := config.Config{}
	cfg.SetDefaults()
	return newTestServerWithConfig(t, cfg, provider, store)
}

func newTestServerWithConfig(t *testing.T, cfg config.Config, provider providers.Adapter, store *logstore.Store) *Server {
	t.Helper()

	cl := clients.NewRegistry()
	require.NoError(t, cl.RegisterDefaults())

	rt := router.New(config.ModelsConfig{
		DefaultStrategy: "first",
		Definitions: []config.ModelDefinition{
			{Name: "test-model", Provider: "canned", UpstreamModel: "upstream-model"},
		},
	})
	tr := transform.NewRegistry(
		transform.NewClampMaxTokens(),
		transform.NewEnsureToolCallRequest(),
		transform.NewEnsureToolCallResponse(),
		transform.NewValidateToolArguments(),
	)
	logger := slog.New(slog.DiscardHandler)
	controller := pipeline.NewController(cl, providers.NewRegistry(provider), rt, tr, logger)

	return New(cfg, controller, rt, store, nil, logger)
}

func TestChatCompletionRoute(t *testing.T) {
	provider := &cannedProvider{body: chatBody("Hello there")}
	srv := newTestServer(t, provider, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		strings.NewReader(`{"model":"test-model","messages":[{"role":"user","content":"hi"}]}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Contains(t, rec.Body.String(), `"Hello there"`)
	assert.Equal(t, 1, provider.calls)
}

func TestRequestIDIsPreserved(t *testing.T) {
	srv := newTestServer(t, &cannedProvider{body: chatBody("ok")}, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		strings.NewReader(`{"model":"test-model","messages":[{"role":"user","content":"hi"}]}`))
	req.Header.Set("X-Request-ID", "req-abc")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "req-abc", rec.Header().Get("X-Request-ID"))
}

func TestUnknownModelReturnsConfigError(t *testing.T) {
	srv := newTestServer(t, &cannedProvider{body: chatBody("ok")}, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		strings.NewReader(`{"model":"missing","messages":[{"role":"user","content":"hi"}]}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_config")
}

func TestStreamingReplaysChunks(t *testing.T) {
	srv := newTestServer(t, &cannedProvider{body: chatBody("Hello world")}, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		strings.NewReader(`{"model":"test-model","stream":true,"messages":[{"role":"user","content":"hi"}]}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, `"object":"chat.completion.chunk"`)
	assert.Contains(t, body, `"role":"assistant"`)
	assert.Contains(t, body, `"content":"Hello"`)
	assert.Contains(t, body, `"finish_reason":"stop"`)
	assert.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"))
}

func TestStreamingResponsesSendsTextDeltas(t *testing.T) {
	srv := newTestServer(t, &cannedProvider{body: chatBody("All set")}, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/responses",
		strings.NewReader(`{"model":"test-model","stream":true,"input":"hi"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()

	// "All set" splits into two five-rune pieces, then the completed
	// envelope carries the full rendered response.
	assert.Contains(t, body, `"type":"response.output_text.delta"`)
	assert.Contains(t, body, `"delta":"All s"`)
	assert.Contains(t, body, `"delta":"et"`)
	assert.Contains(t, body, `"type":"response.completed"`)
	assert.Contains(t, body, `"All set"`)
	assert.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"))
}

func TestStreamingMessagesSendsTextDeltas(t *testing.T) {
	srv := newTestServer(t, &cannedProvider{body: chatBody("All set")}, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/messages",
		strings.NewReader(`{"model":"test-model","max_tokens":64,"stream":true,"messages":[{"role":"user","content":"hi"}]}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()

	assert.Contains(t, body, `"type":"content_block_delta"`)
	assert.Contains(t, body, `"delta":{"text":"All s","type":"text_delta"}`)
	assert.Contains(t, body, `"text":"et"`)
	assert.Contains(t, body, `"All set"`)
	assert.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"))
}

func TestAuthGatesProxyRoutes(t *testing.T) {
	cfg := config.Config{}
	cfg.SetDefaults()
	cfg.Auth.APIKeys = []string{"sk-proxy-1"}
	srv := newTestServerWithConfig(t, cfg, &cannedProvider{body: chatBody("ok")}, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		strings.NewReader(`{"model":"test-model","messages":[{"role":"user","content":"hi"}]}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		strings.NewReader(`{"model":"test-model","messages":[{"role":"user","content":"hi"}]}`))
	req.Header.Set("Authorization", "Bearer sk-proxy-1")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// Health stays open.
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitOnProxyRoutes(t *testing.T) {
	cfg := config.Config{}
	cfg.SetDefaults()
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.RequestsPerMinute = 1
	srv := newTestServerWithConfig(t, cfg, &cannedProvider{body: chatBody("ok")}, nil)

	body := `{"model":"test-model","messages":[{"role":"user","content":"hi"}]}`
	first := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	first.RemoteAddr = "10.1.1.1:1000"
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, first)
	require.Equal(t, http.StatusOK, rec.Code)

	second := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	second.RemoteAddr = "10.1.1.1:1001"
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, second)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestListModels(t *testing.T) {
	srv := newTestServer(t, &cannedProvider{body: chatBody("ok")}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"test-model"`)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &cannedProvider{body: chatBody("ok")}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestMetricsExposedAfterRequest(t *testing.T) {
	srv := newTestServer(t, &cannedProvider{body: chatBody("ok")}, nil)

	post := httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		strings.NewReader(`{"model":"test-model","messages":[{"role":"user","content":"hi"}]}`))
	srv.Handler().ServeHTTP(httptest.NewRecorder(), post)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "modelrelay_requests_total")
	assert.Contains(t, rec.Body.String(), "modelrelay_pipeline_attempts_total 1")
}

func TestLogSearchDisabled(t *testing.T) {
	srv := newTestServer(t, &cannedProvider{body: chatBody("ok")}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/logs/search?q=hello", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLogSearchFindsStoredExchange(t *testing.T) {
	dir := t.TempDir()
	store, err := logstore.Open(dir+"/logs.db", dir+"/blobs")
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Append(context.Background(), logstore.Entry{
		RequestID:   "req_1",
		Method:      "POST",
		URL:         "/v1/chat/completions",
		StatusCode:  200,
		RequestBody: map[string]any{"content": "needle-in-logs"},
	})
	require.NoError(t, err)

	srv := newTestServer(t, &cannedProvider{body: chatBody("ok")}, store)

	req := httptest.NewRequest(http.MethodGet, "/v1/logs/search?q=needle-in-logs", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"req_1"`)
}

func TestRecentLogsListing(t *testing.T) {
	dir := t.TempDir()
	store, err := logstore.Open(dir+"/logs.db", dir+"/blobs")
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Append(context.Background(), logstore.Entry{
		RequestID:  "req_recent",
		Method:     "POST",
		URL:        "/v1/messages",
		StatusCode: 200,
		Model:      "claude",
	})
	require.NoError(t, err)

	srv := newTestServer(t, &cannedProvider{body: chatBody("ok")}, store)

	req := httptest.NewRequest(http.MethodGet, "/v1/logs?limit=5", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"req_recent"`)
	assert.Contains(t, rec.Body.String(), `"claude"`)
}

func TestLogSearchRequiresQuery(t *testing.T) {
	dir := t.TempDir()
	store, err := logstore.Open(dir+"/logs.db", dir+"/blobs")
	require.NoError(t, err)
	defer store.Close()

	srv := newTestServer(t, &cannedProvider{body: chatBody("ok")}, store)

	req := httptest.NewRequest(http.MethodGet, "/v1/logs/search", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
