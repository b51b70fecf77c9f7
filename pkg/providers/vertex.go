package providers

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/modelrelay/modelrelay/pkg/config"
	"github.com/modelrelay/modelrelay/pkg/httpclient"
	"github.com/modelrelay/modelrelay/pkg/uir"
)

const vertexScope = "https://www.googleapis.com/auth/cloud-platform"

// globalOnlyModels must be addressed through the global endpoint regardless
// of the configured location.
var globalOnlyModels = map[string]bool{
	"gemini-3-pro-preview": true,
}

// vertexModelAliases normalizes short model ids to the publisher-qualified
// form Vertex expects in the request body.
var vertexModelAliases = map[string]string{
	"gemini-3-pro-preview": "google/gemini-3-pro-preview",
}

// VertexAdapter talks to Vertex AI's OpenAI-compatible MaaS endpoints using
// service-account OAuth.
type VertexAdapter struct {
	cfg    config.VertexProviderConfig
	client *httpclient.Client

	mu     sync.Mutex
	source oauth2.TokenSource
}

func NewVertexAdapter(cfg config.VertexProviderConfig) *VertexAdapter {
	return &VertexAdapter{
		cfg:    cfg,
		client: httpclient.New(httpclient.WithHeaderParser(httpclient.ParseOpenAIRateLimitHeaders)),
	}
}

func (a *VertexAdapter) Key() string    { return KeyVertex }
func (a *VertexAdapter) Format() string { return FormatOpenAICompatible }

func (a *VertexAdapter) BuildRequestBody(req *uir.Request) (map[string]any, error) {
	body := chatCompletionsBody(req)
	body["model"] = normalizeVertexModel(req.Model)
	return body, nil
}

func normalizeVertexModel(model string) string {
	if alias, ok := vertexModelAliases[model]; ok {
		return alias
	}
	return model
}

// vertexEndpoint selects host and location for a model. MaaS-suffixed and
// global-only models route through the global host.
func vertexEndpoint(model, projectID, location string) string {
	host := fmt.Sprintf("https://%s-aiplatform.googleapis.com", location)
	if globalOnlyModels[model] {
		host = "https://aiplatform.googleapis.com"
		location = "global"
	} else if strings.HasSuffix(model, "-maas") {
		host = "https://aiplatform.googleapis.com"
	}
	return fmt.Sprintf("%s/v1/projects/%s/locations/%s/endpoints/openapi/chat/completions", host, projectID, location)
}

func (a *VertexAdapter) Invoke(ctx context.Context, req *uir.Request, body map[string]any, ov Overrides) (*uir.ProviderResponse, error) {
	projectID := a.cfg.ProjectID
	if ov.ProjectID != "" {
		projectID = ov.ProjectID
	}
	location := a.cfg.Location
	if ov.Location != "" {
		location = ov.Location
	}

	url := vertexEndpoint(req.Model, projectID, location)
	if override := firstNonEmpty(ov.EndpointOverride, a.cfg.EndpointOverride); override != "" {
		url = override
	}

	token, err := a.token(ctx, ov)
	if err != nil {
		return transportFailure(fmt.Errorf("vertex auth: %w", err), body), nil
	}

	headers := map[string]string{"Authorization": "Bearer " + token.AccessToken}
	return postJSON(ctx, a.client, url, headers, body)
}

// token returns a bearer token, caching the base token source across calls.
// Per-model credential overrides bypass the cache.
func (a *VertexAdapter) token(ctx context.Context, ov Overrides) (*oauth2.Token, error) {
	if ov.Credentials != "" || ov.CredentialsPath != "" {
		source, err := tokenSource(ctx, ov.Credentials, ov.CredentialsPath)
		if err != nil {
			return nil, err
		}
		return source.Token()
	}

	a.mu.Lock()
	if a.source == nil {
		source, err := tokenSource(ctx, a.cfg.Credentials, a.cfg.CredentialsPath)
		if err != nil {
			a.mu.Unlock()
			return nil, err
		}
		a.source = oauth2.ReuseTokenSource(nil, source)
	}
	source := a.source
	a.mu.Unlock()

	return source.Token()
}

func tokenSource(ctx context.Context, credentials, credentialsPath string) (oauth2.TokenSource, error) {
	if credentialsPath != "" {
		data, err := os.ReadFile(credentialsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
		credentials = string(data)
	}
	if credentials != "" {
		creds, err := google.CredentialsFromJSON(ctx, []byte(credentials), vertexScope)
		if err != nil {
			return nil, fmt.Errorf("failed to parse credentials: %w", err)
		}
		return creds.TokenSource, nil
	}
	return google.DefaultTokenSource(ctx, vertexScope)
}

func (a *VertexAdapter) ToUIRResponse(pr *uir.ProviderResponse, req *uir.Request) (*uir.Response, error) {
	return NormalizeChatResponse(pr, req)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
