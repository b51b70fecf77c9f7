package providers

import (
	"context"

	"github.com/modelrelay/modelrelay/pkg/config"
	"github.com/modelrelay/modelrelay/pkg/httpclient"
	"github.com/modelrelay/modelrelay/pkg/uir"
)

const openRouterEndpoint = "https://openrouter.ai/api/v1/chat/completions"

// OpenRouterAdapter talks to OpenRouter's OpenAI-compatible surface.
type OpenRouterAdapter struct {
	cfg    config.OpenRouterProviderConfig
	client *httpclient.Client
}

func NewOpenRouterAdapter(cfg config.OpenRouterProviderConfig) *OpenRouterAdapter {
	return &OpenRouterAdapter{
		cfg:    cfg,
		client: httpclient.New(httpclient.WithHeaderParser(httpclient.ParseOpenAIRateLimitHeaders)),
	}
}

func (a *OpenRouterAdapter) Key() string    { return KeyOpenRouter }
func (a *OpenRouterAdapter) Format() string { return FormatOpenAICompatible }

func (a *OpenRouterAdapter) BuildRequestBody(req *uir.Request) (map[string]any, error) {
	return chatCompletionsBody(req), nil
}

func (a *OpenRouterAdapter) Invoke(ctx context.Context, req *uir.Request, body map[string]any, ov Overrides) (*uir.ProviderResponse, error) {
	apiKey := a.cfg.APIKey
	if ov.APIKey != "" {
		apiKey = ov.APIKey
	}
	url := openRouterEndpoint
	if ov.BaseURL != "" {
		url = ov.BaseURL + "/chat/completions"
	}

	headers := map[string]string{"Authorization": "Bearer " + apiKey}
	return postJSON(ctx, a.client, url, headers, body)
}

func (a *OpenRouterAdapter) ToUIRResponse(pr *uir.ProviderResponse, req *uir.Request) (*uir.Response, error) {
	return NormalizeChatResponse(pr, req)
}
