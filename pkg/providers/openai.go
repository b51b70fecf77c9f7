package providers

import (
	"context"
	"strings"

	"github.com/modelrelay/modelrelay/pkg/config"
	"github.com/modelrelay/modelrelay/pkg/httpclient"
	"github.com/modelrelay/modelrelay/pkg/uir"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIAdapter talks to the OpenAI API or any service exposing the same
// chat completions surface via base_url.
type OpenAIAdapter struct {
	cfg    config.OpenAIProviderConfig
	client *httpclient.Client
}

func NewOpenAIAdapter(cfg config.OpenAIProviderConfig) *OpenAIAdapter {
	return &OpenAIAdapter{
		cfg:    cfg,
		client: httpclient.New(httpclient.WithHeaderParser(httpclient.ParseOpenAIRateLimitHeaders)),
	}
}

func (a *OpenAIAdapter) Key() string    { return KeyOpenAI }
func (a *OpenAIAdapter) Format() string { return FormatOpenAICompatible }

func (a *OpenAIAdapter) BuildRequestBody(req *uir.Request) (map[string]any, error) {
	return chatCompletionsBody(req), nil
}

func (a *OpenAIAdapter) Invoke(ctx context.Context, req *uir.Request, body map[string]any, ov Overrides) (*uir.ProviderResponse, error) {
	apiKey := a.cfg.APIKey
	if ov.APIKey != "" {
		apiKey = ov.APIKey
	}
	baseURL := a.cfg.BaseURL
	if ov.BaseURL != "" {
		baseURL = ov.BaseURL
	}
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}

	url := strings.TrimSuffix(baseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + apiKey}
	return postJSON(ctx, a.client, url, headers, body)
}

func (a *OpenAIAdapter) ToUIRResponse(pr *uir.ProviderResponse, req *uir.Request) (*uir.Response, error) {
	return NormalizeChatResponse(pr, req)
}
