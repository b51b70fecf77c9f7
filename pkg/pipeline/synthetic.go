package pipeline

import "github.com/modelrelay/modelrelay/pkg/uir"

// SyntheticProviderResponse fabricates the provider outcome for a
// short-circuited attempt. The marker header tells response-stage transforms
// to leave it alone.
func SyntheticProviderResponse() *uir.ProviderResponse {
	return &uir.ProviderResponse{
		Status:  200,
		Headers: map[string]string{"x-synthetic-response": "true"},
		Body:    map[string]any{},
	}
}

// SyntheticResponse fabricates an empty completed assistant answer. Dialect
// renderers treat it like any other response.
func SyntheticResponse(req *uir.Request) *uir.Response {
	return &uir.Response{
		ID:           "synth_" + req.ID,
		Model:        "synthetic",
		Operation:    req.Operation,
		FinishReason: "stop",
		Output: []uir.OutputItem{{
			Type:    uir.OutputMessage,
			Role:    uir.RoleAssistant,
			Content: []uir.ContentBlock{},
			Status:  uir.StatusCompleted,
		}},
		Usage:    &uir.Usage{},
		Metadata: map[string]any{"synthetic": true},
	}
}
