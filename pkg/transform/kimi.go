package transform

import "github.com/modelrelay/modelrelay/pkg/kimi"

// KimiResponse runs the Kimi repair pass over the raw provider body before
// validation and the ensure-tool-call check see it.
type KimiResponse struct{}

func NewKimiResponse() *KimiResponse {
	return &KimiResponse{}
}

func (t *KimiResponse) Name() string  { return "kimi_response" }
func (t *KimiResponse) Stage() Stage  { return StageProvider }
func (t *KimiResponse) Priority() int { return 10 }

func (t *KimiResponse) Applies(tc *Context) bool {
	return tc.Provider != nil && !tc.Provider.Synthetic()
}

func (t *KimiResponse) Transform(tc *Context) error {
	meta := kimi.Fix(tc.Provider.Body, tc.Request.Tools)
	if meta.Changed() {
		// The normalizer re-runs the fixer on a now-clean body and would
		// see zero counts; stash ours so they reach the response metadata.
		tc.Request.State.Extra[kimi.RepairStateKey] = meta
		tc.Logger.Info("repaired provider tool calls",
			"extracted", meta.ExtractedToolCalls,
			"from_content", meta.ExtractedFromContent,
			"from_reasoning", meta.ExtractedFromReasoning,
			"renamed", meta.RepairedToolNames,
		)
	}
	return nil
}
