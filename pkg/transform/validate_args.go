package transform

import "encoding/json"

// ValidateToolArguments rejects responses whose tool-call arguments are not
// parseable JSON strings by scheduling a retry. Providers occasionally emit
// truncated or doubly-encoded argument payloads.
type ValidateToolArguments struct{}

func NewValidateToolArguments() *ValidateToolArguments {
	return &ValidateToolArguments{}
}

func (t *ValidateToolArguments) Name() string  { return "validate_tool_arguments" }
func (t *ValidateToolArguments) Stage() Stage  { return StageProvider }
func (t *ValidateToolArguments) Priority() int { return 90 }

func (t *ValidateToolArguments) Applies(tc *Context) bool {
	return tc.Provider != nil && !tc.Provider.Synthetic()
}

func (t *ValidateToolArguments) Transform(tc *Context) error {
	message := firstChoiceMessage(tc.Provider.Body)
	if message == nil {
		return nil
	}

	for _, c := range asSlice(message["tool_calls"]) {
		call, ok := c.(map[string]any)
		if !ok {
			continue
		}
		if !validArguments(asMap(call["function"])["arguments"]) {
			tc.Request.State.RetryRequested = true
			tc.Logger.Warn("tool call arguments are not valid JSON, retrying",
				"tool", asString(asMap(call["function"])["name"]),
			)
			return nil
		}
	}
	return nil
}

// validArguments accepts a parseable JSON string, an already-decoded object,
// or absence. Everything else is a malformed call.
func validArguments(raw any) bool {
	switch v := raw.(type) {
	case nil:
		return true
	case string:
		return v == "" || json.Valid([]byte(v))
	case map[string]any:
		return true
	default:
		return false
	}
}
