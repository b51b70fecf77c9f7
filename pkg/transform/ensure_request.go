package transform

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/modelrelay/modelrelay/pkg/providers"
	"github.com/modelrelay/modelrelay/pkg/uir"
)

const (
	reminderText = `The client will not continue unless you reply with a tool call. If the task is complete, call the %q function to signal completion.`

	finalAnswerReminderText = `The client will not continue unless you reply with a tool call. Call the %q function and pass a final_answer argument summarizing the result of the task.`

	baseInstructionText = `Always reply with at least one tool call so the client can continue orchestrating actions. When you have completely finished the user's task, call the %q function to signal completion. You may pass a final_answer argument summarizing the outcome.`
)

type terminationArgs struct {
	FinalAnswer string `json:"final_answer,omitempty" jsonschema:"description=Summary of the completed task"`
}

// terminationToolSchema builds the JSON schema for the termination tool:
// an object with a single optional final_answer string.
func terminationToolSchema() map[string]any {
	reflector := &jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
	}
	schema := reflector.Reflect(&terminationArgs{})

	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out
}

// EnsureToolCallRequest enforces the request half of the ensure-tool-call
// contract: it short-circuits to a synthetic response when the previous turn
// already terminated without tools, and otherwise injects the termination
// tool plus the system instruction (and any pending reminder).
type EnsureToolCallRequest struct{}

func NewEnsureToolCallRequest() *EnsureToolCallRequest {
	return &EnsureToolCallRequest{}
}

func (t *EnsureToolCallRequest) Name() string  { return "ensure_tool_call_request" }
func (t *EnsureToolCallRequest) Stage() Stage  { return StageIngress }
func (t *EnsureToolCallRequest) Priority() int { return 100 }

// Applies restricts the contract to OpenAI-compatible providers: the tool
// and message shapes injected below would corrupt an Anthropic body.
func (t *EnsureToolCallRequest) Applies(tc *Context) bool {
	st := tc.Request.State.EnsureToolCall
	return st != nil && st.Enabled && tc.Body != nil &&
		tc.ProviderFormat == providers.FormatOpenAICompatible
}

func (t *EnsureToolCallRequest) Transform(tc *Context) error {
	st := tc.Request.State.EnsureToolCall

	// If an assistant turn after the last user message already answered
	// without tools, the conversation has terminated: don't call the
	// provider again, let the controller fabricate an empty response.
	if terminatedWithoutTools(tc.Request.Messages) {
		tc.Request.State.SyntheticRequested = true
		tc.Logger.Debug("prior assistant turn had no tool calls, requesting synthetic response")
		return nil
	}

	registerTerminationTool(tc.Body, st.TerminationToolName)

	if !st.InstructionAttached {
		attachSystemText(tc.Body, fmt.Sprintf(baseInstructionText, st.TerminationToolName))
		st.InstructionAttached = true
	}

	if st.PendingReminder {
		text := fmt.Sprintf(reminderText, st.TerminationToolName)
		if st.FinalAnswerRequired {
			text = fmt.Sprintf(finalAnswerReminderText, st.TerminationToolName)
			st.FinalAnswerRequired = false
		}
		appendSystemMessage(tc.Body, text)
		st.PendingReminder = false
		st.ReminderCount++
		st.ReminderHistory = append(st.ReminderHistory, text)
	}

	return nil
}

// terminatedWithoutTools reports whether any assistant message at or after
// the last user message carries no tool calls.
func terminatedWithoutTools(messages []uir.Message) bool {
	lastUser := -1
	for i, m := range messages {
		if m.Role == uir.RoleUser {
			lastUser = i
		}
	}
	if lastUser < 0 {
		return false
	}
	for _, m := range messages[lastUser:] {
		if m.Role == uir.RoleAssistant && len(m.ToolCalls) == 0 {
			return true
		}
	}
	return false
}

func registerTerminationTool(body map[string]any, name string) {
	tools := asSlice(body["tools"])
	for _, t := range tools {
		tool, ok := t.(map[string]any)
		if !ok {
			continue
		}
		if asString(asMap(tool["function"])["name"]) == name {
			return
		}
	}

	body["tools"] = append(tools, map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        name,
			"description": "Signal that the task is complete. Call this when no further tool calls are needed.",
			"parameters":  terminationToolSchema(),
			"strict":      true,
		},
	})
}

// attachSystemText appends text to the first system message, or prepends a
// new one when the conversation has none.
func attachSystemText(body map[string]any, text string) {
	messages := asSlice(body["messages"])
	for _, m := range messages {
		msg, ok := m.(map[string]any)
		if !ok {
			continue
		}
		if asString(msg["role"]) != "system" {
			continue
		}
		if existing, ok := msg["content"].(string); ok {
			if existing != "" {
				msg["content"] = existing + "\n\n" + text
			} else {
				msg["content"] = text
			}
			return
		}
	}

	entry := map[string]any{"role": "system", "content": text}
	body["messages"] = append([]any{entry}, messages...)
}

func appendSystemMessage(body map[string]any, text string) {
	messages := asSlice(body["messages"])
	body["messages"] = append(messages, map[string]any{"role": "system", "content": text})
}
