package transform

import (
	"regexp"
	"strings"

	"github.com/modelrelay/modelrelay/pkg/providers"
)

// terminationNamePattern matches tool names that mis-behaving providers emit
// in place of the termination tool: bare numbers and call-id lookalikes.
var terminationNamePattern = regexp.MustCompile(`^(call_)?[0-9]+$`)

// finalAnswerKeyPattern matches argument keys that carry a final answer.
var finalAnswerKeyPattern = regexp.MustCompile(`(?i)final[_\-\s]?answer|^final$|^answer$|^summary$`)

// EnsureToolCallResponse enforces the response half of the contract: accept
// responses with working tool calls, convert termination calls into plain
// answers, and schedule a retry (with reminder) when the assistant replied
// with neither.
type EnsureToolCallResponse struct{}

func NewEnsureToolCallResponse() *EnsureToolCallResponse {
	return &EnsureToolCallResponse{}
}

func (t *EnsureToolCallResponse) Name() string  { return "ensure_tool_call_response" }
func (t *EnsureToolCallResponse) Stage() Stage  { return StageProvider }
func (t *EnsureToolCallResponse) Priority() int { return 100 }

func (t *EnsureToolCallResponse) Applies(tc *Context) bool {
	st := tc.Request.State.EnsureToolCall
	return st != nil && st.Enabled && tc.Provider != nil && !tc.Provider.Synthetic() &&
		tc.ProviderFormat == providers.FormatOpenAICompatible
}

// ensureOutcome classifies one choice message against the contract.
type ensureOutcome int

const (
	ensureUnmet ensureOutcome = iota
	ensureAccepted
	ensureNeedsFinalAnswer
)

func (t *EnsureToolCallResponse) Transform(tc *Context) error {
	st := tc.Request.State.EnsureToolCall
	messages := choiceMessages(tc.Provider.Body)
	if len(messages) == 0 {
		st.PendingReminder = true
		tc.Request.State.RetryRequested = true
		return nil
	}

	// Every choice is scanned; one satisfying the contract is enough.
	accepted := false
	needsFinalAnswer := false
	for _, message := range messages {
		switch t.checkMessage(tc, message) {
		case ensureAccepted:
			accepted = true
		case ensureNeedsFinalAnswer:
			needsFinalAnswer = true
		}
	}

	if accepted {
		st.PendingReminder = false
		return nil
	}

	st.PendingReminder = true
	tc.Request.State.RetryRequested = true
	if needsFinalAnswer {
		st.FinalAnswerRequired = true
		tc.Logger.Debug("termination call without content or final_answer, retrying")
	} else {
		tc.Logger.Debug("assistant replied without tool calls, retrying")
	}
	return nil
}

// checkMessage applies the contract to a single choice message, converting
// termination calls into plain answers in place.
func (t *EnsureToolCallResponse) checkMessage(tc *Context, message map[string]any) ensureOutcome {
	st := tc.Request.State.EnsureToolCall
	calls := asSlice(message["tool_calls"])

	if acceptTodoWrite(calls, message["content"], st.AcceptKeywords) {
		return ensureAccepted
	}

	var remaining []any
	var finalAnswer string
	sawTermination := false
	for _, c := range calls {
		call, ok := c.(map[string]any)
		if !ok {
			remaining = append(remaining, c)
			continue
		}
		name := asString(asMap(call["function"])["name"])
		if !isTerminationName(name, st.TerminationToolName) {
			remaining = append(remaining, c)
			continue
		}
		sawTermination = true
		if answer := extractFinalAnswer(asMap(call["function"])["arguments"]); answer != "" {
			finalAnswer = answer
		}
	}

	if sawTermination {
		hasContent := meaningfulContent(message["content"]) ||
			assistantContentSinceLastUser(tc.Request.Messages)

		if !hasContent && finalAnswer == "" {
			return ensureNeedsFinalAnswer
		}
		if !meaningfulContent(message["content"]) && finalAnswer != "" {
			message["content"] = finalAnswer
		}

		if len(remaining) > 0 {
			message["tool_calls"] = remaining
		} else {
			delete(message, "tool_calls")
			if !meaningfulContent(message["content"]) {
				message["content"] = nil
				delete(message, "reasoning_content")
				delete(message, "reasoning_summary")
			}
		}
		return ensureAccepted
	}

	if len(remaining) == 0 {
		return ensureUnmet
	}
	return ensureAccepted
}

// acceptTodoWrite accepts a lone TodoWrite call as termination when the
// assistant text carries one of the accept keywords.
func acceptTodoWrite(calls []any, content any, keywords []string) bool {
	if len(calls) != 1 {
		return false
	}
	call, ok := calls[0].(map[string]any)
	if !ok {
		return false
	}
	if asString(asMap(call["function"])["name"]) != "TodoWrite" {
		return false
	}
	text := strings.ToLower(contentText(content))
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func isTerminationName(name, terminationTool string) bool {
	if name == "" {
		return false
	}
	lower := strings.ToLower(name)
	return lower == strings.ToLower(terminationTool) ||
		lower == "final" ||
		terminationNamePattern.MatchString(name)
}

// extractFinalAnswer pulls a non-empty answer string out of termination-call
// arguments: any key matching the final-answer pattern counts, and a single
// {"raw": ...} nesting is unwrapped.
func extractFinalAnswer(rawArgs any) string {
	args := parseArguments(rawArgs)
	if args == nil {
		return ""
	}
	for key, value := range args {
		if !finalAnswerKeyPattern.MatchString(key) {
			continue
		}
		switch v := value.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return v
			}
		case map[string]any:
			if raw, ok := v["raw"].(string); ok && strings.TrimSpace(raw) != "" {
				return raw
			}
		}
	}
	return ""
}

func parseArguments(raw any) map[string]any {
	switch v := raw.(type) {
	case map[string]any:
		return v
	case string:
		return parseJSONObject(v)
	default:
		return nil
	}
}

// meaningfulContent reports whether a content value carries real text: a
// non-blank string, an array with at least one non-blank string or text
// entry, or any non-empty object.
func meaningfulContent(content any) bool {
	switch v := content.(type) {
	case string:
		return strings.TrimSpace(v) != ""
	case []any:
		for _, e := range v {
			switch entry := e.(type) {
			case string:
				if strings.TrimSpace(entry) != "" {
					return true
				}
			case map[string]any:
				if strings.TrimSpace(asString(entry["text"])) != "" {
					return true
				}
			}
		}
		return false
	case map[string]any:
		return len(v) > 0
	default:
		return false
	}
}

func contentText(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		var out strings.Builder
		for _, e := range v {
			switch entry := e.(type) {
			case string:
				out.WriteString(entry)
			case map[string]any:
				out.WriteString(asString(entry["text"]))
			}
		}
		return out.String()
	default:
		return ""
	}
}
