package transform

import (
	"encoding/json"
	"strings"

	"github.com/modelrelay/modelrelay/pkg/uir"
)

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

// choiceMessages collects the message object of every choice in an
// OpenAI-compatible body, preserving order.
func choiceMessages(body map[string]any) []map[string]any {
	var out []map[string]any
	for _, c := range asSlice(body["choices"]) {
		choice, ok := c.(map[string]any)
		if !ok {
			continue
		}
		if message := asMap(choice["message"]); message != nil {
			out = append(out, message)
		}
	}
	return out
}

// firstChoiceMessage digs out choices[0].message from an OpenAI-compatible
// body, or nil.
func firstChoiceMessage(body map[string]any) map[string]any {
	choices := asSlice(body["choices"])
	if len(choices) == 0 {
		return nil
	}
	choice, ok := choices[0].(map[string]any)
	if !ok {
		return nil
	}
	return asMap(choice["message"])
}

func parseJSONObject(raw string) map[string]any {
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

// assistantContentSinceLastUser reports whether any assistant turn after the
// last user message already carries non-blank text.
func assistantContentSinceLastUser(messages []uir.Message) bool {
	lastUser := -1
	for i, m := range messages {
		if m.Role == uir.RoleUser {
			lastUser = i
		}
	}
	for _, m := range messages[lastUser+1:] {
		if m.Role != uir.RoleAssistant {
			continue
		}
		if strings.TrimSpace(uir.TextContent(m.Content)) != "" {
			return true
		}
	}
	return false
}
