// Package kimi salvages misformatted tool calls emitted by Kimi-family
// OpenAI-compatible upstreams: numeric tool names and tool calls embedded as
// sentinel-delimited text inside content or reasoning fields.
package kimi

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"github.com/modelrelay/modelrelay/pkg/uir"
)

var (
	sectionPattern = regexp.MustCompile(`(?s)<\|tool_calls_section_begin\|>(.*?)<\|tool_calls_section_end\|>`)
	callPattern    = regexp.MustCompile(`(?s)<\|tool_call_begin\|>\s*(.*?)\s*<\|tool_call_argument_begin\|>\s*(.*?)\s*<\|tool_call_end\|>`)
)

// RepairStateKey is the request-state key under which an earlier repair
// pass stashes its Metadata. Fix is idempotent, so a second pass over an
// already-repaired body reports zero counts; the stash keeps the first
// pass's counts reachable for whoever normalizes the response.
const RepairStateKey = "kimiRepair"

// Metadata counts what the fixer changed. All zero means the body was clean.
type Metadata struct {
	ExtractedToolCalls     int `json:"extractedToolCalls"`
	ExtractedFromContent   int `json:"extractedFromContent"`
	ExtractedFromReasoning int `json:"extractedFromReasoning"`
	RepairedToolNames      int `json:"repairedToolNames"`
}

// Changed reports whether the fixer touched anything.
func (m Metadata) Changed() bool {
	return m.ExtractedToolCalls > 0 || m.RepairedToolNames > 0
}

// Merge sums two repair passes over the same body.
func (m Metadata) Merge(other Metadata) Metadata {
	return Metadata{
		ExtractedToolCalls:     m.ExtractedToolCalls + other.ExtractedToolCalls,
		ExtractedFromContent:   m.ExtractedFromContent + other.ExtractedFromContent,
		ExtractedFromReasoning: m.ExtractedFromReasoning + other.ExtractedFromReasoning,
		RepairedToolNames:      m.RepairedToolNames + other.RepairedToolNames,
	}
}

// Fix repairs an OpenAI-compatible response body in place. tools are the
// request's declared tools, used to recover numeric tool names. Running Fix
// twice on the same body changes nothing.
func Fix(body map[string]any, tools []uir.Tool) Metadata {
	var meta Metadata

	choices, _ := body["choices"].([]any)
	for _, c := range choices {
		choice, ok := c.(map[string]any)
		if !ok {
			continue
		}
		message, ok := choice["message"].(map[string]any)
		if !ok {
			continue
		}

		if text, ok := message["content"].(string); ok {
			stripped, extracted := extractEmbeddedCalls(text, message)
			if n := len(extracted); n > 0 {
				message["content"] = stripped
				meta.ExtractedToolCalls += n
				meta.ExtractedFromContent += n
			}
		}
		if text, ok := message["reasoning_content"].(string); ok {
			stripped, extracted := extractEmbeddedCalls(text, message)
			if n := len(extracted); n > 0 {
				message["reasoning_content"] = stripped
				meta.ExtractedToolCalls += n
				meta.ExtractedFromReasoning += n
			}
		}

		meta.RepairedToolNames += repairNumericNames(message, tools)
	}

	return meta
}

// extractEmbeddedCalls pulls sentinel-delimited tool calls out of text,
// appends them to the message's tool_calls array, and returns the text with
// the sections removed.
func extractEmbeddedCalls(text string, message map[string]any) (string, []map[string]any) {
	var extracted []map[string]any

	stripped := sectionPattern.ReplaceAllStringFunc(text, func(section string) string {
		for _, m := range callPattern.FindAllStringSubmatch(section, -1) {
			name, args := m[1], m[2]
			if name == "" {
				continue
			}
			extracted = append(extracted, map[string]any{
				"id":   fmt.Sprintf("%s_call_%s", name, randSuffix()),
				"type": "function",
				"function": map[string]any{
					"name":      name,
					"arguments": args,
				},
			})
		}
		return ""
	})

	if len(extracted) > 0 {
		calls, _ := message["tool_calls"].([]any)
		for _, tc := range extracted {
			calls = append(calls, tc)
		}
		message["tool_calls"] = calls
	}

	return stripped, extracted
}

// repairNumericNames renames tool calls whose function name is an integer or
// a numeric string. The repair only fires when exactly one declared tool's
// required-parameter set is a subset of the provided argument keys.
func repairNumericNames(message map[string]any, tools []uir.Tool) int {
	calls, _ := message["tool_calls"].([]any)
	repaired := 0

	for _, c := range calls {
		call, ok := c.(map[string]any)
		if !ok {
			continue
		}
		fn, ok := call["function"].(map[string]any)
		if !ok {
			continue
		}
		if !isNumericName(fn["name"]) {
			continue
		}

		args, _ := fn["arguments"].(string)
		argKeys := argumentKeys(args)
		if argKeys == nil {
			continue
		}

		var match string
		matches := 0
		for _, tool := range tools {
			if requiredSubset(tool, argKeys) {
				match = tool.Name
				matches++
			}
		}
		if matches == 1 {
			fn["name"] = match
			repaired++
		}
	}

	return repaired
}

func isNumericName(name any) bool {
	switch v := name.(type) {
	case float64:
		return true
	case int:
		return true
	case json.Number:
		return true
	case string:
		_, err := strconv.Atoi(v)
		return err == nil
	default:
		return false
	}
}

func argumentKeys(args string) map[string]bool {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(args), &parsed); err != nil {
		return nil
	}
	keys := make(map[string]bool, len(parsed))
	for k := range parsed {
		keys[k] = true
	}
	return keys
}

func requiredSubset(tool uir.Tool, argKeys map[string]bool) bool {
	required, _ := tool.Parameters["required"].([]any)
	for _, r := range required {
		name, _ := r.(string)
		if name == "" || !argKeys[name] {
			return false
		}
	}
	return true
}

const suffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func randSuffix() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "00000000"
	}
	for i, b := range buf {
		buf[i] = suffixAlphabet[int(b)%len(suffixAlphabet)]
	}
	return string(buf)
}
