package clients

import (
	"encoding/json"
	"fmt"

	"github.com/modelrelay/modelrelay/pkg/uir"
)

// decodeBody parses raw JSON into a generic map, preserving the original
// shape for metadata capture.
func decodeBody(body []byte) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	return m, nil
}

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

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func floatPtr(v any) *float64 {
	if f, ok := v.(float64); ok {
		return &f
	}
	return nil
}

func intPtr(v any) *int {
	if f, ok := v.(float64); ok {
		n := int(f)
		return &n
	}
	return nil
}

// stringifyArguments normalizes tool-call arguments: real-world SDKs send
// either a JSON string or an inline object.
func stringifyArguments(v any) string {
	switch a := v.(type) {
	case nil:
		return "{}"
	case string:
		if a == "" {
			return "{}"
		}
		return a
	default:
		data, err := json.Marshal(a)
		if err != nil {
			return "{}"
		}
		return string(data)
	}
}

// contentBlocks parses a message content field that may be a plain string or
// an array of content parts. Parts without a type default to text when a
// text field exists.
func contentBlocks(raw any) []uir.ContentBlock {
	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		if v == "" {
			return nil
		}
		return []uir.ContentBlock{uir.TextBlock(v)}
	case []any:
		var blocks []uir.ContentBlock
		for _, part := range v {
			switch p := part.(type) {
			case string:
				blocks = append(blocks, uir.TextBlock(p))
			case map[string]any:
				if b, ok := contentBlockFromPart(p); ok {
					blocks = append(blocks, b)
				}
			}
		}
		return blocks
	default:
		return nil
	}
}

func contentBlockFromPart(part map[string]any) (uir.ContentBlock, bool) {
	partType := asString(part["type"])
	if partType == "" {
		if _, ok := part["text"]; ok {
			partType = "text"
		}
	}

	switch partType {
	case "text", "input_text", "output_text":
		return uir.TextBlock(asString(part["text"])), true

	case "image_url":
		// OpenAI shape: {type:"image_url", image_url:{url}}.
		if img := asMap(part["image_url"]); img != nil {
			if url := asString(img["url"]); url != "" {
				return uir.ContentBlock{Type: uir.ContentImageURL, URL: url}, true
			}
		}
		if url := asString(part["url"]); url != "" {
			return uir.ContentBlock{Type: uir.ContentImageURL, URL: url}, true
		}
		return uir.ContentBlock{}, false

	case "input_image":
		if url := asString(part["image_url"]); url != "" {
			return uir.ContentBlock{Type: uir.ContentImageURL, URL: url}, true
		}
		return uir.ContentBlock{}, false

	default:
		// Unknown part: preserve as a json block rather than dropping it.
		if len(part) == 0 {
			return uir.ContentBlock{}, false
		}
		return uir.ContentBlock{Type: uir.ContentJSON, Data: part}, true
	}
}

// renderedToolCalls maps UIR tool calls to OpenAI wire shape, guaranteeing a
// non-empty id for every call.
func renderedToolCalls(requestID string, calls []uir.ToolCall) []any {
	if len(calls) == 0 {
		return nil
	}
	out := make([]any, 0, len(calls))
	for i, tc := range calls {
		id := tc.ID
		if id == "" {
			id = uir.NewToolCallID(requestID, i)
		}
		out = append(out, map[string]any{
			"id":   id,
			"type": "function",
			"function": map[string]any{
				"name":      tc.Name,
				"arguments": tc.Arguments,
			},
		})
	}
	return out
}

// reasoningText concatenates reasoning item text for dialects that carry
// reasoning as a single field.
func reasoningText(items []*uir.OutputItem) string {
	var out string
	for _, item := range items {
		for _, b := range item.Content {
			if b.Type == uir.ContentReasoning || b.Type == uir.ContentText {
				out += b.Text
			}
		}
	}
	return out
}
