package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/modelrelay/modelrelay/pkg/clients"
	"github.com/modelrelay/modelrelay/pkg/pipeline"
	"github.com/modelrelay/modelrelay/pkg/uir"
)

// writeStream replays a completed response as server-sent events. The
// pipeline always buffers the full upstream response; streaming clients get
// the result re-chunked in their own dialect: chat.completion.chunk deltas,
// response.output_text deltas, or content_block text deltas.
func (s *Server) writeStream(w http.ResponseWriter, result *pipeline.Result) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)

	switch result.Request.Metadata.ClientFormat {
	case clients.FormatOpenAIChat:
		s.writeChatChunks(w, flusher, result)
	case clients.FormatOpenAIResponses:
		s.writeResponsesChunks(w, flusher, result)
	case clients.FormatAnthropicMessages:
		s.writeMessagesChunks(w, flusher, result)
	default:
		writeFrame(w, flusher, result.Rendered)
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}

// chunkSettings returns the configured piece size and inter-piece delay.
func (s *Server) chunkSettings() (int, time.Duration) {
	size := s.cfg.Streaming.ChunkSize
	if size <= 0 {
		size = 5
	}
	return size, time.Duration(s.cfg.Streaming.Delay) * time.Millisecond
}

// responseText pulls the assistant text out of the normalized response.
func responseText(result *pipeline.Result) string {
	if result.Response == nil {
		return ""
	}
	item := result.Response.MessageItem()
	if item == nil {
		return ""
	}
	return uir.TextContent(item.Content)
}

// writeResponsesChunks replays a Responses-dialect result: output_text
// deltas followed by the completed response envelope.
func (s *Server) writeResponsesChunks(w http.ResponseWriter, flusher http.Flusher, result *pipeline.Result) {
	size, delay := s.chunkSettings()
	for _, piece := range splitRunes(responseText(result), size) {
		writeFrame(w, flusher, map[string]any{
			"type":  "response.output_text.delta",
			"delta": piece,
		})
		if delay > 0 {
			time.Sleep(delay)
		}
	}
	writeFrame(w, flusher, map[string]any{
		"type":     "response.completed",
		"response": result.Rendered,
	})
}

// writeMessagesChunks replays a Messages-dialect result: content_block text
// deltas followed by the full rendered message.
func (s *Server) writeMessagesChunks(w http.ResponseWriter, flusher http.Flusher, result *pipeline.Result) {
	size, delay := s.chunkSettings()
	for _, piece := range splitRunes(responseText(result), size) {
		writeFrame(w, flusher, map[string]any{
			"type":  "content_block_delta",
			"index": 0,
			"delta": map[string]any{"type": "text_delta", "text": piece},
		})
		if delay > 0 {
			time.Sleep(delay)
		}
	}
	writeFrame(w, flusher, result.Rendered)
}

// writeChatChunks renders a buffered chat completion as chat.completion.chunk
// frames: one role chunk, text deltas of the configured size, tool calls,
// then the finish chunk with usage.
func (s *Server) writeChatChunks(w http.ResponseWriter, flusher http.Flusher, result *pipeline.Result) {
	rendered := result.Rendered
	message, _ := asMap(firstChoice(rendered))["message"].(map[string]any)

	chunk := func(delta map[string]any, finishReason any, usage any) map[string]any {
		c := map[string]any{
			"id":      rendered["id"],
			"object":  "chat.completion.chunk",
			"created": rendered["created"],
			"model":   rendered["model"],
			"choices": []any{map[string]any{
				"index":         0,
				"delta":         delta,
				"finish_reason": finishReason,
			}},
		}
		if usage != nil {
			c["usage"] = usage
		}
		return c
	}

	writeFrame(w, flusher, chunk(map[string]any{"role": "assistant"}, nil, nil))

	size, delay := s.chunkSettings()

	if text, ok := message["content"].(string); ok && text != "" {
		for _, piece := range splitRunes(text, size) {
			writeFrame(w, flusher, chunk(map[string]any{"content": piece}, nil, nil))
			if delay > 0 {
				time.Sleep(delay)
			}
		}
	}

	if calls, ok := message["tool_calls"].([]any); ok && len(calls) > 0 {
		writeFrame(w, flusher, chunk(map[string]any{"tool_calls": streamToolCalls(calls)}, nil, nil))
	}

	finish := firstChoice(rendered)["finish_reason"]
	writeFrame(w, flusher, chunk(map[string]any{}, finish, rendered["usage"]))
}

// streamToolCalls adds the index field chunked tool calls carry on the wire.
func streamToolCalls(calls []any) []any {
	out := make([]any, 0, len(calls))
	for i, raw := range calls {
		call := asMap(raw)
		indexed := make(map[string]any, len(call)+1)
		for k, v := range call {
			indexed[k] = v
		}
		indexed["index"] = i
		out = append(out, indexed)
	}
	return out
}

func writeFrame(w http.ResponseWriter, flusher http.Flusher, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	if flusher != nil {
		flusher.Flush()
	}
}

func firstChoice(body map[string]any) map[string]any {
	choices, _ := body["choices"].([]any)
	if len(choices) == 0 {
		return map[string]any{}
	}
	return asMap(choices[0])
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	if m == nil {
		return map[string]any{}
	}
	return m
}

// splitRunes cuts text into pieces of at most size runes.
func splitRunes(text string, size int) []string {
	runes := []rune(text)
	var parts []string
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		parts = append(parts, string(runes[start:end]))
	}
	return parts
}
