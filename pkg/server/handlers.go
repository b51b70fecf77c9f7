package server

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/modelrelay/modelrelay/pkg/logstore"
	"github.com/modelrelay/modelrelay/pkg/pipeline"
)

const maxRequestBody = 32 << 20

// handleDialect builds the handler for one client dialect route. All three
// routes share the pipeline; only the adapter format differs.
func (s *Server) handleDialect(clientFormat string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read request body", "invalid_request")
			return
		}

		ctx, span := s.obs.Tracer().Start(r.Context(), "proxy.request",
			trace.WithAttributes(attribute.String("client.format", clientFormat)))
		defer span.End()

		start := time.Now()
		result, err := s.controller.Execute(ctx, clientFormat, body, r.Header)
		if err != nil {
			s.logger.Error("pipeline failed", "error", err, "path", r.URL.Path)
			s.metrics.ObserveRequest(clientFormat, http.StatusInternalServerError, time.Since(start))
			writeError(w, http.StatusInternalServerError, err.Error(), "internal_error")
			return
		}

		span.SetAttributes(
			attribute.String("request.id", result.Request.ID),
			attribute.String("request.model", result.Request.State.ResolvedModel),
			attribute.Int("pipeline.attempts", result.Attempts),
		)
		s.metrics.ObserveRequest(string(result.Request.Operation), result.Status, time.Since(start))
		s.metrics.ObserveAttempts(result.Attempts)
		s.recordExchange(r, result)

		if result.Request.Stream && result.Status < 400 {
			s.writeStream(w, result)
			return
		}
		writeJSON(w, result.Status, result.Rendered)
	}
}

// recordExchange queues the completed exchange for the log store.
func (s *Server) recordExchange(r *http.Request, result *pipeline.Result) {
	entry := logstore.Entry{
		RequestID:   result.Request.ID,
		Method:      r.Method,
		URL:         r.URL.Path,
		StatusCode:  result.Status,
		Model:       result.Request.State.ResolvedModel,
		Provider:    result.Provider,
		Operation:   string(result.Request.Operation),
		RequestBody: result.Request.Metadata.ClientRequest,
	}
	if result.Rendered != nil {
		entry.ResponseBody = result.Rendered
	}
	if result.ProviderRequest != nil {
		entry.ProviderRequestBody = result.ProviderRequest
	}
	if result.ProviderResponse != nil {
		entry.ProviderResponseBody = result.ProviderResponse.Body
	}
	s.enqueueLog(entry)
}

func (s *Server) handleListModels(w http.ResponseWriter, _ *http.Request) {
	names := s.router.SortedModels()
	data := make([]map[string]any, 0, len(names))
	for _, name := range names {
		data = append(data, map[string]any{
			"id":       name,
			"object":   "model",
			"owned_by": "modelrelay",
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"object": "list", "data": data})
}

func (s *Server) handleRecentLogs(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "exchange logging is disabled", "logging_disabled")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "logstore_failed")
		return
	}
	if records == nil {
		records = []logstore.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": records})
}

func (s *Server) handleLogSearch(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "exchange logging is disabled", "logging_disabled")
		return
	}
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required", "invalid_request")
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	matches, err := s.store.Search(r.Context(), query, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "search_failed")
		return
	}
	if matches == nil {
		matches = []logstore.Match{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": query, "matches": matches})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"models": len(s.router.Models()),
	})
}
