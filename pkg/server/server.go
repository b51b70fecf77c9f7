// Package server exposes the proxy over HTTP: one route per client dialect,
// plus model listing, log search, health, and metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/modelrelay/modelrelay/pkg/auth"
	"github.com/modelrelay/modelrelay/pkg/clients"
	"github.com/modelrelay/modelrelay/pkg/config"
	"github.com/modelrelay/modelrelay/pkg/logstore"
	"github.com/modelrelay/modelrelay/pkg/observability"
	"github.com/modelrelay/modelrelay/pkg/pipeline"
	"github.com/modelrelay/modelrelay/pkg/ratelimit"
	"github.com/modelrelay/modelrelay/pkg/router"
)

// Server is the HTTP front of the proxy.
type Server struct {
	cfg        config.Config
	controller *pipeline.Controller
	router     *router.Router
	store      *logstore.Store
	metrics    *Metrics
	obs        *observability.Manager
	logger     *slog.Logger

	httpServer *http.Server
	logQueue   chan logstore.Entry
	logDone    chan struct{}
}

// New wires the server. store and obs may be nil, which disables exchange
// logging and tracing respectively.
func New(cfg config.Config, controller *pipeline.Controller, rt *router.Router, store *logstore.Store, obs *observability.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if obs == nil {
		obs, _ = observability.Init(false, "modelrelay")
	}
	s := &Server{
		cfg:        cfg,
		controller: controller,
		router:     rt,
		store:      store,
		metrics:    NewMetrics(),
		obs:        obs,
		logger:     logger,
		logQueue:   make(chan logstore.Entry, cfg.Livestore.BatchSize),
		logDone:    make(chan struct{}),
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) routes() http.Handler {
	verifier := auth.NewVerifier(s.cfg.Auth.APIKeys)
	var limiter *ratelimit.Limiter
	if s.cfg.RateLimit.Enabled {
		limiter = ratelimit.NewLimiter(s.cfg.RateLimit.RequestsPerMinute)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)

	// Health and metrics stay open; everything under /v1 is gated.
	r.Group(func(r chi.Router) {
		r.Use(verifier.Middleware)
		if limiter != nil {
			r.Use(limiter.Middleware)
		}

		r.Post("/v1/chat/completions", s.handleDialect(clients.FormatOpenAIChat))
		r.Post("/v1/responses", s.handleDialect(clients.FormatOpenAIResponses))
		r.Post("/v1/messages", s.handleDialect(clients.FormatAnthropicMessages))

		r.Get("/v1/models", s.handleListModels)
		r.Get("/v1/logs", s.handleRecentLogs)
		r.Get("/v1/logs/search", s.handleLogSearch)
	})

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))

	return r
}

// requestIDMiddleware stamps every response with a correlation id, reusing
// the caller's when present.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

// Start runs the listener and the log writer until the context is canceled,
// then drains the log queue and shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	go s.logWriter()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "address", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		err = s.httpServer.Shutdown(shutdownCtx)
	}

	close(s.logQueue)
	<-s.logDone
	return err
}

// logWriter drains the queue so request handlers never block on disk.
func (s *Server) logWriter() {
	defer close(s.logDone)
	for entry := range s.logQueue {
		if s.store == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if _, err := s.store.Append(ctx, entry); err != nil {
			s.logger.Warn("failed to persist exchange log", "request_id", entry.RequestID, "error", err)
		}
		cancel()
	}
}

// enqueueLog hands an exchange to the writer. Logging never fails or delays
// the client response; a saturated queue drops the entry.
func (s *Server) enqueueLog(entry logstore.Entry) {
	select {
	case s.logQueue <- entry:
	default:
		s.logger.Warn("log queue full, dropping exchange log", "request_id", entry.RequestID)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"message": message, "code": code},
	})
}
