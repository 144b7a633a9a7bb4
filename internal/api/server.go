// Package api serves the spool HTTP API: enqueueing, opportunistic drains,
// queue statistics, metrics and a server-sent event stream.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/spool/internal/events"
	"github.com/mattjoyce/spool/internal/metrics"
	"github.com/mattjoyce/spool/internal/queue"
	"github.com/mattjoyce/spool/internal/scheduler"
	"github.com/mattjoyce/spool/internal/webhook"
)

// Queue is the queue surface the API needs.
type Queue interface {
	Enqueue(ctx context.Context, payload map[string]any, transport string) (string, error)
	Stats(ctx context.Context) (queue.Stats, error)
	DeadLetters(ctx context.Context, limit int) ([]queue.DeadLetter, error)
	Replay(ctx context.Context, deadLetterID string) (string, error)
}

// Runner runs one bounded inline pass. *scheduler.Inline implements it.
type Runner interface {
	RunQueue(ctx context.Context) (scheduler.RunResult, error)
	Handled() int
}

// Config holds API server configuration.
type Config struct {
	Listen string
	// APIKey is the bearer token for every protected route.
	APIKey string
	// DrainOnRequest runs an inline pass after each request.
	DrainOnRequest bool
	// Webhooks are mounted outside API key auth; each checks its own signature.
	Webhooks *webhook.Handler
}

// Server is the HTTP API server.
type Server struct {
	config    Config
	queue     Queue
	runner    Runner
	hub       *events.Hub
	metrics   *metrics.Metrics
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a server. runner, hub and m may be nil; the routes that need
// them then answer 503 or are not mounted.
func New(config Config, q Queue, runner Runner, hub *events.Hub, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config:    config,
		queue:     q,
		runner:    runner,
		hub:       hub,
		metrics:   m,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        s.config.Listen,
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		// /events streams indefinitely, so no write timeout.
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen, "drain_on_request", s.config.DrainOnRequest)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the routed handler, for Start and for tests.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	if s.config.DrainOnRequest && s.runner != nil {
		r.Use(s.visitDrainMiddleware)
	}

	r.Get("/healthz", s.handleHealthz)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	if s.config.Webhooks != nil {
		s.config.Webhooks.Mount(r)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/enqueue/{transport}", s.handleEnqueue)
		r.Post("/drain", s.handleDrain)
		r.Get("/stats", s.handleStats)
		r.Get("/dead", s.handleDeadLetters)
		r.Post("/dead/{id}/replay", s.handleReplay)
		r.Get("/events", s.handleEvents)
	})

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
