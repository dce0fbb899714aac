// Package api implements the HTTP trigger surface for the digest scheduler.
// Handlers are methods on *Server. The package talks to the worker only
// through the narrow interfaces declared here and in worker.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/studymate/daily-digest/internal/digest"
	"github.com/studymate/daily-digest/internal/worker"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "StudyMate.AI Email Scheduler"

// availableEndpoints is listed in every 404 body.
var availableEndpoints = []string{"/health", "/cron", "/send", "/trigger"}

// BatchRunner runs a batch and waits for its result. *worker.Runner
// satisfies it.
type BatchRunner interface {
	RunSync(ctx context.Context, task worker.Task) (digest.Result, error)
}

// Config holds values read from environment variables at startup.
type Config struct {
	// CronUserAgent is the substring that marks a request as coming from the
	// external scheduler. Such requests get quiet runs and minimal bodies.
	CronUserAgent string

	// Env is "production", "staging", or "development".
	Env string
}

// Server holds all shared dependencies.
type Server struct {
	// runner executes synchronous /send and /trigger batches.
	runner BatchRunner

	// queue receives fire-and-forget /cron batches.
	queue worker.Enqueuer

	// metrics serves /metrics. Nil disables the route.
	metrics http.Handler

	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewServer constructs the Server and wires the chi router. The returned
// http.Handler is ready to pass to http.Server.
func NewServer(
	runner BatchRunner,
	queue worker.Enqueuer,
	metricsHandler http.Handler,
	cfg Config,
	logger *slog.Logger,
) http.Handler {
	s := &Server{
		runner:  runner,
		queue:   queue,
		metrics: metricsHandler,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}

	return s.routes()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	// ── Global middleware ─────────────────────────────────────────────────────
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggerMiddleware)
	r.Use(s.recoverer)

	// ── Health ────────────────────────────────────────────────────────────────
	r.Get("/", s.handleHealth)
	r.Get("/health", s.handleHealth)

	// ── Triggers ──────────────────────────────────────────────────────────────
	r.Get("/cron", s.handleCron)
	r.Get("/send", s.handleSend)
	r.Get("/trigger", s.handleSend)

	// ── Ops ───────────────────────────────────────────────────────────────────
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.NotFound(s.handleNotFound)
	r.MethodNotAllowed(s.handleNotFound)

	return r
}
