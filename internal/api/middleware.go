package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// ─── CRON DETECTION ───────────────────────────────────────────────────────────

// isCron reports whether the request comes from the external scheduler.
func (s *Server) isCron(r *http.Request) bool {
	if s.cfg.CronUserAgent == "" {
		return false
	}
	return strings.Contains(r.UserAgent(), s.cfg.CronUserAgent)
}

// ─── LOGGER MIDDLEWARE ────────────────────────────────────────────────────────

// loggerMiddleware logs each request with method, path, status, and duration.
// Scheduler requests are not logged; they arrive every hour and carry nothing
// worth keeping.
func (s *Server) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.isCron(r) {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// ─── RECOVERER ────────────────────────────────────────────────────────────────

// recoverer turns a panic into a 500 JSON body. The stack trace is included
// only outside production.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			stack := string(debug.Stack())
			s.logger.Error("api: panic in handler",
				"panic", rec,
				"path", r.URL.Path,
				"stack", stack,
				logField(r),
			)

			body := map[string]any{
				"success": false,
				"error":   fmt.Sprint(rec),
			}
			if s.cfg.Env == "development" {
				body["stack"] = stack
			}
			respond(w, http.StatusInternalServerError, body)
		}()

		next.ServeHTTP(w, r)
	})
}

// ─── RESPONSE HELPERS ─────────────────────────────────────────────────────────

// respond writes a JSON body with the given status code.
func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// logField returns a slog.Attr using the request ID for correlation.
func logField(r *http.Request) slog.Attr {
	return slog.String("request_id", middleware.GetReqID(r.Context()))
}
