package api

import (
	"errors"
	"net/http"

	"github.com/studymate/daily-digest/internal/store"
	"github.com/studymate/daily-digest/internal/worker"
)

// ─── GET /health ──────────────────────────────────────────────────────────────

type healthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Service:   ServiceName,
		Timestamp: s.timestamp(),
	})
}

// ─── GET /cron ────────────────────────────────────────────────────────────────

// handleCron queues a quiet batch and returns 204 with an empty body no
// matter what. The scheduler on the other end treats any output as a fault.
func (s *Server) handleCron(w http.ResponseWriter, r *http.Request) {
	// A full queue is counted and logged by the runner.
	_ = s.queue.Enqueue(r.Context(), worker.Task{Quiet: true, Source: "cron"})
	w.WriteHeader(http.StatusNoContent)
}

// ─── GET /send, GET /trigger ──────────────────────────────────────────────────

type sendResponse struct {
	Success   bool   `json:"success"`
	Sent      int    `json:"sent"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
	Timestamp string `json:"timestamp"`
	Error     string `json:"error,omitempty"`
}

// cronResponse is the minimal body for scheduler callers.
type cronResponse struct {
	OK   int `json:"ok"`
	Sent int `json:"s"`
}
// handleSend runs a batch and reports its counts. With ?user=<id> it sends to
// that one user immediately, outside the send window.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	fromCron := s.isCron(r)
	if !fromCron {
		s.logger.Info("api: email send triggered", logField(r))
	}

	task := worker.Task{Quiet: fromCron, Source: "send", UserID: r.URL.Query().Get("user")}
	res, err := s.runner.RunSync(r.Context(), task)
	if err != nil {
		if !fromCron {
			s.logger.Error("api: batch did not complete", "error", err, logField(r))
		}
		respond(w, http.StatusInternalServerError, sendResponse{
			Success:   false,
			Timestamp: s.timestamp(),
			Error:     err.Error(),
		})
		return
	}

	if fromCron {
		respond(w, http.StatusOK, cronResponse{OK: 1, Sent: res.Sent})
		return
	}

	body := sendResponse{
		Success:   res.Success,
		Sent:      res.Sent,
		Failed:    res.Failed,
		Skipped:   res.Skipped,
		Timestamp: s.timestamp(),
	}
	status := http.StatusOK
	if res.Err != nil {
		body.Error = res.Err.Error()
		if errors.Is(res.Err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
	}
	respond(w, status, body)
}

// ─── 404 ──────────────────────────────────────────────────────────────────────

type notFoundResponse struct {
	Error              string   `json:"error"`
	AvailableEndpoints []string `json:"availableEndpoints"`
}

func (s *Server) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusNotFound, notFoundResponse{
		Error:              "Not found",
		AvailableEndpoints: availableEndpoints,
	})
}

// timestampLayout is ISO-8601 in UTC with millisecond precision.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

func (s *Server) timestamp() string {
	return s.now().UTC().Format(timestampLayout)
}
