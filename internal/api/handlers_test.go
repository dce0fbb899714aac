package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/studymate/daily-digest/internal/api"
	"github.com/studymate/daily-digest/internal/digest"
	"github.com/studymate/daily-digest/internal/metrics"
	"github.com/studymate/daily-digest/internal/store"
	"github.com/studymate/daily-digest/internal/worker"
)

const cronUA = "Mozilla/5.0 (compatible; cron-job.org; +https://cron-job.org)"

// ─── STUBS ────────────────────────────────────────────────────────────────────

// stubRunner returns a canned result and records the task it was given.
type stubRunner struct {
	result digest.Result
	err    error
	panics bool
	tasks  []worker.Task
}

func (r *stubRunner) RunSync(_ context.Context, task worker.Task) (digest.Result, error) {
	if r.panics {
		panic("store exploded")
	}
	r.tasks = append(r.tasks, task)
	return r.result, r.err
}

// stubQueue records enqueued tasks.
type stubQueue struct {
	enqueued []worker.Task
	err      error
}

func (q *stubQueue) Enqueue(_ context.Context, task worker.Task) error {
	q.enqueued = append(q.enqueued, task)
	return q.err
}

// ─── HELPERS ─────────────────────────────────────────────────────────────────

type testDeps struct {
	runner  *stubRunner
	queue   *stubQueue
	handler http.Handler
}

func newTestServer(t *testing.T, metricsHandler http.Handler) *testDeps {
	t.Helper()

	rn := &stubRunner{result: digest.Result{Success: true, Sent: 2, Failed: 1, Skipped: 5}}
	q := &stubQueue{}
	cfg := api.Config{CronUserAgent: "cron-job.org", Env: "development"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &testDeps{
		runner:  rn,
		queue:   q,
		handler: api.NewServer(rn, q, metricsHandler, cfg, logger),
	}
}

func doRequest(t *testing.T, handler http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(dst); err != nil {
		t.Fatalf("decode response body: %v (raw: %s)", err, rr.Body.String())
	}
}

// ─── GET /health ──────────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	deps := newTestServer(t, nil)

	for _, path := range []string{"/health", "/"} {
		rr := doRequest(t, deps.handler, http.MethodGet, path, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rr.Code)
		}

		var resp struct {
			Status    string `json:"status"`
			Service   string `json:"service"`
			Timestamp string `json:"timestamp"`
		}
		decodeJSON(t, rr, &resp)
		if resp.Status != "ok" || resp.Service != api.ServiceName || resp.Timestamp == "" {
			t.Errorf("%s: unexpected body %+v", path, resp)
		}
	}

	if len(deps.runner.tasks) != 0 || len(deps.queue.enqueued) != 0 {
		t.Error("health check must not trigger a batch")
	}
}

// ─── GET /cron ────────────────────────────────────────────────────────────────

func TestCron_Returns204AndEnqueuesQuietTask(t *testing.T) {
	deps := newTestServer(t, nil)
	rr := doRequest(t, deps.handler, http.MethodGet, "/cron", map[string]string{"User-Agent": cronUA})

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if rr.Body.Len() != 0 {
		t.Errorf("expected empty body, got %q", rr.Body.String())
	}
	if len(deps.queue.enqueued) != 1 || !deps.queue.enqueued[0].Quiet {
		t.Errorf("expected one quiet task, got %+v", deps.queue.enqueued)
	}
	if len(deps.runner.tasks) != 0 {
		t.Error("/cron must not run a batch synchronously")
	}
}

func TestCron_FullQueueStill204(t *testing.T) {
	deps := newTestServer(t, nil)
	deps.queue.err = worker.ErrQueueFull

	rr := doRequest(t, deps.handler, http.MethodGet, "/cron", nil)
	if rr.Code != http.StatusNoContent || rr.Body.Len() != 0 {
		t.Fatalf("expected empty 204, got %d %q", rr.Code, rr.Body.String())
	}
}

// ─── GET /send, GET /trigger ──────────────────────────────────────────────────

func TestSend_FullResponse(t *testing.T) {
	for _, path := range []string{"/send", "/trigger"} {
		t.Run(path, func(t *testing.T) {
			deps := newTestServer(t, nil)
			rr := doRequest(t, deps.handler, http.MethodGet, path, nil)

			if rr.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
			}

			var resp map[string]any
			decodeJSON(t, rr, &resp)
			if resp["success"] != true || resp["sent"] != float64(2) ||
				resp["failed"] != float64(1) || resp["skipped"] != float64(5) {
				t.Errorf("unexpected body %v", resp)
			}
			if _, ok := resp["timestamp"]; !ok {
				t.Error("missing timestamp")
			}
			if _, ok := resp["error"]; ok {
				t.Error("error key should be omitted on success")
			}
			if len(deps.runner.tasks) != 1 || deps.runner.tasks[0].Quiet {
				t.Errorf("expected one verbose run, got %+v", deps.runner.tasks)
			}
		})
	}
}

func TestSend_CronUserAgentGetsMinimalBody(t *testing.T) {
	deps := newTestServer(t, nil)
	rr := doRequest(t, deps.handler, http.MethodGet, "/send", map[string]string{"User-Agent": cronUA})

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got := strings.TrimSpace(rr.Body.String()); got != `{"ok":1,"s":2}` {
		t.Errorf("unexpected body %s", got)
	}
	if !deps.runner.tasks[0].Quiet {
		t.Error("cron user-agent should run quietly")
	}
}

func TestSend_BatchFailureReportedInBody(t *testing.T) {
	deps := newTestServer(t, nil)
	deps.runner.result = digest.Result{Success: false, Err: errors.New("digest: list schedules: permission denied")}

	rr := doRequest(t, deps.handler, http.MethodGet, "/send", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	decodeJSON(t, rr, &resp)
	if resp.Success || !strings.Contains(resp.Error, "permission denied") {
		t.Errorf("unexpected body %+v", resp)
	}
}

func TestSend_RunnerErrorReturns500(t *testing.T) {
	deps := newTestServer(t, nil)
	deps.runner.err = context.DeadlineExceeded

	rr := doRequest(t, deps.handler, http.MethodGet, "/send", nil)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestSend_PanicReturns500JSON(t *testing.T) {
	deps := newTestServer(t, nil)
	deps.runner.panics = true

	rr := doRequest(t, deps.handler, http.MethodGet, "/trigger", nil)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}

	var resp map[string]any
	decodeJSON(t, rr, &resp)
	if resp["success"] != false || resp["error"] != "store exploded" {
		t.Errorf("unexpected body %v", resp)
	}
}

func TestSend_UserQueryTargetsOneUser(t *testing.T) {
	deps := newTestServer(t, nil)
	deps.runner.result = digest.Result{Success: true, Sent: 1}

	rr := doRequest(t, deps.handler, http.MethodGet, "/send?user=u42", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(deps.runner.tasks) != 1 || deps.runner.tasks[0].UserID != "u42" {
		t.Fatalf("expected a single-user task for u42, got %+v", deps.runner.tasks)
	}

	var resp struct {
		Sent int `json:"sent"`
	}
	decodeJSON(t, rr, &resp)
	if resp.Sent != 1 {
		t.Errorf("sent = %d, want 1", resp.Sent)
	}
}

func TestSend_UnknownUserReturns404(t *testing.T) {
	deps := newTestServer(t, nil)
	deps.runner.result = digest.Result{
		Success: false,
		Err:     fmt.Errorf("digest: get schedule ghost: %w", store.ErrNotFound),
	}

	rr := doRequest(t, deps.handler, http.MethodGet, "/send?user=ghost", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	decodeJSON(t, rr, &resp)
	if resp.Success || !strings.Contains(resp.Error, "not found") {
		t.Errorf("unexpected body %+v", resp)
	}
}

// ─── 404 ──────────────────────────────────────────────────────────────────────

func TestNotFound_ListsEndpoints(t *testing.T) {
	deps := newTestServer(t, nil)
	rr := doRequest(t, deps.handler, http.MethodGet, "/nope", nil)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	var resp struct {
		Error              string   `json:"error"`
		AvailableEndpoints []string `json:"availableEndpoints"`
	}
	decodeJSON(t, rr, &resp)
	if resp.Error != "Not found" {
		t.Errorf("error = %q", resp.Error)
	}
	joined := strings.Join(resp.AvailableEndpoints, ",")
	for _, want := range []string{"/health", "/send", "/trigger"} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing %s in %v", want, resp.AvailableEndpoints)
		}
	}
}

// ─── GET /metrics ─────────────────────────────────────────────────────────────

func TestMetrics_ExposedWhenConfigured(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.RecordOutcome(metrics.OutcomeSent)

	deps := newTestServer(t, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	rr := doRequest(t, deps.handler, http.MethodGet, "/metrics", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `digest_emails_total{outcome="sent"} 1`) {
		t.Errorf("metric missing from exposition:\n%s", rr.Body.String())
	}
}

func TestMetrics_AbsentWithoutHandler(t *testing.T) {
	deps := newTestServer(t, nil)
	rr := doRequest(t, deps.handler, http.MethodGet, "/metrics", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
