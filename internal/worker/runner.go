// Package worker runs digest batches off the HTTP request path. The api
// package holds a worker.Enqueuer and never imports the concrete Runner.
//
// A Runner has exactly one consumer goroutine, so two batches never run at
// the same time inside one process. Asynchronous triggers (cron pings, the
// in-process schedule) are dropped when the queue is full. Synchronous
// triggers wait for their turn and receive the batch result.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/studymate/daily-digest/internal/digest"
	"github.com/studymate/daily-digest/internal/metrics"
)

// ErrQueueFull is returned by Enqueue when the task buffer has no room.
var ErrQueueFull = errors.New("worker: queue is full")

// ─── INTERFACES ───────────────────────────────────────────────────────────────

// Enqueuer is the narrow interface the api package uses for fire-and-forget
// triggers. In tests, any struct with an Enqueue method satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, task Task) error
}

// Batch is the unit of work the runner executes. *digest.Job satisfies it.
type Batch interface {
	Run(ctx context.Context, opts digest.RunOptions) digest.Result
	RunOne(ctx context.Context, userID string, opts digest.RunOptions) digest.Result
}

// Task describes one requested batch.
type Task struct {
	// Quiet suppresses per-record logging inside the batch.
	Quiet bool
	// Source names the trigger ("cron", "schedule", "send") for the logs.
	Source string
	// UserID, when set, sends to that one user and ignores the send window.
	UserID string
}

// ─── RUNNER ───────────────────────────────────────────────────────────────────

// RunnerConfig holds tuning parameters for the Runner. Zero fields take the
// values from DefaultRunnerConfig.
type RunnerConfig struct {
	// QueueSize is the task buffer. Default: 4.
	QueueSize int

	// BatchTimeout bounds one batch. Default: 10 minutes.
	BatchTimeout time.Duration
}

// DefaultRunnerConfig returns production defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		QueueSize:    4,
		BatchTimeout: 10 * time.Minute,
	}
}

type request struct {
	task  Task
	reply chan digest.Result // nil for fire-and-forget tasks
}

// Runner executes batches one at a time.
type Runner struct {
	batch   Batch
	cfg     RunnerConfig
	metrics *metrics.Metrics
	logger  *slog.Logger

	queue chan request
	wg    sync.WaitGroup
}

// NewRunner constructs a Runner. Call Start to begin processing. m may be nil.
func NewRunner(batch Batch, cfg RunnerConfig, m *metrics.Metrics, logger *slog.Logger) *Runner {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultRunnerConfig().QueueSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultRunnerConfig().BatchTimeout
	}

	return &Runner{
		batch:   batch,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
		queue:   make(chan request, cfg.QueueSize),
	}
}

// Enqueue hands a task to the runner without waiting for it. It never blocks;
// when the buffer is full the task is dropped and ErrQueueFull returned.
func (r *Runner) Enqueue(_ context.Context, task Task) error {
	select {
	case r.queue <- request{task: task}:
		r.logger.Debug("worker: enqueued batch", "source", task.Source)
		return nil
	default:
		r.metrics.RecordDropped()
		r.logger.Warn("worker: queue full, dropping batch", "source", task.Source)
		return ErrQueueFull
	}
}

// RunSync queues a task behind any pending ones and waits for its result.
// If ctx ends first the error is returned; a batch that already started
// still runs to completion on the runner.
func (r *Runner) RunSync(ctx context.Context, task Task) (digest.Result, error) {
	req := request{task: task, reply: make(chan digest.Result, 1)}

	select {
	case r.queue <- req:
	case <-ctx.Done():
		return digest.Result{}, ctx.Err()
	}

	select {
	case res := <-req.reply:
		return res, nil
	case <-ctx.Done():
		return digest.Result{}, ctx.Err()
	}
}

// Start runs the consumer loop. It blocks until ctx is cancelled and the
// in-flight batch, if any, has finished. Synchronous tasks already queued at
// that point are still run so their callers get a result; queued
// fire-and-forget tasks are dropped. Call it in a goroutine from main:
//
//	go runner.Start(ctx)
func (r *Runner) Start(ctx context.Context) {
	r.logger.Info("worker: starting", "queue_size", r.cfg.QueueSize, "batch_timeout", r.cfg.BatchTimeout)

	r.wg.Add(1)
	go r.work(ctx)

	r.wg.Wait()
	r.logger.Info("worker: stopped")
}

func (r *Runner) work(ctx context.Context) {
	defer r.wg.Done()

	for {
		// A cancelled ctx wins over a ready queue.
		if ctx.Err() != nil {
			r.drain(ctx)
			return
		}
		select {
		case <-ctx.Done():
			r.drain(ctx)
			return
		case req := <-r.queue:
			res := r.execute(ctx, req.task)
			if req.reply != nil {
				req.reply <- res
			}
		}
	}
}

// drain answers every synchronous request left in the queue.
func (r *Runner) drain(ctx context.Context) {
	for {
		select {
		case req := <-r.queue:
			if req.reply == nil {
				r.logger.Info("worker: stopping, dropping queued batch", "source", req.task.Source)
				continue
			}
			req.reply <- r.execute(ctx, req.task)
		default:
			return
		}
	}
}

// execute runs one batch. Shutdown does not interrupt a batch mid-record;
// only BatchTimeout does.
func (r *Runner) execute(ctx context.Context, task Task) digest.Result {
	batchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.BatchTimeout)
	defer cancel()

	opts := digest.RunOptions{Quiet: task.Quiet}
	var res digest.Result
	if task.UserID != "" {
		res = r.batch.RunOne(batchCtx, task.UserID, opts)
	} else {
		res = r.batch.Run(batchCtx, opts)
	}
	r.report(task, res)
	return res
}

// report is the runner's error sink. Outcomes of fire-and-forget batches
// have no caller, so this is the only place they surface.
func (r *Runner) report(task Task, res digest.Result) {
	log := r.logger.With("source", task.Source, "run_id", res.RunID)
	if task.UserID != "" {
		log = log.With("user_id", task.UserID)
	}
	if !res.Success {
		log.Error("worker: batch failed", "error", res.Err)
		return
	}
	log.Info("worker: batch completed",
		"sent", res.Sent,
		"failed", res.Failed,
		"skipped", res.Skipped,
		"duration", res.FinishedAt.Sub(res.StartedAt),
	)
}
