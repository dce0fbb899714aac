// Package digest decides who gets a daily study digest right now, renders it
// and hands it to the email transport. One Run is one batch: a single
// sequential pass over every schedule record.
package digest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/studymate/daily-digest/internal/dedupe"
	"github.com/studymate/daily-digest/internal/email"
	"github.com/studymate/daily-digest/internal/metrics"
	"github.com/studymate/daily-digest/internal/model"
	"github.com/studymate/daily-digest/internal/store"
)

// DefaultSendDelay is the pause after each delivery attempt. It keeps the
// batch under the email provider's rate limit.
const DefaultSendDelay = 100 * time.Millisecond

// JobConfig holds tuning parameters for the Job.
type JobConfig struct {
	// SendDelay is the pause after each delivery attempt. Zero disables it.
	SendDelay time.Duration
}

// RunOptions controls one batch.
type RunOptions struct {
	// Quiet drops all per-record logging. Used for scheduler-triggered runs
	// whose callers penalise noisy output.
	Quiet bool
}

// Result summarises one batch. On a batch-level failure Success is false,
// Err is set and the counters are meaningless.
type Result struct {
	RunID      uuid.UUID
	Success    bool
	Sent       int
	Failed     int
	Skipped    int
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Total is the number of records the batch classified.
func (r Result) Total() int {
	return r.Sent + r.Failed + r.Skipped
}

// outcome is the classification of one record.
type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeSent
	outcomeFailed
)

// Job holds the dependencies for the digest pipeline.
type Job struct {
	schedules store.ScheduleStore
	stats     store.StatsSource
	mailer    email.Sender
	guard     dedupe.Guard
	metrics   *metrics.Metrics
	cfg       JobConfig
	logger    *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

// NewJob constructs a Job. guard and m may be nil.
func NewJob(
	schedules store.ScheduleStore,
	stats store.StatsSource,
	mailer email.Sender,
	guard dedupe.Guard,
	m *metrics.Metrics,
	cfg JobConfig,
	logger *slog.Logger,
) *Job {
	if guard == nil {
		guard = dedupe.Noop{}
	}
	return &Job{
		schedules: schedules,
		stats:     stats,
		mailer:    mailer,
		guard:     guard,
		metrics:   m,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// WithClock replaces the clock. Used by tests.
func (j *Job) WithClock(now func() time.Time) *Job {
	j.now = now
	return j
}

// Run executes one batch:
//
//  1. List every schedule record. Failure here aborts the batch.
//  2. For each record, in order: skip disabled or out-of-window records.
//  3. Fetch yesterday's stats; on error continue with zeroes.
//  4. Render and send. Stamp lastEmailSent only after the provider accepted.
//  5. Pause SendDelay before the next record.
//
// Per-record failures never affect other records.
func (j *Job) Run(ctx context.Context, opts RunOptions) (res Result) {
	res = Result{
		RunID:     uuid.New(),
		StartedAt: j.now().UTC(),
	}

	log := j.logger
	if opts.Quiet {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	log = log.With("run_id", res.RunID)

	defer func() {
		res.FinishedAt = j.now().UTC()
		j.metrics.RecordBatch(res.Success, res.FinishedAt.Sub(res.StartedAt))
	}()

	now := res.StartedAt
	log.Info("digest: batch starting", "time", now.Format(time.RFC3339), "utc_hour", now.Hour())

	schedules, err := j.schedules.ListSchedules(ctx)
	if err != nil {
		log.Error("digest: list schedules failed", "error", err)
		res.Err = fmt.Errorf("digest: list schedules: %w", err)
		return res
	}

	if len(schedules) == 0 {
		log.Info("digest: no email schedules found")
	}

	for _, s := range schedules {
		j.record(&res, j.process(ctx, log, s, now))
	}

	res.Success = true
	log.Info("digest: batch finished",
		"sent", res.Sent,
		"failed", res.Failed,
		"skipped", res.Skipped,
		"total", res.Total(),
	)
	return res
}

// process classifies and, when eligible, delivers one record.
func (j *Job) process(ctx context.Context, log *slog.Logger, s model.Schedule, now time.Time) outcome {
	log = log.With("user_id", s.UserID)

	if !s.EmailEnabled {
		log.Debug("digest: skipping, emails disabled")
		return outcomeSkipped
	}

	if !Eligible(s, now) {
		log.Debug("digest: skipping, not scheduled for this hour",
			"preferred_time", derefOr(s.PreferredTime, "not set"))
		return outcomeSkipped
	}

	// Records without a preferred time go out on every trigger, so only
	// windowed records take a claim. The claim is keyed by the window's day,
	// which for a preferred hour of 0 starts at 23:00 the evening before.
	var out outcome
	if hour, ok := PreferredHour(derefOr(s.PreferredTime, "")); ok {
		day := WindowAt(hour, now).Truncate(24 * time.Hour)
		claimed, err := j.guard.Claim(ctx, s.UserID, day)
		if err != nil {
			log.Warn("digest: dedupe claim failed", "error", err)
		}
		if !claimed {
			log.Info("digest: skipping, already claimed by another batch")
			return outcomeSkipped
		}

		out = j.deliver(ctx, log, s, now)
		if out == outcomeFailed {
			if err := j.guard.Release(ctx, s.UserID, day); err != nil {
				log.Warn("digest: dedupe release failed", "error", err)
			}
		}
	} else {
		out = j.deliver(ctx, log, s, now)
	}

	if j.cfg.SendDelay > 0 {
		j.sleep(ctx, j.cfg.SendDelay)
	}
	return out
}

// RunOne sends the digest to a single user immediately. The send window and
// the same-window guard are ignored, but a disabled record is still skipped
// and a successful send still stamps lastEmailSent. An unknown user fails the
// run with an error wrapping store.ErrNotFound.
func (j *Job) RunOne(ctx context.Context, userID string, opts RunOptions) (res Result) {
	res = Result{
		RunID:     uuid.New(),
		StartedAt: j.now().UTC(),
	}

	log := j.logger
	if opts.Quiet {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	log = log.With("run_id", res.RunID, "user_id", userID)

	defer func() {
		res.FinishedAt = j.now().UTC()
		j.metrics.RecordBatch(res.Success, res.FinishedAt.Sub(res.StartedAt))
	}()

	log.Info("digest: single send starting")

	s, err := j.schedules.GetSchedule(ctx, userID)
	if err != nil {
		log.Error("digest: get schedule failed", "error", err)
		res.Err = fmt.Errorf("digest: get schedule %s: %w", userID, err)
		return res
	}

	out := outcomeSkipped
	if s.EmailEnabled {
		out = j.deliver(ctx, log, s, res.StartedAt)
	} else {
		log.Info("digest: skipping, emails disabled")
	}
	j.record(&res, out)

	res.Success = true
	return res
}

func (j *Job) record(res *Result, out outcome) {
	switch out {
	case outcomeSent:
		res.Sent++
		j.metrics.RecordOutcome(metrics.OutcomeSent)
	case outcomeFailed:
		res.Failed++
		j.metrics.RecordOutcome(metrics.OutcomeFailed)
	default:
		res.Skipped++
		j.metrics.RecordOutcome(metrics.OutcomeSkipped)
	}
}

// deliver fetches stats, renders, sends and records the send.
func (j *Job) deliver(ctx context.Context, log *slog.Logger, s model.Schedule, now time.Time) outcome {
	if s.Email == "" {
		log.Warn("digest: record has no email address")
		return outcomeFailed
	}

	log = log.With("to", s.Email)
	log.Info("digest: sending")

	day := model.StatsDay(now)
	stats, err := j.stats.DailyStats(ctx, s.UserID, day)
	if err != nil {
		log.Warn("digest: stats unavailable, sending zeroes", "date", model.StatsDateKey(day), "error", err)
		stats = model.DailyStats{}
	}

	body, err := RenderBody(s.DisplayName, stats, s.SelectedTopics)
	if err != nil {
		log.Error("digest: render failed", "error", err)
		return outcomeFailed
	}

	err = j.mailer.Send(ctx, email.Message{
		To:      s.Email,
		ToName:  s.DisplayName,
		Subject: Subject,
		HTML:    body,
	})
	if err != nil {
		var rej *email.RejectedError
		if errors.As(err, &rej) {
			log.Error("digest: provider rejected message", "status", rej.StatusCode, "error", err)
		} else {
			log.Error("digest: send failed", "error", err)
		}
		return outcomeFailed
	}

	// The message is out; a failed write-back only risks a duplicate later.
	if err := j.schedules.MarkEmailSent(ctx, s.UserID); err != nil {
		log.Error("digest: could not record lastEmailSent", "error", err)
	}

	log.Info("digest: sent")
	return outcomeSent
}

func derefOr(p *string, fallback string) string {
	if p == nil {
		return fallback
	}
	return *p
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
