package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler enqueues a quiet batch on every tick of a cron expression. It is
// the in-process alternative to an external cron service pinging /cron.
type Scheduler struct {
	cron   *cron.Cron
	spec   string
	logger *slog.Logger
}

// NewScheduler parses spec (standard five-field cron syntax, evaluated in UTC)
// and binds it to enq.
func NewScheduler(spec string, enq Enqueuer, logger *slog.Logger) (*Scheduler, error) {
	c := cron.New(cron.WithLocation(time.UTC))

	_, err := c.AddFunc(spec, func() {
		// Full queue is already counted and logged by the runner.
		_ = enq.Enqueue(context.Background(), Task{Quiet: true, Source: "schedule"})
	})
	if err != nil {
		return nil, fmt.Errorf("worker: parse cron schedule %q: %w", spec, err)
	}

	return &Scheduler{cron: c, spec: spec, logger: logger}, nil
}

// Start begins firing in the background. It returns immediately.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("worker: schedule running", "spec", s.spec, "next", s.Next())
}

// Stop halts the schedule. Ticks already fired have only enqueued work, so
// this returns once the cron goroutine exits.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("worker: schedule stopped")
}

// Next returns the next activation time, or the zero time if none.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
