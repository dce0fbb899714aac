// Package store defines the two read paths and the single write path the
// digest pipeline needs from the document database. Concrete backends live in
// the dynamo and postgres subpackages; both return canonical model types, so
// legacy document shapes never leak past this boundary.
//
// Dependency rule: store imports model only. It never imports digest, email,
// worker or api.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/studymate/daily-digest/internal/model"
)

// ErrNotFound is returned when the schedule record does not exist.
var ErrNotFound = errors.New("store: schedule not found")

// ScheduleStore reads the email_schedules collection and performs the one
// field update the digest is allowed to make.
type ScheduleStore interface {
	// ListSchedules returns every schedule record, normalized. A failure here
	// is batch-fatal for the caller.
	ListSchedules(ctx context.Context) ([]model.Schedule, error)

	// GetSchedule reads one record by user id, normalized.
	GetSchedule(ctx context.Context, userID string) (model.Schedule, error)

	// MarkEmailSent stamps lastEmailSent with the backend's notion of "now".
	// Implementations must never move the stored value backwards.
	MarkEmailSent(ctx context.Context, userID string) error
}

// StatsSource reads one user's aggregates for one UTC day. A missing document
// is not an error: it yields zero counters.
type StatsSource interface {
	DailyStats(ctx context.Context, userID string, day time.Time) (model.DailyStats, error)
}

// Backend bundles both interfaces. The dynamo and postgres stores satisfy it.
type Backend interface {
	ScheduleStore
	StatsSource
}
