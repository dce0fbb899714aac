package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sqlc-dev/pqtype"
	"github.com/studymate/daily-digest/internal/model"
	"github.com/studymate/daily-digest/internal/store"
)

const listSchedules = `
SELECT user_id, doc, last_email_sent
FROM email_schedules
ORDER BY user_id`

const getSchedule = `
SELECT user_id, doc, last_email_sent
FROM email_schedules
WHERE user_id = $1`

// GREATEST ignores NULL in Postgres, so the first stamp lands as now() and
// later stamps can never move the value backwards.
const markEmailSent = `
UPDATE email_schedules
SET last_email_sent = GREATEST(last_email_sent, now())
WHERE user_id = $1`

// ListSchedules returns every schedule record, normalized. The
// last_email_sent column is authoritative over any value left in the
// document by older writers.
func (s *Store) ListSchedules(ctx context.Context) ([]model.Schedule, error) {
	rows, err := s.pool.QueryContext(ctx, listSchedules)
	if err != nil {
		return nil, fmt.Errorf("store: list schedules: %w", err)
	}
	defer rows.Close()

	var out []model.Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sched)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate schedules: %w", err)
	}
	return out, nil
}

// GetSchedule reads one record. A missing row is store.ErrNotFound.
func (s *Store) GetSchedule(ctx context.Context, userID string) (model.Schedule, error) {
	sched, err := scanSchedule(s.pool.QueryRowContext(ctx, getSchedule, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Schedule{}, store.ErrNotFound
	}
	return sched, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanSchedule decodes one (user_id, doc, last_email_sent) row.
func scanSchedule(row rowScanner) (model.Schedule, error) {
	var (
		userID   string
		doc      pqtype.NullRawMessage
		lastSent sql.NullTime
	)
	if err := row.Scan(&userID, &doc, &lastSent); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Schedule{}, err
		}
		return model.Schedule{}, fmt.Errorf("store: scan schedule: %w", err)
	}

	var raw model.ScheduleDocument
	if doc.Valid && len(doc.RawMessage) > 0 {
		if err := json.Unmarshal(doc.RawMessage, &raw); err != nil {
			return model.Schedule{}, fmt.Errorf("store: decode schedule %s: %w", userID, err)
		}
	}
	if lastSent.Valid {
		t := lastSent.Time
		raw.LastEmailSent = &t
	}
	return raw.Normalize(userID), nil
}

// MarkEmailSent stamps last_email_sent with the database server's clock.
func (s *Store) MarkEmailSent(ctx context.Context, userID string) error {
	res, err := s.pool.ExecContext(ctx, markEmailSent, userID)
	if err != nil {
		return fmt.Errorf("store: mark email sent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: mark email sent: rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
