package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sqlc-dev/pqtype"
	"github.com/studymate/daily-digest/internal/model"
)

const getProfile = `SELECT doc FROM user_profiles WHERE user_id = $1`

const getDailyStats = `SELECT doc FROM daily_stats WHERE user_id = $1 AND day = $2`

// DailyStats reads the profile and the day's aggregate in one snapshot.
// Missing rows produce zero counters.
func (s *Store) DailyStats(ctx context.Context, userID string, day time.Time) (model.DailyStats, error) {
	var (
		profile *model.ProfileDocument
		doc     *model.StatsDocument
	)

	err := s.withReadTx(ctx, func(ctx context.Context, q DBTX) error {
		var err error
		profile, err = getDoc[model.ProfileDocument](ctx, q, getProfile, userID)
		if err != nil {
			return fmt.Errorf("store: get profile: %w", err)
		}
		doc, err = getDoc[model.StatsDocument](ctx, q, getDailyStats, userID, model.StatsDateKey(day))
		if err != nil {
			return fmt.Errorf("store: get daily stats: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.DailyStats{}, err
	}

	return model.Normalize(doc, profile), nil
}

// getDoc loads a single JSONB doc column. It returns (nil, nil) when the row
// is absent or the column is NULL.
func getDoc[T any](ctx context.Context, q DBTX, query string, args ...any) (*T, error) {
	var raw pqtype.NullRawMessage
	err := q.QueryRowContext(ctx, query, args...).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !raw.Valid || len(raw.RawMessage) == 0 {
		return nil, nil
	}

	var out T
	if err := json.Unmarshal(raw.RawMessage, &out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &out, nil
}
