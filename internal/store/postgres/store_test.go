package postgres_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/studymate/daily-digest/internal/store"
	"github.com/studymate/daily-digest/internal/store/postgres"
)

// ─── TEST INFRASTRUCTURE ──────────────────────────────────────────────────────

// openTestDB returns a *sql.DB from DATABASE_URL with the schema applied.
// Skips if the env var is not set so the suite still passes without Postgres.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping store integration tests")
	}
	pool, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if err := pool.PingContext(context.Background()); err != nil {
		pool.Close()
		t.Fatalf("ping: %v", err)
	}
	if _, err := pool.ExecContext(context.Background(), postgres.Schema); err != nil {
		pool.Close()
		t.Fatalf("apply schema: %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	return pool
}

// seedSchedule inserts a schedule row and removes it when the test ends.
func seedSchedule(t *testing.T, pool *sql.DB, userID, doc string) {
	t.Helper()
	ctx := context.Background()
	if _, err := pool.ExecContext(ctx,
		`INSERT INTO email_schedules (user_id, doc) VALUES ($1, $2::jsonb)`, userID, doc); err != nil {
		t.Fatalf("seed schedule: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.ExecContext(ctx, `DELETE FROM email_schedules WHERE user_id=$1`, userID)
	})
}

func testUserID(t *testing.T) string {
	return fmt.Sprintf("test_%s_%d", t.Name(), time.Now().UnixNano())
}

// ─── ListSchedules ────────────────────────────────────────────────────────────

func TestListSchedules_NormalizesLegacyFields(t *testing.T) {
	pool := openTestDB(t)
	userID := testUserID(t)
	seedSchedule(t, pool, userID,
		`{"email":"ada@example.com","emailEnabled":true,"name":"Ada","interestedTopics":["Lecture Notes"]}`)

	st := postgres.New(pool)
	schedules, err := st.ListSchedules(context.Background())
	if err != nil {
		t.Fatalf("ListSchedules: %v", err)
	}

	for _, s := range schedules {
		if s.UserID != userID {
			continue
		}
		if s.DisplayName != "Ada" {
			t.Errorf("display name: got %q", s.DisplayName)
		}
		if len(s.SelectedTopics) != 1 || s.SelectedTopics[0] != "Lecture Notes" {
			t.Errorf("topics: got %v", s.SelectedTopics)
		}
		if s.LastEmailSent != nil {
			t.Errorf("expected no lastEmailSent, got %v", s.LastEmailSent)
		}
		return
	}
	t.Fatalf("seeded schedule %s not returned", userID)
}

// ─── MarkEmailSent ────────────────────────────────────────────────────────────

func TestMarkEmailSent_SetsTimestamp(t *testing.T) {
	pool := openTestDB(t)
	userID := testUserID(t)
	seedSchedule(t, pool, userID, `{"email":"ada@example.com","emailEnabled":true}`)

	st := postgres.New(pool)
	if err := st.MarkEmailSent(context.Background(), userID); err != nil {
		t.Fatalf("MarkEmailSent: %v", err)
	}

	var lastSent sql.NullTime
	if err := pool.QueryRowContext(context.Background(),
		`SELECT last_email_sent FROM email_schedules WHERE user_id=$1`, userID).Scan(&lastSent); err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !lastSent.Valid {
		t.Fatal("expected last_email_sent to be set")
	}
}

func TestMarkEmailSent_NeverMovesBackwards(t *testing.T) {
	pool := openTestDB(t)
	userID := testUserID(t)
	seedSchedule(t, pool, userID, `{"email":"ada@example.com","emailEnabled":true}`)

	future := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)
	if _, err := pool.ExecContext(context.Background(),
		`UPDATE email_schedules SET last_email_sent=$2 WHERE user_id=$1`, userID, future); err != nil {
		t.Fatalf("seed future timestamp: %v", err)
	}

	st := postgres.New(pool)
	if err := st.MarkEmailSent(context.Background(), userID); err != nil {
		t.Fatalf("MarkEmailSent: %v", err)
	}

	var lastSent time.Time
	if err := pool.QueryRowContext(context.Background(),
		`SELECT last_email_sent FROM email_schedules WHERE user_id=$1`, userID).Scan(&lastSent); err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !lastSent.Equal(future) {
		t.Errorf("expected %v to be preserved, got %v", future, lastSent)
	}
}

func TestMarkEmailSent_UnknownUserReturnsErrNotFound(t *testing.T) {
	pool := openTestDB(t)
	st := postgres.New(pool)

	err := st.MarkEmailSent(context.Background(), testUserID(t))
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// ─── DailyStats ───────────────────────────────────────────────────────────────

func TestDailyStats_MissingRowsAreZero(t *testing.T) {
	pool := openTestDB(t)
	st := postgres.New(pool)

	stats, err := st.DailyStats(context.Background(), testUserID(t), time.Now().UTC())
	if err != nil {
		t.Fatalf("DailyStats: %v", err)
	}
	if stats.Sessions != 0 || stats.StudyMinutes != 0 || stats.CurrentStreak != 0 {
		t.Errorf("expected zero stats, got %+v", stats)
	}
}

func TestDailyStats_MergesProfileAndAggregate(t *testing.T) {
	pool := openTestDB(t)
	ctx := context.Background()
	userID := testUserID(t)
	day := time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC)

	if _, err := pool.ExecContext(ctx,
		`INSERT INTO user_profiles (user_id, doc) VALUES ($1, '{"currentStreak":5}'::jsonb)`, userID); err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	if _, err := pool.ExecContext(ctx,
		`INSERT INTO daily_stats (user_id, day, doc) VALUES ($1, $2, '{"studySessions":3,"totalMinutes":90,"quizzesTaken":2}'::jsonb)`,
		userID, "2026-02-14"); err != nil {
		t.Fatalf("seed stats: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.ExecContext(ctx, `DELETE FROM user_profiles WHERE user_id=$1`, userID)
		_, _ = pool.ExecContext(ctx, `DELETE FROM daily_stats WHERE user_id=$1`, userID)
	})

	st := postgres.New(pool)
	stats, err := st.DailyStats(ctx, userID, day)
	if err != nil {
		t.Fatalf("DailyStats: %v", err)
	}
	if stats.Sessions != 3 || stats.StudyMinutes != 90 || stats.QuizzesCompleted != 2 {
		t.Errorf("counters: got %+v", stats)
	}
	if stats.CurrentStreak != 5 {
		t.Errorf("streak: got %d", stats.CurrentStreak)
	}
}

// ─── GetSchedule ──────────────────────────────────────────────────────────────

func TestGetSchedule_ReadsOneRecord(t *testing.T) {
	pool := openTestDB(t)
	userID := testUserID(t)
	seedSchedule(t, pool, userID, `{"email":"ada@example.com","emailEnabled":true,"userName":"Ada"}`)

	st := postgres.New(pool)
	got, err := st.GetSchedule(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetSchedule: %v", err)
	}
	if got.UserID != userID || got.Email != "ada@example.com" || got.DisplayName != "Ada" {
		t.Errorf("unexpected schedule %+v", got)
	}
}

func TestGetSchedule_MissingIsNotFound(t *testing.T) {
	pool := openTestDB(t)
	st := postgres.New(pool)
	if _, err := st.GetSchedule(context.Background(), testUserID(t)); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
