// Package postgres is the Postgres-backed document store. Each collection is a
// table with a JSONB doc column holding the document exactly as the study app
// wrote it; lastEmailSent is the one field this service owns and lives in its
// own column.
//
// Dependency rule: postgres imports model and store only.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"github.com/studymate/daily-digest/internal/store"
)

// Schema creates the three document tables. It is idempotent.
//
//go:embed schema.sql
var Schema string

// DBTX is satisfied by *sql.DB and *sql.Tx, so every query helper can run
// inside or outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store holds the connection pool. The operation files (schedules.go,
// stats.go) attach methods to this type.
type Store struct {
	pool *sql.DB
}

var _ store.Backend = (*Store)(nil)

// New creates a Store from a live connection pool. The pool must already be
// open and verified before calling New.
func New(pool *sql.DB) *Store {
	return &Store{pool: pool}
}

// txFunc receives a DBTX scoped to a transaction. Returning a non-nil error
// rolls the transaction back.
type txFunc func(ctx context.Context, q DBTX) error

// withReadTx runs fn inside a read-only repeatable-read transaction so that
// multi-document reads (profile + daily aggregate) see one snapshot.
func (s *Store) withReadTx(ctx context.Context, fn txFunc) error {
	tx, err := s.pool.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelRepeatableRead,
		ReadOnly:  true,
	})
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}

	// Roll back on panic so the connection is never left in a broken state.
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("store: fn error: %w; rollback error: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit transaction: %w", err)
	}
	return nil
}
