package canvas

import (
	"context"
	"database/sql"
	"strings"
)

// DB exposes the internal *sql.DB for tests in canvas_test.
func (s *Store) DB() *sql.DB {
	return s.db
}

// FailExec makes every exec whose query contains substr return err.
func (s *Store) FailExec(substr string, err error) {
	s.hooks.exec = func(ctx context.Context, db execer, query string, args ...any) (sql.Result, error) {
		if strings.Contains(query, substr) {
			return nil, err
		}
		return db.ExecContext(ctx, query, args...)
	}
}

// FailCommit makes every commit return err.
func (s *Store) FailCommit(err error) {
	s.hooks.commit = func(tx *sql.Tx) error {
		_ = tx.Rollback()
		return err
	}
}

// SetOpenDB swaps the driver opener and returns a restore func.
func SetOpenDB(fn func(driver, dsn string) (*sql.DB, error)) func() {
	prev := openDB
	openDB = fn
	return func() { openDB = prev }
}
