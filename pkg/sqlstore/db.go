// SPDX-License-Identifier: Apache-2.0

// Package sqlstore implements the embedded-SQL storage backend (C5):
// row-level persistence with per-row validity intervals in commit-id space,
// backed by an embedded sqlite database.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/cloudflare/backoff"
	_ "modernc.org/sqlite"
)

const (
	maxBackoffDuration = 1 * time.Minute
	backoffInterval    = 20 * time.Millisecond
)

// DB wraps a *sql.DB and retries queries using a bounded exponential backoff
// on sqlite "database is locked"/SQLITE_BUSY errors, mirroring the
// teacher's db.RDB wrapper around lock_timeout errors.
type DB struct {
	conn *sql.DB
}

// OpenDB opens a sqlite database at path (which may be ":memory:") and
// configures it the way an embedded single-writer store wants: WAL
// journaling (so readers never block the writer) plus a generous busy
// timeout and retry wrapper to serialize the one writer that does exist.
// The connection pool deliberately allows more than one connection: a
// BeginWrite/CommitTransaction pair holds one connection's transaction
// open for the lifetime of a commit, and catalog/lease operations issued
// through the same *DB while that commit is in flight must be able to
// check out a different connection rather than deadlock waiting for the
// one the open commit is holding.
func OpenDB(path string) (*DB, error) {
	dsn := path
	if path == ":memory:" {
		// A plain ":memory:" DSN gives every pooled connection its own
		// independent empty database; cache=shared makes them see the same
		// one, which a pool wider than one connection requires.
		dsn = "file::memory:?cache=shared"
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(8)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, err
		}
	}

	return &DB{conn: conn}, nil
}

func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// ExecContext wraps sql.DB.ExecContext, retrying on busy errors.
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	b := backoff.New(maxBackoffDuration, backoffInterval)
	for {
		res, err := db.conn.ExecContext(ctx, query, args...)
		if err == nil || !isBusyErr(err) {
			return res, err
		}
		if err := sleepCtx(ctx, b.Duration()); err != nil {
			return nil, err
		}
	}
}

// QueryContext wraps sql.DB.QueryContext, retrying on busy errors.
func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	b := backoff.New(maxBackoffDuration, backoffInterval)
	for {
		rows, err := db.conn.QueryContext(ctx, query, args...)
		if err == nil || !isBusyErr(err) {
			return rows, err
		}
		if err := sleepCtx(ctx, b.Duration()); err != nil {
			return nil, err
		}
	}
}

// QueryRowContext wraps sql.DB.QueryRowContext. Row-level errors (including
// sql.ErrNoRows) only surface on Scan, so there is nothing to retry here;
// busy errors on a *statement* are surfaced through QueryContext/ExecContext
// instead.
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.conn.QueryRowContext(ctx, query, args...)
}

// WithRetryableTransaction runs fn in a transaction, retrying the whole
// transaction on busy errors.
func (db *DB) WithRetryableTransaction(ctx context.Context, fn func(context.Context, *sql.Tx) error) error {
	b := backoff.New(maxBackoffDuration, backoffInterval)
	for {
		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return err
		}

		err = fn(ctx, tx)
		if err == nil {
			return tx.Commit()
		}

		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return rbErr
		}

		if isBusyErr(err) {
			if sleepErr := sleepCtx(ctx, b.Duration()); sleepErr != nil {
				return sleepErr
			}
			continue
		}

		return err
	}
}

func (db *DB) Close() error { return db.conn.Close() }

// Raw exposes the underlying *sql.DB for callers (migrations, maintenance
// commands) that need direct access outside the retry wrapper.
func (db *DB) Raw() *sql.DB { return db.conn }

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
