// SPDX-License-Identifier: Apache-2.0

package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lexiupon/ontologia/pkg/lease"
	"github.com/lexiupon/ontologia/pkg/ontoerrors"
)

var _ lease.Coordinator = (*Store)(nil)

// write_lease is a single-row table (id=1): acquiring the lease is an
// upsert guarded by the row's current owner/expiry, the way the teacher's
// Postgres advisory-lock backend collapses "acquire" into one conditional
// statement rather than a read-then-write race.
func (s *Store) AcquireLock(ctx context.Context, ownerID string, leaseTTL time.Duration) (time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(leaseTTL)

	var err error
	txErr := s.db.WithRetryableTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var currentOwner, currentExpiresStr string
		scanErr := tx.QueryRowContext(ctx, `SELECT owner_id, expires_at FROM write_lease WHERE id = 1`).
			Scan(&currentOwner, &currentExpiresStr)

		switch {
		case errors.Is(scanErr, sql.ErrNoRows):
			_, err = tx.ExecContext(ctx, `INSERT INTO write_lease(id, owner_id, expires_at) VALUES (1, ?, ?)`,
				ownerID, expiresAt.Format(time.RFC3339Nano))
			return err
		case scanErr != nil:
			err = scanErr
			return scanErr
		}

		currentExpires, parseErr := time.Parse(time.RFC3339Nano, currentExpiresStr)
		if parseErr != nil {
			err = parseErr
			return parseErr
		}

		if currentOwner != ownerID && currentExpires.After(now) {
			err = &ontoerrors.LockContentionError{TimeoutMs: 0}
			return err
		}

		_, execErr := tx.ExecContext(ctx,
			`UPDATE write_lease SET owner_id = ?, expires_at = ? WHERE id = 1`,
			ownerID, expiresAt.Format(time.RFC3339Nano))
		err = execErr
		return execErr
	})
	if txErr != nil {
		return time.Time{}, txErr
	}
	if err != nil {
		return time.Time{}, err
	}
	return expiresAt, nil
}

func (s *Store) RenewLock(ctx context.Context, ownerID string, leaseTTL time.Duration) (time.Time, error) {
	expiresAt := time.Now().UTC().Add(leaseTTL)

	res, err := s.db.ExecContext(ctx,
		`UPDATE write_lease SET expires_at = ? WHERE id = 1 AND owner_id = ?`,
		expiresAt.Format(time.RFC3339Nano), ownerID)
	if err != nil {
		return time.Time{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return time.Time{}, err
	}
	if n == 0 {
		return time.Time{}, &ontoerrors.LeaseExpiredError{}
	}
	return expiresAt, nil
}

func (s *Store) ReleaseLock(ctx context.Context, ownerID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM write_lease WHERE id = 1 AND owner_id = ?`, ownerID)
	return err
}

func (s *Store) IsLocked(ctx context.Context) (lease.Lock, bool, error) {
	var ownerID, expiresAtStr string
	err := s.db.QueryRowContext(ctx, `SELECT owner_id, expires_at FROM write_lease WHERE id = 1`).
		Scan(&ownerID, &expiresAtStr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return lease.Lock{}, false, nil
		}
		return lease.Lock{}, false, err
	}

	expiresAt, err := time.Parse(time.RFC3339Nano, expiresAtStr)
	if err != nil {
		return lease.Lock{}, false, err
	}
	if expiresAt.Before(time.Now()) {
		return lease.Lock{}, false, nil
	}
	return lease.Lock{OwnerID: ownerID, ExpiresAt: expiresAt}, true, nil
}
