// SPDX-License-Identifier: Apache-2.0

// Package lease implements the write-coordination layer (C4): an exclusive
// lease with renewal and fencing, backend-agnostic so it can be backed by a
// lease row in either the embedded-SQL or object-store backend.
package lease

import (
	"context"
	"time"

	"github.com/cloudflare/backoff"
	"github.com/lexiupon/ontologia/pkg/ontoerrors"
)

// Lock is the lease state a backend persists: an (owner_id, expires_at)
// record.
type Lock struct {
	OwnerID   string
	ExpiresAt time.Time
}

// Coordinator is implemented by a backend's lease storage. Acquire/Renew/
// Release operate on a single named lease (one per storage handle); the
// backend is responsible for making these operations atomic against
// concurrent callers.
type Coordinator interface {
	// AcquireLock succeeds iff no lock exists or the existing lock has
	// expired, returning the new expiry. Otherwise it returns
	// *ontoerrors.LockContentionError.
	AcquireLock(ctx context.Context, ownerID string, leaseTTL time.Duration) (time.Time, error)

	// RenewLock extends the expiry of a lock owned by ownerID. Returns
	// *ontoerrors.LeaseExpiredError if the lock is absent or owned by
	// someone else.
	RenewLock(ctx context.Context, ownerID string, leaseTTL time.Duration) (time.Time, error)

	// ReleaseLock releases a lock held by ownerID. Releasing a lock that
	// is not held is a no-op.
	ReleaseLock(ctx context.Context, ownerID string) error

	// IsLocked reports whether an unexpired lock currently exists, and who
	// holds it.
	IsLocked(ctx context.Context) (Lock, bool, error)
}

// AcquireOptions bounds how long AcquireWithRetry waits for contention to
// clear before giving up.
type AcquireOptions struct {
	LeaseTTL   time.Duration
	Timeout    time.Duration
	BackoffMin time.Duration
	BackoffMax time.Duration
}

// DefaultAcquireOptions mirrors the teacher's db.RDB backoff tuning
// (bounded exponential growth off a short base interval), scaled to lease
// acquisition instead of SQL lock_timeout retries.
func DefaultAcquireOptions(leaseTTL time.Duration) AcquireOptions {
	return AcquireOptions{
		LeaseTTL:   leaseTTL,
		Timeout:    leaseTTL,
		BackoffMin: 100 * time.Millisecond,
		BackoffMax: 2 * time.Second,
	}
}

// AcquireWithRetry retries AcquireLock with the cloudflare/backoff bounded
// exponential backoff until it succeeds or opts.Timeout elapses, at which
// point it returns *ontoerrors.LockContentionError.
func AcquireWithRetry(ctx context.Context, c Coordinator, ownerID string, opts AcquireOptions) (time.Time, error) {
	deadline := time.Now().Add(opts.Timeout)
	b := backoff.New(opts.BackoffMax, opts.BackoffMin)

	for {
		expiresAt, err := c.AcquireLock(ctx, ownerID, opts.LeaseTTL)
		if err == nil {
			return expiresAt, nil
		}

		if time.Now().After(deadline) {
			return time.Time{}, &ontoerrors.LockContentionError{TimeoutMs: int(opts.Timeout.Milliseconds())}
		}

		select {
		case <-ctx.Done():
			return time.Time{}, ctx.Err()
		case <-time.After(b.Duration()):
		}
	}
}
