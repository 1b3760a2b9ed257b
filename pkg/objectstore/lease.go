// SPDX-License-Identifier: Apache-2.0

package objectstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lexiupon/ontologia/pkg/lease"
	"github.com/lexiupon/ontologia/pkg/ontoerrors"
)

var _ lease.Coordinator = (*Store)(nil)

type leaseRecord struct {
	OwnerID   string    `json:"owner_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Store) leasePath() string { return s.key("meta", "lease.json") }

func (s *Store) readLease(ctx context.Context) (leaseRecord, string, bool, error) {
	body, etag, err := s.api.Get(ctx, s.leasePath())
	if err != nil {
		if err == ErrNotFound {
			return leaseRecord{}, "", false, nil
		}
		return leaseRecord{}, "", false, err
	}
	var rec leaseRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return leaseRecord{}, "", false, fmt.Errorf("unmarshal lease.json: %w", err)
	}
	return rec, etag, true, nil
}

func (s *Store) AcquireLock(ctx context.Context, ownerID string, leaseTTL time.Duration) (time.Time, error) {
	for attempt := 0; attempt <= maxCatalogCASRetries; attempt++ {
		current, etag, existed, err := s.readLease(ctx)
		if err != nil {
			return time.Time{}, err
		}
		now := time.Now().UTC()
		if existed && current.OwnerID != ownerID && current.ExpiresAt.After(now) {
			return time.Time{}, &ontoerrors.LockContentionError{TimeoutMs: 0}
		}

		expiresAt := now.Add(leaseTTL)
		body, err := json.Marshal(leaseRecord{OwnerID: ownerID, ExpiresAt: expiresAt})
		if err != nil {
			return time.Time{}, err
		}
		_, err = s.api.Put(ctx, s.leasePath(), body, etag, !existed)
		if err == nil {
			return expiresAt, nil
		}
		if err != ErrConditionFailed {
			return time.Time{}, err
		}
		// Someone else raced us to the lease object; re-read and reassess.
	}
	return time.Time{}, &ontoerrors.LockContentionError{TimeoutMs: 0}
}

func (s *Store) RenewLock(ctx context.Context, ownerID string, leaseTTL time.Duration) (time.Time, error) {
	for attempt := 0; attempt <= maxCatalogCASRetries; attempt++ {
		current, etag, existed, err := s.readLease(ctx)
		if err != nil {
			return time.Time{}, err
		}
		if !existed || current.OwnerID != ownerID {
			return time.Time{}, &ontoerrors.LeaseExpiredError{}
		}

		expiresAt := time.Now().UTC().Add(leaseTTL)
		body, err := json.Marshal(leaseRecord{OwnerID: ownerID, ExpiresAt: expiresAt})
		if err != nil {
			return time.Time{}, err
		}
		_, err = s.api.Put(ctx, s.leasePath(), body, etag, false)
		if err == nil {
			return expiresAt, nil
		}
		if err != ErrConditionFailed {
			return time.Time{}, err
		}
	}
	return time.Time{}, &ontoerrors.LeaseExpiredError{}
}

func (s *Store) ReleaseLock(ctx context.Context, ownerID string) error {
	current, _, existed, err := s.readLease(ctx)
	if err != nil {
		return err
	}
	if !existed || current.OwnerID != ownerID {
		return nil
	}
	return s.api.Delete(ctx, s.leasePath())
}

func (s *Store) IsLocked(ctx context.Context) (lease.Lock, bool, error) {
	rec, _, existed, err := s.readLease(ctx)
	if err != nil {
		return lease.Lock{}, false, err
	}
	if !existed || rec.ExpiresAt.Before(time.Now()) {
		return lease.Lock{}, false, nil
	}
	return lease.Lock{OwnerID: rec.OwnerID, ExpiresAt: rec.ExpiresAt}, true, nil
}
