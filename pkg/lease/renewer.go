// SPDX-License-Identifier: Apache-2.0

package lease

import (
	"context"
	"sync"
	"time"

	"github.com/lexiupon/ontologia/pkg/ontolog"
)

// Renewer runs a background goroutine that renews a lease at lease_ttl/3
// cadence for the duration of a long-running writer (migrations in
// particular), translating the Python prototype's daemon-thread
// _LeaseKeepAlive (migration.py) into a goroutine plus time.Ticker.
type Renewer struct {
	coordinator Coordinator
	ownerID     string
	leaseTTL    time.Duration
	logger      ontolog.Logger

	stop chan struct{}
	done chan struct{}

	mu      sync.Mutex
	lastErr error
}

// NewRenewer constructs a Renewer that is not yet running; call Start.
func NewRenewer(c Coordinator, ownerID string, leaseTTL time.Duration, logger ontolog.Logger) *Renewer {
	if logger == nil {
		logger = ontolog.Noop()
	}
	return &Renewer{
		coordinator: c,
		ownerID:     ownerID,
		leaseTTL:    leaseTTL,
		logger:      logger,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Start launches the renewal goroutine. It is a programmer error to call
// Start twice on the same Renewer.
func (r *Renewer) Start(ctx context.Context) {
	interval := r.leaseTTL / 3
	go r.run(ctx, interval)
}

func (r *Renewer) run(ctx context.Context, interval time.Duration) {
	defer close(r.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			if _, err := r.coordinator.RenewLock(ctx, r.ownerID, r.leaseTTL); err != nil {
				r.logger.Warnf("lease renewal failed for %s: %v", r.ownerID, err)
				r.mu.Lock()
				r.lastErr = err
				r.mu.Unlock()
			}
		}
	}
}

// Stop signals the renewal goroutine to exit and waits for it to do so.
func (r *Renewer) Stop() {
	close(r.stop)
	<-r.done
}

// LastError returns the most recent renewal error, if any, so a caller can
// decide whether its lease is still believed valid before finalizing a
// commit.
func (r *Renewer) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}
