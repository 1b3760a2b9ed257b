// SPDX-License-Identifier: Apache-2.0

// Package commitlog defines the backend-agnostic commit log contract (C2):
// a monotonic, append-only record of commits, each carrying a buffered
// change-set that becomes durable atomically. pkg/sqlstore and
// pkg/objectstore each provide a Log backed by their own storage.
package commitlog

import (
	"context"

	"github.com/lexiupon/ontologia/pkg/model"
)

// Log is the operations a storage backend must provide over the commit
// timeline, per spec §4.2.
type Log interface {
	// BeginWrite allocates the next commit id under the write lease and
	// opens a buffer for its change records.
	BeginWrite(ctx context.Context, metadata map[string]string) (int64, error)

	// AppendChange buffers a change record against an open commit. Changes
	// are not visible to readers until CommitTransaction succeeds.
	AppendChange(ctx context.Context, commitID int64, change model.ChangeRecord) error

	// CommitTransaction durably persists every change buffered for
	// commitID and advances HEAD. Either all of a commit's changes become
	// visible, or none do.
	CommitTransaction(ctx context.Context, commitID int64) error

	// ListCommits returns up to limit commits with commit_id > since, in
	// ascending commit order. limit <= 0 means unbounded.
	ListCommits(ctx context.Context, limit int, since int64) ([]model.Commit, error)

	// GetCommit returns a single commit by id.
	GetCommit(ctx context.Context, commitID int64) (model.Commit, error)

	// ListChanges returns every change record belonging to commitID.
	ListChanges(ctx context.Context, commitID int64) ([]model.ChangeRecord, error)

	// CountOperations returns the number of change records in a commit,
	// without materializing them.
	CountOperations(ctx context.Context, commitID int64) (int, error)

	// Head returns the current head commit id, and false if no commit has
	// ever been made.
	Head(ctx context.Context) (int64, bool, error)
}

// WriteBuffer accumulates change records for a single in-flight commit
// before they are made durable, mirroring the teacher's
// marshal-then-insert-then-commit shape in state.Start/state.Complete but
// generalized to an arbitrary number of buffered changes rather than one
// migration row.
type WriteBuffer struct {
	CommitID int64
	Metadata map[string]string
	Changes  []model.ChangeRecord
}

// NewWriteBuffer opens a buffer for commitID.
func NewWriteBuffer(commitID int64, metadata map[string]string) *WriteBuffer {
	return &WriteBuffer{CommitID: commitID, Metadata: metadata}
}

// Append buffers one change record, stamping it with the buffer's commit id.
func (b *WriteBuffer) Append(change model.ChangeRecord) {
	change.CommitID = b.CommitID
	b.Changes = append(b.Changes, change)
}
