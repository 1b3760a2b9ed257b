// SPDX-License-Identifier: Apache-2.0

package objectstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lexiupon/ontologia/pkg/model"
)

func commitEntity(t *testing.T, ctx context.Context, s *Store, commitID int64, typeName, key string, fields map[string]any) {
	t.Helper()
	require.NoError(t, s.AppendChange(ctx, commitID, model.ChangeRecord{
		Kind: model.ChangeEntityInsert, TypeName: typeName, EntityKey: key, Fields: fields, SchemaVersionID: 1,
	}))
}

func TestBeginCommitRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	commitID, err := s.BeginWrite(ctx, map[string]string{"author": "test"})
	require.NoError(t, err)
	require.Equal(t, int64(1), commitID)

	commitEntity(t, ctx, s, commitID, "Person", "p1", map[string]any{"name": "Ada"})
	require.NoError(t, s.CommitTransaction(ctx, commitID))

	head, existed, err := s.Head(ctx)
	require.NoError(t, err)
	require.True(t, existed)
	require.Equal(t, commitID, head)

	changes, err := s.ListChanges(ctx, commitID)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.Equal(t, "p1", changes[0].EntityKey)
	require.Equal(t, "Ada", changes[0].Fields["name"])

	commit, err := s.GetCommit(ctx, commitID)
	require.NoError(t, err)
	require.Equal(t, "test", commit.Metadata["author"])

	n, err := s.CountOperations(ctx, commitID)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestMultipleCommitsChainManifests(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	c1, err := s.BeginWrite(ctx, nil)
	require.NoError(t, err)
	commitEntity(t, ctx, s, c1, "Person", "p1", map[string]any{"name": "Ada"})
	require.NoError(t, s.CommitTransaction(ctx, c1))

	c2, err := s.BeginWrite(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, c1+1, c2)
	commitEntity(t, ctx, s, c2, "Person", "p2", map[string]any{"name": "Grace"})
	require.NoError(t, s.CommitTransaction(ctx, c2))

	commits, err := s.ListCommits(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, commits, 2)
	require.Equal(t, c1, commits[0].CommitID)
	require.Equal(t, c2, commits[1].CommitID)
}

func TestAbortWriteDiscardsPending(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	commitID, err := s.BeginWrite(ctx, nil)
	require.NoError(t, err)
	commitEntity(t, ctx, s, commitID, "Person", "p1", nil)
	require.NoError(t, s.AbortWrite(commitID))

	_, existed, err := s.Head(ctx)
	require.NoError(t, err)
	require.False(t, existed)

	err = s.AppendChange(ctx, commitID, model.ChangeRecord{Kind: model.ChangeEntityInsert, TypeName: "Person", EntityKey: "p2"})
	require.Error(t, err)
}

func TestCommitTransactionRebasesOnHeadRace(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	c1, err := s.BeginWrite(ctx, nil)
	require.NoError(t, err)
	commitEntity(t, ctx, s, c1, "Person", "p1", nil)

	// Simulate a second writer committing on top of an empty store while
	// c1's write is still open: it should take commit 1, forcing c1 to
	// rebase onto commit 2 instead of losing the CAS outright.
	other := NewStore(s.api, s.bucket, s.prefix)
	co, err := other.BeginWrite(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), co)
	commitEntity(t, ctx, other, co, "Person", "p2", nil)
	require.NoError(t, other.CommitTransaction(ctx, co))

	require.NoError(t, s.CommitTransaction(ctx, c1))

	head, _, err := s.Head(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), head)

	commits, err := s.ListCommits(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, commits, 2)
}
