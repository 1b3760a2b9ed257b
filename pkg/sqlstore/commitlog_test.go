// SPDX-License-Identifier: Apache-2.0

package sqlstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiupon/ontologia/pkg/model"
	"github.com/lexiupon/ontologia/pkg/ontoerrors"
)

func registerType(t *testing.T, s *Store, ctx context.Context, typeName string) int64 {
	t.Helper()

	commitID, err := s.BeginWrite(ctx, map[string]string{"op": "register_type"})
	require.NoError(t, err)

	versionID, err := s.CreateSchemaVersion(ctx, model.KindEntity, typeName, []byte(`{}`), "deadbeef", "initial registration")
	require.NoError(t, err)
	require.NoError(t, s.ActivateSchemaVersion(ctx, model.KindEntity, typeName, versionID, commitID))
	require.NoError(t, s.CommitTransaction(ctx, commitID))

	return versionID
}

func TestAppendChangeAndReadBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	versionID := registerType(t, s, ctx, "Customer")

	commitID, err := s.BeginWrite(ctx, map[string]string{"op": "insert"})
	require.NoError(t, err)

	require.NoError(t, s.AppendChange(ctx, commitID, model.ChangeRecord{
		Kind:            model.ChangeEntityInsert,
		TypeName:        "Customer",
		EntityKey:       "cust-1",
		Fields:          map[string]any{"name": "Ada"},
		SchemaVersionID: versionID,
	}))
	require.NoError(t, s.CommitTransaction(ctx, commitID))

	head, ok, err := s.Head(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, commitID, head)

	changes, err := s.ListChanges(ctx, commitID)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "Ada", changes[0].Fields["name"])

	count, err := s.CountOperations(ctx, commitID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	rows, err := s.LatestRows(ctx, "Customer")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Ada", rows[0].Fields["name"])
	assert.False(t, rows[0].ValidToCommitID.Valid)
}

func TestAppendChangeSupersedesPriorRow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	versionID := registerType(t, s, ctx, "Customer")

	c1, err := s.BeginWrite(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, s.AppendChange(ctx, c1, model.ChangeRecord{
		Kind: model.ChangeEntityInsert, TypeName: "Customer", EntityKey: "cust-1",
		Fields: map[string]any{"name": "Ada"}, SchemaVersionID: versionID,
	}))
	require.NoError(t, s.CommitTransaction(ctx, c1))

	c2, err := s.BeginWrite(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, s.AppendChange(ctx, c2, model.ChangeRecord{
		Kind: model.ChangeEntityInsert, TypeName: "Customer", EntityKey: "cust-1",
		Fields: map[string]any{"name": "Ada Lovelace"}, SchemaVersionID: versionID,
	}))
	require.NoError(t, s.CommitTransaction(ctx, c2))

	latest, err := s.LatestRows(ctx, "Customer")
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "Ada Lovelace", latest[0].Fields["name"])

	asOfFirst, err := s.RowsAsOf(ctx, "Customer", c1)
	require.NoError(t, err)
	require.Len(t, asOfFirst, 1)
	assert.Equal(t, "Ada", asOfFirst[0].Fields["name"])

	history, err := s.HistorySince(ctx, "Customer", c1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, c2, history[0].CommitID)
}

func TestAppendChangeTombstoneClearsLatest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	versionID := registerType(t, s, ctx, "Customer")

	c1, err := s.BeginWrite(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, s.AppendChange(ctx, c1, model.ChangeRecord{
		Kind: model.ChangeEntityInsert, TypeName: "Customer", EntityKey: "cust-1",
		Fields: map[string]any{"name": "Ada"}, SchemaVersionID: versionID,
	}))
	require.NoError(t, s.CommitTransaction(ctx, c1))

	c2, err := s.BeginWrite(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, s.AppendChange(ctx, c2, model.ChangeRecord{
		Kind: model.ChangeEntityTombstone, TypeName: "Customer", EntityKey: "cust-1",
		SchemaVersionID: versionID,
	}))
	require.NoError(t, s.CommitTransaction(ctx, c2))

	latest, err := s.LatestRows(ctx, "Customer")
	require.NoError(t, err)
	assert.Len(t, latest, 0)
}

func TestAppendChangeRejectsStaleSchemaVersion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	staleVersionID := registerType(t, s, ctx, "Customer")

	// Register and activate a second schema version.
	c2, err := s.BeginWrite(ctx, nil)
	require.NoError(t, err)
	newVersionID, err := s.CreateSchemaVersion(ctx, model.KindEntity, "Customer", []byte(`{}`), "cafebabe", "add field")
	require.NoError(t, err)
	require.NoError(t, s.ActivateSchemaVersion(ctx, model.KindEntity, "Customer", newVersionID, c2))
	require.NoError(t, s.CommitTransaction(ctx, c2))

	c3, err := s.BeginWrite(ctx, nil)
	require.NoError(t, err)
	err = s.AppendChange(ctx, c3, model.ChangeRecord{
		Kind: model.ChangeEntityInsert, TypeName: "Customer", EntityKey: "cust-1",
		Fields: map[string]any{"name": "Ada"}, SchemaVersionID: staleVersionID,
	})
	require.Error(t, err)
	var target *ontoerrors.StorageBackendError
	require.ErrorAs(t, err, &target)
	require.NoError(t, s.AbortWrite(c3))
}

func TestAbortWriteDiscardsBufferedChanges(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	versionID := registerType(t, s, ctx, "Customer")

	commitID, err := s.BeginWrite(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, s.AppendChange(ctx, commitID, model.ChangeRecord{
		Kind: model.ChangeEntityInsert, TypeName: "Customer", EntityKey: "cust-1",
		Fields: map[string]any{"name": "Ada"}, SchemaVersionID: versionID,
	}))
	require.NoError(t, s.AbortWrite(commitID))

	latest, err := s.LatestRows(ctx, "Customer")
	require.NoError(t, err)
	assert.Len(t, latest, 0)
}
