// SPDX-License-Identifier: Apache-2.0

package sqlstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotentAndRejectsReinitWithoutForce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db, err := OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, Init(ctx, db, EngineV2, "v1.0.0", false, ""))

	version, initialized, err := ProbeEngineVersion(ctx, db)
	require.NoError(t, err)
	require.True(t, initialized)
	assert.Equal(t, EngineV2, version)

	err = Init(ctx, db, EngineV2, "v1.0.0", false, "")
	require.Error(t, err)

	token := ComputeForceToken(EngineV2)
	require.NoError(t, Init(ctx, db, EngineV2, "v1.1.0", true, token))
}

func TestProbeEngineVersionTreatsFreshDatabaseAsV1(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db, err := OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	version, initialized, err := ProbeEngineVersion(ctx, db)
	require.NoError(t, err)
	assert.False(t, initialized)
	assert.Equal(t, EngineV1, version)
}

func TestOpenUpgradesLegacyV1Layout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db, err := OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, Init(ctx, db, EngineV1, "", false, ""))

	_, err = db.ExecContext(ctx,
		`INSERT INTO schema_versions(type_kind, type_name, canonical_json, hash, creation_commit_id) VALUES (?, ?, ?, ?, ?)`,
		"entity", "Legacy", "{}", "hash", 0)
	require.NoError(t, err)

	require.NoError(t, BackfillV1Activations(ctx, db))

	hasColumn, err := columnExists(ctx, db, "schema_versions", "activation_commit_id")
	require.NoError(t, err)
	assert.True(t, hasColumn)

	var activation int64
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT activation_commit_id FROM schema_versions WHERE type_name = ?`, "Legacy").Scan(&activation))
	assert.Equal(t, int64(0), activation)
}
