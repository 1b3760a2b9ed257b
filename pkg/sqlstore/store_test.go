// SPDX-License-Identifier: Apache-2.0

package sqlstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	ctx := context.Background()
	db, err := OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, Init(ctx, db, EngineV2, "v1.0.0", false, ""))

	version, initialized, err := ProbeEngineVersion(ctx, db)
	require.NoError(t, err)
	require.True(t, initialized)

	return &Store{db: db, version: version}
}
