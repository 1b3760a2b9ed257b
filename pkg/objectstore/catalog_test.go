// SPDX-License-Identifier: Apache-2.0

package objectstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiupon/ontologia/pkg/catalog"
	"github.com/lexiupon/ontologia/pkg/model"
)

func TestCreateAndActivateSchemaVersion(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	c1, err := s.BeginWrite(ctx, nil)
	require.NoError(t, err)
	v1, err := s.CreateSchemaVersion(ctx, model.KindEntity, "Customer", []byte(`{"a":1}`), "hash1", "initial")
	require.NoError(t, err)
	require.NoError(t, s.ActivateSchemaVersion(ctx, model.KindEntity, "Customer", v1, c1))
	require.NoError(t, s.CommitTransaction(ctx, c1))

	current, err := s.GetCurrentSchemaVersion(ctx, model.KindEntity, "Customer")
	require.NoError(t, err)
	assert.Equal(t, v1, current.SchemaVersionID)
	assert.Equal(t, "hash1", current.Hash)

	schemas, err := s.ListSchemas(ctx, model.KindEntity)
	require.NoError(t, err)
	assert.Contains(t, schemas, "Customer")
}

func TestActivateSchemaVersionRejectsNonMonotonicActivation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	c1, err := s.BeginWrite(ctx, nil)
	require.NoError(t, err)
	v1, err := s.CreateSchemaVersion(ctx, model.KindEntity, "Customer", []byte(`{}`), "hash1", "initial")
	require.NoError(t, err)
	require.NoError(t, s.ActivateSchemaVersion(ctx, model.KindEntity, "Customer", v1, c1))
	require.NoError(t, s.CommitTransaction(ctx, c1))

	v2, err := s.CreateSchemaVersion(ctx, model.KindEntity, "Customer", []byte(`{}`), "hash2", "second")
	require.NoError(t, err)

	err = s.ActivateSchemaVersion(ctx, model.KindEntity, "Customer", v2, c1)
	require.Error(t, err)
	var target *catalog.ErrActivationNotMonotonic
	require.ErrorAs(t, err, &target)
}

func TestVersionActiveAtResolvesHistoricalWindow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	c1, err := s.BeginWrite(ctx, nil)
	require.NoError(t, err)
	v1, err := s.CreateSchemaVersion(ctx, model.KindEntity, "Customer", []byte(`{}`), "hash1", "initial")
	require.NoError(t, err)
	require.NoError(t, s.ActivateSchemaVersion(ctx, model.KindEntity, "Customer", v1, c1))
	require.NoError(t, s.CommitTransaction(ctx, c1))

	c2, err := s.BeginWrite(ctx, nil)
	require.NoError(t, err)
	v2, err := s.CreateSchemaVersion(ctx, model.KindEntity, "Customer", []byte(`{}`), "hash2", "second")
	require.NoError(t, err)
	require.NoError(t, s.ActivateSchemaVersion(ctx, model.KindEntity, "Customer", v2, c2))
	require.NoError(t, s.CommitTransaction(ctx, c2))

	at1, ok, err := s.VersionActiveAt(ctx, model.KindEntity, "Customer", c1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, v1, at1.SchemaVersionID)

	at2, ok, err := s.VersionActiveAt(ctx, model.KindEntity, "Customer", c2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, v2, at2.SchemaVersionID)

	versions, err := s.ListVersions(ctx, model.KindEntity, "Customer")
	require.NoError(t, err)
	require.Len(t, versions, 2)
}

func TestCreateSchemaVersionRegistersTypeNameOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	_, err := s.CreateSchemaVersion(ctx, model.KindEntity, "Customer", []byte(`{}`), "h1", "initial")
	require.NoError(t, err)
	_, err = s.CreateSchemaVersion(ctx, model.KindEntity, "Customer", []byte(`{}`), "h2", "second")
	require.NoError(t, err)

	schemas, err := s.ListSchemas(ctx, model.KindEntity)
	require.NoError(t, err)
	require.Len(t, schemas, 1)
	assert.Equal(t, "Customer", schemas[0])
}
