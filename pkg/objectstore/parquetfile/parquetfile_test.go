// SPDX-License-Identifier: Apache-2.0

package parquetfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiupon/ontologia/pkg/model"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	records := []model.ChangeRecord{
		{CommitID: 1, Kind: model.ChangeEntityInsert, TypeName: "Person", EntityKey: "p1", Fields: map[string]any{"name": "Ada"}, SchemaVersionID: 1},
		{CommitID: 1, Kind: model.ChangeRelationInsert, TypeName: "WorksAt", LeftKey: "p1", RightKey: "c1", InstanceKey: "2024", Fields: map[string]any{"role": "engineer"}, SchemaVersionID: 1},
		{CommitID: 2, Kind: model.ChangeEntityTombstone, TypeName: "Person", EntityKey: "p1"},
	}

	data, err := Encode(records)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	decoded, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, decoded, 3)

	assert.Equal(t, "p1", decoded[0].EntityKey)
	assert.Equal(t, "Ada", decoded[0].Fields["name"])
	assert.Equal(t, "WorksAt", decoded[1].TypeName)
	assert.Equal(t, "engineer", decoded[1].Fields["role"])
	assert.True(t, decoded[2].IsTombstone())
}

func TestEncodeEmptySet(t *testing.T) {
	data, err := Encode(nil)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Empty(t, decoded)
}
