// SPDX-License-Identifier: Apache-2.0

package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateComparisonOps(t *testing.T) {
	row := map[string]any{"age": float64(30), "name": "Ada Lovelace", "nickname": nil}

	cases := []struct {
		name string
		cmp  Comparison
		want bool
	}{
		{"eq", Comparison{Path: MustParsePath("$.age"), Op: OpEQ, Value: float64(30)}, true},
		{"ne", Comparison{Path: MustParsePath("$.age"), Op: OpNE, Value: float64(31)}, true},
		{"gt", Comparison{Path: MustParsePath("$.age"), Op: OpGT, Value: float64(20)}, true},
		{"lt-false", Comparison{Path: MustParsePath("$.age"), Op: OpLT, Value: float64(20)}, false},
		{"in", Comparison{Path: MustParsePath("$.age"), Op: OpIN, Value: []any{float64(10), float64(30)}}, true},
		{"is_null-present-nil", Comparison{Path: MustParsePath("$.nickname"), Op: OpIsNull}, true},
		{"is_null-missing", Comparison{Path: MustParsePath("$.missing"), Op: OpIsNull}, true},
		{"is_null-false", Comparison{Path: MustParsePath("$.age"), Op: OpIsNull}, false},
		{"startswith", Comparison{Path: MustParsePath("$.name"), Op: OpStartsWith, Value: "Ada"}, true},
		{"endswith", Comparison{Path: MustParsePath("$.name"), Op: OpEndsWith, Value: "Lovelace"}, true},
		{"contains", Comparison{Path: MustParsePath("$.name"), Op: OpContains, Value: "Love"}, true},
		{"like", Comparison{Path: MustParsePath("$.name"), Op: OpLike, Value: "Ada%"}, true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := Evaluate(c.cmp, row, Endpoints{})
			require.NoError(t, err)
			assert.Equal(t, c.want, got)
		})
	}
}

func TestEvaluateLogical(t *testing.T) {
	row := map[string]any{"age": float64(30), "active": true}
	and := Logical{Op: LogicalAnd, Children: []Filter{
		Comparison{Path: MustParsePath("$.age"), Op: OpGE, Value: float64(18)},
		Comparison{Path: MustParsePath("$.active"), Op: OpEQ, Value: true},
	}}
	got, err := Evaluate(and, row, Endpoints{})
	require.NoError(t, err)
	assert.True(t, got)

	not := Logical{Op: LogicalNot, Children: []Filter{
		Comparison{Path: MustParsePath("$.active"), Op: OpEQ, Value: false},
	}}
	got, err = Evaluate(not, row, Endpoints{})
	require.NoError(t, err)
	assert.True(t, got)
}

func TestEvaluateAnyPath(t *testing.T) {
	row := map[string]any{
		"roles": []any{
			map[string]any{"name": "admin"},
			map[string]any{"name": "viewer"},
		},
	}
	any1 := AnyPath{
		ListPath: MustParsePath("$.roles"),
		Inner:    Comparison{Path: MustParsePath("$.name"), Op: OpEQ, Value: "admin"},
	}
	got, err := Evaluate(any1, row, Endpoints{})
	require.NoError(t, err)
	assert.True(t, got)

	any2 := AnyPath{
		ListPath: MustParsePath("$.roles"),
		Inner:    Comparison{Path: MustParsePath("$.name"), Op: OpEQ, Value: "owner"},
	}
	got, err = Evaluate(any2, row, Endpoints{})
	require.NoError(t, err)
	assert.False(t, got)
}

func TestEvaluateEndpointRoots(t *testing.T) {
	row := map[string]any{}
	endpoints := Endpoints{Left: map[string]any{"name": "Acme"}, Right: map[string]any{"name": "Globex"}}

	left := Comparison{Path: MustParsePath("left.$.name"), Op: OpEQ, Value: "Acme"}
	got, err := Evaluate(left, row, endpoints)
	require.NoError(t, err)
	assert.True(t, got)

	right := Comparison{Path: MustParsePath("right.$.name"), Op: OpEQ, Value: "Acme"}
	got, err = Evaluate(right, row, endpoints)
	require.NoError(t, err)
	assert.False(t, got)
}
