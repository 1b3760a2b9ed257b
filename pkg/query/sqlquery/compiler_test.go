// SPDX-License-Identifier: Apache-2.0

package sqlquery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiupon/ontologia/pkg/model"
	"github.com/lexiupon/ontologia/pkg/query"
	"github.com/lexiupon/ontologia/pkg/sqlstore"
)

func newTestStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	ctx := context.Background()
	path := t.TempDir() + "/test.db"

	db, err := sqlstore.OpenDB(path)
	require.NoError(t, err)
	require.NoError(t, sqlstore.Init(ctx, db, sqlstore.EngineV2, "v1.0.0", false, ""))
	require.NoError(t, db.Close())

	s, err := sqlstore.Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func registerType(t *testing.T, s *sqlstore.Store, kind model.TypeKind, typeName string) int64 {
	t.Helper()
	ctx := context.Background()

	commitID, err := s.BeginWrite(ctx, map[string]string{"op": "register_type"})
	require.NoError(t, err)
	versionID, err := s.CreateSchemaVersion(ctx, kind, typeName, []byte(`{}`), "hash-"+typeName, "initial")
	require.NoError(t, err)
	require.NoError(t, s.ActivateSchemaVersion(ctx, kind, typeName, versionID, commitID))
	require.NoError(t, s.CommitTransaction(ctx, commitID))
	return versionID
}

func insertEntity(t *testing.T, s *sqlstore.Store, typeName, key string, versionID int64, fields map[string]any) int64 {
	t.Helper()
	ctx := context.Background()

	commitID, err := s.BeginWrite(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, s.AppendChange(ctx, commitID, model.ChangeRecord{
		Kind: model.ChangeEntityInsert, TypeName: typeName, EntityKey: key,
		Fields: fields, SchemaVersionID: versionID,
	}))
	require.NoError(t, s.CommitTransaction(ctx, commitID))
	return commitID
}

func insertRelation(t *testing.T, s *sqlstore.Store, typeName, left, right string, versionID int64, fields map[string]any) int64 {
	t.Helper()
	ctx := context.Background()

	commitID, err := s.BeginWrite(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, s.AppendChange(ctx, commitID, model.ChangeRecord{
		Kind: model.ChangeRelationInsert, TypeName: typeName, LeftKey: left, RightKey: right,
		Fields: fields, SchemaVersionID: versionID,
	}))
	require.NoError(t, s.CommitTransaction(ctx, commitID))
	return commitID
}

func TestExecuteLatestWithComparisonFilter(t *testing.T) {
	s := newTestStore(t)
	v := registerType(t, s, model.KindEntity, "Customer")
	insertEntity(t, s, "Customer", "cust-1", v, map[string]any{"name": "Ada", "age": float64(30)})
	insertEntity(t, s, "Customer", "cust-2", v, map[string]any{"name": "Bea", "age": float64(20)})

	c := New(s)
	res, err := c.Execute(context.Background(), query.Query{
		Kind: query.KindLatest, TypeKind: model.KindEntity, TypeName: "Customer",
		Filter: query.Comparison{Path: query.MustParsePath("$.age"), Op: query.OpGE, Value: float64(25)},
	})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "Ada", res.Rows[0].Fields["name"])
}

func TestExecuteLatestWithLogicalFilter(t *testing.T) {
	s := newTestStore(t)
	v := registerType(t, s, model.KindEntity, "Customer")
	insertEntity(t, s, "Customer", "cust-1", v, map[string]any{"name": "Ada", "age": float64(30)})
	insertEntity(t, s, "Customer", "cust-2", v, map[string]any{"name": "Bea", "age": float64(20)})
	insertEntity(t, s, "Customer", "cust-3", v, map[string]any{"name": "Cleo", "age": float64(40)})

	c := New(s)
	res, err := c.Execute(context.Background(), query.Query{
		Kind: query.KindLatest, TypeKind: model.KindEntity, TypeName: "Customer",
		Filter: query.Logical{Op: query.LogicalAnd, Children: []query.Filter{
			query.Comparison{Path: query.MustParsePath("$.age"), Op: query.OpGE, Value: float64(25)},
			query.Comparison{Path: query.MustParsePath("$.name"), Op: query.OpNE, Value: "Cleo"},
		}},
	})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "Ada", res.Rows[0].Fields["name"])
}

func TestExecuteEndpointComparisonPushesExistsSubquery(t *testing.T) {
	s := newTestStore(t)
	custV := registerType(t, s, model.KindEntity, "Customer")
	orderV := registerType(t, s, model.KindEntity, "Order")
	placedV := registerType(t, s, model.KindRelation, "Placed")

	insertEntity(t, s, "Customer", "cust-1", custV, map[string]any{"tier": "gold"})
	insertEntity(t, s, "Customer", "cust-2", custV, map[string]any{"tier": "silver"})
	insertEntity(t, s, "Order", "order-1", orderV, map[string]any{"total": float64(100)})
	insertEntity(t, s, "Order", "order-2", orderV, map[string]any{"total": float64(200)})
	insertRelation(t, s, "Placed", "cust-1", "order-1", placedV, map[string]any{})
	insertRelation(t, s, "Placed", "cust-2", "order-2", placedV, map[string]any{})

	c := New(s)
	res, err := c.Execute(context.Background(), query.Query{
		Kind: query.KindLatest, TypeKind: model.KindRelation, TypeName: "Placed",
		LeftTypeName: "Customer", RightTypeName: "Order",
		Filter: query.Comparison{Path: query.MustParsePath("left.$.tier"), Op: query.OpEQ, Value: "gold"},
	})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "cust-1", res.Rows[0].LeftKey)
	assert.Equal(t, "order-1", res.Rows[0].RightKey)
}

func TestExecuteAnyPathFallsBackToGoEvaluation(t *testing.T) {
	s := newTestStore(t)
	v := registerType(t, s, model.KindEntity, "Customer")
	insertEntity(t, s, "Customer", "cust-1", v, map[string]any{
		"roles": []any{map[string]any{"name": "admin"}},
	})
	insertEntity(t, s, "Customer", "cust-2", v, map[string]any{
		"roles": []any{map[string]any{"name": "viewer"}},
	})

	c := New(s)
	res, err := c.Execute(context.Background(), query.Query{
		Kind: query.KindLatest, TypeKind: model.KindEntity, TypeName: "Customer",
		Filter: query.AnyPath{
			ListPath: query.MustParsePath("$.roles"),
			Inner:    query.Comparison{Path: query.MustParsePath("$.name"), Op: query.OpEQ, Value: "admin"},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "cust-1", res.Rows[0].EntityKey)
}

func TestExecuteAggregateCount(t *testing.T) {
	s := newTestStore(t)
	v := registerType(t, s, model.KindEntity, "Customer")
	insertEntity(t, s, "Customer", "cust-1", v, map[string]any{"tier": "gold"})
	insertEntity(t, s, "Customer", "cust-2", v, map[string]any{"tier": "gold"})
	insertEntity(t, s, "Customer", "cust-3", v, map[string]any{"tier": "silver"})

	c := New(s)
	res, err := c.Execute(context.Background(), query.Query{
		Kind: query.KindLatest, TypeKind: model.KindEntity, TypeName: "Customer",
		GroupBy:    &query.GroupBy{Paths: []query.FieldPath{query.MustParsePath("$.tier")}},
		Aggregates: []query.Aggregate{{Name: "n", Func: query.AggCount}},
	})
	require.NoError(t, err)
	require.Len(t, res.Aggregates, 2)
	totals := map[string]any{}
	for _, row := range res.Aggregates {
		totals[row.GroupKey[0].(string)] = row.Values["n"]
	}
	assert.Equal(t, int64(2), totals["gold"])
	assert.Equal(t, int64(1), totals["silver"])
}

func TestExecuteOrderByAndLimit(t *testing.T) {
	s := newTestStore(t)
	v := registerType(t, s, model.KindEntity, "Customer")
	insertEntity(t, s, "Customer", "cust-1", v, map[string]any{"age": float64(30)})
	insertEntity(t, s, "Customer", "cust-2", v, map[string]any{"age": float64(20)})
	insertEntity(t, s, "Customer", "cust-3", v, map[string]any{"age": float64(40)})

	c := New(s)
	res, err := c.Execute(context.Background(), query.Query{
		Kind: query.KindLatest, TypeKind: model.KindEntity, TypeName: "Customer",
		OrderBy: []query.OrderBy{{Path: query.MustParsePath("$.age"), Direction: query.Descending}},
		Limit:   2,
	})
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, float64(40), res.Rows[0].Fields["age"])
	assert.Equal(t, float64(30), res.Rows[1].Fields["age"])
}

func TestExecuteAsOfBeforeActivationFlagsDiagnostic(t *testing.T) {
	s := newTestStore(t)
	registerType(t, s, model.KindEntity, "Customer")

	c := New(s)
	res, err := c.Execute(context.Background(), query.Query{
		Kind: query.KindAsOf, TypeKind: model.KindEntity, TypeName: "Customer", AsOfCommit: 0,
	})
	require.NoError(t, err)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, query.ReasonCommitBeforeActivation, res.Diagnostics[0].Reason)
}

func TestExecuteHistorySinceAppliesFilter(t *testing.T) {
	s := newTestStore(t)
	v := registerType(t, s, model.KindEntity, "Customer")
	c0 := insertEntity(t, s, "Customer", "cust-1", v, map[string]any{"age": float64(30)})
	insertEntity(t, s, "Customer", "cust-2", v, map[string]any{"age": float64(20)})

	c := New(s)
	res, err := c.Execute(context.Background(), query.Query{
		Kind: query.KindHistorySince, TypeKind: model.KindEntity, TypeName: "Customer", SinceCommit: c0 - 1,
		Filter: query.Comparison{Path: query.MustParsePath("$.age"), Op: query.OpGE, Value: float64(25)},
	})
	require.NoError(t, err)
	require.Len(t, res.ChangeRows, 1)
	assert.Equal(t, "cust-1", res.ChangeRows[0].EntityKey)
}
