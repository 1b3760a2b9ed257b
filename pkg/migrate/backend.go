// SPDX-License-Identifier: Apache-2.0

// Package migrate implements the migration engine (C8): a plan -> token ->
// apply state machine that materializes rows into new schema versions under
// a held write lease. It is grounded directly on
// _examples/original_source/src/ontologia/migration.py for the token
// algorithm and upgrader-chain composition, and on the teacher's
// pkg/roll/execute.go + pkg/backfill for the acquire-lease /
// start-renewer / rewrite-rows / commit / release shape.
package migrate

import (
	"context"

	"github.com/lexiupon/ontologia/pkg/catalog"
	"github.com/lexiupon/ontologia/pkg/lease"
	"github.com/lexiupon/ontologia/pkg/model"
	"github.com/lexiupon/ontologia/pkg/objectstore"
	"github.com/lexiupon/ontologia/pkg/sqlstore"
)

// RowSnapshot is the backend-agnostic shape Backend.LatestRows returns:
// enough identity plus field state to rewrite a row under a new schema
// version, regardless of which of C5/C6 actually stored it. The row's prior
// schema_version_id isn't carried here: Apply picks the upgrader chain from
// the type's stored version found by the Plan step and runs it on every row,
// not per row.
type RowSnapshot struct {
	EntityKey   string
	LeftKey     string
	RightKey    string
	InstanceKey string
	Fields      map[string]any
}

// Backend is everything the migration engine needs from a storage handle:
// the schema-version catalog (C3), the commit log write path (C2), the
// write-coordination lease (C4), and a way to read a type's current rows.
// *sqlstore.Store and *objectstore.Store already implement every method here
// except LatestRows (whose signature differs between the two backends), so
// SQLBackend/ObjectBackend below only need to adapt that one method.
type Backend interface {
	catalog.Catalog
	lease.Coordinator

	BeginWrite(ctx context.Context, metadata map[string]string) (int64, error)
	AppendChange(ctx context.Context, commitID int64, change model.ChangeRecord) error
	CommitTransaction(ctx context.Context, commitID int64) error
	AbortWrite(commitID int64) error
	Head(ctx context.Context) (int64, bool, error)

	LatestRows(ctx context.Context, kind model.TypeKind, typeName string) ([]RowSnapshot, error)
}

// SQLBackend adapts *sqlstore.Store to Backend. Every method but LatestRows
// is promoted directly from the embedded store, since sqlstore.Store already
// implements catalog.Catalog, lease.Coordinator, and the commit-log write
// path with identical signatures.
type SQLBackend struct {
	*sqlstore.Store
}

// NewSQLBackend wraps an open sqlstore.Store for use by the migration engine.
func NewSQLBackend(s *sqlstore.Store) SQLBackend { return SQLBackend{Store: s} }

func (b SQLBackend) LatestRows(ctx context.Context, kind model.TypeKind, typeName string) ([]RowSnapshot, error) {
	rows, err := b.Store.LatestRows(ctx, typeName)
	if err != nil {
		return nil, err
	}
	out := make([]RowSnapshot, len(rows))
	for i, r := range rows {
		out[i] = RowSnapshot{
			EntityKey: r.EntityKey, LeftKey: r.LeftKey, RightKey: r.RightKey, InstanceKey: r.InstanceKey,
			Fields: r.Fields,
		}
	}
	return out, nil
}

// ObjectBackend adapts *objectstore.Store to Backend the same way SQLBackend
// adapts *sqlstore.Store; LatestRows additionally drops the store's
// diagnostics, which are a query-time (C7) concern the migration engine has
// no use for.
type ObjectBackend struct {
	*objectstore.Store
}

// NewObjectBackend wraps an open objectstore.Store for use by the migration
// engine.
func NewObjectBackend(s *objectstore.Store) ObjectBackend { return ObjectBackend{Store: s} }

func (b ObjectBackend) LatestRows(ctx context.Context, kind model.TypeKind, typeName string) ([]RowSnapshot, error) {
	rows, _, err := b.Store.LatestRows(ctx, kind, typeName)
	if err != nil {
		return nil, err
	}
	out := make([]RowSnapshot, len(rows))
	for i, r := range rows {
		out[i] = RowSnapshot{
			EntityKey: r.EntityKey, LeftKey: r.LeftKey, RightKey: r.RightKey, InstanceKey: r.InstanceKey,
			Fields: r.Fields,
		}
	}
	return out, nil
}
