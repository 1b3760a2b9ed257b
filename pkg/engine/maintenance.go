// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"

	"github.com/lexiupon/ontologia/pkg/model"
	"github.com/lexiupon/ontologia/pkg/objectstore"
	"github.com/lexiupon/ontologia/pkg/ontoerrors"
)

// these maintenance operations only make sense against the object-store
// backend's coverage index; the embedded-SQL backend has no such index to
// verify, repair, or compact, per
// test_storage_uri.py::test_compact_on_sqlite_fails and
// test_index_verify_on_sqlite_fails.
const (
	opIndexVerify = "index verify"
	opIndexRepair = "index repair"
	opCompact     = "compact"
)

// IndexVerify walks the object store's manifest chain and reports which
// types' coverage indices lag HEAD or are missing entirely, the `index
// verify` operator command. Fails with *ontoerrors.UnsupportedOnBackendError
// against the sqlite backend.
func (e *Engine) IndexVerify(ctx context.Context, kind model.TypeKind) (objectstore.VerifyReport, error) {
	if e.obj == nil {
		return objectstore.VerifyReport{}, unsupportedOnSQLite(opIndexVerify)
	}
	return e.obj.Verify(ctx, kind)
}

// IndexRepair rebuilds typeName's coverage index, the `index repair
// [--apply]` operator command. With apply=false it returns the plan
// without writing anything.
func (e *Engine) IndexRepair(ctx context.Context, kind model.TypeKind, typeName string, apply bool) (objectstore.RepairPlan, error) {
	if e.obj == nil {
		return objectstore.RepairPlan{}, unsupportedOnSQLite(opIndexRepair)
	}
	return e.obj.Repair(ctx, kind, typeName, !apply)
}

// Compact rewrites typeName's coverage-index entries into a single
// snapshot file, the `compact [--type T] [--apply]` operator command.
func (e *Engine) Compact(ctx context.Context, kind model.TypeKind, typeName string, apply bool) error {
	if e.obj == nil {
		return unsupportedOnSQLite(opCompact)
	}
	if !apply {
		return nil
	}
	return e.obj.Compact(ctx, kind, typeName)
}

func unsupportedOnSQLite(operation string) error {
	return &ontoerrors.UnsupportedOnBackendError{Operation: operation, Backend: "sqlite"}
}
