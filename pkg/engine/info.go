// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"

	"github.com/lexiupon/ontologia/pkg/catalog"
	"github.com/lexiupon/ontologia/pkg/model"
)

// InfoOptions selects what Info computes beyond the always-present HEAD and
// backend identity, per the `info [--stats] [--schema]` operator command.
type InfoOptions struct {
	Stats  bool
	Schema bool
}

// TypeInfo is one type's entry in InfoResult.Types.
type TypeInfo struct {
	Kind model.TypeKind
	Name string

	// RowCount is set only when InfoOptions.Stats is true: counting live
	// rows means reading every row, which is skipped by default.
	RowCount int
	HasStats bool

	// CurrentSchemaHash is set only when InfoOptions.Schema is true.
	CurrentSchemaHash string
	HasSchema         bool
}

// InfoResult is the read-only snapshot `info` reports.
type InfoResult struct {
	StorageURI   string
	Backend      string
	HeadCommitID int64
	HeadKnown    bool
	EngineVer    string
	VersionCheck VersionCompatibility
	Types        []TypeInfo
}

// Info reads HEAD, backend identity, and per-type metadata, per §6's `info`
// operator command.
func (e *Engine) Info(ctx context.Context, opts InfoOptions) (InfoResult, error) {
	result := InfoResult{StorageURI: e.uri, Backend: string(e.backend)}

	head, headKnown, err := e.head(ctx)
	if err != nil {
		return InfoResult{}, err
	}
	result.HeadCommitID = head
	result.HeadKnown = headKnown

	if e.sql != nil {
		result.EngineVer = string(e.sql.EngineVersion())
	}

	versionCheck, err := e.VersionCompatibility(ctx)
	if err != nil {
		return InfoResult{}, err
	}
	result.VersionCheck = versionCheck

	for _, kind := range []model.TypeKind{model.KindEntity, model.KindRelation} {
		names, err := e.listSchemas(ctx, kind)
		if err != nil {
			return InfoResult{}, err
		}
		for _, name := range names {
			ti := TypeInfo{Kind: kind, Name: name}
			if opts.Stats {
				count, err := e.rowCount(ctx, kind, name)
				if err != nil {
					return InfoResult{}, err
				}
				ti.RowCount = count
				ti.HasStats = true
			}
			if opts.Schema {
				v, err := e.currentSchemaVersion(ctx, kind, name)
				if err == nil {
					ti.CurrentSchemaHash = v.Hash
					ti.HasSchema = true
				}
			}
			result.Types = append(result.Types, ti)
		}
	}

	return result, nil
}

func (e *Engine) rowCount(ctx context.Context, kind model.TypeKind, name string) (int, error) {
	if e.sql != nil {
		rows, err := e.sql.LatestRows(ctx, name)
		if err != nil {
			return 0, err
		}
		return len(rows), nil
	}
	rows, _, err := e.obj.LatestRows(ctx, kind, name)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (e *Engine) currentSchemaVersion(ctx context.Context, kind model.TypeKind, name string) (catalog.SchemaVersion, error) {
	if e.sql != nil {
		return e.sql.GetCurrentSchemaVersion(ctx, kind, name)
	}
	return e.obj.GetCurrentSchemaVersion(ctx, kind, name)
}

func (e *Engine) listSchemas(ctx context.Context, kind model.TypeKind) ([]string, error) {
	if e.sql != nil {
		return e.sql.ListSchemas(ctx, kind)
	}
	return e.obj.ListSchemas(ctx, kind)
}

func (e *Engine) head(ctx context.Context) (int64, bool, error) {
	if e.sql != nil {
		return e.sql.Head(ctx)
	}
	return e.obj.Head(ctx)
}
