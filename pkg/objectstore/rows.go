// SPDX-License-Identifier: Apache-2.0

package objectstore

import (
	"context"

	"github.com/lexiupon/ontologia/pkg/model"
	"github.com/lexiupon/ontologia/pkg/objectstore/parquetfile"
)

// RowSnapshot is a materialized row, replayed from change records up to a
// query commit, the shape C7's object-store-backed query path consumes.
type RowSnapshot struct {
	TypeKind    model.TypeKind
	TypeName    string
	EntityKey   string
	LeftKey     string
	RightKey    string
	InstanceKey string
	Fields      map[string]any
}

// Diagnostic records an advisory condition surfaced by a read, mirroring
// §4.6's "falls back to walking the manifest chain and records a
// diagnostic warning rather than failing" and §4.7's
// commit_before_activation note.
type Diagnostic struct {
	Reason string
}

// LatestRows returns every row of typeName live at HEAD.
func (s *Store) LatestRows(ctx context.Context, kind model.TypeKind, typeName string) ([]RowSnapshot, []Diagnostic, error) {
	head, existed, err := s.Head(ctx)
	if err != nil {
		return nil, nil, err
	}
	if !existed {
		return nil, nil, nil
	}
	return s.RowsAsOf(ctx, kind, typeName, head)
}

// RowsAsOf replays change records up to commit q and returns the row
// currently live (non-tombstoned) per identity, the object-store
// counterpart of sqlstore's RowsAsOf. It first tries the per-type coverage
// index; if the index's recorded coverage doesn't reach q it falls back to
// walking the full manifest chain and attaches a staleness diagnostic,
// rather than silently serving an incomplete answer.
func (s *Store) RowsAsOf(ctx context.Context, kind model.TypeKind, typeName string, q int64) ([]RowSnapshot, []Diagnostic, error) {
	records, diagnostics, err := s.changeRecordsUpTo(ctx, kind, typeName, q)
	if err != nil {
		return nil, nil, err
	}

	latest := map[[4]string]RowSnapshot{}
	order := make([][4]string, 0, len(records))
	for _, c := range records {
		id := [4]string{c.EntityKey, c.LeftKey, c.RightKey, c.InstanceKey}
		if _, seen := latest[id]; !seen {
			order = append(order, id)
		}
		if c.IsTombstone() {
			delete(latest, id)
			continue
		}
		latest[id] = RowSnapshot{
			TypeKind: kind, TypeName: typeName,
			EntityKey: c.EntityKey, LeftKey: c.LeftKey, RightKey: c.RightKey, InstanceKey: c.InstanceKey,
			Fields: c.Fields,
		}
	}

	out := make([]RowSnapshot, 0, len(latest))
	for _, id := range order {
		if row, ok := latest[id]; ok {
			out = append(out, row)
		}
	}
	return out, diagnostics, nil
}

// HistorySince returns every change record of typeName with commit_id > q,
// in commit order.
func (s *Store) HistorySince(ctx context.Context, kind model.TypeKind, typeName string, q int64) ([]model.ChangeRecord, error) {
	head, existed, err := s.Head(ctx)
	if err != nil {
		return nil, err
	}
	if !existed {
		return nil, nil
	}
	records, _, err := s.changeRecordsUpTo(ctx, kind, typeName, head)
	if err != nil {
		return nil, err
	}
	var out []model.ChangeRecord
	for _, c := range records {
		if c.CommitID > q {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) changeRecordsUpTo(ctx context.Context, kind model.TypeKind, typeName string, q int64) ([]model.ChangeRecord, []Diagnostic, error) {
	paths, diagnostics, err := s.ResolveFiles(ctx, kind, typeName, q)
	if err != nil {
		return nil, nil, err
	}

	var records []model.ChangeRecord
	for _, path := range paths {
		data, err := s.FetchFile(ctx, path)
		if err != nil {
			return nil, nil, err
		}
		decoded, err := parquetfile.Decode(data)
		if err != nil {
			return nil, nil, err
		}
		records = append(records, decoded...)
	}
	return filterUpTo(records, q), diagnostics, nil
}

// ResolveFiles returns the object paths needed to answer a query of
// typeName up to commit q, preferring the coverage index and falling back
// to walking the manifest chain. This is the entry point
// pkg/query/duckquery uses to get a file list it can hand to DuckDB's
// read_parquet directly, rather than decoding through this package's own
// Go-side replay path the way changeRecordsUpTo does for LatestRows et al.
func (s *Store) ResolveFiles(ctx context.Context, kind model.TypeKind, typeName string, q int64) ([]string, []Diagnostic, error) {
	idx, _, indexed, err := s.readIndex(ctx, kind, typeName)
	if indexed && err == nil && idx.MaxIndexedCommit >= q {
		return pathsFromEntries(filterEntriesUpTo(idx.Entries, q)), nil, nil
	}

	// Index missing or stale: fall back to the manifest chain, the
	// always-correct but slower path, and flag it.
	headPtr, _, existed, err := s.readHead(ctx)
	if err != nil {
		return nil, nil, err
	}
	if !existed {
		return nil, nil, nil
	}
	chain, err := s.walkManifests(ctx, headPtr.ManifestPath)
	if err != nil {
		return nil, nil, err
	}

	fileKind := "entities"
	if kind == model.KindRelation {
		fileKind = "relations"
	}

	var paths []string
	for _, m := range chain {
		if m.CommitID > q {
			continue
		}
		for _, f := range m.Files {
			if f.Kind == fileKind && f.TypeName == typeName {
				paths = append(paths, f.Path)
			}
		}
	}

	var diagnostics []Diagnostic
	if indexed && idx.MaxIndexedCommit < q {
		diagnostics = append(diagnostics, Diagnostic{Reason: "coverage_index_stale"})
	}
	return paths, diagnostics, nil
}

// FetchFile downloads one resolved file's bytes, exported for
// pkg/query/duckquery to spool commit files to a local temp file before
// handing the path list to DuckDB (which reads from the filesystem, not
// directly from an ObjectAPI).
func (s *Store) FetchFile(ctx context.Context, path string) ([]byte, error) {
	data, _, err := s.api.Get(ctx, path)
	return data, err
}

func pathsFromEntries(entries []IndexEntry) []string {
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	return paths
}

func filterEntriesUpTo(entries []IndexEntry, q int64) []IndexEntry {
	var out []IndexEntry
	for _, e := range entries {
		if e.MinCommitID <= q {
			out = append(out, e)
		}
	}
	return out
}

func filterUpTo(records []model.ChangeRecord, q int64) []model.ChangeRecord {
	var out []model.ChangeRecord
	for _, r := range records {
		if r.CommitID <= q {
			out = append(out, r)
		}
	}
	return out
}
