// SPDX-License-Identifier: Apache-2.0

package objectstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/lexiupon/ontologia/pkg/model"
	"github.com/lexiupon/ontologia/pkg/objectstore/parquetfile"
)

// IndexEntry is one contiguous commit-id range covered by a single
// columnar file, the unit indices/<kind>/<Type>.json accumulates.
type IndexEntry struct {
	MinCommitID int64  `json:"min_commit_id"`
	MaxCommitID int64  `json:"max_commit_id"`
	Path        string `json:"path"`
}

// CoverageIndex is the per-type fast path for temporal reads described in
// §4.6: the set of commit ranges already known to be covered by indexed
// files, advisory and independently verifiable against the manifest chain.
type CoverageIndex struct {
	TypeName         string       `json:"type_name"`
	MaxIndexedCommit int64        `json:"max_indexed_commit"`
	Entries          []IndexEntry `json:"entries"`
}

func (s *Store) indexPath(kind model.TypeKind, typeName string) string {
	return s.key("indices", string(kind), typeName+".json")
}

func (s *Store) readIndex(ctx context.Context, kind model.TypeKind, typeName string) (CoverageIndex, string, bool, error) {
	body, etag, err := s.api.Get(ctx, s.indexPath(kind, typeName))
	if err != nil {
		if err == ErrNotFound {
			return CoverageIndex{TypeName: typeName}, "", false, nil
		}
		return CoverageIndex{}, "", false, err
	}
	var idx CoverageIndex
	if err := json.Unmarshal(body, &idx); err != nil {
		return CoverageIndex{}, "", false, fmt.Errorf("unmarshal coverage index: %w", err)
	}
	return idx, etag, true, nil
}

func (s *Store) writeIndex(ctx context.Context, kind model.TypeKind, idx CoverageIndex, etag string, existed bool) error {
	body, err := json.Marshal(idx)
	if err != nil {
		return err
	}
	_, err = s.api.Put(ctx, s.indexPath(kind, idx.TypeName), body, etag, !existed)
	return err
}

// VerifyReport is the result of walking the manifest chain and comparing
// it against every registered type's coverage index.
type VerifyReport struct {
	HeadCommitID int64
	LaggedTypes  []LaggedType
	MissingTypes []string // registered in meta/types.json, absent from the index entirely
}

// LaggedType is a type whose index has fallen behind HEAD.
type LaggedType struct {
	TypeKind         model.TypeKind
	TypeName         string
	MaxIndexedCommit int64
}

// Verify walks the manifest chain from HEAD and reports, for kind, which
// types' indices lag HEAD (max_indexed_commit < head) or are entirely
// missing, per §4.6's "Verify" operation.
func (s *Store) Verify(ctx context.Context, kind model.TypeKind) (VerifyReport, error) {
	head, _, existed, err := s.Head(ctx)
	if err != nil {
		return VerifyReport{}, err
	}
	report := VerifyReport{HeadCommitID: head}
	if !existed {
		return report, nil
	}

	names, err := s.ListSchemas(ctx, kind)
	if err != nil {
		return VerifyReport{}, err
	}

	for _, name := range names {
		idx, _, indexed, err := s.readIndex(ctx, kind, name)
		if err != nil {
			return VerifyReport{}, err
		}
		if !indexed {
			report.MissingTypes = append(report.MissingTypes, name)
			continue
		}
		if idx.MaxIndexedCommit < head {
			report.LaggedTypes = append(report.LaggedTypes, LaggedType{TypeKind: kind, TypeName: name, MaxIndexedCommit: idx.MaxIndexedCommit})
		}
	}
	return report, nil
}

// RepairPlan is the set of entries Repair would add for a type, returned
// without being applied when dryRun is true.
type RepairPlan struct {
	TypeName   string
	NewEntries []IndexEntry
}

// Repair rebuilds typeName's coverage index by walking the manifest chain
// and recording every file that touches it, per §4.6's "Repair" operation.
// With dryRun it returns the plan without writing the index.
func (s *Store) Repair(ctx context.Context, kind model.TypeKind, typeName string, dryRun bool) (RepairPlan, error) {
	head, _, existed, err := s.Head(ctx)
	if err != nil {
		return RepairPlan{}, err
	}
	if !existed {
		return RepairPlan{TypeName: typeName}, nil
	}

	headPtr, _, _, err := s.readHead(ctx)
	if err != nil {
		return RepairPlan{}, err
	}
	chain, err := s.walkManifests(ctx, headPtr.ManifestPath)
	if err != nil {
		return RepairPlan{}, err
	}

	idx, etag, indexed, err := s.readIndex(ctx, kind, typeName)
	if err != nil {
		return RepairPlan{}, err
	}

	fileKind := "entities"
	if kind == model.KindRelation {
		fileKind = "relations"
	}

	var plan []IndexEntry
	for _, m := range chain {
		if m.CommitID <= idx.MaxIndexedCommit {
			continue
		}
		for _, f := range m.Files {
			if f.Kind == fileKind && f.TypeName == typeName {
				plan = append(plan, IndexEntry{MinCommitID: m.CommitID, MaxCommitID: m.CommitID, Path: f.Path})
			}
		}
	}

	result := RepairPlan{TypeName: typeName, NewEntries: plan}
	if dryRun || len(plan) == 0 {
		return result, nil
	}

	idx.TypeName = typeName
	idx.Entries = append(idx.Entries, plan...)
	idx.MaxIndexedCommit = head
	if err := s.writeIndex(ctx, kind, idx, etag, indexed); err != nil {
		return RepairPlan{}, err
	}
	return result, nil
}

// Compact rewrites typeName's entries into a single snapshot file covering
// the commit span of those entries (lowest to highest), pruning the per-commit entries it replaces, per
// §4.6's "Compact" operation.
func (s *Store) Compact(ctx context.Context, kind model.TypeKind, typeName string) error {
	idx, etag, indexed, err := s.readIndex(ctx, kind, typeName)
	if err != nil {
		return err
	}
	if !indexed || len(idx.Entries) <= 1 {
		return nil
	}

	snapshotRecords, err := s.collectTypeChanges(ctx, idx.Entries)
	if err != nil {
		return err
	}

	data, err := parquetfile.Encode(snapshotRecords)
	if err != nil {
		return err
	}

	sort.Slice(idx.Entries, func(i, j int) bool { return idx.Entries[i].MinCommitID < idx.Entries[j].MinCommitID })
	minCommit := idx.Entries[0].MinCommitID
	maxCommit := idx.Entries[len(idx.Entries)-1].MaxCommitID

	snapshotPath := s.key("indices", string(kind), fmt.Sprintf("%s.snapshot-%d-%d.parquet", typeName, minCommit, maxCommit))
	if _, err := s.api.Put(ctx, snapshotPath, data, "", false); err != nil {
		return err
	}

	idx.Entries = []IndexEntry{{MinCommitID: minCommit, MaxCommitID: maxCommit, Path: snapshotPath}}
	return s.writeIndex(ctx, kind, idx, etag, indexed)
}

// collectTypeChanges decodes and concatenates every indexed file's rows, so
// Compact can re-encode them as one snapshot file.
func (s *Store) collectTypeChanges(ctx context.Context, entries []IndexEntry) ([]model.ChangeRecord, error) {
	var out []model.ChangeRecord
	for _, e := range entries {
		data, _, err := s.api.Get(ctx, e.Path)
		if err != nil {
			return nil, err
		}
		records, err := parquetfile.Decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, records...)
	}
	return out, nil
}
