// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lexiupon/ontologia/pkg/model"
	"github.com/lexiupon/ontologia/pkg/query"
)

// ExportOptions parameterizes the `export --output <dir> [--type T]
// [--as-of C|--history-since C] [--with-metadata]` operator command (§6).
// Zero-valued AsOfCommit/SinceCommit with neither flag set means "latest".
type ExportOptions struct {
	OutputDir    string
	Type         string // empty means every registered type
	AsOfCommit   *int64
	SinceCommit  *int64
	WithMetadata bool
}

// exportLine is one line of a type's JSONL export file.
type exportLine struct {
	TypeKind    model.TypeKind `json:"type_kind"`
	TypeName    string         `json:"type_name"`
	Key         string         `json:"key,omitempty"`
	LeftKey     string         `json:"left_key,omitempty"`
	RightKey    string         `json:"right_key,omitempty"`
	InstanceKey string         `json:"instance_key,omitempty"`
	Fields      map[string]any `json:"fields"`
	CommitID    *int64         `json:"commit_id,omitempty"`
}

// ExportReport summarizes what Export wrote, including any
// commit_before_activation warnings encountered per type.
type ExportReport struct {
	Files    []string
	Warnings map[string]string // type name -> warning message
}

// Export writes one JSONL file per selected type under opts.OutputDir, per
// §6's export format.
func (e *Engine) Export(ctx context.Context, opts ExportOptions) (ExportReport, error) {
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return ExportReport{}, fmt.Errorf("engine: export: %w", err)
	}

	report := ExportReport{Warnings: map[string]string{}}

	kinds := []model.TypeKind{model.KindEntity, model.KindRelation}
	for _, kind := range kinds {
		names, err := e.listSchemas(ctx, kind)
		if err != nil {
			return ExportReport{}, err
		}
		for _, name := range names {
			if opts.Type != "" && name != opts.Type {
				continue
			}
			path, warning, err := e.exportType(ctx, kind, name, opts)
			if err != nil {
				return ExportReport{}, err
			}
			report.Files = append(report.Files, path)
			if warning != "" {
				report.Warnings[name] = warning
			}
		}
	}
	return report, nil
}

func (e *Engine) exportType(ctx context.Context, kind model.TypeKind, name string, opts ExportOptions) (path string, warning string, err error) {
	q := query.Query{TypeKind: kind, TypeName: name}
	switch {
	case opts.AsOfCommit != nil:
		q.Kind = query.KindAsOf
		q.AsOfCommit = *opts.AsOfCommit
	case opts.SinceCommit != nil:
		q.Kind = query.KindHistorySince
		q.SinceCommit = *opts.SinceCommit
	default:
		q.Kind = query.KindLatest
	}

	result, err := e.Query(ctx, q)
	if err != nil {
		return "", "", err
	}
	for _, d := range result.Diagnostics {
		if d.Reason == query.ReasonCommitBeforeActivation {
			warning = fmt.Sprintf("commit precedes %q's activation boundary (activated at commit %d); export is empty", name, d.ActivationCommitID)
		}
	}

	path = filepath.Join(opts.OutputDir, name+".jsonl")
	f, err := os.Create(path)
	if err != nil {
		return "", "", fmt.Errorf("engine: export: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	if q.Kind == query.KindHistorySince {
		for _, c := range result.ChangeRows {
			if err := enc.Encode(exportLineFromChange(kind, name, c, opts.WithMetadata)); err != nil {
				return "", "", fmt.Errorf("engine: export: %w", err)
			}
		}
		return path, warning, nil
	}

	for _, row := range result.Rows {
		line := exportLine{TypeKind: kind, TypeName: name, Fields: row.Fields}
		if kind == model.KindEntity {
			line.Key = row.EntityKey
		} else {
			line.LeftKey = row.LeftKey
			line.RightKey = row.RightKey
			line.InstanceKey = row.InstanceKey
		}
		if opts.WithMetadata && q.Kind == query.KindAsOf {
			c := q.AsOfCommit
			line.CommitID = &c
		}
		if err := enc.Encode(line); err != nil {
			return "", "", fmt.Errorf("engine: export: %w", err)
		}
	}
	return path, warning, nil
}

func exportLineFromChange(kind model.TypeKind, name string, c model.ChangeRecord, withMetadata bool) exportLine {
	line := exportLine{TypeKind: kind, TypeName: name, Fields: c.Fields}
	if kind == model.KindEntity {
		line.Key = c.EntityKey
	} else {
		line.LeftKey = c.LeftKey
		line.RightKey = c.RightKey
		line.InstanceKey = c.InstanceKey
	}
	if withMetadata {
		id := c.CommitID
		line.CommitID = &id
	}
	return line
}
