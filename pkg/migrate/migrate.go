// SPDX-License-Identifier: Apache-2.0

package migrate

import (
	"context"
	"time"

	"github.com/lexiupon/ontologia/pkg/lease"
	"github.com/lexiupon/ontologia/pkg/model"
	"github.com/lexiupon/ontologia/pkg/ontoerrors"
	"github.com/lexiupon/ontologia/pkg/ontolog"
)

// Preview is the result of Plan, the Go shape of migration.py's
// MigrationPreview.
type Preview struct {
	HasChanges              bool
	Token                   string
	Diffs                   []ontoerrors.TypeSchemaDiff
	EstimatedRows           map[string]int
	TypesRequiringUpgraders []string
	TypesSchemaOnly         []string
	MissingUpgraders        map[string][]int
}

// Result is the result of a successful Apply, the Go shape of
// migration.py's MigrationResult.
type Result struct {
	Success           bool
	TypesMigrated     []string
	RowsMigrated      map[string]int
	NewSchemaVersions map[string]int64
	Duration          time.Duration
}

// Migrator drives the plan -> token -> apply state machine over a single
// Backend, holding the lease-renewal owner id and lease TTL a migration
// acquires its write lease under.
type Migrator struct {
	backend  Backend
	ownerID  string
	leaseTTL time.Duration
	logger   ontolog.Logger
}

// New constructs a Migrator. logger may be nil, in which case diagnostics
// are discarded.
func New(backend Backend, ownerID string, leaseTTL time.Duration, logger ontolog.Logger) *Migrator {
	if logger == nil {
		logger = ontolog.Noop()
	}
	return &Migrator{backend: backend, ownerID: ownerID, leaseTTL: leaseTTL, logger: logger}
}

// typePlan bundles the per-type working state Plan computes and Apply later
// reuses, so the two never compute a diff differently.
type typePlan struct {
	t             RegisteredType
	diff          ontoerrors.TypeSchemaDiff
	storedOrdinal int
	codeHash      string
	codeJSON      []byte
	rowCount      int
	requiresUpgrade bool
}

// Plan computes schema_hash(code) vs schema_hash(stored) for every type,
// classifying each as unchanged, schema-only, or requiring an upgrader
// chain, per §4.8 step 1. Types with no stored schema version yet (first
// registration, not yet migrated by anyone) are skipped: there is no diff to
// report until a prior version exists to diff against.
func (m *Migrator) Plan(ctx context.Context, types []RegisteredType, registry UpgraderRegistry) (Preview, error) {
	plans, err := m.computePlans(ctx, types)
	if err != nil {
		return Preview{}, err
	}
	return m.buildPreview(ctx, plans, registry)
}

func (m *Migrator) computePlans(ctx context.Context, types []RegisteredType) ([]typePlan, error) {
	var plans []typePlan
	for _, t := range types {
		versions, err := m.backend.ListVersions(ctx, t.Kind, t.Name)
		if err != nil {
			return nil, err
		}
		if len(versions) == 0 {
			continue
		}
		// ListVersions returns a type's history in creation order; the
		// stored side of the diff is always the most recently created
		// version, whether or not it has been activated yet.
		stored := versions[len(versions)-1]

		codeHash, codeJSON := t.schemaHash()
		if codeHash == stored.Hash {
			continue
		}

		storedOrdinal, err := typeVersionOrdinal(ctx, m.backend, t.Kind, t.Name, stored.SchemaVersionID)
		if err != nil {
			return nil, err
		}
		diff, changed, err := diffType(stored, t, storedOrdinal)
		if err != nil {
			return nil, err
		}
		if !changed {
			continue
		}

		rows, err := m.backend.LatestRows(ctx, t.Kind, t.Name)
		if err != nil {
			return nil, err
		}

		requiresUpgrade := len(rows) > 0 && (len(diff.RemovedFields) > 0 || len(diff.ChangedFields) > 0)
		diff.RequiresUpgrade = requiresUpgrade

		plans = append(plans, typePlan{
			t: t, diff: diff, storedOrdinal: storedOrdinal,
			codeHash: codeHash, codeJSON: codeJSON,
			rowCount: len(rows), requiresUpgrade: requiresUpgrade,
		})
	}
	return plans, nil
}

func (m *Migrator) buildPreview(ctx context.Context, plans []typePlan, registry UpgraderRegistry) (Preview, error) {
	preview := Preview{
		EstimatedRows:    map[string]int{},
		MissingUpgraders: map[string][]int{},
	}

	for _, p := range plans {
		preview.Diffs = append(preview.Diffs, p.diff)
		if p.requiresUpgrade {
			preview.TypesRequiringUpgraders = append(preview.TypesRequiringUpgraders, p.t.Name)
			preview.EstimatedRows[p.t.Name] = p.rowCount
			if _, err := ChainUpgraders(registry, p.t.Name, p.storedOrdinal, p.storedOrdinal+1); err != nil {
				if missing, ok := err.(*ontoerrors.MissingUpgraderError); ok {
					preview.MissingUpgraders[p.t.Name] = missing.Missing[p.t.Name]
				} else {
					return Preview{}, err
				}
			}
		} else {
			preview.TypesSchemaOnly = append(preview.TypesSchemaOnly, p.t.Name)
		}
	}

	preview.HasChanges = len(preview.Diffs) > 0
	planHash := ComputePlanHash(preview.Diffs)
	head, headKnown, err := m.backend.Head(ctx)
	if err != nil {
		return Preview{}, err
	}
	preview.Token = ComputeMigrationToken(planHash, head, headKnown)
	return preview, nil
}

// Apply executes the migration plan: it recomputes the plan fresh (so a
// stale token is rejected against the *current* state, not the state at the
// time the caller last previewed), requires a valid token unless force is
// set, then acquires the write lease, starts the background renewer, and for
// each diffed type creates and activates a new schema version, all within
// one commit. Live rows are rewritten through the upgrader chain only for
// types whose diff requires upgraders; a schema-only change leaves existing
// rows at their prior schema version.
func (m *Migrator) Apply(ctx context.Context, types []RegisteredType, registry UpgraderRegistry, token string, force bool) (Result, error) {
	start := time.Now()

	plans, err := m.computePlans(ctx, types)
	if err != nil {
		return Result{}, err
	}
	preview, err := m.buildPreview(ctx, plans, registry)
	if err != nil {
		return Result{}, err
	}

	if !force {
		head, headKnown, err := m.backend.Head(ctx)
		if err != nil {
			return Result{}, err
		}
		planHash := ComputePlanHash(preview.Diffs)
		if !VerifyToken(token, planHash, head, headKnown) {
			return Result{}, &ontoerrors.MigrationTokenError{Message: "migration token does not match the current plan and head commit"}
		}
	}
	if len(preview.MissingUpgraders) > 0 {
		return Result{}, &ontoerrors.MissingUpgraderError{Missing: preview.MissingUpgraders}
	}
	if len(plans) == 0 {
		return Result{Success: true}, nil
	}

	if _, err := lease.AcquireWithRetry(ctx, m.backend, m.ownerID, lease.DefaultAcquireOptions(m.leaseTTL)); err != nil {
		return Result{}, err
	}
	renewer := lease.NewRenewer(m.backend, m.ownerID, m.leaseTTL, m.logger)
	renewer.Start(ctx)
	defer renewer.Stop()
	defer func() { _ = m.backend.ReleaseLock(ctx, m.ownerID) }()

	commitID, err := m.backend.BeginWrite(ctx, map[string]string{"op": "migrate"})
	if err != nil {
		return Result{}, err
	}

	result := Result{
		RowsMigrated:      map[string]int{},
		NewSchemaVersions: map[string]int64{},
	}

	for _, p := range plans {
		versionID, err := m.backend.CreateSchemaVersion(ctx, p.t.Kind, p.t.Name, p.codeJSON, p.codeHash, "migration")
		if err != nil {
			_ = m.backend.AbortWrite(commitID)
			return Result{}, err
		}
		if err := m.backend.ActivateSchemaVersion(ctx, p.t.Kind, p.t.Name, versionID, commitID); err != nil {
			_ = m.backend.AbortWrite(commitID)
			return Result{}, err
		}

		rowsMigrated := 0
		if p.requiresUpgrade {
			rows, err := m.backend.LatestRows(ctx, p.t.Kind, p.t.Name)
			if err != nil {
				_ = m.backend.AbortWrite(commitID)
				return Result{}, err
			}
			upgrade, err := ChainUpgraders(registry, p.t.Name, p.storedOrdinal, p.storedOrdinal+1)
			if err != nil {
				_ = m.backend.AbortWrite(commitID)
				return Result{}, err
			}
			for _, row := range rows {
				newFields, err := upgrade(row.Fields)
				if err != nil {
					_ = m.backend.AbortWrite(commitID)
					return Result{}, err
				}
				change := model.ChangeRecord{
					TypeName:        p.t.Name,
					Fields:          newFields,
					SchemaVersionID: versionID,
				}
				if p.t.Kind == model.KindEntity {
					change.Kind = model.ChangeEntityInsert
					change.EntityKey = row.EntityKey
				} else {
					change.Kind = model.ChangeRelationInsert
					change.LeftKey = row.LeftKey
					change.RightKey = row.RightKey
					change.InstanceKey = row.InstanceKey
				}
				if err := m.backend.AppendChange(ctx, commitID, change); err != nil {
					_ = m.backend.AbortWrite(commitID)
					return Result{}, err
				}
				rowsMigrated++
			}
		}

		result.TypesMigrated = append(result.TypesMigrated, p.t.Name)
		result.RowsMigrated[p.t.Name] = rowsMigrated
		result.NewSchemaVersions[p.t.Name] = versionID
	}

	if err := m.backend.CommitTransaction(ctx, commitID); err != nil {
		return Result{}, err
	}

	result.Success = true
	result.Duration = time.Since(start)
	return result, nil
}
