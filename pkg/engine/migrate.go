// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"

	"github.com/lexiupon/ontologia/pkg/migrate"
	"github.com/lexiupon/ontologia/pkg/ontoerrors"
)

// Verify runs C8's plan step only and fails with *ontoerrors.SchemaOutdatedError
// if any type's code schema differs from its stored schema, per §6's
// `verify --models <ref>` strict mode.
func (e *Engine) Verify(ctx context.Context, types []migrate.RegisteredType) (migrate.Preview, error) {
	preview, err := e.migrator.Plan(ctx, types, nil)
	if err != nil {
		return migrate.Preview{}, err
	}
	if preview.HasChanges {
		return preview, &ontoerrors.SchemaOutdatedError{Diffs: preview.Diffs}
	}
	return preview, nil
}

// Plan is C8's dry-run step, returning a token and diff preview without
// writing anything.
func (e *Engine) Plan(ctx context.Context, types []migrate.RegisteredType, registry migrate.UpgraderRegistry) (migrate.Preview, error) {
	return e.migrator.Plan(ctx, types, registry)
}

// Apply drives C8's apply step: rewrite rows through the upgrader chain and
// activate new schema versions, fenced by token unless force is set.
func (e *Engine) Apply(ctx context.Context, types []migrate.RegisteredType, registry migrate.UpgraderRegistry, token string, force bool) (migrate.Result, error) {
	return e.migrator.Apply(ctx, types, registry, token, force)
}
