// SPDX-License-Identifier: Apache-2.0

// Package catalog implements the schema-version catalog (C3): a per-type
// history of schema versions with activation boundaries on the commit
// timeline.
package catalog

import (
	"context"
	"fmt"

	"github.com/lexiupon/ontologia/pkg/model"
)

// NotActivated is the sentinel ActivationCommitID for a version that has
// been created but not yet activated. Commit ids are 1-indexed, and commit
// id 0 is reserved for "active since before the first real commit" (used
// when backfilling activation boundaries for legacy data), so pending
// activation needs a sentinel outside that range.
const NotActivated int64 = -1

// SchemaVersion is one entry in a type's version history.
type SchemaVersion struct {
	SchemaVersionID    int64
	TypeKind           model.TypeKind
	TypeName           string
	CanonicalJSON      []byte
	Hash               string
	CreationCommitID   int64
	ActivationCommitID int64 // NotActivated until ActivateSchemaVersion is called
	Reason             string
}

// Activated reports whether this version has an activation commit id.
func (v SchemaVersion) Activated() bool { return v.ActivationCommitID != NotActivated }

// Catalog is the operations a storage backend must provide over the
// schema-version history, per spec §4.3.
type Catalog interface {
	// CreateSchemaVersion registers a new, not-yet-activated version for a
	// type. The first version ever created for a type is implicitly
	// activated at the commit id of the commit that registers it (callers
	// achieve this by calling ActivateSchemaVersion in the same commit).
	CreateSchemaVersion(ctx context.Context, kind model.TypeKind, typeName string, canonicalJSON []byte, hash, reason string) (int64, error)

	// ActivateSchemaVersion marks schemaVersionID as current as of
	// activationCommitID. It must fail if activationCommitID does not
	// exceed the previously active version's activation commit id.
	ActivateSchemaVersion(ctx context.Context, kind model.TypeKind, typeName string, schemaVersionID, activationCommitID int64) error

	// GetCurrentSchemaVersion returns the version active at HEAD.
	GetCurrentSchemaVersion(ctx context.Context, kind model.TypeKind, typeName string) (SchemaVersion, error)

	// ListSchemas lists every type name registered under kind.
	ListSchemas(ctx context.Context, kind model.TypeKind) ([]string, error)

	// ListVersions lists every version of a type in creation order.
	ListVersions(ctx context.Context, kind model.TypeKind, typeName string) ([]SchemaVersion, error)

	// VersionActiveAt returns the version whose activation window contains
	// commit id c, and false if c precedes the earliest version's
	// activation boundary.
	VersionActiveAt(ctx context.Context, kind model.TypeKind, typeName string, commitID int64) (SchemaVersion, bool, error)
}

// ErrActivationNotMonotonic is returned when an activation commit id does
// not strictly exceed the type's previous activation commit id, enforcing
// "activation monotonicity" (spec §8 property 2).
type ErrActivationNotMonotonic struct {
	TypeName             string
	PreviousActivationID int64
	AttemptedActivationID int64
}

func (e *ErrActivationNotMonotonic) Error() string {
	return fmt.Sprintf("activation commit id %d for %q does not exceed previous activation %d",
		e.AttemptedActivationID, e.TypeName, e.PreviousActivationID)
}

// ValidateActivation enforces the strictly-increasing invariant shared by
// every Catalog implementation, so each backend doesn't need to reimplement
// the comparison.
func ValidateActivation(typeName string, previousActivationID, attempted int64) error {
	if attempted <= previousActivationID {
		return &ErrActivationNotMonotonic{TypeName: typeName, PreviousActivationID: previousActivationID, AttemptedActivationID: attempted}
	}
	return nil
}

// ActiveWindow finds, among versions sorted by ActivationCommitID ascending,
// the version whose window [ActivationCommitID, nextActivationCommitID)
// contains commitID. This is shared logic both SQL-backed and
// object-store-backed Catalog implementations use once they've loaded a
// type's version list.
func ActiveWindow(versions []SchemaVersion, commitID int64) (SchemaVersion, bool) {
	var best SchemaVersion
	found := false
	for _, v := range versions {
		if !v.Activated() || v.ActivationCommitID > commitID {
			continue
		}
		if !found || v.ActivationCommitID > best.ActivationCommitID {
			best = v
			found = true
		}
	}
	return best, found
}
