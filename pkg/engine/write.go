// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"

	"github.com/lexiupon/ontologia/pkg/catalog"
	"github.com/lexiupon/ontologia/pkg/commitlog"
	"github.com/lexiupon/ontologia/pkg/lease"
	"github.com/lexiupon/ontologia/pkg/migrate"
	"github.com/lexiupon/ontologia/pkg/model"
	"github.com/lexiupon/ontologia/pkg/ontoerrors"
	"github.com/lexiupon/ontologia/pkg/typespec"
)

// WriteRequest is one row mutation to append as a new commit: an insert
// (Tombstone false, Fields carrying the row's field values) or a tombstone
// (Tombstone true, Fields ignored), against Type's currently active schema
// version. Identity (EntityKey, or LeftKey/RightKey/InstanceKey for a
// relation) is always supplied by the caller, the same way
// model.ChangeRecord carries it, rather than inferred from Fields. For an
// entity insert, a primary-key field absent from Fields is filled with
// EntityKey before validation.
type WriteRequest struct {
	Type migrate.RegisteredType

	EntityKey   string // set for model.KindEntity
	LeftKey     string // set for model.KindRelation
	RightKey    string // set for model.KindRelation
	InstanceKey string // set for model.KindRelation types declaring an instance_key field

	Fields    map[string]any
	Tombstone bool
	Metadata  map[string]string
}

// WriteResult reports the commit a write landed in.
type WriteResult struct {
	CommitID int64
}

// writeBackend is the subset of a backend's capabilities Write needs: the
// commit log (C2) to append the row, the lease coordinator (C4) to
// serialize it against every other writer, and the catalog (C3) to
// register a type's first schema version the first time it's written.
type writeBackend interface {
	commitlog.Log
	lease.Coordinator
	catalog.Catalog

	// AbortWrite discards a commit opened by BeginWrite that will not be
	// committed, releasing whatever pending state it held. Not part of
	// commitlog.Log since migrate's row-rewrite path manages its own
	// pending commits directly against the concrete backend type.
	AbortWrite(commitID int64) error
}

func (e *Engine) writeBackend() writeBackend {
	if e.sql != nil {
		return e.sql
	}
	return e.obj
}

// Write validates req.Fields against req.Type (C1), resolves the schema
// version currently active for req.Type (C3), then appends the row as a new
// commit (C2) under the write lease (C4): it acquires the lease, begins the
// commit, appends the change, re-verifies lease ownership immediately
// before finalizing, and releases the lease whether or not the commit
// succeeded. This is the data-flow spec.md §2 names as the system's
// ordinary write path; Apply (C8) is the only other writer, and acquires
// the same lease the same way for its own migration commit.
func (e *Engine) Write(ctx context.Context, req WriteRequest) (WriteResult, error) {
	if req.Type.Name == "" {
		return WriteResult{}, &ontoerrors.ValidationError{Message: "write: Type.Name is required"}
	}
	if err := validateIdentity(req); err != nil {
		return WriteResult{}, err
	}

	fields := req.Fields
	if !req.Tombstone {
		in := make(map[string]any, len(req.Fields)+1)
		for name, value := range req.Fields {
			in[name] = value
		}
		if req.Type.Kind == model.KindEntity {
			for _, f := range req.Type.Fields {
				if _, present := in[f.Name]; f.PrimaryKey && !present {
					in[f.Name] = req.EntityKey
				}
			}
		}
		resolved, err := resolveFields(req.Type, in)
		if err != nil {
			return WriteResult{}, err
		}
		fields = resolved
	} else {
		fields = nil
	}

	backend := e.writeBackend()

	if _, err := lease.AcquireWithRetry(ctx, backend, e.ownerID, lease.DefaultAcquireOptions(e.leaseTTL)); err != nil {
		return WriteResult{}, err
	}
	defer func() { _ = backend.ReleaseLock(ctx, e.ownerID) }()

	commitID, err := backend.BeginWrite(ctx, req.Metadata)
	if err != nil {
		return WriteResult{}, err
	}

	schemaVersionID, err := e.resolveSchemaVersion(ctx, backend, req.Type, commitID)
	if err != nil {
		_ = backend.AbortWrite(commitID)
		return WriteResult{}, err
	}

	change := model.ChangeRecord{
		Kind:            changeKind(req.Type.Kind, req.Tombstone),
		TypeName:        req.Type.Name,
		EntityKey:       req.EntityKey,
		LeftKey:         req.LeftKey,
		RightKey:        req.RightKey,
		InstanceKey:     req.InstanceKey,
		Fields:          fields,
		SchemaVersionID: schemaVersionID,
	}
	if err := backend.AppendChange(ctx, commitID, change); err != nil {
		_ = backend.AbortWrite(commitID)
		return WriteResult{}, err
	}

	// Re-verify lease ownership immediately before finalizing (§4.4): if
	// another writer has taken the lease since AcquireLock above, this
	// fails with *ontoerrors.LeaseExpiredError rather than letting a stale
	// writer's commit land.
	if _, err := backend.RenewLock(ctx, e.ownerID, e.leaseTTL); err != nil {
		_ = backend.AbortWrite(commitID)
		return WriteResult{}, err
	}

	if err := backend.CommitTransaction(ctx, commitID); err != nil {
		return WriteResult{}, err
	}

	return WriteResult{CommitID: commitID}, nil
}

// resolveSchemaVersion returns the schema version id a change record for t
// should carry. If t already has an active version, that version id is
// reused as-is (Write never registers a new version for an already-known
// type; that's pkg/migrate's job). Otherwise this is the first write ever
// seen for t, and catalog.Catalog's own contract - "the first version ever
// created for a type is implicitly activated at the commit id of the commit
// that registers it... callers achieve this by calling ActivateSchemaVersion
// in the same commit" - is carried out here, using commitID as that
// activation commit: the insert and the type's registration land in the
// same commit, matching spec.md §8 scenario A's first write to a new type.
func (e *Engine) resolveSchemaVersion(ctx context.Context, backend writeBackend, t migrate.RegisteredType, commitID int64) (int64, error) {
	versions, err := backend.ListVersions(ctx, t.Kind, t.Name)
	if err != nil {
		return 0, err
	}
	if len(versions) > 0 {
		existing, err := backend.GetCurrentSchemaVersion(ctx, t.Kind, t.Name)
		if err != nil {
			return 0, &ontoerrors.ValidationError{
				Message: fmt.Sprintf("write: no active schema version for %s %q: %v", t.Kind, t.Name, err),
			}
		}
		return existing.SchemaVersionID, nil
	}

	schemaFields := model.SchemaFields(t.Fields)
	hash := typespec.SchemaHash(t.Name, schemaFields)
	canonicalJSON := typespec.CanonicalSchemaJSON(t.Name, schemaFields)
	versionID, err := backend.CreateSchemaVersion(ctx, t.Kind, t.Name, canonicalJSON, hash, "write: first registration")
	if err != nil {
		return 0, err
	}
	if err := backend.ActivateSchemaVersion(ctx, t.Kind, t.Name, versionID, commitID); err != nil {
		return 0, err
	}
	return versionID, nil
}

func changeKind(kind model.TypeKind, tombstone bool) model.ChangeKind {
	switch {
	case kind == model.KindEntity && tombstone:
		return model.ChangeEntityTombstone
	case kind == model.KindEntity:
		return model.ChangeEntityInsert
	case tombstone:
		return model.ChangeRelationTombstone
	default:
		return model.ChangeRelationInsert
	}
}

func validateIdentity(req WriteRequest) error {
	if req.Type.Kind == model.KindEntity {
		if req.EntityKey == "" {
			return &ontoerrors.ValidationError{Message: fmt.Sprintf("write: %s: EntityKey is required", req.Type.Name)}
		}
		return nil
	}
	if req.LeftKey == "" || req.RightKey == "" {
		return &ontoerrors.ValidationError{Message: fmt.Sprintf("write: %s: LeftKey and RightKey are required", req.Type.Name)}
	}
	return nil
}

// resolveFields rejects fields not declared on t, fills in defaults or null
// for fields the caller omitted, and validates every present value against
// its declared type_spec (C1), the "unknown field" / "wrong type" cases
// ontoerrors.ValidationError documents.
func resolveFields(t migrate.RegisteredType, fields map[string]any) (map[string]any, error) {
	known := make(map[string]model.Field, len(t.Fields))
	for _, f := range t.Fields {
		known[f.Name] = f
	}
	for name := range fields {
		if _, ok := known[name]; !ok {
			return nil, &ontoerrors.ValidationError{Message: fmt.Sprintf("%s: unknown field %q", t.Name, name)}
		}
	}

	out := make(map[string]any, len(t.Fields))
	for name, value := range fields {
		out[name] = value
	}
	for _, f := range t.Fields {
		if _, present := out[f.Name]; present {
			continue
		}
		switch {
		case f.HasDefault:
			out[f.Name] = f.ResolveDefault()
		case f.Nullable():
			out[f.Name] = nil
		default:
			return nil, &ontoerrors.ValidationError{Message: fmt.Sprintf("%s: missing required field %q", t.Name, f.Name)}
		}
	}

	for _, f := range t.Fields {
		path := fmt.Sprintf("%s.%s", t.Name, f.Name)
		if err := typespec.ValidateValue(path, f.TypeSpec, out[f.Name]); err != nil {
			return nil, &ontoerrors.ValidationError{Message: err.Error()}
		}
	}
	return out, nil
}
