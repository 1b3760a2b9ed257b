// SPDX-License-Identifier: Apache-2.0

// Package model holds the shared data types that flow between every
// component: commits, change records, and the entity/relation type
// definitions that C1's type-spec hashing operates over.
package model

import (
	"fmt"
	"time"

	"github.com/lexiupon/ontologia/pkg/typespec"
)

// TypeKind distinguishes entity types from relation types, the only two
// row-producing kinds in the data model.
type TypeKind string

const (
	KindEntity   TypeKind = "entity"
	KindRelation TypeKind = "relation"
)

// ChangeKind tags a change record as an insert or a tombstone, for either
// row kind.
type ChangeKind string

const (
	ChangeEntityInsert    ChangeKind = "entity_insert"
	ChangeEntityTombstone ChangeKind = "entity_tombstone"
	ChangeRelationInsert  ChangeKind = "relation_insert"
	ChangeRelationTombstone ChangeKind = "relation_tombstone"
)

// Field describes one field of an entity or relation type.
type Field struct {
	Name           string
	TypeSpec       *typespec.Spec
	PrimaryKey     bool
	InstanceKey    bool
	Index          bool
	HasDefault     bool
	Default        any
	DefaultFactory func() any
}

// Nullable reports whether this field's type_spec is a union containing
// NoneType, mirroring "nullability inferred from its type_spec" in §3.
func (f Field) Nullable() bool {
	if f.TypeSpec == nil || f.TypeSpec.Kind != typespec.KindUnion {
		return f.TypeSpec != nil && f.TypeSpec.Kind == typespec.KindPrimitive && f.TypeSpec.Name == typespec.ScalarNoneType
	}
	for _, m := range f.TypeSpec.Members {
		if m.Kind == typespec.KindPrimitive && m.Name == typespec.ScalarNoneType {
			return true
		}
	}
	return false
}

// ResolveDefault returns the field's default value, invoking the default
// factory if one is set instead of a static default.
func (f Field) ResolveDefault() any {
	if f.DefaultFactory != nil {
		return f.DefaultFactory()
	}
	return f.Default
}

// EntityType is a named record schema with a primary-key field.
type EntityType struct {
	Name   string
	Fields []Field
}

// PrimaryKeyField returns the single primary-key field, panicking if the
// type definition is malformed (a type registered without exactly one
// primary key is a programmer error caught at registration time, not a
// runtime condition).
func (e EntityType) PrimaryKeyField() Field {
	for _, f := range e.Fields {
		if f.PrimaryKey {
			return f
		}
	}
	panic(fmt.Sprintf("model: entity type %q has no primary_key field", e.Name))
}

// RelationType is parameterized by a left and right entity type and may
// declare zero or one instance-key field.
type RelationType struct {
	Name       string
	LeftType   string
	RightType  string
	Fields     []Field
}

// InstanceKeyField returns the instance-key field and true, or false if the
// relation has none.
func (r RelationType) InstanceKeyField() (Field, bool) {
	for _, f := range r.Fields {
		if f.InstanceKey {
			return f, true
		}
	}
	return Field{}, false
}

// SchemaFields projects a type's fields into the {primary_key, instance_key,
// index, type_spec} shape hashed by typespec.SchemaHash.
func SchemaFields(fields []Field) map[string]*typespec.FieldSchema {
	out := make(map[string]*typespec.FieldSchema, len(fields))
	for _, f := range fields {
		out[f.Name] = &typespec.FieldSchema{
			PrimaryKey:  f.PrimaryKey,
			InstanceKey: f.InstanceKey,
			Index:       f.Index,
			TypeSpec:    f.TypeSpec,
		}
	}
	return out
}

// EntityIdentity is (type_name, key).
type EntityIdentity struct {
	TypeName string
	Key      string
}

// RelationIdentity is (type_name, left_key, right_key, instance_key), with
// InstanceKey the empty string when the relation declares none.
type RelationIdentity struct {
	TypeName    string
	LeftKey     string
	RightKey    string
	InstanceKey string
}

// Commit is {commit_id, created_at, metadata}. Commit ids are dense and
// strictly increasing; metadata is opaque to the engine.
type Commit struct {
	CommitID  int64
	CreatedAt time.Time
	Metadata  map[string]string
}

// ChangeRecord is a single row mutation attached to a commit: the full row
// image (or none, for a tombstone) plus identity and the schema version the
// row was written under.
type ChangeRecord struct {
	CommitID        int64
	Kind            ChangeKind
	TypeName        string
	EntityKey       string // set for entity_* kinds
	LeftKey         string // set for relation_* kinds
	RightKey        string // set for relation_* kinds
	InstanceKey     string // set for relation_* kinds, "" when none declared
	Fields          map[string]any
	SchemaVersionID int64
}

// IsEntity reports whether this change record targets an entity row.
func (c ChangeRecord) IsEntity() bool {
	return c.Kind == ChangeEntityInsert || c.Kind == ChangeEntityTombstone
}

// IsTombstone reports whether this change record supersedes a prior row
// with no new image.
func (c ChangeRecord) IsTombstone() bool {
	return c.Kind == ChangeEntityTombstone || c.Kind == ChangeRelationTombstone
}
