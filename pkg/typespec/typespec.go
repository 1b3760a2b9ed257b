// SPDX-License-Identifier: Apache-2.0

// Package typespec implements the canonical, recursive type-spec encoding
// used for schema hashing and drift detection (C1). A Spec is a small closed
// AST — primitive, list, dict, union, typed_dict, ref — built directly by
// callers (Go has no runtime equivalent of Python's typing module to walk),
// then serialized to a deterministic JSON tree and hashed.
package typespec

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Kind is the closed set of type_spec node kinds.
type Kind string

const (
	KindPrimitive Kind = "primitive"
	KindList      Kind = "list"
	KindDict      Kind = "dict"
	KindUnion     Kind = "union"
	KindTypedDict Kind = "typed_dict"
	KindRef       Kind = "ref"
)

// Scalar primitive names understood by the closed scalar set.
const (
	ScalarStr      = "str"
	ScalarInt      = "int"
	ScalarFloat    = "float"
	ScalarBool     = "bool"
	ScalarNoneType = "NoneType"
	ScalarAny      = "any"
)

// Spec is a node in the canonical type_spec tree.
type Spec struct {
	Kind Kind `json:"kind"`

	// primitive / ref
	Name string `json:"name,omitempty"`

	// list
	Item *Spec `json:"item,omitempty"`

	// dict
	Key   *Spec `json:"key,omitempty"`
	Value *Spec `json:"value,omitempty"`

	// union
	Members []*Spec `json:"members,omitempty"`

	// typed_dict
	Total  *bool            `json:"total,omitempty"`
	Fields map[string]*Spec `json:"fields,omitempty"`
}

// Primitive builds a scalar or degraded-unknown leaf node.
func Primitive(name string) *Spec { return &Spec{Kind: KindPrimitive, Name: name} }

// List builds a homogeneous list<T> node.
func List(item *Spec) *Spec { return &Spec{Kind: KindList, Item: item} }

// Dict builds a homogeneous dict<K,V> node.
func Dict(key, value *Spec) *Spec { return &Spec{Kind: KindDict, Key: key, Value: value} }

// Ref builds a ref{name} node emitted on typed_dict re-entry.
func Ref(name string) *Spec { return &Spec{Kind: KindRef, Name: name} }

// Union builds a union node. Members are deduplicated and sorted by their
// own canonical JSON string, so that union member order never depends on
// construction order.
func Union(members ...*Spec) *Spec {
	seen := map[string]*Spec{}
	for _, m := range members {
		seen[string(m.canonicalJSON())] = m
	}
	out := make([]*Spec, 0, len(seen))
	for _, m := range seen {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		return string(out[i].canonicalJSON()) < string(out[j].canonicalJSON())
	})
	return &Spec{Kind: KindUnion, Members: out}
}

// Optional is Union(inner, NoneType).
func Optional(inner *Spec) *Spec { return Union(inner, Primitive(ScalarNoneType)) }

// TypedDict builds a closed-record node. Fields are serialized sorted by
// name regardless of the map's iteration order.
func TypedDict(name string, total bool, fields map[string]*Spec) *Spec {
	return &Spec{Kind: KindTypedDict, Name: name, Total: &total, Fields: fields}
}

// Visited is the set of typed_dict names on the current recursion stack,
// passed explicitly (never mutated in place) so sibling branches don't see
// each other's visited names — only ancestors do.
type Visited map[string]bool

// BuildTypedDict builds a typed_dict node named name, recursing into fn for
// each field with a visited set extended by name. If name is already in
// visited (a cycle), it returns a ref node instead of recursing.
func BuildTypedDict(visited Visited, name string, total bool, fieldNames []string, fn func(visited Visited, fieldName string) *Spec) *Spec {
	if visited[name] {
		return Ref(name)
	}
	child := make(Visited, len(visited)+1)
	for k := range visited {
		child[k] = true
	}
	child[name] = true

	names := append([]string(nil), fieldNames...)
	sort.Strings(names)
	fields := make(map[string]*Spec, len(names))
	for _, n := range names {
		fields[n] = fn(child, n)
	}
	return TypedDict(name, total, fields)
}

// canonicalJSON renders the node as compact, deterministic JSON. Go's
// encoding/json already sorts map keys, so no separate canonicalization pass
// is needed beyond the union-member sort done at construction time.
func (s *Spec) canonicalJSON() []byte {
	b, err := json.Marshal(s)
	if err != nil {
		// Spec trees are built from this package's own constructors; a
		// marshal failure here means a Spec escaped without going through
		// them.
		panic(fmt.Sprintf("typespec: spec failed to marshal: %v", err))
	}
	return b
}

// CanonicalJSON is the public, stable accessor for canonicalJSON.
func (s *Spec) CanonicalJSON() []byte { return s.canonicalJSON() }

// Equal reports whether two specs are structurally identical.
func (s *Spec) Equal(other *Spec) bool {
	if s == nil || other == nil {
		return s == other
	}
	return bytes.Equal(s.canonicalJSON(), other.canonicalJSON())
}

// FieldSchema is the per-field shape hashed into a type's schema_hash:
// {primary_key, instance_key, index, type_spec}.
type FieldSchema struct {
	PrimaryKey  bool  `json:"primary_key"`
	InstanceKey bool  `json:"instance_key"`
	Index       bool  `json:"index"`
	TypeSpec    *Spec `json:"type_spec"`
}

// schemaDoc is the canonical document hashed for a type's schema_hash:
// {type_name, fields:{name:{...}}}.
type schemaDoc struct {
	TypeName string                 `json:"type_name"`
	Fields   map[string]*FieldSchema `json:"fields"`
}

// SchemaHash computes SHA-256 of the canonical JSON of {type_name,
// fields:{name:{primary_key, instance_key, index, type_spec}}} with map
// keys sorted (Go's json.Marshal sorts map keys by default).
func SchemaHash(typeName string, fields map[string]*FieldSchema) string {
	doc := schemaDoc{TypeName: typeName, Fields: fields}
	b, err := json.Marshal(doc)
	if err != nil {
		panic(fmt.Sprintf("typespec: schema doc failed to marshal: %v", err))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// CanonicalSchemaJSON renders the same document SchemaHash hashes, for
// persistence alongside the hash in the schema-version catalog (C3).
func CanonicalSchemaJSON(typeName string, fields map[string]*FieldSchema) []byte {
	doc := schemaDoc{TypeName: typeName, Fields: fields}
	b, err := json.Marshal(doc)
	if err != nil {
		panic(fmt.Sprintf("typespec: schema doc failed to marshal: %v", err))
	}
	return b
}
