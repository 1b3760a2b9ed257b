// SPDX-License-Identifier: Apache-2.0

package migrate

import (
	"context"
	"encoding/json"

	"github.com/lexiupon/ontologia/pkg/catalog"
	"github.com/lexiupon/ontologia/pkg/model"
	"github.com/lexiupon/ontologia/pkg/ontoerrors"
	"github.com/lexiupon/ontologia/pkg/typespec"
)

// RegisteredType is one of the caller's current, in-code type definitions:
// the "code schema" side of the schema_hash(code) vs schema_hash(stored)
// comparison the plan step performs for every type.
type RegisteredType struct {
	Kind   model.TypeKind
	Name   string
	Fields []model.Field
}

// schemaHash returns the SchemaHash and CanonicalJSON of t's current field
// set, the same document C1 hashes for registration and drift detection.
func (t RegisteredType) schemaHash() (hash string, canonicalJSON []byte) {
	fields := model.SchemaFields(t.Fields)
	return typespec.SchemaHash(t.Name, fields), typespec.CanonicalSchemaJSON(t.Name, fields)
}

// storedSchemaDoc mirrors the shape typespec.CanonicalSchemaJSON produces,
// read back for diffing: {type_name, fields: {name: {...}}}. Each field's
// raw JSON is compared byte-for-byte rather than decoded field-by-field,
// since encoding/json already renders map keys sorted and struct fields in
// declaration order, making two structurally-equal FieldSchema values
// produce byte-identical JSON.
type storedSchemaDoc struct {
	Fields map[string]json.RawMessage `json:"fields"`
}

// typeVersionOrdinal returns v's 1-indexed position in the type's own
// version history (first version ever created = 1), the per-type version
// number migration.py's @upgrader(from_version=N) addresses — distinct from
// SchemaVersionID, which is a single counter shared across every type in
// the catalog and therefore useless as an upgrader-chain coordinate.
func typeVersionOrdinal(ctx context.Context, backend Backend, kind model.TypeKind, typeName string, schemaVersionID int64) (int, error) {
	versions, err := backend.ListVersions(ctx, kind, typeName)
	if err != nil {
		return 0, err
	}
	for i, v := range versions {
		if v.SchemaVersionID == schemaVersionID {
			return i + 1, nil
		}
	}
	return 0, &ontoerrors.MigrationError{Message: "migrate: schema version not found in its own type's history"}
}

// diffType compares stored's canonical JSON against t's current schema,
// returning a TypeSchemaDiff and whether any difference was found at all.
// Fields present only in code are added_fields; present only in stored are
// removed_fields; present in both but with a different per-field JSON
// rendering are changed_fields.
func diffType(stored catalog.SchemaVersion, t RegisteredType, storedOrdinal int) (ontoerrors.TypeSchemaDiff, bool, error) {
	var storedDoc storedSchemaDoc
	if err := json.Unmarshal(stored.CanonicalJSON, &storedDoc); err != nil {
		return ontoerrors.TypeSchemaDiff{}, false, err
	}

	codeFields := model.SchemaFields(t.Fields)
	codeJSON := make(map[string]json.RawMessage, len(codeFields))
	for name, fs := range codeFields {
		b, err := json.Marshal(fs)
		if err != nil {
			return ontoerrors.TypeSchemaDiff{}, false, err
		}
		codeJSON[name] = b
	}

	diff := ontoerrors.TypeSchemaDiff{
		TypeKind:      string(t.Kind),
		TypeName:      t.Name,
		StoredVersion: storedOrdinal,
		ChangedFields: map[string]ontoerrors.FieldTypeChange{},
	}

	for name, raw := range codeJSON {
		old, ok := storedDoc.Fields[name]
		if !ok {
			diff.AddedFields = append(diff.AddedFields, name)
			continue
		}
		if !jsonEqual(old, raw) {
			diff.ChangedFields[name] = ontoerrors.FieldTypeChange{Old: decodeAny(old), New: decodeAny(raw)}
		}
	}
	for name := range storedDoc.Fields {
		if _, ok := codeJSON[name]; !ok {
			diff.RemovedFields = append(diff.RemovedFields, name)
		}
	}

	changed := len(diff.AddedFields) > 0 || len(diff.RemovedFields) > 0 || len(diff.ChangedFields) > 0
	return diff, changed, nil
}

func jsonEqual(a, b json.RawMessage) bool {
	return string(a) == string(b)
}

func decodeAny(raw json.RawMessage) any {
	var v any
	_ = json.Unmarshal(raw, &v)
	return v
}
