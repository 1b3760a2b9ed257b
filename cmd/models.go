// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/lexiupon/ontologia/pkg/migrate"
	"github.com/lexiupon/ontologia/pkg/model"
	"github.com/lexiupon/ontologia/pkg/typespec"
)

// modelField is the on-disk shape of one field in a --models manifest.
// Discovering these from an application's own source types is the
// out-of-scope "model-loading glue" external collaborator (spec.md §1
// Non-goals); this manifest format is the thin bridge the CLI accepts
// instead, already expressed in C1's own type_spec JSON.
type modelField struct {
	Name        string        `json:"name"`
	TypeSpec    *typespec.Spec `json:"type_spec"`
	PrimaryKey  bool          `json:"primary_key,omitempty"`
	InstanceKey bool          `json:"instance_key,omitempty"`
	Index       bool          `json:"index,omitempty"`
}

type modelType struct {
	Kind   model.TypeKind `json:"kind"`
	Name   string         `json:"name"`
	Fields []modelField   `json:"fields"`
}

// loadModels reads a --models manifest file into the RegisteredType slice
// migrate.Plan/Apply compare stored schemas against.
func loadModels(path string) ([]migrate.RegisteredType, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cmd: read models manifest %q: %w", path, err)
	}

	var decoded []modelType
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("cmd: parse models manifest %q: %w", path, err)
	}

	types := make([]migrate.RegisteredType, 0, len(decoded))
	for _, mt := range decoded {
		fields := make([]model.Field, 0, len(mt.Fields))
		for _, f := range mt.Fields {
			fields = append(fields, model.Field{
				Name:        f.Name,
				TypeSpec:    f.TypeSpec,
				PrimaryKey:  f.PrimaryKey,
				InstanceKey: f.InstanceKey,
				Index:       f.Index,
			})
		}
		types = append(types, migrate.RegisteredType{Kind: mt.Kind, Name: mt.Name, Fields: fields})
	}
	return types, nil
}
