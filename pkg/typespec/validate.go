// SPDX-License-Identifier: Apache-2.0

package typespec

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schema.json
var schemaDocJSON []byte

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaDocJSON))
		if err != nil {
			compileErr = fmt.Errorf("typespec: decode bundled schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("type_spec.json", doc); err != nil {
			compileErr = fmt.Errorf("typespec: add schema resource: %w", err)
			return
		}
		sch, err := c.Compile("type_spec.json")
		if err != nil {
			compileErr = fmt.Errorf("typespec: compile schema: %w", err)
			return
		}
		compiled = sch
	})
	return compiled, compileErr
}

// ValidateDocument checks that a decoded JSON document (map[string]any, as
// produced by json.Unmarshal into `any`) has the shape of a type_spec node
// before it is trusted — used when reading a stored schema off disk, ahead
// of parsing it into a Spec tree.
func ValidateDocument(doc any) error {
	sch, err := compiledSchema()
	if err != nil {
		return err
	}
	return sch.Validate(doc)
}

// ValidateJSON is a convenience wrapper that unmarshals raw JSON bytes
// before validating.
func ValidateJSON(raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("typespec: invalid json: %w", err)
	}
	return ValidateDocument(doc)
}
