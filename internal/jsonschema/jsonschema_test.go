// SPDX-License-Identifier: Apache-2.0

// Package jsonschema is a table-test harness validating canonical
// type_spec JSON documents (C1) against pkg/typespec/schema.json, adapted
// from the teacher's txtar-based jsonschema_test.go harness: each fixture
// under testdata/ is a two-file txtar archive (the document, then a bare
// "true"/"false" expectation), retargeted from the teacher's Postgres
// migration-schema validation to C1's type_spec shape and from
// santhosh-tekuri/jsonschema/v5 to the v6 API pkg/typespec/validate.go
// already wires.
package jsonschema

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/tools/txtar"

	"github.com/lexiupon/ontologia/pkg/typespec"
)

const testDataDir = "./testdata"

func TestTypeSpecSchemaValidation(t *testing.T) {
	t.Parallel()

	files, err := os.ReadDir(testDataDir)
	assert.NoError(t, err)

	for _, file := range files {
		t.Run(file.Name(), func(t *testing.T) {
			ac, err := txtar.ParseFile(filepath.Join(testDataDir, file.Name()))
			assert.NoError(t, err)
			assert.Len(t, ac.Files, 2)

			var v any
			assert.NoError(t, json.Unmarshal(ac.Files[0].Data, &v))

			shouldValidate, err := strconv.ParseBool(strings.TrimSpace(string(ac.Files[1].Data)))
			assert.NoError(t, err)

			err = typespec.ValidateDocument(v)
			if shouldValidate && err != nil {
				t.Errorf("%#v", err)
			} else if !shouldValidate && err == nil {
				t.Errorf("expected %q to be invalid", ac.Files[0].Name)
			}
		})
	}
}
