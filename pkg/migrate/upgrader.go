// SPDX-License-Identifier: Apache-2.0

package migrate

import (
	"fmt"
	"io"

	"sigs.k8s.io/yaml"

	"github.com/lexiupon/ontologia/pkg/ontoerrors"
)

// UpgraderFunc rewrites one type's field map from one schema version to the
// next, the Go shape of migration.py's @upgrader-decorated function. Unlike
// the Python original, it returns an error: a Go field transform has no
// equivalent of an uncaught exception silently aborting the interpreter.
type UpgraderFunc func(fields map[string]any) (map[string]any, error)

// UpgraderKey identifies a single version-to-version-plus-one step.
type UpgraderKey struct {
	TypeName    string
	FromVersion int
}

// UpgraderRegistry maps (type_name, from_version) to the function that
// upgrades a row from that version to the next, mirroring load_upgraders'
// return type.
type UpgraderRegistry map[UpgraderKey]UpgraderFunc

// ChainUpgraders composes registry's steps from fromVersion to toVersion
// (exclusive) into a single UpgraderFunc, translating migration.py's
// _chain_upgraders. It validates every intermediate step exists before
// returning anything, collecting every missing link into one
// MissingUpgraderError rather than failing on the first gap.
func ChainUpgraders(registry UpgraderRegistry, typeName string, fromVersion, toVersion int) (UpgraderFunc, error) {
	var missing []int
	var chain []UpgraderFunc

	for v := fromVersion; v < toVersion; v++ {
		fn, ok := registry[UpgraderKey{TypeName: typeName, FromVersion: v}]
		if !ok {
			missing = append(missing, v)
			continue
		}
		chain = append(chain, fn)
	}

	if len(missing) > 0 {
		return nil, &ontoerrors.MissingUpgraderError{Missing: map[string][]int{typeName: missing}}
	}

	return func(fields map[string]any) (map[string]any, error) {
		result := fields
		for _, fn := range chain {
			var err error
			result, err = fn(result)
			if err != nil {
				return nil, err
			}
		}
		return result, nil
	}, nil
}

// UpgraderManifest is a declarative upgrader-chain config file: the Go
// adaptation of load_upgraders' dynamic module import, which has no
// equivalent here (Go has no runtime import-by-path). Each entry declares
// one version step's field transform as data instead of code, in the
// teacher's own style of reading an operation list from a YAML file
// (pkg/migrations' Operations slice) rather than executing arbitrary code
// at migration time.
type UpgraderManifest struct {
	Upgraders []UpgraderSpec `json:"upgraders"`
}

// UpgraderSpec declares one (type_name, from_version) step as a rename /
// drop / set-default transform, applied in that order — the same order the
// worked example in migration.py's docstring performs by hand
// (fields["email"] = fields.pop("mail", None)).
type UpgraderSpec struct {
	TypeName    string         `json:"type_name"`
	FromVersion int            `json:"from_version"`
	Rename      map[string]string `json:"rename,omitempty"`
	Drop        []string       `json:"drop,omitempty"`
	SetDefaults map[string]any `json:"set_defaults,omitempty"`
}

// LoadUpgraderManifest parses an UpgraderManifest from YAML (or JSON, which
// is a YAML subset), via the teacher's sigs.k8s.io/yaml.
func LoadUpgraderManifest(r io.Reader) (UpgraderManifest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return UpgraderManifest{}, err
	}
	var m UpgraderManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return UpgraderManifest{}, fmt.Errorf("migrate: parse upgrader manifest: %w", err)
	}
	return m, nil
}

// CompileRegistry turns a manifest's declarative specs into an
// UpgraderRegistry of executable UpgraderFunc closures, returning
// MigrationError on a duplicate (type_name, from_version) entry, the Go
// analog of load_upgraders' duplicate-registration check.
func CompileRegistry(m UpgraderManifest) (UpgraderRegistry, error) {
	registry := make(UpgraderRegistry, len(m.Upgraders))
	for _, spec := range m.Upgraders {
		key := UpgraderKey{TypeName: spec.TypeName, FromVersion: spec.FromVersion}
		if _, exists := registry[key]; exists {
			return nil, &ontoerrors.MigrationError{
				Message: fmt.Sprintf("duplicate upgrader for %s from_version=%d", spec.TypeName, spec.FromVersion),
			}
		}
		registry[key] = compileSpec(spec)
	}
	return registry, nil
}

func compileSpec(spec UpgraderSpec) UpgraderFunc {
	return func(fields map[string]any) (map[string]any, error) {
		out := make(map[string]any, len(fields))
		for k, v := range fields {
			out[k] = v
		}
		for from, to := range spec.Rename {
			if v, ok := out[from]; ok {
				out[to] = v
				delete(out, from)
			}
		}
		for _, name := range spec.Drop {
			delete(out, name)
		}
		for name, v := range spec.SetDefaults {
			if _, ok := out[name]; !ok {
				out[name] = v
			}
		}
		return out, nil
	}
}
