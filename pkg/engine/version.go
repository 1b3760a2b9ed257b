// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/mod/semver"
)

// VersionCompatibility is the result of comparing the running binary's
// version (set with WithBinaryVersion) against the catalog_format_version
// stamped into the opened store at init time. Grounded on the teacher's state.VersionCompatibility.
type VersionCompatibility int

const (
	VersionCompatCheckSkipped VersionCompatibility = iota
	VersionCompatNotInitialized
	VersionCompatVersionSchemaOlder
	VersionCompatVersionSchemaEqual
	VersionCompatVersionSchemaNewer
)

func (v VersionCompatibility) String() string {
	switch v {
	case VersionCompatCheckSkipped:
		return "check-skipped"
	case VersionCompatNotInitialized:
		return "not-initialized"
	case VersionCompatVersionSchemaOlder:
		return "catalog-older-than-binary"
	case VersionCompatVersionSchemaEqual:
		return "catalog-matches-binary"
	case VersionCompatVersionSchemaNewer:
		return "catalog-newer-than-binary"
	default:
		return fmt.Sprintf("VersionCompatibility(%d)", int(v))
	}
}

// MarshalJSON renders the string form, so InfoResult's JSON output names the
// comparison outcome instead of its underlying int.
func (v VersionCompatibility) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

// VersionCompatibility compares the running binary's version (set with
// WithBinaryVersion) against the catalog_format_version recorded in the
// opened store, which Init stamps from CatalogFormatVersion. It never fails the caller: an
// indeterminate comparison (unreadable stamp, invalid semver, "development"
// binary) reports VersionCompatCheckSkipped rather than an error, per §3's
// "reports... without failing".
func (e *Engine) VersionCompatibility(ctx context.Context) (VersionCompatibility, error) {
	if e.binaryVersion == "" || e.binaryVersion == "development" {
		return VersionCompatCheckSkipped, nil
	}

	stored, known, err := e.catalogFormatVersion(ctx)
	if err != nil {
		return VersionCompatCheckSkipped, err
	}
	if !known {
		return VersionCompatNotInitialized, nil
	}
	if stored == "development" {
		return VersionCompatCheckSkipped, nil
	}

	storedV := ensureVPrefix(stored)
	binaryV := ensureVPrefix(e.binaryVersion)
	if !semver.IsValid(storedV) || !semver.IsValid(binaryV) {
		return VersionCompatCheckSkipped, nil
	}
	storedV = semver.Canonical(storedV)
	binaryV = semver.Canonical(binaryV)

	switch semver.Compare(storedV, binaryV) {
	case -1:
		return VersionCompatVersionSchemaOlder, nil
	case 1:
		return VersionCompatVersionSchemaNewer, nil
	default:
		return VersionCompatVersionSchemaEqual, nil
	}
}

// catalogFormatVersion dispatches to whichever backend is open.
func (e *Engine) catalogFormatVersion(ctx context.Context) (string, bool, error) {
	if e.sql != nil {
		return e.sql.CatalogFormatVersion(ctx)
	}
	return e.obj.CatalogFormatVersion(ctx)
}

func ensureVPrefix(v string) string {
	if v == "" || v[0] == 'v' {
		return v
	}
	return "v" + v
}
