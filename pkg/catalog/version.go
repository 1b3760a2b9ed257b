// SPDX-License-Identifier: Apache-2.0

package catalog

import "golang.org/x/mod/semver"

// FormatCompatibility is the result of comparing the engine binary's
// version against the catalog_format_version stamped into storage at init
// time.
type FormatCompatibility int

const (
	FormatCompatCheckSkipped FormatCompatibility = iota
	FormatCompatNotInitialized
	FormatCompatCatalogOlder
	FormatCompatCatalogEqual
	FormatCompatCatalogNewer
)

// CheckFormatCompatibility compares engineVersion (the running binary's
// semantic version) against catalogFormatVersion (stamped at init time).
// Development builds and unstamped/uninitialized catalogs skip the check
// rather than reporting false drift.
func CheckFormatCompatibility(engineVersion, catalogFormatVersion string, initialized bool) FormatCompatibility {
	if engineVersion == "development" {
		return FormatCompatCheckSkipped
	}
	if !initialized {
		return FormatCompatNotInitialized
	}
	if catalogFormatVersion == "" || catalogFormatVersion == "development" {
		return FormatCompatCheckSkipped
	}

	engine := ensureVPrefix(engineVersion)
	catalogV := ensureVPrefix(catalogFormatVersion)
	if !semver.IsValid(engine) || !semver.IsValid(catalogV) {
		return FormatCompatCheckSkipped
	}

	switch semver.Compare(semver.Canonical(catalogV), semver.Canonical(engine)) {
	case -1:
		return FormatCompatCatalogOlder
	case 1:
		return FormatCompatCatalogNewer
	default:
		return FormatCompatCatalogEqual
	}
}

func ensureVPrefix(v string) string {
	if len(v) > 0 && v[0] != 'v' {
		return "v" + v
	}
	return v
}
