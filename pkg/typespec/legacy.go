// SPDX-License-Identifier: Apache-2.0

package typespec

import (
	"regexp"
	"strings"
)

// legacyClassRE matches Python's repr of a bare class, e.g. "<class 'str'>".
var legacyClassRE = regexp.MustCompile(`^<class '(\w+)'>$`)

var legacySimpleNames = map[string]bool{
	ScalarStr: true, ScalarInt: true, ScalarFloat: true, ScalarBool: true, ScalarNoneType: true,
}

// SynthesizeFromLegacy attempts to parse a historical free-form type string
// (as stored by schemas predating the canonical encoder) into a Spec. It
// returns nil, false when the string cannot be parsed, matching the
// original's "unparseable strings yield a verbatim primitive" contract one
// level up: callers that get (nil, false) should fall back to
// Primitive(typeStr) themselves, since an unparseable *outer* string is
// still a valid primitive, while an unparseable *inner* string inside a
// recognized wrapper is handled here via recursion.
func SynthesizeFromLegacy(typeStr string) (*Spec, bool) {
	if m := legacyClassRE.FindStringSubmatch(typeStr); m != nil {
		return Primitive(m[1]), true
	}

	if strings.HasPrefix(typeStr, "typing.Optional[") && strings.HasSuffix(typeStr, "]") {
		inner := typeStr[len("typing.Optional[") : len(typeStr)-1]
		innerSpec, ok := SynthesizeFromLegacy(inner)
		if !ok {
			innerSpec = Primitive(inner)
		}
		return Optional(innerSpec), true
	}

	for _, prefix := range []string{"typing.List[", "list["} {
		if strings.HasPrefix(typeStr, prefix) && strings.HasSuffix(typeStr, "]") {
			inner := typeStr[len(prefix) : len(typeStr)-1]
			innerSpec, ok := SynthesizeFromLegacy(inner)
			if !ok {
				innerSpec = Primitive(inner)
			}
			return List(innerSpec), true
		}
	}

	if legacySimpleNames[typeStr] {
		return Primitive(typeStr), true
	}

	return nil, false
}

// SynthesizeTypeSpec is the top-level legacy entry point matching §4.1's
// "unparseable strings yield {kind:primitive, name:<verbatim>}" guarantee:
// it never fails to produce some spec.
func SynthesizeTypeSpec(typeStr string) *Spec {
	if spec, ok := SynthesizeFromLegacy(typeStr); ok {
		return spec
	}
	return Primitive(typeStr)
}
