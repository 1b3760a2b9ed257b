// SPDX-License-Identifier: Apache-2.0

package query

import (
	"fmt"
	"regexp"
	"strings"
)

// Root names which row's fields_json a FieldPath addresses.
type Root string

const (
	// RootSelf addresses the queried row's own fields.
	RootSelf Root = ""
	// RootLeft addresses the left endpoint entity's fields (relation
	// queries only; the left entity type must be supplied with the query).
	RootLeft Root = "left"
	// RootRight addresses the right endpoint entity's fields (relation
	// queries only).
	RootRight Root = "right"
)

var pathSegmentRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// FieldPath is a parsed "$.a.b.c" / "left.$.a.b" / "right.$.a.b" address
// into a row's JSON-encoded fields, per §4.7.
type FieldPath struct {
	Root     Root
	Segments []string
}

// ParsePath parses raw into a FieldPath, rejecting malformed paths before
// execution rather than letting them reach a query compiler. Segments must
// match [A-Za-z_][A-Za-z0-9_]*.
func ParsePath(raw string) (FieldPath, error) {
	root := RootSelf
	rest := raw
	switch {
	case strings.HasPrefix(raw, "left.$"):
		root, rest = RootLeft, strings.TrimPrefix(raw, "left.")
	case strings.HasPrefix(raw, "right.$"):
		root, rest = RootRight, strings.TrimPrefix(raw, "right.")
	}

	if !strings.HasPrefix(rest, "$") {
		return FieldPath{}, fmt.Errorf("query: field path %q must start with $", raw)
	}
	rest = strings.TrimPrefix(rest, "$")

	var segments []string
	if rest != "" {
		if !strings.HasPrefix(rest, ".") {
			return FieldPath{}, fmt.Errorf("query: field path %q missing '.' after $", raw)
		}
		segments = strings.Split(strings.TrimPrefix(rest, "."), ".")
		for _, seg := range segments {
			if !pathSegmentRE.MatchString(seg) {
				return FieldPath{}, fmt.Errorf("query: invalid path segment %q in %q", seg, raw)
			}
		}
	}

	return FieldPath{Root: root, Segments: segments}, nil
}

// MustParsePath is ParsePath for call sites (tests, static query
// construction) that already know the path is well-formed.
func MustParsePath(raw string) FieldPath {
	p, err := ParsePath(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// JSONPath renders the path's SQLite/DuckDB-compatible json_extract
// argument, e.g. "$.a.b.c", or "$" for the root itself.
func (p FieldPath) JSONPath() string {
	if len(p.Segments) == 0 {
		return "$"
	}
	return "$." + strings.Join(p.Segments, ".")
}

// String renders the path the way it was written, e.g. "left.$.a.b".
func (p FieldPath) String() string {
	jp := p.JSONPath()
	if p.Root == RootSelf {
		return jp
	}
	return string(p.Root) + "." + jp
}
