// SPDX-License-Identifier: Apache-2.0

// Package query implements the temporal query engine (C7): the filter
// algebra, field-path addressing, and query/aggregate shapes shared by the
// two backend compilers in pkg/query/sqlquery and pkg/query/duckquery.
package query

// CompOp is a comparison operator usable in a Comparison filter node.
type CompOp string

const (
	OpEQ         CompOp = "=="
	OpNE         CompOp = "!="
	OpGT         CompOp = ">"
	OpGE         CompOp = ">="
	OpLT         CompOp = "<"
	OpLE         CompOp = "<="
	OpIN         CompOp = "IN"
	OpIsNull     CompOp = "IS_NULL"
	OpLike       CompOp = "LIKE"
	OpStartsWith CompOp = "STARTSWITH"
	OpEndsWith   CompOp = "ENDSWITH"
	OpContains   CompOp = "CONTAINS"
)

// LogicalOp combines child filters.
type LogicalOp string

const (
	LogicalAnd LogicalOp = "AND"
	LogicalOr  LogicalOp = "OR"
	LogicalNot LogicalOp = "NOT"
)

// Filter is the small predicate algebra of §4.7: a Comparison, a Logical
// combination of filters, or an AnyPath existential over a list field.
// Exactly one of the three concrete types below satisfies it.
type Filter interface {
	isFilter()
}

// Comparison tests one field path against a value.
type Comparison struct {
	Path  FieldPath
	Op    CompOp
	Value any // unused for OpIsNull; []any for OpIN
}

func (Comparison) isFilter() {}

// Logical combines children with AND/OR, or negates a single child with NOT.
type Logical struct {
	Op       LogicalOp
	Children []Filter
}

func (Logical) isFilter() {}

// AnyPath is an existential predicate over a list-valued field: at least
// one element of the list at ListPath must satisfy Inner, addressed
// relative to the element (e.g. Inner's path "$.role" reaches
// element.role for a list of objects).
type AnyPath struct {
	ListPath FieldPath
	Inner    Comparison
}

func (AnyPath) isFilter() {}
