// SPDX-License-Identifier: Apache-2.0

package query

import "github.com/lexiupon/ontologia/pkg/model"

// Kind selects which of §4.7's three query shapes to run.
type Kind string

const (
	KindLatest        Kind = "latest"
	KindAsOf          Kind = "as_of"
	KindHistorySince  Kind = "history_since"
)

// SortDirection orders an OrderBy clause.
type SortDirection string

const (
	Ascending  SortDirection = "asc"
	Descending SortDirection = "desc"
)

// OrderBy sorts results by one field path.
type OrderBy struct {
	Path      FieldPath
	Direction SortDirection
}

// AggFunc names an aggregate function over a field path.
type AggFunc string

const (
	AggCount      AggFunc = "count"
	AggSum        AggFunc = "sum"
	AggAvg        AggFunc = "avg"
	AggMin        AggFunc = "min"
	AggMax        AggFunc = "max"
	AggCountWhere AggFunc = "count_where"
	AggAvgLen     AggFunc = "avg_len"
)

// Aggregate is one named aggregate computation, per §4.7.
type Aggregate struct {
	Name  string // the key results are reported under
	Func  AggFunc
	Path  FieldPath // unused for AggCount
	Where Filter    // AggCountWhere only
}

// GroupBy groups rows by one or more field paths before aggregates apply.
type GroupBy struct {
	Paths []FieldPath
}

// Query describes one temporal read against a single type, per §4.7.
type Query struct {
	Kind     Kind
	TypeKind model.TypeKind
	TypeName string

	// AsOfCommit is the query commit for KindAsOf.
	AsOfCommit int64
	// SinceCommit is the floor commit (exclusive) for KindHistorySince.
	SinceCommit int64

	// LeftTypeName/RightTypeName name the endpoint entity types for
	// relation queries whose Filter references left.$/right.$ paths.
	// Required whenever Filter addresses those roots.
	LeftTypeName  string
	RightTypeName string

	Filter     Filter
	Aggregates []Aggregate
	GroupBy    *GroupBy

	OrderBy []OrderBy
	Limit   int
	Offset  int

	// CursorField/CursorValue implement cursor-style pagination over
	// field > last_seen_value, used instead of Offset for large result
	// sets, per §4.7's pagination note.
	CursorField *FieldPath
	CursorValue any
}

// Row is one result row: the materialized fields plus the identity columns
// needed to address it (entity_key, or left/right/instance for relations).
type Row struct {
	EntityKey   string
	LeftKey     string
	RightKey    string
	InstanceKey string
	Fields      map[string]any
}

// AggregateRow is one row of a grouped aggregate result: the group-by key
// values (in GroupBy.Paths order, nil entries preserved to keep null vs.
// missing distinct) plus the computed aggregate values by name.
type AggregateRow struct {
	GroupKey []any
	Values   map[string]any
}

// Result is what a query compiler returns: either a row projection or,
// when Aggregates is non-empty, a grouped aggregate projection — never
// both.
type Result struct {
	Rows        []Row
	ChangeRows  []model.ChangeRecord // KindHistorySince only
	Aggregates  []AggregateRow
	Diagnostics []Diagnostic
}
