// SPDX-License-Identifier: Apache-2.0

package query

import (
	"fmt"
	"sort"
	"strings"
)

// LookupPath reads the value a FieldPath addresses out of fields, the same
// traversal Evaluate's resolve does but exported for the backend compilers'
// post-SQL sort/aggregate/paginate stages, which no longer have a row map
// keyed by anything but plain field names.
func LookupPath(fields map[string]any, p FieldPath) (any, bool) {
	var cur any = fields
	for _, seg := range p.Segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func compareAny(a, b any) int {
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	return strings.Compare(as, bs)
}

// SortRows orders rows in place by orderBy, stably, falling through
// tie-breaking clauses in order the way a SQL multi-column ORDER BY does.
func SortRows(rows []Row, orderBy []OrderBy) {
	if len(orderBy) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, ob := range orderBy {
			vi, _ := LookupPath(rows[i].Fields, ob.Path)
			vj, _ := LookupPath(rows[j].Fields, ob.Path)
			cmp := compareAny(vi, vj)
			if cmp == 0 {
				continue
			}
			if ob.Direction == Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

// Paginate applies q's cursor filter, offset, and limit to rows in that
// order, per §4.7's pagination note (cursor-style pagination supersedes
// Offset when CursorField is set, rather than combining with it).
func Paginate(rows []Row, q Query) []Row {
	if q.CursorField != nil {
		var filtered []Row
		for _, r := range rows {
			v, ok := LookupPath(r.Fields, *q.CursorField)
			if ok && compareAny(v, q.CursorValue) > 0 {
				filtered = append(filtered, r)
			}
		}
		rows = filtered
	}
	if q.CursorField == nil && q.Offset > 0 {
		if q.Offset >= len(rows) {
			return nil
		}
		rows = rows[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(rows) {
		rows = rows[:q.Limit]
	}
	return rows
}

// ComputeAggregates evaluates q.Aggregates over rows, grouped by q.GroupBy
// when set. Both backend compilers call this after fetching/filtering their
// own row set: the aggregate set per query is small and fixed, so a second
// round trip through either backend's SQL engine buys nothing over
// computing it here once, in one place, the same way for both backends.
func ComputeAggregates(rows []Row, q Query) ([]AggregateRow, error) {
	groups := map[string][]Row{}
	var groupKeys []string
	keyValues := map[string][]any{}

	var groupPaths []FieldPath
	if q.GroupBy != nil {
		groupPaths = q.GroupBy.Paths
	}

	for _, r := range rows {
		key, values := groupKeyFor(r, groupPaths)
		if _, seen := groups[key]; !seen {
			groupKeys = append(groupKeys, key)
			keyValues[key] = values
		}
		groups[key] = append(groups[key], r)
	}

	out := make([]AggregateRow, 0, len(groupKeys))
	for _, key := range groupKeys {
		grouped := groups[key]
		values := map[string]any{}
		for _, agg := range q.Aggregates {
			v, err := computeOneAggregate(grouped, agg)
			if err != nil {
				return nil, err
			}
			values[agg.Name] = v
		}
		out = append(out, AggregateRow{GroupKey: keyValues[key], Values: values})
	}
	return out, nil
}

func groupKeyFor(r Row, paths []FieldPath) (string, []any) {
	if len(paths) == 0 {
		return "", nil
	}
	key := ""
	values := make([]any, 0, len(paths))
	for _, p := range paths {
		v, ok := LookupPath(r.Fields, p)
		if !ok {
			v = nil
		}
		values = append(values, v)
		key += fmt.Sprintf("%v\x1f", v)
	}
	return key, values
}

func computeOneAggregate(rows []Row, agg Aggregate) (any, error) {
	switch agg.Func {
	case AggCount:
		return int64(len(rows)), nil
	case AggCountWhere:
		n := int64(0)
		for _, r := range rows {
			ok, err := Evaluate(agg.Where, r.Fields, Endpoints{})
			if err != nil {
				return nil, err
			}
			if ok {
				n++
			}
		}
		return n, nil
	case AggSum, AggAvg, AggMin, AggMax:
		return numericAggregate(rows, agg)
	case AggAvgLen:
		return avgLenAggregate(rows, agg)
	default:
		return nil, fmt.Errorf("query: unknown aggregate function %q", agg.Func)
	}
}

func numericAggregate(rows []Row, agg Aggregate) (any, error) {
	var sum float64
	var count int
	var min, max float64
	for _, r := range rows {
		v, ok := LookupPath(r.Fields, agg.Path)
		if !ok || v == nil {
			continue
		}
		f, ok := v.(float64)
		if !ok {
			continue
		}
		if count == 0 || f < min {
			min = f
		}
		if count == 0 || f > max {
			max = f
		}
		sum += f
		count++
	}
	if count == 0 {
		return nil, nil
	}
	switch agg.Func {
	case AggSum:
		return sum, nil
	case AggAvg:
		return sum / float64(count), nil
	case AggMin:
		return min, nil
	case AggMax:
		return max, nil
	}
	return nil, fmt.Errorf("query: unreachable numeric aggregate %q", agg.Func)
}

// avgLenAggregate averages the length of a string or list field across rows
// where it is present, per §4.7's avg_len aggregate (e.g. average number of
// roles per user).
func avgLenAggregate(rows []Row, agg Aggregate) (any, error) {
	var sum float64
	var count int
	for _, r := range rows {
		v, ok := LookupPath(r.Fields, agg.Path)
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			sum += float64(len(t))
			count++
		case []any:
			sum += float64(len(t))
			count++
		}
	}
	if count == 0 {
		return nil, nil
	}
	return sum / float64(count), nil
}
