// SPDX-License-Identifier: Apache-2.0

package query

import (
	"fmt"
	"strings"
)

// Endpoints supplies the left/right entity fields a Comparison rooted at
// left.$/right.$ needs, resolved by the caller (the endpoint key lookup
// differs by backend) before Evaluate is called.
type Endpoints struct {
	Left  map[string]any
	Right map[string]any
}

// Evaluate runs f against row (and, for endpoint-rooted comparisons, the
// supplied endpoints) entirely in Go. Both backend compilers push down
// what their SQL engine can express and fall back to Evaluate for the
// rest: sqlquery uses it for AnyPath (SQLite's json_each makes this
// pushdown possible too, but a Go-side existential check is simpler and
// is only ever run against decoded JSON the database already parsed to
// send it across), and duckquery uses it for endpoint comparisons DuckDB
// would otherwise need a correlated join to express.
func Evaluate(f Filter, row map[string]any, endpoints Endpoints) (bool, error) {
	switch v := f.(type) {
	case Comparison:
		return evalComparison(v, row, endpoints)
	case Logical:
		return evalLogical(v, row, endpoints)
	case AnyPath:
		return evalAnyPath(v, row, endpoints)
	default:
		return false, fmt.Errorf("query: unknown filter type %T", f)
	}
}

func evalLogical(l Logical, row map[string]any, endpoints Endpoints) (bool, error) {
	switch l.Op {
	case LogicalNot:
		if len(l.Children) != 1 {
			return false, fmt.Errorf("query: NOT requires exactly one child")
		}
		r, err := Evaluate(l.Children[0], row, endpoints)
		return !r, err
	case LogicalAnd:
		for _, c := range l.Children {
			r, err := Evaluate(c, row, endpoints)
			if err != nil {
				return false, err
			}
			if !r {
				return false, nil
			}
		}
		return true, nil
	case LogicalOr:
		for _, c := range l.Children {
			r, err := Evaluate(c, row, endpoints)
			if err != nil {
				return false, err
			}
			if r {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("query: unknown logical op %q", l.Op)
	}
}

func evalAnyPath(a AnyPath, row map[string]any, endpoints Endpoints) (bool, error) {
	listVal, ok := resolve(a.ListPath, row, endpoints)
	if !ok {
		return false, nil
	}
	list, ok := listVal.([]any)
	if !ok {
		return false, nil
	}
	for _, elem := range list {
		elemMap, ok := elem.(map[string]any)
		if !ok {
			continue
		}
		ok, err := evalComparison(a.Inner, elemMap, endpoints)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func evalComparison(c Comparison, row map[string]any, endpoints Endpoints) (bool, error) {
	val, present := resolve(c.Path, row, endpoints)

	switch c.Op {
	case OpIsNull:
		return !present || val == nil, nil
	case OpEQ:
		return present && looseEqual(val, c.Value), nil
	case OpNE:
		return !present || !looseEqual(val, c.Value), nil
	case OpIN:
		values, ok := c.Value.([]any)
		if !ok {
			return false, fmt.Errorf("query: IN requires a list value")
		}
		if !present {
			return false, nil
		}
		for _, want := range values {
			if looseEqual(val, want) {
				return true, nil
			}
		}
		return false, nil
	case OpGT, OpGE, OpLT, OpLE:
		if !present {
			return false, nil
		}
		return compareOrdered(c.Op, val, c.Value)
	case OpLike:
		return present && sqlLikeMatch(asString(val), asString(c.Value)), nil
	case OpStartsWith:
		return present && strings.HasPrefix(asString(val), asString(c.Value)), nil
	case OpEndsWith:
		return present && strings.HasSuffix(asString(val), asString(c.Value)), nil
	case OpContains:
		return present && strings.Contains(asString(val), asString(c.Value)), nil
	default:
		return false, fmt.Errorf("query: unknown comparison op %q", c.Op)
	}
}

func resolve(path FieldPath, row map[string]any, endpoints Endpoints) (any, bool) {
	base := row
	switch path.Root {
	case RootLeft:
		base = endpoints.Left
	case RootRight:
		base = endpoints.Right
	}
	var cur any = base
	for _, seg := range path.Segments {
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

func looseEqual(a, b any) bool {
	af, aok := asNumber(a)
	bf, bok := asNumber(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func compareOrdered(op CompOp, a, b any) (bool, error) {
	af, aok := asNumber(a)
	bf, bok := asNumber(b)
	if aok && bok {
		switch op {
		case OpGT:
			return af > bf, nil
		case OpGE:
			return af >= bf, nil
		case OpLT:
			return af < bf, nil
		case OpLE:
			return af <= bf, nil
		}
	}
	as, bs := asString(a), asString(b)
	switch op {
	case OpGT:
		return as > bs, nil
	case OpGE:
		return as >= bs, nil
	case OpLT:
		return as < bs, nil
	case OpLE:
		return as <= bs, nil
	}
	return false, fmt.Errorf("query: unreachable ordered comparison op %q", op)
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// sqlLikeMatch implements SQL LIKE's '%'/'_' wildcards against s.
func sqlLikeMatch(s, pattern string) bool {
	return likeMatch([]rune(s), []rune(pattern))
}

func likeMatch(s, p []rune) bool {
	if len(p) == 0 {
		return len(s) == 0
	}
	switch p[0] {
	case '%':
		if likeMatch(s, p[1:]) {
			return true
		}
		for i := range s {
			if likeMatch(s[i+1:], p[1:]) {
				return true
			}
		}
		return false
	case '_':
		if len(s) == 0 {
			return false
		}
		return likeMatch(s[1:], p[1:])
	default:
		if len(s) == 0 || s[0] != p[0] {
			return false
		}
		return likeMatch(s[1:], p[1:])
	}
}
