// SPDX-License-Identifier: Apache-2.0

// Package sqlquery compiles pkg/query's filter algebra into SQL executed
// against the embedded-SQL backend (pkg/sqlstore): comparisons become
// json_extract predicates, per §4.7, with endpoint (left.$/right.$)
// comparisons compiled into a correlated EXISTS sub-select against the
// endpoint type's own rows, restricted to the same temporal window.
package sqlquery

import (
	"context"
	"fmt"
	"strings"

	"github.com/lexiupon/ontologia/pkg/catalog"
	"github.com/lexiupon/ontologia/pkg/model"
	"github.com/lexiupon/ontologia/pkg/query"
	"github.com/lexiupon/ontologia/pkg/sqlstore"
)

// rowSource is the subset of sqlstore.Store this package needs, narrowed
// so tests can substitute a fake without a real sqlite file.
type rowSource interface {
	QueryFiltered(ctx context.Context, typeName string, asOf *int64, extraWhere string, extraArgs []any) ([]sqlstore.RowSnapshot, error)
	HistorySince(ctx context.Context, typeName string, q int64) ([]model.ChangeRecord, error)
	ListVersions(ctx context.Context, kind model.TypeKind, typeName string) ([]catalog.SchemaVersion, error)
}

// Compiler executes query.Query values against the embedded-SQL backend.
type Compiler struct {
	store rowSource
}

// New builds a Compiler over an open sqlstore.Store.
func New(store *sqlstore.Store) *Compiler { return &Compiler{store: store} }

// Execute runs q and returns its result. Queries whose filter contains an
// AnyPath node are fetched unfiltered and evaluated in Go (see
// containsAnyPath); every other filter shape compiles fully to SQL.
func (c *Compiler) Execute(ctx context.Context, q query.Query) (query.Result, error) {
	var result query.Result
	var err error

	switch q.Kind {
	case query.KindHistorySince:
		result, err = c.executeHistorySince(ctx, q)
	case query.KindLatest, query.KindAsOf:
		result, err = c.executeRows(ctx, q)
	default:
		return query.Result{}, fmt.Errorf("sqlquery: unknown query kind %q", q.Kind)
	}
	if err != nil {
		return query.Result{}, err
	}

	if diag := c.activationDiagnostic(ctx, q); diag != nil {
		result.Diagnostics = append(result.Diagnostics, *diag)
	}
	return result, nil
}

// activationDiagnostic flags a query whose commit point precedes the
// earliest activation of any version of q.TypeName, per §4.7: the type
// existed in the catalog but had no active schema yet at that point, so
// rows may be absent or thin rather than genuinely empty.
func (c *Compiler) activationDiagnostic(ctx context.Context, q query.Query) *query.Diagnostic {
	var queryCommit int64
	switch q.Kind {
	case query.KindAsOf:
		queryCommit = q.AsOfCommit
	case query.KindHistorySince:
		queryCommit = q.SinceCommit
	default:
		return nil
	}

	versions, err := c.store.ListVersions(ctx, q.TypeKind, q.TypeName)
	if err != nil || len(versions) == 0 {
		return nil
	}

	earliest := int64(-1)
	for _, v := range versions {
		if !v.Activated() {
			continue
		}
		if earliest == -1 || v.ActivationCommitID < earliest {
			earliest = v.ActivationCommitID
		}
	}
	if earliest == -1 || queryCommit >= earliest {
		return nil
	}
	return &query.Diagnostic{Reason: query.ReasonCommitBeforeActivation, ActivationCommitID: earliest}
}

func (c *Compiler) executeRows(ctx context.Context, q query.Query) (query.Result, error) {
	var asOf *int64
	if q.Kind == query.KindAsOf {
		v := q.AsOfCommit
		asOf = &v
	}

	var snapshots []sqlstore.RowSnapshot
	var err error

	if q.Filter != nil && containsAnyPath(q.Filter) {
		snapshots, err = c.store.QueryFiltered(ctx, q.TypeName, asOf, "", nil)
		if err != nil {
			return query.Result{}, err
		}
		snapshots, err = filterInGo(snapshots, q.Filter, c.resolveEndpoints(ctx, q, asOf))
		if err != nil {
			return query.Result{}, err
		}
	} else {
		where, args, err := c.compileFilter(q.Filter, q, asOf)
		if err != nil {
			return query.Result{}, err
		}
		snapshots, err = c.store.QueryFiltered(ctx, q.TypeName, asOf, where, args)
		if err != nil {
			return query.Result{}, err
		}
	}

	rows := make([]query.Row, 0, len(snapshots))
	for _, s := range snapshots {
		rows = append(rows, query.Row{
			EntityKey: s.EntityKey, LeftKey: s.LeftKey, RightKey: s.RightKey, InstanceKey: s.InstanceKey,
			Fields: s.Fields,
		})
	}

	query.SortRows(rows, q.OrderBy)
	rows = query.Paginate(rows, q)

	if len(q.Aggregates) > 0 {
		agg, err := query.ComputeAggregates(rows, q)
		if err != nil {
			return query.Result{}, err
		}
		return query.Result{Aggregates: agg}, nil
	}

	return query.Result{Rows: rows}, nil
}

func (c *Compiler) executeHistorySince(ctx context.Context, q query.Query) (query.Result, error) {
	changes, err := c.store.HistorySince(ctx, q.TypeName, q.SinceCommit)
	if err != nil {
		return query.Result{}, err
	}
	if q.Filter != nil {
		var filtered []model.ChangeRecord
		for _, ch := range changes {
			ok, err := query.Evaluate(q.Filter, ch.Fields, query.Endpoints{})
			if err != nil {
				return query.Result{}, err
			}
			if ok {
				filtered = append(filtered, ch)
			}
		}
		changes = filtered
	}
	return query.Result{ChangeRows: changes}, nil
}

// resolveEndpoints looks up the left/right endpoint entity fields for a
// relation row the Go-side AnyPath/endpoint fallback path needs. This is a
// best-effort lookup against the latest-known endpoint row at the query's
// as-of point; a missing endpoint resolves to an empty map rather than an
// error; so an endpoint comparison against a dangling reference simply
// never matches.
func (c *Compiler) resolveEndpoints(ctx context.Context, q query.Query, asOf *int64) endpointResolver {
	return endpointResolver{ctx: ctx, store: c.store, q: q, asOf: asOf}
}

type endpointResolver struct {
	ctx   context.Context
	store rowSource
	q     query.Query
	asOf  *int64
}

func (r endpointResolver) resolve(leftKey, rightKey string) query.Endpoints {
	var ep query.Endpoints
	if r.q.LeftTypeName != "" && leftKey != "" {
		if rows, err := r.store.QueryFiltered(r.ctx, r.q.LeftTypeName, r.asOf,
			"entity_key = ?", []any{leftKey}); err == nil && len(rows) == 1 {
			ep.Left = rows[0].Fields
		}
	}
	if r.q.RightTypeName != "" && rightKey != "" {
		if rows, err := r.store.QueryFiltered(r.ctx, r.q.RightTypeName, r.asOf,
			"entity_key = ?", []any{rightKey}); err == nil && len(rows) == 1 {
			ep.Right = rows[0].Fields
		}
	}
	return ep
}

func filterInGo(snapshots []sqlstore.RowSnapshot, f query.Filter, resolver endpointResolver) ([]sqlstore.RowSnapshot, error) {
	var out []sqlstore.RowSnapshot
	for _, s := range snapshots {
		ep := resolver.resolve(s.LeftKey, s.RightKey)
		ok, err := query.Evaluate(f, s.Fields, ep)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func containsAnyPath(f query.Filter) bool {
	switch v := f.(type) {
	case query.AnyPath:
		return true
	case query.Logical:
		for _, c := range v.Children {
			if containsAnyPath(c) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// compileFilter compiles a filter with no AnyPath node into a SQL WHERE
// fragment and its bound args.
func (c *Compiler) compileFilter(f query.Filter, q query.Query, asOf *int64) (string, []any, error) {
	if f == nil {
		return "", nil, nil
	}
	switch v := f.(type) {
	case query.Comparison:
		return c.compileComparison(v, q, asOf)
	case query.Logical:
		return c.compileLogical(v, q, asOf)
	default:
		return "", nil, fmt.Errorf("sqlquery: cannot compile filter type %T to SQL", f)
	}
}

func (c *Compiler) compileLogical(l query.Logical, q query.Query, asOf *int64) (string, []any, error) {
	if l.Op == query.LogicalNot {
		if len(l.Children) != 1 {
			return "", nil, fmt.Errorf("sqlquery: NOT requires exactly one child")
		}
		inner, args, err := c.compileFilter(l.Children[0], q, asOf)
		if err != nil {
			return "", nil, err
		}
		return "NOT (" + inner + ")", args, nil
	}

	joiner := " AND "
	if l.Op == query.LogicalOr {
		joiner = " OR "
	}
	var parts []string
	var args []any
	for _, child := range l.Children {
		sql, childArgs, err := c.compileFilter(child, q, asOf)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, "("+sql+")")
		args = append(args, childArgs...)
	}
	return strings.Join(parts, joiner), args, nil
}

func (c *Compiler) compileComparison(cmp query.Comparison, q query.Query, asOf *int64) (string, []any, error) {
	if cmp.Path.Root != query.RootSelf {
		return c.compileEndpointComparison(cmp, q, asOf)
	}

	extractor := fmt.Sprintf("json_extract(fields_json, '%s')", cmp.Path.JSONPath())
	return compareSQL(extractor, cmp.Op, cmp.Value)
}

func (c *Compiler) compileEndpointComparison(cmp query.Comparison, q query.Query, asOf *int64) (string, []any, error) {
	var endpointType, keyCol string
	switch cmp.Path.Root {
	case query.RootLeft:
		endpointType, keyCol = q.LeftTypeName, "left_key"
	case query.RootRight:
		endpointType, keyCol = q.RightTypeName, "right_key"
	}
	if endpointType == "" {
		return "", nil, fmt.Errorf("sqlquery: filter references %s endpoint but no type name was supplied with the query", cmp.Path.Root)
	}

	extractor := fmt.Sprintf("json_extract(ep.fields_json, '%s')", cmp.Path.JSONPath())
	innerSQL, innerArgs, err := compareSQL(extractor, cmp.Op, cmp.Value)
	if err != nil {
		return "", nil, err
	}

	validity := "ep.valid_to_commit_id IS NULL"
	var validityArgs []any
	if asOf != nil {
		validity = "ep.valid_from_commit_id <= ? AND (ep.valid_to_commit_id IS NULL OR ep.valid_to_commit_id > ?)"
		validityArgs = []any{*asOf, *asOf}
	}

	sql := fmt.Sprintf(
		"EXISTS (SELECT 1 FROM rows_store ep WHERE ep.type_name = ? AND ep.entity_key = rows_store.%s AND %s AND %s)",
		keyCol, validity, innerSQL)
	args := append([]any{endpointType}, validityArgs...)
	args = append(args, innerArgs...)
	return sql, args, nil
}

func compareSQL(extractor string, op query.CompOp, value any) (string, []any, error) {
	switch op {
	case query.OpIsNull:
		return extractor + " IS NULL", nil, nil
	case query.OpEQ:
		return extractor + " = ?", []any{value}, nil
	case query.OpNE:
		return "(" + extractor + " IS NULL OR " + extractor + " != ?)", []any{value}, nil
	case query.OpGT:
		return extractor + " > ?", []any{value}, nil
	case query.OpGE:
		return extractor + " >= ?", []any{value}, nil
	case query.OpLT:
		return extractor + " < ?", []any{value}, nil
	case query.OpLE:
		return extractor + " <= ?", []any{value}, nil
	case query.OpIN:
		values, ok := value.([]any)
		if !ok || len(values) == 0 {
			return "0", nil, nil
		}
		placeholders := strings.Repeat("?,", len(values))
		placeholders = placeholders[:len(placeholders)-1]
		return extractor + " IN (" + placeholders + ")", values, nil
	case query.OpLike:
		return extractor + " LIKE ?", []any{value}, nil
	case query.OpStartsWith:
		return extractor + " LIKE ?", []any{fmt.Sprint(value) + "%"}, nil
	case query.OpEndsWith:
		return extractor + " LIKE ?", []any{"%" + fmt.Sprint(value)}, nil
	case query.OpContains:
		return extractor + " LIKE ?", []any{"%" + fmt.Sprint(value) + "%"}, nil
	default:
		return "", nil, fmt.Errorf("sqlquery: unknown comparison op %q", op)
	}
}

