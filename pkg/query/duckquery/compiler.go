// SPDX-License-Identifier: Apache-2.0

// Package duckquery compiles pkg/query's filter algebra into SQL executed
// by an in-process DuckDB engine over the object-store backend's Parquet
// commit files, per §4.7's "analytical-SQL dialect of an in-process
// columnar query engine" over the object store. DuckDB reads from local
// files, not an ObjectAPI, so resolved commit files are spooled to a
// scratch temp directory before each query and removed afterward.
package duckquery

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/lexiupon/ontologia/pkg/catalog"
	"github.com/lexiupon/ontologia/pkg/model"
	"github.com/lexiupon/ontologia/pkg/objectstore"
	"github.com/lexiupon/ontologia/pkg/query"
)

// fileStore is the subset of objectstore.Store this package needs, narrowed
// so tests can substitute a fake instead of standing up a real bucket.
type fileStore interface {
	Head(ctx context.Context) (int64, bool, error)
	ResolveFiles(ctx context.Context, kind model.TypeKind, typeName string, q int64) ([]string, []objectstore.Diagnostic, error)
	FetchFile(ctx context.Context, path string) ([]byte, error)
	ListVersions(ctx context.Context, kind model.TypeKind, typeName string) ([]catalog.SchemaVersion, error)
	LatestRows(ctx context.Context, kind model.TypeKind, typeName string) ([]objectstore.RowSnapshot, []objectstore.Diagnostic, error)
	RowsAsOf(ctx context.Context, kind model.TypeKind, typeName string, q int64) ([]objectstore.RowSnapshot, []objectstore.Diagnostic, error)
}

// Compiler executes query.Query values against the object-store backend via
// an in-process DuckDB engine.
type Compiler struct {
	store fileStore
}

// New builds a Compiler over an open objectstore.Store.
func New(store *objectstore.Store) *Compiler { return &Compiler{store: store} }

// Execute runs q and returns its result.
func (c *Compiler) Execute(ctx context.Context, q query.Query) (query.Result, error) {
	var result query.Result
	var err error

	switch q.Kind {
	case query.KindHistorySince:
		result, err = c.executeHistorySince(ctx, q)
	case query.KindLatest, query.KindAsOf:
		result, err = c.executeRows(ctx, q)
	default:
		return query.Result{}, fmt.Errorf("duckquery: unknown query kind %q", q.Kind)
	}
	if err != nil {
		return query.Result{}, err
	}

	if diag := c.activationDiagnostic(ctx, q); diag != nil {
		result.Diagnostics = append(result.Diagnostics, *diag)
	}
	return result, nil
}

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

func (c *Compiler) resolveCommit(ctx context.Context, q query.Query) (int64, bool, error) {
	if q.Kind == query.KindAsOf {
		return q.AsOfCommit, true, nil
	}
	return c.store.Head(ctx)
}

func (c *Compiler) executeRows(ctx context.Context, q query.Query) (query.Result, error) {
	commit, existed, err := c.resolveCommit(ctx, q)
	if err != nil {
		return query.Result{}, err
	}
	if !existed {
		return query.Result{}, nil
	}

	paths, diags, err := c.store.ResolveFiles(ctx, q.TypeKind, q.TypeName, commit)
	if err != nil {
		return query.Result{}, err
	}
	if len(paths) == 0 {
		return query.Result{Diagnostics: mapDiagnostics(diags)}, nil
	}

	local, cleanup, err := c.spool(ctx, paths)
	if err != nil {
		return query.Result{}, err
	}
	defer cleanup()

	pushSQL, pushArgs, pushable := "", []any(nil), true
	if q.Filter != nil {
		pushable = isPushable(q.Filter)
		if pushable {
			pushSQL, pushArgs, err = compileSelfFilter(q.Filter)
			if err != nil {
				return query.Result{}, err
			}
		}
	}

	rows, err := queryLatestRows(ctx, local, commit, pushSQL, pushArgs)
	if err != nil {
		return query.Result{}, err
	}

	if q.Filter != nil && !pushable {
		rows, err = c.filterInGo(ctx, rows, q)
		if err != nil {
			return query.Result{}, err
		}
	}

	query.SortRows(rows, q.OrderBy)
	rows = query.Paginate(rows, q)

	result := query.Result{Diagnostics: mapDiagnostics(diags)}
	if len(q.Aggregates) > 0 {
		agg, err := query.ComputeAggregates(rows, q)
		if err != nil {
			return query.Result{}, err
		}
		result.Aggregates = agg
		return result, nil
	}
	result.Rows = rows
	return result, nil
}

func (c *Compiler) executeHistorySince(ctx context.Context, q query.Query) (query.Result, error) {
	head, existed, err := c.store.Head(ctx)
	if err != nil {
		return query.Result{}, err
	}
	if !existed {
		return query.Result{}, nil
	}

	paths, diags, err := c.store.ResolveFiles(ctx, q.TypeKind, q.TypeName, head)
	if err != nil {
		return query.Result{}, err
	}
	if len(paths) == 0 {
		return query.Result{Diagnostics: mapDiagnostics(diags)}, nil
	}

	local, cleanup, err := c.spool(ctx, paths)
	if err != nil {
		return query.Result{}, err
	}
	defer cleanup()

	changes, err := queryHistorySince(ctx, local, q.SinceCommit)
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

	return query.Result{ChangeRows: changes, Diagnostics: mapDiagnostics(diags)}, nil
}

// spool downloads each resolved object path to a local temp file, since
// DuckDB's read_parquet reads the filesystem rather than an ObjectAPI.
func (c *Compiler) spool(ctx context.Context, paths []string) ([]string, func(), error) {
	dir, err := os.MkdirTemp("", "ontologia-duckquery-")
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { os.RemoveAll(dir) }

	local := make([]string, 0, len(paths))
	for i, p := range paths {
		data, err := c.store.FetchFile(ctx, p)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		dst := filepath.Join(dir, fmt.Sprintf("%d.parquet", i))
		if err := os.WriteFile(dst, data, 0o600); err != nil {
			cleanup()
			return nil, nil, err
		}
		local = append(local, dst)
	}
	return local, cleanup, nil
}

func quotedFileList(paths []string) string {
	quoted := make([]string, len(paths))
	for i, p := range paths {
		quoted[i] = "'" + strings.ReplaceAll(p, "'", "''") + "'"
	}
	return strings.Join(quoted, ", ")
}

// queryLatestRows opens an in-process DuckDB connection and returns the
// live (non-tombstoned) row per identity as of commit, applying an
// optional extra SQL predicate (already compiled by compileSelfFilter).
func queryLatestRows(ctx context.Context, files []string, commit int64, extraWhere string, extraArgs []any) ([]query.Row, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	defer db.Close()

	where := "WHERE rn = 1 AND kind NOT LIKE '%tombstone'"
	args := []any{commit}
	if extraWhere != "" {
		where += " AND (" + extraWhere + ")"
		args = append(args, extraArgs...)
	}

	sqlText := fmt.Sprintf(`
		SELECT entity_key, left_key, right_key, instance_key, fields_json
		FROM (
			SELECT *, row_number() OVER (
				PARTITION BY entity_key, left_key, right_key, instance_key
				ORDER BY commit_id DESC
			) AS rn
			FROM read_parquet([%s])
			WHERE commit_id <= ?
		) %s`, quotedFileList(files), where)

	rows, err := db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("duckdb query: %w", err)
	}
	defer rows.Close()

	var out []query.Row
	for rows.Next() {
		var r query.Row
		var fieldsJSON string
		if err := rows.Scan(&r.EntityKey, &r.LeftKey, &r.RightKey, &r.InstanceKey, &fieldsJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(fieldsJSON), &r.Fields); err != nil {
			return nil, fmt.Errorf("unmarshal row fields: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func queryHistorySince(ctx context.Context, files []string, since int64) ([]model.ChangeRecord, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	defer db.Close()

	sqlText := fmt.Sprintf(`
		SELECT commit_id, kind, type_name, entity_key, left_key, right_key, instance_key, fields_json, schema_version_id
		FROM read_parquet([%s])
		WHERE commit_id > ?
		ORDER BY commit_id ASC`, quotedFileList(files))

	rows, err := db.QueryContext(ctx, sqlText, since)
	if err != nil {
		return nil, fmt.Errorf("duckdb query: %w", err)
	}
	defer rows.Close()

	var out []model.ChangeRecord
	for rows.Next() {
		var c model.ChangeRecord
		var kind, fieldsJSON string
		if err := rows.Scan(&c.CommitID, &kind, &c.TypeName, &c.EntityKey, &c.LeftKey, &c.RightKey, &c.InstanceKey,
			&fieldsJSON, &c.SchemaVersionID); err != nil {
			return nil, err
		}
		c.Kind = model.ChangeKind(kind)
		if err := json.Unmarshal([]byte(fieldsJSON), &c.Fields); err != nil {
			return nil, fmt.Errorf("unmarshal change fields: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// filterInGo resolves endpoint fields (for relation queries) and runs the
// full filter through query.Evaluate, the fallback path for AnyPath and
// endpoint-rooted comparisons DuckDB's read_parquet result set can't answer
// without a second, correlated file set of its own.
func (c *Compiler) filterInGo(ctx context.Context, rows []query.Row, q query.Query) ([]query.Row, error) {
	var out []query.Row
	for _, r := range rows {
		ep, err := c.resolveEndpoints(ctx, q, r.LeftKey, r.RightKey)
		if err != nil {
			return nil, err
		}
		ok, err := query.Evaluate(q.Filter, r.Fields, ep)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (c *Compiler) resolveEndpoints(ctx context.Context, q query.Query, leftKey, rightKey string) (query.Endpoints, error) {
	var ep query.Endpoints
	if q.LeftTypeName != "" && leftKey != "" {
		if fields, ok, err := c.lookupEntity(ctx, q, q.LeftTypeName, leftKey); err != nil {
			return ep, err
		} else if ok {
			ep.Left = fields
		}
	}
	if q.RightTypeName != "" && rightKey != "" {
		if fields, ok, err := c.lookupEntity(ctx, q, q.RightTypeName, rightKey); err != nil {
			return ep, err
		} else if ok {
			ep.Right = fields
		}
	}
	return ep, nil
}

func (c *Compiler) lookupEntity(ctx context.Context, q query.Query, typeName, key string) (map[string]any, bool, error) {
	var rows []objectstore.RowSnapshot
	var err error
	if q.Kind == query.KindAsOf {
		rows, _, err = c.store.RowsAsOf(ctx, model.KindEntity, typeName, q.AsOfCommit)
	} else {
		rows, _, err = c.store.LatestRows(ctx, model.KindEntity, typeName)
	}
	if err != nil {
		return nil, false, err
	}
	for _, r := range rows {
		if r.EntityKey == key {
			return r.Fields, true, nil
		}
	}
	return nil, false, nil
}

func mapDiagnostics(diags []objectstore.Diagnostic) []query.Diagnostic {
	if len(diags) == 0 {
		return nil
	}
	out := make([]query.Diagnostic, 0, len(diags))
	for _, d := range diags {
		out = append(out, query.Diagnostic{Reason: d.Reason})
	}
	return out
}

// pushableOps is the set of comparisons safe to push into DuckDB as a text
// predicate over json_extract_string. Ordered comparisons (GT/GE/LT/LE) and
// IN are deliberately excluded: fields_json's values arrive at DuckDB as
// JSON-encoded text, and json_extract_string always returns a string, so
// "10" would sort before "9" under SQL's text ordering. Pushing only
// equality/null/string-match ops keeps every pushed comparison correct;
// everything else runs through query.Evaluate in Go, which compares the
// decoded Go values (float64 vs float64) instead of their JSON text forms.
var pushableOps = map[query.CompOp]bool{
	query.OpEQ: true, query.OpNE: true, query.OpIsNull: true,
	query.OpLike: true, query.OpStartsWith: true, query.OpEndsWith: true, query.OpContains: true,
}

// isPushable reports whether f can be compiled fully to SQL: no AnyPath
// anywhere, every Comparison rooted at $ rather than left.$/right.$, and
// every Comparison's operator in pushableOps. A filter that fails this
// check is evaluated entirely in Go instead of partially pushed down,
// trading some pushdown opportunity for a much simpler compiler.
func isPushable(f query.Filter) bool {
	switch v := f.(type) {
	case query.Comparison:
		return v.Path.Root == query.RootSelf && pushableOps[v.Op]
	case query.Logical:
		for _, c := range v.Children {
			if !isPushable(c) {
				return false
			}
		}
		return true
	case query.AnyPath:
		return false
	default:
		return false
	}
}

func compileSelfFilter(f query.Filter) (string, []any, error) {
	switch v := f.(type) {
	case query.Comparison:
		extractor := fmt.Sprintf("json_extract_string(fields_json, '%s')", v.Path.JSONPath())
		return compareSQL(extractor, v.Op, v.Value)
	case query.Logical:
		return compileLogical(v)
	default:
		return "", nil, fmt.Errorf("duckquery: cannot compile filter type %T to SQL", f)
	}
}

func compileLogical(l query.Logical) (string, []any, error) {
	if l.Op == query.LogicalNot {
		if len(l.Children) != 1 {
			return "", nil, fmt.Errorf("duckquery: NOT requires exactly one child")
		}
		inner, args, err := compileSelfFilter(l.Children[0])
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
		sqlText, childArgs, err := compileSelfFilter(child)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, "("+sqlText+")")
		args = append(args, childArgs...)
	}
	return strings.Join(parts, joiner), args, nil
}

// compareSQL compiles one of pushableOps against extractor. Callers must
// have already checked the op is pushable (isPushable); ordered/IN
// comparisons have no case here because isPushable never lets them reach
// this function.
func compareSQL(extractor string, op query.CompOp, value any) (string, []any, error) {
	switch op {
	case query.OpIsNull:
		return extractor + " IS NULL", nil, nil
	case query.OpEQ:
		return extractor + " = ?", []any{fmt.Sprint(value)}, nil
	case query.OpNE:
		return "(" + extractor + " IS NULL OR " + extractor + " != ?)", []any{fmt.Sprint(value)}, nil
	case query.OpLike:
		return extractor + " LIKE ?", []any{fmt.Sprint(value)}, nil
	case query.OpStartsWith:
		return extractor + " LIKE ?", []any{fmt.Sprint(value) + "%"}, nil
	case query.OpEndsWith:
		return extractor + " LIKE ?", []any{"%" + fmt.Sprint(value)}, nil
	case query.OpContains:
		return extractor + " LIKE ?", []any{"%" + fmt.Sprint(value) + "%"}, nil
	default:
		return "", nil, fmt.Errorf("duckquery: unreachable comparison op %q", op)
	}
}
