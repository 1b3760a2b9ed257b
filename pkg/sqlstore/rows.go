// SPDX-License-Identifier: Apache-2.0

package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lexiupon/ontologia/pkg/model"
)

// RowSnapshot is a single materialized row from rows_store, the shape C7's
// temporal query engine filters and projects over.
type RowSnapshot struct {
	TypeKind          model.TypeKind
	TypeName          string
	EntityKey         string
	LeftKey           string
	RightKey          string
	InstanceKey       string
	Fields            map[string]any
	SchemaVersionID   int64
	ValidFromCommitID int64
	ValidToCommitID   sql.NullInt64
}

// LatestRows returns every row of typeName currently live (valid_to IS
// NULL), the "latest" query kind of §4.7.
func (s *Store) LatestRows(ctx context.Context, typeName string) ([]RowSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT type_kind, type_name, entity_key, left_key, right_key, instance_key, fields_json, schema_version_id, valid_from_commit_id, valid_to_commit_id
		 FROM rows_store WHERE type_name = ? AND valid_to_commit_id IS NULL`,
		typeName)
	if err != nil {
		return nil, err
	}
	return scanRowSnapshots(rows)
}

// RowsAsOf returns every row of typeName live at commit q: valid_from <= q
// AND (valid_to IS NULL OR valid_to > q), per §4.5/§4.7.
func (s *Store) RowsAsOf(ctx context.Context, typeName string, q int64) ([]RowSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT type_kind, type_name, entity_key, left_key, right_key, instance_key, fields_json, schema_version_id, valid_from_commit_id, valid_to_commit_id
		 FROM rows_store
		 WHERE type_name = ? AND valid_from_commit_id <= ? AND (valid_to_commit_id IS NULL OR valid_to_commit_id > ?)`,
		typeName, q, q)
	if err != nil {
		return nil, err
	}
	return scanRowSnapshots(rows)
}

// HistorySince returns every change record of typeName with commit_id > q,
// in commit order, the "history-since" query kind of §4.7.
func (s *Store) HistorySince(ctx context.Context, typeName string, q int64) ([]model.ChangeRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT commit_id, kind, type_name, entity_key, left_key, right_key, instance_key, fields, schema_version_id
		 FROM change_records WHERE type_name = ? AND commit_id > ? ORDER BY commit_id ASC`,
		typeName, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ChangeRecord
	for rows.Next() {
		c, err := scanChangeRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// QueryFiltered runs the Latest/As-of row query with an additional SQL
// predicate fragment ANDed onto the base type/validity predicate. extraWhere
// references rows_store's own columns (entity_key, fields_json, ...) and may
// contain '?' placeholders bound by extraArgs; it is the integration point
// pkg/query/sqlquery compiles filter expressions into, so filter predicates
// are pushed down to sqlite's json_extract rather than evaluated row-by-row
// in Go after a full fetch.
func (s *Store) QueryFiltered(ctx context.Context, typeName string, asOf *int64, extraWhere string, extraArgs []any) ([]RowSnapshot, error) {
	query := `SELECT type_kind, type_name, entity_key, left_key, right_key, instance_key, fields_json, schema_version_id, valid_from_commit_id, valid_to_commit_id
		FROM rows_store WHERE type_name = ?`
	args := []any{typeName}

	if asOf != nil {
		query += ` AND valid_from_commit_id <= ? AND (valid_to_commit_id IS NULL OR valid_to_commit_id > ?)`
		args = append(args, *asOf, *asOf)
	} else {
		query += ` AND valid_to_commit_id IS NULL`
	}

	if extraWhere != "" {
		query += ` AND (` + extraWhere + `)`
		args = append(args, extraArgs...)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanRowSnapshots(rows)
}

func scanRowSnapshots(rows *sql.Rows) ([]RowSnapshot, error) {
	defer rows.Close()

	var out []RowSnapshot
	for rows.Next() {
		var r RowSnapshot
		var kind, fieldsJSON string
		if err := rows.Scan(&kind, &r.TypeName, &r.EntityKey, &r.LeftKey, &r.RightKey, &r.InstanceKey,
			&fieldsJSON, &r.SchemaVersionID, &r.ValidFromCommitID, &r.ValidToCommitID); err != nil {
			return nil, err
		}
		r.TypeKind = model.TypeKind(kind)
		if err := json.Unmarshal([]byte(fieldsJSON), &r.Fields); err != nil {
			return nil, fmt.Errorf("unmarshal row fields: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
