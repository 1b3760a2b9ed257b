// SPDX-License-Identifier: Apache-2.0

package sqlstore

import (
	"context"
	"fmt"

	"github.com/lexiupon/ontologia/pkg/catalog"
	"github.com/lexiupon/ontologia/pkg/model"
)

var _ catalog.Catalog = (*Store)(nil)

func (s *Store) CreateSchemaVersion(ctx context.Context, kind model.TypeKind, typeName string, canonicalJSON []byte, hash, reason string) (int64, error) {
	head, _, err := s.Head(ctx)
	if err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO schema_versions(type_kind, type_name, canonical_json, hash, creation_commit_id, activation_commit_id, reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(kind), typeName, string(canonicalJSON), hash, head, catalog.NotActivated, reason)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) ActivateSchemaVersion(ctx context.Context, kind model.TypeKind, typeName string, schemaVersionID, activationCommitID int64) error {
	var previous int64 = catalog.NotActivated
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(activation_commit_id), ?) FROM schema_versions
		 WHERE type_kind = ? AND type_name = ? AND activation_commit_id > -1`,
		catalog.NotActivated, string(kind), typeName).Scan(&previous)
	if err != nil {
		return err
	}

	if err := catalog.ValidateActivation(typeName, previous, activationCommitID); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE schema_versions SET activation_commit_id = ? WHERE schema_version_id = ? AND type_kind = ? AND type_name = ?`,
		activationCommitID, schemaVersionID, string(kind), typeName)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("sqlstore: schema version %d not found for %s/%s", schemaVersionID, kind, typeName)
	}
	return nil
}

func (s *Store) GetCurrentSchemaVersion(ctx context.Context, kind model.TypeKind, typeName string) (catalog.SchemaVersion, error) {
	head, _, err := s.Head(ctx)
	if err != nil {
		return catalog.SchemaVersion{}, err
	}
	v, ok, err := s.VersionActiveAt(ctx, kind, typeName, head)
	if err != nil {
		return catalog.SchemaVersion{}, err
	}
	if !ok {
		return catalog.SchemaVersion{}, fmt.Errorf("sqlstore: no active schema version for %s/%s", kind, typeName)
	}
	return v, nil
}

func (s *Store) ListSchemas(ctx context.Context, kind model.TypeKind) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT type_name FROM schema_versions WHERE type_kind = ? ORDER BY type_name ASC`, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (s *Store) ListVersions(ctx context.Context, kind model.TypeKind, typeName string) ([]catalog.SchemaVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT schema_version_id, type_kind, type_name, canonical_json, hash, creation_commit_id, activation_commit_id, reason
		 FROM schema_versions WHERE type_kind = ? AND type_name = ? ORDER BY schema_version_id ASC`,
		string(kind), typeName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []catalog.SchemaVersion
	for rows.Next() {
		v, err := scanSchemaVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) VersionActiveAt(ctx context.Context, kind model.TypeKind, typeName string, commitID int64) (catalog.SchemaVersion, bool, error) {
	versions, err := s.ListVersions(ctx, kind, typeName)
	if err != nil {
		return catalog.SchemaVersion{}, false, err
	}
	v, ok := catalog.ActiveWindow(versions, commitID)
	return v, ok, nil
}

func scanSchemaVersion(r rowScanner) (catalog.SchemaVersion, error) {
	var v catalog.SchemaVersion
	var kind, canonicalJSON string
	if err := r.Scan(&v.SchemaVersionID, &kind, &v.TypeName, &canonicalJSON, &v.Hash, &v.CreationCommitID, &v.ActivationCommitID, &v.Reason); err != nil {
		return catalog.SchemaVersion{}, err
	}
	v.TypeKind = model.TypeKind(kind)
	v.CanonicalJSON = []byte(canonicalJSON)
	return v, nil
}
