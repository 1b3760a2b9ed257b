// SPDX-License-Identifier: Apache-2.0

package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lexiupon/ontologia/pkg/commitlog"
	"github.com/lexiupon/ontologia/pkg/model"
	"github.com/lexiupon/ontologia/pkg/ontoerrors"
)

var _ commitlog.Log = (*Store)(nil)

// BeginWrite allocates a commit row immediately (sqlite has no separate
// "reserve an id" primitive cheaper than inserting the row), then treats
// the commit as provisional until CommitTransaction is called: BeginWrite's
// insert and its change rows are written inside one open sqlite
// transaction that CommitTransaction commits and AbortWrite rolls back, so
// readers outside that transaction never see them and no extra "committed"
// flag is needed.
func (s *Store) BeginWrite(ctx context.Context, metadata map[string]string) (int64, error) {
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return 0, fmt.Errorf("marshal commit metadata: %w", err)
	}

	tx, err := s.db.Raw().BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO commits(created_at, metadata) VALUES (?, ?)`,
		time.Now().UTC().Format(time.RFC3339Nano), string(metaJSON))
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	commitID, err := res.LastInsertId()
	if err != nil {
		tx.Rollback()
		return 0, err
	}

	s.pendingMu.Lock()
	if s.pending == nil {
		s.pending = map[int64]*sql.Tx{}
	}
	s.pending[commitID] = tx
	s.pendingMu.Unlock()

	return commitID, nil
}

// AppendChange buffers a change record inside the commit's open
// transaction, and maintains rows_store's live-row projection in the same
// transaction: the prior live row for this identity (if any) is
// superseded, and, for a non-tombstone kind, a new row image is inserted.
// This is what makes "latest" and "as-of" reads (§4.7) cheap on this
// backend: they read rows_store directly instead of replaying
// change_records.
func (s *Store) AppendChange(ctx context.Context, commitID int64, change model.ChangeRecord) error {
	tx, err := s.pendingTx(commitID)
	if err != nil {
		return err
	}

	kind := model.KindEntity
	if !change.IsEntity() {
		kind = model.KindRelation
	}
	if err := validateSchemaVersionActive(ctx, tx, kind, change.TypeName, change.SchemaVersionID, commitID); err != nil {
		return err
	}

	fieldsJSON, err := json.Marshal(change.Fields)
	if err != nil {
		return fmt.Errorf("marshal change fields: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO change_records(commit_id, kind, type_name, entity_key, left_key, right_key, instance_key, fields, schema_version_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		commitID, string(change.Kind), change.TypeName, change.EntityKey, change.LeftKey, change.RightKey, change.InstanceKey,
		string(fieldsJSON), change.SchemaVersionID)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE rows_store SET valid_to_commit_id = ?
		 WHERE type_name = ? AND entity_key = ? AND left_key = ? AND right_key = ? AND instance_key = ?
		 AND valid_to_commit_id IS NULL`,
		commitID, change.TypeName, change.EntityKey, change.LeftKey, change.RightKey, change.InstanceKey); err != nil {
		return err
	}

	if change.IsTombstone() {
		return nil
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO rows_store(type_kind, type_name, entity_key, left_key, right_key, instance_key, fields_json, schema_version_id, valid_from_commit_id, valid_to_commit_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		string(kind), change.TypeName, change.EntityKey, change.LeftKey, change.RightKey, change.InstanceKey,
		string(fieldsJSON), change.SchemaVersionID, commitID)
	return err
}

// validateSchemaVersionActive enforces §4.5's write-path assertion: the
// schema_version_id a row is written under must be the version whose
// activation window contains commitID, or the write fails with
// StorageBackendError("schema_version mismatch") rather than silently
// writing a row under a superseded or not-yet-active schema.
func validateSchemaVersionActive(ctx context.Context, tx *sql.Tx, kind model.TypeKind, typeName string, schemaVersionID, commitID int64) error {
	var currentID int64
	err := tx.QueryRowContext(ctx,
		`SELECT schema_version_id FROM schema_versions
		 WHERE type_kind = ? AND type_name = ? AND activation_commit_id > -1 AND activation_commit_id <= ?
		 ORDER BY activation_commit_id DESC LIMIT 1`,
		string(kind), typeName, commitID).Scan(&currentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &ontoerrors.StorageBackendError{
				Operation: "append_change",
				Detail:    fmt.Sprintf("schema_version mismatch: no active version for %s/%s at commit %d", kind, typeName, commitID),
			}
		}
		return err
	}
	if currentID != schemaVersionID {
		return &ontoerrors.StorageBackendError{
			Operation: "append_change",
			Detail:    fmt.Sprintf("schema_version mismatch: %d is not active for %s/%s at commit %d (active: %d)", schemaVersionID, kind, typeName, commitID, currentID),
		}
	}
	return nil
}

// CommitTransaction commits the underlying sqlite transaction, making every
// buffered change and the commit row itself visible atomically.
func (s *Store) CommitTransaction(ctx context.Context, commitID int64) error {
	s.pendingMu.Lock()
	tx, ok := s.pending[commitID]
	if ok {
		delete(s.pending, commitID)
	}
	s.pendingMu.Unlock()

	if !ok {
		return fmt.Errorf("sqlstore: no open write for commit %d", commitID)
	}
	return tx.Commit()
}

// AbortWrite rolls back a commit's buffered changes instead of committing
// them, used when a lease is lost before finalization (LeaseExpiredError)
// or a write fails validation partway through.
func (s *Store) AbortWrite(commitID int64) error {
	s.pendingMu.Lock()
	tx, ok := s.pending[commitID]
	if ok {
		delete(s.pending, commitID)
	}
	s.pendingMu.Unlock()

	if !ok {
		return nil
	}
	return tx.Rollback()
}

func (s *Store) pendingTx(commitID int64) (*sql.Tx, error) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	tx, ok := s.pending[commitID]
	if !ok {
		return nil, fmt.Errorf("sqlstore: no open write for commit %d", commitID)
	}
	return tx, nil
}

func (s *Store) ListCommits(ctx context.Context, limit int, since int64) ([]model.Commit, error) {
	query := `SELECT commit_id, created_at, metadata FROM commits WHERE commit_id > ? ORDER BY commit_id ASC`
	args := []any{since}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Commit
	for rows.Next() {
		c, err := scanCommit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) GetCommit(ctx context.Context, commitID int64) (model.Commit, error) {
	row := s.db.QueryRowContext(ctx, `SELECT commit_id, created_at, metadata FROM commits WHERE commit_id = ?`, commitID)
	return scanCommitRow(row)
}

func (s *Store) ListChanges(ctx context.Context, commitID int64) ([]model.ChangeRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT commit_id, kind, type_name, entity_key, left_key, right_key, instance_key, fields, schema_version_id
		 FROM change_records WHERE commit_id = ?`, commitID)
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

func (s *Store) CountOperations(ctx context.Context, commitID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM change_records WHERE commit_id = ?`, commitID).Scan(&count)
	return count, err
}

func (s *Store) Head(ctx context.Context) (int64, bool, error) {
	var head sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(commit_id) FROM commits`).Scan(&head)
	if err != nil {
		return 0, false, err
	}
	if !head.Valid {
		return 0, false, nil
	}
	return head.Int64, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCommit(rows *sql.Rows) (model.Commit, error) {
	return scanCommitRow(rows)
}

func scanCommitRow(r rowScanner) (model.Commit, error) {
	var commitID int64
	var createdAtStr, metaJSON string
	if err := r.Scan(&commitID, &createdAtStr, &metaJSON); err != nil {
		return model.Commit{}, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		return model.Commit{}, fmt.Errorf("parse commit timestamp: %w", err)
	}
	var meta map[string]string
	if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
		return model.Commit{}, fmt.Errorf("unmarshal commit metadata: %w", err)
	}
	return model.Commit{CommitID: commitID, CreatedAt: createdAt, Metadata: meta}, nil
}

func scanChangeRecord(r rowScanner) (model.ChangeRecord, error) {
	var c model.ChangeRecord
	var kind, fieldsJSON string
	if err := r.Scan(&c.CommitID, &kind, &c.TypeName, &c.EntityKey, &c.LeftKey, &c.RightKey, &c.InstanceKey, &fieldsJSON, &c.SchemaVersionID); err != nil {
		return model.ChangeRecord{}, err
	}
	c.Kind = model.ChangeKind(kind)
	if err := json.Unmarshal([]byte(fieldsJSON), &c.Fields); err != nil {
		return model.ChangeRecord{}, fmt.Errorf("unmarshal change fields: %w", err)
	}
	return c, nil
}
