// SPDX-License-Identifier: Apache-2.0

// Package parquetfile encodes and decodes the columnar commit-file format
// C6 writes under commits/<id>-<nonce>/{entities,relations}/<Type>.parquet:
// one row per change record, with the row's field values kept as a single
// JSON-encoded column rather than a per-field columnar schema, since a
// type's field set is only known at the ontology layer above this package.
package parquetfile

import (
	"encoding/json"
	"fmt"

	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/lexiupon/ontologia/pkg/model"
)

// row is the fixed Parquet schema every commit file shares, derived via
// parquet-go's struct-tag reflection the way its own examples build a
// writer schema from a plain Go struct.
type row struct {
	CommitID        int64  `parquet:"name=commit_id, type=INT64"`
	Kind            string `parquet:"name=kind, type=BYTE_ARRAY, convertedtype=UTF8"`
	TypeName        string `parquet:"name=type_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	EntityKey       string `parquet:"name=entity_key, type=BYTE_ARRAY, convertedtype=UTF8"`
	LeftKey         string `parquet:"name=left_key, type=BYTE_ARRAY, convertedtype=UTF8"`
	RightKey        string `parquet:"name=right_key, type=BYTE_ARRAY, convertedtype=UTF8"`
	InstanceKey     string `parquet:"name=instance_key, type=BYTE_ARRAY, convertedtype=UTF8"`
	FieldsJSON      string `parquet:"name=fields_json, type=BYTE_ARRAY, convertedtype=UTF8"`
	SchemaVersionID int64  `parquet:"name=schema_version_id, type=INT64"`
}

// Encode serializes change records into a Parquet byte buffer, the form
// uploaded as a commit's entities/relations file.
func Encode(records []model.ChangeRecord) ([]byte, error) {
	buf := buffer.NewBufferFileFromBytes(nil)

	pw, err := writer.NewParquetWriter(buf, new(row), 1)
	if err != nil {
		return nil, fmt.Errorf("new parquet writer: %w", err)
	}

	for _, rec := range records {
		fieldsJSON, err := json.Marshal(rec.Fields)
		if err != nil {
			return nil, fmt.Errorf("marshal change fields: %w", err)
		}
		r := row{
			CommitID:        rec.CommitID,
			Kind:            string(rec.Kind),
			TypeName:        rec.TypeName,
			EntityKey:       rec.EntityKey,
			LeftKey:         rec.LeftKey,
			RightKey:        rec.RightKey,
			InstanceKey:     rec.InstanceKey,
			FieldsJSON:      string(fieldsJSON),
			SchemaVersionID: rec.SchemaVersionID,
		}
		if err := pw.Write(r); err != nil {
			return nil, fmt.Errorf("write parquet row: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("finalize parquet file: %w", err)
	}

	return buf.Bytes(), nil
}

// Decode reads back the change records written by Encode.
func Decode(data []byte) ([]model.ChangeRecord, error) {
	buf := buffer.NewBufferFileFromBytes(data)

	pr, err := reader.NewParquetReader(buf, new(row), 1)
	if err != nil {
		return nil, fmt.Errorf("new parquet reader: %w", err)
	}
	defer pr.ReadStop()

	total := int(pr.GetNumRows())
	rows := make([]row, total)
	if total > 0 {
		if err := pr.Read(&rows); err != nil {
			return nil, fmt.Errorf("read parquet rows: %w", err)
		}
	}

	out := make([]model.ChangeRecord, 0, total)
	for _, r := range rows {
		var fields map[string]any
		if err := json.Unmarshal([]byte(r.FieldsJSON), &fields); err != nil {
			return nil, fmt.Errorf("unmarshal row fields: %w", err)
		}
		out = append(out, model.ChangeRecord{
			CommitID:        r.CommitID,
			Kind:            model.ChangeKind(r.Kind),
			TypeName:        r.TypeName,
			EntityKey:       r.EntityKey,
			LeftKey:         r.LeftKey,
			RightKey:        r.RightKey,
			InstanceKey:     r.InstanceKey,
			Fields:          fields,
			SchemaVersionID: r.SchemaVersionID,
		})
	}
	return out, nil
}
