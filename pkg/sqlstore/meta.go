// SPDX-License-Identifier: Apache-2.0

package sqlstore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/lexiupon/ontologia/pkg/ontoerrors"
)

func errUninitialized(storageURI string) error {
	return &ontoerrors.UninitializedStorageError{StorageURI: storageURI}
}

// EngineVersion is the storage-meta engine_version stamp (§6).
type EngineVersion string

const (
	EngineV1 EngineVersion = "v1"
	EngineV2 EngineVersion = "v2"
)

const metaKeyEngineVersion = "engine_version"
const metaKeyCatalogFormatVersion = "catalog_format_version"
const metaKeyForceToken = "force_token"

// Store is the embedded-SQL backend handle, implementing commitlog.Log,
// catalog.Catalog, and lease.Coordinator over a single *DB.
type Store struct {
	db      *DB
	version EngineVersion

	pendingMu sync.Mutex
	pending   map[int64]*sql.Tx
}

// ProbeEngineVersion inspects storage_meta for engine_version. Absence of
// the table is treated as v1 (legacy), per §6's storage-meta probe.
func ProbeEngineVersion(ctx context.Context, db *DB) (EngineVersion, bool, error) {
	var value string
	err := db.QueryRowContext(ctx, `SELECT value FROM storage_meta WHERE key = ?`, metaKeyEngineVersion).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return EngineV1, false, nil
		}
		if isNoSuchTable(err) {
			return EngineV1, false, nil
		}
		return "", false, err
	}
	return EngineVersion(value), true, nil
}

func isNoSuchTable(err error) bool {
	return err != nil && contains(err.Error(), "no such table")
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || (len(substr) > 0 && indexOf(s, substr) >= 0))
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

// Init is the idempotent initialization primitive (§6): it creates the
// catalog tables for engineVersion if they don't already exist. Re-init
// against an already-initialized store requires forceToken to match
// ComputeForceToken's output for the currently observed state, preventing
// accidental wipe.
func Init(ctx context.Context, db *DB, engineVersion EngineVersion, catalogFormatVersion string, force bool, forceToken string) error {
	existingVersion, initialized, err := ProbeEngineVersion(ctx, db)
	if err != nil {
		return err
	}

	if initialized {
		expected := ComputeForceToken(existingVersion)
		if !force || forceToken != expected {
			return fmt.Errorf("storage already initialized as %s; re-init requires --force with the correct token", existingVersion)
		}
	}

	ddl := sqlInitV2
	if engineVersion == EngineV1 {
		ddl = sqlInitV1
	}

	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx,
		`INSERT INTO storage_meta(key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		metaKeyEngineVersion, string(engineVersion)); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO storage_meta(key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		metaKeyCatalogFormatVersion, catalogFormatVersion); err != nil {
		return err
	}

	return nil
}

// CatalogFormatVersion returns the catalog_format_version stamped at init
// time, and false if the store predates that stamp (a legacy v1 database
// initialized before SPEC_FULL §3's compatibility probe existed).
func (s *Store) CatalogFormatVersion(ctx context.Context) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM storage_meta WHERE key = ?`, metaKeyCatalogFormatVersion).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

// ComputeForceToken derives a force token from the currently observed
// engine version, so a re-init can't succeed without the caller having
// first observed the current state (mirroring §6's "force token derived
// from observing the current state").
func ComputeForceToken(existingVersion EngineVersion) string {
	sum := sha256.Sum256([]byte("ontologia-force-reinit:" + string(existingVersion)))
	return hex.EncodeToString(sum[:])[:16]
}

// Open opens (but does not initialize) a sqlite store at path, detecting
// and, for a legacy v1 layout, upgrading it in place via
// BackfillV1Activations.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}

	version, initialized, err := ProbeEngineVersion(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	if !initialized {
		db.Close()
		return nil, errUninitialized(path)
	}

	if version == EngineV1 {
		if err := BackfillV1Activations(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &Store{db: db, version: version}, nil
}

// DB returns the underlying retry-wrapped connection.
func (s *Store) DB() *DB { return s.db }

// EngineVersion returns the engine_version this store was opened as. After
// BackfillV1Activations a legacy store still reports EngineV1 here: the
// backfill makes activation-boundary queries well-defined, it does not
// relabel the store.
func (s *Store) EngineVersion() EngineVersion { return s.version }

// Close closes the underlying connection.
func (s *Store) Close() error { return s.db.Close() }
