// SPDX-License-Identifier: Apache-2.0

// Package engine is the storage-URI dispatch facade (§6): it opens the
// backend a storage URI names (embedded sqlite or S3-compatible object
// store), wires it into a C8 migrator and a C7 query compiler, and exposes
// the operator-console surface (info, verify, migrate, commits, export,
// index, init) as plain Go methods, independent of the thin cobra/viper CLI
// in cmd/ that also calls them. Grounded on the teacher's
// cmd.NewRoll/NewRollWithInitCheck wiring shape and
// _examples/original_source/src/ontologia/cli/_storage.py's URI-to-backend
// binding precedence.
package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/lexiupon/ontologia/internal/storageuri"
	"github.com/lexiupon/ontologia/pkg/migrate"
	"github.com/lexiupon/ontologia/pkg/objectstore"
	"github.com/lexiupon/ontologia/pkg/ontoerrors"
	"github.com/lexiupon/ontologia/pkg/ontolog"
	"github.com/lexiupon/ontologia/pkg/query/duckquery"
	"github.com/lexiupon/ontologia/pkg/query/sqlquery"
	"github.com/lexiupon/ontologia/pkg/sqlstore"
)

// EngineVersion mirrors sqlstore.EngineVersion, re-exported here so callers
// outside pkg/sqlstore (the CLI, tests) have one name to spell regardless
// of backend. The object-store backend has no evolvable DDL to version,
// so EngineVersion only affects sqlite Init.
type EngineVersion = sqlstore.EngineVersion

const (
	EngineV1 = sqlstore.EngineV1
	EngineV2 = sqlstore.EngineV2
)

// CatalogFormatVersion is stamped at init time and compared against the
// running binary's semantic version by VersionCompatibility (§3's
// schema-version compatibility probe, modeled on the teacher's
// state.VersionCompatibility).
const CatalogFormatVersion = "0.1.0"

// Engine is an opened storage handle: exactly one of its two backends is
// set, selected by Backend.
type Engine struct {
	uri     string
	backend storageuri.Backend

	sql *sqlstore.Store
	obj *objectstore.Store

	sqlCompiler  *sqlquery.Compiler
	duckCompiler *duckquery.Compiler

	migrator *migrate.Migrator

	logger        ontolog.Logger
	ownerID       string
	leaseTTL      time.Duration
	binaryVersion string
}

// Backend reports which backend this engine opened.
func (e *Engine) Backend() storageuri.Backend { return e.backend }

// URI returns the storage URI this engine was opened against.
func (e *Engine) URI() string { return e.uri }

// Open parses uri and opens the backend it names. For a sqlite URI, the
// database file must already exist and be initialized: opening never
// creates a missing file (only Init does), per
// "init on a missing sqlite file never creates it on validation failure".
func Open(ctx context.Context, uri string, opts ...Option) (*Engine, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	parsed, err := storageuri.Parse(uri)
	if err != nil {
		return nil, err
	}

	e := &Engine{uri: uri, backend: parsed.Backend, logger: o.logger, ownerID: o.ownerID, leaseTTL: o.leaseTTL, binaryVersion: o.binaryVersion}

	switch parsed.Backend {
	case storageuri.BackendSQLite:
		if err := requireExistingFile(parsed.SQLite.Path); err != nil {
			return nil, err
		}
		store, err := sqlstore.Open(ctx, parsed.SQLite.Path)
		if err != nil {
			return nil, err
		}
		e.sql = store
		e.sqlCompiler = sqlquery.New(store)
		e.migrator = migrate.New(migrate.NewSQLBackend(store), o.ownerID, o.leaseTTL, o.logger)

	case storageuri.BackendS3:
		store, err := objectstore.NewS3Store(ctx, objectstore.Config{
			Bucket:          parsed.S3.Bucket,
			Prefix:          parsed.S3.Prefix,
			Region:          parsed.S3.Region,
			Endpoint:        parsed.S3.Endpoint,
			PathStyle:       o.s3PathStyle,
			AccessKeyID:     o.s3AccessKeyID,
			SecretAccessKey: o.s3SecretAccessKey,
			SessionToken:    o.s3SessionToken,
		})
		if err != nil {
			return nil, err
		}
		initialized, err := store.Initialized(ctx)
		if err != nil {
			return nil, err
		}
		if !initialized {
			return nil, &ontoerrors.UninitializedStorageError{StorageURI: uri}
		}
		e.obj = store
		e.duckCompiler = duckquery.New(store)
		e.migrator = migrate.New(migrate.NewObjectBackend(store), o.ownerID, o.leaseTTL, o.logger)

	default:
		return nil, fmt.Errorf("engine: unhandled backend %q", parsed.Backend)
	}

	return e, nil
}

// Close releases the underlying storage handle. Closing an S3-backed
// engine is a no-op: the aws-sdk-go-v2 client holds no long-lived
// connection that needs explicit release.
func (e *Engine) Close() error {
	if e.sql != nil {
		return e.sql.Close()
	}
	return nil
}

// requireExistingFile guards sqlite Open against silently creating a
// missing database file: only Init may create one.
func requireExistingFile(path string) error {
	if path == ":memory:" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return &ontoerrors.UninitializedStorageError{StorageURI: path}
	}
	return nil
}
