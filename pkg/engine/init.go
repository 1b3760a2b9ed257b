// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"os"

	"github.com/lexiupon/ontologia/internal/storageuri"
	"github.com/lexiupon/ontologia/pkg/objectstore"
	"github.com/lexiupon/ontologia/pkg/sqlstore"
)

// InitRequest parameterizes Init's behavior, the Go shape of the `init
// [--dry-run] [--force --token X] [--engine-version v1|v2]` operator
// command (§6).
type InitRequest struct {
	// EngineVersion selects the catalog layout for a sqlite target.
	// Defaults to EngineV2 when zero-valued: "explicit --engine-version at
	// init defaults to v2", with v1 produced only on request.
	EngineVersion EngineVersion
	DryRun        bool
	Force         bool
	Token         string
}

// InitResult reports what Init did (or, for a dry run, would do).
type InitResult struct {
	AlreadyInitialized bool
	// ForceToken is the token a caller must pass back (with Force) to
	// re-initialize an already-initialized store, derived from the state
	// Init observed.
	ForceToken string
	Applied    bool
}

// Init is the idempotent initialization primitive (§6): it creates the
// catalog tables (sqlite) or writes meta/head.json and meta/types.json
// (object store). It does not require the store to already be
// initialized, unlike Open.
func Init(ctx context.Context, uri string, req InitRequest, opts ...Option) (InitResult, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if req.EngineVersion == "" {
		req.EngineVersion = EngineV2
	}

	parsed, err := storageuri.Parse(uri)
	if err != nil {
		return InitResult{}, err
	}

	switch parsed.Backend {
	case storageuri.BackendSQLite:
		return initSQLite(ctx, parsed.SQLite.Path, req)
	case storageuri.BackendS3:
		return initS3(ctx, parsed.S3, req, o)
	default:
		return InitResult{}, nil
	}
}

func initSQLite(ctx context.Context, path string, req InitRequest) (InitResult, error) {
	// A dry run against a missing file reports "not initialized" without
	// opening the database, since opening would create the file.
	if req.DryRun && path != ":memory:" {
		if _, err := os.Stat(path); err != nil {
			return InitResult{}, nil
		}
	}

	db, err := sqlstore.OpenDB(path)
	if err != nil {
		return InitResult{}, err
	}
	defer db.Close()

	existingVersion, initialized, err := sqlstore.ProbeEngineVersion(ctx, db)
	if err != nil {
		return InitResult{}, err
	}

	result := InitResult{AlreadyInitialized: initialized}
	if initialized {
		result.ForceToken = sqlstore.ComputeForceToken(existingVersion)
	}

	if req.DryRun {
		return result, nil
	}

	if err := sqlstore.Init(ctx, db, req.EngineVersion, CatalogFormatVersion, req.Force, req.Token); err != nil {
		return result, err
	}
	result.Applied = true
	return result, nil
}

func initS3(ctx context.Context, s3uri *storageuri.S3, req InitRequest, o options) (InitResult, error) {
	store, err := objectstore.NewS3Store(ctx, objectstore.Config{
		Bucket:          s3uri.Bucket,
		Prefix:          s3uri.Prefix,
		Region:          s3uri.Region,
		Endpoint:        s3uri.Endpoint,
		PathStyle:       o.s3PathStyle,
		AccessKeyID:     o.s3AccessKeyID,
		SecretAccessKey: o.s3SecretAccessKey,
		SessionToken:    o.s3SessionToken,
	})
	if err != nil {
		return InitResult{}, err
	}

	initialized, err := store.Initialized(ctx)
	if err != nil {
		return InitResult{}, err
	}

	result := InitResult{AlreadyInitialized: initialized}
	if initialized {
		head, headKnown, err := store.Head(ctx)
		if err != nil {
			return InitResult{}, err
		}
		result.ForceToken = objectstore.ComputeForceToken(head, headKnown)
	}

	if req.DryRun {
		return result, nil
	}

	if err := objectstore.Init(ctx, store, CatalogFormatVersion, req.Force, req.Token); err != nil {
		return result, err
	}
	result.Applied = true
	return result, nil
}
