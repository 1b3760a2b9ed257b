// SPDX-License-Identifier: Apache-2.0

package engine_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiupon/ontologia/pkg/engine"
	"github.com/lexiupon/ontologia/pkg/model"
)

func TestOpenSqliteMissingFileFailsWithoutCreatingDB(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "missing.db")
	uri := "sqlite:///" + path

	_, err := engine.Open(ctx, uri)
	require.Error(t, err)
	assert.NoFileExists(t, path)
}

func TestInitSqliteThenOpenSucceeds(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "store.db")
	uri := "sqlite:///" + path

	result, err := engine.Init(ctx, uri, engine.InitRequest{})
	require.NoError(t, err)
	assert.False(t, result.AlreadyInitialized)
	assert.True(t, result.Applied)

	e, err := engine.Open(ctx, uri)
	require.NoError(t, err)
	defer e.Close()
	assert.Equal(t, "sqlite", string(e.Backend()))
}

func TestInitDryRunDoesNotCreateFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "dryrun.db")
	uri := "sqlite:///" + path

	result, err := engine.Init(ctx, uri, engine.InitRequest{DryRun: true})
	require.NoError(t, err)
	assert.False(t, result.Applied)
	assert.NoFileExists(t, path)
}

func TestInitTwiceWithoutForceIsRejected(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "store.db")
	uri := "sqlite:///" + path

	_, err := engine.Init(ctx, uri, engine.InitRequest{})
	require.NoError(t, err)

	result, err := engine.Init(ctx, uri, engine.InitRequest{})
	require.Error(t, err)
	assert.True(t, result.AlreadyInitialized)
	assert.NotEmpty(t, result.ForceToken)
}

func TestInitDefaultsToEngineV2(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "store.db")
	uri := "sqlite:///" + path

	_, err := engine.Init(ctx, uri, engine.InitRequest{})
	require.NoError(t, err)

	e, err := engine.Open(ctx, uri)
	require.NoError(t, err)
	defer e.Close()

	info, err := e.Info(ctx, engine.InfoOptions{})
	require.NoError(t, err)
	assert.Equal(t, string(engine.EngineV2), info.EngineVer)
}

func TestIndexVerifyOnSqliteFails(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "store.db")
	uri := "sqlite:///" + path

	_, err := engine.Init(ctx, uri, engine.InitRequest{})
	require.NoError(t, err)
	e, err := engine.Open(ctx, uri)
	require.NoError(t, err)
	defer e.Close()

	_, err = e.IndexVerify(ctx, model.KindEntity)
	require.Error(t, err)
}

func TestCompactOnSqliteFails(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "store.db")
	uri := "sqlite:///" + path

	_, err := engine.Init(ctx, uri, engine.InitRequest{})
	require.NoError(t, err)
	e, err := engine.Open(ctx, uri)
	require.NoError(t, err)
	defer e.Close()

	err = e.Compact(ctx, model.KindEntity, "Person", true)
	require.Error(t, err)
}

func TestInfoOnFreshStoreReportsNoTypes(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "store.db")
	uri := "sqlite:///" + path

	_, err := engine.Init(ctx, uri, engine.InitRequest{})
	require.NoError(t, err)
	e, err := engine.Open(ctx, uri)
	require.NoError(t, err)
	defer e.Close()

	info, err := e.Info(ctx, engine.InfoOptions{Stats: true, Schema: true})
	require.NoError(t, err)
	assert.Empty(t, info.Types)
	assert.False(t, info.HeadKnown)
}

func TestCommitsEmptyOnFreshStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "store.db")
	uri := "sqlite:///" + path

	_, err := engine.Init(ctx, uri, engine.InitRequest{})
	require.NoError(t, err)
	e, err := engine.Open(ctx, uri)
	require.NoError(t, err)
	defer e.Close()

	commits, err := e.Commits(ctx, engine.CommitsOptions{})
	require.NoError(t, err)
	assert.Empty(t, commits)
}

func TestVersionCompatibilitySkippedOnDevelopmentBinary(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "store.db")
	uri := "sqlite:///" + path

	_, err := engine.Init(ctx, uri, engine.InitRequest{})
	require.NoError(t, err)
	e, err := engine.Open(ctx, uri)
	require.NoError(t, err)
	defer e.Close()

	check, err := e.VersionCompatibility(ctx)
	require.NoError(t, err)
	assert.Equal(t, engine.VersionCompatCheckSkipped, check)
}

func TestVersionCompatibilityEqualWhenBinaryMatchesCatalogFormat(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "store.db")
	uri := "sqlite:///" + path

	_, err := engine.Init(ctx, uri, engine.InitRequest{})
	require.NoError(t, err)
	e, err := engine.Open(ctx, uri, engine.WithBinaryVersion(engine.CatalogFormatVersion))
	require.NoError(t, err)
	defer e.Close()

	check, err := e.VersionCompatibility(ctx)
	require.NoError(t, err)
	assert.Equal(t, engine.VersionCompatVersionSchemaEqual, check)
}

func TestVersionCompatibilityNewerBinaryReportsCatalogOlder(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "store.db")
	uri := "sqlite:///" + path

	_, err := engine.Init(ctx, uri, engine.InitRequest{})
	require.NoError(t, err)
	e, err := engine.Open(ctx, uri, engine.WithBinaryVersion("v99.0.0"))
	require.NoError(t, err)
	defer e.Close()

	check, err := e.VersionCompatibility(ctx)
	require.NoError(t, err)
	assert.Equal(t, engine.VersionCompatVersionSchemaOlder, check)
}

func TestExportEmptyStoreWritesNoFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "store.db")
	uri := "sqlite:///" + path

	_, err := engine.Init(ctx, uri, engine.InitRequest{})
	require.NoError(t, err)
	e, err := engine.Open(ctx, uri)
	require.NoError(t, err)
	defer e.Close()

	out := filepath.Join(dir, "export")
	report, err := e.Export(ctx, engine.ExportOptions{OutputDir: out})
	require.NoError(t, err)
	assert.Empty(t, report.Files)
}
