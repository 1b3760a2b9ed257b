// SPDX-License-Identifier: Apache-2.0

package migrate_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiupon/ontologia/pkg/migrate"
	"github.com/lexiupon/ontologia/pkg/model"
	"github.com/lexiupon/ontologia/pkg/ontoerrors"
	"github.com/lexiupon/ontologia/pkg/typespec"
)

var _ migrate.Backend = (*fakeBackend)(nil)

func strField(name string) model.Field {
	return model.Field{Name: name, TypeSpec: typespec.Primitive(typespec.ScalarStr)}
}

func schemaFor(name string, fields []model.Field) (hash string, canonicalJSON []byte) {
	fs := model.SchemaFields(fields)
	return typespec.SchemaHash(name, fs), typespec.CanonicalSchemaJSON(name, fs)
}

func TestPlanAdditiveFieldIsSchemaOnlyEvenWithRows(t *testing.T) {
	fb := newFakeBackend()
	oldHash, oldJSON := schemaFor("Customer", []model.Field{strField("email")})
	fb.registerType(model.KindEntity, "Customer", oldJSON, oldHash)
	fb.insertRow(model.KindEntity, "Customer", migrate.RowSnapshot{EntityKey: "cust-1", Fields: map[string]any{"email": "a@x"}})

	m := migrate.New(fb, "owner-1", time.Second, nil)
	types := []migrate.RegisteredType{{Kind: model.KindEntity, Name: "Customer", Fields: []model.Field{strField("email"), strField("phone")}}}

	preview, err := m.Plan(context.Background(), types, nil)
	require.NoError(t, err)
	require.True(t, preview.HasChanges)
	require.Len(t, preview.Diffs, 1)
	assert.Equal(t, []string{"phone"}, preview.Diffs[0].AddedFields)
	assert.Empty(t, preview.TypesRequiringUpgraders)
	assert.Equal(t, []string{"Customer"}, preview.TypesSchemaOnly)
}

func TestPlanRemovedFieldRequiresUpgraderWhenRowsExist(t *testing.T) {
	fb := newFakeBackend()
	oldHash, oldJSON := schemaFor("Customer", []model.Field{strField("email"), strField("mail")})
	fb.registerType(model.KindEntity, "Customer", oldJSON, oldHash)
	fb.insertRow(model.KindEntity, "Customer", migrate.RowSnapshot{EntityKey: "cust-1", Fields: map[string]any{"email": "a@x", "mail": "a@x"}})

	m := migrate.New(fb, "owner-1", time.Second, nil)
	types := []migrate.RegisteredType{{Kind: model.KindEntity, Name: "Customer", Fields: []model.Field{strField("email")}}}

	preview, err := m.Plan(context.Background(), types, nil)
	require.NoError(t, err)
	require.Len(t, preview.Diffs, 1)
	assert.Equal(t, []string{"mail"}, preview.Diffs[0].RemovedFields)
	assert.Equal(t, []string{"Customer"}, preview.TypesRequiringUpgraders)
	assert.Equal(t, 1, preview.EstimatedRows["Customer"])
}

func TestPlanRemovedFieldIsSchemaOnlyWithNoRows(t *testing.T) {
	fb := newFakeBackend()
	oldHash, oldJSON := schemaFor("Customer", []model.Field{strField("email"), strField("mail")})
	fb.registerType(model.KindEntity, "Customer", oldJSON, oldHash)

	m := migrate.New(fb, "owner-1", time.Second, nil)
	types := []migrate.RegisteredType{{Kind: model.KindEntity, Name: "Customer", Fields: []model.Field{strField("email")}}}

	preview, err := m.Plan(context.Background(), types, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Customer"}, preview.TypesSchemaOnly)
	assert.Empty(t, preview.TypesRequiringUpgraders)
}

func TestPlanReportsMissingUpgrader(t *testing.T) {
	fb := newFakeBackend()
	oldHash, oldJSON := schemaFor("Customer", []model.Field{strField("email"), strField("mail")})
	fb.registerType(model.KindEntity, "Customer", oldJSON, oldHash)
	fb.insertRow(model.KindEntity, "Customer", migrate.RowSnapshot{EntityKey: "cust-1", Fields: map[string]any{"email": "a@x", "mail": "a@x"}})

	m := migrate.New(fb, "owner-1", time.Second, nil)
	types := []migrate.RegisteredType{{Kind: model.KindEntity, Name: "Customer", Fields: []model.Field{strField("email")}}}

	preview, err := m.Plan(context.Background(), types, migrate.UpgraderRegistry{})
	require.NoError(t, err)
	require.Contains(t, preview.MissingUpgraders, "Customer")
	assert.Equal(t, []int{1}, preview.MissingUpgraders["Customer"])
}

func TestApplyRewritesRowsThroughUpgrader(t *testing.T) {
	fb := newFakeBackend()
	oldHash, oldJSON := schemaFor("Customer", []model.Field{strField("email"), strField("mail")})
	fb.registerType(model.KindEntity, "Customer", oldJSON, oldHash)
	fb.insertRow(model.KindEntity, "Customer", migrate.RowSnapshot{EntityKey: "cust-1", Fields: map[string]any{"mail": "a@x"}})
	fb.insertRow(model.KindEntity, "Customer", migrate.RowSnapshot{EntityKey: "cust-2", Fields: map[string]any{"mail": "b@x"}})

	registry, err := migrate.CompileRegistry(migrate.UpgraderManifest{Upgraders: []migrate.UpgraderSpec{
		{TypeName: "Customer", FromVersion: 1, Rename: map[string]string{"mail": "email"}},
	}})
	require.NoError(t, err)

	m := migrate.New(fb, "owner-1", time.Second, nil)
	types := []migrate.RegisteredType{{Kind: model.KindEntity, Name: "Customer", Fields: []model.Field{strField("email")}}}

	preview, err := m.Plan(context.Background(), types, registry)
	require.NoError(t, err)
	require.Empty(t, preview.MissingUpgraders)

	result, err := m.Apply(context.Background(), types, registry, preview.Token, false)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"Customer"}, result.TypesMigrated)
	assert.Equal(t, 2, result.RowsMigrated["Customer"])

	rows, err := fb.LatestRows(context.Background(), model.KindEntity, "Customer")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		_, hasMail := r.Fields["mail"]
		assert.False(t, hasMail)
		assert.NotEmpty(t, r.Fields["email"])
	}
}

func TestApplyRejectsStaleToken(t *testing.T) {
	fb := newFakeBackend()
	oldHash, oldJSON := schemaFor("Customer", []model.Field{strField("email"), strField("mail")})
	fb.registerType(model.KindEntity, "Customer", oldJSON, oldHash)
	fb.insertRow(model.KindEntity, "Customer", migrate.RowSnapshot{EntityKey: "cust-1", Fields: map[string]any{"mail": "a@x"}})

	registry, err := migrate.CompileRegistry(migrate.UpgraderManifest{Upgraders: []migrate.UpgraderSpec{
		{TypeName: "Customer", FromVersion: 1, Rename: map[string]string{"mail": "email"}},
	}})
	require.NoError(t, err)

	m := migrate.New(fb, "owner-1", time.Second, nil)
	types := []migrate.RegisteredType{{Kind: model.KindEntity, Name: "Customer", Fields: []model.Field{strField("email")}}}

	preview, err := m.Plan(context.Background(), types, registry)
	require.NoError(t, err)

	// Advance head behind Plan's back, so the previewed token no longer
	// matches the state Apply would act on.
	fb.insertRow(model.KindEntity, "Customer", migrate.RowSnapshot{EntityKey: "cust-2", Fields: map[string]any{"mail": "b@x"}})

	_, err = m.Apply(context.Background(), types, registry, preview.Token, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token")
}

func TestApplyForceBypassesToken(t *testing.T) {
	fb := newFakeBackend()
	oldHash, oldJSON := schemaFor("Customer", []model.Field{strField("email"), strField("mail")})
	fb.registerType(model.KindEntity, "Customer", oldJSON, oldHash)
	fb.insertRow(model.KindEntity, "Customer", migrate.RowSnapshot{EntityKey: "cust-1", Fields: map[string]any{"mail": "a@x"}})

	registry, err := migrate.CompileRegistry(migrate.UpgraderManifest{Upgraders: []migrate.UpgraderSpec{
		{TypeName: "Customer", FromVersion: 1, Rename: map[string]string{"mail": "email"}},
	}})
	require.NoError(t, err)

	m := migrate.New(fb, "owner-1", time.Second, nil)
	types := []migrate.RegisteredType{{Kind: model.KindEntity, Name: "Customer", Fields: []model.Field{strField("email")}}}

	result, err := m.Apply(context.Background(), types, registry, "", true)
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestApplyMissingUpgraderBlocksEvenWithForce(t *testing.T) {
	fb := newFakeBackend()
	oldHash, oldJSON := schemaFor("Customer", []model.Field{strField("email"), strField("mail")})
	fb.registerType(model.KindEntity, "Customer", oldJSON, oldHash)
	fb.insertRow(model.KindEntity, "Customer", migrate.RowSnapshot{EntityKey: "cust-1", Fields: map[string]any{"mail": "a@x"}})

	m := migrate.New(fb, "owner-1", time.Second, nil)
	types := []migrate.RegisteredType{{Kind: model.KindEntity, Name: "Customer", Fields: []model.Field{strField("email")}}}

	_, err := m.Apply(context.Background(), types, migrate.UpgraderRegistry{}, "", true)
	require.Error(t, err)
	assert.Contains(t, strings.ToLower(err.Error()), "upgrader")
}

func TestApplyRewritesRelationRowsPreservingIdentity(t *testing.T) {
	fb := newFakeBackend()
	oldHash, oldJSON := schemaFor("Placed", []model.Field{strField("note_mail")})
	fb.registerType(model.KindRelation, "Placed", oldJSON, oldHash)
	fb.insertRow(model.KindRelation, "Placed", migrate.RowSnapshot{
		LeftKey: "cust-1", RightKey: "order-1", InstanceKey: "",
		Fields: map[string]any{"note_mail": "hi"},
	})

	registry, err := migrate.CompileRegistry(migrate.UpgraderManifest{Upgraders: []migrate.UpgraderSpec{
		{TypeName: "Placed", FromVersion: 1, Rename: map[string]string{"note_mail": "note"}},
	}})
	require.NoError(t, err)

	m := migrate.New(fb, "owner-1", time.Second, nil)
	types := []migrate.RegisteredType{{Kind: model.KindRelation, Name: "Placed", Fields: []model.Field{strField("note")}}}

	preview, err := m.Plan(context.Background(), types, registry)
	require.NoError(t, err)
	result, err := m.Apply(context.Background(), types, registry, preview.Token, false)
	require.NoError(t, err)
	require.Equal(t, 1, result.RowsMigrated["Placed"])

	rows, err := fb.LatestRows(context.Background(), model.KindRelation, "Placed")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "cust-1", rows[0].LeftKey)
	assert.Equal(t, "order-1", rows[0].RightKey)
	assert.Equal(t, "hi", rows[0].Fields["note"])
}

func TestComputePlanHashIgnoresDiffOrder(t *testing.T) {
	alpha := ontoerrors.TypeSchemaDiff{TypeKind: "entity", TypeName: "Alpha", AddedFields: []string{"b", "a"}}
	beta := ontoerrors.TypeSchemaDiff{TypeKind: "entity", TypeName: "Beta", RemovedFields: []string{"z"}}

	h1 := migrate.ComputePlanHash([]ontoerrors.TypeSchemaDiff{alpha, beta})
	h2 := migrate.ComputePlanHash([]ontoerrors.TypeSchemaDiff{beta, alpha})
	assert.Equal(t, h1, h2)

	// Field list order within a single diff must not affect the hash either.
	alphaReordered := ontoerrors.TypeSchemaDiff{TypeKind: "entity", TypeName: "Alpha", AddedFields: []string{"a", "b"}}
	h3 := migrate.ComputePlanHash([]ontoerrors.TypeSchemaDiff{alphaReordered, beta})
	assert.Equal(t, h1, h3)
}

func TestComputeMigrationTokenRoundTrips(t *testing.T) {
	token := migrate.ComputeMigrationToken("deadbeef", 7, true)
	assert.True(t, migrate.VerifyToken(token, "deadbeef", 7, true))
	assert.False(t, migrate.VerifyToken(token, "deadbeef", 8, true))
	assert.False(t, migrate.VerifyToken(token, "cafebabe", 7, true))

	// No commits yet renders as "none", distinct from any numeric head.
	noneToken := migrate.ComputeMigrationToken("deadbeef", 0, false)
	assert.NotEqual(t, token, noneToken)
	assert.True(t, migrate.VerifyToken(noneToken, "deadbeef", 0, false))
}

func TestChainUpgradersReportsEveryMissingStep(t *testing.T) {
	registry := migrate.UpgraderRegistry{
		{TypeName: "Customer", FromVersion: 2}: func(f map[string]any) (map[string]any, error) { return f, nil },
	}
	_, err := migrate.ChainUpgraders(registry, "Customer", 1, 4)
	require.Error(t, err)
	missing, ok := err.(*ontoerrors.MissingUpgraderError)
	require.True(t, ok)
	assert.Equal(t, []int{1, 3}, missing.Missing["Customer"])
}

func TestUpgraderManifestCompilesAndApplies(t *testing.T) {
	manifest, err := migrate.LoadUpgraderManifest(strings.NewReader(`
upgraders:
  - type_name: Customer
    from_version: 1
    rename:
      mail: email
    drop:
      - legacy_flag
    set_defaults:
      tier: standard
`))
	require.NoError(t, err)
	require.Len(t, manifest.Upgraders, 1)

	registry, err := migrate.CompileRegistry(manifest)
	require.NoError(t, err)

	upgrade, err := migrate.ChainUpgraders(registry, "Customer", 1, 2)
	require.NoError(t, err)

	out, err := upgrade(map[string]any{"mail": "a@x", "legacy_flag": true})
	require.NoError(t, err)
	assert.Equal(t, "a@x", out["email"])
	assert.Equal(t, "standard", out["tier"])
	_, hasMail := out["mail"]
	_, hasLegacy := out["legacy_flag"]
	assert.False(t, hasMail)
	assert.False(t, hasLegacy)
}

func TestCompileRegistryRejectsDuplicateStep(t *testing.T) {
	_, err := migrate.CompileRegistry(migrate.UpgraderManifest{Upgraders: []migrate.UpgraderSpec{
		{TypeName: "Customer", FromVersion: 1},
		{TypeName: "Customer", FromVersion: 1},
	}})
	require.Error(t, err)
}
