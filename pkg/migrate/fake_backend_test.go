// SPDX-License-Identifier: Apache-2.0

package migrate_test

import (
	"context"
	"sync"
	"time"

	"github.com/lexiupon/ontologia/pkg/catalog"
	"github.com/lexiupon/ontologia/pkg/model"
	"github.com/lexiupon/ontologia/pkg/lease"
	"github.com/lexiupon/ontologia/pkg/migrate"
	"github.com/lexiupon/ontologia/pkg/ontoerrors"
)

// fakeBackend is a minimal in-memory migrate.Backend, standing in for a real
// sqlstore/objectstore handle: the migration engine's own value under test
// is the plan/token/apply state machine, not either backend's storage
// format, which each backend's own package already tests.
type fakeBackend struct {
	mu sync.Mutex

	head      int64
	headKnown bool

	versions      map[string][]catalog.SchemaVersion
	nextVersionID int64

	rows map[string]map[string]fakeRow

	lockOwner  string
	lockExpiry time.Time

	pending map[int64][]model.ChangeRecord
}

type fakeRow struct {
	snapshot migrate.RowSnapshot
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		versions: map[string][]catalog.SchemaVersion{},
		rows:     map[string]map[string]fakeRow{},
		pending:  map[int64][]model.ChangeRecord{},
	}
}

func typeKey(kind model.TypeKind, typeName string) string { return string(kind) + "/" + typeName }

func rowIdentity(kind model.TypeKind, r migrate.RowSnapshot) string {
	if kind == model.KindEntity {
		return r.EntityKey
	}
	return r.LeftKey + "|" + r.RightKey + "|" + r.InstanceKey
}

// registerType seeds a type's first schema version, activated at the
// current head, the way opening the store with a brand-new type would.
func (f *fakeBackend) registerType(kind model.TypeKind, name string, canonicalJSON []byte, hash string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextVersionID++
	id := f.nextVersionID
	f.versions[typeKey(kind, name)] = append(f.versions[typeKey(kind, name)], catalog.SchemaVersion{
		SchemaVersionID: id, TypeKind: kind, TypeName: name,
		CanonicalJSON: canonicalJSON, Hash: hash,
		CreationCommitID: f.head, ActivationCommitID: f.head, Reason: "initial",
	})
	return id
}

func (f *fakeBackend) insertRow(kind model.TypeKind, name string, row migrate.RowSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.head++
	f.headKnown = true
	key := typeKey(kind, name)
	if f.rows[key] == nil {
		f.rows[key] = map[string]fakeRow{}
	}
	f.rows[key][rowIdentity(kind, row)] = fakeRow{snapshot: row}
}

func (f *fakeBackend) CreateSchemaVersion(ctx context.Context, kind model.TypeKind, typeName string, canonicalJSON []byte, hash, reason string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextVersionID++
	id := f.nextVersionID
	f.versions[typeKey(kind, typeName)] = append(f.versions[typeKey(kind, typeName)], catalog.SchemaVersion{
		SchemaVersionID: id, TypeKind: kind, TypeName: typeName,
		CanonicalJSON: canonicalJSON, Hash: hash,
		CreationCommitID: f.head, ActivationCommitID: catalog.NotActivated, Reason: reason,
	})
	return id, nil
}

func (f *fakeBackend) ActivateSchemaVersion(ctx context.Context, kind model.TypeKind, typeName string, schemaVersionID, activationCommitID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := typeKey(kind, typeName)
	for i, v := range f.versions[key] {
		if v.SchemaVersionID == schemaVersionID {
			f.versions[key][i].ActivationCommitID = activationCommitID
			return nil
		}
	}
	return &ontoerrors.MigrationError{Message: "fakeBackend: version not found"}
}

func (f *fakeBackend) GetCurrentSchemaVersion(ctx context.Context, kind model.TypeKind, typeName string) (catalog.SchemaVersion, error) {
	versions, _ := f.ListVersions(ctx, kind, typeName)
	v, ok := catalog.ActiveWindow(versions, f.head)
	if !ok {
		return catalog.SchemaVersion{}, &ontoerrors.MigrationError{Message: "no active version"}
	}
	return v, nil
}

func (f *fakeBackend) ListSchemas(ctx context.Context, kind model.TypeKind) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for key := range f.versions {
		out = append(out, key)
	}
	return out, nil
}

func (f *fakeBackend) ListVersions(ctx context.Context, kind model.TypeKind, typeName string) ([]catalog.SchemaVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]catalog.SchemaVersion(nil), f.versions[typeKey(kind, typeName)]...)
	return out, nil
}

func (f *fakeBackend) VersionActiveAt(ctx context.Context, kind model.TypeKind, typeName string, commitID int64) (catalog.SchemaVersion, bool, error) {
	versions, _ := f.ListVersions(ctx, kind, typeName)
	v, ok := catalog.ActiveWindow(versions, commitID)
	return v, ok, nil
}

func (f *fakeBackend) AcquireLock(ctx context.Context, ownerID string, leaseTTL time.Duration) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lockOwner != "" && f.lockOwner != ownerID && time.Now().Before(f.lockExpiry) {
		return time.Time{}, &ontoerrors.LockContentionError{TimeoutMs: int(leaseTTL.Milliseconds())}
	}
	f.lockOwner = ownerID
	f.lockExpiry = time.Now().Add(leaseTTL)
	return f.lockExpiry, nil
}

func (f *fakeBackend) RenewLock(ctx context.Context, ownerID string, leaseTTL time.Duration) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lockOwner != ownerID {
		return time.Time{}, &ontoerrors.LeaseExpiredError{}
	}
	f.lockExpiry = time.Now().Add(leaseTTL)
	return f.lockExpiry, nil
}

func (f *fakeBackend) ReleaseLock(ctx context.Context, ownerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lockOwner == ownerID {
		f.lockOwner = ""
	}
	return nil
}

func (f *fakeBackend) IsLocked(ctx context.Context) (lease.Lock, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lockOwner == "" || time.Now().After(f.lockExpiry) {
		return lease.Lock{}, false, nil
	}
	return lease.Lock{OwnerID: f.lockOwner, ExpiresAt: f.lockExpiry}, true, nil
}

func (f *fakeBackend) BeginWrite(ctx context.Context, metadata map[string]string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.head++
	f.headKnown = true
	f.pending[f.head] = nil
	return f.head, nil
}

func (f *fakeBackend) AppendChange(ctx context.Context, commitID int64, change model.ChangeRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending[commitID] = append(f.pending[commitID], change)
	return nil
}

func (f *fakeBackend) CommitTransaction(ctx context.Context, commitID int64) error {
	f.mu.Lock()
	changes := f.pending[commitID]
	delete(f.pending, commitID)
	f.mu.Unlock()

	for _, c := range changes {
		kind := model.KindEntity
		if !c.IsEntity() {
			kind = model.KindRelation
		}
		row := migrate.RowSnapshot{
			EntityKey: c.EntityKey, LeftKey: c.LeftKey, RightKey: c.RightKey, InstanceKey: c.InstanceKey,
			Fields: c.Fields,
		}
		f.mu.Lock()
		key := typeKey(kind, c.TypeName)
		if f.rows[key] == nil {
			f.rows[key] = map[string]fakeRow{}
		}
		if c.IsTombstone() {
			delete(f.rows[key], rowIdentity(kind, row))
		} else {
			f.rows[key][rowIdentity(kind, row)] = fakeRow{snapshot: row}
		}
		f.mu.Unlock()
	}
	return nil
}

func (f *fakeBackend) AbortWrite(commitID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pending, commitID)
	return nil
}

func (f *fakeBackend) Head(ctx context.Context) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, f.headKnown, nil
}

func (f *fakeBackend) LatestRows(ctx context.Context, kind model.TypeKind, typeName string) ([]migrate.RowSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []migrate.RowSnapshot
	for _, r := range f.rows[typeKey(kind, typeName)] {
		out = append(out, r.snapshot)
	}
	return out, nil
}
