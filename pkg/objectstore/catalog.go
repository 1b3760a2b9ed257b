// SPDX-License-Identifier: Apache-2.0

package objectstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lexiupon/ontologia/pkg/catalog"
	"github.com/lexiupon/ontologia/pkg/model"
	"github.com/lexiupon/ontologia/pkg/ontoerrors"
)

var _ catalog.Catalog = (*Store)(nil)

const maxCatalogCASRetries = 5

// versionRecord is the JSON shape of one entry in a type's
// meta/schema_versions/<kind>/<type>.json history file. CanonicalJSON is
// kept as a raw JSON value rather than a byte string so the history file
// itself stays readable.
type versionRecord struct {
	SchemaVersionID    int64           `json:"schema_version_id"`
	CanonicalJSON      json.RawMessage `json:"canonical_json"`
	Hash               string          `json:"hash"`
	CreationCommitID   int64           `json:"creation_commit_id"`
	ActivationCommitID int64           `json:"activation_commit_id"`
	Reason             string          `json:"reason"`
}

func (s *Store) versionsPath(kind model.TypeKind, typeName string) string {
	return s.key("meta", "schema_versions", string(kind), typeName+".json")
}

func (s *Store) readVersionHistory(ctx context.Context, kind model.TypeKind, typeName string) ([]versionRecord, string, bool, error) {
	body, etag, err := s.api.Get(ctx, s.versionsPath(kind, typeName))
	if err != nil {
		if err == ErrNotFound {
			return nil, "", false, nil
		}
		return nil, "", false, err
	}
	var records []versionRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, "", false, fmt.Errorf("unmarshal schema version history: %w", err)
	}
	return records, etag, true, nil
}

// mutateVersionHistory performs a read-modify-write against a type's
// version history file, retrying on CAS contention the way writeHeadCAS's
// callers do, since multiple writers racing to register or activate a
// schema version for the same type hit the same object.
func (s *Store) mutateVersionHistory(ctx context.Context, kind model.TypeKind, typeName string, mutate func([]versionRecord) ([]versionRecord, error)) error {
	for attempt := 0; attempt <= maxCatalogCASRetries; attempt++ {
		records, etag, existed, err := s.readVersionHistory(ctx, kind, typeName)
		if err != nil {
			return err
		}
		updated, err := mutate(records)
		if err != nil {
			return err
		}
		body, err := json.Marshal(updated)
		if err != nil {
			return err
		}
		_, err = s.api.Put(ctx, s.versionsPath(kind, typeName), body, etag, !existed)
		if err == nil {
			return nil
		}
		if err != ErrConditionFailed {
			return err
		}
		if attempt == maxCatalogCASRetries {
			return &ontoerrors.ConcurrentWriteError{Message: fmt.Sprintf("schema version history for %s/%s kept changing under us", kind, typeName)}
		}
	}
	return &ontoerrors.ConcurrentWriteError{Message: fmt.Sprintf("schema version history for %s/%s kept changing under us", kind, typeName)}
}

func (s *Store) CreateSchemaVersion(ctx context.Context, kind model.TypeKind, typeName string, canonicalJSON []byte, hash, reason string) (int64, error) {
	commitID, _, err := s.Head(ctx)
	if err != nil {
		return 0, err
	}

	var newID int64
	err = s.mutateVersionHistory(ctx, kind, typeName, func(records []versionRecord) ([]versionRecord, error) {
		newID = int64(len(records)) + 1
		for _, r := range records {
			if r.SchemaVersionID >= newID {
				newID = r.SchemaVersionID + 1
			}
		}
		records = append(records, versionRecord{
			SchemaVersionID:    newID,
			CanonicalJSON:      json.RawMessage(canonicalJSON),
			Hash:               hash,
			CreationCommitID:   commitID,
			ActivationCommitID: catalog.NotActivated,
			Reason:             reason,
		})
		return records, nil
	})
	if err != nil {
		return 0, err
	}

	if err := s.registerTypeName(ctx, kind, typeName); err != nil {
		return 0, err
	}

	return newID, nil
}

func (s *Store) ActivateSchemaVersion(ctx context.Context, kind model.TypeKind, typeName string, schemaVersionID, activationCommitID int64) error {
	return s.mutateVersionHistory(ctx, kind, typeName, func(records []versionRecord) ([]versionRecord, error) {
		previous := catalog.NotActivated
		found := false
		for i, r := range records {
			if r.ActivationCommitID != catalog.NotActivated && r.ActivationCommitID > previous {
				previous = r.ActivationCommitID
			}
			if r.SchemaVersionID == schemaVersionID {
				found = true
				_ = i
			}
		}
		if !found {
			return nil, fmt.Errorf("objectstore: schema version %d not found for %s/%s", schemaVersionID, kind, typeName)
		}
		if err := catalog.ValidateActivation(typeName, previous, activationCommitID); err != nil {
			return nil, err
		}
		for i, r := range records {
			if r.SchemaVersionID == schemaVersionID {
				records[i].ActivationCommitID = activationCommitID
			}
		}
		return records, nil
	})
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
		return catalog.SchemaVersion{}, fmt.Errorf("objectstore: no active schema version for %s/%s", kind, typeName)
	}
	return v, nil
}

func (s *Store) ListVersions(ctx context.Context, kind model.TypeKind, typeName string) ([]catalog.SchemaVersion, error) {
	records, _, _, err := s.readVersionHistory(ctx, kind, typeName)
	if err != nil {
		return nil, err
	}
	out := make([]catalog.SchemaVersion, 0, len(records))
	for _, r := range records {
		out = append(out, catalog.SchemaVersion{
			SchemaVersionID:    r.SchemaVersionID,
			TypeKind:           kind,
			TypeName:           typeName,
			CanonicalJSON:      []byte(r.CanonicalJSON),
			Hash:               r.Hash,
			CreationCommitID:   r.CreationCommitID,
			ActivationCommitID: r.ActivationCommitID,
			Reason:             r.Reason,
		})
	}
	return out, nil
}

func (s *Store) VersionActiveAt(ctx context.Context, kind model.TypeKind, typeName string, commitID int64) (catalog.SchemaVersion, bool, error) {
	versions, err := s.ListVersions(ctx, kind, typeName)
	if err != nil {
		return catalog.SchemaVersion{}, false, err
	}
	v, ok := catalog.ActiveWindow(versions, commitID)
	return v, ok, nil
}
