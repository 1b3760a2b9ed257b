// SPDX-License-Identifier: Apache-2.0

package objectstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Initialized reports whether meta/head.json exists, the object-store
// equivalent of the SQL backend's storage_meta table existing: its absence
// is the uninitialized state, distinct from "initialized but no commits
// made yet" (CommitID 0).
func (s *Store) Initialized(ctx context.Context) (bool, error) {
	_, _, existed, err := s.readHead(ctx)
	if err != nil {
		return false, err
	}
	return existed, nil
}

// ComputeForceToken derives a force token from the store's current head
// commit id, so re-init can't succeed without first observing current
// state, mirroring sqlstore.ComputeForceToken and §6's "force token derived
// from observing the current state".
func ComputeForceToken(headCommitID int64, headKnown bool) string {
	marker := "none"
	if headKnown {
		marker = fmt.Sprintf("%d", headCommitID)
	}
	sum := sha256.Sum256([]byte("ontologia-force-reinit:" + marker))
	return hex.EncodeToString(sum[:])[:16]
}

// Init is the idempotent initialization primitive (§6) for the object-store
// backend: it writes the initial meta/head.json (CommitID 0, no commits
// yet) and an empty meta/types.json stamped with catalogFormatVersion.
// Re-init against an already-initialized prefix requires forceToken to
// match ComputeForceToken's output for the currently observed head,
// preventing accidental wipe.
func Init(ctx context.Context, s *Store, catalogFormatVersion string, force bool, forceToken string) error {
	head, headETag, headExisted, err := s.readHead(ctx)
	if err != nil {
		return err
	}

	if headExisted {
		expected := ComputeForceToken(head.CommitID, true)
		if !force || forceToken != expected {
			return fmt.Errorf("storage already initialized at head commit %d; re-init requires --force with the correct token", head.CommitID)
		}
	}

	if err := s.writeHeadCAS(ctx, HeadPointer{CommitID: 0, ManifestPath: ""}, headETag, headExisted); err != nil {
		return err
	}

	_, typesETag, typesExisted, err := s.readTypesCatalog(ctx)
	if err != nil {
		return err
	}
	if !typesExisted {
		body, err := json.Marshal(typesCatalog{CatalogFormatVersion: catalogFormatVersion})
		if err != nil {
			return err
		}
		if _, err := s.api.Put(ctx, s.typesPath(), body, typesETag, true); err != nil {
			return err
		}
	}

	return nil
}

// CatalogFormatVersion returns the catalog_format_version stamped into
// meta/types.json at init time, and false if the prefix predates that
// stamp (a store initialized before this field existed).
func (s *Store) CatalogFormatVersion(ctx context.Context) (string, bool, error) {
	tc, _, existed, err := s.readTypesCatalog(ctx)
	if err != nil {
		return "", false, err
	}
	if !existed || tc.CatalogFormatVersion == "" {
		return "", false, nil
	}
	return tc.CatalogFormatVersion, true, nil
}
