// SPDX-License-Identifier: Apache-2.0

package objectstore

import (
	"context"
	"encoding/json"
	"fmt"
)

// HeadPointer is meta/head.json: the atomic pointer to the latest commit,
// advanced only by compare-and-swap on its object ETag (§4.6).
type HeadPointer struct {
	CommitID     int64  `json:"commit_id"`
	ManifestPath string `json:"manifest_path"`
}

// FileEntry describes one columnar file written by a commit.
type FileEntry struct {
	Kind     string `json:"kind"` // "entities" | "relations"
	TypeName string `json:"type_name"`
	Path     string `json:"path"`
}

// Manifest is commits/<id>-<nonce>/manifest.json: the commit's metadata and
// the list of columnar files it wrote, chained to its parent so the commit
// history can be walked without consulting the index.
type Manifest struct {
	CommitID           int64             `json:"commit_id"`
	Nonce              string            `json:"nonce"`
	CreatedAt          string            `json:"created_at"`
	Metadata           map[string]string `json:"metadata"`
	Files              []FileEntry       `json:"files"`
	ParentManifestPath string            `json:"parent_manifest_path,omitempty"`
}

func (s *Store) headPath() string { return s.key("meta", "head.json") }

// readHead returns the current head pointer and its ETag (for CAS), or a
// zero-value pointer with ok=false if no commit has ever been made.
func (s *Store) readHead(ctx context.Context) (HeadPointer, string, bool, error) {
	body, etag, err := s.api.Get(ctx, s.headPath())
	if err != nil {
		if err == ErrNotFound {
			return HeadPointer{}, "", false, nil
		}
		return HeadPointer{}, "", false, err
	}
	var head HeadPointer
	if err := json.Unmarshal(body, &head); err != nil {
		return HeadPointer{}, "", false, fmt.Errorf("unmarshal head.json: %w", err)
	}
	return head, etag, true, nil
}

// writeHeadCAS installs newHead, conditional on the head object's ETag
// still equaling prevETag (or the object still being absent, if prevETag
// is empty and existed is false). Returns ErrConditionFailed on a losing
// race, per §4.4's HEAD CAS protocol.
func (s *Store) writeHeadCAS(ctx context.Context, newHead HeadPointer, prevETag string, existed bool) error {
	body, err := json.Marshal(newHead)
	if err != nil {
		return err
	}
	_, err = s.api.Put(ctx, s.headPath(), body, prevETag, !existed)
	return err
}

func (s *Store) manifestPath(commitID int64, nonce string) string {
	return s.key("commits", fmt.Sprintf("%d-%s", commitID, nonce), "manifest.json")
}

func (s *Store) filePath(commitID int64, nonce, kind, typeName string) string {
	return s.key("commits", fmt.Sprintf("%d-%s", commitID, nonce), kind, typeName+".parquet")
}

func (s *Store) readManifest(ctx context.Context, path string) (Manifest, error) {
	body, _, err := s.api.Get(ctx, path)
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := json.Unmarshal(body, &m); err != nil {
		return Manifest{}, fmt.Errorf("unmarshal manifest %s: %w", path, err)
	}
	return m, nil
}

func (s *Store) writeManifest(ctx context.Context, path string, m Manifest) error {
	body, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_, err = s.api.Put(ctx, path, body, "", false)
	return err
}
