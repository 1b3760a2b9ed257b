// SPDX-License-Identifier: Apache-2.0

package objectstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/lexiupon/ontologia/pkg/commitlog"
	"github.com/lexiupon/ontologia/pkg/model"
	"github.com/lexiupon/ontologia/pkg/objectstore/parquetfile"
	"github.com/lexiupon/ontologia/pkg/ontoerrors"
)

var _ commitlog.Log = (*Store)(nil)

const maxHeadCASRetries = 5

// pendingWrite accumulates one commit's change records in memory between
// BeginWrite and CommitTransaction: unlike the embedded-SQL backend there
// is no transaction to hold open, since nothing is durable until the
// commit's files and manifest are uploaded and HEAD is advanced.
type pendingWrite struct {
	nonce               string
	metadata            map[string]string
	changes             []model.ChangeRecord
	parentManifestPath  string
	headETag            string
	headExisted         bool
}

func (s *Store) BeginWrite(ctx context.Context, metadata map[string]string) (int64, error) {
	head, etag, existed, err := s.readHead(ctx)
	if err != nil {
		return 0, err
	}

	commitID := int64(1)
	parentPath := ""
	if existed {
		commitID = head.CommitID + 1
		parentPath = head.ManifestPath
	}

	s.pendingMu.Lock()
	s.pending[commitID] = &pendingWrite{
		nonce:              uuid.NewString(),
		metadata:           metadata,
		parentManifestPath: parentPath,
		headETag:           etag,
		headExisted:        existed,
	}
	s.pendingMu.Unlock()

	return commitID, nil
}

func (s *Store) AppendChange(ctx context.Context, commitID int64, change model.ChangeRecord) error {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	pw, ok := s.pending[commitID]
	if !ok {
		return fmt.Errorf("objectstore: no open write for commit %d", commitID)
	}
	change.CommitID = commitID
	pw.changes = append(pw.changes, change)
	return nil
}

// CommitTransaction writes the commit's columnar files and manifest, then
// advances HEAD via CAS. On a losing race it re-reads HEAD, rebases the
// commit onto the new head, and retries up to maxHeadCASRetries times
// before failing with *ontoerrors.HeadMismatchError, per §4.4/§4.6.
func (s *Store) CommitTransaction(ctx context.Context, commitID int64) error {
	s.pendingMu.Lock()
	pw, ok := s.pending[commitID]
	if ok {
		delete(s.pending, commitID)
	}
	s.pendingMu.Unlock()
	if !ok {
		return fmt.Errorf("objectstore: no open write for commit %d", commitID)
	}

	files, err := s.uploadChangeFiles(ctx, commitID, pw.nonce, pw.changes)
	if err != nil {
		return err
	}

	manifest := Manifest{
		CommitID:           commitID,
		Nonce:              pw.nonce,
		CreatedAt:          time.Now().UTC().Format(time.RFC3339Nano),
		Metadata:           pw.metadata,
		Files:              files,
		ParentManifestPath: pw.parentManifestPath,
	}
	manifestPath := s.manifestPath(commitID, pw.nonce)
	if err := s.writeManifest(ctx, manifestPath, manifest); err != nil {
		return err
	}

	headETag, headExisted := pw.headETag, pw.headExisted
	for attempt := 0; attempt <= maxHeadCASRetries; attempt++ {
		err := s.writeHeadCAS(ctx, HeadPointer{CommitID: commitID, ManifestPath: manifestPath}, headETag, headExisted)
		if err == nil {
			return nil
		}
		if err != ErrConditionFailed {
			return err
		}
		if attempt == maxHeadCASRetries {
			return &ontoerrors.HeadMismatchError{Retries: attempt}
		}

		// Rebase: someone else advanced HEAD first. Re-read it, fold our
		// commit on top, and retry the CAS with the new ETag.
		newHead, etag, existed, err := s.readHead(ctx)
		if err != nil {
			return err
		}
		commitID = newHead.CommitID + 1
		for i := range pw.changes {
			pw.changes[i].CommitID = commitID
		}
		files, err := s.uploadChangeFiles(ctx, commitID, pw.nonce, pw.changes)
		if err != nil {
			return err
		}
		manifest.Files = files
		manifest.CommitID = commitID
		manifest.ParentManifestPath = newHead.ManifestPath
		manifestPath = s.manifestPath(commitID, pw.nonce)
		if err := s.writeManifest(ctx, manifestPath, manifest); err != nil {
			return err
		}
		headETag, headExisted = etag, existed
	}

	return &ontoerrors.HeadMismatchError{Retries: maxHeadCASRetries}
}

func (s *Store) AbortWrite(commitID int64) error {
	s.pendingMu.Lock()
	delete(s.pending, commitID)
	s.pendingMu.Unlock()
	return nil
}

func (s *Store) uploadChangeFiles(ctx context.Context, commitID int64, nonce string, changes []model.ChangeRecord) ([]FileEntry, error) {
	type group struct {
		kind     string
		typeName string
	}
	grouped := map[group][]model.ChangeRecord{}
	for _, c := range changes {
		kind := "entities"
		if !c.IsEntity() {
			kind = "relations"
		}
		g := group{kind: kind, typeName: c.TypeName}
		grouped[g] = append(grouped[g], c)
	}

	var files []FileEntry
	for g, records := range grouped {
		data, err := parquetfile.Encode(records)
		if err != nil {
			return nil, err
		}
		path := s.filePath(commitID, nonce, g.kind, g.typeName)
		if _, err := s.api.Put(ctx, path, data, "", false); err != nil {
			return nil, err
		}
		files = append(files, FileEntry{Kind: g.kind, TypeName: g.typeName, Path: path})
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].Kind != files[j].Kind {
			return files[i].Kind < files[j].Kind
		}
		return files[i].TypeName < files[j].TypeName
	})
	return files, nil
}

// walkManifests walks the manifest chain from startPath back to genesis,
// returning manifests in ascending commit order. This is the fallback path
// for every read operation below; the per-type coverage index (index.go)
// exists specifically so temporal queries don't have to pay for it on
// every read.
func (s *Store) walkManifests(ctx context.Context, startPath string) ([]Manifest, error) {
	var chain []Manifest
	path := startPath
	for path != "" {
		m, err := s.readManifest(ctx, path)
		if err != nil {
			return nil, err
		}
		chain = append(chain, m)
		path = m.ParentManifestPath
	}
	sort.Slice(chain, func(i, j int) bool { return chain[i].CommitID < chain[j].CommitID })
	return chain, nil
}

func (s *Store) Head(ctx context.Context) (int64, bool, error) {
	head, _, existed, err := s.readHead(ctx)
	if err != nil {
		return 0, false, err
	}
	return head.CommitID, existed, nil
}

func (s *Store) ListCommits(ctx context.Context, limit int, since int64) ([]model.Commit, error) {
	head, _, existed, err := s.readHead(ctx)
	if err != nil {
		return nil, err
	}
	if !existed {
		return nil, nil
	}
	chain, err := s.walkManifests(ctx, head.ManifestPath)
	if err != nil {
		return nil, err
	}

	var out []model.Commit
	for _, m := range chain {
		if m.CommitID <= since {
			continue
		}
		createdAt, _ := time.Parse(time.RFC3339Nano, m.CreatedAt)
		out = append(out, model.Commit{CommitID: m.CommitID, CreatedAt: createdAt, Metadata: m.Metadata})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) GetCommit(ctx context.Context, commitID int64) (model.Commit, error) {
	m, err := s.findManifest(ctx, commitID)
	if err != nil {
		return model.Commit{}, err
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, m.CreatedAt)
	return model.Commit{CommitID: m.CommitID, CreatedAt: createdAt, Metadata: m.Metadata}, nil
}

func (s *Store) ListChanges(ctx context.Context, commitID int64) ([]model.ChangeRecord, error) {
	m, err := s.findManifest(ctx, commitID)
	if err != nil {
		return nil, err
	}
	return s.readManifestChanges(ctx, m)
}

func (s *Store) CountOperations(ctx context.Context, commitID int64) (int, error) {
	changes, err := s.ListChanges(ctx, commitID)
	if err != nil {
		return 0, err
	}
	return len(changes), nil
}

func (s *Store) findManifest(ctx context.Context, commitID int64) (Manifest, error) {
	head, _, existed, err := s.readHead(ctx)
	if err != nil {
		return Manifest{}, err
	}
	if !existed {
		return Manifest{}, fmt.Errorf("objectstore: commit %d not found", commitID)
	}
	chain, err := s.walkManifests(ctx, head.ManifestPath)
	if err != nil {
		return Manifest{}, err
	}
	for _, m := range chain {
		if m.CommitID == commitID {
			return m, nil
		}
	}
	return Manifest{}, fmt.Errorf("objectstore: commit %d not found", commitID)
}

func (s *Store) readManifestChanges(ctx context.Context, m Manifest) ([]model.ChangeRecord, error) {
	var out []model.ChangeRecord
	for _, f := range m.Files {
		data, _, err := s.api.Get(ctx, f.Path)
		if err != nil {
			return nil, err
		}
		records, err := parquetfile.Decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, records...)
	}
	return out, nil
}
