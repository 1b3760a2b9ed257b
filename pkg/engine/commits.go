// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"

	"github.com/lexiupon/ontologia/pkg/model"
)

// CommitsOptions filters the `commits [--last N] [--since C] [--meta k=v]`
// operator command (§6). Meta is matched as an exact key/value pair against
// a commit's metadata; an empty Meta applies no filter.
type CommitsOptions struct {
	Last  int
	Since int64
	Meta  map[string]string
}

// Commits lists commits in ascending commit order, newest-Last trimmed and
// Meta-filtered client-side since neither backend indexes commit metadata.
func (e *Engine) Commits(ctx context.Context, opts CommitsOptions) ([]model.Commit, error) {
	commits, err := e.listCommits(ctx, 0, opts.Since)
	if err != nil {
		return nil, err
	}

	if len(opts.Meta) > 0 {
		filtered := commits[:0]
		for _, c := range commits {
			if matchesMeta(c.Metadata, opts.Meta) {
				filtered = append(filtered, c)
			}
		}
		commits = filtered
	}

	if opts.Last > 0 && len(commits) > opts.Last {
		commits = commits[len(commits)-opts.Last:]
	}
	return commits, nil
}

func matchesMeta(metadata, want map[string]string) bool {
	for k, v := range want {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

// CommitDetail is the result of CommitExamine: a single commit plus its
// change records and operation count.
type CommitDetail struct {
	Commit  model.Commit
	Changes []model.ChangeRecord
	OpCount int
}

// CommitExamine returns one commit's full detail, the `commits examine --id
// C` operator command.
func (e *Engine) CommitExamine(ctx context.Context, commitID int64) (CommitDetail, error) {
	commit, err := e.getCommit(ctx, commitID)
	if err != nil {
		return CommitDetail{}, err
	}
	changes, err := e.listChanges(ctx, commitID)
	if err != nil {
		return CommitDetail{}, err
	}
	count, err := e.countOperations(ctx, commitID)
	if err != nil {
		return CommitDetail{}, err
	}
	return CommitDetail{Commit: commit, Changes: changes, OpCount: count}, nil
}

func (e *Engine) listCommits(ctx context.Context, limit int, since int64) ([]model.Commit, error) {
	if e.sql != nil {
		return e.sql.ListCommits(ctx, limit, since)
	}
	return e.obj.ListCommits(ctx, limit, since)
}

func (e *Engine) getCommit(ctx context.Context, commitID int64) (model.Commit, error) {
	if e.sql != nil {
		return e.sql.GetCommit(ctx, commitID)
	}
	return e.obj.GetCommit(ctx, commitID)
}

func (e *Engine) listChanges(ctx context.Context, commitID int64) ([]model.ChangeRecord, error) {
	if e.sql != nil {
		return e.sql.ListChanges(ctx, commitID)
	}
	return e.obj.ListChanges(ctx, commitID)
}

func (e *Engine) countOperations(ctx context.Context, commitID int64) (int, error) {
	if e.sql != nil {
		return e.sql.CountOperations(ctx, commitID)
	}
	return e.obj.CountOperations(ctx, commitID)
}
