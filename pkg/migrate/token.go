// SPDX-License-Identifier: Apache-2.0

package migrate

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"

	"github.com/lexiupon/ontologia/pkg/ontoerrors"
)

// planDiffDoc is the canonical, serialized shape of a single TypeSchemaDiff
// hashed into a plan hash: field order and every list/map inside it sorted,
// so the same set of diffs always hashes identically regardless of the
// order Plan happened to produce them in.
type planDiffDoc struct {
	TypeKind      string                                    `json:"type_kind"`
	TypeName      string                                    `json:"type_name"`
	StoredVersion int                                       `json:"stored_version"`
	AddedFields   []string                                  `json:"added_fields"`
	RemovedFields []string                                  `json:"removed_fields"`
	ChangedFields map[string]ontoerrors.FieldTypeChange      `json:"changed_fields"`
}

// ComputePlanHash hashes the canonical JSON of diffs, translating
// migration.py's _compute_plan_hash: sort diffs by (type_kind, type_name),
// sort each diff's added/removed field lists, and rely on
// encoding/json's default sorted-map-key and no-whitespace-separator
// output for the rest (the same effect as Python's sort_keys=True,
// separators=(",", ":")).
func ComputePlanHash(diffs []ontoerrors.TypeSchemaDiff) string {
	docs := make([]planDiffDoc, len(diffs))
	for i, d := range diffs {
		added := append([]string(nil), d.AddedFields...)
		removed := append([]string(nil), d.RemovedFields...)
		sort.Strings(added)
		sort.Strings(removed)
		docs[i] = planDiffDoc{
			TypeKind:      d.TypeKind,
			TypeName:      d.TypeName,
			StoredVersion: d.StoredVersion,
			AddedFields:   added,
			RemovedFields: removed,
			ChangedFields: d.ChangedFields,
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].TypeKind != docs[j].TypeKind {
			return docs[i].TypeKind < docs[j].TypeKind
		}
		return docs[i].TypeName < docs[j].TypeName
	})

	canonical, err := json.Marshal(docs)
	if err != nil {
		panic("migrate: plan diffs failed to marshal: " + err.Error())
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// headToken renders the commit id half of a migration token the way
// migration.py's f"{plan_hash}:{head_commit_id if head_commit_id is not None
// else 'none'}" does: "none" for a store with no commits yet.
func headToken(headCommitID int64, headKnown bool) string {
	if !headKnown {
		return "none"
	}
	return strconv.FormatInt(headCommitID, 10)
}

// ComputeMigrationToken base64url-encodes "plan_hash:head_commit_id", the
// fencing token returned by a dry-run Plan and required (or overridden by
// --force) to Apply.
func ComputeMigrationToken(planHash string, headCommitID int64, headKnown bool) string {
	raw := planHash + ":" + headToken(headCommitID, headKnown)
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// VerifyToken reports whether token was computed against exactly this
// plan hash and head commit id — i.e. whether the plan the caller previewed
// is still the plan that would be applied now.
func VerifyToken(token, planHash string, headCommitID int64, headKnown bool) bool {
	return token == ComputeMigrationToken(planHash, headCommitID, headKnown)
}
