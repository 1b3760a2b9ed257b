// SPDX-License-Identifier: Apache-2.0

package query

import "sync"

// Diagnostic is an advisory condition attached to a query result rather
// than raised as an error, per §4.7's as-of-before-activation note and
// §4.6's stale-coverage-index note.
type Diagnostic struct {
	Reason             string
	ActivationCommitID int64 // set for "commit_before_activation"
}

const (
	ReasonCommitBeforeActivation = "commit_before_activation"
	ReasonCoverageIndexStale     = "coverage_index_stale"
)

// Recorder holds the diagnostics attached to the most recently executed
// query, drained by GetLastQueryDiagnostics the way §4.7 describes: "a
// diagnostic is attached to the next get_last_query_diagnostics() call".
// One Recorder is shared per engine handle, not per query, so it must be
// safe to read from a different goroutine than the one that ran the query.
type Recorder struct {
	mu          sync.Mutex
	diagnostics []Diagnostic
}

// Record replaces the recorder's pending diagnostics with diags.
func (r *Recorder) Record(diags []Diagnostic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diagnostics = diags
}

// LastQueryDiagnostics drains and returns the diagnostics from the most
// recently executed query.
func (r *Recorder) LastQueryDiagnostics() []Diagnostic {
	r.mu.Lock()
	defer r.mu.Unlock()
	diags := r.diagnostics
	r.diagnostics = nil
	return diags
}
