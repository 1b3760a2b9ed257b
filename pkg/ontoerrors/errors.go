// SPDX-License-Identifier: Apache-2.0

// Package ontoerrors defines the error taxonomy surfaced by every layer of
// the engine. Callers are expected to use errors.As against these types
// rather than matching on message text.
package ontoerrors

import "fmt"

// ValidationError is returned when a row fails field validation: an unknown
// field, a value that doesn't match its type_spec, or a unique constraint
// violation.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// FieldTypeChange describes how a single field's type_spec changed between
// the stored schema version and the code's current schema version.
type FieldTypeChange struct {
	Old any
	New any
}

// TypeSchemaDiff describes the difference between the stored and code schema
// for one type, as produced by the migration planner.
type TypeSchemaDiff struct {
	TypeKind       string
	TypeName       string
	StoredVersion  int
	AddedFields    []string
	RemovedFields  []string
	ChangedFields  map[string]FieldTypeChange
	RequiresUpgrade bool
}

// SchemaOutdatedError is raised when the code's schema differs from the
// stored schema at session-open time.
type SchemaOutdatedError struct {
	Diffs []TypeSchemaDiff
}

func (e *SchemaOutdatedError) Error() string {
	return fmt.Sprintf("schema outdated for %d type(s); call migrate to preview and apply", len(e.Diffs))
}

// MigrationError is raised when a migration operation fails for reasons
// other than a token or missing-upgrader problem.
type MigrationError struct {
	Message string
}

func (e *MigrationError) Error() string { return e.Message }

// MigrationTokenError is raised when a migration token is invalid or stale
// relative to the current plan / head commit.
type MigrationTokenError struct {
	Message string
}

func (e *MigrationTokenError) Error() string { return e.Message }

// MissingUpgraderError is raised when the upgrader chain needed to apply a
// migration has one or more missing (type_name, from_version) links.
type MissingUpgraderError struct {
	Missing map[string][]int
}

func (e *MissingUpgraderError) Error() string {
	return fmt.Sprintf("missing upgraders for %d type(s)", len(e.Missing))
}

// LockContentionError is raised when a write lease cannot be acquired
// within the operator-configured timeout.
type LockContentionError struct {
	TimeoutMs int
}

func (e *LockContentionError) Error() string {
	return fmt.Sprintf("could not acquire write lock within %dms", e.TimeoutMs)
}

// LeaseExpiredError is raised when a writer's lease has expired before
// commit finalization.
type LeaseExpiredError struct{}

func (e *LeaseExpiredError) Error() string {
	return "write lease expired before commit finalization"
}

// HeadMismatchError is raised when the object-store HEAD CAS retry budget
// is exhausted.
type HeadMismatchError struct {
	Retries int
}

func (e *HeadMismatchError) Error() string {
	return fmt.Sprintf("head mismatch after %d retries; aborting commit", e.Retries)
}

// ConcurrentWriteError is raised when write contention is detected after an
// internal retry budget is exhausted, distinct from an expired lease.
type ConcurrentWriteError struct {
	Message string
}

func (e *ConcurrentWriteError) Error() string {
	if e.Message == "" {
		return "concurrent write detected; please retry"
	}
	return e.Message
}

// UninitializedStorageError is raised when a storage URI has not been
// initialized (object store prefix lacks meta/head.json, or the SQL backend
// lacks its catalog tables).
type UninitializedStorageError struct {
	StorageURI string
}

func (e *UninitializedStorageError) Error() string {
	return fmt.Sprintf("storage not initialized for %q; run init first", e.StorageURI)
}

// StorageBackendError wraps a lower-level backend failure (driver error,
// SDK error) with the operation that triggered it.
type StorageBackendError struct {
	Operation string
	Detail    string
	Err       error
}

func (e *StorageBackendError) Error() string {
	return fmt.Sprintf("storage backend error during %s: %s", e.Operation, e.Detail)
}

func (e *StorageBackendError) Unwrap() error { return e.Err }

// EventLoopLimitError is enforced by the (external) event runtime but is
// part of the shared taxonomy so engine callers can recognize it.
type EventLoopLimitError struct {
	Depth, Limit int
}

func (e *EventLoopLimitError) Error() string {
	return fmt.Sprintf("event chain depth %d exceeds limit %d", e.Depth, e.Limit)
}

// BatchSizeExceededError is enforced by the (external) event runtime.
type BatchSizeExceededError struct {
	Count, Limit int
}

func (e *BatchSizeExceededError) Error() string {
	return fmt.Sprintf("handler emitted %d intents, exceeding max_batch_size of %d", e.Count, e.Limit)
}

// UnsupportedOnBackendError is returned by maintenance operations (index
// verify/repair, compact) that only apply to the object-store backend when
// invoked against the embedded-SQL backend.
type UnsupportedOnBackendError struct {
	Operation string
	Backend   string
}

func (e *UnsupportedOnBackendError) Error() string {
	return fmt.Sprintf("%s is not supported on the %s backend", e.Operation, e.Backend)
}
