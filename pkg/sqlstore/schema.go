// SPDX-License-Identifier: Apache-2.0

package sqlstore

// sqlInitV2 creates the full v2 catalog: storage metadata, the commit log,
// the schema-version catalog, row storage with validity intervals, and the
// write lease, in one statement batch, the way the teacher's sqlInit
// provisions its whole state schema in a single Init call.
const sqlInitV2 = `
CREATE TABLE IF NOT EXISTS storage_meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS commits (
	commit_id INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS change_records (
	commit_id INTEGER NOT NULL REFERENCES commits(commit_id),
	kind TEXT NOT NULL,
	type_name TEXT NOT NULL,
	entity_key TEXT NOT NULL DEFAULT '',
	left_key TEXT NOT NULL DEFAULT '',
	right_key TEXT NOT NULL DEFAULT '',
	instance_key TEXT NOT NULL DEFAULT '',
	fields TEXT NOT NULL DEFAULT '{}',
	schema_version_id INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_change_records_commit ON change_records(commit_id);

CREATE TABLE IF NOT EXISTS schema_versions (
	schema_version_id INTEGER PRIMARY KEY AUTOINCREMENT,
	type_kind TEXT NOT NULL,
	type_name TEXT NOT NULL,
	canonical_json TEXT NOT NULL,
	hash TEXT NOT NULL,
	creation_commit_id INTEGER NOT NULL,
	activation_commit_id INTEGER NOT NULL DEFAULT -1,
	reason TEXT NOT NULL DEFAULT ''
);
-- only_one_active: at most one activation per (type, commit) -- enforces
-- activation monotonicity can never collide two versions on the same
-- boundary. activation_commit_id = -1 means "not yet activated" and is
-- excluded so any number of pending versions can coexist under
-- history_is_linear below.
CREATE UNIQUE INDEX IF NOT EXISTS only_one_active
	ON schema_versions(type_kind, type_name, activation_commit_id)
	WHERE activation_commit_id > -1;
-- history_is_linear: at most one version per type may be awaiting
-- activation at a time.
CREATE UNIQUE INDEX IF NOT EXISTS history_is_linear
	ON schema_versions(type_kind, type_name)
	WHERE activation_commit_id = -1;

CREATE TABLE IF NOT EXISTS rows_store (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	type_kind TEXT NOT NULL,
	type_name TEXT NOT NULL,
	entity_key TEXT NOT NULL DEFAULT '',
	left_key TEXT NOT NULL DEFAULT '',
	right_key TEXT NOT NULL DEFAULT '',
	instance_key TEXT NOT NULL DEFAULT '',
	fields_json TEXT NOT NULL DEFAULT '{}',
	schema_version_id INTEGER NOT NULL,
	valid_from_commit_id INTEGER NOT NULL,
	valid_to_commit_id INTEGER
);
CREATE INDEX IF NOT EXISTS idx_rows_identity
	ON rows_store(type_name, entity_key, left_key, right_key, instance_key);
CREATE INDEX IF NOT EXISTS idx_rows_validity
	ON rows_store(type_name, valid_from_commit_id, valid_to_commit_id);

CREATE TABLE IF NOT EXISTS write_lease (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	owner_id TEXT NOT NULL,
	expires_at TEXT NOT NULL
);
`

// sqlInitV1 is the legacy layout detected via storage_meta's absence or an
// explicit engine_version=v1 stamp: it lacks the activation-boundary
// columns on schema_versions, and rows carry no schema_version_id at all.
// Opening a v1 store synthesizes one v2-shaped activation row per type at
// commit 0 (see BackfillV1Activations) rather than requiring this legacy
// shape to be queried directly.
const sqlInitV1 = `
CREATE TABLE IF NOT EXISTS storage_meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS commits (
	commit_id INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS change_records (
	commit_id INTEGER NOT NULL REFERENCES commits(commit_id),
	kind TEXT NOT NULL,
	type_name TEXT NOT NULL,
	entity_key TEXT NOT NULL DEFAULT '',
	left_key TEXT NOT NULL DEFAULT '',
	right_key TEXT NOT NULL DEFAULT '',
	instance_key TEXT NOT NULL DEFAULT '',
	fields TEXT NOT NULL DEFAULT '{}',
	schema_version_id INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS schema_versions (
	schema_version_id INTEGER PRIMARY KEY AUTOINCREMENT,
	type_kind TEXT NOT NULL,
	type_name TEXT NOT NULL,
	canonical_json TEXT NOT NULL,
	hash TEXT NOT NULL,
	creation_commit_id INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS rows_store (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	type_kind TEXT NOT NULL,
	type_name TEXT NOT NULL,
	entity_key TEXT NOT NULL DEFAULT '',
	left_key TEXT NOT NULL DEFAULT '',
	right_key TEXT NOT NULL DEFAULT '',
	instance_key TEXT NOT NULL DEFAULT '',
	fields_json TEXT NOT NULL DEFAULT '{}',
	schema_version_id INTEGER NOT NULL DEFAULT 0,
	valid_from_commit_id INTEGER NOT NULL,
	valid_to_commit_id INTEGER
);

CREATE TABLE IF NOT EXISTS write_lease (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	owner_id TEXT NOT NULL,
	expires_at TEXT NOT NULL
);
`
