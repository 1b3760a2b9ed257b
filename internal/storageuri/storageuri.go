// SPDX-License-Identifier: Apache-2.0

// Package storageuri parses the storage URIs §6 accepts, replacing the
// teacher's internal/connstr (a Postgres connection-string helper with no
// role here, since neither backend speaks the Postgres wire protocol).
package storageuri

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Backend names the storage backend a URI resolves to.
type Backend string

const (
	BackendSQLite Backend = "sqlite"
	BackendS3     Backend = "s3"
)

// SQLite holds the parsed form of a sqlite:// URI.
type SQLite struct {
	// Path is the filesystem path to the database file, or ":memory:" for
	// an in-memory database.
	Path string
}

// S3 holds the parsed form of an s3:// URI, with region and endpoint filled
// in from the environment per §6 ("Credentials, region, and endpoint are
// taken from the environment").
type S3 struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string
}

// Parsed is the result of Parse: exactly one of SQLite/S3 is non-nil,
// selected by Backend.
type Parsed struct {
	Backend Backend
	SQLite  *SQLite
	S3      *S3
}

// envPrefix is the environment-variable prefix §1.3 assigns this engine,
// in place of the teacher's PGROLL_.
const envPrefix = "ONTOLOGIA_"

// Parse recognizes the three forms §6 names: `sqlite:///<path>` (or
// `sqlite:///:memory:`), `s3://<bucket>/<prefix>`, and the legacy `<path>.db`
// alias accepted without a scheme at all.
func Parse(raw string) (Parsed, error) {
	if raw == "" {
		return Parsed{}, fmt.Errorf("storageuri: empty storage URI")
	}

	if strings.HasSuffix(raw, ".db") && !strings.Contains(raw, "://") {
		return Parsed{Backend: BackendSQLite, SQLite: &SQLite{Path: raw}}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Parsed{}, fmt.Errorf("storageuri: parse %q: %w", raw, err)
	}

	switch u.Scheme {
	case "sqlite":
		path := strings.TrimPrefix(u.Opaque, "//")
		if path == "" {
			path = strings.TrimPrefix(u.Path, "/")
			if u.Host != "" {
				path = u.Host + path
			}
		}
		if path == "" {
			return Parsed{}, fmt.Errorf("storageuri: sqlite URI %q has no path", raw)
		}
		return Parsed{Backend: BackendSQLite, SQLite: &SQLite{Path: path}}, nil

	case "s3":
		bucket := u.Host
		prefix := strings.TrimPrefix(u.Path, "/")
		if bucket == "" {
			return Parsed{}, fmt.Errorf("storageuri: s3 URI %q has no bucket", raw)
		}
		return Parsed{Backend: BackendS3, S3: &S3{
			Bucket:   bucket,
			Prefix:   prefix,
			Region:   os.Getenv(envPrefix + "S3_REGION"),
			Endpoint: os.Getenv(envPrefix + "S3_ENDPOINT_URL"),
		}}, nil

	default:
		return Parsed{}, fmt.Errorf("storageuri: unrecognized scheme %q in %q", u.Scheme, raw)
	}
}
