// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"time"

	"github.com/lexiupon/ontologia/pkg/ontolog"
)

// options holds engine.Open/engine.Init configuration, built by Option
// functions in the teacher's pkg/roll functional-option style
// (roll.WithLockTimeoutMs, roll.WithRole, ...).
type options struct {
	leaseTTL time.Duration
	ownerID  string
	logger   ontolog.Logger

	maxHeadMismatchRetries int
	lockTimeoutMs          int

	s3AccessKeyID     string
	s3SecretAccessKey string
	s3SessionToken    string
	s3PathStyle       bool

	binaryVersion string
}

func defaultOptions() options {
	return options{
		leaseTTL:               30 * time.Second,
		ownerID:                "ontologia-engine",
		logger:                 ontolog.Noop(),
		maxHeadMismatchRetries: 5,
		lockTimeoutMs:          5000,
		binaryVersion:          "development",
	}
}

// Option configures an Engine at Open or Init time.
type Option func(*options)

// WithLeaseTTL sets the write-coordination lease's time-to-live (§4.4).
func WithLeaseTTL(d time.Duration) Option {
	return func(o *options) { o.leaseTTL = d }
}

// WithOwnerID sets the identity this process acquires the write lease
// under, distinguishing it from other writers sharing the same store.
func WithOwnerID(id string) Option {
	return func(o *options) { o.ownerID = id }
}

// WithLogger sets the Logger diagnostics are reported through. The
// zero-value default is a no-op logger.
func WithLogger(l ontolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithLockTimeoutMs records a write-lease acquisition timeout. Open,
// Write and Migrate do not read it: write-lease acquisition waits up to
// the lease TTL (lease.DefaultAcquireOptions(leaseTTL)) before returning
// *ontoerrors.LockContentionError.
func WithLockTimeoutMs(ms int) Option {
	return func(o *options) { o.lockTimeoutMs = ms }
}

// WithMaxHeadMismatchRetries records an object-store HEAD CAS retry
// budget. Open, Write and Migrate do not read it: the object store retries
// a failed HEAD CAS a fixed maxHeadCASRetries (5) times
// (pkg/objectstore/commitlog.go) before surfacing
// *ontoerrors.HeadMismatchError.
func WithMaxHeadMismatchRetries(n int) Option {
	return func(o *options) { o.maxHeadMismatchRetries = n }
}

// WithS3Credentials supplies static S3 credentials, overriding the default
// AWS credential chain. Region and endpoint are always taken from the
// environment per §6, not from an Option, since they describe the target
// store rather than per-process behavior.
func WithS3Credentials(accessKeyID, secretAccessKey, sessionToken string) Option {
	return func(o *options) {
		o.s3AccessKeyID = accessKeyID
		o.s3SecretAccessKey = secretAccessKey
		o.s3SessionToken = sessionToken
	}
}

// WithS3PathStyle forces path-style bucket addressing, required by most
// S3-compatible endpoints (MinIO, localstack) that don't support virtual-
// hosted-style addressing.
func WithS3PathStyle(pathStyle bool) Option {
	return func(o *options) { o.s3PathStyle = pathStyle }
}

// WithBinaryVersion sets the running binary's own semantic version, compared
// against a store's stamped catalog_format_version by
// Engine.VersionCompatibility. Defaults to "development", which always
// short-circuits the comparison to VersionCompatCheckSkipped, mirroring the
// teacher's pgroll development-build short-circuit.
func WithBinaryVersion(version string) Option {
	return func(o *options) { o.binaryVersion = version }
}
