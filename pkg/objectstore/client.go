// SPDX-License-Identifier: Apache-2.0

// Package objectstore implements the object-store backend (C6): commits,
// schema versions, and the write lease as objects under a bucket prefix,
// with HEAD advanced by compare-and-swap and a per-type coverage index for
// fast temporal reads.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/lexiupon/ontologia/pkg/ontoerrors"
)

// ErrNotFound is returned by ObjectAPI.Get when key does not exist.
var ErrNotFound = errors.New("objectstore: object not found")

// ObjectAPI is the minimal surface the backend needs from an S3-compatible
// store, narrowed from the teacher's S3Client so it can also be satisfied
// by an in-memory fake in tests without a running MinIO/localstack.
type ObjectAPI interface {
	// Get returns an object's body and its current ETag.
	Get(ctx context.Context, key string) (body []byte, etag string, err error)

	// Put uploads an object. If ifMatchETag is non-empty, the write is
	// conditional on the object's current ETag equaling it (CAS update).
	// If ifNoneMatch is true, the write is conditional on the object not
	// existing at all (CAS create). The two are mutually exclusive.
	// Returns the new ETag, or *ontoerrors.HeadMismatchError-compatible
	// ErrConditionFailed if the condition did not hold.
	Put(ctx context.Context, key string, body []byte, ifMatchETag string, ifNoneMatch bool) (etag string, err error)

	// List returns every key under prefix, sorted ascending.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes an object. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error
}

// ErrConditionFailed is returned by ObjectAPI.Put when a CAS precondition
// does not hold.
var ErrConditionFailed = errors.New("objectstore: conditional write failed")

// Config configures a bucket-backed store, mirroring the fields the
// teacher's adapter.ConnectionConfig carries for an S3-compatible
// endpoint (custom host/port for MinIO/localstack, path-style addressing,
// static or default credentials).
type Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string // host[:port], e.g. for MinIO/localstack; empty uses AWS
	PathStyle       bool
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// Store is the object-store backend handle, implementing commitlog.Log,
// catalog.Catalog, and lease.Coordinator over an ObjectAPI.
type Store struct {
	api    ObjectAPI
	bucket string
	prefix string

	pendingMu sync.Mutex
	pending   map[int64]*pendingWrite
}

// NewStore wraps an already-constructed ObjectAPI (production callers use
// NewS3Store; tests use an in-memory fake).
func NewStore(api ObjectAPI, bucket, prefix string) *Store {
	return &Store{api: api, bucket: bucket, prefix: strings.TrimSuffix(prefix, "/"), pending: map[int64]*pendingWrite{}}
}

// NewS3Store builds a Store backed by a real aws-sdk-go-v2 S3 client,
// grounded on the teacher's NewS3Client: static credentials when supplied,
// otherwise the default chain, with a custom endpoint and path-style
// addressing for MinIO/localstack compatibility.
func NewS3Store(ctx context.Context, cfg Config) (*Store, error) {
	var awsCfg aws.Config
	var err error

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(cfg.Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)),
		)
	} else {
		awsCfg, err = config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	}
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
	})

	return NewStore(&s3API{client: client, bucket: cfg.Bucket}, cfg.Bucket, cfg.Prefix), nil
}

func (s *Store) key(parts ...string) string {
	all := append([]string{s.prefix}, parts...)
	var nonEmpty []string
	for _, p := range all {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "/")
}

// s3API adapts an *s3.Client to ObjectAPI, grounded on the teacher's
// S3Client field shape and method style (one AWS call per method, errors
// wrapped with the operation name).
type s3API struct {
	client *s3.Client
	bucket string
}

func (a *s3API) Get(ctx context.Context, key string) ([]byte, string, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(a.bucket), Key: aws.String(key)})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, "", ErrNotFound
		}
		return nil, "", &ontoerrors.StorageBackendError{Operation: "get_object", Detail: key, Err: err}
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", err
	}
	etag := ""
	if out.ETag != nil {
		etag = strings.Trim(*out.ETag, `"`)
	}
	return body, etag, nil
}

func (a *s3API) Put(ctx context.Context, key string, body []byte, ifMatchETag string, ifNoneMatch bool) (string, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	}
	if ifNoneMatch {
		input.IfNoneMatch = aws.String("*")
	} else if ifMatchETag != "" {
		input.IfMatch = aws.String(ifMatchETag)
	}

	out, err := a.client.PutObject(ctx, input)
	if err != nil {
		if isPreconditionFailure(err) {
			return "", ErrConditionFailed
		}
		return "", &ontoerrors.StorageBackendError{Operation: "put_object", Detail: key, Err: err}
	}
	etag := ""
	if out.ETag != nil {
		etag = strings.Trim(*out.ETag, `"`)
	}
	return etag, nil
}

func (a *s3API) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var token *string
	for {
		out, err := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(a.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, &ontoerrors.StorageBackendError{Operation: "list_objects", Detail: prefix, Err: err}
		}
		for _, obj := range out.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		token = out.NextContinuationToken
	}
	sort.Strings(keys)
	return keys, nil
}

func (a *s3API) Delete(ctx context.Context, key string) error {
	_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(a.bucket), Key: aws.String(key)})
	if err != nil {
		return &ontoerrors.StorageBackendError{Operation: "delete_object", Detail: key, Err: err}
	}
	return nil
}

func isPreconditionFailure(err error) bool {
	var re *s3types.NoSuchKey
	if errors.As(err, &re) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "PreconditionFailed") || strings.Contains(msg, "412") ||
		strings.Contains(msg, "At least one of the pre-conditions you specified did not hold")
}
