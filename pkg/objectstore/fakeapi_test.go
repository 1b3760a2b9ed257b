// SPDX-License-Identifier: Apache-2.0

package objectstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// fakeAPI is an in-memory ObjectAPI double with S3-style conditional-write
// semantics (If-Match / If-None-Match via an incrementing ETag counter), so
// the backend's CAS protocol can be exercised without a live MinIO/S3
// endpoint.
type fakeAPI struct {
	mu      sync.Mutex
	objects map[string][]byte
	etags   map[string]string
	seq     int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{objects: map[string][]byte{}, etags: map[string]string{}}
}

func (f *fakeAPI) Get(ctx context.Context, key string) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.objects[key]
	if !ok {
		return nil, "", ErrNotFound
	}
	return append([]byte(nil), body...), f.etags[key], nil
}

func (f *fakeAPI) Put(ctx context.Context, key string, body []byte, ifMatchETag string, ifNoneMatch bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, exists := f.objects[key]
	if ifNoneMatch && exists {
		return "", ErrConditionFailed
	}
	if ifMatchETag != "" && f.etags[key] != ifMatchETag {
		return "", ErrConditionFailed
	}

	f.seq++
	etag := fmt.Sprintf("etag-%d", f.seq)
	f.objects[key] = append([]byte(nil), body...)
	f.etags[key] = etag
	return etag, nil
}

func (f *fakeAPI) List(ctx context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (f *fakeAPI) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	delete(f.etags, key)
	return nil
}

func newTestStore() *Store {
	return NewStore(newFakeAPI(), "test-bucket", "onto")
}
