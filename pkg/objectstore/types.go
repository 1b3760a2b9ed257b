// SPDX-License-Identifier: Apache-2.0

package objectstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/lexiupon/ontologia/pkg/model"
	"github.com/lexiupon/ontologia/pkg/ontoerrors"
)

// typesCatalog is meta/types.json: the set of entity and relation type
// names ever registered, the bucket-wide index ListSchemas reads instead
// of listing every meta/schema_versions/<kind>/*.json object.
type typesCatalog struct {
	Entities  []string `json:"entities"`
	Relations []string `json:"relations"`
	// CatalogFormatVersion is stamped at init time, read back by
	// VersionCompatibility (SPEC_FULL §3's compatibility probe). Empty on a
	// store initialized before this field existed.
	CatalogFormatVersion string `json:"catalog_format_version,omitempty"`
}

func (s *Store) typesPath() string { return s.key("meta", "types.json") }

func (s *Store) readTypesCatalog(ctx context.Context) (typesCatalog, string, bool, error) {
	body, etag, err := s.api.Get(ctx, s.typesPath())
	if err != nil {
		if err == ErrNotFound {
			return typesCatalog{}, "", false, nil
		}
		return typesCatalog{}, "", false, err
	}
	var tc typesCatalog
	if err := json.Unmarshal(body, &tc); err != nil {
		return typesCatalog{}, "", false, fmt.Errorf("unmarshal types.json: %w", err)
	}
	return tc, etag, true, nil
}

// registerTypeName adds typeName to meta/types.json if absent, retrying
// on CAS contention.
func (s *Store) registerTypeName(ctx context.Context, kind model.TypeKind, typeName string) error {
	for attempt := 0; attempt <= maxCatalogCASRetries; attempt++ {
		tc, etag, existed, err := s.readTypesCatalog(ctx)
		if err != nil {
			return err
		}

		names := tc.Entities
		if kind == model.KindRelation {
			names = tc.Relations
		}
		if contains(names, typeName) {
			return nil
		}
		names = append(names, typeName)
		sort.Strings(names)
		if kind == model.KindRelation {
			tc.Relations = names
		} else {
			tc.Entities = names
		}

		body, err := json.Marshal(tc)
		if err != nil {
			return err
		}
		_, err = s.api.Put(ctx, s.typesPath(), body, etag, !existed)
		if err == nil {
			return nil
		}
		if err != ErrConditionFailed {
			return err
		}
		if attempt == maxCatalogCASRetries {
			return &ontoerrors.ConcurrentWriteError{Message: "types.json kept changing under us"}
		}
	}
	return &ontoerrors.ConcurrentWriteError{Message: "types.json kept changing under us"}
}

func (s *Store) ListSchemas(ctx context.Context, kind model.TypeKind) ([]string, error) {
	tc, _, _, err := s.readTypesCatalog(ctx)
	if err != nil {
		return nil, err
	}
	if kind == model.KindRelation {
		return tc.Relations, nil
	}
	return tc.Entities, nil
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
