package service

import (
	"context"

	"github.com/gofhir/sdcforms/cache"
	"github.com/gofhir/sdcforms/canonical"
	"github.com/gofhir/sdcforms/model"
)

// cacheKey identifies one canonical lookup.
type cacheKey struct {
	kind string
	ref  string
}

// CachedStore wraps a Store with an LRU cache for versioned canonical
// resolutions. Versioned canonicals identify immutable content, so their
// resolutions never go stale. Unversioned lookups resolve to the latest
// active resource and always go to the underlying store.
type CachedStore struct {
	store Store
	cache *cache.Cache[cacheKey, *model.Resource]
}

// NewCachedStore wraps a store with a resolution cache of the given
// capacity.
func NewCachedStore(store Store, capacity int) *CachedStore {
	return &CachedStore{
		store: store,
		cache: cache.New[cacheKey, *model.Resource](capacity),
	}
}

// ResolveCanonical implements CanonicalResolver.
func (s *CachedStore) ResolveCanonical(ctx context.Context, kind, ref string) (*model.Resource, error) {
	if !canonical.Parse(ref).Versioned() {
		return s.store.ResolveCanonical(ctx, kind, ref)
	}

	key := cacheKey{kind: kind, ref: ref}
	if res, ok := s.cache.Get(key); ok {
		return res, nil
	}

	res, err := s.store.ResolveCanonical(ctx, kind, ref)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, res)
	return res, nil
}

// GetResource implements ResourceGetter. Reads by id are not cached;
// resources are mutable under their id.
func (s *CachedStore) GetResource(ctx context.Context, kind, id string) (*model.Resource, error) {
	return s.store.GetResource(ctx, kind, id)
}

// Stats returns the resolution cache counters.
func (s *CachedStore) Stats() cache.Stats {
	return s.cache.Stats()
}

var _ Store = (*CachedStore)(nil)
