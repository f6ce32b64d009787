package blobstore

import (
	"context"

	"github.com/hupe1980/aggcache/internal/cache"
	"github.com/hupe1980/aggcache/internal/resource"
)

// CachingStore wraps a Store and keeps recently read blobs in memory.
//
// Blobs are immutable per name: Put and Delete invalidate the cached copy.
type CachingStore struct {
	inner Store
	cache *cache.ShardedLRU[[]byte]
}

// NewCachingStore creates a CachingStore holding up to capacity bytes. If rc
// is not nil, cached bytes are charged to its memory budget.
func NewCachingStore(inner Store, capacity int64, rc *resource.Controller) *CachingStore {
	return &CachingStore{
		inner: inner,
		cache: cache.NewShardedLRU(capacity, func(b []byte) int64 { return int64(len(b)) }, rc),
	}
}

// Put writes through to the inner store.
func (s *CachingStore) Put(ctx context.Context, name string, data []byte) error {
	s.cache.Remove(name)
	return s.inner.Put(ctx, name, data)
}

// Get serves cached blobs and fills the cache on a miss. Callers must treat
// the returned slice as read-only.
func (s *CachingStore) Get(ctx context.Context, name string) ([]byte, error) {
	if b, ok := s.cache.Get(name); ok {
		return b, nil
	}
	b, err := s.inner.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	s.cache.Set(name, b)
	return b, nil
}

// Delete removes the blob from the cache and the inner store.
func (s *CachingStore) Delete(ctx context.Context, name string) error {
	s.cache.Remove(name)
	return s.inner.Delete(ctx, name)
}

// List is not cached.
func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

// Invalidate drops cached blobs whose name matches the predicate.
func (s *CachingStore) Invalidate(predicate func(name string) bool) int {
	return s.cache.Invalidate(predicate)
}

// Stats returns the read-through hit/miss counters.
func (s *CachingStore) Stats() (hits, misses int64) {
	return s.cache.Stats()
}
