package cache

import (
	"hash/maphash"
	"sync"

	"github.com/hupe1980/aggcache/internal/resource"
)

const numShards = 16

// ShardedLRU distributes entries across shards to reduce lock contention.
type ShardedLRU[V any] struct {
	shards [numShards]*LRU[V]
	seed   maphash.Seed
}

// NewShardedLRU creates a new sharded LRU cache.
// The capacity is divided evenly across all shards.
func NewShardedLRU[V any](capacity int64, sizeOf SizeFunc[V], rc *resource.Controller) *ShardedLRU[V] {
	shardCapacity := max(capacity/numShards, 1)

	s := &ShardedLRU[V]{seed: maphash.MakeSeed()}
	for i := range numShards {
		s.shards[i] = NewLRU(shardCapacity, sizeOf, rc)
	}
	return s
}

func (s *ShardedLRU[V]) shard(key string) *LRU[V] {
	return s.shards[maphash.String(s.seed, key)%numShards]
}

// Get returns a cached value.
func (s *ShardedLRU[V]) Get(key string) (V, bool) {
	return s.shard(key).Get(key)
}

// Set caches a value.
func (s *ShardedLRU[V]) Set(key string, v V) bool {
	return s.shard(key).Set(key, v)
}

// Remove drops key.
func (s *ShardedLRU[V]) Remove(key string) bool {
	return s.shard(key).Remove(key)
}

// Invalidate removes entries matching the predicate.
// This iterates all shards, which is expensive but rare.
func (s *ShardedLRU[V]) Invalidate(predicate func(key string) bool) int {
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := range numShards {
		wg.Add(1)
		go func(shard *LRU[V]) {
			defer wg.Done()
			n := shard.Invalidate(predicate)
			mu.Lock()
			total += n
			mu.Unlock()
		}(s.shards[i])
	}
	wg.Wait()
	return total
}

// Purge removes every entry.
func (s *ShardedLRU[V]) Purge() {
	for i := range numShards {
		s.shards[i].Purge()
	}
}

// Stats returns aggregated hit/miss statistics.
func (s *ShardedLRU[V]) Stats() (hits, misses int64) {
	for i := range numShards {
		h, m := s.shards[i].Stats()
		hits += h
		misses += m
	}
	return hits, misses
}

// Size returns the total size across all shards.
func (s *ShardedLRU[V]) Size() int64 {
	var total int64
	for i := range numShards {
		total += s.shards[i].Size()
	}
	return total
}

// Len returns the total number of entries.
func (s *ShardedLRU[V]) Len() int {
	var total int
	for i := range numShards {
		total += s.shards[i].Len()
	}
	return total
}
