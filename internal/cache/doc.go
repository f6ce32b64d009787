// Package cache provides size-bounded LRU caches keyed by string.
//
// blobstore.CachingStore, the read cache of a BlobCache, keeps recently read
// blobs in a ShardedLRU so repeated lookups of hot segments do not go back to
// the remote store.
//
// Key features:
//   - Capacity in bytes, computed by a caller-supplied size function
//   - Per-shard mutex for minimal contention
//   - Integrated with resource.Controller for memory limits
package cache
