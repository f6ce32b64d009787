// Package cache provides the segment cache: a store mapping segment headers to
// bodies, shared by the query planner, the loader and the rollup engine.
//
// Backends implement SegmentCache:
//
//   - MemoryCache keeps bodies in process memory.
//   - BlobCache serializes headers and bodies into a blobstore.Store (local
//     disk, S3, MinIO) so several processes can share segments.
//   - CompositeCache fans writes out to several backends and reads from the
//     first one that hits.
//
// Every backend raises an Event when an entry is created or deleted.
// Listeners run on a background goroutine, so delivery is asynchronous and
// at-least-once: a listener may observe duplicates or reordering and should
// re-fetch rather than assume freshness.
//
// Registry maps backend names to factories. The host populates it at startup
// and builds the configured backends with Registry.Build.
package cache
