// Package resource governs the shared resources of a segment cache node.
//
// A Controller manages three budgets:
//
//   - Memory: bytes of segment bodies held by in-process caches (fail-fast)
//   - Workers: concurrent body fetches and rollups issued by the manager
//   - IO: bytes per second moved to and from remote blob stores
//
// # Memory
//
// AcquireMemory is non-blocking and returns ErrMemoryLimitExceeded when the
// budget would be exceeded. The caller decides whether to evict, skip the put
// or fail:
//
//	rc := resource.NewController(resource.Config{MemoryLimitBytes: 1 << 30})
//	if err := rc.AcquireMemory(body.EstimatedBytes()); err != nil {
//	    return err
//	}
//
// # Workers
//
//	if err := rc.AcquireWorker(ctx); err != nil {
//	    return err
//	}
//	defer rc.ReleaseWorker()
//
// # IO
//
// AcquireIO waits on a token bucket. Requests larger than the bucket are
// split into bucket-sized waits, so large bodies are throttled rather than
// rejected.
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully; they become no-ops. This
// allows optional resource limiting without nil checks everywhere.
package resource
