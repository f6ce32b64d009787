// Package blobstore provides the byte-blob storage used by remote segment
// cache backends.
//
// Store is a flat namespace of immutable blobs. Implementations must be safe
// for concurrent use.
//
// # Built-in Implementations
//
//   - MemoryStore: in-process map, for tests and single-node setups
//   - LocalStore: a directory on the local file system (atomic write-rename)
//   - CachingStore: read-through LRU in front of another Store
//   - s3.Store / s3.IndexedStore: Amazon S3, optionally with a DynamoDB index
//   - minio.Store: MinIO and other S3-compatible services
//
// # Custom Implementations
//
//	type Store interface {
//	    Put(ctx, name, data) error
//	    Get(ctx, name) ([]byte, error)
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
package blobstore
