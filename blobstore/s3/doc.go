// Package s3 provides Amazon S3 implementations of blobstore.Store.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket", s3.WithPrefix("aggcache/"))
//
// Store lists objects with ListObjectsV2. When several nodes publish
// segments and need a strongly consistent listing, IndexedStore records every
// blob name in a DynamoDB table and lists from the table instead:
//
//	indexed := s3.NewIndexedStore(store, dynamodb.NewFromConfig(cfg), "aggcache-index", "s3://my-bucket/aggcache")
//
// # Features
//
//   - Multipart uploads for large bodies
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
package s3
