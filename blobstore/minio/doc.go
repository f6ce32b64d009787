// Package minio stores cache blobs in a bucket of MinIO or another
// S3-compatible server (Ceph, Garage, SeaweedFS) through minio-go, without
// the AWS SDK.
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds: credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	store := minioblob.NewStore(client, "olap", "aggcache")
//	segments := cache.NewBlobCache(store, cache.WithPollInterval(30*time.Second))
//
// Every blob lives under the prefix, so several caches can share a bucket.
package minio
