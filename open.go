package aggcache

import (
	"context"
	"fmt"
	"slices"

	"github.com/hupe1980/aggcache/blobstore"
	minioblob "github.com/hupe1980/aggcache/blobstore/minio"
	s3blob "github.com/hupe1980/aggcache/blobstore/s3"
	"github.com/hupe1980/aggcache/cache"
	"github.com/hupe1980/aggcache/config"
	"github.com/hupe1980/aggcache/internal/resource"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// RegisterBackends registers the blob-backed backends cfg configures:
// "local", "s3" and "minio". Names already present in reg are kept.
func RegisterBackends(reg *cache.Registry, cfg *config.Config) error {
	registered := reg.Names()
	add := func(name string, f cache.Factory) error {
		if slices.Contains(registered, name) {
			return nil
		}
		return reg.Register(name, f)
	}

	if cfg.Local.Dir != "" {
		dir := cfg.Local.Dir
		if err := add("local", func(_ context.Context, opts ...cache.Option) (cache.SegmentCache, error) {
			return cache.NewBlobCache(blobstore.NewLocalStore(dir), opts...), nil
		}); err != nil {
			return err
		}
	}

	if cfg.S3.Bucket != "" {
		s3cfg := cfg.S3
		if err := add("s3", func(ctx context.Context, opts ...cache.Option) (cache.SegmentCache, error) {
			storeOpts := []s3blob.Option{s3blob.WithPrefix(s3cfg.Prefix), s3blob.WithRegion(s3cfg.Region)}
			if s3cfg.IndexTable != "" {
				store, err := s3blob.NewIndexed(ctx, s3cfg.Bucket, s3cfg.IndexTable, storeOpts...)
				if err != nil {
					return nil, err
				}
				return cache.NewBlobCache(store, opts...), nil
			}
			store, err := s3blob.New(ctx, s3cfg.Bucket, storeOpts...)
			if err != nil {
				return nil, err
			}
			return cache.NewBlobCache(store, opts...), nil
		}); err != nil {
			return err
		}
	}

	if cfg.MinIO.Endpoint != "" {
		mc := cfg.MinIO
		if err := add("minio", func(_ context.Context, opts ...cache.Option) (cache.SegmentCache, error) {
			client, err := minio.New(mc.Endpoint, &minio.Options{
				Creds:  credentials.NewStaticV4(mc.AccessKey, mc.SecretKey, ""),
				Secure: mc.Secure,
			})
			if err != nil {
				return nil, fmt.Errorf("minio client: %w", err)
			}
			return cache.NewBlobCache(minioblob.NewStore(client, mc.Bucket, mc.Prefix), opts...), nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// Open builds the backends cfg names from reg and returns a Manager over
// them. A nil reg uses cache.NewRegistry. optFns are applied after the
// settings derived from cfg.
func Open(ctx context.Context, cfg *config.Config, reg *cache.Registry, optFns ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if reg == nil {
		reg = cache.NewRegistry()
	}
	if err := RegisterBackends(reg, cfg); err != nil {
		return nil, err
	}

	level, _ := cfg.Log.SlogLevel()
	logger := NewTextLogger(level)
	if cfg.Log.Format == "json" {
		logger = NewJSONLogger(level)
	}
	rc := resource.NewController(cfg.ResourceConfig())

	backend, err := reg.Build(ctx, cfg.Backends,
		cache.WithLogger(logger.Logger),
		cache.WithResourceController(rc),
		cache.WithCodec(cfg.BlobCodec()),
		cache.WithCompression(cfg.BlobCompression()),
		cache.WithReadCache(cfg.Blob.ReadCacheBytes),
		cache.WithPollInterval(cfg.Blob.PollInterval),
	)
	if err != nil {
		return nil, err
	}

	opts := append([]Option{
		WithLogger(logger),
		WithThresholds(cfg.SegmentThresholds()),
		WithResourceController(rc),
	}, optFns...)

	m, err := New(ctx, backend, opts...)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return m, nil
}
