package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/aggcache/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Memory(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{"memory"}, r.Names())

	c, err := r.Build(context.Background(), []string{"memory"})
	require.NoError(t, err)
	defer c.Close()
	assert.IsType(t, &MemoryCache{}, c)
}

func TestRegistry_Composite(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("blob", func(_ context.Context, opts ...Option) (SegmentCache, error) {
		return NewBlobCache(blobstore.NewMemoryStore(), opts...), nil
	}))

	c, err := r.Build(context.Background(), []string{"memory", "blob"}, WithLogger(testLogger()))
	require.NoError(t, err)
	defer c.Close()

	composite, ok := c.(*CompositeCache)
	require.True(t, ok)
	require.Len(t, composite.Backends(), 2)
	assert.IsType(t, &MemoryCache{}, composite.Backends()[0])
	assert.IsType(t, &BlobCache{}, composite.Backends()[1])
}

func TestRegistry_Errors(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	require.Error(t, r.Register("memory", func(context.Context, ...Option) (SegmentCache, error) { return nil, nil }))
	require.Error(t, r.Register("", nil))

	_, err := r.Build(ctx, nil)
	require.Error(t, err)

	_, err = r.Build(ctx, []string{"redis"})
	require.ErrorIs(t, err, ErrUnknownBackend)

	boom := errors.New("boom")
	require.NoError(t, r.Register("broken", func(context.Context, ...Option) (SegmentCache, error) { return nil, boom }))
	_, err = r.Build(ctx, []string{"memory", "broken"})
	require.ErrorIs(t, err, boom)
}
