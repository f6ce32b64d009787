package cache

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/hupe1980/aggcache/internal/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestMemoryCache_Contract(t *testing.T) {
	contract(t, NewMemoryCache(WithLogger(testLogger())))
}

func TestMemoryCache_Capacity(t *testing.T) {
	ctx := context.Background()
	b := yearBody(t, 1997)

	rc := resource.NewController(resource.Config{MemoryLimitBytes: b.EstimatedBytes() + 1})
	c := NewMemoryCache(WithResourceController(rc))
	defer c.Close()

	ok, err := c.Put(ctx, yearHeader(t, 1997), b)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, b.EstimatedBytes(), rc.MemoryUsage())

	ok, err = c.Put(ctx, yearHeader(t, 1998), yearBody(t, 1998))
	require.ErrorIs(t, err, ErrCapacity)
	require.ErrorIs(t, err, resource.ErrMemoryLimitExceeded)
	assert.False(t, ok)

	_, err = c.Remove(ctx, yearHeader(t, 1997))
	require.NoError(t, err)
	assert.Zero(t, rc.MemoryUsage())

	ok, err = c.Put(ctx, yearHeader(t, 1998), yearBody(t, 1998))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCache_ReplaceReleasesPrevious(t *testing.T) {
	ctx := context.Background()
	rc := resource.NewController(resource.Config{})
	c := NewMemoryCache(WithResourceController(rc))

	h := yearHeader(t, 1997)
	b := yearBody(t, 1997)
	for i := 0; i < 3; i++ {
		_, err := c.Put(ctx, h, b)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, b.EstimatedBytes(), rc.MemoryUsage())

	require.NoError(t, c.Close())
	assert.Zero(t, rc.MemoryUsage())
	assert.Zero(t, c.Len())
}

func TestMemoryCache_ReplaceAtBudget(t *testing.T) {
	ctx := context.Background()
	h := yearHeader(t, 1997, 1998)
	small := yearBody(t, 1997)
	large := yearBody(t, 1997, 1998)
	require.Greater(t, large.EstimatedBytes(), small.EstimatedBytes())

	rc := resource.NewController(resource.Config{MemoryLimitBytes: large.EstimatedBytes()})
	c := NewMemoryCache(WithResourceController(rc))
	defer c.Close()

	_, err := c.Put(ctx, h, large)
	require.NoError(t, err)

	// The budget is full, but replacing the entry does not grow usage.
	ok, err := c.Put(ctx, h, yearBody(t, 1997, 1998))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, large.EstimatedBytes(), rc.MemoryUsage())

	ok, err = c.Put(ctx, h, small)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, small.EstimatedBytes(), rc.MemoryUsage())

	ok, err = c.Put(ctx, h, large)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, large.EstimatedBytes(), rc.MemoryUsage())
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCache_Concurrent(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(year int64) {
			defer wg.Done()
			h := yearHeader(t, year)
			b := yearBody(t, year)
			_, err := c.Put(ctx, h, b)
			assert.NoError(t, err)
			got, err := c.Get(ctx, h)
			assert.NoError(t, err)
			assert.Same(t, b, got)
		}(int64(1990 + i))
	}
	wg.Wait()

	headers, err := c.Headers(ctx)
	require.NoError(t, err)
	assert.Len(t, headers, 16)
	for i := 1; i < len(headers); i++ {
		assert.Less(t, headers[i-1].UniqueID(), headers[i].UniqueID())
	}
}
