package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/hupe1980/aggcache/internal/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func byteSize(b []byte) int64 { return int64(len(b)) }

func TestLRU_Eviction(t *testing.T) {
	c := NewLRU(30, byteSize, nil)

	require.True(t, c.Set("a", make([]byte, 10)))
	require.True(t, c.Set("b", make([]byte, 10)))
	require.True(t, c.Set("c", make([]byte, 10)))

	// Touch a so b becomes the eviction candidate.
	_, ok := c.Get("a")
	require.True(t, ok)

	require.True(t, c.Set("d", make([]byte, 10)))

	_, ok = c.Get("b")
	assert.False(t, ok)
	for _, k := range []string{"a", "c", "d"} {
		_, ok := c.Get(k)
		assert.True(t, ok, k)
	}
	assert.Equal(t, int64(30), c.Size())
	assert.Equal(t, 3, c.Len())

	hits, misses := c.Stats()
	assert.Equal(t, int64(4), hits)
	assert.Equal(t, int64(1), misses)
}

func TestLRU_EdgeCases(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 100})
	c := NewLRU(50, byteSize, rc)

	// Larger than capacity.
	assert.False(t, c.Set("k", make([]byte, 60)))
	_, ok := c.Get("k")
	assert.False(t, ok)

	// Replacing an entry re-accounts its size.
	c.Set("k", make([]byte, 10))
	c.Set("k", make([]byte, 20))
	assert.Equal(t, int64(20), c.Size())
	assert.Equal(t, int64(20), rc.MemoryUsage())

	c.Set("k", make([]byte, 5))
	assert.Equal(t, int64(5), c.Size())
	assert.Equal(t, int64(5), rc.MemoryUsage())

	assert.True(t, c.Remove("k"))
	assert.False(t, c.Remove("k"))
	assert.Equal(t, int64(0), rc.MemoryUsage())
}

func TestLRU_ControllerDenies(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 10})
	c := NewLRU(50, byteSize, rc)

	require.True(t, c.Set("a", make([]byte, 8)))
	assert.False(t, c.Set("b", make([]byte, 8)))
	assert.Equal(t, 1, c.Len())
}

func TestLRU_Invalidate(t *testing.T) {
	c := NewLRU(100, byteSize, nil)
	for i := range 5 {
		c.Set(fmt.Sprintf("k%d", i), []byte{byte(i)})
	}

	n := c.Invalidate(func(k string) bool { return k == "k1" || k == "k3" })

	assert.Equal(t, 2, n)
	assert.Equal(t, 3, c.Len())

	c.Purge()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.Size())
}

func TestShardedLRU(t *testing.T) {
	c := NewShardedLRU(16*1024, byteSize, nil)

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				key := fmt.Sprintf("g%d-%d", g, i)
				c.Set(key, []byte(key))
				c.Get(key)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 400, c.Len())
	v, ok := c.Get("g3-7")
	require.True(t, ok)
	assert.Equal(t, "g3-7", string(v))

	assert.Equal(t, 50, c.Invalidate(func(k string) bool { return k[:3] == "g0-" }))
	assert.Equal(t, 350, c.Len())

	assert.True(t, c.Remove("g1-1"))
	c.Purge()
	assert.Equal(t, int64(0), c.Size())
}
