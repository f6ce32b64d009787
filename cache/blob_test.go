package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hupe1980/aggcache/blobstore"
	"github.com/hupe1980/aggcache/codec"
	"github.com/hupe1980/aggcache/internal/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenCodec struct{ codec.GoJSON }

func (brokenCodec) Marshal(any) ([]byte, error) { return nil, errors.New("unsupported value") }

func TestBlobCache_Contract(t *testing.T) {
	contract(t, NewBlobCache(blobstore.NewMemoryStore(), WithLogger(testLogger())))
}

func TestBlobCache_ContractLocalStore(t *testing.T) {
	contract(t, NewBlobCache(blobstore.NewLocalStore(t.TempDir()), WithCompression(codec.CompressionZstd)))
}

func TestBlobCache_ContractReadCache(t *testing.T) {
	contract(t, NewBlobCache(blobstore.NewMemoryStore(), WithReadCache(1<<20)))
}

func TestBlobCache_Layout(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	c := NewBlobCache(store)
	defer c.Close()

	h := yearHeader(t, 1997)
	_, err := c.Put(ctx, h, yearBody(t, 1997))
	require.NoError(t, err)

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{bodyName(h.UniqueID()), headerName(h.UniqueID())}, names)
}

func TestBlobCache_SerializationFailureFailsPut(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	c := NewBlobCache(store, WithCodec(brokenCodec{}))
	defer c.Close()

	ok, err := c.Put(ctx, yearHeader(t, 1997), yearBody(t, 1997))
	require.ErrorIs(t, err, codec.ErrSerialization)
	assert.False(t, ok)
	assert.Zero(t, store.Len())
}

func TestBlobCache_CorruptBody(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	c := NewBlobCache(store)
	defer c.Close()

	h := yearHeader(t, 1997)
	_, err := c.Put(ctx, h, yearBody(t, 1997))
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, bodyName(h.UniqueID()), []byte("garbage")))

	_, err = c.Get(ctx, h)
	require.ErrorIs(t, err, codec.ErrSerialization)
}

func TestBlobCache_UndecodableHeaderIsSkipped(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	c := NewBlobCache(store)
	defer c.Close()

	_, err := c.Put(ctx, yearHeader(t, 1997), yearBody(t, 1997))
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, headerPrefix+"junk.hdr", []byte("{")))

	headers, err := c.Headers(ctx)
	require.NoError(t, err)
	assert.Len(t, headers, 1)
}

func TestBlobCache_PollRaisesRemoteEvents(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	writer := NewBlobCache(store)
	defer writer.Close()
	reader := NewBlobCache(store)
	defer reader.Close()

	rec := &recorder{}
	reader.AddListener(rec.listen)

	h := yearHeader(t, 1997)
	_, err := writer.Put(ctx, h, yearBody(t, 1997))
	require.NoError(t, err)

	require.NoError(t, reader.Poll(ctx))
	require.NoError(t, reader.Poll(ctx))
	assert.Eventually(t, func() bool { return rec.count(EntryCreated, h) == 1 }, time.Second, 5*time.Millisecond)

	_, err = writer.Remove(ctx, h)
	require.NoError(t, err)
	require.NoError(t, reader.Poll(ctx))
	assert.Eventually(t, func() bool { return rec.count(EntryDeleted, h) == 1 }, time.Second, 5*time.Millisecond)

	for _, e := range rec.snapshot() {
		assert.False(t, e.Local)
	}
}

func TestBlobCache_PollIgnoresLocalChanges(t *testing.T) {
	ctx := context.Background()
	c := NewBlobCache(blobstore.NewMemoryStore())
	defer c.Close()

	rec := &recorder{}
	c.AddListener(rec.listen)

	h := yearHeader(t, 1997)
	_, err := c.Put(ctx, h, yearBody(t, 1997))
	require.NoError(t, err)
	require.NoError(t, c.Poll(ctx))

	assert.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, rec.snapshot()[0].Local)
}

func TestBlobCache_BackgroundPoller(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	writer := NewBlobCache(store)
	defer writer.Close()
	reader := NewBlobCache(store, WithPollInterval(10*time.Millisecond))

	rec := &recorder{}
	reader.AddListener(rec.listen)

	h := yearHeader(t, 1997)
	_, err := writer.Put(ctx, h, yearBody(t, 1997))
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return rec.count(EntryCreated, h) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, reader.Close())
}

func TestBlobCache_ChargesIO(t *testing.T) {
	ctx := context.Background()
	rc := resource.NewController(resource.Config{})
	c := NewBlobCache(blobstore.NewMemoryStore(), WithResourceController(rc))
	defer c.Close()

	h := yearHeader(t, 1997)
	_, err := c.Put(ctx, h, yearBody(t, 1997))
	require.NoError(t, err)
	written := rc.Stats().IOBytes
	assert.Positive(t, written)

	_, err = c.Get(ctx, h)
	require.NoError(t, err)
	assert.Greater(t, rc.Stats().IOBytes, written)
}

func TestBlobCache_ReadCacheServesRepeatedGets(t *testing.T) {
	ctx := context.Background()
	c := NewBlobCache(blobstore.NewMemoryStore(), WithReadCache(1<<20))
	defer c.Close()

	h := yearHeader(t, 1997)
	_, err := c.Put(ctx, h, yearBody(t, 1997))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = c.Get(ctx, h)
		require.NoError(t, err)
	}
	hits, misses := c.ReadCacheStats()
	assert.Equal(t, int64(2), hits)
	assert.Equal(t, int64(1), misses)
}
