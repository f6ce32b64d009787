package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/aggcache/blobstore"
	"github.com/hupe1980/aggcache/codec"
	"github.com/hupe1980/aggcache/internal/resource"
	"github.com/hupe1980/aggcache/segment"
	"golang.org/x/sync/errgroup"
)

const (
	headerPrefix = "headers/"
	bodyPrefix   = "bodies/"
)

func headerName(id string) string { return headerPrefix + id + ".hdr" }
func bodyName(id string) string   { return bodyPrefix + id + ".body" }

// BlobCache stores segments in a blobstore.Store.
//
// A segment occupies two blobs: its body and its header. Put writes the body
// first and the header last, and Remove deletes in the opposite order, so a
// listed header always has a readable body.
type BlobCache struct {
	store       blobstore.Store
	reads       *blobstore.CachingStore // nil without a read cache
	codec       codec.Codec
	compression codec.Compression
	rc          *resource.Controller
	notifier    *notifier
	logger      *slog.Logger

	// known is the header set last observed by Poll or written locally.
	mu    sync.Mutex
	known map[string]*segment.Header

	closed atomic.Bool
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewBlobCache creates a BlobCache over store.
func NewBlobCache(store blobstore.Store, opts ...Option) *BlobCache {
	o := applyOptions(opts)

	c := &BlobCache{
		store:       store,
		codec:       o.codec,
		compression: o.compression,
		rc:          o.controller,
		notifier:    newNotifier(o.eventBuffer, o.logger),
		logger:      o.logger,
		known:       make(map[string]*segment.Header),
		stop:        make(chan struct{}),
	}
	if o.readCacheBytes > 0 {
		c.reads = blobstore.NewCachingStore(store, o.readCacheBytes, o.controller)
		c.store = c.reads
	}
	if o.pollInterval > 0 {
		c.wg.Add(1)
		go c.pollLoop(o.pollInterval)
	}
	return c
}

// Get reads and decodes the body stored for h.
func (c *BlobCache) Get(ctx context.Context, h *segment.Header) (*segment.Body, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	if h == nil {
		return nil, ErrInvalidEntry
	}
	data, err := c.store.Get(ctx, bodyName(h.UniqueID()))
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("cache: get %s: %w", h.UniqueID(), err)
	}
	if err := c.rc.AcquireIO(ctx, len(data)); err != nil {
		return nil, err
	}
	b, err := codec.DecodeBody(data)
	if err != nil {
		return nil, fmt.Errorf("cache: get %s: %w", h.UniqueID(), err)
	}
	if len(b.Axes()) != len(h.Columns()) {
		return nil, fmt.Errorf("cache: get %s: %w: body has %d axes, header %d columns",
			h.UniqueID(), codec.ErrSerialization, len(b.Axes()), len(h.Columns()))
	}
	return b, nil
}

// Put encodes and writes the segment. Encoding failures fail the put.
func (c *BlobCache) Put(ctx context.Context, h *segment.Header, b *segment.Body) (bool, error) {
	if err := c.check(ctx); err != nil {
		return false, err
	}
	if h == nil || b == nil {
		return false, ErrInvalidEntry
	}

	hdr, err := codec.EncodeHeader(c.codec, h)
	if err != nil {
		return false, err
	}
	body, err := codec.EncodeBody(b, c.compression)
	if err != nil {
		return false, err
	}
	if err := c.rc.AcquireIO(ctx, len(hdr)+len(body)); err != nil {
		return false, err
	}

	id := h.UniqueID()
	if err := c.store.Put(ctx, bodyName(id), body); err != nil {
		return false, fmt.Errorf("cache: put %s: %w", id, err)
	}
	if err := c.store.Put(ctx, headerName(id), hdr); err != nil {
		if derr := c.store.Delete(context.WithoutCancel(ctx), bodyName(id)); derr != nil {
			c.logger.Warn("orphaned segment body", slog.String("header", id), slog.Any("error", derr))
		}
		return false, fmt.Errorf("cache: put %s: %w", id, err)
	}

	c.mu.Lock()
	c.known[id] = h
	c.mu.Unlock()

	c.logger.Debug("segment published", slog.String("header", id),
		slog.Int("header_bytes", len(hdr)), slog.Int("body_bytes", len(body)))
	c.notifier.notify(Event{Type: EntryCreated, Header: h, Local: true})
	return true, nil
}

// Remove deletes the header, then the body.
func (c *BlobCache) Remove(ctx context.Context, h *segment.Header) (bool, error) {
	if err := c.check(ctx); err != nil {
		return false, err
	}
	if h == nil {
		return false, ErrInvalidEntry
	}
	id := h.UniqueID()

	existed := true
	if _, err := c.store.Get(ctx, headerName(id)); err != nil {
		if !errors.Is(err, blobstore.ErrNotFound) {
			return false, fmt.Errorf("cache: remove %s: %w", id, err)
		}
		existed = false
	}
	if err := c.store.Delete(ctx, headerName(id)); err != nil {
		return false, fmt.Errorf("cache: remove %s: %w", id, err)
	}
	if err := c.store.Delete(ctx, bodyName(id)); err != nil {
		return false, fmt.Errorf("cache: remove %s: %w", id, err)
	}

	c.mu.Lock()
	delete(c.known, id)
	c.mu.Unlock()

	if existed {
		c.notifier.notify(Event{Type: EntryDeleted, Header: h, Local: true})
	}
	return existed, nil
}

// Headers lists and decodes every stored header. Headers that fail to decode
// are logged and skipped.
func (c *BlobCache) Headers(ctx context.Context) ([]*segment.Header, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	names, err := c.store.List(ctx, headerPrefix)
	if err != nil {
		return nil, fmt.Errorf("cache: list headers: %w", err)
	}

	headers := make([]*segment.Header, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(c.rc.MaxWorkers(), 4))
	for i, name := range names {
		g.Go(func() error {
			data, err := c.store.Get(gctx, name)
			if errors.Is(err, blobstore.ErrNotFound) {
				return nil // removed since listing
			}
			if err != nil {
				return fmt.Errorf("cache: read %s: %w", name, err)
			}
			h, err := codec.DecodeHeader(c.codec, data)
			if err != nil {
				c.logger.Warn("skipping undecodable header", slog.String("blob", name), slog.Any("error", err))
				return nil
			}
			headers[i] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return slices.DeleteFunc(headers, func(h *segment.Header) bool { return h == nil }), nil
}

// Poll lists the store and raises remote events for headers created or
// deleted since the previous poll. Changes made through this cache are not
// reported again.
func (c *BlobCache) Poll(ctx context.Context) error {
	headers, err := c.Headers(ctx)
	if err != nil {
		return err
	}
	current := uniqueIDs(headers)

	c.mu.Lock()
	var events []Event
	for id, h := range current {
		if _, ok := c.known[id]; !ok {
			events = append(events, Event{Type: EntryCreated, Header: h})
		}
	}
	for id, h := range c.known {
		if _, ok := current[id]; !ok {
			events = append(events, Event{Type: EntryDeleted, Header: h})
		}
	}
	c.known = current
	c.mu.Unlock()

	slices.SortFunc(events, func(a, b Event) int {
		return strings.Compare(a.Header.UniqueID(), b.Header.UniqueID())
	})
	for _, e := range events {
		c.notifier.notify(e)
	}
	if len(events) > 0 {
		c.logger.Debug("remote segment changes", slog.Int("events", len(events)))
	}
	return nil
}

func (c *BlobCache) pollLoop(interval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-c.stop
		cancel()
	}()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if err := c.Poll(ctx); err != nil && ctx.Err() == nil && !c.closed.Load() {
				c.logger.Warn("segment cache poll failed", slog.Any("error", err))
			}
		}
	}
}

// ReadCacheStats returns the read cache's hit and miss counters.
func (c *BlobCache) ReadCacheStats() (hits, misses int64) {
	if c.reads == nil {
		return 0, 0
	}
	return c.reads.Stats()
}

// AddListener registers l.
func (c *BlobCache) AddListener(l Listener) ListenerID { return c.notifier.add(l) }

// RemoveListener unregisters a listener.
func (c *BlobCache) RemoveListener(id ListenerID) { c.notifier.remove(id) }

// SupportsRichIndex returns true: the store's listing covers every entry.
func (c *BlobCache) SupportsRichIndex() bool { return true }

// Close stops polling and event delivery. The store is left open.
func (c *BlobCache) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(c.stop)
	c.wg.Wait()
	c.notifier.close()
	return nil
}

func (c *BlobCache) check(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

var _ SegmentCache = (*BlobCache)(nil)
