package cache

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/aggcache/internal/resource"
	"github.com/hupe1980/aggcache/segment"
)

type memoryEntry struct {
	header *segment.Header
	body   *segment.Body
	size   int64
}

// MemoryCache is an in-process SegmentCache.
type MemoryCache struct {
	entries  sync.Map   // unique id -> *memoryEntry
	mu       sync.Mutex // serializes writers so memory accounting stays exact
	count    atomic.Int64
	rc       *resource.Controller
	notifier *notifier
	logger   *slog.Logger
	closed   atomic.Bool
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache(opts ...Option) *MemoryCache {
	o := applyOptions(opts)
	return &MemoryCache{
		rc:       o.controller,
		notifier: newNotifier(o.eventBuffer, o.logger),
		logger:   o.logger,
	}
}

// Get returns the body stored for h.
func (c *MemoryCache) Get(ctx context.Context, h *segment.Header) (*segment.Body, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	if h == nil {
		return nil, ErrInvalidEntry
	}
	v, ok := c.entries.Load(h.UniqueID())
	if !ok {
		return nil, ErrNotFound
	}
	return v.(*memoryEntry).body, nil
}

// Put stores b under h, replacing any previous body.
func (c *MemoryCache) Put(ctx context.Context, h *segment.Header, b *segment.Body) (bool, error) {
	if err := c.check(ctx); err != nil {
		return false, err
	}
	if h == nil || b == nil {
		return false, ErrInvalidEntry
	}

	e := &memoryEntry{header: h, body: b, size: b.EstimatedBytes()}

	// A replacement is charged only for the bytes it adds.
	c.mu.Lock()
	var prevSize int64
	prev, loaded := c.entries.Load(h.UniqueID())
	if loaded {
		prevSize = prev.(*memoryEntry).size
	}
	if err := c.rc.AcquireMemory(e.size - prevSize); err != nil {
		c.mu.Unlock()
		return false, fmt.Errorf("%w: %s needs %d bytes: %w", ErrCapacity, h.UniqueID(), e.size-prevSize, err)
	}
	c.rc.ReleaseMemory(prevSize - e.size)
	c.entries.Store(h.UniqueID(), e)
	if !loaded {
		c.count.Add(1)
	}
	c.mu.Unlock()

	c.logger.Debug("segment cached", slog.String("header", h.UniqueID()), slog.Int64("bytes", e.size))
	c.notifier.notify(Event{Type: EntryCreated, Header: h, Local: true})
	return true, nil
}

// Remove deletes the entry for h.
func (c *MemoryCache) Remove(ctx context.Context, h *segment.Header) (bool, error) {
	if err := c.check(ctx); err != nil {
		return false, err
	}
	if h == nil {
		return false, ErrInvalidEntry
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	v, loaded := c.entries.LoadAndDelete(h.UniqueID())
	if !loaded {
		return false, nil
	}
	e := v.(*memoryEntry)
	c.rc.ReleaseMemory(e.size)
	c.count.Add(-1)

	c.notifier.notify(Event{Type: EntryDeleted, Header: e.header, Local: true})
	return true, nil
}

// Headers returns the stored headers ordered by unique id.
func (c *MemoryCache) Headers(ctx context.Context) ([]*segment.Header, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	headers := make([]*segment.Header, 0, c.count.Load())
	c.entries.Range(func(_, v any) bool {
		headers = append(headers, v.(*memoryEntry).header)
		return true
	})
	slices.SortFunc(headers, func(a, b *segment.Header) int {
		return strings.Compare(a.UniqueID(), b.UniqueID())
	})
	return headers, nil
}

// Len returns the number of entries.
func (c *MemoryCache) Len() int { return int(c.count.Load()) }

// AddListener registers l.
func (c *MemoryCache) AddListener(l Listener) ListenerID { return c.notifier.add(l) }

// RemoveListener unregisters a listener.
func (c *MemoryCache) RemoveListener(id ListenerID) { c.notifier.remove(id) }

// SupportsRichIndex returns true.
func (c *MemoryCache) SupportsRichIndex() bool { return true }

// Close releases every entry's memory and stops event delivery.
func (c *MemoryCache) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.mu.Lock()
	c.entries.Range(func(k, _ any) bool {
		if v, loaded := c.entries.LoadAndDelete(k); loaded {
			c.rc.ReleaseMemory(v.(*memoryEntry).size)
			c.count.Add(-1)
		}
		return true
	})
	c.mu.Unlock()
	c.notifier.close()
	return nil
}

func (c *MemoryCache) check(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

var _ SegmentCache = (*MemoryCache)(nil)
