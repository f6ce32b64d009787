package cache

import (
	"context"
	"errors"

	"github.com/hupe1980/aggcache/segment"
)

var (
	// ErrNotFound is returned by Get when the cache holds no body for a header.
	ErrNotFound = errors.New("cache: segment not found")

	// ErrCapacity is returned by Put when the memory budget is exhausted.
	ErrCapacity = errors.New("cache: capacity exhausted")

	// ErrClosed is returned by operations on a closed cache.
	ErrClosed = errors.New("cache: closed")

	// ErrInvalidEntry is returned by Put for a nil header or body.
	ErrInvalidEntry = errors.New("cache: invalid entry")

	// ErrUnknownBackend is returned by Registry.Build for an unregistered name.
	ErrUnknownBackend = errors.New("cache: unknown backend")
)

// SegmentCache stores segment bodies keyed by header.
//
// Implementations are safe for concurrent use. Bodies are immutable once
// published; a body returned by Get may be shared with other callers.
type SegmentCache interface {
	// Get returns the body stored for h, or ErrNotFound.
	Get(ctx context.Context, h *segment.Header) (*segment.Body, error)

	// Put stores b under h and raises EntryCreated. It reports whether the
	// entry was stored.
	Put(ctx context.Context, h *segment.Header, b *segment.Body) (bool, error)

	// Remove deletes the entry for h and raises EntryDeleted. It reports
	// whether an entry existed.
	Remove(ctx context.Context, h *segment.Header) (bool, error)

	// Headers enumerates the stored headers.
	Headers(ctx context.Context) ([]*segment.Header, error)

	// AddListener registers l and returns a handle for RemoveListener.
	AddListener(l Listener) ListenerID

	// RemoveListener unregisters a listener. Unknown ids are ignored.
	RemoveListener(id ListenerID)

	// SupportsRichIndex reports whether Headers enumerates every entry, so a
	// header index can be seeded from it.
	SupportsRichIndex() bool

	// Close stops background work and event delivery.
	Close() error
}

func uniqueIDs(headers []*segment.Header) map[string]*segment.Header {
	m := make(map[string]*segment.Header, len(headers))
	for _, h := range headers {
		m[h.UniqueID()] = h
	}
	return m
}
