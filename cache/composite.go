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

	"github.com/hupe1980/aggcache/segment"
	"golang.org/x/sync/errgroup"
)

// CompositeCache combines several backends.
//
// Reads go to each backend in order and return the first hit. Writes and
// removes go to every backend concurrently and succeed if any backend
// succeeds. Events from every backend are forwarded to the composite's
// listeners, so a put that reaches two backends may be observed twice.
type CompositeCache struct {
	backends  []SegmentCache
	forwards  []ListenerID
	notifier  *notifier
	logger    *slog.Logger
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewCompositeCache creates a CompositeCache over backends. The composite
// owns the backends and closes them on Close.
func NewCompositeCache(backends []SegmentCache, opts ...Option) (*CompositeCache, error) {
	if len(backends) == 0 {
		return nil, errors.New("cache: composite needs at least one backend")
	}
	o := applyOptions(opts)

	c := &CompositeCache{
		backends: slices.Clone(backends),
		notifier: newNotifier(o.eventBuffer, o.logger),
		logger:   o.logger,
	}
	for _, b := range c.backends {
		c.forwards = append(c.forwards, b.AddListener(c.notifier.notify))
	}
	return c, nil
}

// Backends returns the composed backends in read order.
func (c *CompositeCache) Backends() []SegmentCache { return c.backends }

// Get returns the body from the first backend that has it. Backend errors
// are logged and the next backend is tried.
func (c *CompositeCache) Get(ctx context.Context, h *segment.Header) (*segment.Body, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	if h == nil {
		return nil, ErrInvalidEntry
	}

	var errs []error
	for i, b := range c.backends {
		body, err := b.Get(ctx, h)
		if err == nil {
			return body, nil
		}
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.Warn("cache backend get failed",
			slog.Int("backend", i), slog.String("header", h.UniqueID()), slog.Any("error", err))
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, ErrNotFound
}

// Put stores the segment in every backend. It succeeds if any backend
// stored it; the error is non-nil only when every backend failed.
func (c *CompositeCache) Put(ctx context.Context, h *segment.Header, b *segment.Body) (bool, error) {
	if err := c.check(ctx); err != nil {
		return false, err
	}
	if h == nil || b == nil {
		return false, ErrInvalidEntry
	}
	return c.fanOut(ctx, "put", h, func(ctx context.Context, backend SegmentCache) (bool, error) {
		return backend.Put(ctx, h, b)
	})
}

// Remove deletes the segment from every backend and reports whether any
// backend held it.
func (c *CompositeCache) Remove(ctx context.Context, h *segment.Header) (bool, error) {
	if err := c.check(ctx); err != nil {
		return false, err
	}
	if h == nil {
		return false, ErrInvalidEntry
	}
	return c.fanOut(ctx, "remove", h, func(ctx context.Context, backend SegmentCache) (bool, error) {
		return backend.Remove(ctx, h)
	})
}

func (c *CompositeCache) fanOut(ctx context.Context, op string, h *segment.Header,
	fn func(context.Context, SegmentCache) (bool, error)) (bool, error) {
	oks := make([]bool, len(c.backends))
	errs := make([]error, len(c.backends))

	var g errgroup.Group
	for i, backend := range c.backends {
		g.Go(func() error {
			oks[i], errs[i] = fn(ctx, backend)
			return nil
		})
	}
	_ = g.Wait()

	var failed []error
	for i, err := range errs {
		if err != nil {
			c.logger.Warn("cache backend "+op+" failed",
				slog.Int("backend", i), slog.String("header", h.UniqueID()), slog.Any("error", err))
			failed = append(failed, fmt.Errorf("backend %d: %w", i, err))
		}
	}

	ok := slices.Contains(oks, true)
	if len(failed) == len(c.backends) {
		return false, errors.Join(failed...)
	}
	return ok, nil
}

// Headers merges the headers of every backend, without duplicates, ordered
// by unique id. It fails only when every backend fails.
func (c *CompositeCache) Headers(ctx context.Context) ([]*segment.Header, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}

	lists := make([][]*segment.Header, len(c.backends))
	errs := make([]error, len(c.backends))

	var g errgroup.Group
	for i, backend := range c.backends {
		g.Go(func() error {
			lists[i], errs[i] = backend.Headers(ctx)
			return nil
		})
	}
	_ = g.Wait()

	var failed []error
	merged := make(map[string]*segment.Header)
	for i := range c.backends {
		if errs[i] != nil {
			c.logger.Warn("cache backend headers failed", slog.Int("backend", i), slog.Any("error", errs[i]))
			failed = append(failed, errs[i])
			continue
		}
		for _, h := range lists[i] {
			if _, ok := merged[h.UniqueID()]; !ok {
				merged[h.UniqueID()] = h
			}
		}
	}
	if len(failed) == len(c.backends) {
		return nil, errors.Join(failed...)
	}

	headers := make([]*segment.Header, 0, len(merged))
	for _, h := range merged {
		headers = append(headers, h)
	}
	slices.SortFunc(headers, func(a, b *segment.Header) int {
		return strings.Compare(a.UniqueID(), b.UniqueID())
	})
	return headers, nil
}

// AddListener registers l for events from every backend.
func (c *CompositeCache) AddListener(l Listener) ListenerID { return c.notifier.add(l) }

// RemoveListener unregisters a listener.
func (c *CompositeCache) RemoveListener(id ListenerID) { c.notifier.remove(id) }

// SupportsRichIndex reports whether every backend supports it.
func (c *CompositeCache) SupportsRichIndex() bool {
	for _, b := range c.backends {
		if !b.SupportsRichIndex() {
			return false
		}
	}
	return true
}

// Close closes every backend and stops event delivery.
func (c *CompositeCache) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)

		var errs []error
		for i, b := range c.backends {
			b.RemoveListener(c.forwards[i])
			if err := b.Close(); err != nil {
				errs = append(errs, fmt.Errorf("backend %d: %w", i, err))
			}
		}
		c.notifier.close()
		c.closeErr = errors.Join(errs...)
	})
	return c.closeErr
}

func (c *CompositeCache) check(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

var _ SegmentCache = (*CompositeCache)(nil)
