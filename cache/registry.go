package cache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Factory builds a backend.
type Factory func(ctx context.Context, opts ...Option) (SegmentCache, error)

// Registry maps backend names to factories. "memory" is always registered.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry holding the built-in backends.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.factories["memory"] = func(_ context.Context, opts ...Option) (SegmentCache, error) {
		return NewMemoryCache(opts...), nil
	}
	return r
}

// Register adds a factory. Registering a name twice is an error.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" || f == nil {
		return errors.New("cache: register needs a name and a factory")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("cache: backend %q already registered", name)
	}
	r.factories[name] = f
	return nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Build constructs the named backends, in order. A single name yields that
// backend; several yield a CompositeCache reading in the given order.
func (r *Registry) Build(ctx context.Context, names []string, opts ...Option) (SegmentCache, error) {
	if len(names) == 0 {
		return nil, errors.New("cache: no backends configured")
	}

	r.mu.RLock()
	factories := make([]Factory, len(names))
	for i, name := range names {
		f, ok := r.factories[name]
		if !ok {
			r.mu.RUnlock()
			return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
		}
		factories[i] = f
	}
	r.mu.RUnlock()

	backends := make([]SegmentCache, 0, len(names))
	for i, f := range factories {
		b, err := f(ctx, opts...)
		if err != nil {
			for _, built := range backends {
				_ = built.Close()
			}
			return nil, fmt.Errorf("cache: build %q: %w", names[i], err)
		}
		backends = append(backends, b)
	}

	if len(backends) == 1 {
		return backends[0], nil
	}
	return NewCompositeCache(backends, opts...)
}
