package aggcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/aggcache/cache"
	"github.com/hupe1980/aggcache/internal/resource"
	"github.com/hupe1980/aggcache/loader"
	"github.com/hupe1980/aggcache/model"
	"github.com/hupe1980/aggcache/rollup"
	"github.com/hupe1980/aggcache/segment"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Status is the outcome of an aggregation request.
type Status uint8

const (
	// Miss means the cache cannot answer; the caller must load the segment.
	Miss Status = iota
	// Hit means the requested segment was cached.
	Hit
	// RolledUp means the segment was derived from cached finer segments.
	RolledUp
)

func (s Status) String() string {
	switch s {
	case Hit:
		return "hit"
	case RolledUp:
		return "rolledup"
	default:
		return "miss"
	}
}

// Request asks for the cells of one segment.
type Request struct {
	// Header identifies the requested segment.
	Header *segment.Header
	// Aggregator names the measure's aggregator ("sum", "count", "min",
	// "max", "distinct-count"). Empty means "sum".
	Aggregator string
	// Datatype is the measure's cell datatype.
	Datatype model.Datatype
	// Cardinalities gives the number of distinct values of columns, by
	// expression. A column the request does not constrain can be summarized
	// away from segments that enumerate that many of its values.
	Cardinalities map[string]int
}

// Result answers a Request.
type Result struct {
	Status Status
	// Header is the segment's header. For RolledUp it may admit more values
	// than requested.
	Header *segment.Header
	Body   *segment.Body
	// RollupErr is the reason a possible rollup was abandoned, if any.
	RollupErr error
}

// Manager answers aggregation requests from a segment cache. It keeps an
// Index of the cache's headers current from cache events, derives
// segments by rollup, and publishes loaded and rolled-up segments.
//
// Manager is safe for concurrent use.
type Manager struct {
	backend  cache.SegmentCache
	index    *Index
	listener cache.ListenerID

	thresholds     segment.Thresholds
	rc             *resource.Controller
	logger         *Logger
	metrics        MetricsCollector
	coverageBudget int

	loads     singleflight.Group
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New creates a Manager over backend. When the backend enumerates its
// entries, the index is seeded from them; afterwards it follows the
// backend's events.
func New(ctx context.Context, backend cache.SegmentCache, optFns ...Option) (*Manager, error) {
	if backend == nil {
		return nil, errors.New("aggcache: nil cache backend")
	}
	o := applyOptions(optFns)
	if err := o.thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("aggcache: %w", err)
	}

	m := &Manager{
		backend:        backend,
		index:          NewIndex(),
		thresholds:     o.thresholds,
		rc:             o.controller,
		logger:         o.logger,
		metrics:        o.metricsCollector,
		coverageBudget: o.coverageBudget,
	}
	m.listener = backend.AddListener(m.onEvent)

	if backend.SupportsRichIndex() {
		headers, err := backend.Headers(ctx)
		if err != nil {
			backend.RemoveListener(m.listener)
			return nil, fmt.Errorf("aggcache: list cached headers: %w", err)
		}
		for _, h := range headers {
			m.index.Add(h)
		}
		m.logger.InfoContext(ctx, "segment index seeded", "headers", len(headers))
	}
	return m, nil
}

func (m *Manager) onEvent(e cache.Event) {
	switch e.Type {
	case cache.EntryCreated:
		m.index.Add(e.Header)
	case cache.EntryDeleted:
		m.index.Remove(e.Header)
	}
	m.metrics.RecordCacheEvent(e.Type.String(), e.Local)
}

// Index returns the manager's header index.
func (m *Manager) Index() *Index { return m.index }

// Backend returns the cache backend.
func (m *Manager) Backend() cache.SegmentCache { return m.backend }

// RequestAggregation answers req from the cache: the exact segment if it is
// cached, else a rollup of cached finer segments. Backend failures and
// rollup failures yield a Miss so the caller recomputes; only cancellation
// is returned as an error.
func (m *Manager) RequestAggregation(ctx context.Context, req Request) (Result, error) {
	if err := m.check(ctx); err != nil {
		return Result{}, err
	}
	if req.Header == nil {
		return Result{}, fmt.Errorf("%w: nil header", ErrInvalidRequest)
	}
	agg, err := rollup.AggregatorByName(aggregatorName(req.Aggregator))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	start := time.Now()
	res, err := m.requestAggregation(ctx, req, agg)
	if err != nil {
		return Result{}, err
	}
	m.metrics.RecordRequest(res.Status.String(), time.Since(start), res.RollupErr)
	m.logger.LogRequest(ctx, req.Header.UniqueID(), res.Status, res.RollupErr)
	return res, nil
}

func (m *Manager) requestAggregation(ctx context.Context, req Request, agg rollup.Aggregator) (Result, error) {
	h := req.Header

	if _, indexed := m.index.FindExact(h); indexed || !m.backend.SupportsRichIndex() {
		body, err := m.backend.Get(ctx, h)
		switch {
		case err == nil:
			return Result{Status: Hit, Header: h, Body: body}, nil
		case ctx.Err() != nil:
			return Result{}, ctx.Err()
		case errors.Is(err, cache.ErrNotFound):
			if indexed {
				m.index.Remove(h)
			}
		default:
			m.logger.WarnContext(ctx, "cache get failed", "header", h.UniqueID(), "error", err)
			return Result{Status: Miss}, nil
		}
	}

	candidates := m.index.findRollupCandidates(h, req.Cardinalities, m.coverageBudget)
	if len(candidates) == 0 {
		return Result{Status: Miss}, nil
	}

	sources, err := m.fetch(ctx, candidates)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		m.logger.WarnContext(ctx, "rollup sources unavailable", "header", h.UniqueID(), "error", err)
		return Result{Status: Miss}, nil
	}

	// A single segment over the same columns admits more values than asked
	// for; it answers the request as is.
	if len(sources) == 1 && columnSet(sources[0].Header) == columnSet(h) {
		return Result{Status: Hit, Header: sources[0].Header, Body: sources[0].Body}, nil
	}

	rollupStart := time.Now()
	header, body, err := rollup.Rollup(ctx, sources, h.ColumnExpressions(), rollup.Options{
		Aggregator:   agg,
		Datatype:     req.Datatype,
		Thresholds:   m.thresholds,
		CacheKeyHint: h.BitKey(),
		Target:       h,
	})
	m.metrics.RecordRollup(len(sources), time.Since(rollupStart), err)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Result{}, err
		}
		m.logger.LogRollup(ctx, h.UniqueID(), len(sources), err)
		return Result{Status: Miss, RollupErr: err}, nil
	}
	m.logger.LogRollup(ctx, header.UniqueID(), len(sources), nil)

	if err := m.publish(ctx, header, body); err != nil {
		m.logger.WarnContext(ctx, "rolled-up segment not cached", "error", err)
	}
	return Result{Status: RolledUp, Header: header, Body: body}, nil
}

// fetch reads the bodies of candidates concurrently, bounded by the
// resource controller's worker slots.
func (m *Manager) fetch(ctx context.Context, candidates []*segment.Header) ([]rollup.Source, error) {
	sources := make([]rollup.Source, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.rc.MaxWorkers())
	for i, h := range candidates {
		g.Go(func() error {
			if err := m.rc.AcquireWorker(gctx); err != nil {
				return err
			}
			defer m.rc.ReleaseWorker()

			body, err := m.backend.Get(gctx, h)
			if err != nil {
				if errors.Is(err, cache.ErrNotFound) {
					m.index.Remove(h)
				}
				return fmt.Errorf("fetch %s: %w", h.UniqueID(), err)
			}
			sources[i] = rollup.Source{Header: h, Body: body}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sources, nil
}

// Load consumes rows into the request's grouping sets and publishes every
// finished body. Concurrent loads of the same segments share one execution;
// the rows of the callers that did not execute are left unread.
func (m *Manager) Load(ctx context.Context, rows loader.Rows, req loader.Request) (map[*segment.Segment]*segment.Body, error) {
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	if req.Thresholds == (segment.Thresholds{}) {
		req.Thresholds = m.thresholds
	}

	start := time.Now()
	v, err, _ := m.loads.Do(loadKey(req), func() (any, error) {
		bodies, err := loader.Load(ctx, rows, req, loader.WithLogger(m.logger.Logger))
		if err != nil {
			return nil, err
		}

		published := 0
		byID := make(map[string]*segment.Body, len(bodies))
		for seg, body := range bodies {
			byID[seg.Header().UniqueID()] = body
			if err := m.publish(ctx, seg.Header(), body); err != nil {
				m.logger.WarnContext(ctx, "loaded segment not cached", "error", err)
				continue
			}
			published++
		}
		m.logger.LogLoad(ctx, len(bodies), published, nil)
		return byID, nil
	})
	if err != nil {
		m.metrics.RecordLoad(0, time.Since(start), err)
		m.logger.LogLoad(ctx, 0, 0, err)
		return nil, err
	}

	byID := v.(map[string]*segment.Body)
	out := make(map[*segment.Segment]*segment.Body, len(byID))
	for _, gs := range req.GroupingSets {
		for _, seg := range gs.Segments {
			if body, ok := byID[seg.Header().UniqueID()]; ok {
				out[seg] = body
			}
		}
	}
	m.metrics.RecordLoad(len(out), time.Since(start), nil)
	return out, nil
}

func loadKey(req loader.Request) string {
	var ids []string
	for _, gs := range req.GroupingSets {
		for _, seg := range gs.Segments {
			ids = append(ids, seg.Header().UniqueID())
		}
	}
	return strings.Join(ids, ",")
}

// publish stores a finished segment and indexes it.
func (m *Manager) publish(ctx context.Context, h *segment.Header, b *segment.Body) error {
	ok, err := m.backend.Put(ctx, h, b)
	if err != nil {
		return &ErrPublish{HeaderID: h.UniqueID(), cause: err}
	}
	if ok {
		m.index.Add(h)
	}
	return nil
}

// Flush removes every cached segment whose header matches predicate and
// returns how many were removed. Removal failures are joined into the error;
// the remaining segments are still attempted.
func (m *Manager) Flush(ctx context.Context, predicate func(*segment.Header) bool) (int, error) {
	if err := m.check(ctx); err != nil {
		return 0, err
	}
	start := time.Now()

	headers := m.index.Headers()
	if m.backend.SupportsRichIndex() {
		listed, err := m.backend.Headers(ctx)
		if err != nil {
			m.logger.WarnContext(ctx, "flush falls back to indexed headers", "error", err)
		} else {
			headers = mergeHeaders(headers, listed)
		}
	}

	removed := 0
	var errs []error
	for _, h := range headers {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if !predicate(h) {
			continue
		}
		ok, err := m.backend.Remove(ctx, h)
		if err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", h.UniqueID(), err))
			continue
		}
		m.index.Remove(h)
		if ok {
			removed++
		}
	}

	err := errors.Join(errs...)
	m.metrics.RecordFlush(removed, time.Since(start), err)
	m.logger.LogFlush(ctx, removed, err)
	return removed, err
}

func mergeHeaders(a, b []*segment.Header) []*segment.Header {
	seen := make(map[string]bool, len(a)+len(b))
	var out []*segment.Header
	for _, h := range append(a, b...) {
		if !seen[h.UniqueID()] {
			seen[h.UniqueID()] = true
			out = append(out, h)
		}
	}
	sortHeaders(out)
	return out
}

// Close stops following cache events and closes the backend.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.closed.Store(true)
		m.backend.RemoveListener(m.listener)
		m.closeErr = m.backend.Close()
		m.logger.Info("manager closed", slog.Int("indexed", m.index.Len()))
	})
	return m.closeErr
}

func (m *Manager) check(ctx context.Context) error {
	if m.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

func aggregatorName(name string) string {
	if name == "" {
		return "sum"
	}
	return name
}
