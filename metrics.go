package aggcache

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like
// Prometheus; package metric provides one.
type MetricsCollector interface {
	// RecordRequest is called after each RequestAggregation. status is
	// "hit", "rolledup" or "miss"; err is the rollup error reported with a
	// miss, if any.
	RecordRequest(status string, duration time.Duration, err error)

	// RecordRollup is called after each rollup attempt over sources segments.
	RecordRollup(sources int, duration time.Duration, err error)

	// RecordLoad is called after each Load. segments is the number of bodies
	// built.
	RecordLoad(segments int, duration time.Duration, err error)

	// RecordFlush is called after each Flush.
	RecordFlush(removed int, duration time.Duration, err error)

	// RecordCacheEvent is called for each cache event the manager observes.
	RecordCacheEvent(eventType string, local bool)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordRequest(string, time.Duration, error) {}
func (NoopMetricsCollector) RecordRollup(int, time.Duration, error)     {}
func (NoopMetricsCollector) RecordLoad(int, time.Duration, error)       {}
func (NoopMetricsCollector) RecordFlush(int, time.Duration, error)      {}
func (NoopMetricsCollector) RecordCacheEvent(string, bool)              {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	Hits            atomic.Int64
	RolledUp        atomic.Int64
	Misses          atomic.Int64
	RequestErrors   atomic.Int64
	RequestNanos    atomic.Int64
	RollupCount     atomic.Int64
	RollupErrors    atomic.Int64
	RollupSources   atomic.Int64
	LoadCount       atomic.Int64
	LoadErrors      atomic.Int64
	LoadedSegments  atomic.Int64
	FlushCount      atomic.Int64
	FlushedSegments atomic.Int64
	EventsCreated   atomic.Int64
	EventsDeleted   atomic.Int64
	RemoteEvents    atomic.Int64
}

// RecordRequest implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRequest(status string, duration time.Duration, err error) {
	switch status {
	case "hit":
		b.Hits.Add(1)
	case "rolledup":
		b.RolledUp.Add(1)
	default:
		b.Misses.Add(1)
	}
	b.RequestNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.RequestErrors.Add(1)
	}
}

// RecordRollup implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRollup(sources int, _ time.Duration, err error) {
	b.RollupCount.Add(1)
	b.RollupSources.Add(int64(sources))
	if err != nil {
		b.RollupErrors.Add(1)
	}
}

// RecordLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLoad(segments int, _ time.Duration, err error) {
	b.LoadCount.Add(1)
	b.LoadedSegments.Add(int64(segments))
	if err != nil {
		b.LoadErrors.Add(1)
	}
}

// RecordFlush implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFlush(removed int, _ time.Duration, _ error) {
	b.FlushCount.Add(1)
	b.FlushedSegments.Add(int64(removed))
}

// RecordCacheEvent implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCacheEvent(eventType string, local bool) {
	switch eventType {
	case "created":
		b.EventsCreated.Add(1)
	case "deleted":
		b.EventsDeleted.Add(1)
	}
	if !local {
		b.RemoteEvents.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	requests := b.Hits.Load() + b.RolledUp.Load() + b.Misses.Load()
	var avg int64
	if requests > 0 {
		avg = b.RequestNanos.Load() / requests
	}
	return BasicMetricsStats{
		Hits:            b.Hits.Load(),
		RolledUp:        b.RolledUp.Load(),
		Misses:          b.Misses.Load(),
		RequestErrors:   b.RequestErrors.Load(),
		RequestAvgNanos: avg,
		RollupCount:     b.RollupCount.Load(),
		RollupErrors:    b.RollupErrors.Load(),
		LoadCount:       b.LoadCount.Load(),
		LoadErrors:      b.LoadErrors.Load(),
		LoadedSegments:  b.LoadedSegments.Load(),
		FlushedSegments: b.FlushedSegments.Load(),
		EventsCreated:   b.EventsCreated.Load(),
		EventsDeleted:   b.EventsDeleted.Load(),
	}
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	Hits            int64
	RolledUp        int64
	Misses          int64
	RequestErrors   int64
	RequestAvgNanos int64
	RollupCount     int64
	RollupErrors    int64
	LoadCount       int64
	LoadErrors      int64
	LoadedSegments  int64
	FlushedSegments int64
	EventsCreated   int64
	EventsDeleted   int64
}
