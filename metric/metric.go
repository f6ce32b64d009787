// Package metric exports aggcache operational metrics to Prometheus.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "aggcache"

// Collector implements aggcache.MetricsCollector with Prometheus metrics.
type Collector struct {
	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	rollups        *prometheus.CounterVec
	rollupSources  prometheus.Histogram
	loads          *prometheus.CounterVec
	loadedSegments prometheus.Counter
	opLatency      *prometheus.HistogramVec
	flushed        prometheus.Counter
	events         *prometheus.CounterVec
}

// NewCollector creates a Collector and registers it with reg. A nil reg
// uses prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Aggregation requests by outcome.",
		}, []string{"status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Aggregation request latency by outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		rollups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollups_total",
			Help:      "Rollup attempts by result.",
		}, []string{"result"}),
		rollupSources: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rollup_sources",
			Help:      "Source segments per rollup.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
		}),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loads_total",
			Help:      "Grouping-set loads by result.",
		}, []string{"result"}),
		loadedSegments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loaded_segments_total",
			Help:      "Segment bodies built by loads.",
		}),
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Rollup, load and flush latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		flushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushed_segments_total",
			Help:      "Segments removed by flushes.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_events_total",
			Help:      "Cache events observed by type and origin.",
		}, []string{"type", "origin"}),
	}

	for _, col := range []prometheus.Collector{
		c.requests, c.requestLatency, c.rollups, c.rollupSources,
		c.loads, c.loadedSegments, c.opLatency, c.flushed, c.events,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// RecordRequest implements aggcache.MetricsCollector.
func (c *Collector) RecordRequest(status string, duration time.Duration, _ error) {
	c.requests.WithLabelValues(status).Inc()
	c.requestLatency.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordRollup implements aggcache.MetricsCollector.
func (c *Collector) RecordRollup(sources int, duration time.Duration, err error) {
	c.rollups.WithLabelValues(result(err)).Inc()
	c.rollupSources.Observe(float64(sources))
	c.opLatency.WithLabelValues("rollup").Observe(duration.Seconds())
}

// RecordLoad implements aggcache.MetricsCollector.
func (c *Collector) RecordLoad(segments int, duration time.Duration, err error) {
	c.loads.WithLabelValues(result(err)).Inc()
	c.loadedSegments.Add(float64(segments))
	c.opLatency.WithLabelValues("load").Observe(duration.Seconds())
}

// RecordFlush implements aggcache.MetricsCollector.
func (c *Collector) RecordFlush(removed int, duration time.Duration, _ error) {
	c.flushed.Add(float64(removed))
	c.opLatency.WithLabelValues("flush").Observe(duration.Seconds())
}

// RecordCacheEvent implements aggcache.MetricsCollector.
func (c *Collector) RecordCacheEvent(eventType string, local bool) {
	origin := "remote"
	if local {
		origin = "local"
	}
	c.events.WithLabelValues(eventType, origin).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
