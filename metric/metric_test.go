package metric

import (
	"errors"
	"testing"
	"time"

	"github.com/hupe1980/aggcache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ aggcache.MetricsCollector = (*Collector)(nil)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	c.RecordRequest("hit", time.Millisecond, nil)
	c.RecordRequest("hit", time.Millisecond, nil)
	c.RecordRequest("miss", time.Millisecond, nil)
	c.RecordRollup(3, time.Millisecond, nil)
	c.RecordRollup(2, time.Millisecond, errors.New("invariant"))
	c.RecordLoad(4, time.Millisecond, nil)
	c.RecordFlush(2, time.Millisecond, nil)
	c.RecordCacheEvent("created", true)
	c.RecordCacheEvent("created", false)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.requests.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.requests.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rollups.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rollups.WithLabelValues("error")))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.loadedSegments))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.flushed))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.events.WithLabelValues("created", "remote")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestCollector_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewCollector(reg)
	require.NoError(t, err)

	_, err = NewCollector(reg)
	require.Error(t, err)
}
