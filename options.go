package aggcache

import (
	"log/slog"

	"github.com/hupe1980/aggcache/internal/resource"
	"github.com/hupe1980/aggcache/segment"
)

type options struct {
	thresholds       segment.Thresholds
	controller       *resource.Controller
	metricsCollector MetricsCollector
	logger           *Logger
	coverageBudget   int
}

// Option configures a Manager.
type Option func(*options)

// WithThresholds sets the representation thresholds used by loads and
// rollups. Both must use the same thresholds so that loaded and rolled-up
// segments choose representations consistently.
func WithThresholds(t segment.Thresholds) Option {
	return func(o *options) {
		o.thresholds = t
	}
}

// WithResourceController bounds concurrent body fetches by rc's worker slots.
// Pass the same controller to the cache backends to share one memory budget.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.controller = rc
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &aggcache.BasicMetricsCollector{}
//	m, _ := aggcache.New(ctx, backend, aggcache.WithMetricsCollector(metrics))
//	// ... use m ...
//	stats := metrics.GetStats()
//	fmt.Printf("Hits: %d, Rolled up: %d\n", stats.Hits, stats.RolledUp)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := aggcache.NewJSONLogger(slog.LevelInfo)
//	m, _ := aggcache.New(ctx, backend, aggcache.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithCoverageBudget bounds the work spent proving that cached segments
// cover a request. Requests whose coverage cannot be decided within the
// budget are treated as misses.
func WithCoverageBudget(steps int) Option {
	return func(o *options) {
		o.coverageBudget = steps
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		thresholds:       segment.DefaultThresholds(),
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		coverageBudget:   defaultCoverageBudget,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
