package cache

import (
	"log/slog"
	"time"

	"github.com/hupe1980/aggcache/codec"
	"github.com/hupe1980/aggcache/internal/resource"
)

// Option configures a cache backend. Options that do not apply to a backend
// are ignored by it.
type Option func(*options)

type options struct {
	logger         *slog.Logger
	controller     *resource.Controller
	codec          codec.Codec
	compression    codec.Compression
	readCacheBytes int64
	pollInterval   time.Duration
	eventBuffer    int
}

func defaultOptions() options {
	return options{
		logger:      slog.New(slog.DiscardHandler),
		codec:       codec.Default,
		compression: codec.CompressionLZ4,
		eventBuffer: defaultEventBuffer,
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithResourceController charges cached bodies to rc's memory budget and
// throttles remote IO through it.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) { o.controller = rc }
}

// WithCodec sets the header codec used by BlobCache.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c != nil {
			o.codec = c
		}
	}
}

// WithCompression sets the body compression used by BlobCache.
func WithCompression(c codec.Compression) Option {
	return func(o *options) { o.compression = c }
}

// WithReadCache keeps up to bytes of recently read blobs in memory in front
// of BlobCache's store.
func WithReadCache(bytes int64) Option {
	return func(o *options) { o.readCacheBytes = bytes }
}

// WithPollInterval makes BlobCache list its store every d and raise events
// for entries created or deleted by other processes. Zero disables polling.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) { o.pollInterval = d }
}

// WithEventBuffer sets the number of events queued before Put and Remove
// block on slow listeners.
func WithEventBuffer(n int) Option {
	return func(o *options) { o.eventBuffer = n }
}
