// Package config loads aggcache settings from TOML.
//
// A configuration is a plain value: callers convert it explicitly into
// segment.Thresholds, resource.Config and backend options and thread those
// through the calls that need them.
//
//	backends = ["memory", "local"]
//
//	[thresholds]
//	density = 0.5
//	sparse_segment_count = 1000
//
//	[local]
//	dir = "/var/cache/aggcache"
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hupe1980/aggcache/codec"
	"github.com/hupe1980/aggcache/internal/resource"
	"github.com/hupe1980/aggcache/segment"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("config: invalid")

// Config is the top-level configuration.
type Config struct {
	// Backends names the cache backends in read order.
	Backends []string `toml:"backends"`

	Log        Log        `toml:"log"`
	Thresholds Thresholds `toml:"thresholds"`
	Resources  Resources  `toml:"resources"`
	Blob       Blob       `toml:"blob"`
	Local      Local      `toml:"local"`
	S3         S3         `toml:"s3"`
	MinIO      MinIO      `toml:"minio"`
}

// Log configures the logger.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "text" or "json"
}

// Thresholds mirrors segment.Thresholds.
type Thresholds struct {
	Density            float64 `toml:"density"`
	SparseSegmentCount int64   `toml:"sparse_segment_count"`
	MaxDenseCells      int64   `toml:"max_dense_cells"`
}

// Resources mirrors resource.Config.
type Resources struct {
	MemoryLimitBytes   int64 `toml:"memory_limit_bytes"`
	MaxWorkers         int64 `toml:"max_workers"`
	IOLimitBytesPerSec int64 `toml:"io_limit_bytes_per_sec"`
}

// Blob configures every blob-backed cache.
type Blob struct {
	Codec          string        `toml:"codec"`
	Compression    string        `toml:"compression"`
	ReadCacheBytes int64         `toml:"read_cache_bytes"`
	PollInterval   time.Duration `toml:"poll_interval"`
}

// Local configures the "local" backend.
type Local struct {
	Dir string `toml:"dir"`
}

// S3 configures the "s3" backend. IndexTable enables the DynamoDB listing
// index.
type S3 struct {
	Bucket     string `toml:"bucket"`
	Prefix     string `toml:"prefix"`
	Region     string `toml:"region"`
	IndexTable string `toml:"index_table"`
}

// MinIO configures the "minio" backend.
type MinIO struct {
	Endpoint  string `toml:"endpoint"`
	Bucket    string `toml:"bucket"`
	Prefix    string `toml:"prefix"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Secure    bool   `toml:"secure"`
}

// Default returns the default configuration: one in-memory backend.
func Default() *Config {
	return &Config{
		Backends: []string{"memory"},
		Log:      Log{Level: "info", Format: "text"},
		Thresholds: Thresholds{
			Density:            segment.DefaultDensityThreshold,
			SparseSegmentCount: segment.DefaultSparseSegmentCountThreshold,
		},
		Resources: Resources{MaxWorkers: 4},
		Blob: Blob{
			Codec:       codec.Default.Name(),
			Compression: codec.CompressionLZ4.String(),
		},
	}
}

// Load reads a TOML file over the defaults. Unknown keys are an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	c, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes TOML over the defaults and validates the result.
func Parse(data string) (*Config, error) {
	c := Default()
	meta, err := toml.Decode(data, c)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w: unknown keys %s", ErrInvalid, strings.Join(keys, ", "))
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate reports inconsistent settings.
func (c *Config) Validate() error {
	if len(c.Backends) == 0 {
		return fmt.Errorf("%w: no backends", ErrInvalid)
	}
	seen := make(map[string]bool, len(c.Backends))
	for _, b := range c.Backends {
		if seen[b] {
			return fmt.Errorf("%w: backend %q listed twice", ErrInvalid, b)
		}
		seen[b] = true
	}
	if seen["local"] && c.Local.Dir == "" {
		return fmt.Errorf("%w: local backend needs local.dir", ErrInvalid)
	}
	if seen["s3"] && c.S3.Bucket == "" {
		return fmt.Errorf("%w: s3 backend needs s3.bucket", ErrInvalid)
	}
	if seen["minio"] && (c.MinIO.Endpoint == "" || c.MinIO.Bucket == "") {
		return fmt.Errorf("%w: minio backend needs minio.endpoint and minio.bucket", ErrInvalid)
	}

	if err := c.SegmentThresholds().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.Resources.MemoryLimitBytes < 0 || c.Resources.MaxWorkers < 0 || c.Resources.IOLimitBytesPerSec < 0 {
		return fmt.Errorf("%w: negative resource limit", ErrInvalid)
	}
	if c.Blob.ReadCacheBytes < 0 || c.Blob.PollInterval < 0 {
		return fmt.Errorf("%w: negative blob setting", ErrInvalid)
	}
	if _, ok := codec.ByName(c.Blob.Codec); !ok {
		return fmt.Errorf("%w: unknown codec %q", ErrInvalid, c.Blob.Codec)
	}
	if _, err := codec.ParseCompression(c.Blob.Compression); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalid, c.Log.Format)
	}
	return nil
}

// SegmentThresholds converts the thresholds section.
func (c *Config) SegmentThresholds() segment.Thresholds {
	return segment.Thresholds{
		DensityThreshold:            c.Thresholds.Density,
		SparseSegmentCountThreshold: c.Thresholds.SparseSegmentCount,
		MaxDenseCells:               c.Thresholds.MaxDenseCells,
	}
}

// ResourceConfig converts the resources section.
func (c *Config) ResourceConfig() resource.Config {
	return resource.Config{
		MemoryLimitBytes:   c.Resources.MemoryLimitBytes,
		MaxWorkers:         c.Resources.MaxWorkers,
		IOLimitBytesPerSec: c.Resources.IOLimitBytesPerSec,
	}
}

// BlobCodec returns the configured header codec.
func (c *Config) BlobCodec() codec.Codec {
	if cd, ok := codec.ByName(c.Blob.Codec); ok {
		return cd
	}
	return codec.Default
}

// BlobCompression returns the configured body compression.
func (c *Config) BlobCompression() codec.Compression {
	comp, err := codec.ParseCompression(c.Blob.Compression)
	if err != nil {
		return codec.CompressionLZ4
	}
	return comp
}

// SlogLevel parses the log level.
func (l Log) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log level %q: %w", l.Level, err)
	}
	return level, nil
}
