package telemetry

import (
	"log/slog"
	"time"
)

const (
	defaultFlushInterval       = 30 * time.Second
	defaultCleanupInterval     = time.Hour
	defaultRetention           = 24 * time.Hour
	defaultMaxRetries          = 5
	defaultReconnectFlushDelay = time.Second
	defaultSnapshotLimit       = 8 * 1024
)

// Config defines how the Queue captures, delivers, and evicts records.
type Config struct {
	// FlushInterval is the period between delivery passes over the queue.
	FlushInterval time.Duration
	// CleanupInterval is the period between stale-eviction passes.
	CleanupInterval time.Duration
	// Retention is the maximum record age; older records are evicted
	// regardless of retry count.
	Retention time.Duration
	// MaxRetries is the retry cap after which a record is discarded.
	MaxRetries int
	// ReconnectFlushDelay is how long to wait after the transport reports
	// connected+authenticated before flushing, letting the reconnect settle.
	ReconnectFlushDelay time.Duration
	// SnapshotLimit caps the serialized size of the host-state snapshot.
	SnapshotLimit int
	Clock         Clock
	Logger        *slog.Logger
	Metrics       Metrics
	Generator     IDGenerator
	Build         BuildInfo
	Environment   EnvironmentInfo
	Identity      IdentitySource
	Snapshot      SnapshotSource
}

func (c Config) withDefaults() Config {
	if c.FlushInterval <= 0 {
		c.FlushInterval = defaultFlushInterval
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = defaultCleanupInterval
	}
	if c.Retention <= 0 {
		c.Retention = defaultRetention
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.ReconnectFlushDelay <= 0 {
		c.ReconnectFlushDelay = defaultReconnectFlushDelay
	}
	if c.SnapshotLimit <= 0 {
		c.SnapshotLimit = defaultSnapshotLimit
	}
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}
	if c.Generator == nil {
		c.Generator = UUIDv7Generator{}
	}

	return c
}

// Option configures Queue behavior.
type Option func(*Config)

// WithFlushInterval sets the period between delivery passes.
func WithFlushInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.FlushInterval = interval
	}
}

// WithCleanupInterval sets the period between stale-eviction passes.
func WithCleanupInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.CleanupInterval = interval
	}
}

// WithRetention sets the maximum record age before eviction.
func WithRetention(window time.Duration) Option {
	return func(c *Config) {
		c.Retention = window
	}
}

// WithMaxRetries sets the retry cap before a record is discarded.
func WithMaxRetries(limit int) Option {
	return func(c *Config) {
		c.MaxRetries = limit
	}
}

// WithReconnectFlushDelay sets the settle delay before the post-reconnect flush.
func WithReconnectFlushDelay(delay time.Duration) Option {
	return func(c *Config) {
		c.ReconnectFlushDelay = delay
	}
}

// WithSnapshotLimit sets the serialized snapshot size cap in bytes.
func WithSnapshotLimit(limit int) Option {
	return func(c *Config) {
		c.SnapshotLimit = limit
	}
}

// WithClock sets the Queue clock.
func WithClock(clock Clock) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

// WithLogger sets the queue logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithMetrics sets the queue metrics recorder.
func WithMetrics(metrics Metrics) Option {
	return func(c *Config) {
		c.Metrics = metrics
	}
}

// WithGenerator sets the record id generator.
func WithGenerator(generator IDGenerator) Option {
	return func(c *Config) {
		c.Generator = generator
	}
}

// WithBuildInfo sets the deployment metadata attached to captures.
func WithBuildInfo(build BuildInfo) Option {
	return func(c *Config) {
		c.Build = build
	}
}

// WithEnvironment sets the environment labels attached to captures.
func WithEnvironment(environment EnvironmentInfo) Option {
	return func(c *Config) {
		c.Environment = environment
	}
}

// WithIdentitySource sets the principal lookup used during captures.
func WithIdentitySource(source IdentitySource) Option {
	return func(c *Config) {
		c.Identity = source
	}
}

// WithSnapshotSource sets the host-state summary source.
func WithSnapshotSource(source SnapshotSource) Option {
	return func(c *Config) {
		c.Snapshot = source
	}
}
