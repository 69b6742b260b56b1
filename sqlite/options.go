package sqlite

import (
	"log/slog"

	telemetry "github.com/Whagons-International/whagons5-telemetry"
)

const defaultPoolSize = 2

// Config defines SQLite store behavior.
type Config struct {
	PoolSize int
	Clock    telemetry.Clock
	Logger   *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.PoolSize <= 0 {
		c.PoolSize = defaultPoolSize
	}
	if c.Clock == nil {
		c.Clock = telemetry.SystemClock{}
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}

	return c
}

// Option configures the SQLite store.
type Option func(*Config)

// WithPoolSize sets the number of pooled connections.
func WithPoolSize(size int) Option {
	return func(c *Config) {
		c.PoolSize = size
	}
}

// WithClock sets the time source used for stale-record cutoffs.
func WithClock(clock telemetry.Clock) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

// WithLogger sets the logger for operational messages.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}
