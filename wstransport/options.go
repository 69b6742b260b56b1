package wstransport

import (
	"log/slog"
	"time"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 5 * time.Second
	defaultBackoffMin       = time.Second
	defaultBackoffMax       = 30 * time.Second
)

// Config defines websocket transport behavior.
type Config struct {
	// Token is sent in the authentication frame after dialing. Empty means
	// the collector accepts unauthenticated connections; the transport then
	// reports Authenticated as soon as the dial succeeds.
	Token string
	// HandshakeTimeout bounds the websocket dial.
	HandshakeTimeout time.Duration
	// WriteTimeout bounds each outbound frame.
	WriteTimeout time.Duration
	// BackoffMin and BackoffMax bound the redial delay, which doubles after
	// every consecutive failure.
	BackoffMin time.Duration
	BackoffMax time.Duration
	Logger     *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.BackoffMin <= 0 {
		c.BackoffMin = defaultBackoffMin
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = defaultBackoffMax
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}

	return c
}

// Option configures the websocket transport.
type Option func(*Config)

// WithToken sets the bearer token for the authentication frame.
func WithToken(token string) Option {
	return func(c *Config) {
		c.Token = token
	}
}

// WithHandshakeTimeout sets the dial timeout.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.HandshakeTimeout = d
	}
}

// WithWriteTimeout sets the per-frame write timeout.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.WriteTimeout = d
	}
}

// WithBackoff sets the redial delay bounds.
func WithBackoff(min, max time.Duration) Option {
	return func(c *Config) {
		c.BackoffMin = min
		c.BackoffMax = max
	}
}

// WithLogger sets the logger for operational messages.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}
