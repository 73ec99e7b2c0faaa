package httpserver

import (
	"log/slog"
	"time"
)

// Option configures the Server. Empty addresses and non-positive durations
// are ignored, leaving the default in place; Config.Validate reports them
// when settings come from the environment.
type Option func(*config)

func WithAddr(addr string) Option {
	return func(c *config) {
		if addr != "" {
			c.addr = addr
		}
	}
}

func WithReadTimeout(d time.Duration) Option {
	return durationOption(d, func(c *config) *time.Duration { return &c.readTimeout })
}

// WithReadHeaderTimeout bounds reading request headers, which protects the
// status port from slow clients.
func WithReadHeaderTimeout(d time.Duration) Option {
	return durationOption(d, func(c *config) *time.Duration { return &c.readHeaderTimeout })
}

func WithWriteTimeout(d time.Duration) Option {
	return durationOption(d, func(c *config) *time.Duration { return &c.writeTimeout })
}

func WithIdleTimeout(d time.Duration) Option {
	return durationOption(d, func(c *config) *time.Duration { return &c.idleTimeout })
}

// WithShutdownTimeout sets the time allowed for in-flight probes to finish.
func WithShutdownTimeout(d time.Duration) Option {
	return durationOption(d, func(c *config) *time.Duration { return &c.shutdownTimeout })
}

// WithLogger sets the server logger. Logs are discarded by default.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

func durationOption(d time.Duration, field func(*config) *time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			*field(c) = d
		}
	}
}
