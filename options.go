package comport

import (
	"io"
	"log/slog"
	"time"
)

// sessionConfig holds the configuration for a session
type sessionConfig struct {
	BufferSize      int           // per-subscriber event buffer
	InitialScan     bool          // replay currently attached ports as Plug events
	ResolveAttempts int           // metadata resolution attempts per arrival
	ResolveBackoff  time.Duration // delay between resolution attempts
	Logger          *slog.Logger

	// test seams
	source  notificationSource
	scanner scanFunc
}

// SessionOption is a functional option for configuring a session. Options
// take effect only when the call creates the session; attaching to an
// existing session of the same name reuses its configuration.
type SessionOption func(*sessionConfig) error

// defaultSessionConfig returns a configuration with sensible defaults
func defaultSessionConfig() sessionConfig {
	return sessionConfig{
		BufferSize:      64,
		InitialScan:     true,
		ResolveAttempts: 3,
		ResolveBackoff:  25 * time.Millisecond,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithBufferSize sets the per-subscriber event buffer size. A subscriber
// that falls more than this many events behind is dropped with
// ErrSubscriberLagged instead of blocking delivery to others.
func WithBufferSize(n int) SessionOption {
	return func(c *sessionConfig) error {
		if n < 1 {
			return ErrInvalidBufferSize
		}
		c.BufferSize = n
		return nil
	}
}

// WithInitialScan controls whether a newly created session replays
// already-attached ports as Plug events before live notifications.
func WithInitialScan(enabled bool) SessionOption {
	return func(c *sessionConfig) error {
		c.InitialScan = enabled
		return nil
	}
}

// WithLogger sets the logger used for session diagnostics (dropped
// notifications, slow subscribers). The default discards everything.
func WithLogger(logger *slog.Logger) SessionOption {
	return func(c *sessionConfig) error {
		if logger == nil {
			return ErrInvalidLogger
		}
		c.Logger = logger
		return nil
	}
}

// WithResolveRetry configures how often metadata resolution is retried
// for an arrival notification before the notification is dropped.
func WithResolveRetry(attempts int, backoff time.Duration) SessionOption {
	return func(c *sessionConfig) error {
		if attempts < 1 || backoff < 0 {
			return ErrInvalidRetry
		}
		c.ResolveAttempts = attempts
		c.ResolveBackoff = backoff
		return nil
	}
}

// withSource injects a notification source, replacing the platform one.
func withSource(src notificationSource) SessionOption {
	return func(c *sessionConfig) error {
		c.source = src
		return nil
	}
}

// withScanner injects an enumerator, replacing the registry scan.
func withScanner(scan scanFunc) SessionOption {
	return func(c *sessionConfig) error {
		c.scanner = scan
		return nil
	}
}
