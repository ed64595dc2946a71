package session

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/darmiel/taskdeck/internal/events"
)

type Option func(*Manager)

// WithBuffer sets the safety margin of the temporal check (default 5 minutes).
func WithBuffer(d time.Duration) Option {
	return func(m *Manager) {
		m.buffer = d
	}
}

// WithMonitorInterval sets how often the monitor re-checks an active session.
func WithMonitorInterval(d time.Duration) Option {
	return func(m *Manager) {
		m.monitorInterval = d
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithBroadcaster lets several components share one event stream.
func WithBroadcaster(b *events.Broadcaster) Option {
	return func(m *Manager) {
		m.events = b
	}
}
