// Package monitor re-validates the active session on a fixed interval.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultInterval is how often an armed monitor re-checks the session.
const DefaultInterval = 60 * time.Second

// Target is the session the monitor guards.
type Target interface {
	// Validate re-runs the validator against the current bundle and ends the
	// session when it is no longer usable. A nil error means the session is still valid.
	Validate(ctx context.Context) error
}

// Status is a snapshot of the monitor.
type Status struct {
	Armed      bool      `json:"armed"`
	Running    bool      `json:"running,omitempty"`
	LastRun    time.Time `json:"last_run"`
	LastResult string    `json:"last_result,omitempty"`
	NextRun    time.Time `json:"next_run"`
}

// Monitor periodically calls Target.Validate while armed.
// It is armed when a session starts and disarmed when it ends.
type Monitor struct {
	target   Target
	interval time.Duration
	logger   zerolog.Logger

	mu         sync.Mutex
	cancel     context.CancelFunc
	generation uint64
	armedAt    time.Time
	running    bool
	lastRun    time.Time
	lastResult string
}

type Option func(*Monitor)

func WithLogger(l zerolog.Logger) Option {
	return func(m *Monitor) {
		m.logger = l
	}
}

func New(target Target, interval time.Duration, opts ...Option) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	m := &Monitor{
		target:   target,
		interval: interval,
		logger:   log.With().Str("component", "monitor").Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Arm starts the recurring check. Arming an armed monitor does nothing.
func (m *Monitor) Arm() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.generation++
	m.armedAt = time.Now()

	go m.loop(ctx, m.generation)
	m.logger.Debug().Dur("interval", m.interval).Msg("monitor armed")
}

// Disarm stops the recurring check. No further check of the current arming
// starts after Disarm returns. It is safe to call from within a check.
func (m *Monitor) Disarm() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel == nil {
		return
	}
	m.cancel()
	m.cancel = nil
	m.generation++
	m.logger.Debug().Msg("monitor disarmed")
}

func (m *Monitor) Armed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

func (m *Monitor) Interval() time.Duration {
	return m.interval
}

func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Status{
		Armed:      m.cancel != nil,
		Running:    m.running,
		LastRun:    m.lastRun,
		LastResult: m.lastResult,
	}
	if s.Armed {
		if !m.lastRun.IsZero() && m.lastRun.After(m.armedAt) {
			s.NextRun = m.lastRun.Add(m.interval)
		} else {
			s.NextRun = m.armedAt.Add(m.interval)
		}
	}
	return s
}

func (m *Monitor) loop(ctx context.Context, generation uint64) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.run(ctx, generation)
		}
	}
}

func (m *Monitor) run(ctx context.Context, generation uint64) {
	m.mu.Lock()
	if m.generation != generation {
		m.mu.Unlock()
		return
	}
	if m.running {
		m.mu.Unlock()
		m.logger.Warn().Msg("previous check still running, skipping")
		return
	}
	m.running = true
	m.mu.Unlock()

	err := m.target.Validate(ctx)

	m.mu.Lock()
	m.running = false
	m.lastRun = time.Now()
	if err != nil {
		m.lastResult = fmt.Sprintf("failed: %v", err)
	} else {
		m.lastResult = "valid"
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.Info().Err(err).Msg("session no longer valid")
	} else {
		m.logger.Debug().Msg("session still valid")
	}
}
