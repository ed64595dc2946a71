// Package uniqueness runs debounced availability checks for signup fields.
//
// Every Submit for a field cancels the pending check of that field, so only
// the last value typed within the debounce window reaches the server, and a
// superseded check never delivers a result.
package uniqueness

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/darmiel/taskdeck/pkg/client"
)

const (
	DefaultDebounce = 300 * time.Millisecond
	DefaultRate     = 5
)

type Field string

const (
	FieldUsername Field = "username"
	FieldEmail    Field = "email"
)

// Source answers availability questions. Both *client.Client and
// *session.Manager implement it.
type Source interface {
	CheckUsername(ctx context.Context, name string) (client.Availability, error)
	CheckEmail(ctx context.Context, email string) (client.Availability, error)
}

// Result is the outcome of the last check of a field.
type Result struct {
	Field        Field
	Value        string
	Availability client.Availability
	Err          error
}

type ResultFunc func(Result)

type pending struct {
	timer  *time.Timer
	cancel context.CancelFunc
}

// Checker debounces and throttles uniqueness checks per field.
type Checker struct {
	source   Source
	onResult ResultFunc
	debounce time.Duration
	limiter  *rate.Limiter
	logger   zerolog.Logger

	mu      sync.Mutex
	seq     map[Field]uint64
	pending map[Field]*pending
	closed  bool
	wg      sync.WaitGroup

	// serializes delivery so a result cannot overtake a newer one
	deliverMu sync.Mutex
}

type Option func(*Checker)

func WithDebounce(d time.Duration) Option {
	return func(c *Checker) {
		c.debounce = d
	}
}

// WithRate limits the checks reaching the source to perSecond, 0 disables the limit.
func WithRate(perSecond float64) Option {
	return func(c *Checker) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Checker) {
		c.logger = l
	}
}

func New(source Source, onResult ResultFunc, opts ...Option) *Checker {
	c := &Checker{
		source:   source,
		onResult: onResult,
		debounce: DefaultDebounce,
		limiter:  rate.NewLimiter(rate.Limit(DefaultRate), 1),
		logger:   log.With().Str("component", "uniqueness").Logger(),
		seq:      make(map[Field]uint64),
		pending:  make(map[Field]*pending),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit schedules a check of value after the debounce window, cancelling
// the pending check of the same field. An empty value only cancels.
func (c *Checker) Submit(field Field, value string) error {
	if field != FieldUsername && field != FieldEmail {
		return fmt.Errorf("unknown field %q", field)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("checker closed")
	}

	c.cancelLocked(field)
	c.seq[field]++
	if value == "" {
		return nil
	}

	seq := c.seq[field]
	ctx, cancel := context.WithCancel(context.Background())
	p := &pending{cancel: cancel}
	c.wg.Add(1)
	p.timer = time.AfterFunc(c.debounce, func() {
		defer c.wg.Done()
		c.run(ctx, field, value, seq)
	})
	c.pending[field] = p
	return nil
}

// Cancel drops the pending check of field, if any.
func (c *Checker) Cancel(field Field) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked(field)
	c.seq[field]++
}

// Wait blocks until every scheduled check has delivered or was dropped.
func (c *Checker) Wait() {
	c.wg.Wait()
}

// Close cancels all pending checks and waits for running ones to return.
func (c *Checker) Close() {
	c.mu.Lock()
	c.closed = true
	for field := range c.pending {
		c.cancelLocked(field)
		c.seq[field]++
	}
	c.mu.Unlock()

	c.wg.Wait()
}

func (c *Checker) cancelLocked(field Field) {
	p, ok := c.pending[field]
	if !ok {
		return
	}
	delete(c.pending, field)
	p.cancel()
	if p.timer.Stop() {
		// the callback never runs, balance its Add
		c.wg.Done()
	}
}

func (c *Checker) current(field Field, seq uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq[field] == seq
}

func (c *Checker) run(ctx context.Context, field Field, value string, seq uint64) {
	if err := c.limiter.Wait(ctx); err != nil {
		return
	}
	if !c.current(field, seq) {
		return
	}

	var (
		availability client.Availability
		err          error
	)
	switch field {
	case FieldUsername:
		availability, err = c.source.CheckUsername(ctx, value)
	case FieldEmail:
		availability, err = c.source.CheckEmail(ctx, value)
	}

	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	if ctx.Err() != nil || !c.current(field, seq) {
		c.logger.Debug().Str("field", string(field)).Msg("dropping superseded check")
		return
	}

	c.mu.Lock()
	if p, ok := c.pending[field]; ok && c.seq[field] == seq {
		delete(c.pending, field)
		p.cancel()
	}
	c.mu.Unlock()

	c.onResult(Result{
		Field:        field,
		Value:        value,
		Availability: availability,
		Err:          err,
	})
}
