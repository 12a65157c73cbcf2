package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Moof29/batchly/internal/config"
	"github.com/Moof29/batchly/internal/errors"
)

// State is the breaker state
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// StateChangeFunc observes breaker transitions for alerting. It runs inline
// on the transition path and must not block.
type StateChangeFunc func(surface string, from, to State)

// Breaker isolates failures for one logical API surface. After
// FailureThreshold consecutive failures it opens and rejects calls with a
// typed circuit-open error until ResetTimeout elapses; it then admits up to
// HalfOpenMax trial calls, closing on that many successes and reopening on
// any failure.
type Breaker struct {
	surface string
	cfg     *config.BreakerConfig
	logger  *logrus.Logger

	mu                sync.Mutex
	state             State
	failures          int
	halfOpenCalls     int
	halfOpenSuccesses int
	openedAt          time.Time
	onStateChange     StateChangeFunc
}

// Option allows configuring the breaker
type Option func(*Breaker)

// WithStateChange registers a transition observer.
func WithStateChange(fn StateChangeFunc) Option {
	return func(b *Breaker) {
		b.onStateChange = fn
	}
}

// New creates a breaker for one API surface.
func New(surface string, cfg *config.BreakerConfig, logger *logrus.Logger, opts ...Option) *Breaker {
	b := &Breaker{
		surface: surface,
		cfg:     cfg,
		logger:  logger,
		state:   StateClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Surface returns the API surface the breaker guards.
func (b *Breaker) Surface() string {
	return b.surface
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs fn unless the breaker is open. Rejection is a typed
// circuit-open failure, never a hang.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}

	err := fn(ctx)
	if err != nil {
		b.recordFailure()
		return err
	}

	b.recordSuccess()
	return nil
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Since(b.openedAt) < b.cfg.ResetTimeout {
			return &errors.CircuitOpenError{
				Surface: b.surface,
				RetryAt: b.openedAt.Add(b.cfg.ResetTimeout),
			}
		}
		b.transition(StateHalfOpen)
		b.halfOpenCalls = 1
		return nil
	case StateHalfOpen:
		if b.halfOpenCalls >= b.cfg.HalfOpenMax {
			return &errors.CircuitOpenError{
				Surface: b.surface,
				RetryAt: b.openedAt.Add(b.cfg.ResetTimeout),
			}
		}
		b.halfOpenCalls++
		return nil
	}
	return nil
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		// A probe failure reopens immediately and restarts the timeout clock.
		b.openedAt = time.Now()
		b.failures = 0
		b.transition(StateOpen)
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.openedAt = time.Now()
			b.transition(StateOpen)
		}
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.cfg.HalfOpenMax {
			b.failures = 0
			b.transition(StateClosed)
		}
	case StateClosed:
		b.failures = 0
	}
}

// transition must be called with the lock held.
func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	if to != StateHalfOpen {
		b.halfOpenCalls = 0
		b.halfOpenSuccesses = 0
	}

	b.logger.WithFields(logrus.Fields{
		"surface": b.surface,
		"from":    from,
		"to":      to,
	}).Warn("Circuit breaker state changed")

	if b.onStateChange != nil {
		b.onStateChange(b.surface, from, to)
	}
}
