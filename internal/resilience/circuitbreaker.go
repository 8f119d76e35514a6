// Package resilience keeps the facilitator talking when a backend misbehaves.
//
// [CircuitBreaker] stops calling a backend after repeated failures and probes
// it again once a cool-down has passed. [FallbackGroup] orders several
// backends of one kind, each behind its own breaker, and [LLMFallback] and
// [STTFallback] expose such groups as ordinary providers.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// rejects calls.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls until the reset timeout has elapsed.
	StateOpen

	// StateHalfOpen lets a single probe call through. Its outcome closes or
	// re-opens the breaker.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels log messages.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open. Default: 30s.
	ResetTimeout time.Duration

	// IsFailure decides whether an error counts against the backend. The
	// default ignores context cancellation and deadline errors, which say
	// more about the caller than about the backend.
	IsFailure func(error) bool

	// Now overrides the clock. Intended for tests.
	Now func() time.Time
}

// CircuitBreaker implements the three-state circuit breaker pattern.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	isFailure    func(error) bool
	now          func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// NewCircuitBreaker creates a closed [CircuitBreaker]. Zero-value config
// fields are replaced with defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = countsAsFailure
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		isFailure:    cfg.IsFailure,
		now:          cfg.Now,
	}
}

func countsAsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Execute runs fn unless the breaker is open. While half-open, only one
// probe runs at a time and concurrent callers get [ErrCircuitOpen].
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.record(probe, err)
	return err
}

// admit decides whether a call may proceed and whether it is the probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		cb.state = StateHalfOpen
		slog.Info("circuit breaker half-open", "name", cb.name)
	}
	switch cb.state {
	case StateOpen:
		return false, ErrCircuitOpen
	case StateHalfOpen:
		if cb.probing {
			return false, ErrCircuitOpen
		}
		cb.probing = true
		return true, nil
	}
	return false, nil
}

func (cb *CircuitBreaker) record(probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probe {
		cb.probing = false
	}
	if !cb.isFailure(err) {
		if probe && err == nil {
			slog.Info("circuit breaker closed", "name", cb.name)
		}
		if err == nil {
			cb.state = StateClosed
			cb.failures = 0
		}
		return
	}

	cb.failures++
	if probe || cb.failures >= cb.maxFailures {
		if cb.state != StateOpen {
			slog.Warn("circuit breaker opened",
				"name", cb.name,
				"consecutive_failures", cb.failures,
				"err", err,
			)
		}
		cb.state = StateOpen
		cb.openedAt = cb.now()
	}
}

// State returns the current [State]. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to [StateClosed].
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failures = 0
	cb.probing = false
	slog.Info("circuit breaker manually reset", "name", cb.name)
}
