// Package circuitbreaker guards calls to a durable backend that may be slow or down.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/onnwee/blogcache/internal/metrics"
)

// ErrCircuitOpen is returned without calling the guarded function while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the breaker position. Its numeric value is what the state gauge reports.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

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

// Config holds circuit breaker configuration
type Config struct {
	Name             string
	FailureThreshold int           // consecutive failures that open the breaker
	SuccessThreshold int           // half-open successes that close it again
	Cooldown         time.Duration // how long to stay open before probing
	// Ignore reports errors that prove the backend is reachable even though the call
	// failed, such as a full quota. They are returned to the caller but count as success.
	Ignore func(error) bool
	// OnStateChange is called outside the lock after every transition.
	OnStateChange func(name string, from, to State)
	Clock         clock.Clock
}

// CircuitBreaker stops calling a failing dependency for a cool-down period.
type CircuitBreaker struct {
	cfg Config

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
}

// New creates a closed breaker.
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	metrics.CircuitBreakerState.WithLabelValues(cfg.Name).Set(float64(StateClosed))
	return &CircuitBreaker{cfg: cfg}
}

// Do runs fn unless the breaker is open. A context error from fn counts as a failure
// only when it is the call's own deadline, not a caller cancellation.
func (cb *CircuitBreaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if !cb.admit() {
		return ErrCircuitOpen
	}

	err := fn(ctx)
	switch {
	case err == nil:
		cb.record(true)
	case cb.cfg.Ignore != nil && cb.cfg.Ignore(err):
		cb.record(true)
	case errors.Is(err, context.Canceled) && ctx.Err() == context.Canceled:
		// Caller gave up; says nothing about the backend.
	default:
		cb.record(false)
	}
	return err
}

// State returns the current position.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) admit() bool {
	cb.mu.Lock()
	if cb.state != StateOpen {
		cb.mu.Unlock()
		return true
	}
	if cb.cfg.Clock.Since(cb.openedAt) < cb.cfg.Cooldown {
		cb.mu.Unlock()
		return false
	}
	notify := cb.moveLocked(StateHalfOpen)
	cb.mu.Unlock()
	notify()
	return true
}

func (cb *CircuitBreaker) record(ok bool) {
	cb.mu.Lock()
	notify := func() {}
	switch {
	case ok && cb.state == StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.cfg.SuccessThreshold {
			notify = cb.moveLocked(StateClosed)
		}
	case ok:
		cb.failures = 0
	case cb.state == StateHalfOpen:
		notify = cb.moveLocked(StateOpen)
	default:
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			notify = cb.moveLocked(StateOpen)
		}
	}
	cb.mu.Unlock()
	notify()
}

// moveLocked must be called with cb.mu held. The returned func fires the hook.
func (cb *CircuitBreaker) moveLocked(to State) func() {
	from := cb.state
	cb.state = to
	cb.failures = 0
	cb.successes = 0
	if to == StateOpen {
		cb.openedAt = cb.cfg.Clock.Now()
		metrics.CircuitBreakerTrips.WithLabelValues(cb.cfg.Name).Inc()
	}
	metrics.CircuitBreakerState.WithLabelValues(cb.cfg.Name).Set(float64(to))

	hook := cb.cfg.OnStateChange
	if hook == nil || from == to {
		return func() {}
	}
	name := cb.cfg.Name
	return func() { hook(name, from, to) }
}
