// Package resilience provides the fault-tolerance helpers used around the
// optional backends: exponential-backoff retry for startup connections and a
// circuit breaker that keeps a failing Redis out of the search path.
package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

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

type CircuitBreakerConfig struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	HalfOpenMaxRequests int
	// OnStateChange is called outside the breaker lock.
	OnStateChange func(name string, from, to State)
}

// CircuitBreaker trips open after FailureThreshold consecutive failures and
// lets HalfOpenMaxRequests probes through once ResetTimeout has elapsed.
type CircuitBreaker struct {
	name   string
	cfg    CircuitBreakerConfig
	logger *slog.Logger
	now    func() time.Time

	mu               sync.Mutex
	state            State
	failures         int
	openedAt         time.Time
	halfOpenInFlight int
}

func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = 1
	}
	return &CircuitBreaker{
		name:   name,
		cfg:    cfg,
		logger: slog.Default().With("component", "circuit-breaker", "name", name),
		now:    time.Now,
	}
}

// Execute runs fn if the circuit allows it and records the outcome. When the
// circuit is open fn is not called and an ErrCircuitOpen error is returned.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.allow(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Reset() {
	cb.transition(func() {
		cb.state = StateClosed
		cb.failures = 0
		cb.halfOpenInFlight = 0
	})
}

func (cb *CircuitBreaker) allow() error {
	var err error
	cb.transition(func() {
		switch cb.state {
		case StateOpen:
			wait := cb.cfg.ResetTimeout - cb.now().Sub(cb.openedAt)
			if wait > 0 {
				err = fmt.Errorf("%w: %s (retry after %v)", ErrCircuitOpen, cb.name, wait)
				return
			}
			cb.state = StateHalfOpen
			cb.halfOpenInFlight = 1
		case StateHalfOpen:
			if cb.halfOpenInFlight >= cb.cfg.HalfOpenMaxRequests {
				err = fmt.Errorf("%w: %s (half-open probe limit reached)", ErrCircuitOpen, cb.name)
				return
			}
			cb.halfOpenInFlight++
		}
	})
	return err
}

func (cb *CircuitBreaker) record(err error) {
	cb.transition(func() {
		if err == nil {
			cb.failures = 0
			if cb.state == StateHalfOpen {
				cb.state = StateClosed
				cb.halfOpenInFlight = 0
			}
			return
		}
		cb.failures++
		if cb.state == StateHalfOpen || cb.failures >= cb.cfg.FailureThreshold {
			cb.state = StateOpen
			cb.openedAt = cb.now()
			cb.halfOpenInFlight = 0
		}
	})
}

// transition runs mutate under the lock and reports any state change after
// releasing it.
func (cb *CircuitBreaker) transition(mutate func()) {
	cb.mu.Lock()
	from := cb.state
	mutate()
	to := cb.state
	failures := cb.failures
	cb.mu.Unlock()

	if from == to {
		return
	}
	cb.logger.Info("circuit state changed", "from", from, "to", to, "consecutive_failures", failures)
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, from, to)
	}
}
