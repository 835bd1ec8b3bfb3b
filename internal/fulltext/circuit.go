package fulltext

import (
	"errors"
	"sync"
	"time"
)

// errCircuitOpen is returned when the circuit breaker is open.
var errCircuitOpen = errors.New("fulltext: circuit breaker is open")

type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

// circuitBreaker is a trimmed-down copy of the teacher's
// internal/errors.CircuitBreaker, scoped to this package's one use case:
// guarding the RPC connector against a dead full-text backend so every
// query doesn't pay a full dial timeout.
type circuitBreaker struct {
	maxFailures  int
	resetTimeout time.Duration

	mu          sync.Mutex
	state       circuitState
	failures    int
	lastFailure time.Time
}

func newCircuitBreaker(maxFailures int, resetTimeout time.Duration) *circuitBreaker {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}
	return &circuitBreaker{maxFailures: maxFailures, resetTimeout: resetTimeout}
}

func (cb *circuitBreaker) currentState() circuitState {
	if cb.state == circuitOpen && time.Since(cb.lastFailure) > cb.resetTimeout {
		return circuitHalfOpen
	}
	return cb.state
}

// execute runs fn through the breaker. A fn error trips the breaker
// toward open; errCircuitOpen is returned without calling fn at all once
// tripped, until the reset timeout elapses.
func (cb *circuitBreaker) execute(fn func() error) error {
	cb.mu.Lock()
	state := cb.currentState()
	if state == circuitOpen {
		cb.mu.Unlock()
		return errCircuitOpen
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.failures++
		cb.lastFailure = time.Now()
		if cb.failures >= cb.maxFailures {
			cb.state = circuitOpen
		}
		return err
	}
	cb.failures = 0
	cb.state = circuitClosed
	return nil
}
