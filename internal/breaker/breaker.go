package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// State of a breaker key. The naming follows the electrical-circuit reading
// rather than the usual library convention: Open means the circuit is open
// for calls (permitted), Closed means it has been shut after repeated
// failures (calls are refused).
type State int

const (
	StateOpen State = iota
	StateClosed
)

func (s State) String() string {
	if s == StateClosed {
		return "closed"
	}
	return "open"
}

// ErrRejected is returned when a call is refused because the key's circuit
// is closed. The wrapped function is not invoked.
var ErrRejected = errors.New("circuit closed, call rejected")

// TrippedError wraps the failure that closed the circuit. It is returned by
// exactly the call that crossed the threshold.
type TrippedError struct {
	Err error
}

func (e *TrippedError) Error() string {
	return fmt.Sprintf("circuit tripped: %v", e.Err)
}

func (e *TrippedError) Unwrap() error {
	return e.Err
}

const defaultThreshold = 3

// CircuitBreaker tracks consecutive failures per key and refuses calls for
// keys whose circuit has closed. Unknown keys are open. Safe for concurrent
// use; consumers sharing one breaker serialize through its mutex.
type CircuitBreaker struct {
	mu        sync.Mutex
	threshold uint32
	failures  map[string]uint32
	states    map[string]State
}

type Option func(*CircuitBreaker)

// WithThreshold overrides the consecutive-failure trip threshold.
func WithThreshold(threshold uint32) Option {
	return func(cb *CircuitBreaker) {
		cb.threshold = threshold
	}
}

func New(opts ...Option) *CircuitBreaker {
	cb := &CircuitBreaker{
		threshold: defaultThreshold,
		failures:  make(map[string]uint32),
		states:    make(map[string]State),
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Call invokes fn unless key's circuit is closed.
//
// Success resets the key's failure counter. A failure increments it; the
// failure that reaches the threshold closes the circuit and comes back
// wrapped in *TrippedError, failures below the threshold pass through
// unwrapped. A closed circuit returns ErrRejected without invoking fn.
func (cb *CircuitBreaker) Call(ctx context.Context, key string, fn func(context.Context) error) error {
	cb.mu.Lock()
	if cb.states[key] == StateClosed {
		cb.mu.Unlock()
		return ErrRejected
	}
	cb.mu.Unlock()

	err := fn(ctx)

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.failures[key] = 0
		return nil
	}

	cb.failures[key]++
	if cb.failures[key] >= cb.threshold {
		cb.states[key] = StateClosed
		return &TrippedError{Err: err}
	}
	return err
}

// State returns the current state for key; unknown keys are open.
func (cb *CircuitBreaker) State(key string) State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.states[key]
}

// Revive reopens a closed circuit and resets its counter. Reviving an open
// key is a no-op. Used when an operator re-enables an endpoint.
func (cb *CircuitBreaker) Revive(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.states[key] != StateClosed {
		return
	}
	cb.failures[key] = 0
	cb.states[key] = StateOpen
}
