// Package circuit provides a circuit breaker for calls to remote dependencies.
package circuit

import (
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

// State represents the circuit breaker state.
type State = gobreaker.State

const (
	StateClosed   = gobreaker.StateClosed
	StateHalfOpen = gobreaker.StateHalfOpen
	StateOpen     = gobreaker.StateOpen
)

// ErrOpen is returned without calling the dependency while the circuit is open.
var ErrOpen = gobreaker.ErrOpenState

// Breaker trips after FailureThreshold consecutive failures and lets a single
// probe through once the cooldown has passed.
type Breaker struct {
	name             string
	failureThreshold uint32
	cooldown         time.Duration
	isFailure        func(error) bool
	onStateChange    func(name string, from, to State)
	cb               *gobreaker.CircuitBreaker[any]
}

// Option configures a Breaker instance.
type Option func(*Breaker)

// WithFailureThreshold sets the number of consecutive failures to open the circuit.
// Default is 5.
func WithFailureThreshold(n uint32) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.failureThreshold = n
		}
	}
}

// WithCooldown sets how long the circuit stays open before a probe. Default is 30s.
func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.cooldown = d
		}
	}
}

// WithFailurePredicate decides which errors count against the dependency.
// By default every non-nil error does.
func WithFailurePredicate(fn func(error) bool) Option {
	return func(b *Breaker) {
		if fn != nil {
			b.isFailure = fn
		}
	}
}

// WithStateChange registers a callback for state transitions.
func WithStateChange(fn func(name string, from, to State)) Option {
	return func(b *Breaker) {
		b.onStateChange = fn
	}
}

// New creates a circuit breaker with the given name and options.
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:             name,
		failureThreshold: 5,
		cooldown:         30 * time.Second,
		isFailure:        func(err error) bool { return err != nil },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}

	b.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     b.cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= b.failureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !b.isFailure(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if b.onStateChange != nil {
				b.onStateChange(name, from, to)
			}
		},
	})
	return b
}

// Name returns the circuit breaker's name for logging/metrics.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current circuit state.
func (b *Breaker) State() State {
	return b.cb.State()
}

// IsOpen returns true if the circuit is open (tripped).
func (b *Breaker) IsOpen() bool {
	return b.cb.State() == StateOpen
}

// Execute runs fn unless the circuit is open. Errors from fn are returned
// unchanged.
func (b *Breaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	return err
}

// IsOpenError reports whether err came from a rejected call.
func IsOpenError(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
