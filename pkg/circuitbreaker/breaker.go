// Package circuitbreaker implements the per-external-service circuit breaker
// guarding outbound calls.
//
// # State machine
//
//	Closed ──(failureCount reaches threshold)──► Open ──(timeout elapsed)──► HalfOpen
//	  ▲                                                                          │
//	  └───────────────(trial succeeds)────────────────────────────────────────────┘
//	                   (trial fails) ─────────────────────────────────────► Open
//
// # Concurrency
//
// All public methods are safe for concurrent use. Breaker state is
// process-local: each server instance tracks failures independently, so a
// flapping dependency may open the breaker on some instances sooner than
// others.
package circuitbreaker

import (
	"context"
	"sync"
	"time"

	"github.com/monay/backend-core/pkg/apperrors"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = iota // Normal operation, calls pass through
	StateOpen                  // Calls are rejected until the timeout elapses
	StateHalfOpen              // One trial call is permitted
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds the breaker thresholds for one external service.
type Config struct {
	FailureThreshold int           // consecutive failures before opening
	Timeout          time.Duration // how long the breaker stays open
}

// DefaultConfig returns conservative defaults for services without an
// explicit override.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		Timeout:          time.Minute,
	}
}

// TransitionFunc is notified on every state change, for metrics.
type TransitionFunc func(service string, to State)

// RejectionFunc is notified on every fail-fast rejection, for metrics.
type RejectionFunc func(service string)

// Breaker guards calls to one named external service.
type Breaker struct {
	name         string
	cfg          Config
	onTransition TransitionFunc
	onRejection  RejectionFunc

	mu           sync.Mutex
	state        State
	failureCount int
	nextAttempt  time.Time
	trialActive  bool

	now func() time.Time // injectable for tests
}

// New creates a breaker for the named service.
func New(name string, cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Breaker{
		name: name,
		cfg:  cfg,
		now:  time.Now,
	}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs op under the breaker. When the breaker is open and the
// timeout has not elapsed, it fails fast with an ExternalService error
// carrying the remaining cooldown as a retry hint. When the timeout has
// elapsed, exactly one caller is admitted as the half-open trial; its outcome
// decides the next state.
func (b *Breaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}

	err := op(ctx)
	b.record(err == nil)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if now.Before(b.nextAttempt) {
			return b.rejection(now)
		}
		b.transition(StateHalfOpen)
		b.trialActive = true
		return nil
	case StateHalfOpen:
		if b.trialActive {
			return b.rejection(now)
		}
		b.trialActive = true
		return nil
	}
	return nil
}

func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trialActive = false

	if success {
		b.failureCount = 0
		if b.state == StateHalfOpen {
			b.transition(StateClosed)
		}
		return
	}

	b.failureCount++
	switch b.state {
	case StateHalfOpen:
		// Trial failed, reopen with a renewed cooldown.
		b.nextAttempt = b.now().Add(b.cfg.Timeout)
		b.transition(StateOpen)
	case StateClosed:
		if b.failureCount >= b.cfg.FailureThreshold {
			b.nextAttempt = b.now().Add(b.cfg.Timeout)
			b.transition(StateOpen)
		}
	}
}

// rejection builds the fail-fast error. Must be called under lock.
func (b *Breaker) rejection(now time.Time) error {
	if b.onRejection != nil {
		b.onRejection(b.name)
	}
	retryAfter := b.nextAttempt.Sub(now)
	if retryAfter < 0 {
		retryAfter = 0
	}
	return apperrors.ExternalService("Service temporarily unavailable").
		WithDetails(map[string]interface{}{"service": b.name}).
		WithRetryAfter(retryAfter)
}

// transition changes state and notifies. Must be called under lock.
func (b *Breaker) transition(to State) {
	b.state = to
	b.notify(to)
}

func (b *Breaker) notify(to State) {
	if b.onTransition != nil {
		b.onTransition(b.name, to)
	}
}
