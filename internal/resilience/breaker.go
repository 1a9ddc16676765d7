// Package resilience provides reliability patterns for external service calls.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker is open and rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

func (s state) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Breaker implements a circuit breaker for calls to the Tenant API.
// It counts consecutive failures and opens the circuit once a threshold is
// reached, rejecting calls until the timeout elapses.
type Breaker struct {
	mu          sync.Mutex
	state       state
	failures    int
	maxFailures int
	timeout     time.Duration
	openedAt    time.Time
	now         func() time.Time // for testing
	probing     bool             // a half-open probe is in flight

	// countable decides whether an error counts toward opening the circuit.
	// Errors it rejects are returned to the caller and leave the count as is.
	countable func(error) bool
}

// NewBreaker creates a circuit breaker that opens after maxFailures consecutive
// failures and stays open for the given timeout before transitioning to half-open.
func NewBreaker(maxFailures int, timeout time.Duration) *Breaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &Breaker{
		maxFailures: maxFailures,
		timeout:     timeout,
		now:         time.Now,
		countable:   func(error) bool { return true },
	}
}

// CountOnly restricts which errors trip the breaker. Application-level
// rejections (a 422 from the API, say) should not open the circuit.
func (b *Breaker) CountOnly(fn func(error) bool) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if fn != nil {
		b.countable = fn
	}
	return b
}

// Execute runs fn if the circuit is closed, or as the single probe of a
// half-open circuit. It returns ErrCircuitOpen otherwise.
func (b *Breaker) Execute(fn func() error) error {
	probe, ok := b.allowRequest()
	if !ok {
		return ErrCircuitOpen
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if probe {
		b.probing = false
	}

	switch {
	case err != nil && b.countable(err):
		b.onFailure()
	case err == nil || probe:
		// An uncounted error from the probe still proves the API answers.
		b.onSuccess()
	}
	return err
}

// State returns "closed", "open" or "half-open".
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.String()
}

// allowRequest reports whether a call may proceed and whether it is the
// half-open probe.
func (b *Breaker) allowRequest() (probe, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed:
		return false, true
	case stateOpen:
		if b.now().Sub(b.openedAt) < b.timeout {
			return false, false
		}
		b.state = stateHalfOpen
	}
	if b.probing {
		return false, false
	}
	b.probing = true
	return true, true
}

// onFailure must be called with b.mu held.
func (b *Breaker) onFailure() {
	b.failures++
	if b.state == stateHalfOpen || b.failures >= b.maxFailures {
		if b.state != stateOpen {
			slog.Warn("circuit breaker opened", "failures", b.failures, "retry_after", b.timeout)
		}
		b.state = stateOpen
		b.openedAt = b.now()
	}
}

// onSuccess must be called with b.mu held.
func (b *Breaker) onSuccess() {
	if b.state != stateClosed {
		slog.Info("circuit breaker closed")
	}
	b.failures = 0
	b.state = stateClosed
}
