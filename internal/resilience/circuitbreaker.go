// Package resilience guards live session providers with circuit breakers and
// ordered failover.
//
// A [CircuitBreaker] counts consecutive failures to open a session. Once it
// trips, further attempts are rejected with [ErrCircuitOpen] until the reset
// timeout passes, after which a limited number of probe attempts decide
// whether it closes again. [Fallback] puts one breaker in front of each of
// several providers and opens the session on the first healthy one.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls until the reset timeout elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through.
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
	// Name labels log messages, usually the provider name.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 3.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful probes needed to close a
	// half-open breaker. Default: 1.
	HalfOpenMax int

	// OnStateChange, if set, is called after every transition with the
	// breaker's lock released.
	OnStateChange func(name string, from, to State)
}

// CircuitBreaker implements the three-state circuit breaker pattern.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	now func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	probes    int
	successes int
}

// NewCircuitBreaker creates a [CircuitBreaker]. Zero-valued fields of cfg
// take their defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// Name returns the breaker's label.
func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }

// Execute runs fn unless the breaker rejects the call, in which case it
// returns [ErrCircuitOpen] without calling fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.record(probe, err)
	return err
}

// admit decides whether a call may proceed and whether it counts as a
// half-open probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	var from State
	transitioned := false
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		from, transitioned = cb.setLocked(StateHalfOpen)
		cb.probes, cb.successes = 0, 0
	}
	switch cb.state {
	case StateOpen:
		err = ErrCircuitOpen
	case StateHalfOpen:
		if cb.probes >= cb.cfg.HalfOpenMax {
			err = ErrCircuitOpen
		} else {
			cb.probes++
			probe = true
		}
	}
	cb.mu.Unlock()
	if transitioned {
		cb.changed(from, StateHalfOpen)
	}
	return probe, err
}

func (cb *CircuitBreaker) record(probe bool, err error) {
	cb.mu.Lock()
	from, to := cb.state, cb.state
	switch {
	case err != nil && probe:
		// A failed probe reopens immediately.
		cb.openedAt = cb.now()
		to = StateOpen
	case err != nil:
		cb.failures++
		if cb.state == StateClosed && cb.failures >= cb.cfg.MaxFailures {
			cb.openedAt = cb.now()
			to = StateOpen
		}
	case probe:
		cb.successes++
		if cb.successes >= cb.cfg.HalfOpenMax {
			cb.failures = 0
			to = StateClosed
		}
	default:
		cb.failures = 0
	}
	_, transitioned := cb.setLocked(to)
	failures := cb.failures
	cb.mu.Unlock()

	if !transitioned {
		return
	}
	if to == StateOpen {
		slog.Warn("circuit breaker opened", "name", cb.cfg.Name, "consecutive_failures", failures, "err", err)
	} else {
		slog.Info("circuit breaker closed", "name", cb.cfg.Name)
	}
	cb.changed(from, to)
}

// setLocked moves to s and reports the previous state and whether it
// changed. cb.mu must be held.
func (cb *CircuitBreaker) setLocked(s State) (State, bool) {
	from := cb.state
	cb.state = s
	return from, from != s
}

func (cb *CircuitBreaker) changed(from, to State) {
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}

// State returns the current state. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from, transitioned := cb.setLocked(StateClosed)
	cb.failures, cb.probes, cb.successes = 0, 0, 0
	cb.mu.Unlock()
	if transitioned {
		cb.changed(from, StateClosed)
	}
}
