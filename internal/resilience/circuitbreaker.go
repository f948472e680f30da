// Package resilience provides the circuit breaker that guards calls to the
// external AI providers.
//
// The pipeline never retries a failed job, so a provider outage would
// otherwise turn every queued job into a slow timeout. The breaker
// short-circuits that: after enough consecutive failures the provider is
// assumed down, calls fail immediately with [ErrCircuitOpen], and the
// affected jobs reach FAILED without burning a full request timeout each.
// Periodic half-open probes detect recovery.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] when the breaker is
// open and the cooldown has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the current operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed is the normal state — calls pass through.
	StateClosed State = iota

	// StateOpen means the breaker tripped; calls are rejected with
	// [ErrCircuitOpen] until the cooldown elapses.
	StateOpen

	// StateHalfOpen is the probe state after the cooldown: a limited number
	// of calls are let through to test whether the provider recovered.
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

// Config holds tuning knobs for a [CircuitBreaker].
type Config struct {
	// Name labels the breaker in log messages (e.g. "stt", "summarizer").
	Name string

	// MaxFailures is the number of consecutive failures in the closed state
	// before the breaker opens. Default: 5.
	MaxFailures int

	// Cooldown is how long the breaker stays open before allowing half-open
	// probes. Default: 30s.
	Cooldown time.Duration

	// ProbeBudget is the number of half-open probe calls that must succeed
	// before the breaker closes again. Default: 3.
	ProbeBudget int
}

// CircuitBreaker is a classic three-state breaker
// (closed → open → half-open).
type CircuitBreaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	probeBudget int

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	probes      int
	probeFails  int
}

// New creates a [CircuitBreaker]; zero-value config fields get defaults.
func New(cfg Config) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.ProbeBudget <= 0 {
		cfg.ProbeBudget = 3
	}
	return &CircuitBreaker{
		name:        cfg.Name,
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		probeBudget: cfg.ProbeBudget,
		state:       StateClosed,
	}
}

// Execute runs fn if the breaker allows it. In the open state it returns
// [ErrCircuitOpen] without calling fn; in the half-open state only the probe
// budget's worth of calls pass through.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailure) < cb.cooldown {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probes = 0
		cb.probeFails = 0
		slog.Info("circuit breaker transitioning to half-open", "name", cb.name)

	case StateHalfOpen:
		if cb.probes >= cb.probeBudget {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
	}

	probing := cb.state == StateHalfOpen
	if probing {
		cb.probes++
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.onFailure(probing)
	} else {
		cb.onSuccess(probing)
	}
	return err
}

// onFailure handles failure accounting. Must be called with cb.mu held.
func (cb *CircuitBreaker) onFailure(probing bool) {
	cb.lastFailure = time.Now()

	if probing {
		// Any failed probe re-opens immediately.
		cb.probeFails++
		cb.state = StateOpen
		cb.failures = cb.maxFailures
		slog.Warn("circuit breaker re-opened from half-open", "name", cb.name)
		return
	}

	cb.failures++
	if cb.failures >= cb.maxFailures {
		cb.state = StateOpen
		slog.Warn("circuit breaker opened",
			"name", cb.name,
			"consecutive_failures", cb.failures)
	}
}

// onSuccess handles success accounting. Must be called with cb.mu held.
func (cb *CircuitBreaker) onSuccess(probing bool) {
	if probing {
		if cb.probes-cb.probeFails >= cb.probeBudget {
			cb.state = StateClosed
			cb.failures = 0
			cb.probes = 0
			cb.probeFails = 0
			slog.Info("circuit breaker closed after successful probes", "name", cb.name)
		}
		return
	}
	cb.failures = 0
}

// State returns the breaker's current [State]. An open breaker whose
// cooldown has elapsed reports [StateHalfOpen]; the actual transition
// happens on the next [Execute] call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.lastFailure) >= cb.cooldown {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to [StateClosed], clearing all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failures = 0
	cb.probes = 0
	cb.probeFails = 0
	slog.Info("circuit breaker manually reset", "name", cb.name)
}
