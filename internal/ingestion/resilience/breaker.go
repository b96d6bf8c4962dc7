package resilience

import (
	"sync"
	"time"
)

// CircuitState is the state of a CircuitBreaker.
type CircuitState int

const (
	StateClosed   CircuitState = iota // Normal operation
	StateOpen                         // Blocking new batches
	StateHalfOpen                     // Testing recovery
)

func (s CircuitState) String() string {
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

// BreakerConfig holds circuit breaker settings.
type BreakerConfig struct {
	WindowSize       int
	FailureThreshold int
	ResetTimeout     time.Duration
}

// DefaultBreakerConfig provides sensible defaults.
var DefaultBreakerConfig = BreakerConfig{
	WindowSize:       100,
	FailureThreshold: 50,
	ResetTimeout:     30 * time.Second,
}

// Transition is a state change of the breaker.
type Transition struct {
	From      CircuitState
	To        CircuitState
	Failures  int
	Timestamp time.Time
}

// CircuitBreaker tracks a rolling window of outcomes and blocks new work
// once failures in the window reach the threshold.
type CircuitBreaker struct {
	mu sync.Mutex

	config      BreakerConfig
	state       CircuitState
	window      []bool // ring buffer, true = failure
	next        int
	filled      int
	failures    int
	lastFailure time.Time

	now      func() time.Time
	onChange func(Transition)
}

// NewCircuitBreaker creates a closed breaker. Non-positive fields fall back to defaults.
func NewCircuitBreaker(config BreakerConfig) *CircuitBreaker {
	if config.WindowSize <= 0 {
		config.WindowSize = DefaultBreakerConfig.WindowSize
	}
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultBreakerConfig.FailureThreshold
	}
	if config.FailureThreshold > config.WindowSize {
		config.FailureThreshold = config.WindowSize
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = DefaultBreakerConfig.ResetTimeout
	}
	return &CircuitBreaker{
		config: config,
		state:  StateClosed,
		window: make([]bool, config.WindowSize),
		now:    time.Now,
	}
}

// WithClock replaces the time source.
func (cb *CircuitBreaker) WithClock(now func() time.Time) *CircuitBreaker {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.now = now
	return cb
}

// SetStateChangeCallback registers fn to be called after each transition.
func (cb *CircuitBreaker) SetStateChangeCallback(fn func(Transition)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onChange = fn
}

// ResetTimeout returns the configured cooldown.
func (cb *CircuitBreaker) ResetTimeout() time.Duration {
	return cb.config.ResetTimeout
}

// IsOpen reports whether new work must be blocked. An open breaker whose
// cooldown has elapsed moves to half-open and lets one trial request through.
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	var t *Transition
	open := false
	if cb.state == StateOpen {
		if cb.now().Sub(cb.lastFailure) >= cb.config.ResetTimeout {
			t = cb.transitionLocked(StateHalfOpen)
		} else {
			open = true
		}
	}
	fn := cb.onChange
	cb.mu.Unlock()

	notify(fn, t)
	return open
}

// RecordSuccess pushes a success into the window. A half-open breaker closes.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	cb.pushLocked(false)
	var t *Transition
	if cb.state == StateHalfOpen {
		t = cb.transitionLocked(StateClosed)
		cb.clearLocked()
	}
	fn := cb.onChange
	cb.mu.Unlock()

	notify(fn, t)
}

// RecordFailure pushes a failure into the window and opens the breaker when
// the threshold is reached (or immediately when half-open).
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	cb.pushLocked(true)
	cb.lastFailure = cb.now()
	var t *Transition
	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.config.FailureThreshold {
			t = cb.transitionLocked(StateOpen)
		}
	case StateHalfOpen:
		t = cb.transitionLocked(StateOpen)
	}
	fn := cb.onChange
	cb.mu.Unlock()

	notify(fn, t)
}

// State returns the current state without side effects.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the number of failures in the window.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset closes the breaker and clears the window.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	var t *Transition
	if cb.state != StateClosed {
		t = cb.transitionLocked(StateClosed)
	}
	cb.clearLocked()
	fn := cb.onChange
	cb.mu.Unlock()

	notify(fn, t)
}

func (cb *CircuitBreaker) pushLocked(failed bool) {
	if cb.filled == len(cb.window) && cb.window[cb.next] {
		cb.failures--
	}
	cb.window[cb.next] = failed
	if failed {
		cb.failures++
	}
	cb.next = (cb.next + 1) % len(cb.window)
	if cb.filled < len(cb.window) {
		cb.filled++
	}
}

func (cb *CircuitBreaker) clearLocked() {
	for i := range cb.window {
		cb.window[i] = false
	}
	cb.next, cb.filled, cb.failures = 0, 0, 0
}

func (cb *CircuitBreaker) transitionLocked(to CircuitState) *Transition {
	t := &Transition{
		From:      cb.state,
		To:        to,
		Failures:  cb.failures,
		Timestamp: cb.now(),
	}
	cb.state = to
	return t
}

func notify(fn func(Transition), t *Transition) {
	if fn != nil && t != nil {
		fn(*t)
	}
}
