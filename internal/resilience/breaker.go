package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when a call is rejected because the breaker
// is open or the half-open trial budget is exhausted. Callers should treat
// it as transient and retry later.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerState represents the circuit breaker state
type BreakerState string

const (
	StateClosed   BreakerState = "closed"    // Calls pass through, failures counted
	StateOpen     BreakerState = "open"      // Calls rejected immediately
	StateHalfOpen BreakerState = "half_open" // Limited trial calls admitted
)

// BreakerConfig holds circuit breaker configuration
type BreakerConfig struct {
	Name             string        `json:"name"`
	FailureThreshold int           `json:"failure_threshold"` // Consecutive failures before opening
	RecoveryTimeout  time.Duration `json:"recovery_timeout"`  // Open duration before half-open
	TestCalls        int           `json:"test_calls"`        // Trial calls granted in half-open

	// IsFailure decides whether an error counts toward the failure
	// threshold. Errors it rejects pass through without state changes.
	// Nil counts every error.
	IsFailure func(error) bool `json:"-"`
}

// DefaultBreakerConfig returns safe defaults
func DefaultBreakerConfig(name string) *BreakerConfig {
	return &BreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		TestCalls:        1,
	}
}

// CircuitBreaker guards a fallible call site. One instance per protected
// dependency; all state transitions happen under a single mutex.
type CircuitBreaker struct {
	config          *BreakerConfig
	state           BreakerState
	failureCount    int
	lastFailureTime time.Time
	testCallsLeft   int
	mu              sync.Mutex
	onStateChange   func(from, to BreakerState)
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config *BreakerConfig) *CircuitBreaker {
	if config == nil {
		config = DefaultBreakerConfig("default")
	}
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.TestCalls <= 0 {
		config.TestCalls = 1
	}

	return &CircuitBreaker{
		config: config,
		state:  StateClosed,
	}
}

// OnStateChange sets a callback invoked after every state transition
func (cb *CircuitBreaker) OnStateChange(handler func(from, to BreakerState)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = handler
}

// Execute runs fn through the breaker. It returns ErrCircuitOpen without
// invoking fn when the breaker rejects the call.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}

	err := fn(ctx)
	cb.record(err)
	return err
}

// admit decides whether a call may proceed, moving OPEN to HALF_OPEN once
// the recovery timeout has elapsed.
func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Since(cb.lastFailureTime) < cb.config.RecoveryTimeout {
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
		cb.testCallsLeft = cb.config.TestCalls
		cb.testCallsLeft--
		return nil
	case StateHalfOpen:
		if cb.testCallsLeft <= 0 {
			return ErrCircuitOpen
		}
		cb.testCallsLeft--
		return nil
	}
	return nil
}

// record applies the call outcome to the state machine
func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		// A success in half-open closes the breaker; in closed it clears
		// the consecutive-failure streak.
		cb.failureCount = 0
		if cb.state == StateHalfOpen {
			cb.transition(StateClosed)
		}
		return
	}

	if cb.config.IsFailure != nil && !cb.config.IsFailure(err) {
		// Non-qualifying error, pass through untouched
		return
	}

	cb.lastFailureTime = time.Now()

	switch cb.state {
	case StateHalfOpen:
		// Trial failed, straight back to open
		cb.transition(StateOpen)
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.transition(StateOpen)
		}
	}
}

func (cb *CircuitBreaker) transition(to BreakerState) {
	from := cb.state
	cb.state = to
	if cb.onStateChange != nil && from != to {
		go cb.onStateChange(from, to)
	}
}

// Reset manually closes the breaker and clears the failure count
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failureCount = 0
	cb.testCallsLeft = 0
	cb.transition(StateClosed)
}

// State returns the current breaker state
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns current breaker statistics
func (cb *CircuitBreaker) Stats() map[string]interface{} {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return map[string]interface{}{
		"name":              cb.config.Name,
		"state":             string(cb.state),
		"failure_count":     cb.failureCount,
		"failure_threshold": cb.config.FailureThreshold,
		"last_failure_time": cb.lastFailureTime,
		"test_calls_left":   cb.testCallsLeft,
	}
}
