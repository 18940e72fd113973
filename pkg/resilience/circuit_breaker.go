package resilience

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/smefinder/smefinder/pkg/logging"
)

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	// StateClosed - circuit is closed, requests are allowed
	StateClosed CircuitState = iota
	// StateOpen - circuit is open, requests are rejected
	StateOpen
	// StateHalfOpen - circuit is half-open, a single trial request is allowed
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	// Name of the circuit breaker for logging/metrics
	Name string
	// FailureThreshold is the number of consecutive failures that opens
	// the circuit
	FailureThreshold int
	// Cooldown is the period of the open state, after which a single
	// trial call is allowed through
	Cooldown time.Duration
	// OnStateChange is called whenever the state of the circuit breaker changes
	OnStateChange func(name string, from CircuitState, to CircuitState)
}

// CircuitBreaker suspends calls to a degraded upstream after repeated
// failures and probes recovery after a cooldown. One instance is shared by
// all calls to the same logical upstream within the process; it must be
// safe under concurrent use.
type CircuitBreaker struct {
	name          string
	threshold     int
	cooldown      time.Duration
	onStateChange func(name string, from CircuitState, to CircuitState)

	mutex         sync.Mutex
	state         CircuitState
	failures      int
	lastFailure   time.Time
	trialInFlight bool

	logger *logging.Logger
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 60 * time.Second
	}

	return &CircuitBreaker{
		name:          config.Name,
		threshold:     config.FailureThreshold,
		cooldown:      config.Cooldown,
		onStateChange: config.OnStateChange,
		state:         StateClosed,
		logger:        logging.GetLogger(),
	}
}

// Allow reports whether a call may proceed. It must be consulted before
// every attempt, including the first. When the cooldown has elapsed in the
// open state it transitions to half-open and admits exactly one trial call;
// concurrent callers during the trial are rejected.
func (cb *CircuitBreaker) Allow() error {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Since(cb.lastFailure) > cb.cooldown {
			cb.setState(StateHalfOpen)
			cb.trialInFlight = true
			return nil
		}
		return &CircuitBreakerError{Name: cb.name, State: StateOpen}
	case StateHalfOpen:
		if cb.trialInFlight {
			return &CircuitBreakerError{Name: cb.name, State: StateHalfOpen}
		}
		cb.trialInFlight = true
		return nil
	}
	return nil
}

// ReleaseTrial frees the half-open trial slot without recording an
// outcome. Called when an admitted call ends with a result that says
// nothing about upstream health (rate limiting, caller cancellation), so
// the next Allow can admit a fresh trial instead of rejecting forever.
func (cb *CircuitBreaker) ReleaseTrial() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.trialInFlight = false
}

// RecordSuccess records a successful call outcome
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failures = 0
	cb.trialInFlight = false
	if cb.state != StateClosed {
		cb.setState(StateClosed)
	}
}

// RecordFailure records a failed call outcome
func (cb *CircuitBreaker) RecordFailure() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failures++
	cb.lastFailure = time.Now()
	cb.trialInFlight = false

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.threshold {
			cb.setState(StateOpen)
		}
	case StateHalfOpen:
		cb.setState(StateOpen)
	}
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() CircuitState {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

// ConsecutiveFailures returns the current consecutive-failure count
func (cb *CircuitBreaker) ConsecutiveFailures() int {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.failures
}

// Name returns the name of the circuit breaker
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// setState transitions the state. Caller holds the mutex.
func (cb *CircuitBreaker) setState(state CircuitState) {
	if cb.state == state {
		return
	}

	prev := cb.state
	cb.state = state

	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, prev, state)
	}

	cb.logger.Info("Circuit breaker state changed",
		"name", cb.name,
		"from", prev.String(),
		"to", state.String(),
		"consecutive_failures", cb.failures,
	)
}

// CircuitBreakerError represents an error when the circuit breaker rejects
// a call without a network attempt
type CircuitBreakerError struct {
	Name  string
	State CircuitState
}

func (e *CircuitBreakerError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is %s", e.Name, e.State.String())
}

// IsCircuitBreakerError checks if an error is a circuit breaker rejection
func IsCircuitBreakerError(err error) bool {
	var cbErr *CircuitBreakerError
	return errors.As(err, &cbErr)
}
