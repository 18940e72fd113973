package resilience

import (
	"math"
	"time"

	"github.com/smefinder/smefinder/pkg/errors"
)

// ErrorKind classifies a failed call for retry purposes
type ErrorKind int

const (
	// KindRateLimited - upstream explicitly signals backpressure, possibly
	// with a wait hint
	KindRateLimited ErrorKind = iota
	// KindTransient - timeout, 5xx-class, service unavailable
	KindTransient
	// KindPermanent - validation, auth, not-found
	KindPermanent
	// KindUnknown - anything else; never retried automatically
	KindUnknown
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Classify maps an error onto a retry class using the application error
// taxonomy. Errors outside the taxonomy are Unknown.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	switch errors.GetType(err) {
	case errors.ErrorTypeRateLimit:
		return KindRateLimited
	case errors.ErrorTypeTimeout, errors.ErrorTypeExternal:
		return KindTransient
	case errors.ErrorTypeValidation, errors.ErrorTypeAuthentication,
		errors.ErrorTypeNotFound, errors.ErrorTypeUnavailable:
		return KindPermanent
	default:
		return KindUnknown
	}
}

// RetryConfig holds configuration for retry logic
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first
	MaxAttempts int
	// BaseDelay is the delay before the first retry
	BaseDelay time.Duration
	// BackoffMultiplier is the multiplier for exponential backoff
	BackoffMultiplier float64
	// MaxDelay caps the computed backoff delay
	MaxDelay time.Duration
	// OnRetry is called before each retry wait
	OnRetry func(attempt int, kind ErrorKind, delay time.Duration)
}

// DefaultRetryConfig returns the retry tuning used for agent calls
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		BaseDelay:         1 * time.Second,
		BackoffMultiplier: 2.0,
		MaxDelay:          32 * time.Second,
	}
}

// normalize fills zero values with safe defaults
func (c RetryConfig) normalize() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 100 * time.Millisecond
	}
	if c.BackoffMultiplier <= 0 {
		c.BackoffMultiplier = 2.0
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	return c
}

// DelayFor computes the backoff wait for the given zero-based attempt
// index: min(base * multiplier^attempt, max).
func (c RetryConfig) DelayFor(attempt int) time.Duration {
	delay := float64(c.BaseDelay) * math.Pow(c.BackoffMultiplier, float64(attempt))
	if delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}
	return time.Duration(delay)
}
