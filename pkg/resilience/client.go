package resilience

import (
	"context"
	"time"

	"github.com/smefinder/smefinder/pkg/errors"
	"github.com/smefinder/smefinder/pkg/logging"
)

// Operation is one outbound call to an upstream
type Operation func(ctx context.Context) (interface{}, error)

// Client wraps outbound calls to a single logical upstream with retry,
// backoff, rate-limit compliance and an optional circuit breaker. One
// Client is constructed per upstream at startup and shared across requests.
type Client struct {
	upstream string
	retry    RetryConfig
	breaker  *CircuitBreaker
	// countPermanent controls whether permanent errors feed the breaker.
	// Availability-scoped breakers (agent calls) leave this false.
	countPermanent bool
	logger         *logging.Logger

	// sleep is replaceable in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithBreaker attaches a circuit breaker to the client
func WithBreaker(cb *CircuitBreaker) ClientOption {
	return func(c *Client) {
		c.breaker = cb
	}
}

// WithPermanentFailurePolicy makes permanent errors count against the
// breaker. Used for upstreams whose breaker is scoped to correctness
// rather than availability.
func WithPermanentFailurePolicy() ClientOption {
	return func(c *Client) {
		c.countPermanent = true
	}
}

// NewClient creates a resilient client for the named upstream
func NewClient(upstream string, retry RetryConfig, opts ...ClientOption) *Client {
	c := &Client{
		upstream: upstream,
		retry:    retry.normalize(),
		logger:   logging.GetLogger(),
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute runs the operation with retry, backoff and circuit-breaker
// discipline. The breaker gate is consulted before every attempt,
// including the first.
func (c *Client) Execute(ctx context.Context, op Operation) (interface{}, error) {
	var lastErr error

	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		if c.breaker != nil {
			if gateErr := c.breaker.Allow(); gateErr != nil {
				return nil, errors.NewUnavailableError(c.upstream).WithCause(gateErr)
			}
		}

		if ctx.Err() != nil {
			c.releaseTrial()
			return nil, ctx.Err()
		}

		result, err := op(ctx)
		if err == nil {
			if c.breaker != nil {
				c.breaker.RecordSuccess()
			}
			if attempt > 0 {
				c.logger.Info("Operation succeeded after retry",
					"upstream", c.upstream,
					"attempt", attempt+1,
				)
			}
			return result, nil
		}

		lastErr = err
		kind := Classify(err)

		switch kind {
		case KindRateLimited:
			// Backpressure is not an upstream health signal; the breaker
			// tally is untouched, but an admitted half-open trial slot must
			// still be handed back.
			c.releaseTrial()
			if attempt == c.retry.MaxAttempts-1 {
				break
			}
			delay := c.retry.DelayFor(attempt)
			if hint := errors.GetRetryAfter(err); hint > 0 {
				// The upstream's explicit wait hint takes precedence over
				// computed backoff.
				delay = hint
			}
			if err := c.waitBeforeRetry(ctx, attempt, kind, delay); err != nil {
				return nil, err
			}
			continue

		case KindTransient:
			if c.breaker != nil {
				c.breaker.RecordFailure()
			}
			if attempt == c.retry.MaxAttempts-1 {
				break
			}
			delay := c.retry.DelayFor(attempt)
			if err := c.waitBeforeRetry(ctx, attempt, kind, delay); err != nil {
				return nil, err
			}
			continue

		case KindPermanent:
			if c.breaker != nil && c.countPermanent {
				c.breaker.RecordFailure()
			} else {
				c.releaseTrial()
			}
			return nil, err

		default:
			if c.breaker != nil {
				c.breaker.RecordFailure()
			}
			return nil, err
		}

		break
	}

	c.logger.Error("Operation failed after all retry attempts",
		"upstream", c.upstream,
		"attempts", c.retry.MaxAttempts,
		"error", lastErr.Error(),
	)

	return nil, errors.NewAppError(errors.GetType(lastErr), "RETRIES_EXHAUSTED",
		"operation failed after all retry attempts").
		WithDetail("upstream", c.upstream).
		WithCause(lastErr)
}

// ExecuteVoid runs an operation that doesn't return a result
func (c *Client) ExecuteVoid(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := c.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, op(ctx)
	})
	return err
}

// releaseTrial hands back an admitted half-open trial slot when the call
// ends without a recordable outcome.
func (c *Client) releaseTrial() {
	if c.breaker != nil {
		c.breaker.ReleaseTrial()
	}
}

func (c *Client) waitBeforeRetry(ctx context.Context, attempt int, kind ErrorKind, delay time.Duration) error {
	c.logger.Debug("Operation failed, retrying",
		"upstream", c.upstream,
		"attempt", attempt+1,
		"max_attempts", c.retry.MaxAttempts,
		"error_kind", kind.String(),
		"delay", delay,
	)

	if c.retry.OnRetry != nil {
		c.retry.OnRetry(attempt, kind, delay)
	}

	return c.sleep(ctx, delay)
}

// IsRetriesExhausted reports whether the error is the terminal wrapper
// produced after the attempt budget ran out
func IsRetriesExhausted(err error) bool {
	return errors.GetCode(err) == "RETRIES_EXHAUSTED"
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
