package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smefinder/smefinder/pkg/errors"
)

// newTestClient replaces the real sleep so retry waits are recorded
// instead of slept.
func newTestClient(upstream string, retry RetryConfig, waits *[]time.Duration, opts ...ClientOption) *Client {
	c := NewClient(upstream, retry, opts...)
	c.sleep = func(ctx context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
	return c
}

func TestClient_SucceedsFirstAttempt(t *testing.T) {
	var waits []time.Duration
	c := newTestClient("test", DefaultRetryConfig(), &waits)

	calls := 0
	result, err := c.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, calls)
	assert.Empty(t, waits)
}

func TestClient_RetriesTransientWithBackoff(t *testing.T) {
	var waits []time.Duration
	c := newTestClient("test", RetryConfig{
		MaxAttempts:       4,
		BaseDelay:         1 * time.Second,
		BackoffMultiplier: 2.0,
		MaxDelay:          32 * time.Second,
	}, &waits)

	calls := 0
	result, err := c.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		if calls < 3 {
			return nil, errors.NewExternalError("upstream", "503")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, waits)
}

func TestClient_RateLimitHintOverridesBackoff(t *testing.T) {
	var waits []time.Duration
	c := newTestClient("test", RetryConfig{
		MaxAttempts:       3,
		BaseDelay:         1 * time.Second,
		BackoffMultiplier: 2.0,
		MaxDelay:          32 * time.Second,
	}, &waits)

	calls := 0
	_, err := c.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		if calls == 1 {
			return nil, errors.NewRateLimitError("throttled").WithRetryAfter(7 * time.Second)
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{7 * time.Second}, waits)
}

func TestClient_RateLimitDoesNotFeedBreaker(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 2,
		Cooldown:         time.Minute,
	})

	var waits []time.Duration
	c := newTestClient("test", RetryConfig{MaxAttempts: 5, BaseDelay: time.Second, BackoffMultiplier: 2, MaxDelay: time.Minute}, &waits, WithBreaker(cb))

	_, err := c.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, errors.NewRateLimitError("throttled")
	})

	require.Error(t, err)
	assert.True(t, IsRetriesExhausted(err))
	assert.Equal(t, 0, cb.ConsecutiveFailures())
	assert.Equal(t, StateClosed, cb.State())
}

func TestClient_RateLimitedTrialDoesNotStickBreaker(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 1,
		Cooldown:         30 * time.Millisecond,
	})
	cb.RecordFailure()
	require.Equal(t, StateOpen, cb.State())
	time.Sleep(40 * time.Millisecond)

	var waits []time.Duration
	c := newTestClient("test", RetryConfig{MaxAttempts: 2, BaseDelay: time.Second, BackoffMultiplier: 2, MaxDelay: time.Minute}, &waits, WithBreaker(cb))

	// The half-open trial ends rate limited on every attempt. That says
	// nothing about upstream health, so the trial slot must be handed back
	// rather than held forever.
	_, err := c.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, errors.NewRateLimitError("throttled")
	})
	require.Error(t, err)
	assert.True(t, IsRetriesExhausted(err))

	calls := 0
	result, err := c.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, calls)
	assert.Equal(t, StateClosed, cb.State())
}

func TestClient_PermanentErrorNotRetried(t *testing.T) {
	var waits []time.Duration
	c := newTestClient("test", DefaultRetryConfig(), &waits)

	calls := 0
	_, err := c.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, errors.NewValidationError("malformed request")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, waits)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestClient_PermanentFailurePolicy(t *testing.T) {
	cbDefault := NewCircuitBreaker(CircuitBreakerConfig{Name: "a", FailureThreshold: 5, Cooldown: time.Minute})
	cbCounting := NewCircuitBreaker(CircuitBreakerConfig{Name: "b", FailureThreshold: 5, Cooldown: time.Minute})

	var waits []time.Duration
	permErr := errors.NewNotFoundError("ticket")

	c := newTestClient("a", DefaultRetryConfig(), &waits, WithBreaker(cbDefault))
	c.Execute(context.Background(), func(ctx context.Context) (interface{}, error) { return nil, permErr })
	assert.Equal(t, 0, cbDefault.ConsecutiveFailures())

	c = newTestClient("b", DefaultRetryConfig(), &waits, WithBreaker(cbCounting), WithPermanentFailurePolicy())
	c.Execute(context.Background(), func(ctx context.Context) (interface{}, error) { return nil, permErr })
	assert.Equal(t, 1, cbCounting.ConsecutiveFailures())
}

func TestClient_ExhaustionWrapsLastError(t *testing.T) {
	var waits []time.Duration
	c := newTestClient("test", RetryConfig{MaxAttempts: 3, BaseDelay: time.Second, BackoffMultiplier: 2, MaxDelay: time.Minute}, &waits)

	calls := 0
	_, err := c.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, errors.NewTimeoutError("agent invoke")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, IsRetriesExhausted(err))
	// The exhaustion wrapper keeps the last error's type so callers can
	// still map it to a status.
	assert.True(t, errors.IsType(err, errors.ErrorTypeTimeout))
}

func TestClient_OpenBreakerRejectsWithoutCalling(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 1,
		Cooldown:         time.Minute,
	})
	cb.RecordFailure()
	require.Equal(t, StateOpen, cb.State())

	var waits []time.Duration
	c := newTestClient("test", DefaultRetryConfig(), &waits, WithBreaker(cb))

	calls := 0
	_, err := c.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		return "should not run", nil
	})

	require.Error(t, err)
	assert.Equal(t, 0, calls)
	assert.True(t, errors.IsType(err, errors.ErrorTypeUnavailable))
}

func TestClient_BreakerTripsDuringRetryLoop(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 2,
		Cooldown:         time.Minute,
	})

	var waits []time.Duration
	c := newTestClient("test", RetryConfig{MaxAttempts: 5, BaseDelay: time.Second, BackoffMultiplier: 2, MaxDelay: time.Minute}, &waits, WithBreaker(cb))

	calls := 0
	_, err := c.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, errors.NewExternalError("upstream", "503")
	})

	// The gate is checked before every attempt; once two transient
	// failures trip the breaker, the third attempt never runs.
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.True(t, errors.IsType(err, errors.ErrorTypeUnavailable))
}

func TestClient_ContextCancelledDuringWait(t *testing.T) {
	c := NewClient("test", RetryConfig{MaxAttempts: 3, BaseDelay: 50 * time.Millisecond, BackoffMultiplier: 2, MaxDelay: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := c.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, errors.NewExternalError("upstream", "503")
	})

	require.ErrorIs(t, err, context.Canceled)
}
