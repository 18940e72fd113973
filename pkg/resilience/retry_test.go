package resilience

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/smefinder/smefinder/pkg/errors"
)

func TestDelayFor_BackoffSequence(t *testing.T) {
	cfg := RetryConfig{
		BaseDelay:         1 * time.Second,
		BackoffMultiplier: 2.0,
		MaxDelay:          32 * time.Second,
	}

	expected := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
		32 * time.Second,
		32 * time.Second,
	}

	for attempt, want := range expected {
		assert.Equal(t, want, cfg.DelayFor(attempt), "attempt %d", attempt)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"rate limit", errors.NewRateLimitError("throttled"), KindRateLimited},
		{"timeout", errors.NewTimeoutError("agent invoke"), KindTransient},
		{"external", errors.NewExternalError("zendesk", "503"), KindTransient},
		{"validation", errors.NewValidationError("bad input"), KindPermanent},
		{"authentication", errors.NewAuthenticationError("bad token"), KindPermanent},
		{"not found", errors.NewNotFoundError("ticket"), KindPermanent},
		{"unavailable", errors.NewUnavailableError("bedrock-agent"), KindPermanent},
		{"internal", errors.NewInternalError("boom"), KindUnknown},
		{"plain error", stderrors.New("boom"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestClassify_WrappedError(t *testing.T) {
	err := errors.NewRateLimitError("throttled").WithRetryAfter(30 * time.Second)
	assert.Equal(t, KindRateLimited, Classify(err))
	assert.Equal(t, 30*time.Second, errors.GetRetryAfter(err))
}
