package judge

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestPanel builds a panel with an injected call function and fast
// backoffs. No test in this package touches the network.
func newTestPanel(t *testing.T, call CallFunc) *Panel {
	t.Helper()
	p, err := NewPanel(&Config{
		Retry: RetryConfig{
			MaxRetries:        2,
			InitialBackoff:    time.Millisecond,
			MaxBackoff:        5 * time.Millisecond,
			BackoffMultiplier: 2.0,
			Timeout:           time.Second,
		},
		Call: call,
	})
	require.NoError(t, err)
	return p
}

func TestCircuitBreakerOpensAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, 2, 50*time.Millisecond)

	assert.NoError(t, cb.Allow())
	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, CircuitClosed, cb.GetState(), "below threshold should stay closed")

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.GetState(), "threshold failure should open circuit")
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)
}

func TestCircuitBreakerRecovery(t *testing.T) {
	cb := NewCircuitBreaker(1, 2, 20*time.Millisecond)

	cb.RecordFailure()
	require.Equal(t, CircuitOpen, cb.GetState())

	time.Sleep(30 * time.Millisecond)

	// First Allow after the open timeout transitions to half-open
	assert.NoError(t, cb.Allow())
	assert.Equal(t, CircuitHalfOpen, cb.GetState())

	cb.RecordSuccess()
	assert.Equal(t, CircuitHalfOpen, cb.GetState(), "one success should not close yet")
	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.GetState(), "success threshold should close circuit")

	_, failures, _ := cb.GetMetrics()
	assert.Equal(t, 0, failures, "closing should reset failure count")
}

func TestCircuitBreakerReopensOnHalfOpenFailure(t *testing.T) {
	cb := NewCircuitBreaker(1, 2, 10*time.Millisecond)

	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, cb.Allow())
	require.Equal(t, CircuitHalfOpen, cb.GetState())

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.GetState(), "failure while probing should reopen")
}

func TestCircuitBreakerSuccessResetsClosedFailures(t *testing.T) {
	cb := NewCircuitBreaker(3, 1, time.Second)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, CircuitClosed, cb.GetState(), "success should reset the failure streak")
}

func TestRetryStopsOnNonRetriableError(t *testing.T) {
	var attempts atomic.Int32
	p := newTestPanel(t, func(ctx context.Context, prompt, model string, maxTokens int) (string, Usage, error) {
		attempts.Add(1)
		return "", Usage{}, errors.New("401 unauthorized")
	})

	err := p.retryWithBackoff(context.Background(), "test_op", func(ctx context.Context) error {
		_, _, err := p.call(ctx, "prompt", p.model, 100)
		return err
	})

	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load(), "non-retriable error should not be retried")
}

func TestRetryExhaustsAttempts(t *testing.T) {
	var attempts atomic.Int32
	p := newTestPanel(t, func(ctx context.Context, prompt, model string, maxTokens int) (string, Usage, error) {
		attempts.Add(1)
		return "", Usage{}, errors.New("503 service unavailable")
	})

	err := p.retryWithBackoff(context.Background(), "test_op", func(ctx context.Context) error {
		_, _, err := p.call(ctx, "prompt", p.model, 100)
		return err
	})

	require.Error(t, err)
	assert.Equal(t, int32(3), attempts.Load(), "MaxRetries=2 means 3 attempts")
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestRetrySucceedsAfterTransientFailure(t *testing.T) {
	var attempts atomic.Int32
	p := newTestPanel(t, func(ctx context.Context, prompt, model string, maxTokens int) (string, Usage, error) {
		if attempts.Add(1) == 1 {
			return "", Usage{}, errors.New("429 rate limit exceeded")
		}
		return "ok", Usage{}, nil
	})

	err := p.retryWithBackoff(context.Background(), "test_op", func(ctx context.Context) error {
		_, _, err := p.call(ctx, "prompt", p.model, 100)
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestRetryOpenCircuitFailsFast(t *testing.T) {
	var attempts atomic.Int32
	p, err := NewPanel(&Config{
		Retry: RetryConfig{
			MaxRetries:            2,
			InitialBackoff:        time.Millisecond,
			MaxBackoff:            5 * time.Millisecond,
			BackoffMultiplier:     2.0,
			Timeout:               time.Second,
			CircuitBreakerEnabled: true,
			FailureThreshold:      1,
			SuccessThreshold:      1,
			OpenTimeout:           time.Minute,
		},
		Call: func(ctx context.Context, prompt, model string, maxTokens int) (string, Usage, error) {
			attempts.Add(1)
			return "", Usage{}, errors.New("500 internal server error")
		},
	})
	require.NoError(t, err)

	call := func(ctx context.Context) error {
		_, _, err := p.call(ctx, "prompt", p.model, 100)
		return err
	}

	// First operation trips the breaker on its first failure, then the
	// retry loop's next Allow fails fast.
	err = p.retryWithBackoff(context.Background(), "first", call)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(1), attempts.Load())

	// Fresh operations are blocked without any call at all
	err = p.retryWithBackoff(context.Background(), "second", call)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(1), attempts.Load())
	assert.Error(t, p.HealthCheck())
}

func TestIsRetriableError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		shouldRetry bool
	}{
		{"nil error", nil, false},
		{"rate limit", errors.New("429 rate limit exceeded"), true},
		{"server error", errors.New("500 internal server error"), true},
		{"bad gateway", errors.New("received bad gateway from upstream"), true},
		{"timeout", context.DeadlineExceeded, true},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
		{"malformed response", fmt.Errorf("%w: missing criterion", errMalformedResponse), true},
		{"auth error", errors.New("401 unauthorized"), false},
		{"bad request", errors.New("400 bad request"), false},
		{"not found", errors.New("404 not found"), false},
		{"unknown error", errors.New("mysterious failure"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.shouldRetry, isRetriableError(tt.err))
		})
	}
}

func TestWithJitterBounds(t *testing.T) {
	base := 100 * time.Millisecond
	for i := 0; i < 100; i++ {
		d := withJitter(base)
		assert.GreaterOrEqual(t, d, base)
		assert.LessOrEqual(t, d, base+base/4)
	}
}

func TestNewPanelAppliesDefaults(t *testing.T) {
	t.Setenv("GAUNTLET_MODEL_DEFAULT", "")
	p, err := NewPanel(&Config{
		Call: func(ctx context.Context, prompt, model string, maxTokens int) (string, Usage, error) {
			return "", Usage{}, nil
		},
	})
	require.NoError(t, err)

	assert.Equal(t, ModelSonnet, p.model)
	assert.Equal(t, 3, p.retry.MaxRetries)
	assert.NotNil(t, p.circuitBreaker, "defaults enable the circuit breaker")
	assert.NotNil(t, p.concurrencySem)
	assert.NotNil(t, p.limiter)
	assert.NoError(t, p.HealthCheck())
}

func TestNewPanelRequiresKeyWithoutInjectedCall(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := NewPanel(&Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY")
}
