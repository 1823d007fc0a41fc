package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MythologIQ/QoreLogic-sub000/pkg/resilience"
)

func TestCircuitBreakerOpensAfterMaxFailures(t *testing.T) {
	cb := resilience.NewCircuitBreaker(resilience.BreakerConfig{MaxFailures: 3, Timeout: time.Hour})
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		err := cb.Execute(context.Background(), func(ctx context.Context) error { return boom })
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, resilience.StateOpen, cb.State())

	err := cb.Execute(context.Background(), func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen, "an open circuit must reject without calling fn")
}

func TestCircuitBreakerHalfOpensAfterTimeout(t *testing.T) {
	cb := resilience.NewCircuitBreaker(resilience.BreakerConfig{MaxFailures: 1, Timeout: time.Millisecond, HalfOpenMax: 1})
	boom := errors.New("boom")

	err := cb.Execute(context.Background(), func(ctx context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
	require.Equal(t, resilience.StateOpen, cb.State())

	time.Sleep(5 * time.Millisecond)

	err = cb.Execute(context.Background(), func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, resilience.StateClosed, cb.State(), "a single success meeting HalfOpenMax must close the circuit")
}

func TestCircuitBreakerStaysClosedOnSuccess(t *testing.T) {
	cb := resilience.NewCircuitBreaker(resilience.DefaultTier3Config())
	for i := 0; i < 10; i++ {
		err := cb.Execute(context.Background(), func(ctx context.Context) error { return nil })
		require.NoError(t, err)
	}
	assert.Equal(t, resilience.StateClosed, cb.State())
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	cfg := resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Multiplier: 2}

	err := resilience.Retry(context.Background(), cfg, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryExhaustsAttemptsAndReturnsLastError(t *testing.T) {
	attempts := 0
	cfg := resilience.RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
	persistent := errors.New("persistent")

	err := resilience.Retry(context.Background(), cfg, func(ctx context.Context) error {
		attempts++
		return persistent
	})
	assert.ErrorIs(t, err, persistent)
	assert.Equal(t, 2, attempts)
}

func TestRetryStopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := resilience.RetryConfig{MaxAttempts: 5, InitialDelay: 10 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}

	attempts := 0
	err := resilience.Retry(ctx, cfg, func(ctx context.Context) error {
		attempts++
		return errors.New("always fails")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts, "the first attempt runs before the post-attempt cancellation check")
}
