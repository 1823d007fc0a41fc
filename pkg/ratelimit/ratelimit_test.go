package ratelimit_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/MythologIQ/QoreLogic-sub000/pkg/ratelimit"
)

func TestNewFillsDefaultsForNonPositiveFields(t *testing.T) {
	l := ratelimit.New(ratelimit.Config{})
	assert.True(t, l.Allow(), "a fresh limiter with default burst must allow its first request")
}

func TestAllowExhaustsBurstThenBlocks(t *testing.T) {
	l := ratelimit.New(ratelimit.Config{RequestsPerSecond: 1, Burst: 2})
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow(), "a third immediate request must exceed the burst of 2")
}

func TestResetRefillsBucket(t *testing.T) {
	l := ratelimit.New(ratelimit.Config{RequestsPerSecond: 1, Burst: 1})
	require := assert.New(t)
	require.True(l.Allow())
	require.False(l.Allow())

	l.Reset()
	require.True(l.Allow(), "reset must refill the bucket to full burst")
}

func TestEverySecondsConfigComputesRate(t *testing.T) {
	cfg := ratelimit.EverySecondsConfig(500*time.Millisecond, 4)
	assert.InDelta(t, 2.0, cfg.RequestsPerSecond, 0.0001)
	assert.Equal(t, 4, cfg.Burst)
}
