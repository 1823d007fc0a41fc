package mode_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MythologIQ/QoreLogic-sub000/internal/domain"
	"github.com/MythologIQ/QoreLogic-sub000/internal/mode"
	"github.com/MythologIQ/QoreLogic-sub000/internal/store/memory"
	"github.com/MythologIQ/QoreLogic-sub000/pkg/logger"
)

func newTestController(t *testing.T) *mode.Controller {
	t.Helper()
	c, err := mode.New(context.Background(), memory.New(), logger.New("test", "fatal", "json"), testThresholds())
	require.NoError(t, err)
	return c
}

func TestControllerDefaultsToNormal(t *testing.T) {
	c := newTestController(t)
	assert.Equal(t, domain.ModeNormal, c.Current())
	assert.Equal(t, 1.0, c.EffectivePolicy().L1Sampling)
}

func TestSetModeSafeSuspendsL1L2(t *testing.T) {
	c := newTestController(t)
	policy, err := c.SetMode(context.Background(), domain.ModeSafe, "manual_override")
	require.NoError(t, err)
	assert.True(t, policy.L1Suspended)
	assert.True(t, policy.L2Suspended)
	assert.True(t, policy.L3HumanOnly)
	assert.Equal(t, domain.ModeSafe, c.Current())
}

func TestSetModeLeanSamplesL1(t *testing.T) {
	c := newTestController(t)
	policy, err := c.SetMode(context.Background(), domain.ModeLean, "cpu_sustained_high")
	require.NoError(t, err)
	assert.Equal(t, 0.10, policy.L1Sampling)
}

func TestUpdateQueueDepthEntersSurgeOnHardThreshold(t *testing.T) {
	c := newTestController(t)
	require.NoError(t, c.UpdateQueueDepth(context.Background(), 10)) // hard=4
	assert.Equal(t, domain.ModeSurge, c.Current())
}

func TestUpdateQueueDepthExitsSurgeWhenDrained(t *testing.T) {
	c := newTestController(t)
	require.NoError(t, c.UpdateQueueDepth(context.Background(), 10))
	require.Equal(t, domain.ModeSurge, c.Current())
	require.NoError(t, c.UpdateQueueDepth(context.Background(), 2))
	assert.Equal(t, domain.ModeNormal, c.Current())
}

func TestUpdateQueueDepthIgnoredInSafeMode(t *testing.T) {
	c := newTestController(t)
	_, err := c.SetMode(context.Background(), domain.ModeSafe, "hash_tampering_detected")
	require.NoError(t, err)
	require.NoError(t, c.UpdateQueueDepth(context.Background(), 100))
	assert.Equal(t, domain.ModeSafe, c.Current(), "queue-depth triggers must never override a SAFE mode lockdown")
}
