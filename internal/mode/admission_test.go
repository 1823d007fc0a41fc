package mode_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MythologIQ/QoreLogic-sub000/internal/domain"
	"github.com/MythologIQ/QoreLogic-sub000/internal/mode"
)

func testThresholds() mode.Thresholds {
	return mode.Thresholds{CPUHighWatermark: 70, CPULowWatermark: 50, QueueSoft: 3, QueueHard: 4, QueueCapacity: 4}
}

func TestQueueAdmitReservesL3Capacity(t *testing.T) {
	q := mode.NewQueue(testThresholds()) // capacity 4, reserve = floor(4*0.25) = 1
	// fill the general (non-reserve) capacity of 3 with L2 interactive requests
	for i := 0; i < 3; i++ {
		res, err := q.Admit(mode.PriorityInteractive, domain.RiskL2)
		require.NoError(t, err)
		assert.True(t, res.Admitted)
	}
	_, err := q.Admit(mode.PriorityInteractive, domain.RiskL2)
	assert.Error(t, err, "general capacity must be exhausted once the reserve-excluded slots are full")

	res, err := q.Admit(mode.PriorityBatch, domain.RiskL3)
	require.NoError(t, err)
	assert.True(t, res.Admitted, "an L3 request must still be admitted from the reserved slice")
}

func TestQueueAdmitL3ExhaustsReserve(t *testing.T) {
	q := mode.NewQueue(testThresholds()) // reserve = 1
	_, err := q.Admit(mode.PriorityBatch, domain.RiskL3)
	require.NoError(t, err)
	_, err = q.Admit(mode.PriorityBatch, domain.RiskL3)
	assert.Error(t, err, "a second L3 request must not exceed the reserve")
}

func TestQueueAdmitSoftBackpressureWarning(t *testing.T) {
	q := mode.NewQueue(testThresholds()) // soft=3, general capacity=3
	var lastWarning string
	for i := 0; i < 3; i++ {
		res, err := q.Admit(mode.PriorityInteractive, domain.RiskL1)
		require.NoError(t, err)
		lastWarning = res.Warning
	}
	assert.Equal(t, "SOFT_BACKPRESSURE", lastWarning)
}

func TestQueueReleaseInteractiveFreesSlot(t *testing.T) {
	q := mode.NewQueue(testThresholds())
	_, err := q.Admit(mode.PriorityInteractive, domain.RiskL1)
	require.NoError(t, err)
	assert.Equal(t, 1, q.Depth())
	q.Release(mode.PriorityInteractive, domain.RiskL1)
	assert.Equal(t, 0, q.Depth())
}

func TestQueueAdmitRateLimitsGeneralCapacityIndependentOfDepth(t *testing.T) {
	// soft=3 sizes the limiter's burst to 3 tokens; release immediately
	// after each admit so slot-capacity never binds, isolating the
	// limiter's own throttling of burst throughput.
	q := mode.NewQueue(testThresholds())
	for i := 0; i < 3; i++ {
		res, err := q.Admit(mode.PriorityInteractive, domain.RiskL1)
		require.NoError(t, err)
		assert.True(t, res.Admitted)
		q.Release(mode.PriorityInteractive, domain.RiskL1)
	}
	_, err := q.Admit(mode.PriorityInteractive, domain.RiskL1)
	assert.Error(t, err, "a fourth admission within the same instant must be rate limited even with free slot capacity")
}

func TestQueueDepthIncludesL3InUse(t *testing.T) {
	q := mode.NewQueue(testThresholds())
	_, err := q.Admit(mode.PriorityBatch, domain.RiskL3)
	require.NoError(t, err)
	assert.Equal(t, 1, q.Depth())
	q.Release(mode.PriorityBatch, domain.RiskL3)
	assert.Equal(t, 0, q.Depth())
}
