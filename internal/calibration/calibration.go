// Package calibration tracks per-agent forecasting calibration: a
// rolling Brier score over the last 100 samples, triggering the
// honest-error track when drift exceeds the configured threshold.
package calibration

import (
	"context"
	"fmt"
	"time"

	"github.com/MythologIQ/QoreLogic-sub000/internal/domain"
	"github.com/MythologIQ/QoreLogic-sub000/internal/store"
)

// Manager records calibration samples and computes rolling scores.
type Manager struct {
	st store.Store
}

// New constructs a Manager.
func New(st store.Store) *Manager {
	return &Manager{st: st}
}

// RecordSample stores one (confidence, correctness) observation.
func (m *Manager) RecordSample(ctx context.Context, agentID string, confidence float64, correct bool) error {
	sample := &domain.CalibrationSample{AgentID: agentID, ClaimedConfidence: confidence, Correct: correct, RecordedAt: time.Now()}
	if err := m.st.RecordCalibrationSample(ctx, sample); err != nil {
		return fmt.Errorf("record calibration sample: %w", err)
	}
	return nil
}

// BrierScore computes the rolling Brier score over the last window of
// samples for agentID.
func (m *Manager) BrierScore(ctx context.Context, agentID string) (float64, error) {
	samples, err := m.st.RecentCalibrationSamples(ctx, agentID, domain.CalibrationWindowSize)
	if err != nil {
		return 0, fmt.Errorf("load calibration samples: %w", err)
	}
	return domain.BrierScore(samples), nil
}

// NeedsHonestErrorTrack reports whether an agent's current Brier score
// exceeds the drift threshold that triggers the honest-error track.
func (m *Manager) NeedsHonestErrorTrack(ctx context.Context, agentID string) (bool, float64, error) {
	score, err := m.BrierScore(ctx, agentID)
	if err != nil {
		return false, 0, err
	}
	return score > domain.BrierDriftThreshold, score, nil
}
