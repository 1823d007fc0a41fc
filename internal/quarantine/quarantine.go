// Package quarantine manages time-boxed blocks on agents following
// honest-error or manipulation-track violations.
package quarantine

import (
	"context"
	"fmt"
	"time"

	"github.com/MythologIQ/QoreLogic-sub000/internal/domain"
	"github.com/MythologIQ/QoreLogic-sub000/internal/store"
	"github.com/MythologIQ/QoreLogic-sub000/pkg/errs"
)

// Manager starts and checks agent quarantines.
type Manager struct {
	st store.Store
}

// New constructs a Manager.
func New(st store.Store) *Manager {
	return &Manager{st: st}
}

// Start records a quarantine for agentID on the given track, returning
// its release time.
func (m *Manager) Start(ctx context.Context, agentID string, track domain.Track, reason string) (time.Time, error) {
	rec := domain.NewQuarantineRecord(agentID, track, reason, time.Now())
	if err := m.st.CreateQuarantine(ctx, rec); err != nil {
		return time.Time{}, fmt.Errorf("start quarantine: %w", err)
	}

	agent, err := m.st.GetAgent(ctx, agentID)
	if err != nil {
		return time.Time{}, fmt.Errorf("load agent: %w", err)
	}
	agent.QuarantineUntil = rec.Release
	if track == domain.TrackManipulation {
		agent.Influence = domain.ClampInfluence(agent.Influence - domain.ManipulationQuarantineInfluencePenalty)
	}
	if err := m.st.UpdateAgent(ctx, agent); err != nil {
		return time.Time{}, fmt.Errorf("persist quarantine on agent: %w", err)
	}
	return rec.Release, nil
}

// Check returns AGENT_QUARANTINED if agentID is currently blocked; every
// request dispatch path must call this before running a handler.
func (m *Manager) Check(ctx context.Context, agentID string) error {
	rec, err := m.st.ActiveQuarantine(ctx, agentID)
	if err == store.ErrNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("check quarantine: %w", err)
	}
	return errs.AgentQuarantined(agentID, rec.Release.Format(time.RFC3339))
}

// SweepExpired lists quarantines past their release time, used by the
// periodic sweep to emit QUARANTINE_RELEASE events; release is computed
// from the stored timestamps, so this never mutates state itself.
func (m *Manager) SweepExpired(ctx context.Context, asOf time.Time) ([]*domain.QuarantineRecord, error) {
	return m.st.ListExpiredQuarantines(ctx, asOf)
}
