// Package deferral manages disclosure deferrals: delaying the
// disclosure of a verified-but-harmful fact behind a logged
// justification and a hard, category-bound deadline.
package deferral

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MythologIQ/QoreLogic-sub000/internal/domain"
	"github.com/MythologIQ/QoreLogic-sub000/internal/store"
	"github.com/MythologIQ/QoreLogic-sub000/pkg/errs"
)

// Manager starts, checks, and expires deferral records.
type Manager struct {
	st store.Store
}

// New constructs a Manager.
func New(st store.Store) *Manager {
	return &Manager{st: st}
}

// Request creates a deferral capped at the category's maximum window.
func (m *Manager) Request(ctx context.Context, artifactHash string, category domain.DeferralCategory, reason string) (*domain.DeferralRecord, error) {
	rec := domain.NewDeferralRecord(artifactHash, category, reason, time.Now())
	rec.ID = uuid.NewString()
	if err := m.st.CreateDeferral(ctx, rec); err != nil {
		return nil, fmt.Errorf("request deferral: %w", err)
	}
	return rec, nil
}

// CheckExpiry forces disclosure if the deferral's deadline has passed,
// returning DEFERRAL_EXPIRED so the caller can complete forced
// disclosure; otherwise it is a no-op.
func (m *Manager) CheckExpiry(ctx context.Context, id string) error {
	rec, err := m.st.GetDeferral(ctx, id)
	if err != nil {
		return err
	}
	if !rec.Expired(time.Now()) {
		return nil
	}
	rec.State = domain.DeferralForced
	if err := m.st.UpdateDeferral(ctx, rec); err != nil {
		return fmt.Errorf("force disclosure: %w", err)
	}
	return errs.DeferralExpired(rec.ArtifactHash)
}

// SweepExpired lists active deferrals whose deadline has passed, for the
// periodic sweep to force disclosure in bulk.
func (m *Manager) SweepExpired(ctx context.Context, asOf time.Time) ([]*domain.DeferralRecord, error) {
	active, err := m.st.ListActiveDeferrals(ctx, asOf)
	if err != nil {
		return nil, fmt.Errorf("list active deferrals: %w", err)
	}
	var expired []*domain.DeferralRecord
	for _, rec := range active {
		if rec.Expired(asOf) {
			expired = append(expired, rec)
		}
	}
	return expired, nil
}
