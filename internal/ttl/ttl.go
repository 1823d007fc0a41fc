// Package ttl manages claim freshness: registration, lazy staleness
// checks at access time, and a periodic sweep that mirrors the lazy
// check (the lazy check remains authoritative, per spec §5).
package ttl

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MythologIQ/QoreLogic-sub000/internal/domain"
	"github.com/MythologIQ/QoreLogic-sub000/internal/store"
)

// Manager registers claims and evaluates their freshness.
type Manager struct {
	st store.Store
}

// New constructs a Manager.
func New(st store.Store) *Manager {
	return &Manager{st: st}
}

// RegisterClaim records a new claim with the TTL implied by its
// volatility class.
func (m *Manager) RegisterClaim(ctx context.Context, contentHash, sourceURL string, class domain.VolatilityClass) (*domain.Claim, error) {
	claim := &domain.Claim{
		ID: uuid.NewString(), ContentHash: contentHash, Class: class,
		RegisteredAt: time.Now(), SourceURL: sourceURL,
	}
	if err := m.st.CreateClaim(ctx, claim); err != nil {
		return nil, fmt.Errorf("register claim: %w", err)
	}
	return claim, nil
}

// Validity is the result of CheckClaimValidity.
type Validity string

const (
	ValidityFresh Validity = "fresh"
	ValidityStale Validity = "stale"
)

// CheckClaimValidity performs the authoritative lazy staleness check at
// access time. A stale claim must trigger re-verification before reuse;
// this function only reports staleness, it does not itself re-verify.
func (m *Manager) CheckClaimValidity(ctx context.Context, claimID string) (Validity, *domain.Claim, error) {
	claim, err := m.st.GetClaim(ctx, claimID)
	if err != nil {
		return "", nil, err
	}
	if claim.IsStale(time.Now()) {
		return ValidityStale, claim, nil
	}
	return ValidityFresh, claim, nil
}

// SweepExpired lists every claim stale as of asOf, mirroring the lazy
// check for observability (e.g. emitting TTL_BREACH ledger events); it
// does not mutate claim state since expiry is computed, not stored.
func (m *Manager) SweepExpired(ctx context.Context, asOf time.Time) ([]*domain.Claim, error) {
	return m.st.ListExpiredClaims(ctx, asOf)
}
