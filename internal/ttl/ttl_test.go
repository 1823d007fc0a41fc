package ttl_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MythologIQ/QoreLogic-sub000/internal/domain"
	"github.com/MythologIQ/QoreLogic-sub000/internal/store/memory"
	"github.com/MythologIQ/QoreLogic-sub000/internal/ttl"
)

func TestRegisterClaimSetsClassAndHash(t *testing.T) {
	m := ttl.New(memory.New())
	claim, err := m.RegisterClaim(context.Background(), "hash-1", "https://example.com/a", domain.VolatilityPricing)
	require.NoError(t, err)
	assert.NotEmpty(t, claim.ID)
	assert.Equal(t, domain.VolatilityPricing, claim.Class)
	assert.Equal(t, "hash-1", claim.ContentHash)
}

func TestCheckClaimValidityFreshImmediatelyAfterRegistration(t *testing.T) {
	m := ttl.New(memory.New())
	claim, err := m.RegisterClaim(context.Background(), "hash-1", "https://example.com/a", domain.VolatilityGeneral)
	require.NoError(t, err)

	validity, got, err := m.CheckClaimValidity(context.Background(), claim.ID)
	require.NoError(t, err)
	assert.Equal(t, ttl.ValidityFresh, validity)
	assert.Equal(t, claim.ID, got.ID)
}

func TestCheckClaimValidityStaleAfterTTL(t *testing.T) {
	st := memory.New()
	m := ttl.New(st)
	stale := &domain.Claim{
		ID: "claim-1", ContentHash: "hash-1", Class: domain.VolatilityLeadership,
		RegisteredAt: time.Now().Add(-2 * domain.TTLForClass(domain.VolatilityLeadership)),
		SourceURL:    "https://example.com/a",
	}
	require.NoError(t, st.CreateClaim(context.Background(), stale))

	validity, _, err := m.CheckClaimValidity(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, ttl.ValidityStale, validity)
}

func TestSweepExpiredListsStaleClaims(t *testing.T) {
	st := memory.New()
	m := ttl.New(st)
	stale := &domain.Claim{
		ID: "claim-1", ContentHash: "hash-1", Class: domain.VolatilityPricing,
		RegisteredAt: time.Now().Add(-2 * domain.TTLForClass(domain.VolatilityPricing)),
		SourceURL:    "https://example.com/a",
	}
	require.NoError(t, st.CreateClaim(context.Background(), stale))

	expired, err := m.SweepExpired(context.Background(), time.Now())
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, stale.ID, expired[0].ID)
}
