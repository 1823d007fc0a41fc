package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/MythologIQ/QoreLogic-sub000/internal/domain"
)

func TestTTLForClass(t *testing.T) {
	assert.Equal(t, 24*time.Hour, domain.TTLForClass(domain.VolatilityLeadership))
	assert.Equal(t, 72*time.Hour, domain.TTLForClass(domain.VolatilityPricing))
	assert.Equal(t, 30*24*time.Hour, domain.TTLForClass(domain.VolatilityGeneral))
	assert.Equal(t, 30*24*time.Hour, domain.TTLForClass("unknown"))
}

func TestClaimIsStale(t *testing.T) {
	registered := time.Now().Add(-25 * time.Hour)
	c := &domain.Claim{Class: domain.VolatilityLeadership, RegisteredAt: registered}
	assert.True(t, c.IsStale(time.Now()))

	c = &domain.Claim{Class: domain.VolatilityPricing, RegisteredAt: registered}
	assert.False(t, c.IsStale(time.Now()))
}

func TestClaimExpiryBoundaryInclusive(t *testing.T) {
	now := time.Now()
	c := &domain.Claim{Class: domain.VolatilityPricing, RegisteredAt: now.Add(-72 * time.Hour)}
	assert.True(t, c.IsStale(now), "a claim at exactly its TTL boundary is stale")
}
