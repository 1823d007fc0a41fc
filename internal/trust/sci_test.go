package trust_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MythologIQ/QoreLogic-sub000/internal/domain"
	"github.com/MythologIQ/QoreLogic-sub000/internal/store/memory"
	"github.com/MythologIQ/QoreLogic-sub000/internal/trust"
	"github.com/MythologIQ/QoreLogic-sub000/pkg/logger"
)

func TestActionForSCI(t *testing.T) {
	assert.Equal(t, trust.SCIAutoAccept, trust.ActionForSCI(95))
	assert.Equal(t, trust.SCIAuditRequired, trust.ActionForSCI(70))
	assert.Equal(t, trust.SCIEscalate, trust.ActionForSCI(38))
	assert.Equal(t, trust.SCIHardReject, trust.ActionForSCI(10))
}

func TestRegisterSourceInitialSCI(t *testing.T) {
	st := memory.New()
	e := trust.New(st, logger.New("test", "fatal", "json"))

	src, err := e.RegisterSource(context.Background(), "https://example.com/a", domain.TierGold)
	require.NoError(t, err)
	assert.Equal(t, 85, src.SCI)
	assert.True(t, src.Probation)
}

func TestUpdateSourceVerificationAsymmetricPenalty(t *testing.T) {
	st := memory.New()
	e := trust.New(st, logger.New("test", "fatal", "json"))
	ctx := context.Background()

	_, err := e.RegisterSource(ctx, "https://example.com/a", domain.TierReviewed)
	require.NoError(t, err)

	failed, err := e.UpdateSourceVerification(ctx, "https://example.com/a", false)
	require.NoError(t, err)

	st2 := memory.New()
	e2 := trust.New(st2, logger.New("test", "fatal", "json"))
	_, err = e2.RegisterSource(ctx, "https://example.com/b", domain.TierReviewed)
	require.NoError(t, err)
	succeeded, err := e2.UpdateSourceVerification(ctx, "https://example.com/b", true)
	require.NoError(t, err)

	assert.Less(t, failed.SCI, succeeded.SCI, "a failed verification must drop SCI further than a success raises it")
}

func TestDecayInactiveSourcesDriftsTowardTierFloor(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	require.NoError(t, st.CreateSource(ctx, &domain.Source{
		URL: "https://example.com/stale", Tier: domain.TierGold, SCI: 100,
		LastDecay: time.Now().Add(-95 * 24 * time.Hour),
	}))

	e := trust.New(st, logger.New("test", "fatal", "json"))
	count, err := e.DecayInactiveSources(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	src, err := st.GetSource(ctx, "https://example.com/stale")
	require.NoError(t, err)
	assert.Less(t, src.SCI, 100)
	assert.GreaterOrEqual(t, src.SCI, domain.InitialSCI(domain.TierGold))
}
