package deferral_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MythologIQ/QoreLogic-sub000/internal/deferral"
	"github.com/MythologIQ/QoreLogic-sub000/internal/domain"
	"github.com/MythologIQ/QoreLogic-sub000/internal/store/memory"
	"github.com/MythologIQ/QoreLogic-sub000/pkg/errs"
)

func TestRequestCapsDeadlineAtCategoryMax(t *testing.T) {
	m := deferral.New(memory.New())
	rec, err := m.Request(context.Background(), "hash-1", domain.CategorySafety, "ongoing incident")
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.WithinDuration(t, time.Now().Add(4*time.Hour), rec.Deadline, time.Second)
	assert.Equal(t, domain.DeferralActive, rec.State)
}

func TestCheckExpiryNoopBeforeDeadline(t *testing.T) {
	m := deferral.New(memory.New())
	rec, err := m.Request(context.Background(), "hash-1", domain.CategoryLegal, "pending review")
	require.NoError(t, err)
	assert.NoError(t, m.CheckExpiry(context.Background(), rec.ID))
}

func TestCheckExpiryForcesDisclosureAndReturnsExpiredError(t *testing.T) {
	st := memory.New()
	m := deferral.New(st)
	rec, err := m.Request(context.Background(), "hash-1", domain.CategorySafety, "ongoing incident")
	require.NoError(t, err)

	// category low has a zero-length max window, so it expires immediately
	rec2, err := m.Request(context.Background(), "hash-2", domain.CategoryLow, "low stakes")
	require.NoError(t, err)

	err = m.CheckExpiry(context.Background(), rec2.ID)
	require.Error(t, err)
	var gErr *errs.GovernanceError
	require.ErrorAs(t, err, &gErr)
	assert.Equal(t, errs.CodeDeferralExpired, gErr.Code)

	updated, err := st.GetDeferral(context.Background(), rec2.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DeferralForced, updated.State)

	assert.NoError(t, m.CheckExpiry(context.Background(), rec.ID), "an unrelated safety-category deferral must stay untouched")
}

func TestSweepExpiredOnlyReturnsPastDeadlineActiveRecords(t *testing.T) {
	m := deferral.New(memory.New())
	_, err := m.Request(context.Background(), "hash-low", domain.CategoryLow, "low stakes")
	require.NoError(t, err)
	_, err = m.Request(context.Background(), "hash-safety", domain.CategorySafety, "incident")
	require.NoError(t, err)

	expired, err := m.SweepExpired(context.Background(), time.Now())
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "hash-low", expired[0].ArtifactHash)
}
