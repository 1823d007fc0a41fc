package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MythologIQ/QoreLogic-sub000/internal/domain"
	"github.com/MythologIQ/QoreLogic-sub000/internal/store"
	"github.com/MythologIQ/QoreLogic-sub000/internal/store/memory"
)

func TestAgentCRUDRoundTrip(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	agent := &domain.Agent{ID: "agent-1", Role: domain.RoleGenerator, Trust: domain.InitialTrustScore}
	require.NoError(t, st.CreateAgent(ctx, agent))

	got, err := st.GetAgent(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, "agent-1", got.ID)

	got.Trust = 0.9
	require.NoError(t, st.UpdateAgent(ctx, got))

	updated, err := st.GetAgent(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, 0.9, updated.Trust)

	_, err = st.GetAgent(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	all, err := st.ListAgents(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestAgentCRUDIsDefensivelyCopied(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	agent := &domain.Agent{ID: "agent-1", Trust: domain.InitialTrustScore}
	require.NoError(t, st.CreateAgent(ctx, agent))

	got, err := st.GetAgent(ctx, "agent-1")
	require.NoError(t, err)
	got.Trust = 0.1 // mutating the returned copy must not affect stored state

	reread, err := st.GetAgent(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, domain.InitialTrustScore, reread.Trust)
}

func TestSourceCRUDRoundTrip(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	src := &domain.Source{URL: "https://example.com", Tier: domain.TierGold, SCI: 85}
	require.NoError(t, st.CreateSource(ctx, src))

	got, err := st.GetSource(ctx, "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, 85, got.SCI)

	got.SCI = 90
	require.NoError(t, st.UpdateSource(ctx, got))
	updated, err := st.GetSource(ctx, "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, 90, updated.SCI)
}

func TestListSourcesDueForDecayFiltersByLastDecay(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	stale := &domain.Source{URL: "https://stale.example", LastDecay: time.Now().Add(-200 * 24 * time.Hour)}
	fresh := &domain.Source{URL: "https://fresh.example", LastDecay: time.Now()}
	require.NoError(t, st.CreateSource(ctx, stale))
	require.NoError(t, st.CreateSource(ctx, fresh))

	due, err := st.ListSourcesDueForDecay(ctx, time.Now().Add(-30*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "https://stale.example", due[0].URL)
}

func TestLedgerEntryAppendAndSequenceLookup(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	_, err := st.LastEntry(ctx)
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, st.AppendEntry(ctx, &domain.Entry{Sequence: 1, Kind: domain.EventGenesisAxiom}))
	require.NoError(t, st.AppendEntry(ctx, &domain.Entry{Sequence: 2, Kind: domain.EventAuditPass}))

	last, err := st.LastEntry(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), last.Sequence)

	entries, err := st.EntriesFrom(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	one, err := st.EntryBySequence(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.EventGenesisAxiom, one.Kind)
}

func TestApprovalCRUDAndPendingList(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	appr := &domain.ApprovalRequest{ID: "appr-1", State: domain.ApprovalPending}
	require.NoError(t, st.CreateApproval(ctx, appr))

	pending, err := st.ListPendingApprovals(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	appr.State = domain.ApprovalApproved
	require.NoError(t, st.UpdateApproval(ctx, appr))

	pending, err = st.ListPendingApprovals(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSystemStateRoundTrip(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	state, err := st.GetSystemState(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ModeNormal, state.Mode)

	state.Mode = domain.ModeSurge
	require.NoError(t, st.SetSystemState(ctx, state))

	updated, err := st.GetSystemState(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ModeSurge, updated.Mode)
}

func TestRecentCalibrationSamplesRespectsLimit(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, st.RecordCalibrationSample(ctx, &domain.CalibrationSample{AgentID: "agent-1", ClaimedConfidence: 0.5, Correct: true}))
	}

	samples, err := st.RecentCalibrationSamples(ctx, "agent-1", 3)
	require.NoError(t, err)
	assert.Len(t, samples, 3)
}
