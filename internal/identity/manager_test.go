package identity_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MythologIQ/QoreLogic-sub000/internal/domain"
	"github.com/MythologIQ/QoreLogic-sub000/internal/identity"
	"github.com/MythologIQ/QoreLogic-sub000/internal/store/memory"
	"github.com/MythologIQ/QoreLogic-sub000/pkg/errs"
	"github.com/MythologIQ/QoreLogic-sub000/pkg/logger"
)

func newManager() *identity.Manager {
	return identity.NewManager(memory.New(), logger.New("test", "fatal", "json"))
}

func TestCreateAgentRejectsWeakPassphrase(t *testing.T) {
	m := newManager()
	_, err := m.CreateAgent(context.Background(), "agent-1", domain.RoleGenerator, "short")
	require.Error(t, err)
	ge := errs.As(err)
	require.NotNil(t, ge)
	assert.Equal(t, errs.CodeWeakPassphrase, ge.Code)
}

func TestCreateAgentSignAndVerify(t *testing.T) {
	m := newManager()
	ctx := context.Background()

	agent, err := m.CreateAgent(ctx, "agent-1", domain.RoleGenerator, "correct horse battery staple")
	require.NoError(t, err)
	assert.Equal(t, domain.InitialTrustScore, agent.Trust)
	assert.True(t, agent.Probation)

	sig, err := m.Sign(ctx, "agent-1", "correct horse battery staple", []byte("hello world"))
	require.NoError(t, err)
	assert.True(t, m.Verify(ctx, "agent-1", []byte("hello world"), sig))
	assert.False(t, m.Verify(ctx, "agent-1", []byte("tampered"), sig))
}

func TestSignWrongPassphraseFails(t *testing.T) {
	m := newManager()
	ctx := context.Background()
	_, err := m.CreateAgent(ctx, "agent-1", domain.RoleGenerator, "correct horse battery staple")
	require.NoError(t, err)

	_, err = m.Sign(ctx, "agent-1", "wrong passphrase entirely", []byte("hello world"))
	require.Error(t, err)
	ge := errs.As(err)
	require.NotNil(t, ge)
	assert.Equal(t, errs.CodeIdentityLocked, ge.Code)
}

func TestRotatePreservesVerificationOfPriorSignatures(t *testing.T) {
	m := newManager()
	ctx := context.Background()
	_, err := m.CreateAgent(ctx, "agent-1", domain.RoleGenerator, "correct horse battery staple")
	require.NoError(t, err)

	msg := []byte("entry before rotation")
	sigBefore, err := m.Sign(ctx, "agent-1", "correct horse battery staple", msg)
	require.NoError(t, err)

	require.NoError(t, m.Rotate(ctx, "agent-1", "correct horse battery staple"))

	assert.True(t, m.Verify(ctx, "agent-1", msg, sigBefore), "signatures made under a prior key must still verify after rotation")

	sigAfter, err := m.Sign(ctx, "agent-1", "correct horse battery staple", []byte("entry after rotation"))
	require.NoError(t, err)
	assert.True(t, m.Verify(ctx, "agent-1", []byte("entry after rotation"), sigAfter))
}

func TestSignSucceedsAfterManagerRestartFromStore(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	log := logger.New("test", "fatal", "json")

	first := identity.NewManager(st, log)
	_, err := first.CreateAgent(ctx, "agent-1", domain.RoleGenerator, "correct horse battery staple")
	require.NoError(t, err)

	// a fresh Manager over the same store simulates a process restart:
	// it starts with an empty in-process cache and must still be able
	// to sign and verify using the key persisted by the first instance.
	second := identity.NewManager(st, log)
	sig, err := second.Sign(ctx, "agent-1", "correct horse battery staple", []byte("signed after restart"))
	require.NoError(t, err)
	assert.True(t, second.Verify(ctx, "agent-1", []byte("signed after restart"), sig))
}

func TestInvalidateCacheForcesReUnwrap(t *testing.T) {
	m := newManager()
	ctx := context.Background()
	_, err := m.CreateAgent(ctx, "agent-1", domain.RoleGenerator, "correct horse battery staple")
	require.NoError(t, err)

	_, err = m.Sign(ctx, "agent-1", "correct horse battery staple", []byte("warm the cache"))
	require.NoError(t, err)

	m.InvalidateCache("agent-1")

	_, err = m.Sign(ctx, "agent-1", "correct horse battery staple", []byte("after invalidate"))
	assert.NoError(t, err)
}
