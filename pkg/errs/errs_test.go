package errs_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MythologIQ/QoreLogic-sub000/pkg/errs"
)

func TestToExitCode(t *testing.T) {
	assert.Equal(t, errs.ExitPass, errs.ToExitCode(nil))
	assert.Equal(t, errs.ExitPass, errs.ToExitCode(errors.New("plain error")))
	assert.Equal(t, errs.ExitStoreUnavailable, errs.ToExitCode(errs.StoreUnavailable(errors.New("conn refused"))))
	assert.Equal(t, errs.ExitConfigError, errs.ToExitCode(errs.WeakPassphrase()))
	assert.Equal(t, errs.ExitConfigError, errs.ToExitCode(errs.KeyRotationDue("agent-1")))
	assert.Equal(t, errs.ExitPolicyFail, errs.ToExitCode(errs.RiskTooHigh("L3")))
	assert.Equal(t, errs.ExitPolicyFail, errs.ToExitCode(errs.AuditFail("T2", 1)))
}

func TestGovernanceErrorUnwrap(t *testing.T) {
	cause := errors.New("underlying failure")
	ge := errs.Wrap(errs.CodeStoreUnavailable, "store down", cause)
	assert.ErrorIs(t, ge, cause)
	assert.Contains(t, ge.Error(), "store down")
	assert.Contains(t, ge.Error(), "underlying failure")
}

func TestWithDetails(t *testing.T) {
	ge := errs.New(errs.CodeQueueFull, "no room").WithDetails("depth", 50)
	assert.Equal(t, 50, ge.Details["depth"])
}

func TestIsGovernanceError(t *testing.T) {
	assert.True(t, errs.IsGovernanceError(errs.QueueFull()))
	assert.False(t, errs.IsGovernanceError(errors.New("not a governance error")))
}
