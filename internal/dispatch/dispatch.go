// Package dispatch is the composition root for every externally visible
// governance operation named in spec.md §6: admit, authenticate, check
// quarantine/mode, run the handler, update trust, append a signed ledger
// entry, respond. Every admitted handler releases its queue slot however
// it concludes. AuditCode, AuditClaim and RequestOverseerApproval also
// append a CANCELLED compensating entry when they fail after admission;
// the other handlers only roll back their transaction on failure.
// RegisterSource, UpdateSourceVerification and RegisterClaimWithTTL
// write no ledger entry at all.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/MythologIQ/QoreLogic-sub000/internal/calibration"
	"github.com/MythologIQ/QoreLogic-sub000/internal/deferral"
	"github.com/MythologIQ/QoreLogic-sub000/internal/domain"
	"github.com/MythologIQ/QoreLogic-sub000/internal/identity"
	"github.com/MythologIQ/QoreLogic-sub000/internal/ledger"
	"github.com/MythologIQ/QoreLogic-sub000/internal/mode"
	"github.com/MythologIQ/QoreLogic-sub000/internal/quarantine"
	"github.com/MythologIQ/QoreLogic-sub000/internal/sentinel"
	"github.com/MythologIQ/QoreLogic-sub000/internal/store"
	"github.com/MythologIQ/QoreLogic-sub000/internal/trust"
	"github.com/MythologIQ/QoreLogic-sub000/internal/ttl"
	"github.com/MythologIQ/QoreLogic-sub000/pkg/errs"
	"github.com/MythologIQ/QoreLogic-sub000/pkg/logger"
)

// Dispatcher wires every component into the request surface. It holds
// no business state of its own beyond the admission queue; everything
// else lives in the store or in the component it delegates to.
type Dispatcher struct {
	st    store.Store
	idm   *identity.Manager
	lg    *ledger.Ledger
	trust *trust.Engine
	modeC *mode.Controller
	queue *mode.Queue
	quar  *quarantine.Manager
	defr  *deferral.Manager
	ttlM  *ttl.Manager
	calib *calibration.Manager
	log   *logger.Logger

	tier3 *sentinel.Tier3Backend // nil runs every L3 artifact CONDITIONAL, forcing human escalation
}

// New constructs a Dispatcher from its already-built components.
func New(
	st store.Store,
	idm *identity.Manager,
	lg *ledger.Ledger,
	trustE *trust.Engine,
	modeC *mode.Controller,
	queue *mode.Queue,
	quar *quarantine.Manager,
	defr *deferral.Manager,
	ttlM *ttl.Manager,
	calib *calibration.Manager,
	log *logger.Logger,
	tier3 *sentinel.Tier3Backend,
) *Dispatcher {
	return &Dispatcher{
		st: st, idm: idm, lg: lg, trust: trustE, modeC: modeC, queue: queue,
		quar: quar, defr: defr, ttlM: ttlM, calib: calib, log: log, tier3: tier3,
	}
}

// admission is the admit -> authenticate -> check quarantine/mode prelude
// shared by every operation that acts on behalf of an agent. Release
// must be called exactly once, however the handler concludes.
type admission struct {
	priority mode.Priority
	risk     domain.RiskGrade
}

func (d *Dispatcher) admit(ctx context.Context, priority mode.Priority, risk domain.RiskGrade) (*admission, error) {
	result, err := d.queue.Admit(priority, risk)
	if err != nil {
		return nil, err
	}
	if result.Warning != "" {
		d.log.WithContext(ctx).Warn(result.Warning)
	}
	return &admission{priority: priority, risk: risk}, nil
}

func (d *Dispatcher) release(a *admission) {
	if a == nil {
		return
	}
	d.queue.Release(a.priority, a.risk)
}

// authenticate loads the agent and confirms it is not quarantined. It is
// the one point every agent-attributed operation must pass through
// before a handler is allowed to run.
func (d *Dispatcher) authenticate(ctx context.Context, agentID string) (*domain.Agent, error) {
	agent, err := d.st.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if err := d.quar.Check(ctx, agentID); err != nil {
		return nil, err
	}
	return agent, nil
}

// checkModePolicy rejects an operation outright if the current
// operational mode suspends its risk grade (SAFE mode suspends L1 and
// L2 entirely and forces L3 to human-only review).
func (d *Dispatcher) checkModePolicy(risk domain.RiskGrade) error {
	policy := d.modeC.EffectivePolicy()
	switch risk {
	case domain.RiskL1:
		if policy.L1Suspended {
			return errs.ModeBlocked(string(d.modeC.Current()))
		}
	case domain.RiskL2:
		if policy.L2Suspended {
			return errs.ModeBlocked(string(d.modeC.Current()))
		}
	}
	return nil
}

// cancel appends a compensating CANCELLED entry for an operation that
// was admitted but whose handler failed before it could reach a normal
// terminal ledger event, per spec §5's rollback contract. The entry is
// system-originated: it carries agent_id in the payload and is appended
// unsigned, since no passphrase is available here.
func (d *Dispatcher) cancel(ctx context.Context, agentID string, risk domain.RiskGrade, cause error) {
	payload := map[string]any{"agent_id": agentID, "reason": cause.Error()}
	if _, err := d.lg.Append(ctx, ledger.AppendParams{
		Kind: domain.EventCancelled, Risk: risk, Payload: payload,
	}); err != nil {
		d.log.WithContext(ctx).WithError(err).Warn("failed to append CANCELLED compensating entry")
	}
}

// withTx runs fn inside one store transaction, committing on success and
// rolling back on any error or panic.
func (d *Dispatcher) withTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	txCtx, err := d.st.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = d.st.Rollback(txCtx)
			panic(p)
		}
		if err != nil {
			_ = d.st.Rollback(txCtx)
			return
		}
		err = d.st.Commit(txCtx)
	}()
	err = fn(txCtx)
	return err
}

// riskPriority picks the admission priority for a risk grade: L3 work is
// treated as batch (it can legitimately wait on human review), L1/L2 as
// interactive.
func riskPriority(risk domain.RiskGrade) mode.Priority {
	if risk == domain.RiskL3 {
		return mode.PriorityBatch
	}
	return mode.PriorityInteractive
}

func now() time.Time { return time.Now() }
