package dispatch

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/MythologIQ/QoreLogic-sub000/internal/domain"
	"github.com/MythologIQ/QoreLogic-sub000/internal/ledger"
	"github.com/MythologIQ/QoreLogic-sub000/internal/sentinel"
	"github.com/MythologIQ/QoreLogic-sub000/internal/trust"
	"github.com/MythologIQ/QoreLogic-sub000/pkg/errs"
)

// AuditCodeRequest is the input to audit_code: a proposed artifact from
// agentID, routed through classification and the applicable tiers.
type AuditCodeRequest struct {
	AgentID    string
	Passphrase string
	Path       string
	Content    string
	Contract   sentinel.ContractDescriptor
	Citations  []sentinel.Citation
	LeanSample bool
}

// AuditCodeResult is the response returned to the caller.
type AuditCodeResult struct {
	Outcome       *sentinel.PipelineOutcome
	LedgerEntry   *domain.Entry
	ApprovalID    string // set when the outcome escalated to overseer review
	TrustUpdated  *trust.UpdateResult
}

// outcomeToEventAndScore maps a pipeline terminal state to the ledger
// event it produces and the trust-update outcome score it implies.
func outcomeToEventAndScore(state sentinel.PipelineState) (domain.EventKind, float64, bool) {
	switch state {
	case sentinel.StateVerified:
		return domain.EventAuditPass, 1.0, false
	case sentinel.StateVerifiedFalse:
		return domain.EventAuditFail, 0.0, true
	case sentinel.StateQuarantined:
		return domain.EventAuditFail, 0.0, true
	case sentinel.StateConditional:
		return domain.EventL3ApprovalRequest, 0.5, false
	default:
		return domain.EventAuditFail, 0.0, false
	}
}

// AuditCode runs a proposed code artifact through the verification
// pipeline: admit, authenticate, classify, run the applicable tiers,
// update the author's trust, and append a signed ledger entry — success
// and failure both produce a terminal entry, never a silent drop.
func (d *Dispatcher) AuditCode(ctx context.Context, req AuditCodeRequest) (*AuditCodeResult, error) {
	risk := sentinel.Classify(sentinel.ClassifyInput{Path: req.Path, Content: req.Content})

	if err := d.checkModePolicy(risk); err != nil {
		return nil, err
	}

	adm, err := d.admit(ctx, riskPriority(risk), risk)
	if err != nil {
		return nil, err
	}
	defer d.release(adm)

	agent, err := d.authenticate(ctx, req.AgentID)
	if err != nil {
		return nil, err
	}

	var tier3 *sentinel.Tier3Backend
	if risk == domain.RiskL3 {
		policy := d.modeC.EffectivePolicy()
		if policy.L3HumanOnly {
			tier3 = nil // SAFE mode: force CONDITIONAL + human escalation
		} else {
			tier3 = d.tier3
		}
	}

	// Outside LEAN/SURGE every L1 artifact runs Tier 1; under them the
	// request's LeanSample flag selects the sampled artifacts.
	leanSample := req.LeanSample
	if risk == domain.RiskL1 && d.modeC.EffectivePolicy().L1Sampling >= 1.0 {
		leanSample = true
	}

	result := &AuditCodeResult{}
	err = d.withTx(ctx, func(ctx context.Context) error {
		outcome, err := sentinel.Run(ctx, sentinel.PipelineInput{
			Classify:   sentinel.ClassifyInput{Path: req.Path, Content: req.Content},
			Contract:   req.Contract,
			Citations:  req.Citations,
			Tier3:      tier3,
			LeanSample: leanSample,
		})
		if err != nil {
			return fmt.Errorf("run verification pipeline: %w", err)
		}
		result.Outcome = outcome

		kind, score, violation := outcomeToEventAndScore(outcome.State)

		upd, err := d.trust.UpdateAgentTrust(ctx, req.AgentID, score, trust.UpdateContext{HighRisk: risk == domain.RiskL3}, violation)
		if err != nil {
			return fmt.Errorf("update agent trust: %w", err)
		}
		result.TrustUpdated = upd

		payload := map[string]any{"path": req.Path, "risk": string(risk), "state": string(outcome.State)}
		if outcome.Tier1 != nil {
			payload["tier1_status"] = outcome.Tier1.Status
		}
		if outcome.Tier2 != nil {
			payload["tier2_status"] = outcome.Tier2.Status
		}

		entry, err := d.lg.Append(ctx, ledger.AppendParams{
			AgentID: req.AgentID, Passphrase: req.Passphrase, Kind: kind, Risk: risk,
			Payload: payload, TrustAtTime: upd.Agent.Trust,
		})
		if err != nil {
			return fmt.Errorf("append ledger entry: %w", err)
		}
		result.LedgerEntry = entry

		if outcome.Escalate {
			appr, err := d.createApprovalRequest(ctx, req.Path, req.AgentID, "tier3_conditional")
			if err != nil {
				return err
			}
			result.ApprovalID = appr.ID
		}

		_ = agent
		return nil
	})
	if err != nil {
		d.cancel(ctx, req.AgentID, risk, err)
		return nil, err
	}

	return result, nil
}

// createApprovalRequest persists a pending L3 approval request, queued
// with the fixed deadline of spec §4.5's overseer SLA.
func (d *Dispatcher) createApprovalRequest(ctx context.Context, artifactHash, requester, reason string) (*domain.ApprovalRequest, error) {
	appr := &domain.ApprovalRequest{
		ID: uuid.NewString(), ArtifactHash: artifactHash, Reason: reason,
		Requester: requester, CreatedAt: now(), Deadline: now().Add(domain.L3ApprovalDeadline),
		State: domain.ApprovalPending,
	}
	if err := d.st.CreateApproval(ctx, appr); err != nil {
		return nil, fmt.Errorf("create approval request: %w", err)
	}
	return appr, nil
}

// RequestOverseerApproval is the standalone request_overseer_approval
// operation of spec §6: an agent directly queues an artifact for human
// L3 review, independent of going through audit_code's own escalation
// branch (e.g. a pre-emptive request ahead of an automated audit, or a
// resubmission after an expired approval). It follows the same
// admit -> authenticate -> handler -> ledger-append shape as every other
// dispatcher operation.
func (d *Dispatcher) RequestOverseerApproval(ctx context.Context, agentID, passphrase, artifactHash, reason string) (*domain.ApprovalRequest, error) {
	adm, err := d.admit(ctx, riskPriority(domain.RiskL3), domain.RiskL3)
	if err != nil {
		return nil, err
	}
	defer d.release(adm)

	if _, err := d.authenticate(ctx, agentID); err != nil {
		return nil, err
	}

	var appr *domain.ApprovalRequest
	err = d.withTx(ctx, func(ctx context.Context) error {
		var err error
		appr, err = d.createApprovalRequest(ctx, artifactHash, agentID, reason)
		if err != nil {
			return err
		}
		_, err = d.lg.Append(ctx, ledger.AppendParams{
			AgentID: agentID, Passphrase: passphrase, Kind: domain.EventL3ApprovalRequest, Risk: domain.RiskL3,
			Payload: map[string]any{"artifact_hash": artifactHash, "reason": reason, "approval_id": appr.ID},
		})
		return err
	})
	if err != nil {
		d.cancel(ctx, agentID, domain.RiskL3, err)
		return nil, err
	}
	return appr, nil
}

// ResolveOverseer resolves a pending L3 approval request, appending
// L3_APPROVED or L3_REJECTED and applying the corresponding trust
// update to the original requester. The resolver's own passphrase is
// required to sign the resulting ledger entry.
func (d *Dispatcher) ResolveOverseer(ctx context.Context, approvalID, resolver, resolverPassphrase string, approve bool, notes string) (*domain.Entry, error) {
	var entry *domain.Entry
	err := d.withTx(ctx, func(ctx context.Context) error {
		appr, err := d.st.GetApproval(ctx, approvalID)
		if err != nil {
			return err
		}
		if appr.State != domain.ApprovalPending {
			return errs.New(errs.CodeAuditFail, "approval request already resolved")
		}
		if appr.IsExpired(now()) {
			appr.State = domain.ApprovalExpired
			_ = d.st.UpdateApproval(ctx, appr)
			return errs.New(errs.CodeAuditFail, "approval request deadline has passed")
		}

		appr.Resolver = resolver
		appr.ResolvedAt = now()
		appr.Notes = notes
		kind := domain.EventL3Rejected
		score := 0.0
		violation := true
		if approve {
			appr.State = domain.ApprovalApproved
			kind = domain.EventL3Approved
			score = 1.0
			violation = false
		} else {
			appr.State = domain.ApprovalRejected
		}
		if err := d.st.UpdateApproval(ctx, appr); err != nil {
			return fmt.Errorf("persist approval resolution: %w", err)
		}

		upd, err := d.trust.UpdateAgentTrust(ctx, appr.Requester, score, trust.UpdateContext{HighRisk: true}, violation)
		if err != nil {
			return fmt.Errorf("update requester trust: %w", err)
		}

		entry, err = d.lg.Append(ctx, ledger.AppendParams{
			AgentID: resolver, Passphrase: resolverPassphrase, Kind: kind, Risk: domain.RiskL3,
			Payload: map[string]any{"approval_id": approvalID, "requester": appr.Requester, "notes": notes},
			Flags:   domain.Flags{HumanApprover: resolver}, TrustAtTime: upd.Agent.Trust,
		})
		if err != nil {
			return fmt.Errorf("append ledger entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}
