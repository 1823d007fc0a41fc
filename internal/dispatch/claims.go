package dispatch

import (
	"context"
	"fmt"

	"github.com/MythologIQ/QoreLogic-sub000/internal/domain"
	"github.com/MythologIQ/QoreLogic-sub000/internal/ledger"
	"github.com/MythologIQ/QoreLogic-sub000/internal/mode"
	"github.com/MythologIQ/QoreLogic-sub000/internal/sentinel"
	"github.com/MythologIQ/QoreLogic-sub000/internal/trust"
	"github.com/MythologIQ/QoreLogic-sub000/internal/ttl"
)

// AuditClaimRequest is the input to audit_claim: a factual claim about
// to be registered, checked against its source's credibility and its
// citation chain.
type AuditClaimRequest struct {
	AgentID     string
	Passphrase  string
	ContentHash string
	SourceURL   string
	Class       domain.VolatilityClass
	Citations   []sentinel.Citation
}

// AuditClaimResult is the response returned to the caller.
type AuditClaimResult struct {
	Action      trust.SCIAction
	Claim       *domain.Claim
	LedgerEntry *domain.Entry
}

// AuditClaim checks a claim's source credibility against the SCI action
// table, runs its citation chain through the Tier 2 citation policy, and
// — if neither rejects the claim — registers it with a volatility-class
// TTL. A hard SCI rejection or a citation-policy failure produces
// AUDIT_FAIL without registering the claim.
func (d *Dispatcher) AuditClaim(ctx context.Context, req AuditClaimRequest) (*AuditClaimResult, error) {
	risk := domain.RiskL2
	if req.Class == domain.VolatilityLeadership {
		risk = domain.RiskL3
	}

	if err := d.checkModePolicy(risk); err != nil {
		return nil, err
	}

	adm, err := d.admit(ctx, riskPriority(risk), risk)
	if err != nil {
		return nil, err
	}
	defer d.release(adm)

	if _, err := d.authenticate(ctx, req.AgentID); err != nil {
		return nil, err
	}

	result := &AuditClaimResult{}
	err = d.withTx(ctx, func(ctx context.Context) error {
		src, err := d.st.GetSource(ctx, req.SourceURL)
		if err != nil {
			return fmt.Errorf("load source: %w", err)
		}
		action := trust.ActionForSCI(src.SCI)
		result.Action = action

		findings := sentinel.CheckCitationPolicy(req.Citations)
		citationOK := len(findings) == 0

		pass := citationOK && action != trust.SCIHardReject
		score := 0.0
		violation := !pass
		if pass {
			score = 1.0
		}

		upd, err := d.trust.UpdateAgentTrust(ctx, req.AgentID, score, trust.UpdateContext{HighRisk: risk == domain.RiskL3}, violation)
		if err != nil {
			return fmt.Errorf("update agent trust: %w", err)
		}

		kind := domain.EventAuditFail
		if pass {
			kind = domain.EventAuditPass
		}
		payload := map[string]any{
			"content_hash": req.ContentHash, "source_url": req.SourceURL,
			"sci_action": string(action), "citations_ok": citationOK,
		}
		entry, err := d.lg.Append(ctx, ledger.AppendParams{
			AgentID: req.AgentID, Passphrase: req.Passphrase, Kind: kind, Risk: risk,
			Payload: payload, TrustAtTime: upd.Agent.Trust,
		})
		if err != nil {
			return fmt.Errorf("append ledger entry: %w", err)
		}
		result.LedgerEntry = entry

		if !pass {
			return nil
		}

		claim, err := d.ttlM.RegisterClaim(ctx, req.ContentHash, req.SourceURL, req.Class)
		if err != nil {
			return fmt.Errorf("register claim: %w", err)
		}
		result.Claim = claim
		return nil
	})
	if err != nil {
		d.cancel(ctx, req.AgentID, risk, err)
		return nil, err
	}
	return result, nil
}

// RegisterSource onboards a new source at its tier's initial SCI.
func (d *Dispatcher) RegisterSource(ctx context.Context, url string, tier domain.SourceTier) (*domain.Source, error) {
	var src *domain.Source
	err := d.withTx(ctx, func(ctx context.Context) error {
		var err error
		src, err = d.trust.RegisterSource(ctx, url, tier)
		return err
	})
	if err != nil {
		return nil, err
	}
	return src, nil
}

// UpdateSourceVerification applies one verification outcome to a
// source's credibility index.
func (d *Dispatcher) UpdateSourceVerification(ctx context.Context, url string, success bool) (*domain.Source, error) {
	var src *domain.Source
	err := d.withTx(ctx, func(ctx context.Context) error {
		var err error
		src, err = d.trust.UpdateSourceVerification(ctx, url, success)
		return err
	})
	if err != nil {
		return nil, err
	}
	return src, nil
}

// RegisterClaimWithTTL registers a claim directly (bypassing the audit
// flow), used when a claim's provenance has already been verified by an
// upstream audit_code or audit_claim call in the same session.
func (d *Dispatcher) RegisterClaimWithTTL(ctx context.Context, contentHash, sourceURL string, class domain.VolatilityClass) (*domain.Claim, error) {
	adm, err := d.admit(ctx, mode.PriorityInteractive, domain.RiskL1)
	if err != nil {
		return nil, err
	}
	defer d.release(adm)

	var claim *domain.Claim
	err = d.withTx(ctx, func(ctx context.Context) error {
		var err error
		claim, err = d.ttlM.RegisterClaim(ctx, contentHash, sourceURL, class)
		return err
	})
	if err != nil {
		return nil, err
	}
	return claim, nil
}

// CheckClaimValidity performs the authoritative lazy staleness check.
func (d *Dispatcher) CheckClaimValidity(ctx context.Context, claimID string) (ttl.Validity, *domain.Claim, error) {
	return d.ttlM.CheckClaimValidity(ctx, claimID)
}

// RequestDeferral opens a disclosure deferral, capped at its category's
// maximum window, and records the request on the ledger.
func (d *Dispatcher) RequestDeferral(ctx context.Context, agentID, artifactHash string, category domain.DeferralCategory, reason string) (*domain.DeferralRecord, error) {
	adm, err := d.admit(ctx, mode.PriorityInteractive, domain.RiskL2)
	if err != nil {
		return nil, err
	}
	defer d.release(adm)

	if _, err := d.authenticate(ctx, agentID); err != nil {
		return nil, err
	}

	var rec *domain.DeferralRecord
	err = d.withTx(ctx, func(ctx context.Context) error {
		var err error
		rec, err = d.defr.Request(ctx, artifactHash, category, reason)
		if err != nil {
			return fmt.Errorf("request deferral: %w", err)
		}
		_, err = d.lg.Append(ctx, ledger.AppendParams{
			AgentID: agentID, Kind: domain.EventShadowArchive, Risk: domain.RiskL2,
			Payload: map[string]any{"artifact_hash": artifactHash, "category": string(category), "reason": reason},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}
