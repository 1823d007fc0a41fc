package sentinel

import (
	"context"

	"github.com/MythologIQ/QoreLogic-sub000/internal/domain"
	"github.com/MythologIQ/QoreLogic-sub000/pkg/errs"
)

// PipelineState is one state of the verification state machine, spec §4.4.
type PipelineState string

const (
	StateProposed       PipelineState = "PROPOSED"
	StateVerified       PipelineState = "VERIFIED"
	StateVerifiedFalse  PipelineState = "VERIFIED_FALSE"
	StateConditional    PipelineState = "CONDITIONAL"
	StateUnknown        PipelineState = "UNKNOWN"
	StateQuarantined    PipelineState = "QUARANTINED"
)

// PipelineInput bundles everything the pipeline needs to evaluate one
// artifact through the applicable tiers.
type PipelineInput struct {
	Classify   ClassifyInput
	Contract   ContractDescriptor
	Citations  []Citation
	Tier3      *Tier3Backend // nil when the artifact's risk grade is not L3
	LeanSample bool          // L1 only: true runs Tier 1 (the dispatcher sets it outside LEAN/SURGE, and for LEAN's 10% sample)
}

// PipelineOutcome is the result of running an artifact through the
// pipeline: its final state, assigned risk grade, and the findings from
// every tier that ran.
type PipelineOutcome struct {
	Risk     domain.RiskGrade
	State    PipelineState
	Tier1    *TierResult
	Tier2    *TierResult
	Tier3    *Tier3Verdict
	Escalate bool // true when the outcome requires Overseer escalation
}

// Run classifies the artifact and executes the applicable tiers in
// order, short-circuiting on any mandatory-tier failure, per the state
// transitions of spec §4.4.
func Run(ctx context.Context, in PipelineInput) (*PipelineOutcome, error) {
	risk := Classify(in.Classify)
	out := &PipelineOutcome{Risk: risk, State: StateProposed}

	// Tier 1 runs for every grade; under LEAN it is sampled at 10% for
	// L1 only, a decision the caller makes before invoking Run via
	// LeanSample (false here means "skip this L1 artifact this round").
	if risk != domain.RiskL1 || in.LeanSample {
		t1 := RunTier1(in.Classify.Content)
		out.Tier1 = &t1
		if t1.Status == "fail" {
			if risk == domain.RiskL2 || risk == domain.RiskL3 {
				out.State = StateQuarantined
				return out, nil
			}
			out.State = StateVerifiedFalse
			return out, nil
		}
	}

	if risk == domain.RiskL1 {
		out.State = StateVerified
		return out, nil
	}

	t2 := RunTier2(in.Contract, in.Citations)
	out.Tier2 = &t2
	if t2.Status == "fail" {
		for _, f := range t2.Findings {
			if f.Rule == "logical_contradiction" {
				out.State = StateVerifiedFalse
				return out, nil
			}
		}
		out.State = StateQuarantined
		return out, nil
	}

	if risk == domain.RiskL2 {
		out.State = StateVerified
		return out, nil
	}

	// L3: dispatch Tier 3.
	if in.Tier3 == nil {
		out.State = StateConditional
		out.Escalate = true
		return out, nil
	}
	verdict, err := in.Tier3.Dispatch(ctx, in.Classify.Content)
	if err != nil {
		ge := errs.As(err)
		if ge != nil && (ge.Code == errs.CodeTier3Unavailable || ge.Code == errs.CodeTier3Timeout) {
			out.State = StateConditional
			out.Escalate = true
			return out, nil
		}
		return nil, err
	}
	out.Tier3 = verdict
	if !verdict.Verified {
		out.State = StateVerifiedFalse
		return out, nil
	}
	out.State = StateVerified
	return out, nil
}
