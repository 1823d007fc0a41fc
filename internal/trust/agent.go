package trust

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MythologIQ/QoreLogic-sub000/internal/domain"
	"github.com/MythologIQ/QoreLogic-sub000/pkg/metrics"
)

// EWMA decay rates, spec §4.3.
const (
	lambdaHighRisk = 0.94 // L3, security-labeled contexts
	lambdaDefault  = 0.97
)

// agentLocks serializes trust updates per agent (spec §5: "trust updates
// for a given agent are serialized per agent"); across agents updates
// proceed in parallel.
var agentLocks sync.Map

func lockFor(agentID string) *sync.Mutex {
	v, _ := agentLocks.LoadOrStore(agentID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// UpdateContext selects the EWMA decay rate. Every applied update
// increments the agent's verification counter regardless of context.
type UpdateContext struct {
	HighRisk bool // L3 or security-labeled: uses lambdaHighRisk
}

// UpdateResult reports the new score/stage plus any state annotations,
// which spec §4.3 treats as non-error response annotations.
type UpdateResult struct {
	Agent          *domain.Agent
	Demoted        bool
	PriorStage     domain.Stage
	BlockedByCooling bool
}

// UpdateAgentTrust applies the EWMA update T_new = λ·T_old + (1−λ)·outcome,
// honoring cooling-off (positive repair blocked) and the demotion rule
// (any violation demotes at least one stage immediately, clamped to the
// lower stage's ceiling, regardless of the EWMA result).
func (e *Engine) UpdateAgentTrust(ctx context.Context, agentID string, outcome float64, uc UpdateContext, violation bool) (*UpdateResult, error) {
	lock := lockFor(agentID)
	lock.Lock()
	defer lock.Unlock()

	agent, err := e.st.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	priorStage := agent.Stage
	now := time.Now()

	blockedByCooling := agent.InCoolingOff(now) && outcome >= 0.5
	if blockedByCooling {
		// cooling-off blocks positive trust repair; updates with
		// outcome<0.5 (further penalties) still apply.
		return &UpdateResult{Agent: agent, PriorStage: priorStage, BlockedByCooling: true}, nil
	}

	lambda := lambdaDefault
	if uc.HighRisk {
		lambda = lambdaHighRisk
	}
	agent.Trust = lambda*agent.Trust + (1-lambda)*outcome
	if agent.Trust > 1.0 {
		agent.Trust = 1.0
	}
	if agent.Trust < 0.0 {
		agent.Trust = 0.0
	}
	agent.Stage = domain.StageForTrust(agent.Trust)

	demoted := false
	if violation {
		demoted = demote(agent, priorStage)
	}

	agent.VerifCount++
	if err := e.st.UpdateAgent(ctx, agent); err != nil {
		return nil, fmt.Errorf("update agent trust: %w", err)
	}

	metrics.TrustScoreUpdates.Observe(agent.Trust)
	return &UpdateResult{Agent: agent, Demoted: demoted, PriorStage: priorStage}, nil
}

// demote enforces the unconditional stage demotion rule: on any
// violation the agent drops at least one stage immediately, with trust
// clamped to the ceiling of the lower stage, independent of what the
// EWMA calculation alone produced.
func demote(agent *domain.Agent, priorStage domain.Stage) bool {
	lowerCeiling := map[domain.Stage]float64{
		domain.StageIBT: 0.8, // drop IBT -> KBT ceiling
		domain.StageKBT: 0.5, // drop KBT -> CBT ceiling
		domain.StageCBT: 0.5, // already floor stage; no lower ceiling to clamp to
	}
	targetStage := map[domain.Stage]domain.Stage{
		domain.StageIBT: domain.StageKBT,
		domain.StageKBT: domain.StageCBT,
		domain.StageCBT: domain.StageCBT,
	}

	ceiling := lowerCeiling[priorStage]
	if agent.Trust > ceiling {
		agent.Trust = ceiling
	}
	newStage := targetStage[priorStage]
	changed := newStage != priorStage || agent.Stage != newStage
	agent.Stage = newStage
	return changed
}

// MicroPenaltyKind is a HILS infraction class, spec §4.3.
type MicroPenaltyKind string

const (
	PenaltySchemaViolation  MicroPenaltyKind = "schema_violation"
	PenaltyAPIMisuse        MicroPenaltyKind = "api_misuse"
	PenaltyStaleCitation    MicroPenaltyKind = "stale_citation"
	PenaltyCalibrationDrift MicroPenaltyKind = "calibration_drift"
)

// microPenaltyDelta is the influence-weight delta for each HILS infraction.
func microPenaltyDelta(kind MicroPenaltyKind) float64 {
	switch kind {
	case PenaltySchemaViolation:
		return -0.005
	case PenaltyAPIMisuse:
		return -0.005
	case PenaltyStaleCitation:
		return -0.01
	case PenaltyCalibrationDrift:
		return -0.02
	default:
		return 0
	}
}

// ApplyMicroPenalty reduces an agent's influence weight by the fixed
// delta for kind, clamped to the [0.1, 2.0] floor/ceiling.
func (e *Engine) ApplyMicroPenalty(ctx context.Context, agentID string, kind MicroPenaltyKind) (float64, error) {
	lock := lockFor(agentID)
	lock.Lock()
	defer lock.Unlock()

	agent, err := e.st.GetAgent(ctx, agentID)
	if err != nil {
		return 0, err
	}
	delta := microPenaltyDelta(kind)
	agent.Influence = domain.ClampInfluence(agent.Influence + delta)
	if err := e.st.UpdateAgent(ctx, agent); err != nil {
		return 0, fmt.Errorf("apply micro penalty: %w", err)
	}
	return delta, nil
}

// StartCoolingOff blocks positive trust repair for the duration fixed by
// track (24h honest-error, 48h manipulation).
func (e *Engine) StartCoolingOff(ctx context.Context, agentID string, track domain.Track) error {
	lock := lockFor(agentID)
	lock.Lock()
	defer lock.Unlock()

	agent, err := e.st.GetAgent(ctx, agentID)
	if err != nil {
		return err
	}
	agent.CoolingOffUntil = time.Now().Add(domain.DurationForTrack(track))
	agent.CleanAuditsSince = 0
	return e.st.UpdateAgent(ctx, agent)
}

// RecoveryKind selects which recovery formula applies.
type RecoveryKind string

const (
	RecoveryCleanAudit    RecoveryKind = "clean_audit_micro_penalty"   // +0.5%
	RecoveryHonestError   RecoveryKind = "honest_error_post_cooling"   // +1%, only after cooling-off
	RecoveryManipulation  RecoveryKind = "manipulation_post_cooling"   // +0.5%, cooling-off + 3 clean audits
)

// ApplyRecovery restores influence weight per a clean audit, honoring
// the cooling-off gate and the 3-consecutive-clean-audits requirement
// for the manipulation track. Ceiling 2.0, floor 0.1 (recovery path is
// never fully closed).
func (e *Engine) ApplyRecovery(ctx context.Context, agentID string, kind RecoveryKind) (float64, error) {
	lock := lockFor(agentID)
	lock.Lock()
	defer lock.Unlock()

	agent, err := e.st.GetAgent(ctx, agentID)
	if err != nil {
		return 0, err
	}
	now := time.Now()

	var delta float64
	switch kind {
	case RecoveryCleanAudit:
		delta = 0.005
	case RecoveryHonestError:
		if agent.InCoolingOff(now) {
			return 0, nil
		}
		delta = 0.01
	case RecoveryManipulation:
		if agent.InCoolingOff(now) {
			return 0, nil
		}
		agent.CleanAuditsSince++
		if agent.CleanAuditsSince < 3 {
			if err := e.st.UpdateAgent(ctx, agent); err != nil {
				return 0, err
			}
			return 0, nil
		}
		delta = 0.005
	}

	agent.Influence = domain.ClampInfluence(agent.Influence + delta)
	if err := e.st.UpdateAgent(ctx, agent); err != nil {
		return 0, fmt.Errorf("apply recovery: %w", err)
	}
	return delta, nil
}
