package dispatch

import (
	"context"
	"fmt"

	"github.com/MythologIQ/QoreLogic-sub000/internal/domain"
	"github.com/MythologIQ/QoreLogic-sub000/internal/ledger"
	"github.com/MythologIQ/QoreLogic-sub000/internal/mode"
	"github.com/MythologIQ/QoreLogic-sub000/internal/trust"
)

// UpdateAgentTrust applies a direct EWMA trust update outside the audit
// flow (e.g. a human reviewer scoring an agent's historical output) and
// logs it as a PENALTY entry when outcome is below 0.5, otherwise as a
// REWARD entry.
func (d *Dispatcher) UpdateAgentTrust(ctx context.Context, agentID string, outcome float64, highRisk, violation bool) (*trust.UpdateResult, error) {
	adm, err := d.admit(ctx, mode.PriorityInteractive, domain.RiskL1)
	if err != nil {
		return nil, err
	}
	defer d.release(adm)

	if _, err := d.authenticate(ctx, agentID); err != nil {
		return nil, err
	}

	var upd *trust.UpdateResult
	err = d.withTx(ctx, func(ctx context.Context) error {
		var err error
		upd, err = d.trust.UpdateAgentTrust(ctx, agentID, outcome, trust.UpdateContext{HighRisk: highRisk}, violation)
		if err != nil {
			return fmt.Errorf("update agent trust: %w", err)
		}
		kind := domain.EventReward
		if outcome < 0.5 {
			kind = domain.EventPenalty
		}
		_, err = d.lg.Append(ctx, ledger.AppendParams{
			AgentID: agentID, Kind: kind, Payload: map[string]any{"outcome": outcome, "demoted": upd.Demoted},
			TrustAtTime: upd.Agent.Trust,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return upd, nil
}

// ApplyMicroPenalty reduces an agent's influence weight for one HILS
// infraction and logs it.
func (d *Dispatcher) ApplyMicroPenalty(ctx context.Context, agentID string, kind trust.MicroPenaltyKind) (float64, error) {
	adm, err := d.admit(ctx, mode.PriorityInteractive, domain.RiskL1)
	if err != nil {
		return 0, err
	}
	defer d.release(adm)

	if _, err := d.authenticate(ctx, agentID); err != nil {
		return 0, err
	}

	var delta float64
	err = d.withTx(ctx, func(ctx context.Context) error {
		var err error
		delta, err = d.trust.ApplyMicroPenalty(ctx, agentID, kind)
		if err != nil {
			return fmt.Errorf("apply micro penalty: %w", err)
		}
		_, err = d.lg.Append(ctx, ledger.AppendParams{
			AgentID: agentID, Kind: domain.EventMicroPenalty,
			Payload: map[string]any{"kind": string(kind), "delta": delta},
		})
		return err
	})
	if err != nil {
		return 0, err
	}
	return delta, nil
}

// StartQuarantine blocks an agent for the duration fixed by track and
// starts its cooling-off window, logging both transitions. Both entries
// are system-originated (the agent's cached key is invalidated first), so
// they carry agent_id in the payload and are appended unsigned.
func (d *Dispatcher) StartQuarantine(ctx context.Context, agentID string, track domain.Track, reason string) error {
	adm, err := d.admit(ctx, mode.PriorityInteractive, domain.RiskL2)
	if err != nil {
		return err
	}
	defer d.release(adm)

	err = d.withTx(ctx, func(ctx context.Context) error {
		release, err := d.quar.Start(ctx, agentID, track, reason)
		if err != nil {
			return fmt.Errorf("start quarantine: %w", err)
		}
		d.idm.InvalidateCache(agentID)
		if err := d.trust.StartCoolingOff(ctx, agentID, track); err != nil {
			return fmt.Errorf("start cooling off: %w", err)
		}
		if _, err := d.lg.Append(ctx, ledger.AppendParams{
			Kind:    domain.EventQuarantine,
			Payload: map[string]any{"agent_id": agentID, "track": string(track), "reason": reason, "release": release},
		}); err != nil {
			return err
		}
		_, err = d.lg.Append(ctx, ledger.AppendParams{
			Kind:    domain.EventCoolingOffStart,
			Payload: map[string]any{"agent_id": agentID, "track": string(track)},
		})
		return err
	})
	return err
}
