package dispatch

import (
	"context"
	"fmt"

	"github.com/MythologIQ/QoreLogic-sub000/internal/domain"
	"github.com/MythologIQ/QoreLogic-sub000/internal/ledger"
	"github.com/MythologIQ/QoreLogic-sub000/internal/mode"
)

// LogEvent appends an arbitrary governance event on behalf of agentID —
// the generic escape hatch for event kinds that do not have a dedicated
// operation (e.g. COACHING, OVERRIDE).
func (d *Dispatcher) LogEvent(ctx context.Context, agentID string, kind domain.EventKind, risk domain.RiskGrade, payload map[string]any) (*domain.Entry, error) {
	adm, err := d.admit(ctx, mode.PriorityInteractive, risk)
	if err != nil {
		return nil, err
	}
	defer d.release(adm)

	if agentID != "" {
		if _, err := d.authenticate(ctx, agentID); err != nil {
			return nil, err
		}
	}

	var entry *domain.Entry
	err = d.withTx(ctx, func(ctx context.Context) error {
		var err error
		entry, err = d.lg.Append(ctx, ledger.AppendParams{AgentID: agentID, Kind: kind, Risk: risk, Payload: payload})
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

// ArchiveFailure records a SHADOW_ARCHIVE entry for an artifact that
// failed verification but is retained for post-hoc analysis rather than
// discarded outright.
func (d *Dispatcher) ArchiveFailure(ctx context.Context, agentID, artifactHash, reason string) (*domain.Entry, error) {
	return d.LogEvent(ctx, agentID, domain.EventShadowArchive, domain.RiskL2, map[string]any{
		"artifact_hash": artifactHash, "reason": reason,
	})
}
