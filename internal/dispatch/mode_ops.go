package dispatch

import (
	"context"
	"fmt"

	"github.com/MythologIQ/QoreLogic-sub000/internal/domain"
	"github.com/MythologIQ/QoreLogic-sub000/internal/ledger"
)

// SetMode forces an operational mode transition (e.g. a manual entry
// into SAFE mode after a detected hash-tampering incident) and logs the
// transition unconditionally, independent of the admission queue: a
// mode change must never be blocked by the very backpressure it exists
// to relieve.
func (d *Dispatcher) SetMode(ctx context.Context, m domain.Mode, reason string) error {
	_, err := d.modeC.SetMode(ctx, m, reason)
	if err != nil {
		return fmt.Errorf("set mode: %w", err)
	}
	_, err = d.lg.Append(ctx, ledger.AppendParams{Kind: domain.EventModeChange, Payload: map[string]any{"mode": string(m), "reason": reason}})
	return err
}

// VerifyLedgerIntegrity replays the ledger from the given sequence and,
// on any break, forces SAFE mode and appends a HASH_TAMPERING entry
// before returning the break to the caller.
func (d *Dispatcher) VerifyLedgerIntegrity(ctx context.Context, fromSequence int64) (ledger.VerifyResult, error) {
	result, err := d.lg.Replay(ctx, fromSequence)
	if err != nil {
		return ledger.VerifyResult{}, err
	}
	if !result.OK {
		if modeErr := d.SetMode(ctx, domain.ModeSafe, "hash_tampering_detected"); modeErr != nil {
			return result, fmt.Errorf("force safe mode after tampering: %w", modeErr)
		}
		if _, err := d.lg.Append(ctx, ledger.AppendParams{
			Kind: domain.EventHashTampering,
			Payload: map[string]any{
				"broken_sequence": result.BrokenSequence,
				"hash_mismatch":   result.HashMismatch,
				"signature_broken": result.SignatureBroken,
			},
		}); err != nil {
			return result, fmt.Errorf("append hash tampering entry: %w", err)
		}
	}
	return result, nil
}
