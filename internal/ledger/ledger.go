// Package ledger implements the SOA Ledger: an append-only, hash-chained,
// signed event log with a genesis axiom and replay verification.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/MythologIQ/QoreLogic-sub000/internal/domain"
	"github.com/MythologIQ/QoreLogic-sub000/internal/identity"
	"github.com/MythologIQ/QoreLogic-sub000/internal/store"
	"github.com/MythologIQ/QoreLogic-sub000/pkg/errs"
	"github.com/MythologIQ/QoreLogic-sub000/pkg/logger"
	"github.com/MythologIQ/QoreLogic-sub000/pkg/metrics"
)

// Signer is the subset of identity.Manager the ledger needs: signing
// entries and verifying them on replay.
type Signer interface {
	Sign(ctx context.Context, agentID, passphrase string, message []byte) ([]byte, error)
	Verify(ctx context.Context, agentID string, message, signature []byte) bool
}

// Ledger appends signed entries and verifies the resulting chain.
type Ledger struct {
	st     store.Store
	signer Signer
	log    *logger.Logger
}

// New constructs a Ledger.
func New(st store.Store, signer Signer, log *logger.Logger) *Ledger {
	return &Ledger{st: st, signer: signer, log: log}
}

// WriteGenesis writes the unique genesis axiom entry. It is a no-op
// (returning nil) if a genesis entry already exists.
func (l *Ledger) WriteGenesis(ctx context.Context) error {
	if _, err := l.st.LastEntry(ctx); err == nil {
		return nil
	} else if err != store.ErrNotFound {
		return fmt.Errorf("check genesis: %w", err)
	}

	entry := &domain.Entry{
		Occurred: time.Now().UTC(),
		Kind:     domain.EventGenesisAxiom,
		Payload:  map[string]any{"axiom": domain.GenesisPayload},
		PrevHash: domain.GenesisPrevHash,
	}
	entry.EntryHash = computeHash(entry)
	// the genesis entry is agent-null and therefore unsigned.
	if err := l.st.AppendEntry(ctx, entry); err != nil {
		return fmt.Errorf("append genesis: %w", err)
	}
	metrics.LedgerAppends.WithLabelValues(string(domain.EventGenesisAxiom)).Inc()
	return nil
}

// AppendParams is the input to Append. An entry with a non-empty AgentID
// is signed with that agent's key, unwrapped with Passphrase; an entry
// with an empty AgentID (the genesis entry and system-originated events
// such as MODE_CHANGE or HASH_TAMPERING) is appended unsigned.
type AppendParams struct {
	AgentID            string
	Passphrase         string
	Kind               domain.EventKind
	Risk               domain.RiskGrade
	Payload            map[string]any
	VerificationMethod string
	VerificationResult string
	ModelVersion       string
	TrustAtTime        float64
	Flags              domain.Flags
}

// Append performs the five-step append procedure of spec §4.5: read the
// previous hash, canonicalize the payload, compute the entry hash, sign
// it, and insert. Callers must already be inside a store transaction
// (see store.Store.Begin) so the read-then-append is atomic under the
// store's exclusive ledger lock.
func (l *Ledger) Append(ctx context.Context, p AppendParams) (*domain.Entry, error) {
	prevHash := domain.GenesisPrevHash
	if last, err := l.st.LastEntry(ctx); err == nil {
		prevHash = last.EntryHash
	} else if err != store.ErrNotFound {
		return nil, fmt.Errorf("read previous entry: %w", err)
	}

	entry := &domain.Entry{
		Occurred:           time.Now().UTC(),
		AgentID:            p.AgentID,
		Kind:               p.Kind,
		Risk:               p.Risk,
		Payload:            canonicalize(p.Payload),
		VerificationMethod: p.VerificationMethod,
		VerificationResult: p.VerificationResult,
		ModelVersion:       p.ModelVersion,
		TrustAtTime:        p.TrustAtTime,
		Flags:              p.Flags,
		PrevHash:           prevHash,
	}
	entry.EntryHash = computeHash(entry)

	if p.AgentID != "" {
		sig, err := l.signer.Sign(ctx, p.AgentID, p.Passphrase, []byte(entry.EntryHash))
		if err != nil {
			return nil, err
		}
		entry.Signature = sig
	}

	if err := l.st.AppendEntry(ctx, entry); err != nil {
		return nil, errs.StoreUnavailable(err)
	}

	metrics.LedgerAppends.WithLabelValues(string(p.Kind)).Inc()
	l.log.LogLedgerAppend(ctx, entry.Sequence, string(p.Kind), string(p.Risk))
	return entry, nil
}

// canonicalize substitutes an empty map for a nil payload and otherwise
// returns payload as is. The deterministic key order needed for hashing
// (Go map iteration order is randomized) is produced by canonicalBytes.
func canonicalize(payload map[string]any) map[string]any {
	if payload == nil {
		return map[string]any{}
	}
	return payload
}

// canonicalBytes renders payload with sorted keys and no insignificant
// whitespace, the representation that computeHash feeds into H().
func canonicalBytes(payload map[string]any) []byte {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]struct {
		K string `json:"k"`
		V any    `json:"v"`
	}, len(keys))
	for i, k := range keys {
		ordered[i].K = k
		ordered[i].V = payload[k]
	}
	b, _ := json.Marshal(ordered)
	return b
}

// computeHash implements entry_hash = H(timestamp || agent || canonical_payload || prev_hash).
func computeHash(e *domain.Entry) string {
	h := sha256.New()
	h.Write([]byte(e.Occurred.UTC().Format(time.RFC3339Nano)))
	h.Write([]byte{0})
	h.Write([]byte(e.AgentID))
	h.Write([]byte{0})
	h.Write(canonicalBytes(e.Payload))
	h.Write([]byte{0})
	h.Write([]byte(e.PrevHash))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyResult is the outcome of a replay pass.
type VerifyResult struct {
	OK              bool
	BrokenSequence  int64 // 0 when OK
	HashMismatch    bool
	SignatureBroken bool
}

// Replay recomputes each entry hash from a starting sequence and
// verifies every signature, detecting both a broken chain link and a
// signature mismatch. Any break emits a HASH_TAMPERING finding via the
// returned VerifyResult; it is the dispatcher's responsibility to log
// that as a ledger event and transition the mode controller to SAFE.
func (l *Ledger) Replay(ctx context.Context, fromSequence int64) (VerifyResult, error) {
	entries, err := l.st.EntriesFrom(ctx, fromSequence)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("load entries: %w", err)
	}

	var prevHash string
	if fromSequence > 1 {
		prior, err := l.st.EntryBySequence(ctx, fromSequence-1)
		if err != nil {
			return VerifyResult{}, fmt.Errorf("load prior entry: %w", err)
		}
		prevHash = prior.EntryHash
	} else {
		prevHash = domain.GenesisPrevHash
	}

	for _, e := range entries {
		if e.PrevHash != prevHash {
			return VerifyResult{BrokenSequence: e.Sequence, HashMismatch: true}, nil
		}
		recomputed := computeHash(e)
		if recomputed != e.EntryHash {
			return VerifyResult{BrokenSequence: e.Sequence, HashMismatch: true}, nil
		}
		if e.AgentID != "" {
			if !l.signer.Verify(ctx, e.AgentID, []byte(e.EntryHash), e.Signature) {
				return VerifyResult{BrokenSequence: e.Sequence, SignatureBroken: true}, nil
			}
		}
		prevHash = e.EntryHash
	}

	return VerifyResult{OK: true}, nil
}
