package ledger

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/MythologIQ/QoreLogic-sub000/internal/domain"
)

// ReasoningStep is one step of a multi-step reasoning trace submitted by
// an agent. Each step's hash chains to its predecessor the same way
// ledger entries do, so a forged or reordered step is detectable before
// the trace is ever appended to the ledger.
type ReasoningStep struct {
	Index    int
	Content  string
	StepHash string
	PrevHash string
}

// StepGenesisHash is the sentinel predecessor for a trace's first step.
const StepGenesisHash = domain.GenesisPrevHash

// ComputeStepHash hashes a step's content together with its predecessor.
func ComputeStepHash(content, prevHash string) string {
	h := sha256.New()
	h.Write([]byte(content))
	h.Write([]byte{0})
	h.Write([]byte(prevHash))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyTrace recomputes every step hash in order and reports the index
// of the first broken link, or -1 if the whole trace verifies.
func VerifyTrace(steps []ReasoningStep) int {
	prev := StepGenesisHash
	for i, s := range steps {
		if s.PrevHash != prev {
			return i
		}
		if ComputeStepHash(s.Content, s.PrevHash) != s.StepHash {
			return i
		}
		prev = s.StepHash
	}
	return -1
}
