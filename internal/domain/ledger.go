package domain

import "time"

// RiskGrade classifies the depth of verification a proposed artifact
// must pass through.
type RiskGrade string

const (
	RiskL1 RiskGrade = "L1"
	RiskL2 RiskGrade = "L2"
	RiskL3 RiskGrade = "L3"
)

// EventKind enumerates the mandatory ledger event vocabulary (spec §6).
type EventKind string

const (
	EventGenesisAxiom      EventKind = "GENESIS_AXIOM"
	EventProposal          EventKind = "PROPOSAL"
	EventAuditPass         EventKind = "AUDIT_PASS"
	EventAuditFail         EventKind = "AUDIT_FAIL"
	EventTier3Request      EventKind = "TIER3_REQUEST"
	EventL3ApprovalRequest EventKind = "L3_APPROVAL_REQUEST"
	EventL3Approved        EventKind = "L3_APPROVED"
	EventL3Rejected        EventKind = "L3_REJECTED"
	EventPenalty           EventKind = "PENALTY"
	EventReward            EventKind = "REWARD"
	EventCommit            EventKind = "COMMIT"
	EventQuarantine        EventKind = "QUARANTINE"
	EventQuarantineRelease EventKind = "QUARANTINE_RELEASE"
	EventShadowArchive     EventKind = "SHADOW_ARCHIVE"
	EventOverride          EventKind = "OVERRIDE"
	EventTTLBreach         EventKind = "TTL_BREACH"
	EventCoaching          EventKind = "COACHING"
	EventHashTampering     EventKind = "HASH_TAMPERING"
	EventSupervisedRerun   EventKind = "SUPERVISED_RERUN"
	EventMicroPenalty      EventKind = "MICRO_PENALTY"
	EventCoolingOffStart   EventKind = "COOLING_OFF_START"
	EventCoolingOffEnd     EventKind = "COOLING_OFF_END"
	EventTrustDecay        EventKind = "TRUST_DECAY"
	EventModeChange        EventKind = "MODE_CHANGE"
	EventCancelled         EventKind = "CANCELLED"
)

// GenesisPrevHash is the fixed sentinel previous-hash for the genesis row.
const GenesisPrevHash = "0000000000000000000000000000000000000000000000000000000000000"

// GenesisPayload is the constant axiom string written exactly once.
const GenesisPayload = "AAC_GENESIS_AXIOM_V1"

// Flags carries governance annotations attached to a ledger entry.
type Flags struct {
	LegalEffect   bool
	HumanApprover string
}

// Entry is one hash-chained, signed row of the SOA Ledger.
type Entry struct {
	Sequence int64
	Occurred time.Time

	AgentID string // empty only for the genesis axiom
	Kind    EventKind
	Risk    RiskGrade // empty when not applicable

	Payload map[string]any

	VerificationMethod string
	VerificationResult string

	ModelVersion string
	TrustAtTime  float64 // 0 when not applicable

	Flags Flags

	PrevHash  string
	EntryHash string
	Signature []byte
}

// IsGenesis reports whether e is the distinguished genesis row.
func (e *Entry) IsGenesis() bool {
	return e.Kind == EventGenesisAxiom && e.AgentID == ""
}
