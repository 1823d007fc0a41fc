// Package store defines the persistence contract used by every other
// governance component. Only two implementations exist: internal/store/memory
// (the default, used by tests and single-operator deployments) and
// internal/store/postgres (for durable multi-process deployments). Callers
// never reach for a concrete implementation directly; they depend on the
// Store interface.
package store

import (
	"context"
	"time"

	"github.com/MythologIQ/QoreLogic-sub000/internal/domain"
)

// ErrNotFound is returned by lookups that find no matching row.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "store: not found" }

// Tx is an open transaction handle. Implementations type-assert it back
// to their concrete transaction type; callers only ever pass it through.
type Tx interface{}

// Store is the full persistence surface. Every externally visible
// dispatcher operation runs inside exactly one Begin/Commit or
// Begin/Rollback pair.
type Store interface {
	Begin(ctx context.Context) (context.Context, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	Agents
	AgentKeys
	Sources
	Ledger
	Claims
	Approvals
	Quarantines
	Deferrals
	Calibration
	Mode

	Close() error
}

// Agents covers the agent_registry table.
type Agents interface {
	CreateAgent(ctx context.Context, a *domain.Agent) error
	GetAgent(ctx context.Context, id string) (*domain.Agent, error)
	UpdateAgent(ctx context.Context, a *domain.Agent) error
	ListAgents(ctx context.Context) ([]*domain.Agent, error)
}

// AgentKeys covers agent_key_material: the passphrase-wrapped private
// key for each agent. This is the only authoritative copy of an agent's
// key material; internal/identity must never rely solely on an
// in-process cache for it.
type AgentKeys interface {
	CreateAgentKey(ctx context.Context, k *domain.AgentKeyRecord) error
	GetAgentKey(ctx context.Context, agentID string) (*domain.AgentKeyRecord, error)
	UpdateAgentKey(ctx context.Context, k *domain.AgentKeyRecord) error
}

// Sources covers source_credibility.
type Sources interface {
	CreateSource(ctx context.Context, s *domain.Source) error
	GetSource(ctx context.Context, url string) (*domain.Source, error)
	UpdateSource(ctx context.Context, s *domain.Source) error
	ListSourcesDueForDecay(ctx context.Context, olderThan time.Time) ([]*domain.Source, error)
}

// Ledger covers soa_ledger. AppendEntry must be called while holding the
// store's exclusive ledger lock (Begin already serializes this for the
// memory store; the postgres store takes a transaction-scoped advisory
// lock in AppendEntry).
type Ledger interface {
	LastEntry(ctx context.Context) (*domain.Entry, error)
	AppendEntry(ctx context.Context, e *domain.Entry) error
	EntryBySequence(ctx context.Context, seq int64) (*domain.Entry, error)
	EntriesFrom(ctx context.Context, seq int64) ([]*domain.Entry, error)
}

// Claims covers claim_volatility.
type Claims interface {
	CreateClaim(ctx context.Context, c *domain.Claim) error
	GetClaim(ctx context.Context, id string) (*domain.Claim, error)
	ListExpiredClaims(ctx context.Context, asOf time.Time) ([]*domain.Claim, error)
}

// Approvals covers l3_approval_queue.
type Approvals interface {
	CreateApproval(ctx context.Context, r *domain.ApprovalRequest) error
	GetApproval(ctx context.Context, id string) (*domain.ApprovalRequest, error)
	UpdateApproval(ctx context.Context, r *domain.ApprovalRequest) error
	ListPendingApprovals(ctx context.Context) ([]*domain.ApprovalRequest, error)
}

// Quarantines covers agent_quarantine.
type Quarantines interface {
	CreateQuarantine(ctx context.Context, q *domain.QuarantineRecord) error
	ActiveQuarantine(ctx context.Context, agentID string) (*domain.QuarantineRecord, error)
	ListExpiredQuarantines(ctx context.Context, asOf time.Time) ([]*domain.QuarantineRecord, error)
}

// Deferrals covers disclosure_deferral.
type Deferrals interface {
	CreateDeferral(ctx context.Context, d *domain.DeferralRecord) error
	GetDeferral(ctx context.Context, id string) (*domain.DeferralRecord, error)
	UpdateDeferral(ctx context.Context, d *domain.DeferralRecord) error
	ListActiveDeferrals(ctx context.Context, asOf time.Time) ([]*domain.DeferralRecord, error)
}

// Calibration covers calibration_log.
type Calibration interface {
	RecordCalibrationSample(ctx context.Context, s *domain.CalibrationSample) error
	RecentCalibrationSamples(ctx context.Context, agentID string, limit int) ([]domain.CalibrationSample, error)
}

// Mode covers the system_state singleton row.
type Mode interface {
	GetSystemState(ctx context.Context) (*domain.SystemState, error)
	SetSystemState(ctx context.Context, s *domain.SystemState) error
}
