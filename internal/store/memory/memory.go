// Package memory provides the default in-process Store implementation:
// a single mutex-guarded set of maps. It is the store used by tests and
// by single-node deployments that opt out of Postgres durability.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MythologIQ/QoreLogic-sub000/internal/domain"
	"github.com/MythologIQ/QoreLogic-sub000/internal/store"
)

type txKey struct{}

// Store is the in-memory Store. Begin acquires mu and Commit/Rollback
// release it, so every read/write method below assumes the caller has
// an open transaction; there is no separate per-method locking. This
// matches the postgres store's contract (Begin/Commit/Rollback bracket
// every operation) while giving the memory store a single-writer
// ledger for free.
type Store struct {
	mu sync.Mutex

	agents      map[string]*domain.Agent
	agentKeys   map[string]*domain.AgentKeyRecord
	sources     map[string]*domain.Source
	ledger      []*domain.Entry
	claims      map[string]*domain.Claim
	approvals   map[string]*domain.ApprovalRequest
	quarantines map[string][]*domain.QuarantineRecord
	deferrals   map[string]*domain.DeferralRecord
	calibration map[string][]domain.CalibrationSample
	state       *domain.SystemState
}

// New returns an empty in-memory store with the system in NORMAL mode.
func New() *Store {
	return &Store{
		agents:      make(map[string]*domain.Agent),
		agentKeys:   make(map[string]*domain.AgentKeyRecord),
		sources:     make(map[string]*domain.Source),
		claims:      make(map[string]*domain.Claim),
		approvals:   make(map[string]*domain.ApprovalRequest),
		quarantines: make(map[string][]*domain.QuarantineRecord),
		deferrals:   make(map[string]*domain.DeferralRecord),
		calibration: make(map[string][]domain.CalibrationSample),
		state:       &domain.SystemState{Mode: domain.ModeNormal, EnteredAt: time.Now()},
	}
}

// Begin marks the start of a logical transaction. The memory store has
// no real rollback log beyond what is documented below: callers that
// need atomicity across multiple writes should structure their handler
// to validate before mutating, since Rollback here is a no-op.
func (s *Store) Begin(ctx context.Context) (context.Context, error) {
	s.mu.Lock()
	return context.WithValue(ctx, txKey{}, true), nil
}

// Commit releases the transaction lock.
func (s *Store) Commit(ctx context.Context) error {
	s.mu.Unlock()
	return nil
}

// Rollback releases the transaction lock. The memory store does not
// snapshot state, so partial writes made before a rollback are not
// undone; handlers must validate before mutating to preserve the
// no-partial-state invariant.
func (s *Store) Rollback(ctx context.Context) error {
	s.mu.Unlock()
	return nil
}

func (s *Store) Close() error { return nil }

// --- Agents ---

func (s *Store) CreateAgent(ctx context.Context, a *domain.Agent) error {
	cp := *a
	s.agents[a.ID] = &cp
	return nil
}

func (s *Store) GetAgent(ctx context.Context, id string) (*domain.Agent, error) {
	a, ok := s.agents[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *Store) UpdateAgent(ctx context.Context, a *domain.Agent) error {
	if _, ok := s.agents[a.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *a
	s.agents[a.ID] = &cp
	return nil
}

func (s *Store) ListAgents(ctx context.Context) ([]*domain.Agent, error) {
	out := make([]*domain.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- Agent keys ---

func (s *Store) CreateAgentKey(ctx context.Context, k *domain.AgentKeyRecord) error {
	cp := *k
	s.agentKeys[k.AgentID] = &cp
	return nil
}

func (s *Store) GetAgentKey(ctx context.Context, agentID string) (*domain.AgentKeyRecord, error) {
	k, ok := s.agentKeys[agentID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *k
	return &cp, nil
}

func (s *Store) UpdateAgentKey(ctx context.Context, k *domain.AgentKeyRecord) error {
	if _, ok := s.agentKeys[k.AgentID]; !ok {
		return store.ErrNotFound
	}
	cp := *k
	s.agentKeys[k.AgentID] = &cp
	return nil
}

// --- Sources ---

func (s *Store) CreateSource(ctx context.Context, src *domain.Source) error {
	cp := *src
	s.sources[src.URL] = &cp
	return nil
}

func (s *Store) GetSource(ctx context.Context, url string) (*domain.Source, error) {
	src, ok := s.sources[url]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *src
	return &cp, nil
}

func (s *Store) UpdateSource(ctx context.Context, src *domain.Source) error {
	if _, ok := s.sources[src.URL]; !ok {
		return store.ErrNotFound
	}
	cp := *src
	s.sources[src.URL] = &cp
	return nil
}

func (s *Store) ListSourcesDueForDecay(ctx context.Context, olderThan time.Time) ([]*domain.Source, error) {
	var out []*domain.Source
	for _, src := range s.sources {
		if src.LastDecay.Before(olderThan) {
			cp := *src
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- Ledger ---

func (s *Store) LastEntry(ctx context.Context) (*domain.Entry, error) {
	if len(s.ledger) == 0 {
		return nil, store.ErrNotFound
	}
	cp := *s.ledger[len(s.ledger)-1]
	return &cp, nil
}

func (s *Store) AppendEntry(ctx context.Context, e *domain.Entry) error {
	e.Sequence = int64(len(s.ledger) + 1)
	cp := *e
	s.ledger = append(s.ledger, &cp)
	return nil
}

func (s *Store) EntryBySequence(ctx context.Context, seq int64) (*domain.Entry, error) {
	if seq < 1 || int(seq) > len(s.ledger) {
		return nil, store.ErrNotFound
	}
	cp := *s.ledger[seq-1]
	return &cp, nil
}

func (s *Store) EntriesFrom(ctx context.Context, seq int64) ([]*domain.Entry, error) {
	if seq < 1 {
		seq = 1
	}
	var out []*domain.Entry
	for i := seq - 1; i < int64(len(s.ledger)); i++ {
		cp := *s.ledger[i]
		out = append(out, &cp)
	}
	return out, nil
}

// --- Claims ---

func (s *Store) CreateClaim(ctx context.Context, c *domain.Claim) error {
	cp := *c
	s.claims[c.ID] = &cp
	return nil
}

func (s *Store) GetClaim(ctx context.Context, id string) (*domain.Claim, error) {
	c, ok := s.claims[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Store) ListExpiredClaims(ctx context.Context, asOf time.Time) ([]*domain.Claim, error) {
	var out []*domain.Claim
	for _, c := range s.claims {
		if c.IsStale(asOf) {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- Approvals ---

func (s *Store) CreateApproval(ctx context.Context, r *domain.ApprovalRequest) error {
	cp := *r
	s.approvals[r.ID] = &cp
	return nil
}

func (s *Store) GetApproval(ctx context.Context, id string) (*domain.ApprovalRequest, error) {
	r, ok := s.approvals[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *Store) UpdateApproval(ctx context.Context, r *domain.ApprovalRequest) error {
	if _, ok := s.approvals[r.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *r
	s.approvals[r.ID] = &cp
	return nil
}

func (s *Store) ListPendingApprovals(ctx context.Context) ([]*domain.ApprovalRequest, error) {
	var out []*domain.ApprovalRequest
	for _, r := range s.approvals {
		if r.State == domain.ApprovalPending {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- Quarantines ---

func (s *Store) CreateQuarantine(ctx context.Context, q *domain.QuarantineRecord) error {
	cp := *q
	s.quarantines[q.AgentID] = append(s.quarantines[q.AgentID], &cp)
	return nil
}

func (s *Store) ActiveQuarantine(ctx context.Context, agentID string) (*domain.QuarantineRecord, error) {
	recs := s.quarantines[agentID]
	now := time.Now()
	for i := len(recs) - 1; i >= 0; i-- {
		if recs[i].Active(now) {
			cp := *recs[i]
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListExpiredQuarantines(ctx context.Context, asOf time.Time) ([]*domain.QuarantineRecord, error) {
	var out []*domain.QuarantineRecord
	for _, recs := range s.quarantines {
		for _, q := range recs {
			if !q.Active(asOf) {
				cp := *q
				out = append(out, &cp)
			}
		}
	}
	return out, nil
}

// --- Deferrals ---

func (s *Store) CreateDeferral(ctx context.Context, d *domain.DeferralRecord) error {
	cp := *d
	s.deferrals[d.ID] = &cp
	return nil
}

func (s *Store) GetDeferral(ctx context.Context, id string) (*domain.DeferralRecord, error) {
	d, ok := s.deferrals[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *Store) UpdateDeferral(ctx context.Context, d *domain.DeferralRecord) error {
	if _, ok := s.deferrals[d.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *d
	s.deferrals[d.ID] = &cp
	return nil
}

func (s *Store) ListActiveDeferrals(ctx context.Context, asOf time.Time) ([]*domain.DeferralRecord, error) {
	var out []*domain.DeferralRecord
	for _, d := range s.deferrals {
		if d.State == domain.DeferralActive {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- Calibration ---

func (s *Store) RecordCalibrationSample(ctx context.Context, sample *domain.CalibrationSample) error {
	cp := *sample
	samples := append(s.calibration[sample.AgentID], cp)
	if len(samples) > domain.CalibrationWindowSize {
		samples = samples[len(samples)-domain.CalibrationWindowSize:]
	}
	s.calibration[sample.AgentID] = samples
	return nil
}

func (s *Store) RecentCalibrationSamples(ctx context.Context, agentID string, limit int) ([]domain.CalibrationSample, error) {
	samples := s.calibration[agentID]
	if limit <= 0 || limit > len(samples) {
		limit = len(samples)
	}
	out := make([]domain.CalibrationSample, limit)
	copy(out, samples[len(samples)-limit:])
	return out, nil
}

// --- Mode ---

func (s *Store) GetSystemState(ctx context.Context) (*domain.SystemState, error) {
	cp := *s.state
	return &cp, nil
}

func (s *Store) SetSystemState(ctx context.Context, st *domain.SystemState) error {
	cp := *st
	s.state = &cp
	return nil
}

var _ store.Store = (*Store)(nil)
