package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/MythologIQ/QoreLogic-sub000/internal/domain"
	"github.com/MythologIQ/QoreLogic-sub000/internal/store"
	"github.com/MythologIQ/QoreLogic-sub000/pkg/resilience"
)

// --- Agent keys ---

type agentKeyRow struct {
	AgentID           string        `db:"agent_id"`
	PublicKey         []byte        `db:"public_key"`
	WrappedSalt       []byte        `db:"wrapped_salt"`
	WrappedCiphertext []byte        `db:"wrapped_ciphertext"`
	PriorPublicKeys   pq.ByteaArray `db:"prior_public_keys"`
	CreatedAt         time.Time     `db:"created_at"`
	UpdatedAt         time.Time     `db:"updated_at"`
}

func (r agentKeyRow) toDomain() *domain.AgentKeyRecord {
	return &domain.AgentKeyRecord{
		AgentID: r.AgentID, PublicKey: r.PublicKey,
		WrappedSalt: r.WrappedSalt, WrappedCiphertext: r.WrappedCiphertext,
		PriorPublicKeys: [][]byte(r.PriorPublicKeys), CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

func (s *Store) CreateAgentKey(ctx context.Context, k *domain.AgentKeyRecord) error {
	_, err := s.querier(ctx).ExecContext(ctx, `
		INSERT INTO agent_key_material
		(agent_id, public_key, wrapped_salt, wrapped_ciphertext, prior_public_keys, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		k.AgentID, k.PublicKey, k.WrappedSalt, k.WrappedCiphertext,
		pq.ByteaArray(k.PriorPublicKeys), k.CreatedAt, k.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create agent key: %w", err)
	}
	return nil
}

func (s *Store) GetAgentKey(ctx context.Context, agentID string) (*domain.AgentKeyRecord, error) {
	var r agentKeyRow
	err := s.querier(ctx).GetContext(ctx, &r, `SELECT * FROM agent_key_material WHERE agent_id = $1`, agentID)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get agent key: %w", err)
	}
	return r.toDomain(), nil
}

func (s *Store) UpdateAgentKey(ctx context.Context, k *domain.AgentKeyRecord) error {
	res, err := s.querier(ctx).ExecContext(ctx, `
		UPDATE agent_key_material SET public_key=$2, wrapped_salt=$3, wrapped_ciphertext=$4,
		prior_public_keys=$5, updated_at=$6 WHERE agent_id=$1`,
		k.AgentID, k.PublicKey, k.WrappedSalt, k.WrappedCiphertext,
		pq.ByteaArray(k.PriorPublicKeys), k.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update agent key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- Claims ---

type claimRow struct {
	ID           string    `db:"id"`
	ContentHash  string    `db:"content_hash"`
	Class        string    `db:"volatility_class"`
	RegisteredAt time.Time `db:"registered_at"`
	SourceURL    string    `db:"source_url"`
}

func (r claimRow) toDomain() *domain.Claim {
	return &domain.Claim{ID: r.ID, ContentHash: r.ContentHash, Class: domain.VolatilityClass(r.Class),
		RegisteredAt: r.RegisteredAt, SourceURL: r.SourceURL}
}

func (s *Store) CreateClaim(ctx context.Context, c *domain.Claim) error {
	_, err := s.querier(ctx).ExecContext(ctx, `
		INSERT INTO claim_volatility (id, content_hash, volatility_class, registered_at, source_url)
		VALUES ($1,$2,$3,$4,$5)`, c.ID, c.ContentHash, string(c.Class), c.RegisteredAt, c.SourceURL)
	if err != nil {
		return fmt.Errorf("create claim: %w", err)
	}
	return nil
}

func (s *Store) GetClaim(ctx context.Context, id string) (*domain.Claim, error) {
	var r claimRow
	err := s.querier(ctx).GetContext(ctx, &r, `SELECT * FROM claim_volatility WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get claim: %w", err)
	}
	return r.toDomain(), nil
}

func (s *Store) ListExpiredClaims(ctx context.Context, asOf time.Time) ([]*domain.Claim, error) {
	var rows []claimRow
	if err := s.querier(ctx).SelectContext(ctx, &rows, `SELECT * FROM claim_volatility`); err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	var out []*domain.Claim
	for _, r := range rows {
		c := r.toDomain()
		if c.IsStale(asOf) {
			out = append(out, c)
		}
	}
	return out, nil
}

// --- Approvals ---

type approvalRow struct {
	ID           string    `db:"id"`
	ArtifactHash string    `db:"artifact_hash"`
	Reason       string    `db:"reason"`
	Requester    string    `db:"requester_agent"`
	CreatedAt    time.Time `db:"created_at"`
	Deadline     time.Time `db:"deadline"`
	State        string    `db:"state"`
	Resolver     *string   `db:"resolver_agent"`
	ResolvedAt   *time.Time `db:"resolved_at"`
	Notes        *string   `db:"notes"`
}

func (r approvalRow) toDomain() *domain.ApprovalRequest {
	out := &domain.ApprovalRequest{ID: r.ID, ArtifactHash: r.ArtifactHash, Reason: r.Reason,
		Requester: r.Requester, CreatedAt: r.CreatedAt, Deadline: r.Deadline, State: domain.ApprovalState(r.State)}
	if r.Resolver != nil {
		out.Resolver = *r.Resolver
	}
	if r.ResolvedAt != nil {
		out.ResolvedAt = *r.ResolvedAt
	}
	if r.Notes != nil {
		out.Notes = *r.Notes
	}
	return out
}

func (s *Store) CreateApproval(ctx context.Context, r *domain.ApprovalRequest) error {
	_, err := s.querier(ctx).ExecContext(ctx, `
		INSERT INTO l3_approval_queue (id, artifact_hash, reason, requester_agent, created_at, deadline, state)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`, r.ID, r.ArtifactHash, r.Reason, r.Requester, r.CreatedAt, r.Deadline, string(r.State))
	if err != nil {
		return fmt.Errorf("create approval: %w", err)
	}
	return nil
}

func (s *Store) GetApproval(ctx context.Context, id string) (*domain.ApprovalRequest, error) {
	var r approvalRow
	err := s.querier(ctx).GetContext(ctx, &r, `SELECT * FROM l3_approval_queue WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get approval: %w", err)
	}
	return r.toDomain(), nil
}

func (s *Store) UpdateApproval(ctx context.Context, r *domain.ApprovalRequest) error {
	var resolver, notes *string
	if r.Resolver != "" {
		resolver = &r.Resolver
	}
	if r.Notes != "" {
		notes = &r.Notes
	}
	var resolvedAt *time.Time
	if !r.ResolvedAt.IsZero() {
		resolvedAt = &r.ResolvedAt
	}
	res, err := s.querier(ctx).ExecContext(ctx, `
		UPDATE l3_approval_queue SET state=$2, resolver_agent=$3, resolved_at=$4, notes=$5
		WHERE id=$1`, r.ID, string(r.State), resolver, resolvedAt, notes)
	if err != nil {
		return fmt.Errorf("update approval: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListPendingApprovals(ctx context.Context) ([]*domain.ApprovalRequest, error) {
	var rows []approvalRow
	if err := s.querier(ctx).SelectContext(ctx, &rows, `SELECT * FROM l3_approval_queue WHERE state = $1`, string(domain.ApprovalPending)); err != nil {
		return nil, fmt.Errorf("list pending approvals: %w", err)
	}
	out := make([]*domain.ApprovalRequest, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// --- Quarantines ---

type quarantineRow struct {
	ID      string    `db:"id"`
	AgentID string    `db:"agent_id"`
	Track   string    `db:"track"`
	Reason  string    `db:"reason"`
	Start   time.Time `db:"start_at"`
	Release time.Time `db:"release_at"`
}

func (r quarantineRow) toDomain() *domain.QuarantineRecord {
	return &domain.QuarantineRecord{ID: r.ID, AgentID: r.AgentID, Track: domain.Track(r.Track),
		Reason: r.Reason, Start: r.Start, Release: r.Release}
}

func (s *Store) CreateQuarantine(ctx context.Context, q *domain.QuarantineRecord) error {
	_, err := s.querier(ctx).ExecContext(ctx, `
		INSERT INTO agent_quarantine (id, agent_id, track, reason, start_at, release_at)
		VALUES (gen_random_uuid(), $1,$2,$3,$4,$5)`, q.AgentID, string(q.Track), q.Reason, q.Start, q.Release)
	if err != nil {
		return fmt.Errorf("create quarantine: %w", err)
	}
	return nil
}

func (s *Store) ActiveQuarantine(ctx context.Context, agentID string) (*domain.QuarantineRecord, error) {
	var r quarantineRow
	err := s.querier(ctx).GetContext(ctx, &r, `
		SELECT * FROM agent_quarantine WHERE agent_id = $1 AND release_at > now()
		ORDER BY start_at DESC LIMIT 1`, agentID)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("active quarantine: %w", err)
	}
	return r.toDomain(), nil
}

func (s *Store) ListExpiredQuarantines(ctx context.Context, asOf time.Time) ([]*domain.QuarantineRecord, error) {
	var rows []quarantineRow
	if err := s.querier(ctx).SelectContext(ctx, &rows, `SELECT * FROM agent_quarantine WHERE release_at <= $1`, asOf); err != nil {
		return nil, fmt.Errorf("list expired quarantines: %w", err)
	}
	out := make([]*domain.QuarantineRecord, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// --- Deferrals ---

type deferralRow struct {
	ID           string    `db:"id"`
	ArtifactHash string    `db:"artifact_hash"`
	Category     string    `db:"category"`
	Reason       string    `db:"reason"`
	CreatedAt    time.Time `db:"created_at"`
	Deadline     time.Time `db:"deadline"`
	State        string    `db:"state"`
}

func (r deferralRow) toDomain() *domain.DeferralRecord {
	return &domain.DeferralRecord{ID: r.ID, ArtifactHash: r.ArtifactHash, Category: domain.DeferralCategory(r.Category),
		Reason: r.Reason, CreatedAt: r.CreatedAt, Deadline: r.Deadline, State: domain.DeferralState(r.State)}
}

func (s *Store) CreateDeferral(ctx context.Context, d *domain.DeferralRecord) error {
	_, err := s.querier(ctx).ExecContext(ctx, `
		INSERT INTO disclosure_deferral (id, artifact_hash, category, reason, created_at, deadline, state)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`, d.ID, d.ArtifactHash, string(d.Category), d.Reason, d.CreatedAt, d.Deadline, string(d.State))
	if err != nil {
		return fmt.Errorf("create deferral: %w", err)
	}
	return nil
}

func (s *Store) GetDeferral(ctx context.Context, id string) (*domain.DeferralRecord, error) {
	var r deferralRow
	err := s.querier(ctx).GetContext(ctx, &r, `SELECT * FROM disclosure_deferral WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get deferral: %w", err)
	}
	return r.toDomain(), nil
}

func (s *Store) UpdateDeferral(ctx context.Context, d *domain.DeferralRecord) error {
	res, err := s.querier(ctx).ExecContext(ctx, `UPDATE disclosure_deferral SET state=$2 WHERE id=$1`, d.ID, string(d.State))
	if err != nil {
		return fmt.Errorf("update deferral: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListActiveDeferrals(ctx context.Context, asOf time.Time) ([]*domain.DeferralRecord, error) {
	var rows []deferralRow
	if err := s.querier(ctx).SelectContext(ctx, &rows, `SELECT * FROM disclosure_deferral WHERE state = $1`, string(domain.DeferralActive)); err != nil {
		return nil, fmt.Errorf("list active deferrals: %w", err)
	}
	out := make([]*domain.DeferralRecord, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// --- Calibration ---

type calibrationRow struct {
	AgentID    string    `db:"agent_id"`
	Confidence float64   `db:"claimed_confidence"`
	Correct    bool      `db:"correct"`
	RecordedAt time.Time `db:"recorded_at"`
}

func (s *Store) RecordCalibrationSample(ctx context.Context, sample *domain.CalibrationSample) error {
	_, err := s.querier(ctx).ExecContext(ctx, `
		INSERT INTO calibration_log (agent_id, claimed_confidence, correct, recorded_at)
		VALUES ($1,$2,$3,$4)`, sample.AgentID, sample.ClaimedConfidence, sample.Correct, sample.RecordedAt)
	if err != nil {
		return fmt.Errorf("record calibration sample: %w", err)
	}
	return nil
}

func (s *Store) RecentCalibrationSamples(ctx context.Context, agentID string, limit int) ([]domain.CalibrationSample, error) {
	if limit <= 0 {
		limit = domain.CalibrationWindowSize
	}
	var rows []calibrationRow
	if err := s.querier(ctx).SelectContext(ctx, &rows, `
		SELECT agent_id, claimed_confidence, correct, recorded_at FROM calibration_log
		WHERE agent_id = $1 ORDER BY recorded_at DESC LIMIT $2`, agentID, limit); err != nil {
		return nil, fmt.Errorf("recent calibration samples: %w", err)
	}
	out := make([]domain.CalibrationSample, len(rows))
	for i, r := range rows {
		out[i] = domain.CalibrationSample{AgentID: r.AgentID, ClaimedConfidence: r.Confidence, Correct: r.Correct, RecordedAt: r.RecordedAt}
	}
	return out, nil
}

// --- Mode ---

type systemStateRow struct {
	Mode          string    `db:"mode"`
	EnteredAt     time.Time `db:"entered_at"`
	TriggerReason string    `db:"trigger_reason"`
}

func (s *Store) GetSystemState(ctx context.Context) (*domain.SystemState, error) {
	var r systemStateRow
	err := resilience.Retry(ctx, resilience.DefaultStoreRetryConfig(), func(ctx context.Context) error {
		return s.querier(ctx).GetContext(ctx, &r, `SELECT mode, entered_at, trigger_reason FROM system_state WHERE id = 1`)
	})
	if err != nil {
		return nil, fmt.Errorf("get system state: %w", err)
	}
	return &domain.SystemState{Mode: domain.Mode(r.Mode), EnteredAt: r.EnteredAt, TriggerReason: r.TriggerReason}, nil
}

func (s *Store) SetSystemState(ctx context.Context, st *domain.SystemState) error {
	_, err := s.querier(ctx).ExecContext(ctx, `
		UPDATE system_state SET mode=$1, entered_at=$2, trigger_reason=$3 WHERE id = 1`,
		string(st.Mode), st.EnteredAt, st.TriggerReason)
	if err != nil {
		return fmt.Errorf("set system state: %w", err)
	}
	return nil
}
