// Package postgres is the durable Store implementation, backed by
// lib/pq and jmoiron/sqlx. Schema versioning runs through
// golang-migrate; see Migrate.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/MythologIQ/QoreLogic-sub000/internal/domain"
	"github.com/MythologIQ/QoreLogic-sub000/internal/store"
	"github.com/MythologIQ/QoreLogic-sub000/pkg/resilience"
)

type txKey struct{}

// querier is satisfied by both *sqlx.DB and *sqlx.Tx.
type querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

// Store is the Postgres-backed implementation of store.Store.
type Store struct {
	db *sqlx.DB
}

// Open connects to dsn and wraps the pool with sqlx.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Store{db: db}, nil
}

// NewFromDB wraps an already-open sqlx.DB, used to inject a sqlmock
// connection in tests that don't have a live Postgres instance.
func NewFromDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

// TxFromContext extracts an open transaction, if any.
func TxFromContext(ctx context.Context) *sqlx.Tx {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return nil
}

// ContextWithTx attaches tx to ctx.
func ContextWithTx(ctx context.Context, tx *sqlx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func (s *Store) querier(ctx context.Context) querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return s.db
}

// Begin opens a transaction and attaches it to the returned context.
// The ledger append path additionally takes a transaction-scoped
// advisory lock (see AppendEntry) to serialize writers across processes. Acquiring the
// connection is retried with backoff since a transient pool exhaustion
// or connection reset here would otherwise fail the whole dispatcher
// operation outright.
func (s *Store) Begin(ctx context.Context) (context.Context, error) {
	var tx *sqlx.Tx
	err := resilience.Retry(ctx, resilience.DefaultStoreRetryConfig(), func(ctx context.Context) error {
		var err error
		tx, err = s.db.BeginTxx(ctx, nil)
		return err
	})
	if err != nil {
		return ctx, fmt.Errorf("begin: %w", err)
	}
	return ContextWithTx(ctx, tx), nil
}

func (s *Store) Commit(ctx context.Context) error {
	tx := TxFromContext(ctx)
	if tx == nil {
		return fmt.Errorf("no transaction in context")
	}
	return tx.Commit()
}

func (s *Store) Rollback(ctx context.Context) error {
	tx := TxFromContext(ctx)
	if tx == nil {
		return nil
	}
	return tx.Rollback()
}

// --- Agents ---

type agentRow struct {
	ID               string    `db:"id"`
	Role             string    `db:"role"`
	PublicKey        []byte    `db:"public_key"`
	Influence        float64   `db:"influence_weight"`
	Trust            float64   `db:"trust_score"`
	Stage            string    `db:"trust_stage"`
	Probation        bool      `db:"probation"`
	VerifCount       int       `db:"verif_count"`
	ProbationStart   time.Time `db:"probation_start"`
	QuarantineUntil  time.Time `db:"quarantine_until"`
	CoolingOffUntil  time.Time `db:"cooling_off_until"`
	CleanAuditsSince int       `db:"clean_audits_since"`
	CreatedAt        time.Time `db:"created_at"`
	LastRotation     time.Time `db:"last_rotation"`
}

func (r agentRow) toDomain() *domain.Agent {
	return &domain.Agent{
		ID: r.ID, Role: domain.Role(r.Role), PublicKey: r.PublicKey,
		Influence: r.Influence, Trust: r.Trust, Stage: domain.Stage(r.Stage),
		Probation: r.Probation, VerifCount: r.VerifCount,
		ProbationStart: r.ProbationStart, QuarantineUntil: r.QuarantineUntil,
		CoolingOffUntil: r.CoolingOffUntil, CleanAuditsSince: r.CleanAuditsSince,
		CreatedAt: r.CreatedAt, LastRotation: r.LastRotation,
	}
}

func fromAgent(a *domain.Agent) agentRow {
	return agentRow{
		ID: a.ID, Role: string(a.Role), PublicKey: a.PublicKey,
		Influence: a.Influence, Trust: a.Trust, Stage: string(a.Stage),
		Probation: a.Probation, VerifCount: a.VerifCount,
		ProbationStart: a.ProbationStart, QuarantineUntil: a.QuarantineUntil,
		CoolingOffUntil: a.CoolingOffUntil, CleanAuditsSince: a.CleanAuditsSince,
		CreatedAt: a.CreatedAt, LastRotation: a.LastRotation,
	}
}

func (s *Store) CreateAgent(ctx context.Context, a *domain.Agent) error {
	r := fromAgent(a)
	_, err := s.querier(ctx).ExecContext(ctx, `
		INSERT INTO agent_registry
		(id, role, public_key, influence_weight, trust_score, trust_stage, probation,
		 verif_count, probation_start, quarantine_until, cooling_off_until,
		 clean_audits_since, created_at, last_rotation)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		r.ID, r.Role, r.PublicKey, r.Influence, r.Trust, r.Stage, r.Probation,
		r.VerifCount, r.ProbationStart, r.QuarantineUntil, r.CoolingOffUntil,
		r.CleanAuditsSince, r.CreatedAt, r.LastRotation)
	if err != nil {
		return fmt.Errorf("create agent: %w", err)
	}
	return nil
}

func (s *Store) GetAgent(ctx context.Context, id string) (*domain.Agent, error) {
	var r agentRow
	err := s.querier(ctx).GetContext(ctx, &r, `SELECT * FROM agent_registry WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return r.toDomain(), nil
}

func (s *Store) UpdateAgent(ctx context.Context, a *domain.Agent) error {
	r := fromAgent(a)
	res, err := s.querier(ctx).ExecContext(ctx, `
		UPDATE agent_registry SET role=$2, public_key=$3, influence_weight=$4,
		trust_score=$5, trust_stage=$6, probation=$7, verif_count=$8,
		probation_start=$9, quarantine_until=$10, cooling_off_until=$11,
		clean_audits_since=$12, last_rotation=$13
		WHERE id=$1`,
		r.ID, r.Role, r.PublicKey, r.Influence, r.Trust, r.Stage, r.Probation,
		r.VerifCount, r.ProbationStart, r.QuarantineUntil, r.CoolingOffUntil,
		r.CleanAuditsSince, r.LastRotation)
	if err != nil {
		return fmt.Errorf("update agent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListAgents(ctx context.Context) ([]*domain.Agent, error) {
	var rows []agentRow
	if err := s.querier(ctx).SelectContext(ctx, &rows, `SELECT * FROM agent_registry ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	out := make([]*domain.Agent, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// --- Sources ---

type sourceRow struct {
	URL            string    `db:"url"`
	Tier           string    `db:"tier"`
	SCI            int       `db:"sci"`
	Probation      bool      `db:"probation"`
	ProbationStart time.Time `db:"probation_start"`
	VerifCount     int       `db:"verif_count"`
	LastVerified   time.Time `db:"last_verified"`
	LastDecay      time.Time `db:"last_decay"`
}

func (r sourceRow) toDomain() *domain.Source {
	return &domain.Source{
		URL: r.URL, Tier: domain.SourceTier(r.Tier), SCI: r.SCI,
		Probation: r.Probation, ProbationStart: r.ProbationStart, VerifCount: r.VerifCount,
		LastVerified: r.LastVerified, LastDecay: r.LastDecay,
	}
}

func (s *Store) CreateSource(ctx context.Context, src *domain.Source) error {
	_, err := s.querier(ctx).ExecContext(ctx, `
		INSERT INTO source_credibility (url, tier, sci, probation, probation_start, verif_count, last_verified, last_decay)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		src.URL, string(src.Tier), src.SCI, src.Probation, src.ProbationStart, src.VerifCount, src.LastVerified, src.LastDecay)
	if err != nil {
		return fmt.Errorf("create source: %w", err)
	}
	return nil
}

func (s *Store) GetSource(ctx context.Context, url string) (*domain.Source, error) {
	var r sourceRow
	err := s.querier(ctx).GetContext(ctx, &r, `SELECT * FROM source_credibility WHERE url = $1`, url)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}
	return r.toDomain(), nil
}

func (s *Store) UpdateSource(ctx context.Context, src *domain.Source) error {
	res, err := s.querier(ctx).ExecContext(ctx, `
		UPDATE source_credibility SET tier=$2, sci=$3, probation=$4, probation_start=$5,
		verif_count=$6, last_verified=$7, last_decay=$8 WHERE url=$1`,
		src.URL, string(src.Tier), src.SCI, src.Probation, src.ProbationStart, src.VerifCount, src.LastVerified, src.LastDecay)
	if err != nil {
		return fmt.Errorf("update source: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListSourcesDueForDecay(ctx context.Context, olderThan time.Time) ([]*domain.Source, error) {
	var rows []sourceRow
	if err := s.querier(ctx).SelectContext(ctx, &rows, `SELECT * FROM source_credibility WHERE last_decay < $1`, olderThan); err != nil {
		return nil, fmt.Errorf("list sources due for decay: %w", err)
	}
	out := make([]*domain.Source, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// --- Ledger ---

type ledgerRow struct {
	Sequence           int64     `db:"sequence"`
	Occurred           time.Time `db:"occurred_at"`
	AgentID            *string   `db:"agent_id"`
	Kind               string    `db:"event_kind"`
	Risk               *string   `db:"risk_grade"`
	Payload            []byte    `db:"payload"`
	VerificationMethod *string   `db:"verification_method"`
	VerificationResult *string   `db:"verification_result"`
	ModelVersion       *string   `db:"model_version"`
	TrustAtTime        *float64  `db:"trust_at_time"`
	LegalEffect        bool      `db:"legal_effect"`
	HumanApprover      *string   `db:"human_approver"`
	PrevHash           string    `db:"prev_hash"`
	EntryHash          string    `db:"entry_hash"`
	Signature          []byte    `db:"signature"`
}

func (r ledgerRow) toDomain() (*domain.Entry, error) {
	e := &domain.Entry{
		Sequence: r.Sequence, Occurred: r.Occurred, Kind: domain.EventKind(r.Kind),
		PrevHash: r.PrevHash, EntryHash: r.EntryHash, Signature: r.Signature,
		Flags: domain.Flags{LegalEffect: r.LegalEffect},
	}
	if r.AgentID != nil {
		e.AgentID = *r.AgentID
	}
	if r.Risk != nil {
		e.Risk = domain.RiskGrade(*r.Risk)
	}
	if r.VerificationMethod != nil {
		e.VerificationMethod = *r.VerificationMethod
	}
	if r.VerificationResult != nil {
		e.VerificationResult = *r.VerificationResult
	}
	if r.ModelVersion != nil {
		e.ModelVersion = *r.ModelVersion
	}
	if r.TrustAtTime != nil {
		e.TrustAtTime = *r.TrustAtTime
	}
	if r.HumanApprover != nil {
		e.Flags.HumanApprover = *r.HumanApprover
	}
	if len(r.Payload) > 0 {
		if err := json.Unmarshal(r.Payload, &e.Payload); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
	}
	return e, nil
}

func (s *Store) LastEntry(ctx context.Context) (*domain.Entry, error) {
	var r ledgerRow
	err := s.querier(ctx).GetContext(ctx, &r, `SELECT * FROM soa_ledger ORDER BY sequence DESC LIMIT 1`)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("last entry: %w", err)
	}
	return r.toDomain()
}

// AppendEntry takes an exclusive advisory lock keyed on the ledger table
// before insert, serializing concurrent appends across processes while
// still allowing concurrent readers. The caller must already be inside
// a transaction (Begin), since the lock is session/transaction scoped
// via pg_advisory_xact_lock.
func (s *Store) AppendEntry(ctx context.Context, e *domain.Entry) error {
	q := s.querier(ctx)
	if _, err := q.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext('soa_ledger'))`); err != nil {
		return fmt.Errorf("acquire ledger lock: %w", err)
	}

	var next int64
	if err := s.db.GetContext(ctx, &next, `SELECT COALESCE(MAX(sequence), 0) + 1 FROM soa_ledger`); err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}
	e.Sequence = next

	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	var agentID, risk, verifMethod, verifResult, modelVersion, approver *string
	if e.AgentID != "" {
		agentID = &e.AgentID
	}
	if e.Risk != "" {
		s := string(e.Risk)
		risk = &s
	}
	if e.VerificationMethod != "" {
		verifMethod = &e.VerificationMethod
	}
	if e.VerificationResult != "" {
		verifResult = &e.VerificationResult
	}
	if e.ModelVersion != "" {
		modelVersion = &e.ModelVersion
	}
	if e.Flags.HumanApprover != "" {
		approver = &e.Flags.HumanApprover
	}
	var trustAtTime *float64
	if e.TrustAtTime != 0 {
		trustAtTime = &e.TrustAtTime
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO soa_ledger
		(sequence, occurred_at, agent_id, event_kind, risk_grade, payload,
		 verification_method, verification_result, model_version, trust_at_time,
		 legal_effect, human_approver, prev_hash, entry_hash, signature)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		e.Sequence, e.Occurred, agentID, string(e.Kind), risk, payload,
		verifMethod, verifResult, modelVersion, trustAtTime,
		e.Flags.LegalEffect, approver, e.PrevHash, e.EntryHash, e.Signature)
	if err != nil {
		return fmt.Errorf("append entry: %w", err)
	}
	return nil
}

func (s *Store) EntryBySequence(ctx context.Context, seq int64) (*domain.Entry, error) {
	var r ledgerRow
	err := s.querier(ctx).GetContext(ctx, &r, `SELECT * FROM soa_ledger WHERE sequence = $1`, seq)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("entry by sequence: %w", err)
	}
	return r.toDomain()
}

func (s *Store) EntriesFrom(ctx context.Context, seq int64) ([]*domain.Entry, error) {
	var rows []ledgerRow
	if err := s.querier(ctx).SelectContext(ctx, &rows, `SELECT * FROM soa_ledger WHERE sequence >= $1 ORDER BY sequence`, seq); err != nil {
		return nil, fmt.Errorf("entries from: %w", err)
	}
	out := make([]*domain.Entry, len(rows))
	for i, r := range rows {
		e, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

var _ store.Store = (*Store)(nil)
