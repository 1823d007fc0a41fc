// Package sweep runs the periodic reconciliation job: TTL/quarantine/
// deferral expiry sweeps, SCI temporal decay, and the daily
// calibration-drift aggregate. The lazy per-access checks elsewhere
// remain authoritative (spec §5); this sweep exists for observability
// and for state that nothing else would otherwise touch (e.g. a claim
// nobody re-accesses).
package sweep

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/MythologIQ/QoreLogic-sub000/internal/calibration"
	"github.com/MythologIQ/QoreLogic-sub000/internal/deferral"
	"github.com/MythologIQ/QoreLogic-sub000/internal/domain"
	"github.com/MythologIQ/QoreLogic-sub000/internal/ledger"
	"github.com/MythologIQ/QoreLogic-sub000/internal/quarantine"
	"github.com/MythologIQ/QoreLogic-sub000/internal/store"
	"github.com/MythologIQ/QoreLogic-sub000/internal/trust"
	"github.com/MythologIQ/QoreLogic-sub000/internal/ttl"
	"github.com/MythologIQ/QoreLogic-sub000/pkg/logger"
)

// EntryWriter appends sweep-generated ledger events (TTL_BREACH,
// QUARANTINE_RELEASE, TRUST_DECAY, MICRO_PENALTY). It is satisfied by
// *ledger.Ledger; sweep-originated entries carry no agent signature
// since they are system-triggered, not agent-actioned.
type EntryWriter interface {
	Append(ctx context.Context, p ledger.AppendParams) (*domain.Entry, error)
}

func (s *Service) appendSystem(ctx context.Context, kind domain.EventKind, payload map[string]any) {
	if _, err := s.writer.Append(ctx, ledger.AppendParams{Kind: kind, Risk: domain.RiskL1, Payload: payload}); err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("sweep ledger append failed")
	}
}

// Service drives the periodic sweep on a cron schedule.
type Service struct {
	cron    *cron.Cron
	st      store.Store
	ttl     *ttl.Manager
	quarant *quarantine.Manager
	defer_  *deferral.Manager
	calib   *calibration.Manager
	trustE  *trust.Engine
	log     *logger.Logger
	writer  EntryWriter
}

// New constructs a sweep Service. schedule is a standard 5-field cron
// expression, e.g. "*/5 * * * *" for every 5 minutes.
func New(st store.Store, trustE *trust.Engine, writer EntryWriter, log *logger.Logger) *Service {
	return &Service{
		cron:    cron.New(),
		st:      st,
		ttl:     ttl.New(st),
		quarant: quarantine.New(st),
		defer_:  deferral.New(st),
		calib:   calibration.New(st),
		trustE:  trustE,
		log:     log,
		writer:  writer,
	}
}

// Start registers the reconciliation jobs and starts the cron scheduler.
func (s *Service) Start(ctx context.Context, schedule string) error {
	if schedule == "" {
		schedule = "*/5 * * * *"
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.runReconciliation(ctx) }); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("0 3 * * *", func() { s.runDailyAggregate(ctx) }); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for any in-flight job.
func (s *Service) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	return nil
}

func (s *Service) runReconciliation(ctx context.Context) {
	now := time.Now()

	stale, err := s.ttl.SweepExpired(ctx, now)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("ttl sweep failed")
	}
	for _, c := range stale {
		s.appendSystem(ctx, domain.EventTTLBreach, map[string]any{"claim_id": c.ID, "content_hash": c.ContentHash})
	}

	released, err := s.quarant.SweepExpired(ctx, now)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("quarantine sweep failed")
	}
	for _, q := range released {
		s.appendSystem(ctx, domain.EventQuarantineRelease, map[string]any{"agent_id": q.AgentID, "track": string(q.Track)})
	}

	forced, err := s.defer_.SweepExpired(ctx, now)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("deferral sweep failed")
	}
	for _, d := range forced {
		_ = s.defer_.CheckExpiry(ctx, d.ID)
	}

	decayed, err := s.trustE.DecayInactiveSources(ctx, now)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("source decay sweep failed")
	} else if decayed > 0 {
		s.appendSystem(ctx, domain.EventTrustDecay, map[string]any{"sources_decayed": decayed})
	}
}

// runDailyAggregate applies the daily calibration-drift micro-penalty
// (spec §4.3's HILS table: -0.02, detected daily) to every agent whose
// rolling Brier score exceeds the threshold.
func (s *Service) runDailyAggregate(ctx context.Context) {
	agents, err := s.st.ListAgents(ctx)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("list agents for calibration aggregate failed")
		return
	}
	for _, a := range agents {
		drift, score, err := s.calib.NeedsHonestErrorTrack(ctx, a.ID)
		if err != nil {
			s.log.WithContext(ctx).WithError(err).Warn("calibration check failed")
			continue
		}
		if !drift {
			continue
		}
		if _, err := s.trustE.ApplyMicroPenalty(ctx, a.ID, trust.PenaltyCalibrationDrift); err != nil {
			s.log.WithContext(ctx).WithError(err).Warn("calibration micro-penalty failed")
			continue
		}
		s.appendSystem(ctx, domain.EventMicroPenalty, map[string]any{"agent_id": a.ID, "kind": "calibration_drift", "brier_score": score})
	}
}
