// Package trust implements the Trust Engine: source credibility (SCI),
// agent reputation (EWMA), stage derivation, transitive trust
// propagation, the HILS micro-penalty layer, cooling-off, probation, and
// recovery.
package trust

import (
	"context"
	"fmt"
	"time"

	"github.com/MythologIQ/QoreLogic-sub000/internal/domain"
	"github.com/MythologIQ/QoreLogic-sub000/internal/store"
	"github.com/MythologIQ/QoreLogic-sub000/pkg/logger"
	"github.com/MythologIQ/QoreLogic-sub000/pkg/metrics"
)

// SCI update parameters, spec §4.3.
const (
	sciAlpha       = 0.8
	sciOmegaOK     = 1.0
	sciOmegaFail   = 1.5
	sciDecayPerDay = 1.0 / 30.0 // 1 point per 30 days of inactivity
)

// Engine mutates agent and source reputation state. All writes go
// through the store; no component outside Engine may write to the
// SCI/trust tables directly.
type Engine struct {
	st  store.Store
	log *logger.Logger
}

// New constructs an Engine.
func New(st store.Store, log *logger.Logger) *Engine {
	return &Engine{st: st, log: log}
}

// RegisterSource creates a source at its tier's initial SCI and starts
// its probation window.
func (e *Engine) RegisterSource(ctx context.Context, url string, tier domain.SourceTier) (*domain.Source, error) {
	now := time.Now()
	src := &domain.Source{
		URL: url, Tier: tier, SCI: domain.InitialSCI(tier),
		Probation: true, ProbationStart: now, LastDecay: now,
	}
	if err := e.st.CreateSource(ctx, src); err != nil {
		return nil, fmt.Errorf("create source: %w", err)
	}
	metrics.SCIUpdates.Observe(float64(src.SCI))
	return src, nil
}

// UpdateSourceVerification applies the asymmetric EMA update for a
// verification outcome (true = success) and returns the updated source.
func (e *Engine) UpdateSourceVerification(ctx context.Context, url string, success bool) (*domain.Source, error) {
	src, err := e.st.GetSource(ctx, url)
	if err != nil {
		return nil, err
	}

	outcome := 0.0
	omega := sciOmegaFail
	if success {
		outcome = 1.0
		omega = sciOmegaOK
	}

	// The formula of spec §4.3 (SCI_new = α·SCI_old + (1−α)·outcome·ω) is
	// defined with outcome and ω in the unit interval, while SCI itself
	// is stored as an integer on 0-100. Applying the update in that
	// normalized domain and rescaling back to 0-100 keeps every update in
	// SCI points instead of collapsing it toward zero. A failure's
	// outcome is 0, so its weight ω=1.5 multiplies zero and a failed
	// verification reduces to SCI_new = α·SCI_old.
	oldNorm := float64(src.SCI) / 100
	nextNorm := sciAlpha*oldNorm + (1-sciAlpha)*outcome*omega
	src.SCI = domain.ClampSCI(int(nextNorm*100+0.5), src.InProbation(time.Now()))
	src.LastVerified = time.Now()
	src.VerifCount++
	if !src.InProbation(time.Now()) {
		src.Probation = false
	}

	if err := e.st.UpdateSource(ctx, src); err != nil {
		return nil, fmt.Errorf("update source: %w", err)
	}
	metrics.SCIUpdates.Observe(float64(src.SCI))
	return src, nil
}

// SCIAction is the policy action an SCI value maps to (spec §4.3 table).
type SCIAction string

const (
	SCIAutoAccept     SCIAction = "auto_accept"
	SCIAuditRequired  SCIAction = "audit_required"
	SCIEscalate       SCIAction = "escalate_to_overseer"
	SCIHardReject     SCIAction = "hard_reject"
)

// ActionForSCI maps an SCI score to its policy action.
func ActionForSCI(sci int) SCIAction {
	switch {
	case sci >= domain.SCIAutoAccept:
		return SCIAutoAccept
	case sci >= domain.SCIAuditRequired:
		return SCIAuditRequired
	case sci >= domain.SCIHardRejectBelow:
		return SCIEscalate
	default:
		return SCIHardReject
	}
}

// DecayInactiveSources drifts every source whose last activity is older
// than one full decay period toward its tier floor, by the periodic
// sweep. Idempotent: a source decayed twice in the same window only
// drifts once per 30-day step actually elapsed.
func (e *Engine) DecayInactiveSources(ctx context.Context, asOf time.Time) (int, error) {
	due, err := e.st.ListSourcesDueForDecay(ctx, asOf.Add(-30*24*time.Hour))
	if err != nil {
		return 0, fmt.Errorf("list sources due for decay: %w", err)
	}

	count := 0
	for _, src := range due {
		days := asOf.Sub(src.LastDecay).Hours() / 24
		steps := days / 30
		if steps < 1 {
			continue
		}
		floor := domain.InitialSCI(src.Tier)
		drift := int(steps * 30 * sciDecayPerDay) // whole points only
		if src.SCI > floor {
			src.SCI -= drift
			if src.SCI < floor {
				src.SCI = floor
			}
		} else if src.SCI < floor {
			src.SCI += drift
			if src.SCI > floor {
				src.SCI = floor
			}
		}
		src.LastDecay = asOf
		if err := e.st.UpdateSource(ctx, src); err != nil {
			return count, fmt.Errorf("update decayed source: %w", err)
		}
		count++
	}
	return count, nil
}
