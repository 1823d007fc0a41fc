// Package mode implements the Operational Mode Controller: adaptive
// load/threat response (NORMAL/LEAN/SURGE/SAFE), the 25% L3 compute
// reserve invariant, and admission-queue backpressure.
package mode

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/MythologIQ/QoreLogic-sub000/internal/domain"
	"github.com/MythologIQ/QoreLogic-sub000/internal/store"
	"github.com/MythologIQ/QoreLogic-sub000/pkg/logger"
	"github.com/MythologIQ/QoreLogic-sub000/pkg/metrics"
)

// Thresholds configures the controller's mode transition triggers.
type Thresholds struct {
	CPUHighWatermark float64 // sustained 5 min -> LEAN
	CPULowWatermark  float64 // sustained 10 min -> exit LEAN
	QueueSoft        int     // >= this depth attaches SOFT_BACKPRESSURE
	QueueHard        int     // depth > this -> SURGE (UpdateQueueDepth); Queue does not read it
	QueueCapacity    int
}

// DefaultThresholds matches spec §4.6's table.
func DefaultThresholds() Thresholds {
	return Thresholds{CPUHighWatermark: 70, CPULowWatermark: 50, QueueSoft: 40, QueueHard: 50, QueueCapacity: 50}
}

// Policy is the effective per-grade admission policy for the current mode.
type Policy struct {
	L1Sampling float64 // fraction of L1 requests that actually run Tier 1; 0 means deferred
	L1Suspended bool
	L2Suspended bool
	L3HumanOnly bool
}

func policyFor(m domain.Mode) Policy {
	switch m {
	case domain.ModeLean:
		return Policy{L1Sampling: 0.10}
	case domain.ModeSurge:
		return Policy{L1Sampling: 0} // deferred
	case domain.ModeSafe:
		return Policy{L1Suspended: true, L2Suspended: true, L3HumanOnly: true}
	default:
		return Policy{L1Sampling: 1.0}
	}
}

// cpuSample is a single CPU utilization observation feeding the
// sustained-window triggers.
type cpuSample struct {
	at    time.Time
	value float64
}

// Controller owns the in-memory cache of the current mode (invalidated
// on every write) and evaluates transitions; the store row remains the
// authoritative source of truth across restarts.
type Controller struct {
	st         store.Store
	log        *logger.Logger
	thresholds Thresholds

	mu        sync.Mutex
	cached    *domain.SystemState
	cpuWindow []cpuSample
	queueDepth int
	l3Reserved int // slots currently held by L3 requests
}

// New constructs a Controller and loads the current mode from the store.
func New(ctx context.Context, st store.Store, log *logger.Logger, thresholds Thresholds) (*Controller, error) {
	c := &Controller{st: st, log: log, thresholds: thresholds}
	state, err := st.GetSystemState(ctx)
	if err != nil {
		return nil, fmt.Errorf("load system state: %w", err)
	}
	c.cached = state
	return c, nil
}

// Current returns the cached mode without hitting the store.
func (c *Controller) Current() domain.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cached.Mode
}

// EffectivePolicy returns the admission policy for the current mode.
func (c *Controller) EffectivePolicy() Policy {
	return policyFor(c.Current())
}

// SetMode forces a mode transition (manual override, e.g. entering or
// clearing SAFE). The 25% L3 reserve is preserved unconditionally: even
// a manual override cannot be used to starve L3 capacity, per spec §4.6
// and the Open Question resolution recorded for this controller.
func (c *Controller) SetMode(ctx context.Context, m domain.Mode, reason string) (Policy, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := &domain.SystemState{Mode: m, EnteredAt: time.Now(), TriggerReason: reason}
	if err := c.st.SetSystemState(ctx, state); err != nil {
		return Policy{}, fmt.Errorf("persist mode: %w", err)
	}
	c.cached = state
	metrics.ModeTransitions.WithLabelValues(string(m)).Inc()
	c.log.LogSecurityEvent(ctx, "mode_change", logrus.Fields{"mode": string(m), "reason": reason})
	return policyFor(m), nil
}

// RecordCPUSample feeds one utilization observation into the sustained
// CPU window and evaluates LEAN entry/exit.
func (c *Controller) RecordCPUSample(ctx context.Context, utilization float64) error {
	c.mu.Lock()
	now := time.Now()
	c.cpuWindow = append(c.cpuWindow, cpuSample{at: now, value: utilization})
	cutoff := now.Add(-10 * time.Minute)
	trimmed := c.cpuWindow[:0]
	for i, s := range c.cpuWindow {
		// keep the newest sample at or before the cutoff as well, so the
		// full 10-minute window stays observable
		if s.at.After(cutoff) || (i+1 < len(c.cpuWindow) && c.cpuWindow[i+1].at.After(cutoff)) {
			trimmed = append(trimmed, s)
		}
	}
	c.cpuWindow = trimmed
	mode := c.cached.Mode
	c.mu.Unlock()

	if mode == domain.ModeSafe || mode == domain.ModeSurge {
		return nil // SURGE/SAFE triggers take precedence over CPU-based LEAN
	}

	if mode == domain.ModeNormal && c.sustainedAbove(c.thresholds.CPUHighWatermark, 5*time.Minute) {
		_, err := c.SetMode(ctx, domain.ModeLean, "cpu_sustained_high")
		return err
	}
	if mode == domain.ModeLean && c.sustainedBelow(c.thresholds.CPULowWatermark, 10*time.Minute) {
		_, err := c.SetMode(ctx, domain.ModeNormal, "cpu_recovered")
		return err
	}
	return nil
}

func (c *Controller) sustainedAbove(threshold float64, window time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return windowSatisfies(c.cpuWindow, window, func(v float64) bool { return v > threshold })
}

func (c *Controller) sustainedBelow(threshold float64, window time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return windowSatisfies(c.cpuWindow, window, func(v float64) bool { return v < threshold })
}

func windowSatisfies(samples []cpuSample, window time.Duration, pred func(float64) bool) bool {
	if len(samples) == 0 {
		return false
	}
	earliest := samples[0].at
	if time.Since(earliest) < window {
		return false // window not yet fully observed
	}
	start := time.Now().Add(-window)
	for i, s := range samples {
		if i+1 < len(samples) && !samples[i+1].at.After(start) {
			continue // older than the window: a later sample already covers its start
		}
		if !pred(s.value) {
			return false
		}
	}
	return true
}

// UpdateQueueDepth reports the admission queue's current depth and
// evaluates SURGE entry/exit.
func (c *Controller) UpdateQueueDepth(ctx context.Context, depth int) error {
	c.mu.Lock()
	c.queueDepth = depth
	mode := c.cached.Mode
	c.mu.Unlock()

	metrics.QueueDepth.Set(float64(depth))

	if mode == domain.ModeSafe {
		return nil
	}
	if depth > c.thresholds.QueueHard && mode != domain.ModeSurge {
		_, err := c.SetMode(ctx, domain.ModeSurge, "queue_depth_exceeded")
		return err
	}
	if mode == domain.ModeSurge && depth < 10 {
		_, err := c.SetMode(ctx, domain.ModeNormal, "queue_drained")
		return err
	}
	return nil
}
