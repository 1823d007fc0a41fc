package mode

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/MythologIQ/QoreLogic-sub000/pkg/logger"
)

// Sampler periodically feeds CPU utilization into a Controller.
type Sampler struct {
	controller *Controller
	interval   time.Duration
	log        *logger.Logger
}

// NewSampler builds a Sampler polling at interval (typically 30s, well
// under the 5-minute sustained window the controller requires before
// transitioning modes).
func NewSampler(c *Controller, interval time.Duration, log *logger.Logger) *Sampler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sampler{controller: c, interval: interval, log: log}
}

// Run blocks, sampling CPU utilization until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			percents, err := cpu.PercentWithContext(ctx, 0, false)
			if err != nil || len(percents) == 0 {
				s.log.WithContext(ctx).WithError(err).Warn("cpu sample failed")
				continue
			}
			if err := s.controller.RecordCPUSample(ctx, percents[0]); err != nil {
				s.log.WithContext(ctx).WithError(err).Warn("record cpu sample failed")
			}
		}
	}
}
