// Package ratelimit provides a token-bucket limiter used by the mode
// controller's admission path to shape request throughput independently
// of the bounded queue's depth-based backpressure.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config tunes a Limiter.
type Config struct {
	RequestsPerSecond float64
	Burst             int
}

// DefaultConfig returns conservative defaults suitable for a single-node
// governance core.
func DefaultConfig() Config {
	return Config{RequestsPerSecond: 50, Burst: 100}
}

// Limiter wraps golang.org/x/time/rate with a reset primitive that
// refills the bucket to full burst.
type Limiter struct {
	mu     sync.RWMutex
	bucket *rate.Limiter
	cfg    Config
}

// New creates a Limiter from cfg, filling in defaults for non-positive
// fields.
func New(cfg Config) *Limiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 50
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RequestsPerSecond * 2)
	}
	return &Limiter{bucket: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst), cfg: cfg}
}

// Allow reports whether a request may proceed right now.
func (l *Limiter) Allow() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.bucket.Allow()
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.RLock()
	bucket := l.bucket
	l.mu.RUnlock()
	return bucket.Wait(ctx)
}

// Reset reinitializes the bucket at full burst. Mode transitions do not
// call it.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bucket = rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst)
}

// Retune adjusts the limiter's steady-state rate (e.g. LEAN throttles L1
// traffic) while preserving accumulated tokens.
func (l *Limiter) Retune(requestsPerSecond float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if requestsPerSecond <= 0 {
		requestsPerSecond = l.cfg.RequestsPerSecond
	}
	l.bucket.SetLimit(rate.Limit(requestsPerSecond))
}

// EverySecondsConfig is a convenience constructor expressing a rate as a
// fixed interval between admissions, mirroring rate.Every.
func EverySecondsConfig(interval time.Duration, burst int) Config {
	return Config{RequestsPerSecond: float64(time.Second) / float64(interval), Burst: burst}
}
