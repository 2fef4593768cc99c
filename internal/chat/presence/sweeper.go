package presence

import (
	"context"
	"time"

	"chat_presence_service/pkg/logger"

	"go.uber.org/zap"
)

// Sweeper prunes connections that stopped sending heartbeats, whether or not a close was seen
type Sweeper struct {
	registry *Registry
	interval time.Duration
	timeout  time.Duration
	// extra jobs that share the sweep schedule
	jobs []func(now time.Time)
}

// NewSweeper create Sweeper
func NewSweeper(registry *Registry, interval, timeout time.Duration) *Sweeper {
	return &Sweeper{registry: registry, interval: interval, timeout: timeout}
}

// Also run job on every sweep
func (s *Sweeper) Also(job func(now time.Time)) *Sweeper {
	s.jobs = append(s.jobs, job)
	return s
}

// SweepOnce one pass at now
func (s *Sweeper) SweepOnce(now time.Time) int {
	n := s.registry.Sweep(now, s.timeout)
	for _, job := range s.jobs {
		job(now)
	}
	if n > 0 {
		logger.Log.Info("swept stale connections", zap.Int("count", n), zap.Duration("timeout", s.timeout))
	}
	return n
}

// Run sweep every interval until ctx ends
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	logger.Log.Info("presence sweeper started", zap.Duration("interval", s.interval), zap.Duration("timeout", s.timeout))
	for {
		select {
		case now := <-ticker.C:
			s.SweepOnce(now)
		case <-ctx.Done():
			logger.Log.Info("presence sweeper stopped")
			return
		}
	}
}
