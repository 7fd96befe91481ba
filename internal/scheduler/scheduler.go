// Package scheduler wires up the cron job that periodically abandons submit
// attempts left pending by a crashed or timed-out request.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Reaper marks ledger entries pending for longer than olderThan as abandoned.
type Reaper interface {
	ReapStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Scheduler wraps robfig/cron and manages the reaper loop.
type Scheduler struct {
	cron       *cron.Cron
	reaper     Reaper
	spec       string // cron spec, e.g. "@every 5m"
	staleAfter time.Duration
	logger     *zap.Logger
}

// New creates a Scheduler that runs the reaper on spec.
func New(reaper Reaper, spec string, staleAfter time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:       cron.New(cron.WithLogger(cronLogger{logger.Sugar()})),
		reaper:     reaper,
		spec:       spec,
		staleAfter: staleAfter,
		logger:     logger,
	}
}

// Start registers the job and starts the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	s.logger.Info("reaper scheduled", zap.String("spec", s.spec), zap.Duration("staleAfter", s.staleAfter))
	return nil
}

// Stop shuts down the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("reaper stopped")
}

// RunOnce abandons stale pending attempts and returns how many it touched.
func (s *Scheduler) RunOnce(ctx context.Context) int64 {
	n, err := s.reaper.ReapStale(ctx, s.staleAfter)
	if err != nil {
		s.logger.Error("reap stale submissions failed", zap.Error(err))
		return 0
	}
	if n > 0 {
		s.logger.Warn("abandoned stale submissions", zap.Int64("count", n))
	}
	return n
}

// cronLogger routes robfig/cron's logging through zap.
type cronLogger struct{ l *zap.SugaredLogger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
