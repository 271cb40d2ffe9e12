/**
 * @description
 * Cron scheduler for the recurring expiration sweep. A failed sweep arms a single
 * shortened-backoff retry instead of waiting a full interval, so a transient
 * database hiccup does not leave overdue contracts unswept for long. Stopping the
 * scheduler cancels any armed retry.
 */

package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper runs one expiration sweep, returning how many contracts it expired.
type Sweeper interface {
	ExpireOverdueContracts(ctx context.Context) (int, error)
}

// Scheduler manages the recurring expiration sweep.
type Scheduler struct {
	cron         *cron.Cron
	sweeper      Sweeper
	logger       *slog.Logger
	schedule     string
	retryBackoff time.Duration

	stopCtx context.Context
	stop    context.CancelFunc

	mu         sync.Mutex
	retryTimer *time.Timer
}

// NewScheduler creates a scheduler that runs the sweep on the given cron schedule
// and retries after retryBackoff when a sweep fails.
func NewScheduler(sweeper Sweeper, schedule string, retryBackoff time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "expiration_scheduler")

	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	stopCtx, stop := context.WithCancel(context.Background())
	return &Scheduler{
		cron:         c,
		sweeper:      sweeper,
		logger:       logger,
		schedule:     schedule,
		retryBackoff: retryBackoff,
		stopCtx:      stopCtx,
		stop:         stop,
	}
}

// Start registers the sweep job and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.schedule, s.runSweep); err != nil {
		s.logger.Error("failed to schedule expiration sweep", "schedule", s.schedule, "error", err)
		return
	}
	s.logger.Info("scheduled expiration sweep", "schedule", s.schedule)
	s.cron.Start()
}

// Stop cancels any armed retry and stops the cron scheduler. The returned
// context is done once in-flight jobs have finished.
func (s *Scheduler) Stop() context.Context {
	s.stop()
	s.mu.Lock()
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	s.mu.Unlock()
	return s.cron.Stop()
}

func (s *Scheduler) runSweep() {
	if s.stopCtx.Err() != nil {
		return
	}
	// stopCtx gates only the start: a sweep already running when Stop is called
	// finishes on its own context so the batch is not rolled back mid-flight.
	count, err := s.sweeper.ExpireOverdueContracts(context.Background())
	if err != nil {
		s.logger.Error("expiration sweep failed", "error", err)
		s.armRetry()
		return
	}
	if count > 0 {
		s.logger.Info("expiration sweep finished", "expired", count)
	}
}

// armRetry schedules a single early re-run after a failure. At most one retry is
// armed at a time; the regular cron cadence continues regardless.
func (s *Scheduler) armRetry() {
	if s.retryBackoff <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retryTimer != nil {
		return
	}
	s.logger.Info("arming sweep retry", "backoff", s.retryBackoff)
	s.retryTimer = time.AfterFunc(s.retryBackoff, func() {
		s.mu.Lock()
		s.retryTimer = nil
		s.mu.Unlock()
		s.runSweep()
	})
}
