package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/tenantguard/pkg/observability"
)

// ErrSweeperRunning is returned by Start on a running sweeper.
var ErrSweeperRunning = errors.New("sweeper already running")

// Sweeper periodically removes expired buckets from a MemoryStore. It runs
// on its own schedule and never depends on request traffic.
type Sweeper struct {
	store    *MemoryStore
	interval time.Duration
	logger   *observability.Logger
	metrics  *observability.Metrics

	mu      sync.Mutex
	cron    *cron.Cron
	stopped chan struct{}
}

// NewSweeper creates a sweeper. The schedule resolution is one second; shorter
// intervals are rounded up by the scheduler.
func NewSweeper(store *MemoryStore, interval time.Duration, logger *observability.Logger, metrics *observability.Metrics) *Sweeper {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{store: store, interval: interval, logger: logger, metrics: metrics}
}

// Start schedules the sweep job. The job stops when ctx is cancelled or Stop
// is called, whichever comes first.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return ErrSweeperRunning
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(cron.Every(s.interval), cron.FuncJob(s.SweepOnce))
	c.Start()

	s.cron = c
	s.stopped = make(chan struct{})
	stopped := s.stopped

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-stopped:
		}
	}()

	s.logger.WithField("interval", s.interval.String()).Debug("rate limit sweeper started")
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish. Stop on a
// sweeper that is not running is a no-op.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	if s.stopped != nil {
		close(s.stopped)
		s.stopped = nil
	}
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.logger.Debug("rate limit sweeper stopped")
}

// Run starts the sweeper and blocks until ctx ends.
func (s *Sweeper) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

// SweepOnce removes expired buckets and publishes the remaining count.
func (s *Sweeper) SweepOnce() {
	defer observability.RecoverPanic(s.logger, "ratelimit sweeper")

	removed := s.store.Sweep()
	live := s.store.Len()
	s.metrics.SetBuckets(live)
	if removed > 0 {
		s.logger.WithFields(map[string]interface{}{
			"removed": removed,
			"live":    live,
		}).Debug("swept expired rate limit buckets")
	}
}
