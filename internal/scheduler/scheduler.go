// Package scheduler wires up the cron job that periodically triggers
// acquisition for all active SearchConfigs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"jobmate/acquisition-service/internal/model"
	"jobmate/acquisition-service/internal/scraper"
)

// ConfigSource lists the search configs a cycle should cover.
type ConfigSource func(ctx context.Context) ([]model.SearchConfig, error)

// ConfigRunner runs one config's acquisition cycle.
type ConfigRunner interface {
	Run(ctx context.Context, cfg model.SearchConfig) (scraper.CycleSummary, error)
}

// Scheduler wraps robfig/cron and manages the acquisition loop.
type Scheduler struct {
	cron        *cron.Cron
	configs     ConfigSource
	worker      ConfigRunner
	spec        string // cron spec, e.g. "@every 6h"
	concurrency int
	logger      *slog.Logger

	// running guards against a slow cycle overlapping the next tick.
	running sync.Mutex
	// cycles tracks cycles started outside cron so Stop can wait for them.
	cycles sync.WaitGroup
}

// New creates a Scheduler that fires every intervalHours hours and runs up to
// concurrency configs at once.
func New(configs ConfigSource, worker ConfigRunner, intervalHours, concurrency int, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	logger = logger.With("component", "scheduler")
	return &Scheduler{
		cron:        cron.New(cron.WithLogger(cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug)))),
		configs:     configs,
		worker:      worker,
		spec:        fmt.Sprintf("@every %dh", intervalHours),
		concurrency: concurrency,
		logger:      logger,
	}
}

// Start registers the job and starts the scheduler. Also runs one cycle
// immediately so the feed is populated without waiting for the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "cron started", "spec", s.spec)

	s.cycles.Add(1)
	go func() {
		defer s.cycles.Done()
		s.RunOnce(ctx)
	}()

	return nil
}

// Stop halts the cron and waits for every running cycle to return, the
// immediate one from Start included.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.cycles.Wait()
	s.logger.Info("cron stopped")
}

// RunOnce loads all active configs and runs the worker for each. A cycle
// that starts while another is still running is skipped. It reports how many
// configs were processed.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	if !s.running.TryLock() {
		s.logger.WarnContext(ctx, "previous cycle still running, skipping tick")
		return 0
	}
	defer s.running.Unlock()

	s.logger.InfoContext(ctx, "acquisition cycle started")

	configs, err := s.configs(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "loading active configs failed", "err", err)
		return 0
	}
	if len(configs) == 0 {
		s.logger.InfoContext(ctx, "no active search configs, nothing to acquire")
		return 0
	}

	s.logger.InfoContext(ctx, "running acquisition", "configs", len(configs))

	// Configs fail independently, so the group never cancels its siblings.
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, cfg := range configs {
		g.Go(func() error {
			if _, err := s.worker.Run(ctx, cfg); err != nil {
				s.logger.ErrorContext(ctx, "worker failed", "config_id", cfg.ID, "err", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.InfoContext(ctx, "acquisition cycle complete", "configs", len(configs))
	return len(configs)
}
