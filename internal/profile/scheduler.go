package profile

import (
	"context"
	"fmt"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/scrypster/bizdna/internal/metrics"
	"github.com/scrypster/bizdna/internal/storage"
	"github.com/scrypster/bizdna/pkg/types"
)

// Builder is the single-flight build path the scheduler drives.
type Builder interface {
	GetOrBuild(ctx context.Context, operatorID, scope string, forceRefresh bool) (*types.BehavioralProfile, error)
}

// SchedulerConfig configures periodic rebuilds.
type SchedulerConfig struct {
	// Spec is a standard 5-field cron expression, e.g. "0 * * * *".
	Spec string
	// ActiveWindow selects operators with conversation activity this recent.
	ActiveWindow time.Duration
	// Concurrency bounds parallel rebuilds within one cycle.
	Concurrency int
}

// DefaultSchedulerConfig rebuilds hourly for operators active in the last week.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Spec:         "0 * * * *",
		ActiveWindow: 7 * 24 * time.Hour,
		Concurrency:  4,
	}
}

// Scheduler periodically force-rebuilds profiles of recently active
// operators through the Builder. Each instance owns its own cron runner, so
// several can coexist in one process.
type Scheduler struct {
	builder Builder
	active  storage.ActivityLister
	cfg     SchedulerConfig
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu      sync.Mutex
	cron    *rcron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

// NewScheduler validates cfg.Spec and returns a stopped scheduler.
func NewScheduler(builder Builder, active storage.ActivityLister, cfg SchedulerConfig, logger *zap.Logger, m *metrics.Metrics) (*Scheduler, error) {
	def := DefaultSchedulerConfig()
	if cfg.Spec == "" {
		cfg.Spec = def.Spec
	}
	if cfg.ActiveWindow <= 0 {
		cfg.ActiveWindow = def.ActiveWindow
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if _, err := rcron.ParseStandard(cfg.Spec); err != nil {
		return nil, fmt.Errorf("invalid scheduler spec %q: %w", cfg.Spec, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		builder: builder,
		active:  active,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}, nil
}

// Start begins running cycles on the configured schedule. Cycles stop when
// ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron = rcron.New(rcron.WithChain(rcron.SkipIfStillRunning(rcron.DiscardLogger)))
	if _, err := s.cron.AddFunc(s.cfg.Spec, func() { s.RunOnce(s.ctx) }); err != nil {
		s.cancel()
		return fmt.Errorf("register scheduler job: %w", err)
	}
	s.cron.Start()
	s.running = true
	s.logger.Info("profile scheduler started", zap.String("spec", s.cfg.Spec))
	return nil
}

// Stop halts the schedule and waits for a running cycle to finish or for
// ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.cancel()
	done := s.cron.Stop()
	s.mu.Unlock()

	select {
	case <-done.Done():
		s.logger.Info("profile scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce runs a single rebuild cycle and returns how many profiles were
// rebuilt successfully. Individual failures are logged and do not stop the
// cycle.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	s.metrics.RecordSchedulerCycle()

	keys, err := s.active.ListActiveOperators(ctx, s.now().Add(-s.cfg.ActiveWindow))
	if err != nil {
		s.logger.Error("scheduler: failed to list active operators", zap.Error(err))
		return 0
	}

	var mu sync.Mutex
	rebuilt := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, k := range keys {
		g.Go(func() error {
			if _, err := s.builder.GetOrBuild(gctx, k.OperatorID, k.Scope, true); err != nil {
				s.logger.Warn("scheduler: rebuild failed",
					zap.String("operator", k.OperatorID), zap.String("scope", k.Scope), zap.Error(err))
				return nil
			}
			mu.Lock()
			rebuilt++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("scheduler: cycle complete", zap.Int("operators", len(keys)), zap.Int("rebuilt", rebuilt))
	return rebuilt
}
