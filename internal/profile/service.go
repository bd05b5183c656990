// Package profile builds and caches behavioral profiles.
//
// A profile is derived from an operator's interaction records by the
// analyzer and cached per (operator, scope). Builds for the same key are
// collapsed into a single in-flight computation; on-demand requests and the
// background Scheduler share that one path.
package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/scrypster/bizdna/internal/analyzer"
	"github.com/scrypster/bizdna/internal/metrics"
	"github.com/scrypster/bizdna/internal/storage"
	"github.com/scrypster/bizdna/pkg/types"
)

// Config holds the profile service tunables.
type Config struct {
	// StaleAfter is how long a cached profile is served without a rebuild.
	StaleAfter time.Duration

	// Fetch bounds per record kind, newest first.
	FeedbackLimit int
	PostLimit     int
	QuestionLimit int

	// BuildTimeout bounds one build. Builds are detached from the caller
	// that started them so one cancelled waiter cannot fail the others.
	BuildTimeout time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		StaleAfter:    time.Hour,
		FeedbackLimit: 500,
		PostLimit:     100,
		QuestionLimit: 100,
		BuildTimeout:  time.Minute,
	}
}

// Listener is notified after every build attempt. Implementations must not block.
type Listener interface {
	ProfileBuilt(p *types.BehavioralProfile)
	ProfileBuildFailed(operatorID, scope string, err error)
}

// Service implements GetOrBuild over a record source and a profile repository.
type Service struct {
	records  storage.RecordSource
	repo     storage.ProfileRepository
	analyzer *analyzer.Analyzer
	cfg      Config
	logger   *zap.Logger
	metrics  *metrics.Metrics
	listener Listener
	group    singleflight.Group
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithListener sets the build listener.
func WithListener(l Listener) Option {
	return func(s *Service) { s.listener = l }
}

// WithAnalyzer replaces the default analyzer.
func WithAnalyzer(a *analyzer.Analyzer) Option {
	return func(s *Service) {
		if a != nil {
			s.analyzer = a
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a profile service. Zero-valued Config fields take their
// defaults.
func NewService(records storage.RecordSource, repo storage.ProfileRepository, cfg Config, opts ...Option) *Service {
	def := DefaultConfig()
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = def.StaleAfter
	}
	if cfg.FeedbackLimit <= 0 {
		cfg.FeedbackLimit = def.FeedbackLimit
	}
	if cfg.PostLimit <= 0 {
		cfg.PostLimit = def.PostLimit
	}
	if cfg.QuestionLimit <= 0 {
		cfg.QuestionLimit = def.QuestionLimit
	}
	if cfg.BuildTimeout <= 0 {
		cfg.BuildTimeout = def.BuildTimeout
	}

	s := &Service{
		records:  records,
		repo:     repo,
		analyzer: analyzer.New(analyzer.DefaultTunables()),
		cfg:      cfg,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func flightKey(operatorID, scope string) string {
	return operatorID + "|" + scope
}

// GetOrBuild returns the cached profile when it is fresh and forceRefresh is
// false; otherwise it builds, stores and returns a new one. Concurrent
// builds for the same (operatorID, scope) share one computation and all
// receive its result. A failed build returns a *CacheBuildFailure and leaves
// the cached profile untouched.
func (s *Service) GetOrBuild(ctx context.Context, operatorID, scope string, forceRefresh bool) (*types.BehavioralProfile, error) {
	if operatorID == "" {
		return nil, fmt.Errorf("%w: operator ID is required", storage.ErrInvalidInput)
	}

	if !forceRefresh {
		cached, err := s.repo.GetProfile(ctx, operatorID, scope)
		switch {
		case err == nil && !cached.IsStale(s.now(), s.cfg.StaleAfter):
			s.metrics.RecordCacheHit()
			return cached, nil
		case err != nil && !errors.Is(err, storage.ErrNotFound):
			s.logger.Warn("profile cache read failed; rebuilding",
				zap.String("operator", operatorID), zap.String("scope", scope), zap.Error(err))
		}
	}

	ch := s.group.DoChan(flightKey(operatorID, scope), func() (interface{}, error) {
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.BuildTimeout)
		defer cancel()
		return s.build(buildCtx, operatorID, scope)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		p := res.Val.(*types.BehavioralProfile)
		cp := *p
		return &cp, nil
	}
}

// Refresh forces a rebuild through the single-flight path.
func (s *Service) Refresh(ctx context.Context, operatorID, scope string) (*types.BehavioralProfile, error) {
	return s.GetOrBuild(ctx, operatorID, scope, true)
}

func (s *Service) build(ctx context.Context, operatorID, scope string) (*types.BehavioralProfile, error) {
	start := s.now()
	logger := s.logger.With(zap.String("operator", operatorID), zap.String("scope", scope))

	p, err := s.compute(ctx, logger, operatorID, scope)
	if err != nil {
		failure := &CacheBuildFailure{OperatorID: operatorID, Scope: scope, Cause: err}
		logger.Error("profile build failed", zap.Error(err))
		s.metrics.RecordProfileBuild("failure", time.Since(start))
		if s.listener != nil {
			s.listener.ProfileBuildFailed(operatorID, scope, failure)
		}
		return nil, failure
	}

	logger.Info("profile built",
		zap.Int("total_records", p.TotalRecords),
		zap.Int("completeness", p.DataCompleteness),
		zap.Int("confidence", p.ConfidenceScore),
		zap.Duration("took", time.Since(start)))
	s.metrics.RecordProfileBuild("success", time.Since(start))
	if s.listener != nil {
		s.listener.ProfileBuilt(p)
	}
	return p, nil
}

func (s *Service) compute(ctx context.Context, logger *zap.Logger, operatorID, scope string) (*types.BehavioralProfile, error) {
	identity, err := s.records.GetIdentity(ctx, operatorID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrIdentityMissing
	}
	if err != nil {
		return nil, fmt.Errorf("fetch identity: %w", err)
	}
	if identity == nil {
		return nil, ErrIdentityMissing
	}

	var feedback, posts, questions []types.InteractionRecord
	var partial [3]error

	// A failed facet is recorded in partial and degrades completeness; only
	// the caller's context aborts the build.
	g, gctx := errgroup.WithContext(ctx)
	fetch := func(slot int, facet string, out *[]types.InteractionRecord, list func(context.Context, string, string, int) ([]types.InteractionRecord, error), limit int) {
		g.Go(func() error {
			recs, err := list(gctx, operatorID, scope, limit)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				partial[slot] = &PartialDataError{Facet: facet, Cause: err}
				return nil
			}
			*out = recs
			return nil
		})
	}
	fetch(0, "feedback", &feedback, s.records.ListFeedback, s.cfg.FeedbackLimit)
	fetch(1, "posts", &posts, s.records.ListPosts, s.cfg.PostLimit)
	fetch(2, "questions", &questions, s.records.ListQuestions, s.cfg.QuestionLimit)
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch records: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetch records: %w", err)
	}
	for _, err := range partial {
		var pde *PartialDataError
		if errors.As(err, &pde) {
			logger.Warn("profile facet unavailable", zap.String("facet", pde.Facet), zap.Error(pde))
			s.metrics.RecordPartialData(pde.Facet)
		}
	}

	all := make([]types.InteractionRecord, 0, len(feedback)+len(posts)+len(questions))
	all = append(all, feedback...)
	all = append(all, posts...)
	all = append(all, questions...)

	sig := s.analyzer.Analyze(all)
	p := assemble(identity, scope, sig)
	p.LastComputedAt = s.now().UTC()

	if err := s.repo.UpsertProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("store profile: %w", err)
	}
	return p, nil
}

func assemble(identity *types.OperatorIdentity, scope string, sig analyzer.Signals) *types.BehavioralProfile {
	completeness := Completeness(sig, true)
	return &types.BehavioralProfile{
		OperatorID:       identity.OperatorID,
		Scope:            scope,
		Name:             identity.Name,
		Category:         identity.Category,
		TopTopics:        sig.TopTopics,
		Strengths:        sig.Strengths,
		Weaknesses:       sig.Weaknesses,
		ReplyStyle:       sig.ReplyStyle,
		SignaturePhrases: sig.SignaturePhrases,
		PeakDays:         sig.PeakDays,
		BestContactTimes: sig.BestContactTimes,
		AverageRating:    sig.AverageRating,
		TotalRecords:     sig.TotalRecords,
		ResponseRate:     sig.ResponseRate,
		SentimentScore:   sig.SentimentScore,
		GrowthTrend:      sig.GrowthTrend,
		FeedbackCount:    sig.FeedbackCount,
		PostCount:        sig.PostCount,
		QuestionCount:    sig.QuestionCount,
		DataCompleteness: completeness,
		ConfidenceScore:  Confidence(completeness, sig.TotalRecords),
	}
}
