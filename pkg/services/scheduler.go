package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/insightpilot/insight-engine/pkg/config"
	"github.com/insightpilot/insight-engine/pkg/repositories"
)

// Scheduler drives the periodic maintenance work: insight refresh, exemplar
// optimization, and insight retention.
type Scheduler struct {
	cron      *cron.Cron
	cfg       config.SchedulerConfig
	freshness time.Duration
	insights  InsightService
	optimizer FeedbackOptimizer
	repo      repositories.InsightRepository
	datasets  repositories.DatasetRepository
	logger    *zap.Logger
}

// NewScheduler creates a Scheduler. Call Start to register and begin the
// cron entries.
func NewScheduler(
	cfg config.SchedulerConfig,
	insightsCfg config.InsightsConfig,
	insights InsightService,
	optimizer FeedbackOptimizer,
	repo repositories.InsightRepository,
	datasets repositories.DatasetRepository,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		cfg:       cfg,
		freshness: time.Duration(insightsCfg.FreshnessHours) * time.Hour,
		insights:  insights,
		optimizer: optimizer,
		repo:      repo,
		datasets:  datasets,
		logger:    logger.Named("scheduler"),
	}
}

// Start registers the cron entries and starts the scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.InsightsSpec, s.refreshInsights); err != nil {
		return fmt.Errorf("schedule insight refresh: %w", err)
	}
	if _, err := s.cron.AddFunc(s.cfg.OptimizerSpec, s.runOptimizer); err != nil {
		return fmt.Errorf("schedule optimizer: %w", err)
	}
	if _, err := s.cron.AddFunc(s.cfg.RetentionSpec, s.runRetention); err != nil {
		return fmt.Errorf("schedule retention: %w", err)
	}
	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.String("insights", s.cfg.InsightsSpec),
		zap.String("optimizer", s.cfg.OptimizerSpec),
		zap.String("retention", s.cfg.RetentionSpec))
	return nil
}

// Stop stops the scheduler and waits for running entries to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) refreshInsights() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	if err := s.insights.RefreshStale(ctx, s.freshness); err != nil {
		s.logger.Error("scheduled insight refresh failed", zap.Error(err))
	}
}

func (s *Scheduler) runOptimizer() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := s.optimizer.Optimize(ctx); err != nil {
		s.logger.Error("scheduled optimization failed", zap.Error(err))
	}
}

func (s *Scheduler) runRetention() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().AddDate(0, 0, -s.cfg.RetentionDays)

	deleted, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("insight retention sweep failed", zap.Error(err))
	} else if deleted > 0 {
		s.logger.Info("pruned stale insights", zap.Int64("deleted", deleted))
	}

	removed, err := s.datasets.DeleteErrorBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("dataset retention sweep failed", zap.Error(err))
	} else if removed > 0 {
		s.logger.Info("removed stale error datasets", zap.Int64("deleted", removed))
	}
}
