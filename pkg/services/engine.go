package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/insightpilot/insight-engine/pkg/config"
	"github.com/insightpilot/insight-engine/pkg/database"
	"github.com/insightpilot/insight-engine/pkg/llm"
	"github.com/insightpilot/insight-engine/pkg/repositories"
	"github.com/insightpilot/insight-engine/pkg/tabular"
)

// Engine bundles the analysis services behind one facade. The embedding
// surface (REST layer, CLI, tests) talks to these; Run drives the
// background machinery.
type Engine struct {
	Datasets  DatasetService
	Queries   QueryService
	Insights  InsightService
	Optimizer FeedbackOptimizer

	jobs      *JobRunner
	scheduler *Scheduler
	logger    *zap.Logger
}

// NewEngine wires every service against the given database and model client.
func NewEngine(cfg *config.Config, db *database.DB, client llm.LLMClient, logger *zap.Logger) *Engine {
	datasetRepo := repositories.NewDatasetRepository(db)
	queryRepo := repositories.NewQueryRepository(db)
	insightRepo := repositories.NewInsightRepository(db)
	exemplarRepo := repositories.NewExemplarRepository(db)

	store := tabular.NewStore()
	jobs := NewJobRunner(&cfg.Jobs, logger)
	pool := llm.NewWorkerPool(llm.WorkerPoolConfig{MaxConcurrent: cfg.Jobs.MaxConcurrent}, logger)

	optimizer := NewFeedbackOptimizer(queryRepo, datasetRepo, exemplarRepo, &cfg.Optimizer, logger)

	profiler := NewProfiler(&cfg.Profiler, logger)
	translator := NewTranslator(client, optimizer, cfg.LLM.Temperature, logger)
	executor := NewQueryExecutor(&cfg.Executor, logger)
	synthesizer := NewInsightSynthesizer(client, pool, cfg.Insights, cfg.LLM.Temperature, logger)

	datasets := NewDatasetService(datasetRepo, insightRepo, profiler, store, jobs, logger)
	queries := NewQueryService(datasetRepo, queryRepo, translator, executor, store, logger)
	insights := NewInsightService(datasetRepo, insightRepo, synthesizer, store, logger)

	return &Engine{
		Datasets:  datasets,
		Queries:   queries,
		Insights:  insights,
		Optimizer: optimizer,
		jobs:      jobs,
		scheduler: NewScheduler(cfg.Scheduler, cfg.Insights, insights, optimizer, insightRepo, datasetRepo, logger),
		logger:    logger.Named("engine"),
	}
}

// Run restores persisted state, starts the scheduler, and blocks until ctx
// is cancelled, then drains background work.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Optimizer.Restore(ctx); err != nil {
		e.logger.Warn("could not restore exemplar set, starting empty", zap.Error(err))
	}
	if err := e.scheduler.Start(); err != nil {
		return err
	}

	e.logger.Info("engine ready")
	<-ctx.Done()

	e.logger.Info("engine shutting down")
	e.scheduler.Stop()
	e.jobs.Shutdown()
	return nil
}
