package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/insightpilot/insight-engine/pkg/apperrors"
	"github.com/insightpilot/insight-engine/pkg/models"
	"github.com/insightpilot/insight-engine/pkg/repositories"
	"github.com/insightpilot/insight-engine/pkg/tabular"
)

// InsightService orchestrates insight synthesis: it resolves the dataset and
// its table snapshot, runs the synthesizer, and persists the outcome.
type InsightService interface {
	// GenerateInsights synthesizes up to maxInsights insights for a dataset
	// and replaces its stored set. maxInsights <= 0 uses the configured
	// default.
	GenerateInsights(ctx context.Context, datasetID uuid.UUID, queryID *uuid.UUID, maxInsights int) ([]*models.Insight, error)

	// ListInsights returns stored insights, strongest first.
	ListInsights(ctx context.Context, datasetID uuid.UUID) ([]*models.Insight, error)

	// RefreshStale regenerates insights for every ready dataset whose
	// stored insights are older than maxAge.
	RefreshStale(ctx context.Context, maxAge time.Duration) error
}

type insightService struct {
	datasets    repositories.DatasetRepository
	insights    repositories.InsightRepository
	synthesizer InsightSynthesizer
	store       *tabular.Store
	logger      *zap.Logger
}

// NewInsightService creates an InsightService.
func NewInsightService(
	datasets repositories.DatasetRepository,
	insights repositories.InsightRepository,
	synthesizer InsightSynthesizer,
	store *tabular.Store,
	logger *zap.Logger,
) InsightService {
	return &insightService{
		datasets:    datasets,
		insights:    insights,
		synthesizer: synthesizer,
		store:       store,
		logger:      logger.Named("insight-service"),
	}
}

var _ InsightService = (*insightService)(nil)

func (s *insightService) GenerateInsights(ctx context.Context, datasetID uuid.UUID, queryID *uuid.UUID, maxInsights int) ([]*models.Insight, error) {
	dataset, err := s.datasets.GetByID(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	if dataset.Status != models.DatasetStatusReady {
		return nil, apperrors.ErrDatasetNotReady
	}

	table, ok := s.store.Snapshot(datasetID)
	if !ok {
		return nil, fmt.Errorf("dataset %s has no loaded table", datasetID)
	}

	insights, err := s.synthesizer.Generate(ctx, dataset, table, queryID, maxInsights)
	if err != nil {
		return nil, fmt.Errorf("generate insights: %w", err)
	}

	if err := s.insights.ReplaceForDataset(ctx, datasetID, insights); err != nil {
		return nil, fmt.Errorf("persist insights: %w", err)
	}

	s.logger.Info("generated insights",
		zap.String("dataset_id", datasetID.String()),
		zap.Int("count", len(insights)))
	return insights, nil
}

func (s *insightService) ListInsights(ctx context.Context, datasetID uuid.UUID) ([]*models.Insight, error) {
	return s.insights.ListByDataset(ctx, datasetID)
}

// RefreshStale walks ready datasets and regenerates insights that have gone
// stale. Per-dataset failures are logged and skipped.
func (s *insightService) RefreshStale(ctx context.Context, maxAge time.Duration) error {
	datasets, err := s.datasets.ListByStatus(ctx, models.DatasetStatusReady)
	if err != nil {
		return fmt.Errorf("list ready datasets: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	for _, dataset := range datasets {
		latest, err := s.insights.LatestCreatedAt(ctx, dataset.ID)
		if err != nil {
			s.logger.Warn("could not check insight freshness",
				zap.String("dataset_id", dataset.ID.String()), zap.Error(err))
			continue
		}
		if latest.After(cutoff) {
			continue
		}
		if _, err := s.GenerateInsights(ctx, dataset.ID, nil, 0); err != nil {
			s.logger.Warn("insight refresh failed",
				zap.String("dataset_id", dataset.ID.String()), zap.Error(err))
		}
	}
	return nil
}
