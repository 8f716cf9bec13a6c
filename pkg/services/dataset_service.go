package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/insightpilot/insight-engine/pkg/apperrors"
	"github.com/insightpilot/insight-engine/pkg/logging"
	"github.com/insightpilot/insight-engine/pkg/models"
	"github.com/insightpilot/insight-engine/pkg/repositories"
	"github.com/insightpilot/insight-engine/pkg/tabular"
)

// DatasetService owns the dataset lifecycle: creation, asynchronous
// profiling, lookup, and deletion.
type DatasetService interface {
	// CreateDataset registers an uploaded dataset and enqueues profiling.
	// The returned dataset is in status uploaded or processing; callers poll
	// for readiness.
	CreateDataset(ctx context.Context, ownerID uuid.UUID, name string, csvData []byte) (*models.Dataset, error)

	GetDataset(ctx context.Context, id uuid.UUID) (*models.Dataset, error)
	ListDatasets(ctx context.Context, ownerID uuid.UUID) ([]*models.Dataset, error)

	// PreviewDataset returns the first limit rows of a ready dataset. A
	// non-positive limit falls back to a small default.
	PreviewDataset(ctx context.Context, id uuid.UUID, limit int) (*models.DatasetPreview, error)

	// DeleteDataset removes the dataset, its queries and insights, and its
	// in-memory table.
	DeleteDataset(ctx context.Context, id uuid.UUID) error
}

type datasetService struct {
	datasets repositories.DatasetRepository
	insights repositories.InsightRepository
	profiler Profiler
	store    *tabular.Store
	jobs     *JobRunner
	logger   *zap.Logger
}

// NewDatasetService creates a DatasetService.
func NewDatasetService(
	datasets repositories.DatasetRepository,
	insights repositories.InsightRepository,
	profiler Profiler,
	store *tabular.Store,
	jobs *JobRunner,
	logger *zap.Logger,
) DatasetService {
	return &datasetService{
		datasets: datasets,
		insights: insights,
		profiler: profiler,
		store:    store,
		jobs:     jobs,
		logger:   logger.Named("datasets"),
	}
}

var _ DatasetService = (*datasetService)(nil)

func (s *datasetService) CreateDataset(ctx context.Context, ownerID uuid.UUID, name string, csvData []byte) (*models.Dataset, error) {
	dataset := &models.Dataset{
		OwnerID: ownerID,
		Name:    name,
		Status:  models.DatasetStatusUploaded,
	}
	if err := s.datasets.Create(ctx, dataset); err != nil {
		return nil, fmt.Errorf("create dataset: %w", err)
	}

	s.jobs.Submit(dataset.ID, "profile", func(jobCtx context.Context) {
		s.profile(jobCtx, dataset.ID, csvData)
	})

	return dataset, nil
}

// profile runs one profiling pass. Failures land on the dataset's status and
// error message rather than propagating.
func (s *datasetService) profile(ctx context.Context, datasetID uuid.UUID, csvData []byte) {
	if err := s.datasets.UpdateStatus(ctx, datasetID, models.DatasetStatusProcessing, ""); err != nil {
		s.logger.Error("failed to mark dataset processing",
			zap.String("dataset_id", datasetID.String()), zap.Error(err))
		return
	}

	table, err := tabular.FromCSV(csvData)
	if err != nil {
		s.failProfiling(ctx, datasetID, fmt.Sprintf("could not parse upload: %s", logging.UserFacingError(err)))
		return
	}

	schema, err := s.profiler.Profile(table)
	if err != nil {
		s.failProfiling(ctx, datasetID, logging.UserFacingError(err))
		return
	}

	dataset, err := s.datasets.GetByID(ctx, datasetID)
	if err != nil {
		s.logger.Error("dataset vanished during profiling",
			zap.String("dataset_id", datasetID.String()), zap.Error(err))
		return
	}

	dataset.RowCount = table.NumRows()
	dataset.ColumnCount = table.NumCols()
	dataset.Schema = schema
	dataset.Status = models.DatasetStatusReady
	dataset.ErrorMessage = ""
	if err := s.datasets.UpdateProfile(ctx, dataset); err != nil {
		s.logger.Error("failed to persist profile",
			zap.String("dataset_id", datasetID.String()), zap.Error(err))
		return
	}

	// Publish the table only after the descriptor is durable, so a ready
	// dataset always has a queryable snapshot.
	s.store.Replace(datasetID, table)

	s.logger.Info("dataset ready",
		zap.String("dataset_id", datasetID.String()),
		zap.Int("rows", table.NumRows()),
		zap.Int("columns", table.NumCols()))
}

func (s *datasetService) failProfiling(ctx context.Context, datasetID uuid.UUID, message string) {
	s.logger.Warn("profiling failed",
		zap.String("dataset_id", datasetID.String()),
		zap.String("reason", message))
	if err := s.datasets.UpdateStatus(ctx, datasetID, models.DatasetStatusError, message); err != nil {
		s.logger.Error("failed to record profiling error",
			zap.String("dataset_id", datasetID.String()), zap.Error(err))
	}
}

func (s *datasetService) GetDataset(ctx context.Context, id uuid.UUID) (*models.Dataset, error) {
	return s.datasets.GetByID(ctx, id)
}

func (s *datasetService) ListDatasets(ctx context.Context, ownerID uuid.UUID) ([]*models.Dataset, error) {
	return s.datasets.ListByOwner(ctx, ownerID)
}

const defaultPreviewRows = 10

func (s *datasetService) PreviewDataset(ctx context.Context, id uuid.UUID, limit int) (*models.DatasetPreview, error) {
	dataset, err := s.datasets.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if dataset.Status != models.DatasetStatusReady {
		return nil, apperrors.ErrDatasetNotReady
	}

	table, ok := s.store.Snapshot(id)
	if !ok {
		return nil, fmt.Errorf("dataset %s is not loaded", id)
	}

	if limit <= 0 {
		limit = defaultPreviewRows
	}
	if limit > table.NumRows() {
		limit = table.NumRows()
	}

	cols := table.Columns()
	rows := make([]models.ResultRow, 0, limit)
	for r := 0; r < limit; r++ {
		row := make(models.ResultRow, len(cols))
		for c, name := range cols {
			row[name] = table.At(r, c).Native()
		}
		rows = append(rows, row)
	}

	return &models.DatasetPreview{Columns: cols, Rows: rows, RowCount: table.NumRows()}, nil
}

func (s *datasetService) DeleteDataset(ctx context.Context, id uuid.UUID) error {
	if err := s.datasets.Delete(ctx, id); err != nil {
		if err == apperrors.ErrNotFound {
			return err
		}
		return fmt.Errorf("delete dataset: %w", err)
	}
	// Queries and insights cascade in the database; the in-memory table goes
	// here. In-flight readers keep their snapshot until they finish.
	s.store.Remove(id)
	return nil
}
