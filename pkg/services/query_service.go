package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/insightpilot/insight-engine/pkg/apperrors"
	"github.com/insightpilot/insight-engine/pkg/models"
	"github.com/insightpilot/insight-engine/pkg/repositories"
	"github.com/insightpilot/insight-engine/pkg/tabular"
)

// QueryService runs the submit → translate → execute → classify pipeline and
// manages query history and feedback.
type QueryService interface {
	// SubmitQuery answers a natural-language question against a ready
	// dataset. The returned query has status success or error; translation
	// and execution failures are recorded on the query, not returned.
	SubmitQuery(ctx context.Context, datasetID, ownerID uuid.UUID, nlText string) (*models.Query, error)

	// ListQueries returns a dataset's queries in creation order.
	ListQueries(ctx context.Context, datasetID uuid.UUID) ([]*models.Query, error)

	// RecordFeedback attaches a user's verdict to a query. Repeating the
	// same verdict is a no-op.
	RecordFeedback(ctx context.Context, queryID uuid.UUID, vote models.Feedback) (*models.Query, error)
}

type queryService struct {
	datasets   repositories.DatasetRepository
	queries    repositories.QueryRepository
	translator Translator
	executor   QueryExecutor
	store      *tabular.Store
	logger     *zap.Logger
}

// NewQueryService creates a QueryService.
func NewQueryService(
	datasets repositories.DatasetRepository,
	queries repositories.QueryRepository,
	translator Translator,
	executor QueryExecutor,
	store *tabular.Store,
	logger *zap.Logger,
) QueryService {
	return &queryService{
		datasets:   datasets,
		queries:    queries,
		translator: translator,
		executor:   executor,
		store:      store,
		logger:     logger.Named("queries"),
	}
}

var _ QueryService = (*queryService)(nil)

func (s *queryService) SubmitQuery(ctx context.Context, datasetID, ownerID uuid.UUID, nlText string) (*models.Query, error) {
	dataset, err := s.datasets.GetByID(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	if dataset.Status != models.DatasetStatusReady {
		return nil, apperrors.ErrDatasetNotReady
	}

	query := &models.Query{
		DatasetID:           datasetID,
		OwnerID:             ownerID,
		NaturalLanguageText: nlText,
		Status:              models.QueryStatusPending,
	}
	if err := s.queries.Create(ctx, query); err != nil {
		return nil, fmt.Errorf("create query: %w", err)
	}

	s.resolve(ctx, query, dataset)

	if err := s.queries.UpdateResult(ctx, query); err != nil {
		return nil, fmt.Errorf("persist query result: %w", err)
	}
	return query, nil
}

// resolve runs translation, execution, and visualization, recording the
// outcome on the query. Pipeline failures become query-level errors with
// sanitized messages; they never propagate.
func (s *queryService) resolve(ctx context.Context, query *models.Query, dataset *models.Dataset) {
	translation, err := s.translator.Translate(ctx, dataset.Schema, query.NaturalLanguageText)
	if err != nil {
		s.logger.Warn("translation failed",
			zap.String("query_id", query.ID.String()), zap.Error(err))
		query.Status = models.QueryStatusError
		query.ErrorMessage = "could not translate the question into a query"
		return
	}
	query.GeneratedExpression = translation.Expression
	query.QueryType = translation.QueryType
	query.ResultSummary = translation.Explanation

	table, ok := s.store.Snapshot(dataset.ID)
	if !ok {
		query.Status = models.QueryStatusError
		query.ErrorMessage = "dataset is not loaded; re-upload to query it"
		return
	}

	result, err := s.executor.Execute(ctx, table, dataset.Schema, translation.Expression)
	if err != nil {
		query.Status = models.QueryStatusError
		query.ErrorMessage = executionMessage(err)

		var execErr *ExecutionError
		if errors.As(err, &execErr) {
			s.logger.Warn("execution failed",
				zap.String("query_id", query.ID.String()),
				zap.String("kind", string(execErr.Kind)),
				zap.Error(err))
		} else {
			s.logger.Error("execution failed",
				zap.String("query_id", query.ID.String()), zap.Error(err))
		}
		return
	}

	query.ResultColumns = result.Columns
	query.ResultRows = result.Rows
	query.RowCount = result.RowCount
	query.ExecutionTime = result.ExecutionTime
	query.Visualization = ClassifyVisualization(result.Columns, result.Rows, query.NaturalLanguageText, translation.Expression)
	query.Status = models.QueryStatusSuccess
}

// executionMessage maps an execution failure to a user-safe message with no
// expression fragments or stack detail.
func executionMessage(err error) string {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		switch execErr.Kind {
		case ExecTimeout:
			return "the query took too long and was cancelled"
		case ExecDisallowedOperation:
			return "the generated query used an unsupported operation"
		case ExecEmptyResult:
			return "the query matched no rows"
		default:
			return "the query failed while running"
		}
	}
	return "the query failed while running"
}

func (s *queryService) ListQueries(ctx context.Context, datasetID uuid.UUID) ([]*models.Query, error) {
	return s.queries.ListByDataset(ctx, datasetID)
}

func (s *queryService) RecordFeedback(ctx context.Context, queryID uuid.UUID, vote models.Feedback) (*models.Query, error) {
	if !vote.Valid() {
		return nil, apperrors.ErrInvalidFeedback
	}

	query, err := s.queries.GetByID(ctx, queryID)
	if err != nil {
		return nil, err
	}
	if query.UserFeedback == vote {
		return query, nil
	}

	if err := s.queries.SetFeedback(ctx, queryID, vote); err != nil {
		return nil, err
	}
	query.UserFeedback = vote
	return query, nil
}
