package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/insightpilot/insight-engine/pkg/apperrors"
	"github.com/insightpilot/insight-engine/pkg/database"
	"github.com/insightpilot/insight-engine/pkg/models"
)

// QueryRepository provides data access for query history and feedback.
type QueryRepository interface {
	Create(ctx context.Context, query *models.Query) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Query, error)
	ListByDataset(ctx context.Context, datasetID uuid.UUID) ([]*models.Query, error)
	UpdateResult(ctx context.Context, query *models.Query) error
	SetFeedback(ctx context.Context, id uuid.UUID, feedback models.Feedback) error
	ListPositiveSince(ctx context.Context, since time.Time, limit int) ([]*models.Query, error)
	CountPositive(ctx context.Context) (int, error)
	DeleteByDataset(ctx context.Context, datasetID uuid.UUID) error
}

type queryRepository struct {
	db *database.DB
}

// NewQueryRepository creates a new QueryRepository.
func NewQueryRepository(db *database.DB) QueryRepository {
	return &queryRepository{db: db}
}

var _ QueryRepository = (*queryRepository)(nil)

func (r *queryRepository) Create(ctx context.Context, query *models.Query) error {
	now := time.Now()
	if query.ID == uuid.Nil {
		query.ID = uuid.New()
	}
	query.CreatedAt = now
	query.UpdatedAt = now
	if query.Status == "" {
		query.Status = models.QueryStatusPending
	}
	if query.UserFeedback == "" {
		query.UserFeedback = models.FeedbackNone
	}

	rowsJSON, columnsJSON, err := marshalResult(query)
	if err != nil {
		return err
	}

	stmt := `
		INSERT INTO queries (
			id, dataset_id, owner_id, nl_text, generated_expression, query_type,
			result_columns, result_rows, result_summary, visualization,
			execution_time_ms, row_count, status, error_message, user_feedback,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err = r.db.Exec(ctx, stmt,
		query.ID, query.DatasetID, query.OwnerID, query.NaturalLanguageText,
		nullableString(query.GeneratedExpression), query.QueryType,
		columnsJSON, rowsJSON, nullableString(query.ResultSummary),
		nullableString(string(query.Visualization)),
		query.ExecutionTime.Milliseconds(), query.RowCount,
		query.Status, nullableString(query.ErrorMessage), query.UserFeedback,
		query.CreatedAt, query.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create query: %w", err)
	}

	return nil
}

func (r *queryRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Query, error) {
	stmt := querySelectColumns + ` FROM queries WHERE id = $1`

	q, err := scanQuery(r.db.QueryRow(ctx, stmt, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return q, nil
}

// ListByDataset returns queries in creation order, oldest first.
func (r *queryRepository) ListByDataset(ctx context.Context, datasetID uuid.UUID) ([]*models.Query, error) {
	stmt := querySelectColumns + `
		FROM queries
		WHERE dataset_id = $1
		ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, stmt, datasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list queries: %w", err)
	}
	defer rows.Close()

	return collectQueries(rows)
}

func (r *queryRepository) UpdateResult(ctx context.Context, query *models.Query) error {
	query.UpdatedAt = time.Now()

	rowsJSON, columnsJSON, err := marshalResult(query)
	if err != nil {
		return err
	}

	stmt := `
		UPDATE queries
		SET generated_expression = $2, query_type = $3, result_columns = $4,
			result_rows = $5, result_summary = $6, visualization = $7,
			execution_time_ms = $8, row_count = $9, status = $10,
			error_message = $11, updated_at = $12
		WHERE id = $1`

	result, err := r.db.Exec(ctx, stmt,
		query.ID, nullableString(query.GeneratedExpression), query.QueryType,
		columnsJSON, rowsJSON, nullableString(query.ResultSummary),
		nullableString(string(query.Visualization)),
		query.ExecutionTime.Milliseconds(), query.RowCount,
		query.Status, nullableString(query.ErrorMessage), query.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update query result: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// SetFeedback records user feedback on a query. Setting the same feedback
// twice is a no-op rather than an error.
func (r *queryRepository) SetFeedback(ctx context.Context, id uuid.UUID, feedback models.Feedback) error {
	stmt := `
		UPDATE queries
		SET user_feedback = $2, updated_at = $3
		WHERE id = $1`

	result, err := r.db.Exec(ctx, stmt, id, feedback, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set query feedback: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// ListPositiveSince returns successful thumbs-up queries updated after since,
// newest first, capped at limit.
func (r *queryRepository) ListPositiveSince(ctx context.Context, since time.Time, limit int) ([]*models.Query, error) {
	stmt := querySelectColumns + `
		FROM queries
		WHERE user_feedback = $1 AND status = $2 AND updated_at > $3
		ORDER BY updated_at DESC
		LIMIT $4`

	rows, err := r.db.Query(ctx, stmt, models.FeedbackThumbsUp, models.QueryStatusSuccess, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list positive queries: %w", err)
	}
	defer rows.Close()

	return collectQueries(rows)
}

func (r *queryRepository) CountPositive(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM queries WHERE user_feedback = $1 AND status = $2`,
		models.FeedbackThumbsUp, models.QueryStatusSuccess,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count positive queries: %w", err)
	}
	return count, nil
}

func (r *queryRepository) DeleteByDataset(ctx context.Context, datasetID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM queries WHERE dataset_id = $1`, datasetID)
	if err != nil {
		return fmt.Errorf("failed to delete queries for dataset: %w", err)
	}
	return nil
}

// ============================================================================
// Helper Functions - Scan
// ============================================================================

const querySelectColumns = `
	SELECT id, dataset_id, owner_id, nl_text, generated_expression, query_type,
		result_columns, result_rows, result_summary, visualization,
		execution_time_ms, row_count, status, error_message, user_feedback,
		created_at, updated_at`

func scanQuery(row pgx.Row) (*models.Query, error) {
	var q models.Query
	var generatedExpression, resultSummary, visualization, errorMessage *string
	var columnsJSON, rowsJSON []byte
	var executionMs int64

	err := row.Scan(
		&q.ID, &q.DatasetID, &q.OwnerID, &q.NaturalLanguageText,
		&generatedExpression, &q.QueryType, &columnsJSON, &rowsJSON,
		&resultSummary, &visualization, &executionMs, &q.RowCount,
		&q.Status, &errorMessage, &q.UserFeedback, &q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan query: %w", err)
	}

	if generatedExpression != nil {
		q.GeneratedExpression = *generatedExpression
	}
	if resultSummary != nil {
		q.ResultSummary = *resultSummary
	}
	if visualization != nil {
		q.Visualization = models.VisualizationType(*visualization)
	}
	if errorMessage != nil {
		q.ErrorMessage = *errorMessage
	}
	q.ExecutionTime = time.Duration(executionMs) * time.Millisecond

	if len(columnsJSON) > 0 {
		if err := json.Unmarshal(columnsJSON, &q.ResultColumns); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result columns: %w", err)
		}
	}
	if len(rowsJSON) > 0 {
		if err := json.Unmarshal(rowsJSON, &q.ResultRows); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result rows: %w", err)
		}
	}

	return &q, nil
}

func collectQueries(rows pgx.Rows) ([]*models.Query, error) {
	queries := make([]*models.Query, 0)
	for rows.Next() {
		q, err := scanQuery(rows)
		if err != nil {
			return nil, err
		}
		queries = append(queries, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queries: %w", err)
	}
	return queries, nil
}

func marshalResult(query *models.Query) (rowsJSON, columnsJSON []byte, err error) {
	if query.ResultRows != nil {
		rowsJSON, err = json.Marshal(query.ResultRows)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal result rows: %w", err)
		}
	}
	if query.ResultColumns != nil {
		columnsJSON, err = json.Marshal(query.ResultColumns)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal result columns: %w", err)
		}
	}
	return rowsJSON, columnsJSON, nil
}
