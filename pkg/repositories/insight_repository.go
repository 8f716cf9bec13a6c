package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/insightpilot/insight-engine/pkg/database"
	"github.com/insightpilot/insight-engine/pkg/models"
)

// InsightRepository provides data access for synthesized insights.
type InsightRepository interface {
	ReplaceForDataset(ctx context.Context, datasetID uuid.UUID, insights []*models.Insight) error
	ListByDataset(ctx context.Context, datasetID uuid.UUID) ([]*models.Insight, error)
	LatestCreatedAt(ctx context.Context, datasetID uuid.UUID) (time.Time, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteByDataset(ctx context.Context, datasetID uuid.UUID) error
}

type insightRepository struct {
	db *database.DB
}

// NewInsightRepository creates a new InsightRepository.
func NewInsightRepository(db *database.DB) InsightRepository {
	return &insightRepository{db: db}
}

var _ InsightRepository = (*insightRepository)(nil)

// ReplaceForDataset atomically swaps the stored insights for a dataset.
// A reader sees either the old set or the new set, never a mix.
func (r *insightRepository) ReplaceForDataset(ctx context.Context, datasetID uuid.UUID, insights []*models.Insight) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM insights WHERE dataset_id = $1`, datasetID); err != nil {
		return fmt.Errorf("failed to clear insights: %w", err)
	}

	now := time.Now()
	for _, insight := range insights {
		if insight.ID == uuid.Nil {
			insight.ID = uuid.New()
		}
		if insight.CreatedAt.IsZero() {
			insight.CreatedAt = now
		}

		var supportingJSON []byte
		if insight.SupportingData != nil {
			supportingJSON, err = json.Marshal(insight.SupportingData)
			if err != nil {
				return fmt.Errorf("failed to marshal supporting data: %w", err)
			}
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO insights (
				id, dataset_id, query_id, insight_type, title, description,
				confidence, supporting_data, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			insight.ID, datasetID, insight.QueryID, insight.InsightType,
			insight.Title, insight.Description, insight.Confidence,
			supportingJSON, insight.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert insight: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit insights: %w", err)
	}
	return nil
}

// ListByDataset returns insights ordered by confidence, highest first.
func (r *insightRepository) ListByDataset(ctx context.Context, datasetID uuid.UUID) ([]*models.Insight, error) {
	query := `
		SELECT id, dataset_id, query_id, insight_type, title, description,
			confidence, supporting_data, created_at
		FROM insights
		WHERE dataset_id = $1
		ORDER BY confidence DESC, created_at`

	rows, err := r.db.Query(ctx, query, datasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list insights: %w", err)
	}
	defer rows.Close()

	insights := make([]*models.Insight, 0)
	for rows.Next() {
		insight, err := scanInsight(rows)
		if err != nil {
			return nil, err
		}
		insights = append(insights, insight)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating insights: %w", err)
	}

	return insights, nil
}

// LatestCreatedAt returns the newest insight timestamp for a dataset, or the
// zero time when none exist.
func (r *insightRepository) LatestCreatedAt(ctx context.Context, datasetID uuid.UUID) (time.Time, error) {
	var latest time.Time
	err := r.db.QueryRow(ctx,
		`SELECT created_at FROM insights WHERE dataset_id = $1 ORDER BY created_at DESC LIMIT 1`,
		datasetID,
	).Scan(&latest)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("failed to get latest insight time: %w", err)
	}
	return latest, nil
}

func (r *insightRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM insights WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale insights: %w", err)
	}
	return result.RowsAffected(), nil
}

func (r *insightRepository) DeleteByDataset(ctx context.Context, datasetID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM insights WHERE dataset_id = $1`, datasetID)
	if err != nil {
		return fmt.Errorf("failed to delete insights for dataset: %w", err)
	}
	return nil
}

func scanInsight(rows pgx.Rows) (*models.Insight, error) {
	var insight models.Insight
	var supportingJSON []byte

	err := rows.Scan(
		&insight.ID, &insight.DatasetID, &insight.QueryID, &insight.InsightType,
		&insight.Title, &insight.Description, &insight.Confidence,
		&supportingJSON, &insight.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan insight: %w", err)
	}

	if len(supportingJSON) > 0 {
		if err := json.Unmarshal(supportingJSON, &insight.SupportingData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal supporting data: %w", err)
		}
	}

	return &insight, nil
}
