// Package repositories provides data access for datasets, queries, insights,
// and exemplar sets.
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

// DatasetRepository provides data access for datasets.
type DatasetRepository interface {
	Create(ctx context.Context, dataset *models.Dataset) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Dataset, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.Dataset, error)
	ListByStatus(ctx context.Context, status models.DatasetStatus) ([]*models.Dataset, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.DatasetStatus, errorMessage string) error
	UpdateProfile(ctx context.Context, dataset *models.Dataset) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteErrorBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type datasetRepository struct {
	db *database.DB
}

// NewDatasetRepository creates a new DatasetRepository.
func NewDatasetRepository(db *database.DB) DatasetRepository {
	return &datasetRepository{db: db}
}

var _ DatasetRepository = (*datasetRepository)(nil)

func (r *datasetRepository) Create(ctx context.Context, dataset *models.Dataset) error {
	now := time.Now()
	if dataset.ID == uuid.Nil {
		dataset.ID = uuid.New()
	}
	dataset.CreatedAt = now
	dataset.UpdatedAt = now
	if dataset.Status == "" {
		dataset.Status = models.DatasetStatusUploaded
	}

	schemaJSON, err := marshalSchema(dataset.Schema)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO datasets (
			id, owner_id, name, row_count, column_count, schema, status, error_message, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = r.db.Exec(ctx, query,
		dataset.ID, dataset.OwnerID, dataset.Name, dataset.RowCount, dataset.ColumnCount,
		schemaJSON, dataset.Status, nullableString(dataset.ErrorMessage),
		dataset.CreatedAt, dataset.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create dataset: %w", err)
	}

	return nil
}

func (r *datasetRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Dataset, error) {
	query := `
		SELECT id, owner_id, name, row_count, column_count, schema, status, error_message, created_at, updated_at
		FROM datasets
		WHERE id = $1`

	dataset, err := scanDataset(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return dataset, nil
}

func (r *datasetRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.Dataset, error) {
	query := `
		SELECT id, owner_id, name, row_count, column_count, schema, status, error_message, created_at, updated_at
		FROM datasets
		WHERE owner_id = $1
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	defer rows.Close()

	return collectDatasets(rows)
}

func (r *datasetRepository) ListByStatus(ctx context.Context, status models.DatasetStatus) ([]*models.Dataset, error) {
	query := `
		SELECT id, owner_id, name, row_count, column_count, schema, status, error_message, created_at, updated_at
		FROM datasets
		WHERE status = $1
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets by status: %w", err)
	}
	defer rows.Close()

	return collectDatasets(rows)
}

func (r *datasetRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.DatasetStatus, errorMessage string) error {
	query := `
		UPDATE datasets
		SET status = $2, error_message = $3, updated_at = $4
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id, status, nullableString(errorMessage), time.Now())
	if err != nil {
		return fmt.Errorf("failed to update dataset status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *datasetRepository) UpdateProfile(ctx context.Context, dataset *models.Dataset) error {
	dataset.UpdatedAt = time.Now()

	schemaJSON, err := marshalSchema(dataset.Schema)
	if err != nil {
		return err
	}

	query := `
		UPDATE datasets
		SET row_count = $2, column_count = $3, schema = $4, status = $5, error_message = $6, updated_at = $7
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query,
		dataset.ID, dataset.RowCount, dataset.ColumnCount, schemaJSON,
		dataset.Status, nullableString(dataset.ErrorMessage), dataset.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update dataset profile: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *datasetRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM datasets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete dataset: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *datasetRepository) DeleteErrorBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.Exec(ctx,
		`DELETE FROM datasets WHERE status = $1 AND updated_at < $2`,
		models.DatasetStatusError, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale error datasets: %w", err)
	}
	return result.RowsAffected(), nil
}

// ============================================================================
// Helper Functions - Scan
// ============================================================================

func scanDataset(row pgx.Row) (*models.Dataset, error) {
	var d models.Dataset
	var schemaJSON []byte
	var errorMessage *string

	err := row.Scan(
		&d.ID, &d.OwnerID, &d.Name, &d.RowCount, &d.ColumnCount,
		&schemaJSON, &d.Status, &errorMessage, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan dataset: %w", err)
	}

	if errorMessage != nil {
		d.ErrorMessage = *errorMessage
	}
	if len(schemaJSON) > 0 {
		var schema models.SchemaDescriptor
		if err := json.Unmarshal(schemaJSON, &schema); err != nil {
			return nil, fmt.Errorf("failed to unmarshal dataset schema: %w", err)
		}
		d.Schema = &schema
	}

	return &d, nil
}

func collectDatasets(rows pgx.Rows) ([]*models.Dataset, error) {
	datasets := make([]*models.Dataset, 0)
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		datasets = append(datasets, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating datasets: %w", err)
	}
	return datasets, nil
}

func marshalSchema(schema *models.SchemaDescriptor) ([]byte, error) {
	if schema == nil {
		return nil, nil
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal dataset schema: %w", err)
	}
	return data, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
