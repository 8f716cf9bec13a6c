package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/insightpilot/insight-engine/pkg/database"
	"github.com/insightpilot/insight-engine/pkg/models"
)

// ExemplarRepository persists the optimizer's exemplar set so a restart does
// not lose accumulated training signal.
type ExemplarRepository interface {
	Save(ctx context.Context, set *models.ExemplarSet) error
	Load(ctx context.Context) (*models.ExemplarSet, error)
}

type exemplarRepository struct {
	db *database.DB
}

// NewExemplarRepository creates a new ExemplarRepository.
func NewExemplarRepository(db *database.DB) ExemplarRepository {
	return &exemplarRepository{db: db}
}

var _ ExemplarRepository = (*exemplarRepository)(nil)

// Save upserts the single current exemplar set.
func (r *exemplarRepository) Save(ctx context.Context, set *models.ExemplarSet) error {
	examplesJSON, err := json.Marshal(set.Examples)
	if err != nil {
		return fmt.Errorf("failed to marshal exemplar set: %w", err)
	}

	query := `
		INSERT INTO exemplar_sets (id, examples, built_at)
		VALUES (1, $1, $2)
		ON CONFLICT (id)
		DO UPDATE SET examples = EXCLUDED.examples, built_at = EXCLUDED.built_at`

	if _, err := r.db.Exec(ctx, query, examplesJSON, set.BuiltAt); err != nil {
		return fmt.Errorf("failed to save exemplar set: %w", err)
	}
	return nil
}

// Load returns the persisted exemplar set, or nil when none has been saved.
func (r *exemplarRepository) Load(ctx context.Context) (*models.ExemplarSet, error) {
	var examplesJSON []byte
	var set models.ExemplarSet

	err := r.db.QueryRow(ctx,
		`SELECT examples, built_at FROM exemplar_sets WHERE id = 1`,
	).Scan(&examplesJSON, &set.BuiltAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load exemplar set: %w", err)
	}

	if err := json.Unmarshal(examplesJSON, &set.Examples); err != nil {
		return nil, fmt.Errorf("failed to unmarshal exemplar set: %w", err)
	}
	return &set, nil
}
