package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-conduct-api/internal/models"
)

// MeasureConfigRepository reads administrator overrides of measure deltas.
type MeasureConfigRepository struct {
	db *sqlx.DB
}

// NewMeasureConfigRepository constructs the repository.
func NewMeasureConfigRepository(db *sqlx.DB) *MeasureConfigRepository {
	return &MeasureConfigRepository{db: db}
}

// All returns every configured measure value.
func (r *MeasureConfigRepository) All(ctx context.Context) ([]models.MeasureSetting, error) {
	const query = `SELECT key, value FROM conduct_measure_config ORDER BY key ASC`
	var settings []models.MeasureSetting
	if err := r.db.SelectContext(ctx, &settings, query); err != nil {
		return nil, fmt.Errorf("list measure config: %w", err)
	}
	return settings, nil
}
