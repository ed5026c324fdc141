package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-conduct-api/internal/models"
)

const periodColumns = `academic_year, period_number, start_date, end_date`

// AcademicPeriodRepository reads bimester boundaries owned by the school calendar.
type AcademicPeriodRepository struct {
	db *sqlx.DB
}

// NewAcademicPeriodRepository constructs the period repository.
func NewAcademicPeriodRepository(db *sqlx.DB) *AcademicPeriodRepository {
	return &AcademicPeriodRepository{db: db}
}

// ListByYear returns the periods of a year ordered by period number.
func (r *AcademicPeriodRepository) ListByYear(ctx context.Context, year int) ([]models.AcademicPeriod, error) {
	query := `SELECT ` + periodColumns + ` FROM academic_periods WHERE academic_year = $1 ORDER BY period_number ASC`
	var periods []models.AcademicPeriod
	if err := r.db.SelectContext(ctx, &periods, query, year); err != nil {
		return nil, fmt.Errorf("list academic periods: %w", err)
	}
	return periods, nil
}

// ListBetweenYears returns the periods of the inclusive year range.
func (r *AcademicPeriodRepository) ListBetweenYears(ctx context.Context, fromYear, toYear int) ([]models.AcademicPeriod, error) {
	query := `SELECT ` + periodColumns + ` FROM academic_periods
WHERE academic_year >= $1 AND academic_year <= $2 ORDER BY academic_year ASC, period_number ASC`
	var periods []models.AcademicPeriod
	if err := r.db.SelectContext(ctx, &periods, query, fromYear, toYear); err != nil {
		return nil, fmt.Errorf("list academic periods by range: %w", err)
	}
	return periods, nil
}

// Find returns one period record, or nil when it is not configured.
func (r *AcademicPeriodRepository) Find(ctx context.Context, year, period int) (*models.AcademicPeriod, error) {
	query := `SELECT ` + periodColumns + ` FROM academic_periods WHERE academic_year = $1 AND period_number = $2`
	var record models.AcademicPeriod
	if err := r.db.GetContext(ctx, &record, query, year, period); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find academic period: %w", err)
	}
	return &record, nil
}

