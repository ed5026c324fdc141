package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-conduct-api/internal/models"
)

// PeriodAverageRepository reads grade averages published by the grades module.
type PeriodAverageRepository struct {
	db *sqlx.DB
}

// NewPeriodAverageRepository constructs the repository.
func NewPeriodAverageRepository(db *sqlx.DB) *PeriodAverageRepository {
	return &PeriodAverageRepository{db: db}
}

// AveragesFor returns the averages of the given students for one period keyed by student ID.
// Students without an average are absent from the map.
func (r *PeriodAverageRepository) AveragesFor(ctx context.Context, studentIDs []string, year, period int) (map[string]float64, error) {
	result := make(map[string]float64, len(studentIDs))
	if len(studentIDs) == 0 {
		return result, nil
	}
	const query = `SELECT student_id, academic_year, period_number, average FROM student_period_averages
WHERE academic_year = $1 AND period_number = $2 AND student_id = ANY($3)`
	var rows []models.PeriodAverage
	if err := r.db.SelectContext(ctx, &rows, query, year, period, pq.Array(studentIDs)); err != nil {
		return nil, fmt.Errorf("list period averages: %w", err)
	}
	for _, row := range rows {
		result[row.StudentID] = row.Average
	}
	return result, nil
}

// HistoryFor returns one student's averages across an inclusive year range.
func (r *PeriodAverageRepository) HistoryFor(ctx context.Context, studentID string, fromYear, toYear int) (map[models.PeriodRef]float64, error) {
	const query = `SELECT student_id, academic_year, period_number, average FROM student_period_averages
WHERE student_id = $1 AND academic_year >= $2 AND academic_year <= $3`
	var rows []models.PeriodAverage
	if err := r.db.SelectContext(ctx, &rows, query, studentID, fromYear, toYear); err != nil {
		return nil, fmt.Errorf("list student averages: %w", err)
	}
	result := make(map[models.PeriodRef]float64, len(rows))
	for _, row := range rows {
		result[models.PeriodRef{AcademicYear: row.AcademicYear, PeriodNumber: row.PeriodNumber}] = row.Average
	}
	return result, nil
}
