package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-conduct-api/internal/models"
	"github.com/noah-isme/sma-conduct-api/pkg/database"
)

const snapshotColumns = `student_id, academic_year, period_number, opening_score, current_score, last_updated_at`

// PeriodSnapshotRepository persists the running score per student and period.
// Snapshots are a fast-path cache; the ledger replay stays authoritative.
type PeriodSnapshotRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewPeriodSnapshotRepository constructs the snapshot repository.
func NewPeriodSnapshotRepository(db *sqlx.DB) *PeriodSnapshotRepository {
	return &PeriodSnapshotRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// GetOrCreate returns the snapshot, creating it with the derived opening score when absent.
func (r *PeriodSnapshotRepository) GetOrCreate(ctx context.Context, studentID string, year, period int) (*models.PeriodSnapshot, error) {
	var snapshot *models.PeriodSnapshot
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var err error
		snapshot, err = r.getOrCreateTx(ctx, tx, studentID, year, period)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Apply adds delta to the snapshot score, clamps it and returns the new value.
func (r *PeriodSnapshotRepository) Apply(ctx context.Context, studentID string, year, period int, delta float64) (float64, error) {
	var score float64
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var err error
		score, err = r.applyTx(ctx, tx, studentID, year, period, delta)
		return err
	})
	if err != nil {
		return 0, err
	}
	return score, nil
}

// ApplyEvent updates the snapshot and appends the ledger event in one transaction.
// Either both writes land or neither does.
func (r *PeriodSnapshotRepository) ApplyEvent(ctx context.Context, event *models.DisciplinaryEvent) (float64, error) {
	if err := prepareEvent(event); err != nil {
		return 0, err
	}

	var score float64
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var err error
		score, err = r.applyTx(ctx, tx, event.StudentID, event.AcademicYear, event.PeriodNumber, event.Delta)
		if err != nil {
			return err
		}
		if _, err := tx.NamedExecContext(ctx, insertEventQuery, event); err != nil {
			return fmt.Errorf("append conduct event: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return score, nil
}

// LastOfYear returns the highest-period snapshot of the year, or nil when the student has none.
func (r *PeriodSnapshotRepository) LastOfYear(ctx context.Context, studentID string, year int) (*models.PeriodSnapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM conduct_period_snapshots
WHERE student_id = $1 AND academic_year = $2 ORDER BY period_number DESC LIMIT 1`
	var snapshot models.PeriodSnapshot
	if err := r.db.GetContext(ctx, &snapshot, query, studentID, year); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find last snapshot of year: %w", err)
	}
	return &snapshot, nil
}

// Overwrite sets the snapshot score to an externally computed value.
func (r *PeriodSnapshotRepository) Overwrite(ctx context.Context, studentID string, year, period int, score float64) error {
	const query = `INSERT INTO conduct_period_snapshots (student_id, academic_year, period_number, opening_score, current_score, last_updated_at)
VALUES ($1, $2, $3, $4, $4, $5)
ON CONFLICT (student_id, academic_year, period_number)
DO UPDATE SET current_score = EXCLUDED.current_score, last_updated_at = EXCLUDED.last_updated_at`
	score = models.RoundScore(models.ClampScore(score))
	if _, err := r.db.ExecContext(ctx, query, studentID, year, period, score, r.now()); err != nil {
		return fmt.Errorf("overwrite snapshot: %w", err)
	}
	return nil
}

func (r *PeriodSnapshotRepository) applyTx(ctx context.Context, tx *sqlx.Tx, studentID string, year, period int, delta float64) (float64, error) {
	snapshot, err := r.getOrCreateTx(ctx, tx, studentID, year, period)
	if err != nil {
		return 0, err
	}

	score := models.RoundScore(models.ClampScore(snapshot.CurrentScore + delta))
	const update = `UPDATE conduct_period_snapshots SET current_score = $1, last_updated_at = $2
WHERE student_id = $3 AND academic_year = $4 AND period_number = $5`
	if _, err := tx.ExecContext(ctx, update, score, r.now(), studentID, year, period); err != nil {
		return 0, fmt.Errorf("update snapshot: %w", err)
	}
	return score, nil
}

func (r *PeriodSnapshotRepository) getOrCreateTx(ctx context.Context, tx *sqlx.Tx, studentID string, year, period int) (*models.PeriodSnapshot, error) {
	snapshot, err := r.lockSnapshot(ctx, tx, studentID, year, period)
	if err != nil || snapshot != nil {
		return snapshot, err
	}

	opening, err := r.openingScore(ctx, tx, studentID, year, period)
	if err != nil {
		return nil, err
	}

	const insert = `INSERT INTO conduct_period_snapshots (student_id, academic_year, period_number, opening_score, current_score, last_updated_at)
VALUES ($1, $2, $3, $4, $4, $5)
ON CONFLICT (student_id, academic_year, period_number) DO NOTHING`
	if _, err := tx.ExecContext(ctx, insert, studentID, year, period, opening, r.now()); err != nil {
		return nil, fmt.Errorf("create snapshot: %w", err)
	}

	snapshot, err = r.lockSnapshot(ctx, tx, studentID, year, period)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, fmt.Errorf("snapshot for %s %d/%d vanished after insert", studentID, year, period)
	}
	return snapshot, nil
}

func (r *PeriodSnapshotRepository) lockSnapshot(ctx context.Context, tx *sqlx.Tx, studentID string, year, period int) (*models.PeriodSnapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM conduct_period_snapshots
WHERE student_id = $1 AND academic_year = $2 AND period_number = $3 FOR UPDATE`
	var snapshot models.PeriodSnapshot
	if err := tx.GetContext(ctx, &snapshot, query, studentID, year, period); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock snapshot: %w", err)
	}
	return &snapshot, nil
}

// openingScore carries the previous period's score forward, else the year's opening
// balance, else the default.
func (r *PeriodSnapshotRepository) openingScore(ctx context.Context, tx *sqlx.Tx, studentID string, year, period int) (float64, error) {
	const previous = `SELECT current_score FROM conduct_period_snapshots
WHERE student_id = $1 AND academic_year = $2 AND period_number < $3 ORDER BY period_number DESC LIMIT 1`
	var score float64
	err := tx.GetContext(ctx, &score, previous, studentID, year, period)
	switch {
	case err == nil:
		return score, nil
	case !errors.Is(err, sql.ErrNoRows):
		return 0, fmt.Errorf("find previous snapshot: %w", err)
	}

	const opening = `SELECT delta FROM conduct_events
WHERE student_id = $1 AND academic_year = $2 AND event_type = $3 ORDER BY occurred_on DESC, seq DESC LIMIT 1`
	err = tx.GetContext(ctx, &score, opening, studentID, year, models.EventYearOpeningBalance)
	switch {
	case err == nil:
		return models.ClampScore(score), nil
	case errors.Is(err, sql.ErrNoRows):
		return models.DefaultOpeningScore, nil
	default:
		return 0, fmt.Errorf("find opening balance: %w", err)
	}
}
