package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-conduct-api/internal/models"
)

// StudentRepository reads the enrollment data of students.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByID fetches a student by ID, returning nil when it does not exist.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	const query = `SELECT id, enrollment_date FROM students WHERE id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find student: %w", err)
	}
	return &student, nil
}

// ListAll returns every student ordered by ID.
func (r *StudentRepository) ListAll(ctx context.Context) ([]models.Student, error) {
	const query = `SELECT id, enrollment_date FROM students ORDER BY id ASC`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query); err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return students, nil
}

// ListEnrolledBy returns students enrolled on or before day. Students without an
// enrollment date are included.
func (r *StudentRepository) ListEnrolledBy(ctx context.Context, day time.Time) ([]models.Student, error) {
	const query = `SELECT id, enrollment_date FROM students
WHERE enrollment_date IS NULL OR enrollment_date <= $1 ORDER BY id ASC`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, models.DateOnly(day)); err != nil {
		return nil, fmt.Errorf("list enrolled students: %w", err)
	}
	return students, nil
}
