package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-conduct-api/internal/models"
)

const eventColumns = `id, student_id, academic_year, period_number, source_incident_id, event_type, delta, occurred_on, created_at, seq`

const insertEventQuery = `INSERT INTO conduct_events (id, student_id, academic_year, period_number, source_incident_id, event_type, delta, occurred_on, created_at)
VALUES (:id, :student_id, :academic_year, :period_number, :source_incident_id, :event_type, :delta, :occurred_on, :created_at)`

// DisciplinaryEventRepository is the append-only ledger of point deltas (table conduct_events).
type DisciplinaryEventRepository struct {
	db *sqlx.DB
}

// NewDisciplinaryEventRepository constructs the ledger repository.
func NewDisciplinaryEventRepository(db *sqlx.DB) *DisciplinaryEventRepository {
	return &DisciplinaryEventRepository{db: db}
}

// Append inserts a ledger event outside of any snapshot update.
func (r *DisciplinaryEventRepository) Append(ctx context.Context, event *models.DisciplinaryEvent) error {
	if err := prepareEvent(event); err != nil {
		return err
	}
	if _, err := r.db.NamedExecContext(ctx, insertEventQuery, event); err != nil {
		return fmt.Errorf("append conduct event: %w", err)
	}
	return nil
}

// EventsFor returns events up to and including upTo, optionally excluding events before floor,
// in replay order (occurred_on then insertion order).
func (r *DisciplinaryEventRepository) EventsFor(ctx context.Context, studentID string, upTo time.Time, floor *time.Time) ([]models.DisciplinaryEvent, error) {
	args := []interface{}{studentID, models.DateOnly(upTo)}
	query := `SELECT ` + eventColumns + ` FROM conduct_events WHERE student_id = $1 AND occurred_on <= $2`
	if floor != nil {
		args = append(args, models.DateOnly(*floor))
		query += fmt.Sprintf(" AND occurred_on >= $%d", len(args))
	}
	query += " ORDER BY occurred_on ASC, seq ASC"

	var events []models.DisciplinaryEvent
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, fmt.Errorf("list conduct events for replay: %w", err)
	}
	return events, nil
}

// LatestOpeningBalance returns the most recent YEAR_OPENING_BALANCE event of a year, or nil.
func (r *DisciplinaryEventRepository) LatestOpeningBalance(ctx context.Context, studentID string, year int) (*models.DisciplinaryEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM conduct_events
WHERE student_id = $1 AND academic_year = $2 AND event_type = $3
ORDER BY occurred_on DESC, seq DESC LIMIT 1`
	var event models.DisciplinaryEvent
	if err := r.db.GetContext(ctx, &event, query, studentID, year, models.EventYearOpeningBalance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find opening balance: %w", err)
	}
	return &event, nil
}

// ExistsForDay reports whether an event of the type is recorded for the student on day.
func (r *DisciplinaryEventRepository) ExistsForDay(ctx context.Context, studentID string, eventType models.DisciplinaryEventType, day time.Time) (bool, error) {
	const query = `SELECT 1 FROM conduct_events WHERE student_id = $1 AND event_type = $2 AND occurred_on = $3 LIMIT 1`
	return r.exists(ctx, "check daily event", query, studentID, eventType, models.DateOnly(day))
}

// ExistsForPeriod reports whether an event of the type is recorded for the student in a period.
func (r *DisciplinaryEventRepository) ExistsForPeriod(ctx context.Context, studentID string, eventType models.DisciplinaryEventType, year, period int) (bool, error) {
	const query = `SELECT 1 FROM conduct_events WHERE student_id = $1 AND event_type = $2 AND academic_year = $3 AND period_number = $4 LIMIT 1`
	return r.exists(ctx, "check period event", query, studentID, eventType, year, period)
}

// LastNegativeOn returns the date of the latest negative event on or before upTo.
func (r *DisciplinaryEventRepository) LastNegativeOn(ctx context.Context, studentID string, upTo time.Time) (*time.Time, error) {
	const query = `SELECT MAX(occurred_on) FROM conduct_events WHERE student_id = $1 AND delta < 0 AND occurred_on <= $2`
	var last sql.NullTime
	if err := r.db.QueryRowxContext(ctx, query, studentID, models.DateOnly(upTo)).Scan(&last); err != nil {
		return nil, fmt.Errorf("find last negative event: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}
	day := models.DateOnly(last.Time)
	return &day, nil
}

// HasNegativeBetween reports whether a negative event occurred within [from, to].
func (r *DisciplinaryEventRepository) HasNegativeBetween(ctx context.Context, studentID string, from, to time.Time) (bool, error) {
	const query = `SELECT 1 FROM conduct_events WHERE student_id = $1 AND delta < 0 AND occurred_on >= $2 AND occurred_on <= $3 LIMIT 1`
	return r.exists(ctx, "check negative window", query, studentID, models.DateOnly(from), models.DateOnly(to))
}

// List returns ledger events for browsing, newest first.
func (r *DisciplinaryEventRepository) List(ctx context.Context, filter models.DisciplinaryEventFilter) ([]models.DisciplinaryEvent, int, error) {
	where := []string{"student_id = $1"}
	args := []interface{}{filter.StudentID}
	if len(filter.Types) > 0 {
		values := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			values[i] = string(t)
		}
		args = append(args, pq.Array(values))
		where = append(where, fmt.Sprintf("event_type = ANY($%d)", len(args)))
	}
	if filter.From != nil {
		args = append(args, models.DateOnly(*filter.From))
		where = append(where, fmt.Sprintf("occurred_on >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, models.DateOnly(*filter.To))
		where = append(where, fmt.Sprintf("occurred_on <= $%d", len(args)))
	}
	whereClause := strings.Join(where, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM conduct_events WHERE %s ORDER BY occurred_on DESC, seq DESC LIMIT %d OFFSET %d`, eventColumns, whereClause, size, offset)
	var events []models.DisciplinaryEvent
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list conduct events: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) FROM conduct_events WHERE %s", whereClause), args...); err != nil {
		return nil, 0, fmt.Errorf("count conduct events: %w", err)
	}
	return events, total, nil
}

func (r *DisciplinaryEventRepository) exists(ctx context.Context, op, query string, args ...interface{}) (bool, error) {
	var found int
	if err := r.db.GetContext(ctx, &found, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

// prepareEvent checks required fields and fills generated columns.
func prepareEvent(event *models.DisciplinaryEvent) error {
	if event == nil {
		return errors.New("conduct event is nil")
	}
	if event.StudentID == "" {
		return errors.New("conduct event requires student_id")
	}
	if !event.EventType.Valid() {
		return fmt.Errorf("conduct event has invalid type %q", event.EventType)
	}
	if event.OccurredOn.IsZero() {
		return errors.New("conduct event requires occurred_on")
	}
	if event.AcademicYear == 0 || event.PeriodNumber == 0 {
		return errors.New("conduct event requires academic_year and period_number")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	event.OccurredOn = models.DateOnly(event.OccurredOn)
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	return nil
}
