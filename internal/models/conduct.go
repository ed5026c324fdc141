package models

import (
	"math"
	"time"
)

const (
	// DefaultOpeningScore is the score of a student without history.
	DefaultOpeningScore = 8.0
	ScoreFloor          = 0.0
	ScoreCeiling        = 10.0
)

// DisciplinaryEventType tags a ledger entry.
type DisciplinaryEventType string

const (
	EventIncident           DisciplinaryEventType = "INCIDENT"
	EventPeriodBonus        DisciplinaryEventType = "PERIOD_BONUS"
	EventNoLossDailyBonus   DisciplinaryEventType = "NO_LOSS_DAILY_BONUS"
	EventYearOpeningBalance DisciplinaryEventType = "YEAR_OPENING_BALANCE"
)

// Valid reports whether the type belongs to the closed set.
func (t DisciplinaryEventType) Valid() bool {
	switch t {
	case EventIncident, EventPeriodBonus, EventNoLossDailyBonus, EventYearOpeningBalance:
		return true
	default:
		return false
	}
}

// DisciplinaryEvent is an immutable ledger entry holding a point delta.
type DisciplinaryEvent struct {
	ID               string                `db:"id" json:"id"`
	StudentID        string                `db:"student_id" json:"student_id"`
	AcademicYear     int                   `db:"academic_year" json:"academic_year"`
	PeriodNumber     int                   `db:"period_number" json:"period_number"`
	SourceIncidentID *string               `db:"source_incident_id" json:"source_incident_id,omitempty"`
	EventType        DisciplinaryEventType `db:"event_type" json:"event_type"`
	Delta            float64               `db:"delta" json:"delta"`
	OccurredOn       time.Time             `db:"occurred_on" json:"occurred_on"`
	CreatedAt        time.Time             `db:"created_at" json:"created_at"`
	Seq              int64                 `db:"seq" json:"-"`
}

// DisciplinaryEventFilter narrows ledger listings.
type DisciplinaryEventFilter struct {
	StudentID string
	Types     []DisciplinaryEventType
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
}

// PeriodSnapshot caches the running score of a student inside one period.
type PeriodSnapshot struct {
	StudentID     string    `db:"student_id" json:"student_id"`
	AcademicYear  int       `db:"academic_year" json:"academic_year"`
	PeriodNumber  int       `db:"period_number" json:"period_number"`
	OpeningScore  float64   `db:"opening_score" json:"opening_score"`
	CurrentScore  float64   `db:"current_score" json:"current_score"`
	LastUpdatedAt time.Time `db:"last_updated_at" json:"last_updated_at"`
}

// AcademicPeriod is a bimester boundary record. Nil bounds are open ended.
type AcademicPeriod struct {
	AcademicYear int        `db:"academic_year" json:"academic_year"`
	PeriodNumber int        `db:"period_number" json:"period_number"`
	StartDate    *time.Time `db:"start_date" json:"start_date,omitempty"`
	EndDate      *time.Time `db:"end_date" json:"end_date,omitempty"`
}

// Contains reports whether day falls inside the period bounds.
func (p AcademicPeriod) Contains(day time.Time) bool {
	day = DateOnly(day)
	if p.StartDate != nil && DateOnly(*p.StartDate).After(day) {
		return false
	}
	if p.EndDate != nil && DateOnly(*p.EndDate).Before(day) {
		return false
	}
	return true
}

// ClosedBy reports whether the period has an end date on or before day.
func (p AcademicPeriod) ClosedBy(day time.Time) bool {
	return p.EndDate != nil && !DateOnly(*p.EndDate).After(DateOnly(day))
}

// Student carries the enrollment data the engine needs.
type Student struct {
	ID             string     `db:"id" json:"id"`
	EnrollmentDate *time.Time `db:"enrollment_date" json:"enrollment_date,omitempty"`
}

// BehaviorLabel classifies a score.
type BehaviorLabel string

const (
	BehaviorExceptional  BehaviorLabel = "Exceptional"
	BehaviorExcellent    BehaviorLabel = "Excellent"
	BehaviorGood         BehaviorLabel = "Good"
	BehaviorRegular      BehaviorLabel = "Regular"
	BehaviorInsufficient BehaviorLabel = "Insufficient"
	BehaviorIncompatible BehaviorLabel = "Incompatible"
)

// PeriodRef identifies an academic period.
type PeriodRef struct {
	AcademicYear int `json:"academic_year"`
	PeriodNumber int `json:"period_number"`
}

// ConductBreakdown explains how a projected score was reached.
type ConductBreakdown struct {
	BaseScore       float64     `json:"base_score"`
	CarriedOver     bool        `json:"carried_over"`
	EventsReplayed  int         `json:"events_replayed"`
	ReplayedScore   float64     `json:"replayed_score"`
	LastLossOn      *time.Time  `json:"last_loss_on,omitempty"`
	ClockStart      time.Time   `json:"clock_start"`
	DaysSinceLoss   int         `json:"days_since_loss"`
	NoLossBonus     float64     `json:"no_loss_bonus"`
	PeriodBonus     float64     `json:"period_bonus"`
	BonusPeriods    []PeriodRef `json:"bonus_periods,omitempty"`
	FrozenIntoCache bool        `json:"frozen_into_cache"`
}

// ConductState is the disciplinary standing of a student at a moment.
type ConductState struct {
	StudentID string           `json:"student_id"`
	AsOf      time.Time        `json:"as_of"`
	Score     float64          `json:"score"`
	Behavior  BehaviorLabel    `json:"behavior"`
	Breakdown ConductBreakdown `json:"breakdown"`
}

// BonusRunSummary reports the outcome of a batch run.
type BonusRunSummary struct {
	Job      string `json:"job"`
	Examined int    `json:"examined"`
	Applied  int    `json:"applied"`
	Skipped  int    `json:"skipped"`
	Failed   int    `json:"failed"`
}

// Merge accumulates the counters of other into s.
func (s *BonusRunSummary) Merge(other BonusRunSummary) {
	s.Examined += other.Examined
	s.Applied += other.Applied
	s.Skipped += other.Skipped
	s.Failed += other.Failed
}

// ClampScore keeps a score within [ScoreFloor, ScoreCeiling].
func ClampScore(v float64) float64 {
	if math.IsNaN(v) {
		return ScoreFloor
	}
	return math.Max(ScoreFloor, math.Min(ScoreCeiling, v))
}

// RoundScore rounds to two decimals.
func RoundScore(v float64) float64 {
	return math.Round(v*100) / 100
}

// DateOnly truncates t to its calendar date at UTC midnight.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(DateOnly(b).Sub(DateOnly(a)).Hours() / 24)
}

// MeasureSetting is one row of the measure configuration table.
type MeasureSetting struct {
	Key   string  `db:"key" json:"key"`
	Value float64 `db:"value" json:"value"`
}

// PeriodAverage is a student's grade average for a closed period.
type PeriodAverage struct {
	StudentID    string  `db:"student_id" json:"student_id"`
	AcademicYear int     `db:"academic_year" json:"academic_year"`
	PeriodNumber int     `db:"period_number" json:"period_number"`
	Average      float64 `db:"average" json:"average"`
}
