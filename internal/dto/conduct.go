package dto

import (
	"bytes"
	"encoding/json"
	"time"
)

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// Quantity accepts either a JSON number or a string; interpretation is left to the scoring engine.
type Quantity string

// UnmarshalJSON keeps the raw text of numbers and strings alike.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*q = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*q = Quantity(s)
		return nil
	}
	*q = Quantity(data)
	return nil
}

// RegisterIncidentRequest carries the disciplinary measure applied when an incident is treated.
type RegisterIncidentRequest struct {
	Description string   `json:"description" validate:"required,max=500"`
	Quantity    Quantity `json:"quantity" swaggertype:"string"`
	IncidentID  string   `json:"incidentId" validate:"omitempty,max=64"`
	OccurredOn  string   `json:"occurredOn" validate:"omitempty,datetime=2006-01-02"`
}

// IncidentDeltaResponse reports the delta applied for an incident.
type IncidentDeltaResponse struct {
	StudentID    string  `json:"studentId"`
	EventID      string  `json:"eventId,omitempty"`
	Category     string  `json:"category"`
	Delta        float64 `json:"delta"`
	Matched      bool    `json:"matched"`
	Applied      bool    `json:"applied"`
	Score        float64 `json:"score"`
	Behavior     string  `json:"behavior"`
	AcademicYear int     `json:"academicYear"`
	PeriodNumber int     `json:"periodNumber"`
	OccurredOn   string  `json:"occurredOn"`
}

// ConductStateQuery selects the projection date.
type ConductStateQuery struct {
	AsOf   string `form:"asOf" validate:"omitempty,datetime=2006-01-02"`
	Freeze bool   `form:"freeze"`
}

// ConductStateResponse is a projected score.
type ConductStateResponse struct {
	StudentID string                 `json:"studentId"`
	AsOf      string                 `json:"asOf"`
	Score     float64                `json:"score"`
	Behavior  string                 `json:"behavior"`
	Cached    bool                   `json:"cached"`
	Breakdown ConductBreakdownSchema `json:"breakdown"`
}

// ConductBreakdownSchema explains a projected score.
type ConductBreakdownSchema struct {
	BaseScore      float64  `json:"baseScore"`
	CarriedOver    bool     `json:"carriedOver"`
	EventsReplayed int      `json:"eventsReplayed"`
	ReplayedScore  float64  `json:"replayedScore"`
	LastLossOn     string   `json:"lastLossOn,omitempty"`
	ClockStart     string   `json:"clockStart"`
	DaysSinceLoss  int      `json:"daysSinceLoss"`
	NoLossBonus    float64  `json:"noLossBonus"`
	PeriodBonus    float64  `json:"periodBonus"`
	BonusPeriods   []string `json:"bonusPeriods,omitempty"`
	Frozen         bool     `json:"frozen"`
}

// ConductEventsQuery pages through a student's ledger.
type ConductEventsQuery struct {
	Page     int      `form:"page" validate:"omitempty,min=1"`
	PageSize int      `form:"pageSize" validate:"omitempty,min=1,max=200"`
	Types    []string `form:"type" validate:"omitempty,dive,oneof=INCIDENT PERIOD_BONUS NO_LOSS_DAILY_BONUS YEAR_OPENING_BALANCE"`
	From     string   `form:"from" validate:"omitempty,datetime=2006-01-02"`
	To       string   `form:"to" validate:"omitempty,datetime=2006-01-02"`
}

// ConductEventResponse is one ledger entry.
type ConductEventResponse struct {
	ID               string    `json:"id"`
	EventType        string    `json:"eventType"`
	Delta            float64   `json:"delta"`
	AcademicYear     int       `json:"academicYear"`
	PeriodNumber     int       `json:"periodNumber"`
	SourceIncidentID *string   `json:"sourceIncidentId,omitempty"`
	OccurredOn       string    `json:"occurredOn"`
	CreatedAt        time.Time `json:"createdAt"`
}

// DailyBonusRequest queues the no-loss bonus for a date range. To defaults to From.
type DailyBonusRequest struct {
	From string `json:"from" validate:"required,datetime=2006-01-02"`
	To   string `json:"to" validate:"omitempty,datetime=2006-01-02"`
}

// PeriodBonusRequest queues the period-average bonus.
type PeriodBonusRequest struct {
	Year   int  `json:"year" validate:"required,min=2000,max=2100"`
	Period int  `json:"period" validate:"required,min=1,max=6"`
	Force  bool `json:"force"`
}

// RolloverRequest queues the year-end carryover of a closing year.
type RolloverRequest struct {
	Year int `json:"year" validate:"required,min=2000,max=2100"`
}

// JobAcceptedResponse acknowledges a queued batch job.
type JobAcceptedResponse struct {
	JobID string `json:"jobId"`
	Type  string `json:"type"`
	Key   string `json:"key"`
}
