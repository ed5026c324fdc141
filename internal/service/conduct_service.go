package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-conduct-api/internal/dto"
	"github.com/noah-isme/sma-conduct-api/internal/models"
	appErrors "github.com/noah-isme/sma-conduct-api/pkg/errors"
	"github.com/noah-isme/sma-conduct-api/pkg/logger"
)

type conductProjector interface {
	Project(ctx context.Context, studentID string, asOf time.Time, freeze bool) (*models.ConductState, error)
}

type incidentApplier interface {
	ApplyEvent(ctx context.Context, event *models.DisciplinaryEvent) (float64, error)
	GetOrCreate(ctx context.Context, studentID string, year, period int) (*models.PeriodSnapshot, error)
}

type conductEventLister interface {
	List(ctx context.Context, filter models.DisciplinaryEventFilter) ([]models.DisciplinaryEvent, int, error)
}

type measureValues interface {
	Values(ctx context.Context) MeasureConfig
}

// ConductServiceConfig tunes the incident registration policy.
type ConductServiceConfig struct {
	// StrictMeasures rejects descriptions that match no category instead of recording nothing.
	StrictMeasures bool
	Location       *time.Location
}

// ConductService exposes the scoring engine operations used by the rest of the school system.
type ConductService struct {
	projector conductProjector
	snapshots incidentApplier
	events    conductEventLister
	students  studentReader
	resolver  periodLocator
	measures  measureValues
	cache     *ConductCache
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ConductServiceConfig
	now       func() time.Time
}

// NewConductService wires the conduct service.
func NewConductService(
	projector conductProjector,
	snapshots incidentApplier,
	events conductEventLister,
	students studentReader,
	resolver periodLocator,
	measures measureValues,
	cache *ConductCache,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg ConductServiceConfig,
) *ConductService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &ConductService{
		projector: projector,
		snapshots: snapshots,
		events:    events,
		students:  students,
		resolver:  resolver,
		measures:  measures,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Today returns the current school-local calendar date.
func (s *ConductService) Today() time.Time {
	local := s.now().In(s.cfg.Location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// ComputeCurrentState projects the student's standing as of today.
func (s *ConductService) ComputeCurrentState(ctx context.Context, studentID string) (*models.ConductState, bool, error) {
	return s.ProjectAt(ctx, studentID, s.Today(), false)
}

// ProjectAt projects the standing at asOf. Non-freezing projections are served from cache
// when possible; the second return value reports a cache hit.
func (s *ConductService) ProjectAt(ctx context.Context, studentID string, asOf time.Time, freeze bool) (*models.ConductState, bool, error) {
	if studentID == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "student id is required")
	}
	day := models.DateOnly(asOf)

	if !freeze {
		if state, ok := s.cache.Get(ctx, studentID, day); ok {
			return state, true, nil
		}
	}

	state, err := s.projector.Project(ctx, studentID, day, freeze)
	if err != nil {
		return nil, false, err
	}
	if freeze {
		s.cache.Invalidate(ctx, studentID)
	} else {
		s.cache.Put(ctx, state)
	}
	return state, false, nil
}

// RegisterIncidentDelta converts a measure description into a delta and records it against the
// snapshot and the ledger atomically.
func (s *ConductService) RegisterIncidentDelta(ctx context.Context, studentID string, req dto.RegisterIncidentRequest) (*dto.IncidentDeltaResponse, error) {
	log := logger.FromContext(ctx, s.logger)
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student id is required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid incident payload")
	}

	day := s.Today()
	if req.OccurredOn != "" {
		parsed, err := time.Parse(dto.DateLayout, req.OccurredOn)
		if err != nil {
			return nil, appErrors.Invalid(err, "occurredOn must be YYYY-MM-DD")
		}
		day = parsed
	}

	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load student")
	}
	if student == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}

	measure := ComputeDelta(req.Description, ParseQuantity(string(req.Quantity)), s.measures.Values(ctx))
	ref := s.resolver.Resolve(ctx, day)
	resp := &dto.IncidentDeltaResponse{
		StudentID:    studentID,
		Category:     string(measure.Category),
		Delta:        measure.Delta,
		Matched:      measure.Matched,
		AcademicYear: ref.AcademicYear,
		PeriodNumber: ref.PeriodNumber,
		OccurredOn:   day.Format(dto.DateLayout),
	}

	if !measure.Matched {
		s.metrics.IncUnmatchedMeasure()
		log.Warn("disciplinary measure not recognised",
			zap.String("student_id", studentID),
			zap.String("incident_id", req.IncidentID),
			zap.String("description", req.Description))
		if s.cfg.StrictMeasures {
			return nil, appErrors.Clone(appErrors.ErrUnknownMeasure, fmt.Sprintf("measure %q matches no category", req.Description))
		}
		snapshot, err := s.snapshots.GetOrCreate(ctx, studentID, ref.AcademicYear, ref.PeriodNumber)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to read period snapshot")
		}
		resp.Score = snapshot.CurrentScore
		resp.Behavior = string(ClassifyBehavior(snapshot.CurrentScore))
		return resp, nil
	}

	event := &models.DisciplinaryEvent{
		StudentID:    studentID,
		AcademicYear: ref.AcademicYear,
		PeriodNumber: ref.PeriodNumber,
		EventType:    models.EventIncident,
		Delta:        measure.Delta,
		OccurredOn:   day,
	}
	if req.IncidentID != "" {
		incidentID := req.IncidentID
		event.SourceIncidentID = &incidentID
	}

	score, err := s.snapshots.ApplyEvent(ctx, event)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to apply incident delta")
	}
	s.cache.Invalidate(ctx, studentID)
	s.metrics.IncIncident(string(measure.Category))

	log.Info("incident delta applied",
		zap.String("student_id", studentID),
		zap.String("event_id", event.ID),
		zap.String("category", string(measure.Category)),
		zap.Float64("delta", measure.Delta),
		zap.Float64("score", score))

	resp.EventID = event.ID
	resp.Applied = true
	resp.Score = score
	resp.Behavior = string(ClassifyBehavior(score))
	return resp, nil
}

// ListEvents pages through a student's ledger, newest first.
func (s *ConductService) ListEvents(ctx context.Context, studentID string, query dto.ConductEventsQuery) ([]dto.ConductEventResponse, *models.Pagination, error) {
	if studentID == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "student id is required")
	}
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, appErrors.Invalid(err, "invalid event query")
	}

	filter := models.DisciplinaryEventFilter{StudentID: studentID, Page: query.Page, PageSize: query.PageSize}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 50
	}
	for _, t := range query.Types {
		filter.Types = append(filter.Types, models.DisciplinaryEventType(t))
	}
	var err error
	if filter.From, err = parseOptionalDate(query.From); err != nil {
		return nil, nil, appErrors.Invalid(err, "from must be YYYY-MM-DD")
	}
	if filter.To, err = parseOptionalDate(query.To); err != nil {
		return nil, nil, appErrors.Invalid(err, "to must be YYYY-MM-DD")
	}

	events, total, err := s.events.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list conduct events")
	}

	items := make([]dto.ConductEventResponse, 0, len(events))
	for _, e := range events {
		items = append(items, dto.ConductEventResponse{
			ID:               e.ID,
			EventType:        string(e.EventType),
			Delta:            e.Delta,
			AcademicYear:     e.AcademicYear,
			PeriodNumber:     e.PeriodNumber,
			SourceIncidentID: e.SourceIncidentID,
			OccurredOn:       e.OccurredOn.Format(dto.DateLayout),
			CreatedAt:        e.CreatedAt,
		})
	}
	return items, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// ToStateResponse renders a projected state for the API.
func ToStateResponse(state *models.ConductState, cached bool) dto.ConductStateResponse {
	b := state.Breakdown
	resp := dto.ConductStateResponse{
		StudentID: state.StudentID,
		AsOf:      state.AsOf.Format(dto.DateLayout),
		Score:     state.Score,
		Behavior:  string(state.Behavior),
		Cached:    cached,
		Breakdown: dto.ConductBreakdownSchema{
			BaseScore:      b.BaseScore,
			CarriedOver:    b.CarriedOver,
			EventsReplayed: b.EventsReplayed,
			ReplayedScore:  b.ReplayedScore,
			ClockStart:     b.ClockStart.Format(dto.DateLayout),
			DaysSinceLoss:  b.DaysSinceLoss,
			NoLossBonus:    b.NoLossBonus,
			PeriodBonus:    b.PeriodBonus,
			Frozen:         b.FrozenIntoCache,
		},
	}
	if b.LastLossOn != nil {
		resp.Breakdown.LastLossOn = b.LastLossOn.Format(dto.DateLayout)
	}
	for _, ref := range b.BonusPeriods {
		resp.Breakdown.BonusPeriods = append(resp.Breakdown.BonusPeriods, strconv.Itoa(ref.AcademicYear)+"/"+strconv.Itoa(ref.PeriodNumber))
	}
	return resp
}

func parseOptionalDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dto.DateLayout, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
