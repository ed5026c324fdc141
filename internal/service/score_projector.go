package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-conduct-api/internal/models"
	appErrors "github.com/noah-isme/sma-conduct-api/pkg/errors"
)

const (
	noLossGraceDays        = 60
	noLossDailyBonus       = 0.2
	periodBonus            = 0.5
	periodBonusMinAverage  = 8.0
	maxPeriodBonusLookback = 20
)

type projectorEventReader interface {
	LatestOpeningBalance(ctx context.Context, studentID string, year int) (*models.DisciplinaryEvent, error)
	EventsFor(ctx context.Context, studentID string, upTo time.Time, floor *time.Time) ([]models.DisciplinaryEvent, error)
	LastNegativeOn(ctx context.Context, studentID string, upTo time.Time) (*time.Time, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type periodRangeReader interface {
	ListBetweenYears(ctx context.Context, fromYear, toYear int) ([]models.AcademicPeriod, error)
}

type averageHistoryReader interface {
	HistoryFor(ctx context.Context, studentID string, fromYear, toYear int) (map[models.PeriodRef]float64, error)
}

type snapshotOverwriter interface {
	Overwrite(ctx context.Context, studentID string, year, period int, score float64) error
}

type periodLocator interface {
	Resolve(ctx context.Context, day time.Time) models.PeriodRef
}

// ScoreProjector derives a student's score at any date by replaying the ledger. It is the
// authoritative read path; period snapshots are only a cache of it.
type ScoreProjector struct {
	events    projectorEventReader
	students  studentReader
	periods   periodRangeReader
	averages  averageHistoryReader
	snapshots snapshotOverwriter
	resolver  periodLocator
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewScoreProjector wires the projector.
func NewScoreProjector(events projectorEventReader, students studentReader, periods periodRangeReader, averages averageHistoryReader, snapshots snapshotOverwriter, resolver periodLocator, metrics *MetricsService, logger *zap.Logger) *ScoreProjector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScoreProjector{
		events:    events,
		students:  students,
		periods:   periods,
		averages:  averages,
		snapshots: snapshots,
		resolver:  resolver,
		metrics:   metrics,
		logger:    logger,
	}
}

// Project computes the score and behaviour label as of asOf. With freeze the result is
// written back into the snapshot of the period containing asOf.
func (p *ScoreProjector) Project(ctx context.Context, studentID string, asOf time.Time, freeze bool) (*models.ConductState, error) {
	started := time.Now()
	defer func() { p.metrics.ObserveProjection(time.Since(started)) }()

	day := models.DateOnly(asOf)
	year := day.Year()

	student, err := p.students.FindByID(ctx, studentID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load student")
	}
	if student == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}

	opening, err := p.events.LatestOpeningBalance(ctx, studentID, year)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load opening balance")
	}

	breakdown := models.ConductBreakdown{BaseScore: models.DefaultOpeningScore}
	var floor *time.Time
	if opening != nil {
		openedOn := models.DateOnly(opening.OccurredOn)
		floor = &openedOn
		breakdown.BaseScore = models.ClampScore(opening.Delta)
		breakdown.CarriedOver = true
	}

	events, err := p.events.EventsFor(ctx, studentID, day, floor)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load conduct events")
	}

	score := breakdown.BaseScore
	for _, event := range events {
		// Materialised bonuses are re-derived below.
		if event.EventType != models.EventIncident {
			continue
		}
		score = models.ClampScore(score + event.Delta)
		breakdown.EventsReplayed++
	}
	breakdown.ReplayedScore = models.RoundScore(score)

	// The opening balance only bounds the replay; a loss before it still holds the clock.
	lastLoss, err := p.events.LastNegativeOn(ctx, studentID, day)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load last loss")
	}
	if lastLoss != nil {
		lossOn := models.DateOnly(*lastLoss)
		breakdown.LastLossOn = &lossOn
	}

	breakdown.ClockStart = clockStart(day, breakdown.LastLossOn, student.EnrollmentDate, floor)
	breakdown.DaysSinceLoss = models.DaysBetween(breakdown.ClockStart, day)
	if breakdown.DaysSinceLoss > noLossGraceDays {
		breakdown.NoLossBonus = models.RoundScore(float64(breakdown.DaysSinceLoss-noLossGraceDays) * noLossDailyBonus)
		score = models.ClampScore(score + breakdown.NoLossBonus)
	}

	qualifying, err := p.qualifyingPeriods(ctx, student, day, floor)
	if err != nil {
		return nil, err
	}
	for _, ref := range qualifying {
		score = models.ClampScore(score + periodBonus)
		breakdown.PeriodBonus += periodBonus
		breakdown.BonusPeriods = append(breakdown.BonusPeriods, ref)
	}

	score = models.RoundScore(score)
	state := &models.ConductState{
		StudentID: studentID,
		AsOf:      day,
		Score:     score,
		Behavior:  ClassifyBehavior(score),
		Breakdown: breakdown,
	}

	if freeze {
		ref := p.resolver.Resolve(ctx, day)
		if err := p.snapshots.Overwrite(ctx, studentID, ref.AcademicYear, ref.PeriodNumber, score); err != nil {
			return nil, appErrors.Internal(err, "failed to freeze projected score")
		}
		state.Breakdown.FrozenIntoCache = true
		p.logger.Info("projected score frozen into snapshot",
			zap.String("student_id", studentID),
			zap.Int("academic_year", ref.AcademicYear),
			zap.Int("period_number", ref.PeriodNumber),
			zap.Float64("score", score))
	}

	return state, nil
}

// qualifyingPeriods lists the closed periods whose average earns the period bonus.
func (p *ScoreProjector) qualifyingPeriods(ctx context.Context, student *models.Student, day time.Time, floor *time.Time) ([]models.PeriodRef, error) {
	toYear := day.Year()
	fromYear := toYear
	switch {
	case floor != nil:
		fromYear = floor.Year()
	case student.EnrollmentDate != nil && student.EnrollmentDate.Year() < toYear:
		fromYear = student.EnrollmentDate.Year()
	}
	if toYear-fromYear > maxPeriodBonusLookback {
		fromYear = toYear - maxPeriodBonusLookback
	}

	records, err := p.periods.ListBetweenYears(ctx, fromYear, toYear)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load academic periods")
	}
	averages, err := p.averages.HistoryFor(ctx, student.ID, fromYear, toYear)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load period averages")
	}

	var refs []models.PeriodRef
	for _, period := range effectivePeriods(records, fromYear, toYear) {
		end := models.DateOnly(*period.EndDate)
		if end.After(day) {
			continue
		}
		if floor != nil && end.Before(*floor) {
			continue
		}
		if student.EnrollmentDate != nil && models.DateOnly(*student.EnrollmentDate).After(end) {
			continue
		}
		ref := models.PeriodRef{AcademicYear: period.AcademicYear, PeriodNumber: period.PeriodNumber}
		if avg, ok := averages[ref]; ok && avg >= periodBonusMinAverage {
			refs = append(refs, ref)
		}
	}
	return refs, nil
}

// effectivePeriods fills years without calendar records with quarters and completes
// open-ended records with the quarter end, so every returned period has an end date.
func effectivePeriods(records []models.AcademicPeriod, fromYear, toYear int) []models.AcademicPeriod {
	byYear := make(map[int][]models.AcademicPeriod)
	for _, r := range records {
		byYear[r.AcademicYear] = append(byYear[r.AcademicYear], r)
	}

	var out []models.AcademicPeriod
	for year := fromYear; year <= toYear; year++ {
		periods := byYear[year]
		if len(periods) == 0 {
			for n := 1; n <= 4; n++ {
				periods = append(periods, models.AcademicPeriod{AcademicYear: year, PeriodNumber: n})
			}
		}
		for _, period := range periods {
			if period.EndDate == nil {
				_, end := quarterBounds(period.AcademicYear, period.PeriodNumber)
				period.EndDate = &end
			}
			out = append(out, period)
		}
	}
	return out
}

// clockStart is the day the no-loss clock runs from: the last loss, else enrollment (never
// before the year opening), else the year opening, else the projection day itself.
func clockStart(day time.Time, lastLoss, enrollment, floor *time.Time) time.Time {
	if lastLoss != nil {
		return *lastLoss
	}
	if enrollment != nil {
		start := models.DateOnly(*enrollment)
		if floor != nil && start.Before(*floor) {
			return *floor
		}
		return start
	}
	if floor != nil {
		return *floor
	}
	return day
}
