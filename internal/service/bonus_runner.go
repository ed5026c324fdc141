package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-conduct-api/internal/models"
	appErrors "github.com/noah-isme/sma-conduct-api/pkg/errors"
)

const (
	JobNoLossDaily = "no_loss_daily"
	JobPeriodBonus = "period_bonus"
	JobRollover    = "year_rollover"

	maxDailyRunSpan = 366
)

type enrolledStudentLister interface {
	ListEnrolledBy(ctx context.Context, day time.Time) ([]models.Student, error)
}

type bonusEventChecker interface {
	ExistsForDay(ctx context.Context, studentID string, eventType models.DisciplinaryEventType, day time.Time) (bool, error)
	ExistsForPeriod(ctx context.Context, studentID string, eventType models.DisciplinaryEventType, year, period int) (bool, error)
	LastNegativeOn(ctx context.Context, studentID string, upTo time.Time) (*time.Time, error)
	HasNegativeBetween(ctx context.Context, studentID string, from, to time.Time) (bool, error)
}

type eventApplier interface {
	ApplyEvent(ctx context.Context, event *models.DisciplinaryEvent) (float64, error)
}

type periodCalendar interface {
	Resolve(ctx context.Context, day time.Time) models.PeriodRef
	Bounds(ctx context.Context, year, period int) (time.Time, time.Time)
}

type periodAverageReader interface {
	AveragesFor(ctx context.Context, studentIDs []string, year, period int) (map[string]float64, error)
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeApplied
	outcomeFailed
)

// BonusRunner materialises the time-based and period-average bonuses as ledger events.
// Every run is idempotent: the ledger itself is checked before each write.
type BonusRunner struct {
	students enrolledStudentLister
	events   bonusEventChecker
	applier  eventApplier
	calendar periodCalendar
	averages periodAverageReader
	cache    *ConductCache
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewBonusRunner wires the runner.
func NewBonusRunner(students enrolledStudentLister, events bonusEventChecker, applier eventApplier, calendar periodCalendar, averages periodAverageReader, cache *ConductCache, metrics *MetricsService, logger *zap.Logger) *BonusRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BonusRunner{
		students: students,
		events:   events,
		applier:  applier,
		calendar: calendar,
		averages: averages,
		cache:    cache,
		metrics:  metrics,
		logger:   logger,
	}
}

// RunDailyBonuses applies the no-loss bonus for a single day.
func (r *BonusRunner) RunDailyBonuses(ctx context.Context, day time.Time) (models.BonusRunSummary, error) {
	return r.ApplyNoLossDaily(ctx, day, day)
}

// RunPeriodCloseBonus applies the period-average bonus once per student.
func (r *BonusRunner) RunPeriodCloseBonus(ctx context.Context, year, period int) (models.BonusRunSummary, error) {
	return r.ApplyPeriodBonus(ctx, year, period, false)
}

// ApplyNoLossDaily awards +0.2 for each day in [from, to] to every student whose last 60 days
// are free of losses, counting from the latest of period start, enrollment and last loss.
func (r *BonusRunner) ApplyNoLossDaily(ctx context.Context, from, to time.Time) (models.BonusRunSummary, error) {
	summary := models.BonusRunSummary{Job: JobNoLossDaily}
	from, to = models.DateOnly(from), models.DateOnly(to)
	if to.Before(from) {
		return summary, appErrors.Clone(appErrors.ErrValidation, "range end precedes range start")
	}
	if models.DaysBetween(from, to) >= maxDailyRunSpan {
		return summary, appErrors.Clone(appErrors.ErrValidation, "range spans more than a year")
	}

	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		students, err := r.students.ListEnrolledBy(ctx, day)
		if err != nil {
			return summary, appErrors.Internal(err, "failed to list enrolled students")
		}
		ref := r.calendar.Resolve(ctx, day)
		periodStart, _ := r.calendar.Bounds(ctx, ref.AcademicYear, ref.PeriodNumber)

		for _, student := range students {
			if err := ctx.Err(); err != nil {
				return summary, err
			}
			summary.Examined++
			switch r.noLossForStudent(ctx, student, day, ref, periodStart) {
			case outcomeApplied:
				summary.Applied++
			case outcomeFailed:
				summary.Failed++
			default:
				summary.Skipped++
			}
		}
	}

	r.logger.Info("no-loss daily bonus run finished",
		zap.Time("from", from), zap.Time("to", to),
		zap.Int("examined", summary.Examined), zap.Int("applied", summary.Applied),
		zap.Int("skipped", summary.Skipped), zap.Int("failed", summary.Failed))
	return summary, nil
}

func (r *BonusRunner) noLossForStudent(ctx context.Context, student models.Student, day time.Time, ref models.PeriodRef, periodStart time.Time) outcome {
	reference := periodStart
	if student.EnrollmentDate != nil {
		if enrolled := models.DateOnly(*student.EnrollmentDate); enrolled.After(reference) {
			reference = enrolled
		}
	}
	lastLoss, err := r.events.LastNegativeOn(ctx, student.ID, day)
	if err != nil {
		return r.fail(JobNoLossDaily, student.ID, day, err)
	}
	if lastLoss != nil && lastLoss.After(reference) {
		reference = *lastLoss
	}
	if day.Before(reference.AddDate(0, 0, noLossGraceDays)) {
		return outcomeSkipped
	}

	lost, err := r.events.HasNegativeBetween(ctx, student.ID, day.AddDate(0, 0, -noLossGraceDays), day.AddDate(0, 0, -1))
	if err != nil {
		return r.fail(JobNoLossDaily, student.ID, day, err)
	}
	if lost {
		return outcomeSkipped
	}

	exists, err := r.events.ExistsForDay(ctx, student.ID, models.EventNoLossDailyBonus, day)
	if err != nil {
		return r.fail(JobNoLossDaily, student.ID, day, err)
	}
	if exists {
		return outcomeSkipped
	}

	return r.award(ctx, JobNoLossDaily, &models.DisciplinaryEvent{
		StudentID:    student.ID,
		AcademicYear: ref.AcademicYear,
		PeriodNumber: ref.PeriodNumber,
		EventType:    models.EventNoLossDailyBonus,
		Delta:        noLossDailyBonus,
		OccurredOn:   day,
	})
}

// ApplyPeriodBonus awards +0.5, dated at the period end, to students enrolled by that date whose
// period average reached 8.0. Without force a student already holding the bonus is skipped.
func (r *BonusRunner) ApplyPeriodBonus(ctx context.Context, year, period int, force bool) (models.BonusRunSummary, error) {
	summary := models.BonusRunSummary{Job: JobPeriodBonus}
	if year <= 0 || period <= 0 {
		return summary, appErrors.Clone(appErrors.ErrValidation, "year and period are required")
	}

	_, end := r.calendar.Bounds(ctx, year, period)
	students, err := r.students.ListEnrolledBy(ctx, end)
	if err != nil {
		return summary, appErrors.Internal(err, "failed to list enrolled students")
	}
	ids := make([]string, 0, len(students))
	for _, s := range students {
		ids = append(ids, s.ID)
	}
	averages, err := r.averages.AveragesFor(ctx, ids, year, period)
	if err != nil {
		return summary, appErrors.Internal(err, "failed to load period averages")
	}

	for _, student := range students {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Examined++

		avg, ok := averages[student.ID]
		if !ok || avg < periodBonusMinAverage {
			summary.Skipped++
			continue
		}
		if !force {
			exists, err := r.events.ExistsForPeriod(ctx, student.ID, models.EventPeriodBonus, year, period)
			if err != nil {
				r.fail(JobPeriodBonus, student.ID, end, err)
				summary.Failed++
				continue
			}
			if exists {
				summary.Skipped++
				continue
			}
		}

		switch r.award(ctx, JobPeriodBonus, &models.DisciplinaryEvent{
			StudentID:    student.ID,
			AcademicYear: year,
			PeriodNumber: period,
			EventType:    models.EventPeriodBonus,
			Delta:        periodBonus,
			OccurredOn:   end,
		}) {
		case outcomeApplied:
			summary.Applied++
		default:
			summary.Failed++
		}
	}

	r.logger.Info("period bonus run finished",
		zap.Int("academic_year", year), zap.Int("period_number", period), zap.Bool("force", force),
		zap.Int("examined", summary.Examined), zap.Int("applied", summary.Applied),
		zap.Int("skipped", summary.Skipped), zap.Int("failed", summary.Failed))
	return summary, nil
}

func (r *BonusRunner) award(ctx context.Context, job string, event *models.DisciplinaryEvent) outcome {
	if _, err := r.applier.ApplyEvent(ctx, event); err != nil {
		return r.fail(job, event.StudentID, event.OccurredOn, err)
	}
	r.cache.Invalidate(ctx, event.StudentID)
	r.metrics.IncBonusEvent(string(event.EventType))
	return outcomeApplied
}

func (r *BonusRunner) fail(job, studentID string, day time.Time, err error) outcome {
	r.metrics.IncRunFailure(job)
	r.logger.Error("bonus skipped for student",
		zap.String("job", job),
		zap.String("student_id", studentID),
		zap.Time("day", day),
		zap.Error(err))
	return outcomeFailed
}
