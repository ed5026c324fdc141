package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-conduct-api/internal/models"
	appErrors "github.com/noah-isme/sma-conduct-api/pkg/errors"
)

type allStudentLister interface {
	ListAll(ctx context.Context) ([]models.Student, error)
}

type openingBalanceLedger interface {
	LatestOpeningBalance(ctx context.Context, studentID string, year int) (*models.DisciplinaryEvent, error)
	Append(ctx context.Context, event *models.DisciplinaryEvent) error
}

type yearEndSnapshotReader interface {
	LastOfYear(ctx context.Context, studentID string, year int) (*models.PeriodSnapshot, error)
}

// YearRollover carries each student's closing score into the next academic year.
type YearRollover struct {
	students  allStudentLister
	ledger    openingBalanceLedger
	snapshots yearEndSnapshotReader
	resolver  periodLocator
	cache     *ConductCache
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewYearRollover wires the rollover job.
func NewYearRollover(students allStudentLister, ledger openingBalanceLedger, snapshots yearEndSnapshotReader, resolver periodLocator, cache *ConductCache, metrics *MetricsService, logger *zap.Logger) *YearRollover {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &YearRollover{
		students:  students,
		ledger:    ledger,
		snapshots: snapshots,
		resolver:  resolver,
		cache:     cache,
		metrics:   metrics,
		logger:    logger,
	}
}

// Rollover writes one YEAR_OPENING_BALANCE event per student for closingYear+1, dated January 1st,
// holding the last snapshot score of closingYear (8.0 without one). Students already carried over
// are skipped, so reruns are harmless.
func (y *YearRollover) Rollover(ctx context.Context, closingYear int) (models.BonusRunSummary, error) {
	summary := models.BonusRunSummary{Job: JobRollover}
	if closingYear <= 0 {
		return summary, appErrors.Clone(appErrors.ErrValidation, "closing year is required")
	}

	students, err := y.students.ListAll(ctx)
	if err != nil {
		return summary, appErrors.Internal(err, "failed to list students")
	}

	nextYear := closingYear + 1
	openedOn := time.Date(nextYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	ref := y.resolver.Resolve(ctx, openedOn)

	for _, student := range students {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Examined++

		existing, err := y.ledger.LatestOpeningBalance(ctx, student.ID, nextYear)
		if err != nil {
			y.fail(student.ID, err)
			summary.Failed++
			continue
		}
		if existing != nil {
			summary.Skipped++
			continue
		}

		score := models.DefaultOpeningScore
		snapshot, err := y.snapshots.LastOfYear(ctx, student.ID, closingYear)
		if err != nil {
			y.fail(student.ID, err)
			summary.Failed++
			continue
		}
		if snapshot != nil {
			score = models.RoundScore(models.ClampScore(snapshot.CurrentScore))
		}

		event := &models.DisciplinaryEvent{
			StudentID:    student.ID,
			AcademicYear: nextYear,
			PeriodNumber: ref.PeriodNumber,
			EventType:    models.EventYearOpeningBalance,
			Delta:        score,
			OccurredOn:   openedOn,
		}
		if err := y.ledger.Append(ctx, event); err != nil {
			y.fail(student.ID, err)
			summary.Failed++
			continue
		}
		y.cache.Invalidate(ctx, student.ID)
		summary.Applied++
	}

	y.logger.Info("year rollover finished",
		zap.Int("closing_year", closingYear),
		zap.Int("examined", summary.Examined), zap.Int("applied", summary.Applied),
		zap.Int("skipped", summary.Skipped), zap.Int("failed", summary.Failed))
	return summary, nil
}

func (y *YearRollover) fail(studentID string, err error) {
	y.metrics.IncRunFailure(JobRollover)
	y.logger.Error("rollover skipped for student", zap.String("student_id", studentID), zap.Error(err))
}
