package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-conduct-api/internal/models"
)

type academicPeriodReader interface {
	ListByYear(ctx context.Context, year int) ([]models.AcademicPeriod, error)
	Find(ctx context.Context, year, period int) (*models.AcademicPeriod, error)
}

// PeriodResolver maps calendar dates to (academic year, period) pairs.
type PeriodResolver struct {
	periods academicPeriodReader
	logger  *zap.Logger
}

// NewPeriodResolver constructs a resolver backed by the school calendar.
func NewPeriodResolver(periods academicPeriodReader, logger *zap.Logger) *PeriodResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PeriodResolver{periods: periods, logger: logger}
}

// Resolve returns the period whose bounds contain day. Without a matching record the year
// is split into quarters; calendar read errors degrade the same way.
func (r *PeriodResolver) Resolve(ctx context.Context, day time.Time) models.PeriodRef {
	day = models.DateOnly(day)
	periods, err := r.periods.ListByYear(ctx, day.Year())
	if err != nil {
		r.logger.Warn("academic calendar unavailable, using quarter fallback", zap.Time("day", day), zap.Error(err))
		return quarterOf(day)
	}
	for _, p := range periods {
		if p.Contains(day) {
			return models.PeriodRef{AcademicYear: day.Year(), PeriodNumber: p.PeriodNumber}
		}
	}
	return quarterOf(day)
}

// Bounds returns the start and end of a period, from its record when configured or the
// quarter fallback otherwise. Open-ended records are completed from the fallback.
func (r *PeriodResolver) Bounds(ctx context.Context, year, period int) (time.Time, time.Time) {
	start, end := quarterBounds(year, period)
	record, err := r.periods.Find(ctx, year, period)
	if err != nil {
		r.logger.Warn("academic period unavailable, using quarter bounds", zap.Int("year", year), zap.Int("period", period), zap.Error(err))
		return start, end
	}
	if record == nil {
		return start, end
	}
	if record.StartDate != nil {
		start = models.DateOnly(*record.StartDate)
	}
	if record.EndDate != nil {
		end = models.DateOnly(*record.EndDate)
	}
	return start, end
}

func quarterOf(day time.Time) models.PeriodRef {
	return models.PeriodRef{AcademicYear: day.Year(), PeriodNumber: (int(day.Month())-1)/3 + 1}
}

func quarterBounds(year, period int) (time.Time, time.Time) {
	if period < 1 {
		period = 1
	}
	if period > 4 {
		period = 4
	}
	start := time.Date(year, time.Month((period-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 3, -1)
	return start, end
}
