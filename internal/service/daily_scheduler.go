package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-conduct-api/internal/dto"
	"github.com/noah-isme/sma-conduct-api/internal/models"
	appErrors "github.com/noah-isme/sma-conduct-api/pkg/errors"
)

type periodYearLister interface {
	ListByYear(ctx context.Context, year int) ([]models.AcademicPeriod, error)
}

type conductJobEnqueuer interface {
	EnqueueDailyBonus(req dto.DailyBonusRequest) (*dto.JobAcceptedResponse, error)
	EnqueuePeriodBonus(req dto.PeriodBonusRequest) (*dto.JobAcceptedResponse, error)
	EnqueueRollover(req dto.RolloverRequest) (*dto.JobAcceptedResponse, error)
}

// DailyScheduler triggers the nightly routine: the no-loss bonus every day, the period bonus on
// a period's last day and the year rollover on December 31st.
type DailyScheduler struct {
	jobs     conductJobEnqueuer
	periods  periodYearLister
	schedule cron.Schedule
	location *time.Location
	logger   *zap.Logger
	now      func() time.Time
}

// NewDailyScheduler builds a scheduler firing at runAt ("HH:MM") in loc.
func NewDailyScheduler(jobs conductJobEnqueuer, periods periodYearLister, runAt string, loc *time.Location, logger *zap.Logger) (*DailyScheduler, error) {
	clock, err := time.Parse("15:04", runAt)
	if err != nil {
		return nil, fmt.Errorf("invalid daily run time %q: %w", runAt, err)
	}
	schedule, err := cron.ParseStandard(fmt.Sprintf("%d %d * * *", clock.Minute(), clock.Hour()))
	if err != nil {
		return nil, fmt.Errorf("build daily schedule: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DailyScheduler{
		jobs:     jobs,
		periods:  periods,
		schedule: schedule,
		location: loc,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// NextRun returns the first firing time strictly after now.
func (s *DailyScheduler) NextRun(now time.Time) time.Time {
	return s.schedule.Next(now.In(s.location))
}

// Run blocks, firing the routine every day until ctx is cancelled. A tick still running when
// the next one is due is skipped.
func (s *DailyScheduler) Run(ctx context.Context) error {
	runner := cron.New(
		cron.WithLocation(s.location),
		cron.WithLogger(cronLogger{s.logger.Sugar()}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.logger.Sugar()})),
	)
	runner.Schedule(s.schedule, cron.FuncJob(func() {
		if err := s.Tick(ctx, s.now()); err != nil {
			s.logger.Error("conduct routine failed", zap.Error(err))
		}
		s.logger.Info("next conduct routine scheduled", zap.Time("at", s.NextRun(s.now())))
	}))
	runner.Start()
	s.logger.Info("next conduct routine scheduled", zap.Time("at", s.NextRun(s.now())))

	<-ctx.Done()
	<-runner.Stop().Done()
	return nil
}

// Tick queues the routine for the school-local date of at.
func (s *DailyScheduler) Tick(ctx context.Context, at time.Time) error {
	local := at.In(s.location)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	dayText := day.Format(dto.DateLayout)

	var errs []error
	if _, err := s.jobs.EnqueueDailyBonus(dto.DailyBonusRequest{From: dayText, To: dayText}); err != nil {
		errs = append(errs, s.tolerateDuplicate("daily bonus", err))
	}

	closing := s.closingPeriods(ctx, day)
	for _, period := range closing {
		req := dto.PeriodBonusRequest{Year: period.AcademicYear, Period: period.PeriodNumber}
		if _, err := s.jobs.EnqueuePeriodBonus(req); err != nil {
			errs = append(errs, s.tolerateDuplicate("period bonus", err))
		}
	}

	if day.Month() == time.December && day.Day() == 31 {
		if _, err := s.jobs.EnqueueRollover(dto.RolloverRequest{Year: day.Year()}); err != nil {
			errs = append(errs, s.tolerateDuplicate("rollover", err))
		}
	}

	s.logger.Info("conduct routine queued", zap.String("day", dayText), zap.Int("closing_periods", len(closing)))
	return errors.Join(errs...)
}

// closingPeriods lists the periods ending on day, resolved the same way the projector resolves
// them: a year without calendar records runs on quarters and open-ended records end with
// their quarter.
func (s *DailyScheduler) closingPeriods(ctx context.Context, day time.Time) []models.AcademicPeriod {
	records, err := s.periods.ListByYear(ctx, day.Year())
	if err != nil {
		s.logger.Warn("academic calendar unavailable, using quarter fallback", zap.Time("day", day), zap.Error(err))
		records = nil
	}
	var closing []models.AcademicPeriod
	for _, period := range effectivePeriods(records, day.Year(), day.Year()) {
		if models.DateOnly(*period.EndDate).Equal(day) {
			closing = append(closing, period)
		}
	}
	return closing
}

func (s *DailyScheduler) tolerateDuplicate(what string, err error) error {
	if errors.Is(err, appErrors.ErrConflict) {
		s.logger.Info("conduct job already queued", zap.String("job", what))
		return nil
	}
	return fmt.Errorf("queue %s: %w", what, err)
}

// cronLogger routes cron's internal logging through zap.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
