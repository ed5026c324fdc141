package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-conduct-api/internal/dto"
	"github.com/noah-isme/sma-conduct-api/internal/models"
	appErrors "github.com/noah-isme/sma-conduct-api/pkg/errors"
	"github.com/noah-isme/sma-conduct-api/pkg/jobs"
)

// DailyBonusPayload is the queued form of a no-loss bonus run.
type DailyBonusPayload struct {
	From time.Time
	To   time.Time
}

// PeriodBonusPayload is the queued form of a period bonus run.
type PeriodBonusPayload struct {
	Year   int
	Period int
	Force  bool
}

// RolloverPayload is the queued form of a year rollover.
type RolloverPayload struct {
	ClosingYear int
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

// ConductJobService validates batch requests and hands them to the serialised queue.
type ConductJobService struct {
	queue     jobDispatcher
	validator *validator.Validate
	logger    *zap.Logger
}

// NewConductJobService constructs the dispatcher.
func NewConductJobService(queue jobDispatcher, validate *validator.Validate, logger *zap.Logger) *ConductJobService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConductJobService{queue: queue, validator: validate, logger: logger}
}

// EnqueueDailyBonus queues the no-loss bonus for a date range.
func (s *ConductJobService) EnqueueDailyBonus(req dto.DailyBonusRequest) (*dto.JobAcceptedResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid daily bonus request")
	}
	from, err := time.Parse(dto.DateLayout, req.From)
	if err != nil {
		return nil, appErrors.Invalid(err, "from must be YYYY-MM-DD")
	}
	to := from
	if req.To != "" {
		if to, err = time.Parse(dto.DateLayout, req.To); err != nil {
			return nil, appErrors.Invalid(err, "to must be YYYY-MM-DD")
		}
	}
	if to.Before(from) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "to precedes from")
	}
	key := fmt.Sprintf("%s:%s:%s", JobNoLossDaily, from.Format(dto.DateLayout), to.Format(dto.DateLayout))
	return s.enqueue(JobNoLossDaily, key, DailyBonusPayload{From: from, To: to})
}

// EnqueuePeriodBonus queues the period-average bonus.
func (s *ConductJobService) EnqueuePeriodBonus(req dto.PeriodBonusRequest) (*dto.JobAcceptedResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid period bonus request")
	}
	key := fmt.Sprintf("%s:%d:%d", JobPeriodBonus, req.Year, req.Period)
	return s.enqueue(JobPeriodBonus, key, PeriodBonusPayload{Year: req.Year, Period: req.Period, Force: req.Force})
}

// EnqueueRollover queues the carryover of a closing year.
func (s *ConductJobService) EnqueueRollover(req dto.RolloverRequest) (*dto.JobAcceptedResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid rollover request")
	}
	key := fmt.Sprintf("%s:%d", JobRollover, req.Year)
	return s.enqueue(JobRollover, key, RolloverPayload{ClosingYear: req.Year})
}

func (s *ConductJobService) enqueue(jobType, key string, payload interface{}) (*dto.JobAcceptedResponse, error) {
	job := jobs.Job{ID: uuid.NewString(), Type: jobType, Key: key, Payload: payload}
	if err := s.queue.Enqueue(job); err != nil {
		if errors.Is(err, jobs.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "an identical run is already queued")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to enqueue conduct job")
	}
	s.logger.Info("conduct job queued", zap.String("job_id", job.ID), zap.String("type", jobType), zap.String("key", key))
	return &dto.JobAcceptedResponse{JobID: job.ID, Type: jobType, Key: key}, nil
}

type bonusRunner interface {
	ApplyNoLossDaily(ctx context.Context, from, to time.Time) (models.BonusRunSummary, error)
	ApplyPeriodBonus(ctx context.Context, year, period int, force bool) (models.BonusRunSummary, error)
}

type yearRoller interface {
	Rollover(ctx context.Context, closingYear int) (models.BonusRunSummary, error)
}

// ConductWorker bridges queued jobs to the batch runners.
type ConductWorker struct {
	runner   bonusRunner
	rollover yearRoller
	logger   *zap.Logger
}

// NewConductWorker constructs a worker.
func NewConductWorker(runner bonusRunner, rollover yearRoller, logger *zap.Logger) *ConductWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConductWorker{runner: runner, rollover: rollover, logger: logger}
}

// Handle processes a queue job. Only whole-run failures are returned, so the queue retries a run
// that could not start; per-student failures are already logged by the runners.
func (w *ConductWorker) Handle(ctx context.Context, job jobs.Job) error {
	var (
		summary models.BonusRunSummary
		err     error
	)
	switch payload := job.Payload.(type) {
	case DailyBonusPayload:
		summary, err = w.runner.ApplyNoLossDaily(ctx, payload.From, payload.To)
	case PeriodBonusPayload:
		summary, err = w.runner.ApplyPeriodBonus(ctx, payload.Year, payload.Period, payload.Force)
	case RolloverPayload:
		summary, err = w.rollover.Rollover(ctx, payload.ClosingYear)
	default:
		w.logger.Error("dropping conduct job with unknown payload", zap.String("job_id", job.ID), zap.String("type", job.Type))
		return nil
	}
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) && appErr.Code == appErrors.ErrValidation.Code {
			w.logger.Error("dropping invalid conduct job", zap.String("job_id", job.ID), zap.Error(err))
			return nil
		}
		return err
	}
	w.logger.Info("conduct job finished",
		zap.String("job_id", job.ID),
		zap.String("type", job.Type),
		zap.Int("attempt", job.Attempt),
		zap.Int("applied", summary.Applied),
		zap.Int("failed", summary.Failed))
	return nil
}
