package bootstrap

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-conduct-api/internal/repository"
	"github.com/noah-isme/sma-conduct-api/internal/service"
	"github.com/noah-isme/sma-conduct-api/pkg/cache"
	"github.com/noah-isme/sma-conduct-api/pkg/config"
	"github.com/noah-isme/sma-conduct-api/pkg/database"
	"github.com/noah-isme/sma-conduct-api/pkg/jobs"
)

// Container holds the wired scoring engine shared by the server and the CLI.
type Container struct {
	Config  *config.Config
	Logger  *zap.Logger
	DB      *sqlx.DB
	Redis   *redis.Client
	Metrics *service.MetricsService

	Periods   *repository.AcademicPeriodRepository
	CacheRepo *repository.CacheRepository

	Resolver  *service.PeriodResolver
	Projector *service.ScoreProjector
	Conduct   *service.ConductService
	Runner    *service.BonusRunner
	Rollover  *service.YearRollover
	Jobs      *service.ConductJobService
	Worker    *service.ConductWorker
	Queue     *jobs.Queue
}

// New opens the storage connections and wires every service. Redis is optional: when it
// cannot be reached the projection cache is disabled and the engine keeps working.
func New(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	var redisClient *redis.Client
	if cfg.Conduct.CacheEnabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logger.Warn("redis unavailable, conduct cache disabled", zap.Error(err))
			redisClient = nil
		}
	}

	overrides := map[string]float64(nil)
	if cfg.Conduct.MeasuresFile != "" {
		overrides, err = service.LoadMeasureFile(cfg.Conduct.MeasuresFile)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	c := &Container{Config: cfg, Logger: logger, DB: db, Redis: redisClient, Metrics: service.NewMetricsService()}

	events := repository.NewDisciplinaryEventRepository(db)
	snapshots := repository.NewPeriodSnapshotRepository(db)
	students := repository.NewStudentRepository(db)
	averages := repository.NewPeriodAverageRepository(db)
	c.Periods = repository.NewAcademicPeriodRepository(db)
	c.CacheRepo = repository.NewCacheRepository(redisClient, logger)

	validate := validator.New()
	conductCache := service.NewConductCache(c.CacheRepo, c.Metrics, cfg.Conduct.CacheTTL, logger, redisClient != nil)
	measures := service.NewMeasureConfigService(repository.NewMeasureConfigRepository(db), overrides, logger)

	c.Resolver = service.NewPeriodResolver(c.Periods, logger)
	c.Projector = service.NewScoreProjector(events, students, c.Periods, averages, snapshots, c.Resolver, c.Metrics, logger)
	c.Conduct = service.NewConductService(c.Projector, snapshots, events, students, c.Resolver, measures, conductCache, c.Metrics, validate, logger,
		service.ConductServiceConfig{StrictMeasures: cfg.Conduct.StrictMeasures, Location: cfg.Conduct.Location()})
	c.Runner = service.NewBonusRunner(students, events, snapshots, c.Resolver, averages, conductCache, c.Metrics, logger)
	c.Rollover = service.NewYearRollover(students, events, snapshots, c.Resolver, conductCache, c.Metrics, logger)
	c.Worker = service.NewConductWorker(c.Runner, c.Rollover, logger)

	// A single worker keeps batch runs serialised.
	c.Queue = jobs.NewQueue("conduct", c.Worker.Handle, jobs.QueueConfig{
		Workers:    1,
		MaxRetries: cfg.Conduct.QueueRetries,
		RetryDelay: cfg.Conduct.QueueRetryDelay,
		Logger:     logger,
	})
	c.Jobs = service.NewConductJobService(c.Queue, validate, logger)

	return c, nil
}

// Scheduler builds the nightly scheduler feeding the queue.
func (c *Container) Scheduler() (*service.DailyScheduler, error) {
	return service.NewDailyScheduler(c.Jobs, c.Periods, c.Config.Conduct.DailyRunAt, c.Config.Conduct.Location(), c.Logger)
}

// ReadinessChecks returns the probes used by /ready.
func (c *Container) ReadinessChecks() map[string]func(ctx context.Context) error {
	checks := map[string]func(ctx context.Context) error{
		"postgres": c.DB.PingContext,
	}
	if c.Redis != nil {
		checks["redis"] = c.CacheRepo.Ping
	}
	return checks
}

// Close stops the queue and releases connections.
func (c *Container) Close() {
	c.Queue.Stop()
	if err := c.CacheRepo.Close(); err != nil {
		c.Logger.Warn("failed to close redis", zap.Error(err))
	}
	if err := c.DB.Close(); err != nil {
		c.Logger.Warn("failed to close postgres", zap.Error(err))
	}
}
