package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-conduct-api/api/swagger"
	"github.com/noah-isme/sma-conduct-api/internal/bootstrap"
	"github.com/noah-isme/sma-conduct-api/internal/handler"
	"github.com/noah-isme/sma-conduct-api/internal/middleware"
	"github.com/noah-isme/sma-conduct-api/pkg/config"
	"github.com/noah-isme/sma-conduct-api/pkg/logger"
	reqidmiddleware "github.com/noah-isme/sma-conduct-api/pkg/middleware/requestid"
)

// @title SMA Conduct API
// @version 1.0.0
// @description Disciplinary scoring engine: point ledger, projections and scheduled bonuses.
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := bootstrap.New(cfg, logr)
	if err != nil {
		logr.Fatal("failed to wire conduct engine", zap.Error(err))
	}
	defer container.Close()

	container.Queue.Start(ctx)

	if cfg.Conduct.SchedulerEnabled {
		scheduler, err := container.Scheduler()
		if err != nil {
			logr.Fatal("invalid scheduler configuration", zap.Error(err))
		}
		go func() {
			if err := scheduler.Run(ctx); err != nil {
				logr.Error("scheduler stopped", zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newRouter(cfg, container),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	logr.Info("server stopped")
}

func newRouter(cfg *config.Config, c *bootstrap.Container) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(c.Logger))
	r.Use(middleware.WithResponseMeta())
	if cfg.Metrics.Enabled {
		r.Use(middleware.Metrics(c.Metrics))
	}

	checks := make(map[string]handler.ReadinessCheck)
	for name, check := range c.ReadinessChecks() {
		checks[name] = check
	}
	metricsHandler := handler.NewMetricsHandler(c.Metrics, checks)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	if cfg.Metrics.Enabled {
		r.GET("/metrics", metricsHandler.Prometheus)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	conduct := handler.NewConductHandler(c.Conduct)
	jobs := handler.NewConductJobHandler(c.Jobs)

	api := r.Group(cfg.APIPrefix)
	students := api.Group("/students/:id/conduct")
	students.GET("", conduct.State)
	students.GET("/events", conduct.Events)
	students.POST("/incidents", conduct.RegisterIncident)

	batch := api.Group("/conduct")
	batch.POST("/bonuses/daily", jobs.DailyBonus)
	batch.POST("/bonuses/period", jobs.PeriodBonus)
	batch.POST("/rollover", jobs.Rollover)

	return r
}
