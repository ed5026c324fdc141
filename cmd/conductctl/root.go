package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-conduct-api/internal/bootstrap"
	"github.com/noah-isme/sma-conduct-api/pkg/config"
	"github.com/noah-isme/sma-conduct-api/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:   "conductctl",
	Short: "Operate the disciplinary scoring engine",
	Long: `conductctl runs the conduct batch jobs and projections against the configured
database. It reads the same environment (.env, DB_*, REDIS_*, CONDUCT_*) as the API.

Batch commands are idempotent and safe to rerun from cron:

  conductctl apply-no-loss-daily --from 2025-05-01 --to 2025-05-31
  conductctl apply-period-bonus 2025 1
  conductctl rollover 2025
  conductctl project stu-1 --as-of 2025-04-15
  conductctl schedule`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newDailyCmd(), newPeriodBonusCmd(), newRolloverCmd(), newProjectCmd(), newScheduleCmd())
}

// withContainer loads configuration, wires the engine and runs fn until it returns or the
// process receives SIGINT/SIGTERM.
func withContainer(fn func(ctx context.Context, c *bootstrap.Container) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := bootstrap.New(cfg, logr)
	if err != nil {
		return err
	}
	defer container.Close()

	if err := fn(ctx, container); err != nil {
		logr.Error("command failed", zap.Error(err))
		return err
	}
	return nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
