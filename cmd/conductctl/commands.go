package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/sma-conduct-api/internal/bootstrap"
	"github.com/noah-isme/sma-conduct-api/internal/dto"
	"github.com/noah-isme/sma-conduct-api/internal/service"
)

func newDailyCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "apply-no-loss-daily",
		Short: "Award the no-loss daily bonus for a date range",
		Long: `Award +0.2 for every day in [from, to] to each enrolled student with no loss in the
previous 60 days. Days already awarded are skipped. --to defaults to --from and --from
defaults to today in CONDUCT_TIMEZONE.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withContainer(func(ctx context.Context, c *bootstrap.Container) error {
				start, end, err := dailyRange(c.Conduct.Today(), from, to)
				if err != nil {
					return err
				}
				summary, err := c.Runner.ApplyNoLossDaily(ctx, start, end)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), summary)
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "First day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "Last day (YYYY-MM-DD)")
	return cmd
}

func dailyRange(today time.Time, from, to string) (time.Time, time.Time, error) {
	start := today
	if from != "" {
		parsed, err := time.Parse(dto.DateLayout, from)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("--from: %w", err)
		}
		start = parsed
	}
	end := start
	if to != "" {
		parsed, err := time.Parse(dto.DateLayout, to)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("--to: %w", err)
		}
		end = parsed
	}
	return start, end, nil
}

func newPeriodBonusCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "apply-period-bonus YEAR PERIOD",
		Short: "Award the period-average bonus",
		Long: `Award +0.5, dated at the period end, to every student enrolled by then whose period
average reached 8.0. Students already holding the bonus are skipped unless --force.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("YEAR: %w", err)
			}
			period, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("PERIOD: %w", err)
			}
			return withContainer(func(ctx context.Context, c *bootstrap.Container) error {
				summary, err := c.Runner.ApplyPeriodBonus(ctx, year, period, force)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), summary)
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Award even when the bonus already exists")
	return cmd
}

func newRolloverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rollover YEAR",
		Short: "Carry each student's closing score into YEAR+1",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("YEAR: %w", err)
			}
			return withContainer(func(ctx context.Context, c *bootstrap.Container) error {
				summary, err := c.Rollover.Rollover(ctx, year)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), summary)
			})
		},
	}
}

func newProjectCmd() *cobra.Command {
	var (
		asOf   string
		freeze bool
	)
	cmd := &cobra.Command{
		Use:   "project STUDENT_ID",
		Short: "Print a student's projected score and its breakdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(func(ctx context.Context, c *bootstrap.Container) error {
				day := c.Conduct.Today()
				if asOf != "" {
					parsed, err := time.Parse(dto.DateLayout, asOf)
					if err != nil {
						return fmt.Errorf("--as-of: %w", err)
					}
					day = parsed
				}
				state, cached, err := c.Conduct.ProjectAt(ctx, args[0], day, freeze)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), service.ToStateResponse(state, cached))
			})
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "Projection date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&freeze, "freeze", false, "Write the projection into the period snapshot")
	return cmd
}

func newScheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the nightly scheduler in the foreground",
		Long: `Queue the no-loss bonus every day at CONDUCT_DAILY_RUN_AT, the period bonus when a
period ends and the rollover on December 31st. Stops on SIGINT/SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return withContainer(func(ctx context.Context, c *bootstrap.Container) error {
				scheduler, err := c.Scheduler()
				if err != nil {
					return err
				}
				c.Queue.Start(ctx)
				return scheduler.Run(ctx)
			})
		},
	}
}
