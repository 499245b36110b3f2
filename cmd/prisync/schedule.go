package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Jayphen/prisync/internal/config"
	"github.com/Jayphen/prisync/internal/logging"
	"github.com/Jayphen/prisync/internal/syncer"
)

var (
	scheduleExpr   string
	scheduleNow    bool
	scheduleDryRun bool
)

func newScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run sync passes on a cron schedule",
		Long: `Run sync passes in the foreground on a cron schedule, for hosts without
an external scheduler. Runs never overlap; a pass that is still running when
the next one is due delays it.

The schedule is a standard 5-field cron expression (default from config,
"*/15 * * * *").`,
		RunE: runSchedule,
	}

	cmd.Flags().StringVar(&scheduleExpr, "cron", "", "Cron expression (overrides config)")
	cmd.Flags().BoolVar(&scheduleNow, "now", false, "Run once immediately before waiting for the schedule")
	cmd.Flags().BoolVar(&scheduleDryRun, "dry-run", false, "Resolve and log decisions without mutating GitHub or Notion")

	return cmd
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if scheduleExpr != "" {
		cfg.Schedule = scheduleExpr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	sched, err := config.ParseSchedule(cfg.Schedule)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logging.WithCommand("schedule")
	log.WithField("cron", cfg.Schedule).Info("scheduler started")
	fmt.Printf("[Schedule] Running on %q\n", cfg.Schedule)

	if scheduleNow {
		if err := scheduledRun(ctx, cfg, log); err != nil {
			return err
		}
	}

	for {
		next := sched.Next(time.Now())
		fmt.Printf("[Schedule] Next run at %s\n", next.Format(time.RFC3339))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info("received shutdown signal")
			fmt.Println("\n[Schedule] Shutting down...")
			return nil
		case <-timer.C:
		}

		if err := scheduledRun(ctx, cfg, log); err != nil {
			return err
		}
	}
}

// scheduledRun runs one pass. Failed passes are logged and the loop keeps
// going; only cancellation stops it.
func scheduledRun(ctx context.Context, cfg *config.Config, log *logging.Logger) error {
	report, err := syncOnce(ctx, cfg, scheduleDryRun, log)
	switch {
	case err == nil:
		printReport(report)
		return nil
	case ctx.Err() != nil:
		return nil
	case errors.Is(err, syncer.ErrPersistence):
		log.WithError(err).Error("store unavailable, run aborted")
	default:
		log.WithError(err).Error("sync run failed")
	}
	fmt.Printf("[Schedule] Run failed: %v\n", err)
	return nil
}
