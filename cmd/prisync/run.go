package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Jayphen/prisync/internal/config"
	"github.com/Jayphen/prisync/internal/logging"
	"github.com/Jayphen/prisync/internal/notify"
	"github.com/Jayphen/prisync/internal/priority"
	"github.com/Jayphen/prisync/internal/store"
	"github.com/Jayphen/prisync/internal/syncer"
	"github.com/Jayphen/prisync/internal/tasksource"
	"github.com/Jayphen/prisync/internal/tui"
)

var (
	runDryRun bool
	runJSON   bool
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one sync pass",
		Long: `Run one sync pass and exit.

Repositories are scanned first, then tasks edited since the last run are
resolved against their linked issues, then issues touched by the scan are
resolved against their cached task. Progress is checkpointed after every
item, so an interrupted run resumes where it stopped.

Intended to be invoked periodically by cron, systemd timers or CI.`,
		RunE: runRun,
	}

	cmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Resolve and log decisions without mutating GitHub or Notion")
	cmd.Flags().BoolVar(&runJSON, "json", false, "Print the run report as JSON")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logging.WithCommand("run")
	report, err := syncOnce(ctx, cfg, runDryRun, log)
	if report != nil {
		if runJSON {
			data, jerr := json.MarshalIndent(report, "", "  ")
			if jerr != nil {
				return fmt.Errorf("failed to marshal JSON: %w", jerr)
			}
			fmt.Println(string(data))
		} else {
			printReport(report)
		}
	}
	return err
}

// syncOnce opens the store and clients, runs one pass and closes the store.
func syncOnce(ctx context.Context, cfg *config.Config, dryRun bool, log *logging.Logger) (*syncer.Report, error) {
	mapping, err := cfg.Mapping()
	if err != nil {
		return nil, err
	}
	tie, err := priority.ParseTiePolicy(cfg.TiePolicy)
	if err != nil {
		return nil, err
	}

	clients, err := tasksource.NewClients(cfg)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
	}
	defer st.Close()

	engine := syncer.NewEngine(st, clients.GitHub, clients.Notion,
		notify.New(cfg.Chat.WebhookURL, cfg.Chat.Username), mapping, syncer.Options{
			Repos:          cfg.GitHub.Repos,
			DatabaseID:     cfg.Notion.DatabaseID,
			SearchPageSize: cfg.GitHub.PageSize,
			TaskPageSize:   cfg.Notion.PageSize,
			TimelineWindow: cfg.GitHub.TimelineWindow,
			TiePolicy:      tie,
			DryRun:         dryRun,
		}, log)

	return engine.Run(ctx)
}

func printReport(r *syncer.Report) {
	title := "Sync complete"
	if r.DryRun {
		title += " (dry run)"
	}
	fmt.Println(tui.TitleStyle.Render(title))
	fmt.Println(tui.DimStyle.Render(fmt.Sprintf("run %s, took %s", r.RunID, r.Duration().Round(time.Millisecond))))
	fmt.Println()
	fmt.Printf("  issues scanned:     %s\n", humanize.Comma(int64(r.IssuesScanned)))
	fmt.Printf("  tasks visited:      %s (%d skipped)\n", humanize.Comma(int64(r.TasksVisited)), r.TasksSkipped)
	fmt.Printf("  pairs resolved:     %s\n", humanize.Comma(int64(r.PairsResolved)))
	fmt.Printf("  labels added:       %d\n", r.LabelsAdded)
	fmt.Printf("  labels removed:     %d\n", r.LabelsRemoved)
	fmt.Printf("  priorities updated: %d\n", r.PrioritiesUpdated)

	if r.Ambiguous > 0 || r.Unmapped > 0 || r.Inconsistent > 0 {
		fmt.Println(tui.WarningStyle.Render(fmt.Sprintf("  %d ambiguous, %d unmapped, %d inconsistent",
			r.Ambiguous, r.Unmapped, r.Inconsistent)))
	}
	if r.Failures > 0 {
		fmt.Println(tui.ErrorStyle.Render(fmt.Sprintf("  %d failures, retried next run", r.Failures)))
	}
}
