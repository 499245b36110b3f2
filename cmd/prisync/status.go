package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Jayphen/prisync/internal/config"
	"github.com/Jayphen/prisync/internal/store"
	"github.com/Jayphen/prisync/internal/tui"
)

var (
	statusJSON  bool
	statusWidth int
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show sync checkpoints",
		Long: `Show the stored checkpoint of every repository walk and task feed:
the watermark, when it was last written, and whether a walk was interrupted
and will resume on the next run.`,
		RunE: runStatus,
	}

	cmd.Flags().BoolVar(&statusJSON, "json", false, "Output in JSON format")
	cmd.Flags().IntVar(&statusWidth, "width", 0, "Truncate lines to this width (0 disables)")

	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	st, err := store.Open(cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cps, err := st.Checkpoints(ctx)
	if err != nil {
		return fmt.Errorf("failed to read checkpoints: %w", err)
	}
	rows := tui.CheckpointRows(cps)

	if statusJSON {
		data, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Print(tui.RenderStatus(rows, tui.StatusOptions{
		Now:        time.Now(),
		StaleAfter: staleAfter(cfg.Schedule),
		Width:      statusWidth,
	}))
	return nil
}

// staleAfter is three schedule intervals, or zero when the schedule is invalid.
func staleAfter(expr string) time.Duration {
	sched, err := config.ParseSchedule(expr)
	if err != nil {
		return 0
	}
	first := sched.Next(time.Now())
	return 3 * sched.Next(first).Sub(first)
}
