// Package main is the entry point for the prisync CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Jayphen/prisync/internal/config"
	"github.com/Jayphen/prisync/internal/logging"
)

// Version is set at build time.
var Version = "dev"

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "prisync",
		Short: "Sync priorities between Notion tasks and GitHub issues",
		Long: `Prisync keeps a Notion task database's priority property and the
priority labels of the linked GitHub issues and pull requests in agreement.

Each run scans the configured repositories, reads the tasks edited since the
last run, and copies whichever side was edited most recently to the other.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			initLogging()
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: search ~/.config/prisync and ~/.prisync.yaml)")

	rootCmd.AddCommand(
		newRunCmd(),
		newScheduleCmd(),
		newStatusCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig returns the configuration from --config or the search paths.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.Get()
}

// initLogging initializes the logger from config.
func initLogging() {
	cfg, err := loadConfig()
	if err != nil {
		// If config fails, use defaults (console output)
		_ = logging.Init(nil)
		return
	}

	lc := logging.LoggingConfig{
		Level:      cfg.Logging.Level,
		FilePath:   cfg.Logging.File,
		JSON:       cfg.Logging.JSON,
		Console:    cfg.Logging.Console,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
	}

	if err := logging.InitFromLogConfig(lc); err != nil {
		// Fall back to defaults on error
		_ = logging.Init(nil)
	}
}
