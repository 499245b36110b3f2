package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Jayphen/prisync/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  `Manage prisync configuration files.`,
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Long:  `Display the current configuration values from all sources.`,
		RunE:  runConfigShow,
	}
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create example configuration file",
		Long: `Create an example configuration file at ~/.config/prisync/config.yaml.

The generated file contains all available options with their default values.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing config file")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file paths",
		Long:  `Display the paths where configuration files are searched.`,
		RunE:  runConfigPath,
	}
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Println("Current configuration:")
	fmt.Println()
	fmt.Println("  GitHub:")
	fmt.Printf("    token:           %s\n", maskSecret(cfg.GitHub.Token))
	fmt.Printf("    api_url:         %s\n", cfg.GitHub.APIURL)
	fmt.Printf("    repos:           %s\n", valueOrDefault(strings.Join(cfg.GitHub.Repos, ", "), "(not set)"))
	fmt.Printf("    page_size:       %d\n", cfg.GitHub.PageSize)
	fmt.Printf("    timeline_window: %d\n", cfg.GitHub.TimelineWindow)
	fmt.Println()
	fmt.Println("  Notion:")
	fmt.Printf("    token:             %s\n", maskSecret(cfg.Notion.Token))
	fmt.Printf("    api_url:           %s\n", cfg.Notion.APIURL)
	fmt.Printf("    database_id:       %s\n", valueOrDefault(cfg.Notion.DatabaseID, "(not set)"))
	fmt.Printf("    title_property:    %s\n", cfg.Notion.TitleProperty)
	fmt.Printf("    priority_property: %s\n", cfg.Notion.PriorityProperty)
	fmt.Printf("    url_property:      %s\n", cfg.Notion.URLProperty)
	fmt.Println()
	fmt.Println("  Priorities:")
	for _, e := range cfg.Priorities {
		fmt.Printf("    %-10s -> %s\n", e.Value, e.Label)
	}
	fmt.Println()
	fmt.Printf("  tie_policy: %s\n", cfg.TiePolicy)
	fmt.Printf("  schedule:   %s\n", cfg.Schedule)
	fmt.Println()
	fmt.Println("  Store:")
	fmt.Printf("    backend:     %s\n", cfg.Store.Backend)
	switch cfg.Store.Backend {
	case config.BackendSQLite:
		fmt.Printf("    sqlite_path: %s\n", cfg.Store.SQLitePath)
	default:
		fmt.Printf("    redis_url:   %s\n", cfg.Store.RedisURL)
		fmt.Printf("    key_prefix:  %s\n", cfg.Store.KeyPrefix)
	}
	fmt.Println()
	fmt.Println("  Chat:")
	fmt.Printf("    webhook_url: %s\n", maskSecret(cfg.Chat.WebhookURL))
	fmt.Printf("    username:    %s\n", cfg.Chat.Username)
	fmt.Println()
	fmt.Println("  Logging:")
	fmt.Printf("    level: %s\n", cfg.Logging.Level)
	fmt.Printf("    file:  %s\n", valueOrDefault(cfg.Logging.File, "(not set)"))
	fmt.Printf("    json:  %t\n", cfg.Logging.JSON)

	if err := cfg.Validate(); err != nil {
		fmt.Println()
		fmt.Printf("Configuration is incomplete: %v\n", err)
	}

	return nil
}

func runConfigInit(force bool) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	path := filepath.Join(homeDir, ".config", "prisync", "config.yaml")
	if configPath != "" {
		path = configPath
	}

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	if err := config.WriteExample(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("Created config file at: %s\n", path)
	fmt.Println()
	fmt.Println("Edit this file to set your tokens, repositories and database.")
	fmt.Println("Run 'prisync config show' to see current values.")

	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	fmt.Println("Configuration file search paths (in priority order):")
	fmt.Println()

	paths := config.ConfigPaths()
	for i, p := range paths {
		exists := "not found"
		if _, err := os.Stat(p); err == nil {
			exists = "found"
		}
		fmt.Printf("  %d. %s (%s)\n", i+1, p, exists)
	}

	fmt.Println()
	fmt.Println("Environment variables can override file settings.")
	fmt.Println("Supported env vars:")
	fmt.Println("  PRISYNC_GITHUB_TOKEN (or GITHUB_TOKEN)")
	fmt.Println("  PRISYNC_GITHUB_API_URL")
	fmt.Println("  PRISYNC_REPOS (comma-separated owner/repo)")
	fmt.Println("  PRISYNC_TIMELINE_WINDOW")
	fmt.Println("  PRISYNC_NOTION_TOKEN (or NOTION_TOKEN)")
	fmt.Println("  PRISYNC_NOTION_API_URL")
	fmt.Println("  PRISYNC_NOTION_DATABASE_ID")
	fmt.Println("  PRISYNC_TIE_POLICY")
	fmt.Println("  PRISYNC_SCHEDULE")
	fmt.Println("  PRISYNC_CHAT_WEBHOOK_URL")
	fmt.Println("  PRISYNC_STORE_BACKEND")
	fmt.Println("  PRISYNC_REDIS_URL (or REDIS_URL)")
	fmt.Println("  PRISYNC_SQLITE_PATH")
	fmt.Println("  PRISYNC_LOG_LEVEL")
	fmt.Println("  PRISYNC_LOG_FILE")
	fmt.Println("  PRISYNC_LOG_JSON")

	return nil
}

func valueOrDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}

func maskSecret(val string) string {
	if val == "" {
		return "(not set)"
	}
	if len(val) <= 8 {
		return "***"
	}
	return val[:4] + "..." + val[len(val)-4:]
}
