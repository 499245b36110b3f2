// Package config handles loading and managing configuration for prisync.
// It supports loading from YAML files, environment variables, and hardcoded defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	cron "github.com/netresearch/go-cron"
	"gopkg.in/yaml.v3"

	"github.com/Jayphen/prisync/internal/priority"
)

// ErrInvalidConfig is returned by Validate when a required setting is missing
// or malformed.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all configuration settings for prisync.
type Config struct {
	GitHub GitHubConfig `yaml:"github"`
	Notion NotionConfig `yaml:"notion"`

	// Priorities maps Notion select values to GitHub labels, in declaration
	// order. The order breaks ties when an issue carries several labels.
	Priorities []priority.Entry `yaml:"priorities"`

	// TiePolicy decides equal edit times: none, notion or github
	TiePolicy string `yaml:"tie_policy"`

	// Schedule is the cron expression used by `prisync schedule`
	Schedule string `yaml:"schedule"`

	Store   StoreConfig   `yaml:"store"`
	Chat    ChatConfig    `yaml:"chat"`
	Logging LoggingConfig `yaml:"logging"`
}

// GitHubConfig holds GitHub API settings.
type GitHubConfig struct {
	Token  string `yaml:"token"`
	APIURL string `yaml:"api_url"`

	// Repos lists the repositories to scan, as owner/name
	Repos []string `yaml:"repos"`

	// PageSize is the number of issues requested per search page
	PageSize int `yaml:"page_size"`

	// TimelineWindow is the number of label events cached per issue
	TimelineWindow int `yaml:"timeline_window"`
}

// NotionConfig holds Notion API settings.
type NotionConfig struct {
	Token      string `yaml:"token"`
	APIURL     string `yaml:"api_url"`
	DatabaseID string `yaml:"database_id"`

	TitleProperty    string `yaml:"title_property"`
	PriorityProperty string `yaml:"priority_property"`
	URLProperty      string `yaml:"url_property"`

	// PriorityType is "select" or "status"; empty means detect from reads
	PriorityType string `yaml:"priority_type"`

	PageSize int `yaml:"page_size"`
}

// Store backends.
const (
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// StoreConfig selects and configures the checkpoint store.
type StoreConfig struct {
	// Backend is redis (default) or sqlite
	Backend    string `yaml:"backend"`
	RedisURL   string `yaml:"redis_url"`
	KeyPrefix  string `yaml:"key_prefix"`
	SQLitePath string `yaml:"sqlite_path"`
}

// ChatConfig configures change notifications.
type ChatConfig struct {
	// WebhookURL is a Slack-compatible incoming webhook; empty disables notifications
	WebhookURL string `yaml:"webhook_url"`
	Username   string `yaml:"username"`
}

// LoggingConfig mirrors logging.LoggingConfig with YAML tags.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	JSON       bool   `yaml:"json"`
	Console    bool   `yaml:"console"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Default configuration values
const (
	DefaultGitHubAPIURL     = "https://api.github.com"
	DefaultGitHubPageSize   = 50
	DefaultTimelineWindow   = 100
	DefaultNotionAPIURL     = "https://api.notion.com"
	DefaultNotionPageSize   = 50
	DefaultTitleProperty    = "Name"
	DefaultPriorityProperty = "Priority"
	DefaultURLProperty      = "GitHub"
	DefaultTiePolicy        = "none"
	DefaultSchedule         = "*/15 * * * *"
	DefaultRedisURL         = "redis://localhost:6379"
	DefaultKeyPrefix        = "prisync:"
	DefaultSQLitePath       = "~/.local/share/prisync/state.db"
	DefaultChatUsername     = "prisync"
	DefaultLogLevel         = "info"
)

var (
	globalConfig *Config
	configOnce   sync.Once
	configErr    error
)

// Get returns the global configuration, loading it if necessary.
// This function is safe for concurrent use.
func Get() (*Config, error) {
	configOnce.Do(func() {
		globalConfig, configErr = Load()
	})
	return globalConfig, configErr
}

// Reload forces a reload of the configuration.
func Reload() (*Config, error) {
	configOnce = sync.Once{}
	return Get()
}

// Default returns a configuration populated with defaults only.
func Default() *Config {
	return &Config{
		GitHub: GitHubConfig{
			APIURL:         DefaultGitHubAPIURL,
			PageSize:       DefaultGitHubPageSize,
			TimelineWindow: DefaultTimelineWindow,
		},
		Notion: NotionConfig{
			APIURL:           DefaultNotionAPIURL,
			TitleProperty:    DefaultTitleProperty,
			PriorityProperty: DefaultPriorityProperty,
			URLProperty:      DefaultURLProperty,
			PageSize:         DefaultNotionPageSize,
		},
		TiePolicy: DefaultTiePolicy,
		Schedule:  DefaultSchedule,
		Store: StoreConfig{
			Backend:    BackendRedis,
			RedisURL:   DefaultRedisURL,
			KeyPrefix:  DefaultKeyPrefix,
			SQLitePath: DefaultSQLitePath,
		},
		Chat: ChatConfig{
			Username: DefaultChatUsername,
		},
		Logging: LoggingConfig{
			Level: DefaultLogLevel,
		},
	}
}

// Load reads configuration from files and environment variables.
// Priority (highest to lowest):
// 1. Environment variables
// 2. ~/.config/prisync/config.yaml (or config.yml)
// 3. ~/.prisync.yaml
// 4. Hardcoded defaults
func Load() (*Config, error) {
	cfg := Default()

	// Lowest priority file first; later files override earlier ones.
	paths := ConfigPaths()
	for i := len(paths) - 1; i >= 0; i-- {
		if err := cfg.mergeFile(paths[i]); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	return cfg, nil
}

// LoadFile reads configuration from an explicit path, then applies
// environment overrides. The file must exist.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.mergeFile(path); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func (c *Config) applyEnvOverrides() {
	// Tokens (support both the generic and PRISYNC_ names)
	if val := firstEnv("PRISYNC_GITHUB_TOKEN", "GITHUB_TOKEN"); val != "" {
		c.GitHub.Token = val
	}
	if val := firstEnv("PRISYNC_NOTION_TOKEN", "NOTION_TOKEN"); val != "" {
		c.Notion.Token = val
	}

	if val := os.Getenv("PRISYNC_GITHUB_API_URL"); val != "" {
		c.GitHub.APIURL = val
	}
	if val := os.Getenv("PRISYNC_REPOS"); val != "" {
		c.GitHub.Repos = splitList(val)
	}
	if val := os.Getenv("PRISYNC_TIMELINE_WINDOW"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.GitHub.TimelineWindow = n
		}
	}

	if val := os.Getenv("PRISYNC_NOTION_API_URL"); val != "" {
		c.Notion.APIURL = val
	}
	if val := os.Getenv("PRISYNC_NOTION_DATABASE_ID"); val != "" {
		c.Notion.DatabaseID = val
	}

	if val := os.Getenv("PRISYNC_TIE_POLICY"); val != "" {
		c.TiePolicy = val
	}
	if val := os.Getenv("PRISYNC_SCHEDULE"); val != "" {
		c.Schedule = val
	}

	// Store
	if val := os.Getenv("PRISYNC_STORE_BACKEND"); val != "" {
		c.Store.Backend = val
	}
	if val := firstEnv("PRISYNC_REDIS_URL", "REDIS_URL"); val != "" {
		c.Store.RedisURL = val
	}
	if val := os.Getenv("PRISYNC_SQLITE_PATH"); val != "" {
		c.Store.SQLitePath = val
	}

	if val := os.Getenv("PRISYNC_CHAT_WEBHOOK_URL"); val != "" {
		c.Chat.WebhookURL = val
	}

	// Logging
	if val := os.Getenv("PRISYNC_LOG_LEVEL"); val != "" {
		c.Logging.Level = val
	}
	if val := os.Getenv("PRISYNC_LOG_FILE"); val != "" {
		c.Logging.File = val
	}
	if val := os.Getenv("PRISYNC_LOG_JSON"); val != "" {
		c.Logging.JSON = val == "true" || val == "1" || val == "yes"
	}
}

// applyDefaults fills settings a config file may have blanked out.
func (c *Config) applyDefaults() {
	if len(c.Priorities) == 0 {
		c.Priorities = priority.DefaultEntries()
	}
	if c.GitHub.PageSize <= 0 {
		c.GitHub.PageSize = DefaultGitHubPageSize
	}
	if c.GitHub.TimelineWindow <= 0 {
		c.GitHub.TimelineWindow = DefaultTimelineWindow
	}
	if c.Notion.PageSize <= 0 {
		c.Notion.PageSize = DefaultNotionPageSize
	}
	if c.Store.Backend == "" {
		c.Store.Backend = BackendRedis
	}
	if c.TiePolicy == "" {
		c.TiePolicy = DefaultTiePolicy
	}
}

// Validate checks that the configuration is complete enough to run a sync.
func (c *Config) Validate() error {
	var problems []string

	if c.GitHub.Token == "" {
		problems = append(problems, "github.token is required (or set GITHUB_TOKEN)")
	}
	if len(c.GitHub.Repos) == 0 {
		problems = append(problems, "github.repos must list at least one owner/repo")
	}
	for _, repo := range c.GitHub.Repos {
		owner, name, ok := strings.Cut(repo, "/")
		if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
			problems = append(problems, fmt.Sprintf("github.repos: %q is not owner/repo", repo))
		}
	}
	if c.GitHub.PageSize > 100 {
		problems = append(problems, "github.page_size must be at most 100")
	}
	if c.GitHub.TimelineWindow > 100 {
		problems = append(problems, "github.timeline_window must be at most 100")
	}

	if c.Notion.Token == "" {
		problems = append(problems, "notion.token is required (or set NOTION_TOKEN)")
	}
	if c.Notion.DatabaseID == "" {
		problems = append(problems, "notion.database_id is required")
	}
	if c.Notion.PageSize > 100 {
		problems = append(problems, "notion.page_size must be at most 100")
	}
	switch c.Notion.PriorityType {
	case "", "select", "status":
	default:
		problems = append(problems, fmt.Sprintf("notion.priority_type: %q is not select or status", c.Notion.PriorityType))
	}

	if _, err := c.Mapping(); err != nil {
		problems = append(problems, err.Error())
	}
	if _, err := priority.ParseTiePolicy(c.TiePolicy); err != nil {
		problems = append(problems, err.Error())
	}
	if _, err := ParseSchedule(c.Schedule); err != nil {
		problems = append(problems, err.Error())
	}

	switch c.Store.Backend {
	case BackendRedis, BackendSQLite:
	default:
		problems = append(problems, fmt.Sprintf("store.backend: unsupported backend %q", c.Store.Backend))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Mapping builds the priority mapping from the configured entries.
func (c *Config) Mapping() (*priority.Mapping, error) {
	return priority.NewMapping(c.Priorities)
}

// ParseSchedule parses a standard 5-field cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("schedule: parse cron %q: %w", expr, err)
	}
	return schedule, nil
}

// ConfigPaths returns the paths where config files are searched, highest
// priority first.
func ConfigPaths() []string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(homeDir, ".config", "prisync", "config.yaml"),
		filepath.Join(homeDir, ".config", "prisync", "config.yml"),
		filepath.Join(homeDir, ".prisync.yaml"),
	}
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(homeDir, strings.TrimPrefix(path, "~")), nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if val := os.Getenv(k); val != "" {
			return val
		}
	}
	return ""
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// WriteExample writes an example configuration file to the specified path.
func WriteExample(path string) error {
	example := `# prisync configuration file
# Place this file at ~/.config/prisync/config.yaml or ~/.prisync.yaml

github:
  # Personal access token with repo scope (or set GITHUB_TOKEN)
  token: ""
  api_url: https://api.github.com
  # Repositories to scan
  repos:
    - owner/repo
  # Issues per search page (max 100)
  page_size: 50
  # Label events cached per issue (max 100)
  timeline_window: 100

notion:
  # Integration token (or set NOTION_TOKEN)
  token: ""
  api_url: https://api.notion.com
  database_id: ""
  # Property names in the task database
  title_property: Name
  priority_property: Priority
  url_property: GitHub
  # select or status; detected from the database when empty
  priority_type: ""
  page_size: 50

# Notion select value -> GitHub label, in tie-break order
priorities:
  - value: High
    label: High-Priority
  - value: Medium
    label: Medium-Priority
  - value: Low
    label: Low-Priority

# Equal edit times: none (skip), notion, or github
tie_policy: none

# Cron expression for 'prisync schedule'
schedule: "*/15 * * * *"

store:
  # redis or sqlite
  backend: redis
  redis_url: redis://localhost:6379
  key_prefix: "prisync:"
  sqlite_path: ~/.local/share/prisync/state.db

chat:
  # Slack-compatible incoming webhook, empty to disable
  webhook_url: ""
  username: prisync

logging:
  level: info
  file: ""
  json: false
`
	// Ensure parent directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(example), 0644)
}
