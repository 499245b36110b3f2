package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Jayphen/prisync/internal/config"
)

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "(not set)"},
		{"short", "***"},
		{"ghp_1234567890abcd", "ghp_...abcd"},
	}
	for _, tt := range tests {
		if got := maskSecret(tt.in); got != tt.want {
			t.Errorf("maskSecret(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStaleAfter(t *testing.T) {
	if got := staleAfter("*/15 * * * *"); got != 45*time.Minute {
		t.Errorf("staleAfter = %v, want 45m", got)
	}
	if got := staleAfter("not cron"); got != 0 {
		t.Errorf("staleAfter(invalid) = %v, want 0", got)
	}
}

func TestLoadConfig_ExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prisync.yaml")
	if err := config.WriteExample(path); err != nil {
		t.Fatalf("WriteExample: %v", err)
	}

	old := configPath
	configPath = path
	t.Cleanup(func() { configPath = old })

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Schedule != config.DefaultSchedule {
		t.Errorf("Schedule = %q", cfg.Schedule)
	}

	configPath = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := loadConfig(); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file err = %v, want not exist", err)
	}
}

