package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/Jayphen/prisync/internal/types"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestParseCheckpointKey(t *testing.T) {
	tests := []struct {
		key                 string
		source, name, state string
	}{
		{"repo-scan:acme/api:open", SourceRepoScan, "acme/api", "open"},
		{"repo-scan:acme/api:closed", SourceRepoScan, "acme/api", "closed"},
		{"repo-scan:acme/api", SourceRepoScan, "acme/api", ""},
		{"task-feed:1f2e3d", SourceTaskFeed, "1f2e3d", ""},
		{"something-else:x", "", "something-else:x", ""},
		{"plain", "", "plain", ""},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			source, name, state := ParseCheckpointKey(tt.key)
			if source != tt.source || name != tt.name || state != tt.state {
				t.Errorf("ParseCheckpointKey(%q) = (%q, %q, %q), want (%q, %q, %q)",
					tt.key, source, name, state, tt.source, tt.name, tt.state)
			}
		})
	}
}

func TestCheckpointRows_Order(t *testing.T) {
	rows := CheckpointRows(map[string]types.Checkpoint{
		"task-feed:db":              {},
		"repo-scan:acme/web:open":   {},
		"repo-scan:acme/api:open":   {},
		"repo-scan:acme/api:closed": {},
	})

	var got []string
	for _, r := range rows {
		got = append(got, r.Source+" "+r.Name+" "+r.State)
	}
	want := []string{
		"repo-scan acme/api closed",
		"repo-scan acme/api open",
		"repo-scan acme/web open",
		"task-feed db ",
	}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("rows = %q, want %q", got, want)
	}
}

func TestRenderStatus(t *testing.T) {
	rows := CheckpointRows(map[string]types.Checkpoint{
		"repo-scan:acme/api:open": {
			Watermark: "2026-03-01T11:00:00Z",
			UpdatedAt: now.Add(-5 * time.Minute),
		},
		"repo-scan:acme/api:closed": {
			Cursor:    "Y3Vyc29yOjQw",
			Pending:   "2026-03-01T10:00:00Z",
			UpdatedAt: now.Add(-time.Minute),
		},
		"task-feed:db": {
			Cursor:    "task-1",
			Watermark: "2026-02-01T00:00:00Z",
			UpdatedAt: now.Add(-72 * time.Hour),
		},
	})

	out := ansi.Strip(RenderStatus(rows, StatusOptions{Now: now, StaleAfter: time.Hour}))

	for _, want := range []string{
		"prisync checkpoints",
		"acme/api",
		"2026-03-01T11:00:00Z",
		"5 minutes ago",
		"◐ resuming",
		"● idle",
		"○ stale",
		"3 days ago",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderStatus_Empty(t *testing.T) {
	out := ansi.Strip(RenderStatus(nil, StatusOptions{Now: now}))
	if !strings.Contains(out, "No checkpoints yet") {
		t.Errorf("output = %q", out)
	}
}

func TestRenderStatus_Width(t *testing.T) {
	rows := CheckpointRows(map[string]types.Checkpoint{
		"repo-scan:a-very-long-organisation-name/with-a-long-repository:open": {UpdatedAt: now},
	})

	out := RenderStatus(rows, StatusOptions{Now: now, Width: 60})
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		if w := lipgloss.Width(line); w > 60 {
			t.Errorf("line width %d > 60: %q", w, ansi.Strip(line))
		}
	}
	if !strings.Contains(ansi.Strip(out), "…") {
		t.Error("expected truncated name")
	}
}
