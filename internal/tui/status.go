package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/dustin/go-humanize"

	"github.com/Jayphen/prisync/internal/types"
)

// Checkpoint sources, the first segment of a checkpoint key.
const (
	SourceRepoScan = "repo-scan"
	SourceTaskFeed = "task-feed"
)

// CheckpointRow is one checkpoint split into its key parts.
type CheckpointRow struct {
	Source     string           `json:"source"`
	Name       string           `json:"name"`            // owner/repo or database id
	State      string           `json:"state,omitempty"` // open or closed for repository walks
	Checkpoint types.Checkpoint `json:"checkpoint"`
}

// Walking reports whether a repository walk stopped between pages.
func (r CheckpointRow) Walking() bool {
	return r.Source == SourceRepoScan && r.Checkpoint.Cursor != ""
}

// ParseCheckpointKey splits "repo-scan:{repo}:{state}" and
// "task-feed:{database}" keys. Unknown keys keep their full text as Name.
func ParseCheckpointKey(key string) (source, name, state string) {
	source, rest, ok := strings.Cut(key, ":")
	if !ok {
		return "", key, ""
	}
	switch source {
	case SourceRepoScan:
		if i := strings.LastIndex(rest, ":"); i >= 0 {
			return source, rest[:i], rest[i+1:]
		}
		return source, rest, ""
	case SourceTaskFeed:
		return source, rest, ""
	default:
		return "", key, ""
	}
}

// CheckpointRows converts stored checkpoints into rows ordered by source,
// then name, then state.
func CheckpointRows(cps map[string]types.Checkpoint) []CheckpointRow {
	rows := make([]CheckpointRow, 0, len(cps))
	for key, cp := range cps {
		source, name, state := ParseCheckpointKey(key)
		rows = append(rows, CheckpointRow{Source: source, Name: name, State: state, Checkpoint: cp})
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.State < b.State
	})
	return rows
}

// StatusOptions tune RenderStatus.
type StatusOptions struct {
	Now time.Time
	// StaleAfter marks checkpoints not written for this long; zero disables it.
	StaleAfter time.Duration
	// Width truncates rows to the terminal width; zero disables it.
	Width int
}

// RenderStatus renders the checkpoint table.
func RenderStatus(rows []CheckpointRow, opts StatusOptions) string {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("prisync checkpoints"))
	b.WriteString("\n\n")

	if len(rows) == 0 {
		b.WriteString(DimStyle.Render("No checkpoints yet. Run 'prisync run' first."))
		b.WriteString("\n")
		return b.String()
	}

	header := fmt.Sprintf("%-10s %-32s %-7s %-22s %-14s %s", "SOURCE", "NAME", "STATE", "WATERMARK", "UPDATED", "STATUS")
	writeLine(&b, HeaderStyle.Render(header), opts.Width)
	writeLine(&b, strings.Repeat("-", 96), opts.Width)

	for _, r := range rows {
		source := r.Source
		if source == "" {
			source = "?"
		}
		name := ansi.Truncate(r.Name, 32, "…")
		state := r.State
		if state == "" {
			state = "-"
		}
		watermark := r.Checkpoint.Watermark
		if watermark == "" {
			watermark = "-"
		}
		updated := "never"
		if !r.Checkpoint.UpdatedAt.IsZero() {
			updated = humanize.RelTime(r.Checkpoint.UpdatedAt, opts.Now, "ago", "from now")
		}

		line := fmt.Sprintf("%s %-32s %-7s %-22s %-14s %s",
			GetSourceStyle(r.Source).Render(fmt.Sprintf("%-10s", source)),
			name, state, watermark, updated, renderWalkStatus(r, opts))
		writeLine(&b, line, opts.Width)
	}
	return b.String()
}

func renderWalkStatus(r CheckpointRow, opts StatusOptions) string {
	cp := r.Checkpoint
	switch {
	case cp.UpdatedAt.IsZero():
		return StatusNever.Render(IndicatorNever + " never")
	case opts.StaleAfter > 0 && opts.Now.Sub(cp.UpdatedAt) > opts.StaleAfter:
		return StatusStale.Render(IndicatorStale + " stale")
	case r.Walking():
		return StatusWalking.Render(IndicatorWalking + " resuming")
	default:
		return StatusIdle.Render(IndicatorIdle + " idle")
	}
}

func writeLine(b *strings.Builder, line string, width int) {
	if width > 0 && lipgloss.Width(line) > width {
		line = ansi.Truncate(line, width, "…")
	}
	b.WriteString(line)
	b.WriteString("\n")
}
