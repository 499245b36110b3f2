// Package tasksource provides the remote clients prisync synchronizes
// between: GitHub issues and pull requests, and a Notion task database.
package tasksource

import (
	"time"

	"github.com/Jayphen/prisync/internal/types"
)

// Issue states as used in search qualifiers and snapshots.
const (
	StateOpen   = "open"
	StateClosed = "closed"
)

// SearchQuery selects one page of a repository issue walk.
type SearchQuery struct {
	Repo  string // owner/name
	State string // open or closed

	// UpdatedAfter is an RFC3339 watermark; issues updated at or after it
	// are returned. Empty means from the beginning.
	UpdatedAfter string

	// Cursor continues a previous page walk.
	Cursor string

	PageSize int
}

// SearchItem is one search hit with the cursor that resumes right after it.
type SearchItem struct {
	Cursor string
	Issue  Issue
}

// SearchPage is one page of search results, ordered by update time ascending.
type SearchPage struct {
	Items       []SearchItem
	EndCursor   string
	HasNextPage bool
}

// Issue is a GitHub issue or pull request with its recent label history.
type Issue struct {
	Ref       types.IssueRef
	URL       string
	State     string
	Labels    []string
	UpdatedAt time.Time

	// Timeline holds the most recent label events, most recent first.
	Timeline []types.LabelEvent
	// TimelineTotal is the total number of label events on the issue.
	TimelineTotal int
}

// Snapshot converts the issue into its cached form.
func (i Issue) Snapshot(scannedAt time.Time) types.IssueSnapshot {
	return types.IssueSnapshot{
		URL:       i.Ref.Key(),
		Repo:      i.Ref.FullName(),
		Number:    i.Ref.Number,
		Pull:      i.Ref.Pull,
		State:     i.State,
		Labels:    i.Labels,
		Timeline:  i.Timeline,
		UpdatedAt: i.UpdatedAt,
		ScannedAt: scannedAt,
	}
}

// TaskQuery selects one page of the task feed.
type TaskQuery struct {
	// EditedSince is an RFC3339 timestamp; tasks edited at or after it are
	// returned. Empty means all tasks.
	EditedSince string

	// Cursor continues a previous page walk.
	Cursor string

	PageSize int
}

// TaskPage is one page of tasks ordered by edit time ascending.
type TaskPage struct {
	Tasks      []types.TaskRecord
	NextCursor string
	HasMore    bool
}
