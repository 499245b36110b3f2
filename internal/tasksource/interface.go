package tasksource

import (
	"context"

	"github.com/Jayphen/prisync/internal/types"
)

// IssueTracker is the GitHub side of the sync.
type IssueTracker interface {
	// SearchIssues returns one page of issues in a repository, sorted by
	// update time ascending.
	SearchIssues(ctx context.Context, q SearchQuery) (*SearchPage, error)

	// GetIssue fetches a single issue or pull request. Returns ErrNotFound
	// when it does not exist or is not visible.
	GetIssue(ctx context.Context, ref types.IssueRef) (*Issue, error)

	// FullTimeline returns every label event of an issue, most recent first.
	FullTimeline(ctx context.Context, ref types.IssueRef) ([]types.LabelEvent, error)

	// AddLabels attaches labels in a single call.
	AddLabels(ctx context.Context, ref types.IssueRef, labels []string) error

	// RemoveLabel detaches one label. Removing an absent label succeeds.
	RemoveLabel(ctx context.Context, ref types.IssueRef, label string) error
}

// TaskFeed is the Notion side of the sync.
type TaskFeed interface {
	// QueryTasks returns one page of tasks ordered by edit time ascending.
	QueryTasks(ctx context.Context, q TaskQuery) (*TaskPage, error)

	// SetPriority writes the priority property of a task; nil clears it.
	SetPriority(ctx context.Context, taskID string, value *string) error
}

var (
	_ IssueTracker = (*GitHubClient)(nil)
	_ TaskFeed     = (*NotionClient)(nil)
)
