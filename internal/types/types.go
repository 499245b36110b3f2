// Package types defines the core data types shared by the sync engine,
// the stores and the remote clients.
package types

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Checkpoint is a durable resume marker for an incremental scan.
type Checkpoint struct {
	// Cursor is an opaque continuation token. Empty means no walk in progress.
	// The task feed stores the id of the last processed task here.
	Cursor string `json:"cursor,omitempty"`

	// Watermark is an RFC3339 timestamp; everything at or before it has
	// already been processed.
	Watermark string `json:"watermark,omitempty"`

	// Pending is the highest update time seen inside the current page walk.
	// It is promoted to Watermark once the walk is exhausted.
	Pending string `json:"pending,omitempty"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// EventKind discriminates timeline events.
type EventKind string

const (
	EventLabeled   EventKind = "labeled"
	EventUnlabeled EventKind = "unlabeled"
	EventCommented EventKind = "commented"
)

// LabelEvent is one immutable timeline entry of an issue or pull request.
// Label is empty for EventCommented.
type LabelEvent struct {
	Kind       EventKind `json:"kind"`
	Label      string    `json:"label,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
	Actor      string    `json:"actor,omitempty"`
}

// IssueSnapshot is the scanner's view of an issue. It is replaced wholesale
// on every scan.
type IssueSnapshot struct {
	URL       string       `json:"url"`
	Repo      string       `json:"repo"`
	Number    int          `json:"number"`
	Pull      bool         `json:"pull,omitempty"`
	State     string       `json:"state"`
	Labels    []string     `json:"labels"`
	Timeline  []LabelEvent `json:"timeline"` // most recent first
	UpdatedAt time.Time    `json:"updatedAt"`
	ScannedAt time.Time    `json:"scannedAt"`
}

// Link is the reverse-index entry from an issue URL to its Notion task.
type Link struct {
	TaskID   string    `json:"taskId"`
	Priority *string   `json:"priority,omitempty"`
	EditedAt time.Time `json:"editedAt"`
}

// Ref returns the address of the snapshotted issue.
func (s IssueSnapshot) Ref() (IssueRef, error) {
	ref, err := ParseIssueURL(s.URL)
	if err != nil {
		return IssueRef{}, err
	}
	ref.Pull = s.Pull
	return ref, nil
}

// IssueState is the cached state of one issue: the latest snapshot plus the
// linked task, if any. Either part may be missing.
type IssueState struct {
	URL      string
	Snapshot *IssueSnapshot
	Link     *Link
}

// Linked reports whether a task references this issue.
func (s *IssueState) Linked() bool {
	return s != nil && s.Link != nil && s.Link.TaskID != ""
}

// TaskRecord is a row of the task database relevant to priority sync.
type TaskRecord struct {
	TaskID    string    `json:"taskId"`
	Title     string    `json:"title"`
	Priority  *string   `json:"priority,omitempty"`
	LinkedURL string    `json:"linkedUrl,omitempty"`
	EditedAt  time.Time `json:"editedAt"`
}

// IssueRef addresses an issue or pull request on GitHub.
type IssueRef struct {
	Owner  string
	Repo   string
	Number int
	Pull   bool
}

// FullName returns "owner/repo".
func (r IssueRef) FullName() string {
	return r.Owner + "/" + r.Repo
}

func (r IssueRef) String() string {
	return fmt.Sprintf("%s#%d", r.FullName(), r.Number)
}

// ParseIssueURL parses https://github.com/{owner}/{repo}/(issues|pull)/{n}.
// Trailing path segments, query strings and fragments are ignored.
func ParseIssueURL(raw string) (IssueRef, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return IssueRef{}, fmt.Errorf("invalid issue url %q: %w", raw, err)
	}
	if u.Host != "github.com" && u.Host != "www.github.com" {
		return IssueRef{}, fmt.Errorf("invalid issue url %q: not a github.com url", raw)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 4 || parts[0] == "" || parts[1] == "" {
		return IssueRef{}, fmt.Errorf("invalid issue url %q: expected /owner/repo/issues/N", raw)
	}

	var pull bool
	switch parts[2] {
	case "issues":
	case "pull":
		pull = true
	default:
		return IssueRef{}, fmt.Errorf("invalid issue url %q: expected issues or pull", raw)
	}

	n, err := strconv.Atoi(parts[3])
	if err != nil || n <= 0 {
		return IssueRef{}, fmt.Errorf("invalid issue url %q: bad number", raw)
	}

	return IssueRef{Owner: parts[0], Repo: parts[1], Number: n, Pull: pull}, nil
}

// CanonicalURL returns the canonical html url for the ref.
func (r IssueRef) CanonicalURL() string {
	kind := "issues"
	if r.Pull {
		kind = "pull"
	}
	return fmt.Sprintf("https://github.com/%s/%s/%s/%d", r.Owner, r.Repo, kind, r.Number)
}

// Key is the cache key for the ref. Issues and pull requests share a number
// space and github.com redirects /issues/N to /pull/N, so the kind is dropped
// and owner/repo are lowercased.
func (r IssueRef) Key() string {
	return fmt.Sprintf("https://github.com/%s/%s/issues/%d",
		strings.ToLower(r.Owner), strings.ToLower(r.Repo), r.Number)
}

// IssueKey parses raw and returns its cache key.
func IssueKey(raw string) (string, error) {
	ref, err := ParseIssueURL(raw)
	if err != nil {
		return "", err
	}
	return ref.Key(), nil
}
