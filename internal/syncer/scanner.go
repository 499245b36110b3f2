package syncer

import (
	"context"
	"time"

	"github.com/Jayphen/prisync/internal/logging"
	"github.com/Jayphen/prisync/internal/store"
	"github.com/Jayphen/prisync/internal/tasksource"
	"github.com/Jayphen/prisync/internal/types"
)

// ScanCheckpointKey is the checkpoint key of one repository walk.
func ScanCheckpointKey(repo, state string) string {
	return "repo-scan:" + repo + ":" + state
}

// Scanner walks the issues of one repository in update order and keeps the
// label timeline cache current.
type Scanner struct {
	store    store.Store
	github   tasksource.IssueTracker
	pageSize int
	now      func() time.Time
	log      *logging.Logger
}

// ScanResult summarizes one walk.
type ScanResult struct {
	Repo    string
	State   string
	Scanned int
	// Touched holds the cache keys of every issue written by the walk.
	Touched []string
}

// NewScanner creates a scanner.
func NewScanner(st store.Store, gh tasksource.IssueTracker, pageSize int, log *logging.Logger) *Scanner {
	return &Scanner{
		store:    st,
		github:   gh,
		pageSize: pageSize,
		now:      time.Now,
		log:      log,
	}
}

// Scan resumes the walk of repo/state from its checkpoint. The checkpoint is
// written after every item: Cursor resumes right after the item and Pending
// tracks the highest update time seen. When the walk runs out of pages,
// Pending is promoted to Watermark and Cursor is cleared.
//
// A fetch error ends the walk with the checkpoint at the last durable item.
// Store errors wrap ErrPersistence.
func (s *Scanner) Scan(ctx context.Context, repo, state string) (ScanResult, error) {
	res := ScanResult{Repo: repo, State: state}
	key := ScanCheckpointKey(repo, state)

	stored, err := s.store.GetCheckpoint(ctx, key)
	if err != nil {
		return res, persistErr("read checkpoint "+key, err)
	}
	var cp types.Checkpoint
	if stored != nil {
		cp = *stored
	}

	log := s.log.WithRepo(repo).WithField("state", state)
	if cp.Cursor != "" {
		log.Infof("resuming page walk after %s (watermark %q)", cp.Cursor, cp.Watermark)
	}

	cursor := cp.Cursor
	for {
		page, err := s.github.SearchIssues(ctx, tasksource.SearchQuery{
			Repo:         repo,
			State:        state,
			UpdatedAfter: cp.Watermark,
			Cursor:       cursor,
			PageSize:     s.pageSize,
		})
		if err != nil {
			return res, err
		}

		for _, item := range page.Items {
			now := s.now()
			snap := item.Issue.Snapshot(now)
			if err := s.store.PutIssue(ctx, snap); err != nil {
				return res, persistErr("cache issue "+snap.URL, err)
			}

			cp.Cursor = item.Cursor
			cp.Pending = laterWatermark(cp.Pending, formatWatermark(item.Issue.UpdatedAt))
			cp.UpdatedAt = now
			if err := s.store.SetCheckpoint(ctx, key, cp); err != nil {
				return res, persistErr("write checkpoint "+key, err)
			}

			res.Scanned++
			res.Touched = append(res.Touched, snap.URL)
		}

		if !page.HasNextPage || page.EndCursor == "" {
			break
		}
		cursor = page.EndCursor
	}

	cp.Watermark = laterWatermark(cp.Watermark, cp.Pending)
	cp.Pending = ""
	cp.Cursor = ""
	cp.UpdatedAt = s.now()
	if err := s.store.SetCheckpoint(ctx, key, cp); err != nil {
		return res, persistErr("write checkpoint "+key, err)
	}

	log.WithField("scanned", res.Scanned).Debugf("page walk complete, watermark %s", cp.Watermark)
	return res, nil
}

// formatWatermark renders t in the sortable form used by checkpoints.
func formatWatermark(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// laterWatermark returns the later of two watermarks. Both are UTC RFC3339
// strings, so lexical order is chronological.
func laterWatermark(a, b string) string {
	if b > a {
		return b
	}
	return a
}
