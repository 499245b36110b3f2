package syncer

import (
	"context"
	"time"

	"github.com/Jayphen/prisync/internal/logging"
	"github.com/Jayphen/prisync/internal/store"
	"github.com/Jayphen/prisync/internal/tasksource"
	"github.com/Jayphen/prisync/internal/types"
)

// FeedCheckpointKey is the checkpoint key of a task database feed.
func FeedCheckpointKey(databaseID string) string {
	return "task-feed:" + databaseID
}

// FeedReader streams task records edited since the last run, oldest first.
type FeedReader struct {
	store      store.Store
	notion     tasksource.TaskFeed
	databaseID string
	pageSize   int
	now        func() time.Time
	log        *logging.Logger
}

// FeedStats counts what a feed run did.
type FeedStats struct {
	Visited   int // records read, excluding the checkpoint record
	Linked    int // reverse-index entries refreshed
	Skipped   int // records without a title or a usable issue url
	Processed int
	Failed    int

	// Inconsistent counts records whose issue had a priority label with no
	// explaining event; they count as processed.
	Inconsistent int
}

// NewFeedReader creates a feed reader for one task database.
func NewFeedReader(st store.Store, notion tasksource.TaskFeed, databaseID string, pageSize int, log *logging.Logger) *FeedReader {
	return &FeedReader{
		store:      st,
		notion:     notion,
		databaseID: databaseID,
		pageSize:   pageSize,
		now:        time.Now,
		log:        log,
	}
}

// Run feeds every new record to handle, one at a time.
//
// For each record with a linked url the reverse index is refreshed first,
// then records missing a title or a parsable url are skipped. The checkpoint
// moves to (taskID, editedAt) after each handled or skipped record. Once a
// record fails, later records are still handled but the checkpoint stays put
// so the failed record is retried by the next run.
func (f *FeedReader) Run(ctx context.Context, handle Processor[types.TaskRecord]) (FeedStats, error) {
	var stats FeedStats
	key := FeedCheckpointKey(f.databaseID)

	stored, err := f.store.GetCheckpoint(ctx, key)
	if err != nil {
		return stats, persistErr("read checkpoint "+key, err)
	}
	var cp types.Checkpoint
	if stored != nil {
		cp = *stored
	}

	guarded := Guard(handle, func(rec types.TaskRecord, err error) {
		if logItemError(f.log.WithTask(rec.TaskID).WithURL(rec.LinkedURL), err) {
			stats.Inconsistent++
			return
		}
		stats.Failed++
	})

	since, lastID := cp.Watermark, cp.Cursor
	advancing := true
	cursor := ""

	for {
		page, err := f.notion.QueryTasks(ctx, tasksource.TaskQuery{
			EditedSince: since,
			Cursor:      cursor,
			PageSize:    f.pageSize,
		})
		if err != nil {
			return stats, err
		}

		for _, rec := range page.Tasks {
			editedAt := formatWatermark(rec.EditedAt)
			if rec.TaskID == lastID && editedAt == since {
				continue
			}
			stats.Visited++

			ref, urlErr := types.ParseIssueURL(rec.LinkedURL)
			if rec.LinkedURL != "" && urlErr == nil {
				link := types.Link{TaskID: rec.TaskID, Priority: rec.Priority, EditedAt: rec.EditedAt}
				if err := f.store.SetLink(ctx, ref.Key(), link); err != nil {
					return stats, persistErr("write link "+ref.Key(), err)
				}
				stats.Linked++
			}

			ok := true
			switch {
			case rec.Title == "" || rec.LinkedURL == "":
				stats.Skipped++
			case urlErr != nil:
				stats.Skipped++
				f.log.WithTask(rec.TaskID).WithError(urlErr).Debug("skipping task with unusable issue url")
			default:
				var fatal error
				ok, fatal = guarded(ctx, rec)
				if fatal != nil {
					return stats, fatal
				}
				if ok {
					stats.Processed++
				}
			}

			if !ok && advancing {
				advancing = false
				f.log.WithTask(rec.TaskID).Info("holding task feed checkpoint for retry")
			}
			if !advancing {
				continue
			}

			cp.Cursor = rec.TaskID
			cp.Watermark = laterWatermark(cp.Watermark, editedAt)
			cp.UpdatedAt = f.now()
			if err := f.store.SetCheckpoint(ctx, key, cp); err != nil {
				return stats, persistErr("write checkpoint "+key, err)
			}
		}

		if !page.HasMore || page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	return stats, nil
}
