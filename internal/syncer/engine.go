package syncer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Jayphen/prisync/internal/logging"
	"github.com/Jayphen/prisync/internal/notify"
	"github.com/Jayphen/prisync/internal/priority"
	"github.com/Jayphen/prisync/internal/store"
	"github.com/Jayphen/prisync/internal/tasksource"
	"github.com/Jayphen/prisync/internal/types"
)

// DefaultConcurrency bounds the number of repository walks in flight.
const DefaultConcurrency = 4

// Options configure an Engine.
type Options struct {
	Repos          []string
	DatabaseID     string
	SearchPageSize int
	TaskPageSize   int
	TimelineWindow int
	TiePolicy      priority.TiePolicy
	Concurrency    int
	DryRun         bool
}

// Report summarizes one run.
type Report struct {
	RunID      string    `json:"runId"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	DryRun     bool      `json:"dryRun,omitempty"`

	IssuesScanned     int `json:"issuesScanned"`
	TasksVisited      int `json:"tasksVisited"`
	TasksSkipped      int `json:"tasksSkipped"`
	PairsResolved     int `json:"pairsResolved"`
	LabelsAdded       int `json:"labelsAdded"`
	LabelsRemoved     int `json:"labelsRemoved"`
	PrioritiesUpdated int `json:"prioritiesUpdated"`
	Ambiguous         int `json:"ambiguous"`
	Unmapped          int `json:"unmapped"`
	Inconsistent      int `json:"inconsistent"`
	Failures          int `json:"failures"`
}

// Duration returns how long the run took.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Engine runs one sync pass. It is not safe for concurrent Run calls.
type Engine struct {
	store    store.Store
	github   tasksource.IssueTracker
	notion   tasksource.TaskFeed
	notifier notify.Notifier
	mapping  *priority.Mapping
	opts     Options
	now      func() time.Time
	log      *logging.Logger
}

// NewEngine wires an engine. The caller owns st and closes it.
func NewEngine(st store.Store, gh tasksource.IssueTracker, notion tasksource.TaskFeed, n notify.Notifier, m *priority.Mapping, opts Options, log *logging.Logger) *Engine {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Engine{
		store:    st,
		github:   gh,
		notion:   notion,
		notifier: n,
		mapping:  m,
		opts:     opts,
		now:      time.Now,
		log:      log,
	}
}

// run holds the per-run state shared by the phases.
type run struct {
	*Engine
	report  *Report
	applier *Applier
	log     *logging.Logger
}

// Run performs one pass: repository scans, then the task feed, then the
// issues touched by the scans. The returned report is filled in even when an
// error aborts the run.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: e.now(),
		DryRun:    e.opts.DryRun,
	}
	log := e.log.WithRunID(report.RunID)
	r := &run{
		Engine:  e,
		report:  report,
		applier: NewApplier(e.store, e.github, e.notion, e.notifier, e.opts.DryRun, log),
		log:     log,
	}
	r.applier.now = e.now

	log.WithField("repos", len(e.opts.Repos)).Info("sync run started")
	err := r.execute(ctx)
	report.FinishedAt = e.now()

	ev := log.WithFields(map[string]interface{}{
		"scanned":  report.IssuesScanned,
		"tasks":    report.TasksVisited,
		"added":    report.LabelsAdded,
		"removed":  report.LabelsRemoved,
		"updated":  report.PrioritiesUpdated,
		"failures": report.Failures,
		"duration": report.Duration().String(),
	})
	if err != nil {
		ev.WithError(err).Error("sync run aborted")
		return report, err
	}
	ev.Info("sync run finished")
	return report, nil
}

func (r *run) execute(ctx context.Context) error {
	touched, err := r.scan(ctx)
	if err != nil {
		return err
	}
	if err := r.feed(ctx); err != nil {
		return err
	}
	return r.reconcileTouched(ctx, touched)
}

// scan walks every repository in both states concurrently and returns the
// deduplicated, sorted cache keys it wrote.
func (r *run) scan(ctx context.Context) ([]string, error) {
	var (
		mu      sync.Mutex
		touched = make(map[string]bool)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for _, repo := range r.opts.Repos {
		for _, state := range []string{tasksource.StateOpen, tasksource.StateClosed} {
			g.Go(func() error {
				sc := NewScanner(r.store, r.github, r.opts.SearchPageSize, r.log)
				sc.now = r.now
				res, err := sc.Scan(gctx, repo, state)

				mu.Lock()
				defer mu.Unlock()
				r.report.IssuesScanned += res.Scanned
				for _, key := range res.Touched {
					touched[key] = true
				}

				switch {
				case err == nil:
					return nil
				case errors.Is(err, ErrPersistence), gctx.Err() != nil:
					return err
				default:
					// The checkpoint holds the last durable item; the next run resumes there.
					r.report.Failures++
					r.log.WithRepo(repo).WithField("state", state).WithError(err).
						Warn("repository walk failed, will resume next run")
					return nil
				}
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(touched))
	for key := range touched {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// feed resolves every task edited since the last run.
func (r *run) feed(ctx context.Context) error {
	fr := NewFeedReader(r.store, r.notion, r.opts.DatabaseID, r.opts.TaskPageSize, r.log)
	fr.now = r.now

	stats, err := fr.Run(ctx, r.syncTask)
	r.report.TasksVisited += stats.Visited
	r.report.TasksSkipped += stats.Skipped
	r.report.Failures += stats.Failed
	r.report.Inconsistent += stats.Inconsistent
	if err != nil && !errors.Is(err, ErrPersistence) && ctx.Err() == nil {
		// A failed page fetch leaves the checkpoint at the last handled task.
		r.report.Failures++
		r.log.WithError(err).Warn("task feed failed, will resume next run")
		return nil
	}
	return err
}

func (r *run) syncTask(ctx context.Context, rec types.TaskRecord) error {
	ref, err := types.ParseIssueURL(rec.LinkedURL)
	if err != nil {
		return err
	}
	key := ref.Key()

	state, err := r.store.GetIssue(ctx, key)
	if err != nil {
		return persistErr("read issue "+key, err)
	}

	var snap *types.IssueSnapshot
	if state != nil && state.Snapshot != nil {
		snap = state.Snapshot
		// Prefer the scanned kind: a task may link /issues/N for a pull request.
		if cached, err := snap.Ref(); err == nil {
			ref.Pull = cached.Pull
		}
	} else {
		snap, err = r.fetchIssue(ctx, ref)
		if err != nil {
			return err
		}
		ref.Pull = snap.Pull
	}

	editedAt := rec.EditedAt
	pair := Pair{
		Ref:            ref,
		Key:            key,
		TaskID:         rec.TaskID,
		Title:          rec.Title,
		NotionPriority: rec.Priority,
		NotionEditedAt: &editedAt,
		Snapshot:       snap,
	}
	return r.reconcile(ctx, pair)
}

// fetchIssue reads an issue that no scan has cached yet and caches it.
func (r *run) fetchIssue(ctx context.Context, ref types.IssueRef) (*types.IssueSnapshot, error) {
	issue, err := r.github.GetIssue(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", ref, err)
	}
	snap := issue.Snapshot(r.now())
	if err := r.store.PutIssue(ctx, snap); err != nil {
		return nil, persistErr("cache issue "+snap.URL, err)
	}
	return &snap, nil
}

// reconcileTouched resolves each issue written by the scans against its
// cached task side.
func (r *run) reconcileTouched(ctx context.Context, keys []string) error {
	process := func(ctx context.Context, key string) error {
		state, err := r.store.GetIssue(ctx, key)
		if err != nil {
			return persistErr("read issue "+key, err)
		}
		if !state.Linked() || state.Snapshot == nil {
			return nil
		}
		ref, err := state.Snapshot.Ref()
		if err != nil {
			return err
		}

		pair := Pair{
			Ref:            ref,
			Key:            key,
			TaskID:         state.Link.TaskID,
			NotionPriority: state.Link.Priority,
			Snapshot:       state.Snapshot,
		}
		if !state.Link.EditedAt.IsZero() {
			editedAt := state.Link.EditedAt
			pair.NotionEditedAt = &editedAt
		}
		return r.reconcile(ctx, pair)
	}

	guarded := Guard(process, func(key string, err error) {
		if logItemError(r.log.WithURL(key), err) {
			r.report.Inconsistent++
			return
		}
		r.report.Failures++
	})

	for _, key := range keys {
		if _, fatal := guarded(ctx, key); fatal != nil {
			return fatal
		}
	}
	return nil
}

// reconcile resolves one pair and applies the decision.
//
// A priority label with no labeled event even in the full timeline is
// reported as ErrMissingLinkage instead of letting the task side win as if
// the issue had never been edited: the label was set somehow, and
// overwriting it on a guess would discard that edit.
func (r *run) reconcile(ctx context.Context, p Pair) error {
	timeline := p.Snapshot.Timeline
	if priority.NeedsFullTimeline(r.mapping, timeline, r.opts.TimelineWindow) {
		r.log.WithURL(p.Key).Debug("priority edit outside cached timeline, fetching full timeline")
		full, err := r.github.FullTimeline(ctx, p.Ref)
		if err != nil {
			return fmt.Errorf("fetch timeline %s: %w", p.Ref, err)
		}
		timeline = full
	}

	if len(r.mapping.Present(p.Snapshot.Labels)) > 0 {
		if _, ok := priority.LastPriorityEdit(r.mapping, timeline); !ok {
			return fmt.Errorf("%s: %w: priority label without a label event", p.Key, ErrMissingLinkage)
		}
	}

	d := priority.Resolve(r.mapping, p.Input(timeline), priority.Options{TiePolicy: r.opts.TiePolicy})
	r.report.PairsResolved++

	log := r.log.WithURL(p.Key).WithTask(p.TaskID)
	if d.Ambiguous {
		r.report.Ambiguous++
		log.WithField("labels", r.mapping.Present(p.Snapshot.Labels)).
			Warn("several priority labels attached, using the most recently added")
	}
	if d.Unmapped {
		r.report.Unmapped++
		log.WithField("priority", derefOr(p.NotionPriority, "")).
			Warn("task priority has no mapped label, leaving labels alone")
	}

	applied, err := r.applier.Apply(ctx, p, d)
	r.report.LabelsAdded += len(applied.LabelsAdded)
	r.report.LabelsRemoved += len(applied.LabelsRemoved)
	if applied.PriorityUpdated {
		r.report.PrioritiesUpdated++
	}
	if err != nil {
		return err
	}

	// Later phases of this run must see the mutated state.
	if len(applied.LabelsAdded) > 0 || len(applied.LabelsRemoved) > 0 {
		p.Snapshot.Labels = applyLabelDiff(p.Snapshot.Labels, applied.LabelsAdded, applied.LabelsRemoved)
	}
	return nil
}
