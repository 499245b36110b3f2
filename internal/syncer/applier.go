package syncer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Jayphen/prisync/internal/logging"
	"github.com/Jayphen/prisync/internal/notify"
	"github.com/Jayphen/prisync/internal/priority"
	"github.com/Jayphen/prisync/internal/store"
	"github.com/Jayphen/prisync/internal/tasksource"
	"github.com/Jayphen/prisync/internal/types"
)

// Pair is one task linked to one issue, as seen at resolution time.
type Pair struct {
	Ref    types.IssueRef
	Key    string // cache key of the issue
	TaskID string
	Title  string

	NotionPriority *string
	NotionEditedAt *time.Time

	Snapshot *types.IssueSnapshot
}

// Input returns the resolver input for the pair.
func (p Pair) Input(timeline []types.LabelEvent) priority.Input {
	in := priority.Input{
		NotionPriority: p.NotionPriority,
		NotionEditedAt: p.NotionEditedAt,
		Timeline:       timeline,
	}
	if p.Snapshot != nil {
		in.CurrentLabels = p.Snapshot.Labels
	}
	return in
}

// Applied describes the external calls Apply made.
type Applied struct {
	LabelsAdded     []string
	LabelsRemoved   []string
	PriorityUpdated bool
}

// Applier turns resolver decisions into GitHub and Notion calls.
type Applier struct {
	store    store.Store
	github   tasksource.IssueTracker
	notion   tasksource.TaskFeed
	notifier notify.Notifier
	dryRun   bool
	now      func() time.Time
	log      *logging.Logger
}

// NewApplier creates an applier. In dry-run mode decisions are logged and
// nothing is mutated.
func NewApplier(st store.Store, gh tasksource.IssueTracker, notion tasksource.TaskFeed, n notify.Notifier, dryRun bool, log *logging.Logger) *Applier {
	if n == nil {
		n = notify.Nop{}
	}
	return &Applier{
		store:    st,
		github:   gh,
		notion:   notion,
		notifier: n,
		dryRun:   dryRun,
		now:      time.Now,
		log:      log,
	}
}

// Apply performs the minimal mutation for d. An empty diff makes no call.
// After a mutation the cached labels or link are refreshed so later work in
// the same run sees the new state.
func (a *Applier) Apply(ctx context.Context, p Pair, d priority.Decision) (Applied, error) {
	var applied Applied
	if !d.Mutates() {
		return applied, nil
	}

	log := a.log.WithURL(p.Key).WithTask(p.TaskID).WithField("direction", d.Direction.String())
	if a.dryRun {
		log.WithFields(map[string]interface{}{
			"add":      d.AddLabels,
			"remove":   d.RemoveLabels,
			"priority": derefOr(d.SetPriority, ""),
		}).Info("dry run: skipping mutation")
		return applied, nil
	}

	switch d.Direction {
	case priority.DirectionToGitHub:
		if len(d.AddLabels) > 0 {
			if err := a.github.AddLabels(ctx, p.Ref, d.AddLabels); err != nil {
				return applied, err
			}
			applied.LabelsAdded = d.AddLabels
		}
		for _, label := range d.RemoveLabels {
			if err := a.github.RemoveLabel(ctx, p.Ref, label); err != nil {
				return applied, err
			}
			applied.LabelsRemoved = append(applied.LabelsRemoved, label)
		}

		if p.Snapshot != nil {
			snap := *p.Snapshot
			snap.Labels = applyLabelDiff(snap.Labels, d.AddLabels, d.RemoveLabels)
			if err := a.store.PutIssue(ctx, snap); err != nil {
				return applied, persistErr("refresh cached labels "+p.Key, err)
			}
		}

		log.WithFields(map[string]interface{}{
			"added":   applied.LabelsAdded,
			"removed": applied.LabelsRemoved,
		}).Info("updated priority labels")
		a.announce(ctx, log, fmt.Sprintf("%s priority labels: %s",
			notify.Link(p.Ref.CanonicalURL(), p.Ref.String()), describeLabelDiff(applied)))

	case priority.DirectionToNotion:
		if err := a.notion.SetPriority(ctx, p.TaskID, d.SetPriority); err != nil {
			return applied, err
		}
		applied.PriorityUpdated = true

		link := types.Link{TaskID: p.TaskID, Priority: d.SetPriority, EditedAt: a.now()}
		if err := a.store.SetLink(ctx, p.Key, link); err != nil {
			return applied, persistErr("refresh link "+p.Key, err)
		}

		value := derefOr(d.SetPriority, "none")
		log.WithField("priority", value).Info("updated task priority")
		title := p.Title
		if title == "" {
			title = p.TaskID
		}
		a.announce(ctx, log, fmt.Sprintf("%s priority set to *%s* from %s",
			notify.Escape(title), notify.Escape(value), notify.Link(p.Ref.CanonicalURL(), p.Ref.String())))
	}

	return applied, nil
}

// announce posts a chat message. Delivery failures are only logged.
func (a *Applier) announce(ctx context.Context, log *logging.Logger, text string) {
	if err := a.notifier.Notify(ctx, text); err != nil {
		log.WithError(err).Warn("failed to post chat notification")
	}
}

func applyLabelDiff(labels, add, remove []string) []string {
	drop := make(map[string]bool, len(remove))
	for _, l := range remove {
		drop[l] = true
	}

	out := make([]string, 0, len(labels)+len(add))
	seen := make(map[string]bool, len(labels)+len(add))
	for _, l := range append(append([]string{}, labels...), add...) {
		if drop[l] || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

func describeLabelDiff(a Applied) string {
	var parts []string
	for _, l := range a.LabelsAdded {
		parts = append(parts, "+"+notify.Escape(l))
	}
	for _, l := range a.LabelsRemoved {
		parts = append(parts, "-"+notify.Escape(l))
	}
	return strings.Join(parts, " ")
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
