package priority

import (
	"fmt"
	"strings"
	"time"

	"github.com/Jayphen/prisync/internal/types"
)

// Direction is the side that won a resolution.
type Direction int

const (
	// DirectionNone means neither side is newer.
	DirectionNone Direction = iota
	// DirectionToGitHub means Notion is newer; labels follow the task.
	DirectionToGitHub
	// DirectionToNotion means GitHub is newer; the task follows the labels.
	DirectionToNotion
)

func (d Direction) String() string {
	switch d {
	case DirectionToGitHub:
		return "notion->github"
	case DirectionToNotion:
		return "github->notion"
	default:
		return "none"
	}
}

// TiePolicy decides the winner when both clocks are present and equal.
type TiePolicy string

const (
	TieNone   TiePolicy = "none"
	TieNotion TiePolicy = "notion"
	TieGitHub TiePolicy = "github"
)

// ParseTiePolicy parses a tie policy name. Empty means TieNone.
func ParseTiePolicy(s string) (TiePolicy, error) {
	switch TiePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", TieNone:
		return TieNone, nil
	case TieNotion:
		return TieNotion, nil
	case TieGitHub:
		return TieGitHub, nil
	default:
		return TieNone, fmt.Errorf("unknown tie policy %q: valid policies are none, notion, github", s)
	}
}

// Input is one linked pair as seen at resolution time.
type Input struct {
	NotionPriority *string
	NotionEditedAt *time.Time
	CurrentLabels  []string
	Timeline       []types.LabelEvent
}

// Options tune Resolve.
type Options struct {
	TiePolicy TiePolicy
}

// Decision is the outcome of Resolve.
type Decision struct {
	Direction Direction

	// Label diff, set when Direction is DirectionToGitHub.
	AddLabels    []string
	RemoveLabels []string

	// UpdatePriority is set when Direction is DirectionToNotion and the task
	// priority differs from the labels. SetPriority nil clears the property.
	UpdatePriority bool
	SetPriority    *string

	// Ambiguous is set when more than one priority label was attached.
	Ambiguous bool
	// Unmapped is set when the task priority has no label in the mapping.
	Unmapped bool

	IssueEditedAt *time.Time
}

// Mutates reports whether applying the decision needs any external call.
func (d Decision) Mutates() bool {
	return len(d.AddLabels) > 0 || len(d.RemoveLabels) > 0 || d.UpdatePriority
}

// Resolve decides the sync direction of one linked pair from the task edit
// time and the most recent priority-label event, and computes the minimal
// mutation. It performs no I/O.
func Resolve(m *Mapping, in Input, opts Options) Decision {
	issueEdit, hasIssueEdit := LastPriorityEdit(m, in.Timeline)

	var d Decision
	if hasIssueEdit {
		d.IssueEditedAt = &issueEdit
	}
	if len(m.Present(in.CurrentLabels)) > 1 {
		d.Ambiguous = true
	}

	switch compareClocks(in.NotionEditedAt, d.IssueEditedAt, opts.TiePolicy) {
	case DirectionToGitHub:
		d.Direction = DirectionToGitHub
		resolveToGitHub(m, in, &d)
	case DirectionToNotion:
		d.Direction = DirectionToNotion
		resolveToNotion(m, in, &d)
	}
	return d
}

func compareClocks(notion, issue *time.Time, tie TiePolicy) Direction {
	switch {
	case notion == nil && issue == nil:
		return DirectionNone
	case issue == nil:
		return DirectionToGitHub
	case notion == nil:
		return DirectionToNotion
	case notion.After(*issue):
		return DirectionToGitHub
	case issue.After(*notion):
		return DirectionToNotion
	}

	switch tie {
	case TieNotion:
		return DirectionToGitHub
	case TieGitHub:
		return DirectionToNotion
	default:
		return DirectionNone
	}
}

func resolveToGitHub(m *Mapping, in Input, d *Decision) {
	desired := ""
	if in.NotionPriority != nil {
		label, ok := m.Label(*in.NotionPriority)
		if !ok {
			// Unknown values are left alone rather than stripping labels.
			d.Unmapped = true
			d.Direction = DirectionNone
			return
		}
		desired = label
	}

	current := make(map[string]bool, len(in.CurrentLabels))
	for _, l := range in.CurrentLabels {
		current[l] = true
	}

	for _, label := range m.Labels() {
		switch {
		case label == desired && !current[label]:
			d.AddLabels = append(d.AddLabels, label)
		case label != desired && current[label]:
			d.RemoveLabels = append(d.RemoveLabels, label)
		}
	}
}

func resolveToNotion(m *Mapping, in Input, d *Decision) {
	var desired *string
	if label, ok := PickLabel(m, in.CurrentLabels, in.Timeline); ok {
		v, _ := m.Value(label)
		desired = &v
	}

	if !samePriority(desired, in.NotionPriority) {
		d.UpdatePriority = true
		d.SetPriority = desired
	}
}

func samePriority(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// LastPriorityEdit returns the time of the most recent labeled or unlabeled
// event on a priority label.
func LastPriorityEdit(m *Mapping, timeline []types.LabelEvent) (time.Time, bool) {
	var latest time.Time
	var found bool
	for _, ev := range timeline {
		switch ev.Kind {
		case types.EventLabeled, types.EventUnlabeled:
			if !m.IsLabel(ev.Label) {
				continue
			}
			if !found || ev.OccurredAt.After(latest) {
				latest = ev.OccurredAt
				found = true
			}
		case types.EventCommented:
		}
	}
	return latest, found
}

// PickLabel returns the single priority label that represents the issue.
// With several attached, the one labeled most recently wins; labels without
// a labeled event in the timeline, and exact ties, fall back to declaration
// order.
func PickLabel(m *Mapping, labels []string, timeline []types.LabelEvent) (string, bool) {
	present := m.Present(labels)
	switch len(present) {
	case 0:
		return "", false
	case 1:
		return present[0], true
	}

	labeledAt := make(map[string]time.Time, len(present))
	for _, ev := range timeline {
		if ev.Kind != types.EventLabeled || !m.IsLabel(ev.Label) {
			continue
		}
		if t, ok := labeledAt[ev.Label]; !ok || ev.OccurredAt.After(t) {
			labeledAt[ev.Label] = ev.OccurredAt
		}
	}

	best := present[0]
	bestAt, bestOK := labeledAt[best]
	for _, label := range present[1:] {
		at, ok := labeledAt[label]
		if ok && (!bestOK || at.After(bestAt)) {
			best, bestAt, bestOK = label, at, true
		}
	}
	return best, true
}

// NeedsFullTimeline reports whether the cached timeline window may be hiding
// the priority edit: the window is already full and holds no priority event.
// This holds whether or not a priority label is attached now, since a removal
// that aged out of the window is still the latest edit.
func NeedsFullTimeline(m *Mapping, timeline []types.LabelEvent, window int) bool {
	if window <= 0 || len(timeline) < window {
		return false
	}
	_, found := LastPriorityEdit(m, timeline)
	return !found
}
