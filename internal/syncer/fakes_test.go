package syncer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/Jayphen/prisync/internal/redis"
	"github.com/Jayphen/prisync/internal/store"
	"github.com/Jayphen/prisync/internal/tasksource"
	"github.com/Jayphen/prisync/internal/types"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func at(n int) time.Time { return base.Add(time.Duration(n) * time.Minute) }

func str(s string) *string { return &s }

func labeled(label string, n int) types.LabelEvent {
	return types.LabelEvent{Kind: types.EventLabeled, Label: label, OccurredAt: at(n), Actor: "octocat"}
}

func unlabeled(label string, n int) types.LabelEvent {
	return types.LabelEvent{Kind: types.EventUnlabeled, Label: label, OccurredAt: at(n), Actor: "octocat"}
}

// newTestStore returns a Redis store backed by miniredis.
func newTestStore(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := redis.NewClient("redis://"+mr.Addr(), "")
	if err != nil {
		t.Fatalf("failed to connect to miniredis: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client, mr
}

// failingStore fails selected operations with errStoreDown.
type failingStore struct {
	store.Store
	failPutIssue      bool
	failSetCheckpoint bool
	failSetLink       bool
}

var errStoreDown = errors.New("store unavailable")

func (s *failingStore) PutIssue(ctx context.Context, snap types.IssueSnapshot) error {
	if s.failPutIssue {
		return errStoreDown
	}
	return s.Store.PutIssue(ctx, snap)
}

func (s *failingStore) SetCheckpoint(ctx context.Context, key string, cp types.Checkpoint) error {
	if s.failSetCheckpoint {
		return errStoreDown
	}
	return s.Store.SetCheckpoint(ctx, key, cp)
}

func (s *failingStore) SetLink(ctx context.Context, url string, link types.Link) error {
	if s.failSetLink {
		return errStoreDown
	}
	return s.Store.SetLink(ctx, url, link)
}

// fakeGitHub is an in-memory IssueTracker. Search cursors are "c<index>"
// into the filtered, update-ordered result list.
type fakeGitHub struct {
	mu     sync.Mutex
	now    time.Time
	issues map[string]*tasksource.Issue // by cache key

	// fullTimelines overrides FullTimeline per cache key.
	fullTimelines map[string][]types.LabelEvent

	// failFrom makes SearchIssues fail for pages starting at or after this
	// index. Zero disables it.
	failFrom  int
	addErr    error
	removeErr error

	searches  []tasksource.SearchQuery
	adds      []string // "key +label"
	removes   []string // "key -label"
	gets      int
	timelines int
}

func newFakeGitHub() *fakeGitHub {
	return &fakeGitHub{
		now:           at(30),
		issues:        make(map[string]*tasksource.Issue),
		fullTimelines: make(map[string][]types.LabelEvent),
	}
}

func (f *fakeGitHub) add(repo string, number int, updated time.Time, labels []string, timeline ...types.LabelEvent) types.IssueRef {
	owner, name, _ := strings.Cut(repo, "/")
	ref := types.IssueRef{Owner: owner, Repo: name, Number: number}
	f.issues[ref.Key()] = &tasksource.Issue{
		Ref:           ref,
		URL:           ref.CanonicalURL(),
		State:         tasksource.StateOpen,
		Labels:        labels,
		UpdatedAt:     updated,
		Timeline:      timeline,
		TimelineTotal: len(timeline),
	}
	return ref
}

func (f *fakeGitHub) mutations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.adds) + len(f.removes)
}

func (f *fakeGitHub) SearchIssues(_ context.Context, q tasksource.SearchQuery) (*tasksource.SearchPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, q)

	var hits []*tasksource.Issue
	for _, is := range f.issues {
		if is.Ref.FullName() != q.Repo || is.State != q.State {
			continue
		}
		if q.UpdatedAfter != "" && formatWatermark(is.UpdatedAt) < q.UpdatedAfter {
			continue
		}
		hits = append(hits, is)
	}
	sort.Slice(hits, func(i, j int) bool {
		if !hits[i].UpdatedAt.Equal(hits[j].UpdatedAt) {
			return hits[i].UpdatedAt.Before(hits[j].UpdatedAt)
		}
		return hits[i].Ref.Number < hits[j].Ref.Number
	})

	start := 0
	if q.Cursor != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(q.Cursor, "c"))
		if err != nil {
			return nil, fmt.Errorf("bad cursor %q", q.Cursor)
		}
		start = n + 1
	}
	if f.failFrom > 0 && start >= f.failFrom {
		return nil, errors.New("search: 502 bad gateway")
	}

	size := q.PageSize
	if size <= 0 {
		size = 50
	}
	page := &tasksource.SearchPage{}
	for i := start; i < len(hits) && i < start+size; i++ {
		page.Items = append(page.Items, tasksource.SearchItem{Cursor: "c" + strconv.Itoa(i), Issue: *hits[i]})
		page.EndCursor = "c" + strconv.Itoa(i)
	}
	page.HasNextPage = start+size < len(hits)
	return page, nil
}

func (f *fakeGitHub) GetIssue(_ context.Context, ref types.IssueRef) (*tasksource.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	is, ok := f.issues[ref.Key()]
	if !ok {
		return nil, tasksource.ErrNotFound
	}
	cp := *is
	return &cp, nil
}

func (f *fakeGitHub) FullTimeline(_ context.Context, ref types.IssueRef) ([]types.LabelEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timelines++
	if tl, ok := f.fullTimelines[ref.Key()]; ok {
		return tl, nil
	}
	if is, ok := f.issues[ref.Key()]; ok {
		return is.Timeline, nil
	}
	return nil, tasksource.ErrNotFound
}

func (f *fakeGitHub) AddLabels(_ context.Context, ref types.IssueRef, labels []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	is, ok := f.issues[ref.Key()]
	if !ok {
		return tasksource.ErrNotFound
	}
	for _, l := range labels {
		f.adds = append(f.adds, ref.Key()+" +"+l)
		is.Labels = append(is.Labels, l)
		is.Timeline = append([]types.LabelEvent{{Kind: types.EventLabeled, Label: l, OccurredAt: f.now}}, is.Timeline...)
	}
	is.UpdatedAt = f.now
	return nil
}

func (f *fakeGitHub) RemoveLabel(_ context.Context, ref types.IssueRef, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removes = append(f.removes, ref.Key()+" -"+label)
	is, ok := f.issues[ref.Key()]
	if !ok {
		return nil
	}
	var kept []string
	for _, l := range is.Labels {
		if l != label {
			kept = append(kept, l)
		}
	}
	is.Labels = kept
	is.Timeline = append([]types.LabelEvent{{Kind: types.EventUnlabeled, Label: label, OccurredAt: f.now}}, is.Timeline...)
	is.UpdatedAt = f.now
	return nil
}

// fakeNotion is an in-memory TaskFeed. Page cursors are offsets.
type fakeNotion struct {
	mu    sync.Mutex
	now   time.Time
	tasks []types.TaskRecord

	setErr  error
	queries []tasksource.TaskQuery
	sets    map[string]*string
}

func newFakeNotion(tasks ...types.TaskRecord) *fakeNotion {
	return &fakeNotion{now: at(30), tasks: tasks, sets: make(map[string]*string)}
}

func (f *fakeNotion) QueryTasks(_ context.Context, q tasksource.TaskQuery) (*tasksource.TaskPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)

	var hits []types.TaskRecord
	for _, t := range f.tasks {
		if q.EditedSince != "" && formatWatermark(t.EditedAt) < q.EditedSince {
			continue
		}
		hits = append(hits, t)
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].EditedAt.Before(hits[j].EditedAt) })

	start := 0
	if q.Cursor != "" {
		start, _ = strconv.Atoi(q.Cursor)
	}
	size := q.PageSize
	if size <= 0 {
		size = 100
	}
	end := start + size
	if end > len(hits) {
		end = len(hits)
	}
	page := &tasksource.TaskPage{Tasks: hits[start:end]}
	if end < len(hits) {
		page.HasMore = true
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

func (f *fakeNotion) SetPriority(_ context.Context, taskID string, value *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.sets[taskID] = value
	for i := range f.tasks {
		if f.tasks[i].TaskID == taskID {
			f.tasks[i].Priority = value
			f.tasks[i].EditedAt = f.now
		}
	}
	return nil
}

// recordingNotifier collects chat messages.
type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (n *recordingNotifier) Notify(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, text)
	return n.err
}
