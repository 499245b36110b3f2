package syncer

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/Jayphen/prisync/internal/logging"
	"github.com/Jayphen/prisync/internal/priority"
)

func testPair(t *testing.T, gh *fakeGitHub, labels ...string) Pair {
	t.Helper()
	ref := gh.add("acme/api", 7, at(1), labels)
	snap := gh.issues[ref.Key()].Snapshot(at(1))
	return Pair{Ref: ref, Key: ref.Key(), TaskID: "t7", Title: "Ship <it>", Snapshot: &snap}
}

func TestApply_EmptyDiffMakesNoCalls(t *testing.T) {
	st, _ := newTestStore(t)
	gh := newFakeGitHub()
	notion := newFakeNotion()
	n := &recordingNotifier{}
	a := NewApplier(st, gh, notion, n, false, logging.Nop())

	decisions := []priority.Decision{
		{},
		{Direction: priority.DirectionToGitHub},
		{Direction: priority.DirectionToNotion},
	}
	for _, d := range decisions {
		applied, err := a.Apply(context.Background(), testPair(t, gh), d)
		if err != nil {
			t.Fatalf("Apply(%v): %v", d.Direction, err)
		}
		if !reflect.DeepEqual(applied, Applied{}) {
			t.Errorf("Apply(%v) = %+v, want nothing", d.Direction, applied)
		}
	}
	if gh.mutations() != 0 || len(notion.sets) != 0 || len(n.messages) != 0 {
		t.Errorf("empty diff made calls: github %d, notion %d, chat %d", gh.mutations(), len(notion.sets), len(n.messages))
	}
}

func TestApply_ToGitHub(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t)
	gh := newFakeGitHub()
	n := &recordingNotifier{}
	a := NewApplier(st, gh, newFakeNotion(), n, false, logging.Nop())

	p := testPair(t, gh, "bug", "Medium-Priority", "Low-Priority")
	d := priority.Decision{
		Direction:    priority.DirectionToGitHub,
		AddLabels:    []string{"High-Priority"},
		RemoveLabels: []string{"Medium-Priority", "Low-Priority"},
	}

	applied, err := a.Apply(ctx, p, d)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(gh.adds) != 1 || len(gh.removes) != 2 {
		t.Errorf("adds %v removes %v", gh.adds, gh.removes)
	}
	if !reflect.DeepEqual(applied.LabelsRemoved, d.RemoveLabels) {
		t.Errorf("LabelsRemoved = %v", applied.LabelsRemoved)
	}

	state, err := st.GetIssue(ctx, p.Key)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"bug", "High-Priority"}; !reflect.DeepEqual(state.Snapshot.Labels, want) {
		t.Errorf("cached labels = %v, want %v", state.Snapshot.Labels, want)
	}

	m := priority.MustMapping(priority.DefaultEntries())
	if got := m.Present(state.Snapshot.Labels); len(got) > 1 {
		t.Errorf("cached labels hold %d priority labels", len(got))
	}

	if len(n.messages) != 1 || !strings.Contains(n.messages[0], "+High-Priority") {
		t.Errorf("messages = %v", n.messages)
	}
}

func TestApply_ToNotion(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t)
	gh := newFakeGitHub()
	notion := newFakeNotion()
	n := &recordingNotifier{}
	a := NewApplier(st, gh, notion, n, false, logging.Nop())
	a.now = func() time.Time { return at(40) }

	p := testPair(t, gh, "Low-Priority")
	d := priority.Decision{Direction: priority.DirectionToNotion, UpdatePriority: true, SetPriority: str("Low")}

	applied, err := a.Apply(ctx, p, d)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !applied.PriorityUpdated {
		t.Error("PriorityUpdated = false")
	}
	if v := notion.sets["t7"]; v == nil || *v != "Low" {
		t.Errorf("notion priority = %v, want Low", v)
	}

	state, _ := st.GetIssue(ctx, p.Key)
	if !state.Linked() || *state.Link.Priority != "Low" || !state.Link.EditedAt.Equal(at(40)) {
		t.Errorf("link = %+v", state.Link)
	}
	if len(n.messages) != 1 || !strings.Contains(n.messages[0], "Ship &lt;it&gt;") {
		t.Errorf("messages = %v", n.messages)
	}
}

func TestApply_ClearPriority(t *testing.T) {
	st, _ := newTestStore(t)
	gh := newFakeGitHub()
	notion := newFakeNotion()
	a := NewApplier(st, gh, notion, nil, false, logging.Nop())

	d := priority.Decision{Direction: priority.DirectionToNotion, UpdatePriority: true}
	if _, err := a.Apply(context.Background(), testPair(t, gh), d); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	v, ok := notion.sets["t7"]
	if !ok || v != nil {
		t.Errorf("notion priority = %v (set %v), want cleared", v, ok)
	}
}

func TestApply_DryRun(t *testing.T) {
	st, _ := newTestStore(t)
	gh := newFakeGitHub()
	notion := newFakeNotion()
	a := NewApplier(st, gh, notion, nil, true, logging.Nop())

	p := testPair(t, gh, "Medium-Priority")
	d := priority.Decision{
		Direction:    priority.DirectionToGitHub,
		AddLabels:    []string{"High-Priority"},
		RemoveLabels: []string{"Medium-Priority"},
	}
	if _, err := a.Apply(context.Background(), p, d); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if gh.mutations() != 0 {
		t.Errorf("dry run mutated github: %v %v", gh.adds, gh.removes)
	}
}

func TestApply_Errors(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t)
	toGitHub := priority.Decision{Direction: priority.DirectionToGitHub, AddLabels: []string{"High-Priority"}}
	toNotion := priority.Decision{Direction: priority.DirectionToNotion, UpdatePriority: true, SetPriority: str("High")}
	apiErr := errors.New("github: 500")

	t.Run("mutation failure is returned", func(t *testing.T) {
		gh := newFakeGitHub()
		gh.addErr = apiErr
		a := NewApplier(st, gh, newFakeNotion(), nil, false, logging.Nop())
		_, err := a.Apply(ctx, testPair(t, gh), toGitHub)
		if !errors.Is(err, apiErr) || errors.Is(err, ErrPersistence) {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("cache refresh failure is persistence", func(t *testing.T) {
		gh := newFakeGitHub()
		a := NewApplier(&failingStore{Store: st, failPutIssue: true}, gh, newFakeNotion(), nil, false, logging.Nop())
		_, err := a.Apply(ctx, testPair(t, gh), toGitHub)
		if !errors.Is(err, ErrPersistence) {
			t.Errorf("err = %v, want ErrPersistence", err)
		}
	})

	t.Run("link refresh failure is persistence", func(t *testing.T) {
		gh := newFakeGitHub()
		a := NewApplier(&failingStore{Store: st, failSetLink: true}, gh, newFakeNotion(), nil, false, logging.Nop())
		_, err := a.Apply(ctx, testPair(t, gh), toNotion)
		if !errors.Is(err, ErrPersistence) {
			t.Errorf("err = %v, want ErrPersistence", err)
		}
	})

	t.Run("chat failure is ignored", func(t *testing.T) {
		gh := newFakeGitHub()
		n := &recordingNotifier{err: errors.New("webhook down")}
		a := NewApplier(st, gh, newFakeNotion(), n, false, logging.Nop())
		if _, err := a.Apply(ctx, testPair(t, gh), toNotion); err != nil {
			t.Errorf("err = %v, want nil", err)
		}
	})
}

func TestApplyLabelDiff(t *testing.T) {
	got := applyLabelDiff([]string{"bug", "Low-Priority", "bug"}, []string{"High-Priority", "bug"}, []string{"Low-Priority"})
	if want := []string{"bug", "High-Priority"}; !reflect.DeepEqual(got, want) {
		t.Errorf("applyLabelDiff = %v, want %v", got, want)
	}
}
