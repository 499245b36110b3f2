package syncer

import (
	"context"
	"errors"
	"testing"

	"github.com/Jayphen/prisync/internal/logging"
	"github.com/Jayphen/prisync/internal/tasksource"
	"github.com/Jayphen/prisync/internal/types"
)

func TestScan_ResumesAfterCrash(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t)
	gh := newFakeGitHub()
	for i := 0; i < 100; i++ {
		gh.add("acme/api", i+1, at(i), nil)
	}

	sc := NewScanner(st, gh, 10, logging.Nop())
	key := ScanCheckpointKey("acme/api", tasksource.StateOpen)

	// Pages starting at item 41 fail.
	gh.failFrom = 40
	res, err := sc.Scan(ctx, "acme/api", tasksource.StateOpen)
	if err == nil {
		t.Fatal("expected scan to fail")
	}
	if res.Scanned != 40 {
		t.Errorf("Scanned = %d, want 40", res.Scanned)
	}

	cp, err := st.GetCheckpoint(ctx, key)
	if err != nil || cp == nil {
		t.Fatalf("GetCheckpoint: %v, %v", cp, err)
	}
	if cp.Cursor != "c39" {
		t.Errorf("Cursor = %q, want c39", cp.Cursor)
	}
	if cp.Pending != formatWatermark(at(39)) {
		t.Errorf("Pending = %q, want %q", cp.Pending, formatWatermark(at(39)))
	}
	if cp.Watermark != "" {
		t.Errorf("Watermark = %q, want empty until the walk completes", cp.Watermark)
	}

	state, _ := st.GetIssue(ctx, types.IssueRef{Owner: "acme", Repo: "api", Number: 40}.Key())
	if state == nil || state.Snapshot == nil {
		t.Error("item 40 should be cached")
	}
	state, _ = st.GetIssue(ctx, types.IssueRef{Owner: "acme", Repo: "api", Number: 41}.Key())
	if state != nil {
		t.Error("item 41 should not be cached yet")
	}

	gh.failFrom = 0
	gh.searches = nil
	res, err = sc.Scan(ctx, "acme/api", tasksource.StateOpen)
	if err != nil {
		t.Fatalf("resumed scan failed: %v", err)
	}
	if res.Scanned != 60 {
		t.Errorf("resumed Scanned = %d, want 60", res.Scanned)
	}
	if got := gh.searches[0].Cursor; got != "c39" {
		t.Errorf("resumed walk started after %q, want c39", got)
	}
	if res.Touched[0] != (types.IssueRef{Owner: "acme", Repo: "api", Number: 41}).Key() {
		t.Errorf("first touched = %q, want item 41", res.Touched[0])
	}

	cp, _ = st.GetCheckpoint(ctx, key)
	if cp.Watermark != formatWatermark(at(99)) {
		t.Errorf("Watermark = %q, want %q", cp.Watermark, formatWatermark(at(99)))
	}
	if cp.Cursor != "" || cp.Pending != "" {
		t.Errorf("completed walk left cursor %q pending %q", cp.Cursor, cp.Pending)
	}
}

func TestScan_IncrementalFromWatermark(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t)
	gh := newFakeGitHub()
	gh.add("acme/api", 1, at(1), nil)
	gh.add("acme/api", 2, at(2), nil)

	sc := NewScanner(st, gh, 50, logging.Nop())
	if _, err := sc.Scan(ctx, "acme/api", tasksource.StateOpen); err != nil {
		t.Fatalf("first scan: %v", err)
	}

	gh.add("acme/api", 3, at(5), nil)
	gh.searches = nil
	res, err := sc.Scan(ctx, "acme/api", tasksource.StateOpen)
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}

	if got := gh.searches[0].UpdatedAfter; got != formatWatermark(at(2)) {
		t.Errorf("UpdatedAfter = %q, want %q", got, formatWatermark(at(2)))
	}
	// The watermark item is inclusive and gets rescanned.
	if res.Scanned != 2 {
		t.Errorf("Scanned = %d, want 2", res.Scanned)
	}
}

func TestScan_EmptyRepository(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t)
	sc := NewScanner(st, newFakeGitHub(), 50, logging.Nop())

	res, err := sc.Scan(ctx, "acme/empty", tasksource.StateClosed)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Scanned != 0 {
		t.Errorf("Scanned = %d, want 0", res.Scanned)
	}
	cp, _ := st.GetCheckpoint(ctx, ScanCheckpointKey("acme/empty", tasksource.StateClosed))
	if cp == nil || cp.Watermark != "" || cp.Cursor != "" {
		t.Errorf("checkpoint = %+v, want empty completed walk", cp)
	}
}

func TestScan_PersistenceFailureIsFatal(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t)
	gh := newFakeGitHub()
	gh.add("acme/api", 1, at(1), nil)

	tests := []struct {
		name  string
		store *failingStore
	}{
		{"cache write", &failingStore{Store: st, failPutIssue: true}},
		{"checkpoint write", &failingStore{Store: st, failSetCheckpoint: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := NewScanner(tt.store, gh, 50, logging.Nop())
			_, err := sc.Scan(ctx, "acme/api", tasksource.StateOpen)
			if !errors.Is(err, ErrPersistence) {
				t.Errorf("err = %v, want ErrPersistence", err)
			}
			if !errors.Is(err, errStoreDown) {
				t.Errorf("err = %v, want wrapped store error", err)
			}
		})
	}
}

func TestLaterWatermark(t *testing.T) {
	tests := []struct {
		a, b, want string
	}{
		{"", "", ""},
		{"", "2026-03-01T12:00:00Z", "2026-03-01T12:00:00Z"},
		{"2026-03-01T12:00:00Z", "", "2026-03-01T12:00:00Z"},
		{"2026-03-01T12:00:00Z", "2026-03-01T11:59:59Z", "2026-03-01T12:00:00Z"},
		{"2026-03-01T12:00:00Z", "2026-03-02T00:00:00Z", "2026-03-02T00:00:00Z"},
	}
	for _, tt := range tests {
		if got := laterWatermark(tt.a, tt.b); got != tt.want {
			t.Errorf("laterWatermark(%q, %q) = %q, want %q", tt.a, tt.b, got, tt.want)
		}
	}
}
