package types

import "testing"

func TestParseIssueURL(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    IssueRef
		wantErr bool
	}{
		{
			name: "issue",
			raw:  "https://github.com/acme/widgets/issues/42",
			want: IssueRef{Owner: "acme", Repo: "widgets", Number: 42},
		},
		{
			name: "pull request",
			raw:  "https://github.com/acme/widgets/pull/7",
			want: IssueRef{Owner: "acme", Repo: "widgets", Number: 7, Pull: true},
		},
		{
			name: "trailing segments and fragment",
			raw:  "https://github.com/acme/widgets/pull/7/files#diff-1",
			want: IssueRef{Owner: "acme", Repo: "widgets", Number: 7, Pull: true},
		},
		{
			name: "surrounding whitespace",
			raw:  "  https://github.com/acme/widgets/issues/3 ",
			want: IssueRef{Owner: "acme", Repo: "widgets", Number: 3},
		},
		{name: "other host", raw: "https://gitlab.com/acme/widgets/issues/1", wantErr: true},
		{name: "repo only", raw: "https://github.com/acme/widgets", wantErr: true},
		{name: "discussions", raw: "https://github.com/acme/widgets/discussions/1", wantErr: true},
		{name: "non numeric", raw: "https://github.com/acme/widgets/issues/abc", wantErr: true},
		{name: "zero", raw: "https://github.com/acme/widgets/issues/0", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIssueURL(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseIssueURL(%q) expected error, got %+v", tt.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseIssueURL(%q) unexpected error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("ParseIssueURL(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestIssueKey(t *testing.T) {
	a, err := IssueKey("https://github.com/Acme/Widgets/pull/9")
	if err != nil {
		t.Fatalf("IssueKey failed: %v", err)
	}
	b, err := IssueKey("https://github.com/acme/widgets/issues/9")
	if err != nil {
		t.Fatalf("IssueKey failed: %v", err)
	}
	if a != b {
		t.Errorf("keys differ: %q vs %q", a, b)
	}
	if a != "https://github.com/acme/widgets/issues/9" {
		t.Errorf("unexpected key %q", a)
	}
}

func TestIssueStateLinked(t *testing.T) {
	var nilState *IssueState
	if nilState.Linked() {
		t.Error("nil state should not be linked")
	}
	if (&IssueState{URL: "u"}).Linked() {
		t.Error("state without link should not be linked")
	}
	if !(&IssueState{URL: "u", Link: &Link{TaskID: "t1"}}).Linked() {
		t.Error("state with task id should be linked")
	}
}
