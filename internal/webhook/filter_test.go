package webhook

import "testing"

func TestFilter_Evaluate(t *testing.T) {
	f := NewFilter()

	testCases := []struct {
		name   string
		event  string
		ref    string
		want   Decision
	}{
		{"push to main", "push", "refs/heads/main", Decision{true, ReasonAccepted}},
		{"push to master", "push", "refs/heads/master", Decision{true, ReasonAccepted}},
		{"missing event treated as push", "", "refs/heads/main", Decision{true, ReasonAccepted}},
		{"feature branch", "push", "refs/heads/feature-x", Decision{false, ReasonInvalidRef}},
		{"tag", "push", "refs/tags/v1.0.0", Decision{false, ReasonInvalidRef}},
		{"bare branch name", "push", "main", Decision{false, ReasonInvalidRef}},
		{"empty ref", "push", "", Decision{false, ReasonInvalidRef}},
		{"main prefix only", "push", "refs/heads/main-old", Decision{false, ReasonInvalidRef}},
		{"pull request event", "pull_request", "refs/heads/main", Decision{false, ReasonInvalidEvent}},
		{"ping event", "ping", "", Decision{false, ReasonInvalidEvent}},
		{"event case matters", "Push", "refs/heads/main", Decision{false, ReasonInvalidEvent}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := f.Evaluate(tc.event, tc.ref)
			if got != tc.want {
				t.Errorf("Evaluate(%q, %q) = %+v, want %+v", tc.event, tc.ref, got, tc.want)
			}
		})
	}
}

func TestFilter_EventCheckedBeforeRef(t *testing.T) {
	got := NewFilter().Evaluate("issues", "refs/heads/feature-x")
	if got.Reason != ReasonInvalidEvent {
		t.Errorf("expected invalid_event to take precedence, got %q", got.Reason)
	}
}

func TestFilter_RequireEvent(t *testing.T) {
	f := NewFilter()
	f.RequireEvent = true

	if got := f.Evaluate("", "refs/heads/main"); got.Proceed || got.Reason != ReasonInvalidEvent {
		t.Errorf("expected missing event to be rejected, got %+v", got)
	}
	if got := f.Evaluate("push", "refs/heads/main"); !got.Proceed {
		t.Errorf("expected push to be accepted, got %+v", got)
	}
}

func TestFilter_CustomBranches(t *testing.T) {
	f := NewFilter("production")

	if !f.MatchesRef("refs/heads/production") {
		t.Error("expected custom branch to match")
	}
	if f.MatchesRef("refs/heads/main") {
		t.Error("default branches should not apply when custom branches are set")
	}
}

func TestBranchFromRef(t *testing.T) {
	if got := BranchFromRef("refs/heads/main"); got != "main" {
		t.Errorf("BranchFromRef() = %q", got)
	}
	if got := BranchFromRef("main"); got != "main" {
		t.Errorf("BranchFromRef() = %q", got)
	}
}
