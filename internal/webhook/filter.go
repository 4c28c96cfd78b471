package webhook

import "strings"

const (
	EventPush = "push"

	ReasonAccepted     = "accepted"
	ReasonInvalidEvent = "invalid_event"
	ReasonInvalidRef   = "invalid_ref"
)

// DefaultBranches are the production branches a push must target.
var DefaultBranches = []string{"main", "master"}

// Decision is the outcome of filtering a delivery.
type Decision struct {
	Proceed bool   `json:"proceed"`
	Reason  string `json:"reason"`
}

// Filter decides whether a delivery represents a push to a production branch.
type Filter struct {
	// Branches lists accepted branch names (without refs/heads/).
	Branches []string

	// RequireEvent rejects deliveries that carry no event type header.
	// When false a missing header is treated as a push.
	RequireEvent bool
}

// NewFilter returns a filter accepting the given branches, or
// DefaultBranches when none are given.
func NewFilter(branches ...string) *Filter {
	if len(branches) == 0 {
		branches = DefaultBranches
	}
	return &Filter{Branches: branches}
}

// CheckEvent filters on the event type alone.
func (f *Filter) CheckEvent(event string) Decision {
	if event == "" && !f.RequireEvent {
		return Decision{Proceed: true, Reason: ReasonAccepted}
	}
	if event != EventPush {
		return Decision{Proceed: false, Reason: ReasonInvalidEvent}
	}
	return Decision{Proceed: true, Reason: ReasonAccepted}
}

// Evaluate filters on event type and ref.
func (f *Filter) Evaluate(event, ref string) Decision {
	if d := f.CheckEvent(event); !d.Proceed {
		return d
	}
	if !f.MatchesRef(ref) {
		return Decision{Proceed: false, Reason: ReasonInvalidRef}
	}
	return Decision{Proceed: true, Reason: ReasonAccepted}
}

// MatchesRef checks if a git ref points at one of the accepted branches.
func (f *Filter) MatchesRef(ref string) bool {
	branch, ok := strings.CutPrefix(ref, "refs/heads/")
	if !ok {
		return false
	}
	for _, b := range f.Branches {
		if branch == b {
			return true
		}
	}
	return false
}

// BranchFromRef strips the refs/heads/ prefix.
func BranchFromRef(ref string) string {
	return strings.TrimPrefix(ref, "refs/heads/")
}
