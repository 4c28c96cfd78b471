package history

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle state of a deploy task.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusRunning Status = "RUNNING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

const (
	TriggerWebhook = "webhook"
	TriggerManual  = "manual"
)

// DefaultListLimit is used when List is called without a positive limit.
const DefaultListLimit = 20

// ReasonInterrupted is recorded on tasks left unfinished by a previous process.
const ReasonInterrupted = "interrupted by restart"

// ErrNotFound is returned by Get for an unknown task id.
var ErrNotFound = errors.New("deploy not found")

// Task is a single deploy, from acceptance to its final outcome.
type Task struct {
	ID          string     `json:"id"`
	Target      string     `json:"target"`
	Status      Status     `json:"status"`
	Ref         string     `json:"ref"`
	SHA         string     `json:"sha"`
	HeadSHA     string     `json:"head_sha,omitempty"` // commit actually checked out
	Method      string     `json:"deploy_method"`
	Trigger     string     `json:"trigger"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ExitCode    *int       `json:"exit_code,omitempty"`
	LogTail     string     `json:"log_tail,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Duration is the wall time of a finished task, or zero while it runs.
func (t *Task) Duration() time.Duration {
	if t.CompletedAt == nil {
		return 0
	}
	return t.CompletedAt.Sub(t.StartedAt)
}

// Clone returns a deep copy so callers never share pointer fields.
func (t *Task) Clone() *Task {
	c := *t
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		c.CompletedAt = &completed
	}
	if t.ExitCode != nil {
		code := *t.ExitCode
		c.ExitCode = &code
	}
	return &c
}

// Store persists deploy tasks.
type Store interface {
	Create(ctx context.Context, task *Task) error
	Update(ctx context.Context, task *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	// Latest returns the most recent task for target, or nil when there is none.
	Latest(ctx context.Context, target string) (*Task, error)
	// List returns the newest tasks first. An empty target lists every target.
	List(ctx context.Context, target string, limit int) ([]*Task, error)
	// FailStale marks every PENDING or RUNNING task of target FAILED with
	// reason as its error, and returns how many it changed.
	FailStale(ctx context.Context, target, reason string) (int, error)
	Close() error
}
