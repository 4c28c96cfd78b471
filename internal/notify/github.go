// Package notify reports deploy outcomes back to GitHub.
package notify

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"kryodeploy/internal/history"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// DefaultStatusContext labels the commit statuses this service posts.
const DefaultStatusContext = "kryodeploy/deploy"

// Reporter publishes the state of a deploy task.
type Reporter interface {
	Report(ctx context.Context, task *history.Task) error
}

// Noop discards reports. It is used when GitHub is not configured.
type Noop struct{}

func (Noop) Report(context.Context, *history.Task) error { return nil }

// GitHubReporter posts commit statuses for deployed commits.
type GitHubReporter struct {
	client *github.Client
	owner  string
	repo   string

	// Context is the status context shown on the commit.
	Context string

	// PublicURL, when set, links each status to /deploys/{id} on this host.
	PublicURL string
}

// New returns a GitHubReporter when both token and repository are set,
// otherwise a Noop.
func New(token, repository, publicURL string) (Reporter, error) {
	if token == "" || repository == "" {
		return Noop{}, nil
	}
	r, err := NewGitHubReporter(NewGitHubClient(token), repository)
	if err != nil {
		return nil, err
	}
	r.PublicURL = strings.TrimRight(publicURL, "/")
	return r, nil
}

// NewGitHubClient creates an authenticated GitHub client
func NewGitHubClient(token string) *github.Client {
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(context.Background(), ts)

	return github.NewClient(tc)
}

// NewGitHubReporter wraps an existing client for an "owner/name" repository.
func NewGitHubReporter(client *github.Client, repository string) (*GitHubReporter, error) {
	owner, repo, err := ParseRepository(repository)
	if err != nil {
		return nil, err
	}
	return &GitHubReporter{
		client:  client,
		owner:   owner,
		repo:    repo,
		Context: DefaultStatusContext,
	}, nil
}

// ParseRepository splits an "owner/name" repository string.
func ParseRepository(repository string) (owner, repo string, err error) {
	parts := strings.Split(repository, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid owner/repo format: %s", repository)
	}
	return parts[0], parts[1], nil
}

// Report posts a commit status matching the task's state. Tasks without a
// known commit are skipped.
func (r *GitHubReporter) Report(ctx context.Context, task *history.Task) error {
	sha := task.HeadSHA
	if sha == "" {
		sha = task.SHA
	}
	if sha == "" {
		return nil
	}

	state, description := statusFor(task)
	status := &github.RepoStatus{
		State:       github.String(state),
		Description: github.String(description),
		Context:     github.String(r.Context),
	}
	if r.PublicURL != "" {
		status.TargetURL = github.String(r.PublicURL + "/deploys/" + url.PathEscape(task.ID))
	}

	if _, _, err := r.client.Repositories.CreateStatus(ctx, r.owner, r.repo, sha, status); err != nil {
		return fmt.Errorf("creating commit status: %w", err)
	}
	return nil
}

// EnsureWebhook registers a push webhook pointing at hookURL unless one
// already exists. It reports whether a hook was created.
func (r *GitHubReporter) EnsureWebhook(ctx context.Context, hookURL, secret string) (bool, error) {
	hooks, _, err := r.client.Repositories.ListHooks(ctx, r.owner, r.repo, nil)
	if err != nil {
		return false, fmt.Errorf("listing webhooks: %w", err)
	}

	for _, hook := range hooks {
		if existing, ok := hook.Config["url"].(string); ok && existing == hookURL {
			return false, nil
		}
	}

	hook := &github.Hook{
		Events: []string{"push"},
		Active: github.Bool(true),
		Config: map[string]interface{}{
			"url":          hookURL,
			"content_type": "json",
			"secret":       secret,
			"insecure_ssl": "0",
		},
	}
	if _, _, err := r.client.Repositories.CreateHook(ctx, r.owner, r.repo, hook); err != nil {
		return false, fmt.Errorf("creating webhook: %w", err)
	}
	return true, nil
}

func statusFor(task *history.Task) (state, description string) {
	switch task.Status {
	case history.StatusSuccess:
		return "success", "Deployed " + shortRef(task.Ref)
	case history.StatusFailed:
		description = "Deploy failed"
		if task.Error != "" {
			description += ": " + task.Error
		}
		// GitHub rejects descriptions longer than 140 characters.
		if len(description) > 140 {
			description = description[:137] + "..."
		}
		return "failure", description
	default:
		return "pending", "Deploy in progress"
	}
}

func shortRef(ref string) string {
	return strings.TrimPrefix(ref, "refs/heads/")
}
