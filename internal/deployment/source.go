package deployment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"kryodeploy/internal/security"
	"kryodeploy/pkg/cmdutil"
)

// DefaultGitTimeout bounds each git command.
const DefaultGitTimeout = 60 * time.Second

// SourceSync brings the working tree in line with the remote branch.
type SourceSync interface {
	Fetch(ctx context.Context, branch string) error
	HardReset(ctx context.Context, branch string) error
	Clean(ctx context.Context) error
	Head(ctx context.Context) (string, error)
}

// GitSync implements SourceSync with the git CLI.
type GitSync struct {
	Dir     string
	Remote  string
	Timeout time.Duration
	Runner  cmdutil.Runner
}

// NewGitSync returns a GitSync for dir tracking the "origin" remote.
func NewGitSync(dir string, runner cmdutil.Runner) *GitSync {
	if runner == nil {
		runner = cmdutil.OSRunner
	}
	return &GitSync{
		Dir:     dir,
		Remote:  "origin",
		Timeout: DefaultGitTimeout,
		Runner:  runner,
	}
}

func (g *GitSync) Fetch(ctx context.Context, branch string) error {
	if err := security.ValidateBranchName(branch); err != nil {
		return fmt.Errorf("invalid branch name: %w", err)
	}
	_, err := g.git(ctx, "fetch", "--force", g.Remote, branch)
	return err
}

func (g *GitSync) HardReset(ctx context.Context, branch string) error {
	if err := security.ValidateBranchName(branch); err != nil {
		return fmt.Errorf("invalid branch name: %w", err)
	}
	_, err := g.git(ctx, "reset", "--hard", g.Remote+"/"+branch)
	return err
}

func (g *GitSync) Clean(ctx context.Context) error {
	_, err := g.git(ctx, "clean", "-fd")
	return err
}

func (g *GitSync) Head(ctx context.Context) (string, error) {
	out, err := g.git(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (g *GitSync) git(ctx context.Context, args ...string) (string, error) {
	cmd := append([]string{"git"}, args...)
	result, err := g.Runner.Run(ctx, cmdutil.ExecOptions{
		Dir:     g.Dir,
		Timeout: g.Timeout,
	}, cmd)

	var output string
	if result != nil {
		output = string(result.Output)
	}
	if err != nil {
		return output, fmt.Errorf("%s: %w%s", cmdutil.FormatCommand(cmd), err, lastLine(output))
	}
	if !result.OK() {
		return output, fmt.Errorf("%s exited with code %d%s", cmdutil.FormatCommand(cmd), result.ExitCode, lastLine(output))
	}
	return output, nil
}

// lastLine formats the final line of git's output for an error message.
func lastLine(output string) string {
	output = strings.TrimSpace(output)
	if output == "" {
		return ""
	}
	if i := strings.LastIndexByte(output, '\n'); i >= 0 {
		output = output[i+1:]
	}
	return ": " + output
}
