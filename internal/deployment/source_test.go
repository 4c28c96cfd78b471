package deployment

import (
	"context"
	"strings"
	"testing"

	"kryodeploy/pkg/cmdutil"
)

func TestGitSync_Commands(t *testing.T) {
	var got []string
	var dirs []string
	runner := cmdutil.RunnerFunc(func(ctx context.Context, opts cmdutil.ExecOptions, cmd []string) (*cmdutil.Result, error) {
		got = append(got, strings.Join(cmd, " "))
		dirs = append(dirs, opts.Dir)
		return &cmdutil.Result{ExitCode: 0, Output: []byte("abc123def\n")}, nil
	})

	g := NewGitSync("/srv/kryonix", runner)
	ctx := context.Background()

	if err := g.Fetch(ctx, "main"); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if err := g.HardReset(ctx, "main"); err != nil {
		t.Fatalf("HardReset() error = %v", err)
	}
	if err := g.Clean(ctx); err != nil {
		t.Fatalf("Clean() error = %v", err)
	}
	head, err := g.Head(ctx)
	if err != nil {
		t.Fatalf("Head() error = %v", err)
	}
	if head != "abc123def" {
		t.Errorf("Head() = %q, want trimmed sha", head)
	}

	want := []string{
		"git fetch --force origin main",
		"git reset --hard origin/main",
		"git clean -fd",
		"git rev-parse HEAD",
	}
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("Commands = %v, want %v", got, want)
	}
	for _, dir := range dirs {
		if dir != "/srv/kryonix" {
			t.Errorf("Expected commands to run in the workdir, got %q", dir)
		}
	}
}

func TestGitSync_RejectsUnsafeBranch(t *testing.T) {
	called := false
	runner := cmdutil.RunnerFunc(func(ctx context.Context, opts cmdutil.ExecOptions, cmd []string) (*cmdutil.Result, error) {
		called = true
		return &cmdutil.Result{}, nil
	})
	g := NewGitSync("/srv/kryonix", runner)

	for _, branch := range []string{"--upload-pack=evil", "main;rm", "../main", ""} {
		if err := g.Fetch(context.Background(), branch); err == nil {
			t.Errorf("Expected branch %q to be rejected", branch)
		}
		if err := g.HardReset(context.Background(), branch); err == nil {
			t.Errorf("Expected branch %q to be rejected", branch)
		}
	}
	if called {
		t.Error("git should never run for an unsafe branch")
	}
}

func TestGitSync_ErrorIncludesOutput(t *testing.T) {
	runner := cmdutil.RunnerFunc(func(ctx context.Context, opts cmdutil.ExecOptions, cmd []string) (*cmdutil.Result, error) {
		return &cmdutil.Result{ExitCode: 128, Output: []byte("remote: counting\nfatal: couldn't find remote ref main\n")}, nil
	})
	g := NewGitSync("/srv/kryonix", runner)

	err := g.Fetch(context.Background(), "main")
	if err == nil {
		t.Fatal("Expected fetch to fail")
	}
	if !strings.Contains(err.Error(), "code 128") || !strings.Contains(err.Error(), "couldn't find remote ref") {
		t.Errorf("Unexpected error: %v", err)
	}
}
