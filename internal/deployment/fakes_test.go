package deployment

import (
	"context"
	"errors"
	"sync"

	"kryodeploy/pkg/cmdutil"
)

// fakeSource records SourceSync calls and fails the operation named in failOn.
type fakeSource struct {
	mu     sync.Mutex
	calls  []string
	head   string
	failOn string
}

func (f *fakeSource) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if f.failOn != "" && f.failOn == call {
		return errors.New(call + " failed")
	}
	return nil
}

func (f *fakeSource) Fetch(ctx context.Context, branch string) error {
	return f.record("fetch " + branch)
}

func (f *fakeSource) HardReset(ctx context.Context, branch string) error {
	return f.record("reset " + branch)
}

func (f *fakeSource) Clean(ctx context.Context) error {
	return f.record("clean")
}

func (f *fakeSource) Head(ctx context.Context) (string, error) {
	if err := f.record("head"); err != nil {
		return "", err
	}
	return f.head, nil
}

func (f *fakeSource) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// fakeRunner records commands and returns scripted exit codes.
type fakeRunner struct {
	mu       sync.Mutex
	commands [][]string
	envs     [][]string
	exitCode map[string]int
	output   string
	block    chan struct{}
}

func (f *fakeRunner) Run(ctx context.Context, opts cmdutil.ExecOptions, cmd []string) (*cmdutil.Result, error) {
	f.mu.Lock()
	f.commands = append(f.commands, cmd)
	f.envs = append(f.envs, opts.Env)
	code := f.exitCode[cmdutil.FormatCommand(cmd)]
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return &cmdutil.Result{ExitCode: -1}, ctx.Err()
		}
	}

	if opts.Output != nil && f.output != "" {
		opts.Output.Write([]byte(f.output))
	}

	result := &cmdutil.Result{ExitCode: code, Output: []byte(f.output)}
	if code != 0 {
		return result, errors.New("command failed: exit status")
	}
	return result, nil
}

func (f *fakeRunner) Commands() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.commands...)
}
