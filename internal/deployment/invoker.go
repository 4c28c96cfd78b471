package deployment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"kryodeploy/internal/healthcheck"
	"kryodeploy/internal/history"
	"kryodeploy/internal/notify"
	"kryodeploy/internal/security"
	"kryodeploy/pkg/cmdutil"

	"github.com/google/uuid"
)

// ErrDeployInProgress is returned by Start while another deploy of the same
// target holds the lock.
var ErrDeployInProgress = errors.New("deployment already in progress")

// persistTimeout bounds store writes made after the deploy context expired.
const persistTimeout = 10 * time.Second

// Request asks for a deploy of ref. SHA is the commit the caller expects.
type Request struct {
	Ref     string
	SHA     string
	Trigger string
}

// Metrics receives deploy lifecycle events.
type Metrics interface {
	DeployStarted()
	DeployFinished(status string, duration time.Duration)
}

// Prober checks that the service came back after a deploy.
type Prober func(ctx context.Context, url string, attempts int, interval time.Duration) error

// Invoker runs deploys of one target in the background, one at a time.
type Invoker struct {
	Target  string
	Workdir string
	Plan    Plan

	Source   SourceSync
	Runner   cmdutil.Runner
	Store    history.Store
	Locks    *LockManager
	HostLock *HostLock
	Logger   *slog.Logger
	Metrics  Metrics
	Reporter notify.Reporter
	Prober   Prober

	// Secrets are redacted from persisted output and error messages.
	Secrets []string

	running atomic.Bool
	wg      sync.WaitGroup
}

// NewInvoker returns an invoker with git sync, os/exec commands and the
// HTTP health probe wired in.
func NewInvoker(target, workdir string, plan Plan, store history.Store, logger *slog.Logger) *Invoker {
	return &Invoker{
		Target:   target,
		Workdir:  workdir,
		Plan:     plan,
		Source:   NewGitSync(workdir, cmdutil.OSRunner),
		Runner:   cmdutil.OSRunner,
		Store:    store,
		Locks:    NewLockManager(),
		Logger:   logger,
		Reporter: notify.Noop{},
		Prober:   healthcheck.Probe,
	}
}

// InProgress reports whether a deploy is currently running.
func (i *Invoker) InProgress() bool {
	return i.running.Load()
}

// Start records a PENDING task and runs the deploy in a goroutine. It
// returns as soon as the task is persisted.
func (i *Invoker) Start(ctx context.Context, req Request) (*history.Task, error) {
	if err := security.ValidateRef(req.Ref); err != nil {
		return nil, fmt.Errorf("invalid ref: %w", err)
	}
	// The sync step rewrites the tree, so a plan that cannot run is refused up front.
	if _, err := i.Plan.Steps(); err != nil {
		return nil, fmt.Errorf("invalid deploy plan: %w", err)
	}

	release, err := i.acquire()
	if err != nil {
		return nil, err
	}

	task := &history.Task{
		ID:        uuid.NewString(),
		Target:    i.Target,
		Status:    history.StatusPending,
		Ref:       req.Ref,
		SHA:       req.SHA,
		Method:    i.Plan.Method,
		Trigger:   req.Trigger,
		StartedAt: time.Now().UTC(),
	}
	if err := i.Store.Create(ctx, task); err != nil {
		release()
		return nil, fmt.Errorf("failed to record deploy: %w", err)
	}
	accepted := task.Clone()

	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		defer release()
		i.run(task)
	}()

	return accepted, nil
}

// Wait blocks until every started deploy has finished.
func (i *Invoker) Wait() {
	i.wg.Wait()
}

func (i *Invoker) acquire() (func(), error) {
	if !i.Locks.TryLock(i.Target) {
		return nil, ErrDeployInProgress
	}

	if i.HostLock != nil {
		ok, err := i.HostLock.TryLock()
		if err != nil {
			i.Locks.Unlock(i.Target)
			return nil, err
		}
		if !ok {
			i.Locks.Unlock(i.Target)
			return nil, ErrDeployInProgress
		}
	}

	i.running.Store(true)
	return func() {
		i.running.Store(false)
		if i.HostLock != nil {
			if err := i.HostLock.Unlock(); err != nil {
				i.logger().Error("Failed to release host lock", "path", i.HostLock.Path(), "error", err)
			}
		}
		i.Locks.Unlock(i.Target)
	}, nil
}

func (i *Invoker) run(task *history.Task) {
	ctx, cancel := context.WithTimeout(context.Background(), i.Plan.timeout())
	defer cancel()

	logger := i.logger().With("deploy_id", task.ID, "target", task.Target, "ref", task.Ref)

	task.Status = history.StatusRunning
	i.persist(task, logger)
	if i.Metrics != nil {
		i.Metrics.DeployStarted()
	}
	i.report(ctx, task, logger)
	logger.Info("Deploy started", "method", task.Method, "trigger", task.Trigger, "sha", task.SHA)

	// Output is redacted before it reaches the tail, so truncation can
	// never keep the end of a secret.
	tail := cmdutil.NewTailBuffer(LogTailBytes)
	out := cmdutil.NewRedactor(tail, i.Secrets)
	exitCode, err := i.execute(ctx, task, out, logger)
	if flushErr := out.Flush(); flushErr != nil {
		logger.Warn("Failed to flush deploy output", "error", flushErr)
	}

	completed := time.Now().UTC()
	task.CompletedAt = &completed
	task.ExitCode = &exitCode
	task.LogTail = i.redact(tail.String())

	if err != nil {
		task.Status = history.StatusFailed
		task.Error = i.redact(err.Error())
		logger.Error("Deploy failed",
			"error", task.Error,
			"exit_code", exitCode,
			"duration_ms", task.Duration().Milliseconds())
	} else {
		task.Status = history.StatusSuccess
		logger.Info("Deploy succeeded",
			"head_sha", task.HeadSHA,
			"duration_ms", task.Duration().Milliseconds())
	}

	i.persist(task, logger)
	if i.Metrics != nil {
		i.Metrics.DeployFinished(string(task.Status), task.Duration())
	}

	// The deploy context may already be spent.
	reportCtx, reportCancel := context.WithTimeout(context.Background(), persistTimeout)
	defer reportCancel()
	i.report(reportCtx, task, logger)
}

// execute runs sync, plan steps and the health probe. The returned exit
// code is that of the last command run, or -1 when the failure did not
// come from a command.
func (i *Invoker) execute(ctx context.Context, task *history.Task, out io.Writer, logger *slog.Logger) (int, error) {
	branch := strings.TrimPrefix(task.Ref, "refs/heads/")

	if err := i.sync(ctx, branch, task, out, logger); err != nil {
		return -1, err
	}

	steps, err := i.Plan.Steps()
	if err != nil {
		return -1, err
	}

	env := []string{
		"KRYODEPLOY_DEPLOY_ID=" + task.ID,
		"KRYODEPLOY_REF=" + task.Ref,
		"KRYODEPLOY_BRANCH=" + branch,
		"KRYODEPLOY_SHA=" + task.HeadSHA,
	}

	for _, step := range steps {
		fmt.Fprintln(out, "$ "+cmdutil.FormatCommand(step.Command))

		result, err := i.Runner.Run(ctx, cmdutil.ExecOptions{
			Dir:    i.Workdir,
			Env:    env,
			Output: out,
		}, step.Command)

		exitCode := -1
		var duration time.Duration
		if result != nil {
			exitCode = result.ExitCode
			duration = result.Duration
		}
		logger.Info("Deploy step finished",
			"step", step.Name,
			"exit_code", exitCode,
			"duration_ms", duration.Milliseconds())

		if err != nil {
			return exitCode, fmt.Errorf("step %s failed: %w", step.Name, err)
		}
		if !result.OK() {
			return exitCode, fmt.Errorf("step %s exited with code %d", step.Name, exitCode)
		}
	}

	if i.Plan.HealthURL != "" {
		if err := i.probe(ctx, out, logger); err != nil {
			return -1, err
		}
	}

	return 0, nil
}

func (i *Invoker) sync(ctx context.Context, branch string, task *history.Task, out io.Writer, logger *slog.Logger) error {
	start := time.Now()
	fmt.Fprintf(out, "$ sync %s\n", branch)

	steps := []struct {
		name string
		fn   func() error
	}{
		{"fetch", func() error { return i.Source.Fetch(ctx, branch) }},
		{"reset", func() error { return i.Source.HardReset(ctx, branch) }},
		{"clean", func() error { return i.Source.Clean(ctx) }},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			fmt.Fprintln(out, err.Error())
			return fmt.Errorf("source %s failed: %w", s.name, err)
		}
	}

	head, err := i.Source.Head(ctx)
	if err != nil {
		fmt.Fprintln(out, err.Error())
		return fmt.Errorf("source head failed: %w", err)
	}
	task.HeadSHA = head
	fmt.Fprintln(out, "HEAD is now "+head)

	if task.SHA != "" && !strings.HasPrefix(head, task.SHA) {
		// A newer push landed between the delivery and the fetch.
		logger.Warn("Checked out commit differs from requested", "requested_sha", task.SHA, "head_sha", head)
	}

	logger.Info("Deploy step finished",
		"step", "sync",
		"head_sha", head,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (i *Invoker) probe(ctx context.Context, out io.Writer, logger *slog.Logger) error {
	if i.Plan.HealthDelay > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("health check: %w", ctx.Err())
		case <-time.After(i.Plan.HealthDelay):
		}
	}

	fmt.Fprintln(out, "$ health "+i.Plan.HealthURL)
	start := time.Now()
	prober := i.Prober
	if prober == nil {
		prober = healthcheck.Probe
	}

	err := prober(ctx, i.Plan.HealthURL, i.Plan.HealthAttempts, i.Plan.HealthInterval)
	logger.Info("Deploy step finished",
		"step", "health",
		"healthy", err == nil,
		"duration_ms", time.Since(start).Milliseconds())
	if err != nil {
		fmt.Fprintln(out, err.Error())
		return fmt.Errorf("health check: %w", err)
	}
	return nil
}

func (i *Invoker) persist(task *history.Task, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := i.Store.Update(ctx, task); err != nil {
		logger.Error("Failed to persist deploy", "status", task.Status, "error", err)
	}
}

func (i *Invoker) report(ctx context.Context, task *history.Task, logger *slog.Logger) {
	if i.Reporter == nil {
		return
	}
	if err := i.Reporter.Report(ctx, task); err != nil {
		logger.Warn("Failed to report deploy status", "status", task.Status, "error", err)
	}
}

func (i *Invoker) redact(s string) string {
	return string(cmdutil.SanitizeOutput([]byte(s), i.Secrets))
}

func (i *Invoker) logger() *slog.Logger {
	if i.Logger == nil {
		return slog.Default()
	}
	return i.Logger
}
