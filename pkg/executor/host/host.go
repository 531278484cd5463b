// Package host runs leg steps directly on the local machine.
package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rzbill/slipway/pkg/executor"
	"github.com/rzbill/slipway/pkg/log"
)

// Validate that Executor implements the executor interface.
var _ executor.Executor = &Executor{}

// Executor runs steps through the platform shell on the host.
type Executor struct {
	logger log.Logger
}

// Option configures the host executor.
type Option func(*Executor)

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// New creates a host executor.
func New(opts ...Option) *Executor {
	e := &Executor{
		logger: log.GetDefaultLogger().WithComponent("host-executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name identifies the executor.
func (e *Executor) Name() string {
	return "host"
}

// CanRun accepts an empty image and vm-image aliases matching the
// local OS. Container refs need the docker executor.
func (e *Executor) CanRun(image string) bool {
	if image == "" {
		return true
	}
	if executor.IsContainerRef(image) {
		return false
	}
	return executor.ImageFamily(image) == runtime.GOOS
}

// Prepare verifies the workspace and creates the leg's staging layout.
func (e *Executor) Prepare(ctx context.Context, leg *executor.LegContext) error {
	if _, err := os.Stat(leg.WorkspaceDir); err != nil {
		return fmt.Errorf("workspace %s is not accessible: %w", leg.WorkspaceDir, err)
	}

	for _, dir := range []string{leg.LogsDir(), leg.ArtifactsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	e.logger.Debug("Prepared host leg",
		log.Str("leg", leg.LegName),
		log.Str("workspace", leg.WorkspaceDir))
	return nil
}

// RunStep executes one step through the platform shell, teeing output
// to the step log file and the leg console.
func (e *Executor) RunStep(ctx context.Context, leg *executor.LegContext, step executor.StepExec) (int, error) {
	runCtx := ctx
	if step.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}

	shell, args := shellCommand(step.Script)
	cmd := exec.CommandContext(runCtx, shell, args...)
	cmd.Dir = filepath.Join(leg.WorkspaceDir, step.WorkingDir)
	cmd.Env = executor.MergeEnv(os.Environ(), leg.Env, step.Env)

	logFile, err := executor.OpenStepLog(leg, step)
	if err != nil {
		return -1, err
	}
	defer logFile.Close()

	out := io.Writer(logFile)
	if leg.Console != nil {
		out = io.MultiWriter(logFile, leg.Console)
	}
	cmd.Stdout = out
	cmd.Stderr = out

	setProcGroup(cmd)
	cmd.WaitDelay = 10 * time.Second

	e.logger.Debug("Running step",
		log.Str("leg", leg.LegName),
		log.Str("step", step.Name),
		log.Str("shell", shell))

	err = cmd.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if runCtx.Err() == context.DeadlineExceeded {
			return exitErr.ExitCode(), fmt.Errorf("step %q timed out after %s", step.Name, step.Timeout)
		}
		if ctx.Err() != nil {
			return exitErr.ExitCode(), ctx.Err()
		}
		return exitErr.ExitCode(), nil
	}

	return -1, fmt.Errorf("failed to run step %q: %w", step.Name, err)
}

// Cleanup has nothing to tear down on the host.
func (e *Executor) Cleanup(ctx context.Context, leg *executor.LegContext) error {
	e.logger.Debug("Host leg cleanup", log.Str("leg", leg.LegName))
	return nil
}
