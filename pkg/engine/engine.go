// Package engine owns the pipeline run lifecycle: trigger evaluation,
// job ordering, matrix fan-out, step execution and run history.
package engine

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rzbill/slipway/pkg/executor"
	"github.com/rzbill/slipway/pkg/executor/host"
	"github.com/rzbill/slipway/pkg/log"
	"github.com/rzbill/slipway/pkg/store"
	"github.com/rzbill/slipway/pkg/store/repos"
	"github.com/rzbill/slipway/pkg/tasks"
	"github.com/rzbill/slipway/pkg/trigger"
	"github.com/rzbill/slipway/pkg/types"
)

// Console receives run progress for interactive rendering. The run
// command installs a renderer; schedule mode and tests stay silent.
type Console interface {
	// RunStarted is called once the run record is persisted as Running.
	RunStarted(run *types.Run, pipeline *types.Pipeline)

	// LegStarted is called when a leg transitions to Running.
	LegStarted(run *types.Run, leg *types.LegRun)

	// LegOutput returns the writer live step output is teed to, or nil.
	LegOutput(leg *types.LegRun) io.Writer

	// StepFinished is called after every step record settles.
	StepFinished(run *types.Run, leg *types.LegRun, step *types.StepRun)

	// LegFinished is called when a leg reaches a terminal status,
	// including legs that were skipped without starting.
	LegFinished(run *types.Run, leg *types.LegRun)

	// RunFinished is called once with the final run record and all legs.
	RunFinished(run *types.Run, legs []*types.LegRun)

	// Notice reports out-of-band information, like a trigger mismatch.
	Notice(format string, args ...interface{})
}

// SilentConsole discards all progress reporting.
type SilentConsole struct{}

var _ Console = SilentConsole{}

func (SilentConsole) RunStarted(*types.Run, *types.Pipeline)                {}
func (SilentConsole) LegStarted(*types.Run, *types.LegRun)                  {}
func (SilentConsole) LegOutput(*types.LegRun) io.Writer                     { return nil }
func (SilentConsole) StepFinished(*types.Run, *types.LegRun, *types.StepRun) {}
func (SilentConsole) LegFinished(*types.Run, *types.LegRun)                 {}
func (SilentConsole) RunFinished(*types.Run, []*types.LegRun)               {}
func (SilentConsole) Notice(string, ...interface{})                         {}

// Engine runs pipelines and records their history.
type Engine struct {
	logger      log.Logger
	store       store.Store
	repo        *repos.RunRepo
	executor    executor.Executor
	connections tasks.ConnectionLookup
	console     Console
	runsDir     string
	pythonDirs  []string
}

// Option configures the engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(e *Engine) {
		e.logger = logger.WithComponent("engine")
	}
}

// WithStore sets the run history store.
func WithStore(s store.Store) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithExecutor sets the executor legs run through.
func WithExecutor(exec executor.Executor) Option {
	return func(e *Engine) {
		e.executor = exec
	}
}

// WithConnections sets the index connection resolver tasks use.
func WithConnections(lookup tasks.ConnectionLookup) Option {
	return func(e *Engine) {
		e.connections = lookup
	}
}

// WithConsole sets the progress renderer.
func WithConsole(c Console) Option {
	return func(e *Engine) {
		e.console = c
	}
}

// WithRunsDir sets the directory leg staging dirs are created under.
func WithRunsDir(dir string) Option {
	return func(e *Engine) {
		e.runsDir = dir
	}
}

// WithPythonDirs sets extra directories the use-python task searches
// for interpreters.
func WithPythonDirs(dirs []string) Option {
	return func(e *Engine) {
		e.pythonDirs = dirs
	}
}

// New creates an engine. Without options it runs legs on the host and
// keeps history in memory.
func New(opts ...Option) *Engine {
	e := &Engine{
		logger:  log.GetDefaultLogger().WithComponent("engine"),
		console: SilentConsole{},
		runsDir: filepath.Join(os.TempDir(), "slipway", "runs"),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.store == nil {
		e.store = store.NewMemoryStore()
	}
	e.repo = repos.NewRunRepo(e.store)

	if e.executor == nil {
		e.executor = host.New(host.WithLogger(e.logger))
	}

	return e
}

// RunOptions adjust a single Run call.
type RunOptions struct {
	// Reason records what started the run; defaults to push
	Reason types.RunReason

	// Force starts the run even when the trigger does not match
	Force bool

	// Job restricts execution to one job; jobs it depends on are
	// treated as succeeded
	Job string

	// Leg restricts execution to matrix legs with this name
	Leg string

	// MaxParallel caps concurrent legs per job on top of the
	// pipeline's own strategy limit; zero applies no extra cap
	MaxParallel int

	// Workspace is the project checkout steps run against; defaults
	// to the current directory
	Workspace string
}

// RunResult is what a Run call produced.
type RunResult struct {
	// Run record; nil when the trigger did not match
	Run *types.Run

	// Legs in creation order
	Legs []*types.LegRun

	// Decision is the trigger evaluation outcome
	Decision trigger.Decision

	// Triggered reports whether a run was started
	Triggered bool
}
