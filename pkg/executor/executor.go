// Package executor defines the execution environments legs run in.
package executor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// StepExec is one step handed to an executor, with variables already
// expanded.
type StepExec struct {
	// Index of the step within its job, used for log file ordering
	Index int

	// Step name
	Name string

	// DisplayName shown in run output
	DisplayName string

	// Script text run through the platform shell
	Script string

	// WorkingDir relative to the workspace; empty means the workspace root
	WorkingDir string

	// Env for this step, layered over the leg env
	Env map[string]string

	// Timeout for the step; zero means no limit
	Timeout time.Duration
}

// LegContext carries everything an executor needs to run one leg.
type LegContext struct {
	// RunID of the owning run
	RunID string

	// Pipeline name
	Pipeline string

	// JobName of the owning job
	JobName string

	// LegName qualified as job/leg
	LegName string

	// Image the leg asked for (vm-image alias or container ref)
	Image string

	// WorkspaceDir is the project checkout the steps operate on
	WorkspaceDir string

	// StagingDir is per-leg scratch space: step logs, materialized
	// credentials, collected artifacts
	StagingDir string

	// Env resolved for the leg (pipeline, job and matrix variables)
	Env map[string]string

	// Console receives live step output
	Console io.Writer
}

// Key identifies a leg within executor bookkeeping.
func (lc *LegContext) Key() string {
	return lc.RunID + "/" + lc.LegName
}

// LogsDir is where per-step logs land.
func (lc *LegContext) LogsDir() string {
	return filepath.Join(lc.StagingDir, "logs")
}

// ArtifactsDir is where staged artifacts land.
func (lc *LegContext) ArtifactsDir() string {
	return filepath.Join(lc.StagingDir, "artifacts")
}

// Executor runs the steps of a leg in some environment.
type Executor interface {
	// Name identifies the executor in run records and logs
	Name() string

	// CanRun reports whether this executor can satisfy the leg's image
	CanRun(image string) bool

	// Prepare sets the leg's environment up before the first step
	Prepare(ctx context.Context, leg *LegContext) error

	// RunStep executes one step and returns its exit code. The error
	// return is for infrastructure failures only; a non-zero exit is
	// not an error.
	RunStep(ctx context.Context, leg *LegContext, step StepExec) (int, error)

	// Cleanup tears the leg's environment down, also on failure
	Cleanup(ctx context.Context, leg *LegContext) error
}

// Image families for vm-image aliases.
const (
	FamilyLinux   = "linux"
	FamilyDarwin  = "darwin"
	FamilyWindows = "windows"
)

// IsContainerRef reports whether an image names a container reference
// rather than a vm-image alias. Registry refs carry a slash or a tag
// colon; aliases like ubuntu-latest carry neither.
func IsContainerRef(image string) bool {
	return strings.ContainsAny(image, "/:")
}

// ImageFamily maps an image to the OS family it needs. Container refs
// count as linux; unknown aliases default to linux as well.
func ImageFamily(image string) string {
	if image == "" {
		return ""
	}

	lower := strings.ToLower(image)
	switch {
	case strings.HasPrefix(lower, "macos"):
		return FamilyDarwin
	case strings.HasPrefix(lower, "windows"), strings.HasPrefix(lower, "vs20"):
		return FamilyWindows
	default:
		return FamilyLinux
	}
}

var unsafeLogChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// OpenStepLog creates the per-step log file under the leg's logs dir.
func OpenStepLog(leg *LegContext, step StepExec) (*os.File, error) {
	if err := os.MkdirAll(leg.LogsDir(), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	name := step.Name
	if name == "" {
		name = "step"
	}
	name = unsafeLogChars.ReplaceAllString(name, "-")

	path := filepath.Join(leg.LogsDir(), fmt.Sprintf("%02d-%s.log", step.Index+1, name))
	return os.Create(path)
}

// MergeEnv layers maps left to right into KEY=VALUE strings, later
// maps overriding earlier ones.
func MergeEnv(base []string, layers ...map[string]string) []string {
	merged := make(map[string]string, len(base))
	order := make([]string, 0, len(base))

	add := func(key, value string) {
		if _, ok := merged[key]; !ok {
			order = append(order, key)
		}
		merged[key] = value
	}

	for _, kv := range base {
		if i := strings.IndexByte(kv, '='); i > 0 {
			add(kv[:i], kv[i+1:])
		}
	}
	for _, layer := range layers {
		keys := make([]string, 0, len(layer))
		for k := range layer {
			keys = append(keys, k)
		}
		// Stable ordering keeps env diffs readable in step logs.
		sort.Strings(keys)
		for _, k := range keys {
			add(k, layer[k])
		}
	}

	out := make([]string, 0, len(order))
	for _, k := range order {
		out = append(out, k+"="+merged[k])
	}
	return out
}
