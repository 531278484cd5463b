// Package tasks implements the built-in pipeline tasks. A task step
// runs in-process instead of through the leg's shell, but shares the
// leg's variable table, environment, and staging directory.
package tasks

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rzbill/slipway/pkg/log"
	"github.com/rzbill/slipway/pkg/pypi"
	"github.com/rzbill/slipway/pkg/vars"
)

// Task is one built-in step implementation.
type Task interface {
	// Name is the identifier used in a step's task field.
	Name() string

	// Run executes the task against the leg's context.
	Run(ctx context.Context, tc *TaskContext) error
}

var registry = map[string]Task{
	"use-python": &UsePythonTask{},
	"index-auth": &IndexAuthTask{},
	"publish":    &PublishTask{},
}

// Lookup returns the task registered under name.
func Lookup(name string) (Task, bool) {
	t, ok := registry[name]
	return t, ok
}

// Names lists the registered task names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ConnectionLookup resolves a configured index connection by name into
// upload-ready repository settings.
type ConnectionLookup func(name string) (pypi.RepositoryConfig, error)

// TaskContext is the leg-side view a task runs against. The engine
// fills it per step; tasks mutate Vars and Env through Export.
type TaskContext struct {
	// Inputs are the step's task inputs, already macro-expanded
	Inputs map[string]string

	// Vars is the leg's live variable table
	Vars *vars.Table

	// Env is the leg's environment; exported values land here too
	Env map[string]string

	// WorkspaceDir is the project checkout on the host
	WorkspaceDir string

	// StagingDir is the leg's scratch dir on the host
	StagingDir string

	// WorkspaceMount is the workspace path as steps see it. Empty when
	// steps see host paths directly.
	WorkspaceMount string

	// StagingMount is the staging path as steps see it
	StagingMount string

	// ExecutorName identifies the executor running the leg
	ExecutorName string

	// PythonDirs lists extra directories to search for interpreters
	PythonDirs []string

	// Connection resolves configured index connections
	Connection ConnectionLookup

	Logger log.Logger
}

// Export publishes a runtime variable: later steps see it both as a
// $(name) macro and as an environment variable.
func (tc *TaskContext) Export(name, value string) {
	if tc.Vars != nil {
		tc.Vars.Set(name, value)
	}
	if tc.Env != nil {
		tc.Env[vars.EnvName(name)] = value
	}
}

// StepPath maps a host path under the workspace or staging dir onto
// the path steps see. Identity when the leg runs directly on the host.
func (tc *TaskContext) StepPath(hostPath string) string {
	if p, ok := remapPath(hostPath, tc.StagingDir, tc.StagingMount); ok {
		return p
	}
	if p, ok := remapPath(hostPath, tc.WorkspaceDir, tc.WorkspaceMount); ok {
		return p
	}
	return hostPath
}

// HostPath is the inverse of StepPath: it maps a step-visible path
// back onto the host filesystem so in-process tasks can read it.
func (tc *TaskContext) HostPath(stepPath string) string {
	if p, ok := remapPath(stepPath, tc.StagingMount, tc.StagingDir); ok {
		return p
	}
	if p, ok := remapPath(stepPath, tc.WorkspaceMount, tc.WorkspaceDir); ok {
		return p
	}
	return stepPath
}

func remapPath(p, fromRoot, toRoot string) (string, bool) {
	if fromRoot == "" || toRoot == "" || fromRoot == toRoot {
		return "", false
	}
	if p == fromRoot {
		return toRoot, true
	}
	for _, sep := range []string{"/", "\\"} {
		if strings.HasPrefix(p, fromRoot+sep) {
			rel := strings.TrimPrefix(p, fromRoot+sep)
			return toRoot + "/" + strings.ReplaceAll(rel, "\\", "/"), true
		}
	}
	return "", false
}

// input returns a task input, falling back to a default when absent
// or blank.
func (tc *TaskContext) input(name, fallback string) string {
	if v, ok := tc.Inputs[name]; ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

// boolInput parses a boolean task input.
func (tc *TaskContext) boolInput(name string, fallback bool) (bool, error) {
	raw, ok := tc.Inputs[name]
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, fmt.Errorf("input %s: %q is not a boolean", name, raw)
	}
	return v, nil
}

func (tc *TaskContext) logger() log.Logger {
	if tc.Logger != nil {
		return tc.Logger
	}
	return log.GetDefaultLogger()
}
