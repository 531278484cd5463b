package tasks

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rzbill/slipway/pkg/log"
)

// UsePythonTask resolves the interpreter a leg's later steps run with.
// Inputs: version (required, e.g. "3.7").
type UsePythonTask struct{}

var _ Task = &UsePythonTask{}

func (t *UsePythonTask) Name() string {
	return "use-python"
}

func (t *UsePythonTask) Run(ctx context.Context, tc *TaskContext) error {
	version := strings.TrimSpace(tc.input("version", ""))
	if version == "" {
		return fmt.Errorf("use-python: input version is required")
	}

	tc.Export("python.version", version)

	// Container legs get their interpreter from the image.
	if tc.ExecutorName == "docker" {
		tc.logger().Info("Python version requested for container leg",
			log.Str("version", version))
		return nil
	}

	interpreter, err := findInterpreter(version, tc.PythonDirs)
	if err != nil {
		return fmt.Errorf("use-python: %w", err)
	}

	tc.Export("python.interpreter", interpreter)
	prependPath(tc, filepath.Dir(interpreter))

	tc.logger().Info("Resolved Python interpreter",
		log.Str("version", version),
		log.Str("interpreter", interpreter))
	return nil
}

// findInterpreter searches PATH and the configured candidate dirs for
// the most specific interpreter name matching version.
func findInterpreter(version string, extraDirs []string) (string, error) {
	names := interpreterNames(version)

	for _, name := range names {
		if p, err := exec.LookPath(name); err == nil {
			return filepath.Abs(p)
		}
	}

	for _, dir := range extraDirs {
		for _, name := range names {
			for _, candidate := range []string{
				filepath.Join(dir, name),
				filepath.Join(dir, name+".exe"),
			} {
				info, err := os.Stat(candidate)
				if err != nil || info.IsDir() {
					continue
				}
				return filepath.Abs(candidate)
			}
		}
	}

	return "", fmt.Errorf("no interpreter found for Python %s (tried %s)",
		version, strings.Join(names, ", "))
}

// interpreterNames lists candidate executable names from most to least
// specific: python3.7, python3, python.
func interpreterNames(version string) []string {
	var names []string
	seen := map[string]bool{}
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}

	add("python" + version)
	if major, _, ok := strings.Cut(version, "."); ok {
		add("python" + major)
	}
	add("python3")
	add("python")
	return names
}

// prependPath puts dir in front of the leg's PATH so bare python (and
// pip, twine) resolve to the chosen installation.
func prependPath(tc *TaskContext, dir string) {
	if tc.Env == nil {
		return
	}
	current := tc.Env["PATH"]
	if current == "" {
		current = os.Getenv("PATH")
	}
	if current == "" {
		tc.Env["PATH"] = dir
		return
	}
	tc.Env["PATH"] = dir + string(os.PathListSeparator) + current
}
