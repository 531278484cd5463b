package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rzbill/slipway/pkg/executor"
	"github.com/rzbill/slipway/pkg/executor/docker"
	"github.com/rzbill/slipway/pkg/executor/host"
	"github.com/rzbill/slipway/pkg/log"
	"github.com/rzbill/slipway/pkg/store"
	"github.com/rzbill/slipway/pkg/types"
)

// defaultPipelineFiles are searched, in order, when no pipeline file
// argument is given.
var defaultPipelineFiles = []string{"slipway.yaml", "slipway.yml"}

// resolvePipelineFile picks the pipeline file to operate on: the
// explicit argument when given, otherwise the first default name found
// in the working directory.
func resolvePipelineFile(args []string) (string, error) {
	if len(args) > 0 {
		if _, err := os.Stat(args[0]); err != nil {
			return "", fmt.Errorf("pipeline file %s is not accessible: %w", args[0], err)
		}
		return args[0], nil
	}

	for _, name := range defaultPipelineFiles {
		if _, err := os.Stat(name); err == nil {
			return name, nil
		}
	}

	return "", fmt.Errorf("no pipeline file found; pass one explicitly or create %s", defaultPipelineFiles[0])
}

// loadPipelines parses and validates a pipeline file.
func loadPipelines(filename string) ([]*types.Pipeline, error) {
	pf, err := types.ParsePipelineFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filename, err)
	}
	if err := pf.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}

	pipelines, err := pf.GetPipelines()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	if len(pipelines) == 0 {
		return nil, fmt.Errorf("%s defines no pipelines", filename)
	}
	return pipelines, nil
}

// currentGitBranch asks git for the checked-out branch of dir. It
// falls back to main when dir is not a repository or HEAD is detached.
func currentGitBranch(dir string) string {
	cmd := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "main"
	}

	branch := strings.TrimSpace(string(out))
	if branch == "" || branch == "HEAD" {
		return "main"
	}
	return branch
}

// currentGitCommit asks git for the HEAD commit of dir, empty when dir
// is not a repository.
func currentGitCommit(dir string) string {
	cmd := exec.Command("git", "rev-parse", "HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// parseRunReason maps the --event flag onto a run reason.
func parseRunReason(event string) (types.RunReason, error) {
	switch event {
	case "", "push":
		return types.RunReasonPush, nil
	case "manual":
		return types.RunReasonManual, nil
	case "schedule":
		return types.RunReasonSchedule, nil
	default:
		return "", fmt.Errorf("unknown event %q (expected push, manual, or schedule)", event)
	}
}

// buildExecutor constructs the step executor selected by flag or config.
func buildExecutor(name string, logger log.Logger) (executor.Executor, error) {
	if name == "" {
		name = cfg.Executor
	}

	switch name {
	case "host", "":
		return host.New(host.WithLogger(logger)), nil
	case "docker":
		return docker.New(logger, cfg.DockerConfig())
	default:
		return nil, fmt.Errorf("unknown executor %q (expected host or docker)", name)
	}
}

// historyPath is where the badger run history lives.
func historyPath() string {
	return filepath.Join(cfg.DataDir, "history")
}

// runsPath is where per-run staging directories are created.
func runsPath() string {
	return filepath.Join(cfg.DataDir, "runs")
}

// openHistoryStore opens the persistent run history store.
func openHistoryStore(logger log.Logger) (store.Store, error) {
	s := store.NewBadgerStore(logger)
	if err := s.Open(historyPath()); err != nil {
		return nil, fmt.Errorf("failed to open run history at %s: %w", historyPath(), err)
	}
	return s, nil
}
