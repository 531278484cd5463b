package tasks

import (
	"context"
	"fmt"

	"github.com/rzbill/slipway/pkg/log"
	"github.com/rzbill/slipway/pkg/pypi"
)

// IndexAuthTask materializes index credentials for later steps.
// Inputs: connection (required, a configured index connection name).
type IndexAuthTask struct{}

var _ Task = &IndexAuthTask{}

func (t *IndexAuthTask) Name() string {
	return "index-auth"
}

func (t *IndexAuthTask) Run(ctx context.Context, tc *TaskContext) error {
	name := tc.input("connection", "")
	if name == "" {
		return fmt.Errorf("index-auth: input connection is required")
	}
	if tc.Connection == nil {
		return fmt.Errorf("index-auth: no index connections configured; add a connections entry to slipfile.yaml")
	}

	repo, err := tc.Connection(name)
	if err != nil {
		return fmt.Errorf("index-auth: %w; configure it under connections in slipfile.yaml or with `slipway connections add`", err)
	}

	written, err := pypi.Materialize(tc.StagingDir, repo)
	if err != nil {
		return fmt.Errorf("index-auth: %w", err)
	}

	// Steps reference the file through $(PYPIRC_PATH); export the path
	// as the executor's filesystem shows it.
	exported := tc.StepPath(written)
	tc.Export("PYPIRC_PATH", exported)

	tc.logger().Info("Materialized index credentials",
		log.Str("connection", name),
		log.Str("repository", repo.Name),
		log.Str("path", exported))
	return nil
}
