// Package repos layers typed repositories over the generic store.
package repos

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rzbill/slipway/pkg/store"
	"github.com/rzbill/slipway/pkg/types"
)

// RunRepo reads and writes pipeline runs with their legs and artifacts.
type RunRepo struct {
	store store.Store
}

// NewRunRepo creates a run repository over a store.
func NewRunRepo(s store.Store) *RunRepo {
	return &RunRepo{store: s}
}

// runKey zero-pads run numbers so store key order is run order.
func runKey(number int64) string {
	return fmt.Sprintf("%012d", number)
}

func legKey(number int64, legID string) string {
	return fmt.Sprintf("%s-%s", runKey(number), legID)
}

// NextNumber allocates the next run number for a pipeline.
func (r *RunRepo) NextNumber(pipeline string) (int64, error) {
	n, err := r.store.NextSequence(pipeline)
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}

// Create persists a new run.
func (r *RunRepo) Create(ctx context.Context, run *types.Run) error {
	return r.store.Create(ctx, store.ResourceTypeRun, run.PipelineName, runKey(run.Number), run)
}

// Update replaces a persisted run.
func (r *RunRepo) Update(ctx context.Context, run *types.Run) error {
	return r.store.Update(ctx, store.ResourceTypeRun, run.PipelineName, runKey(run.Number), run)
}

// Get retrieves a run by pipeline and number.
func (r *RunRepo) Get(ctx context.Context, pipeline string, number int64) (*types.Run, error) {
	var run types.Run
	if err := r.store.Get(ctx, store.ResourceTypeRun, pipeline, runKey(number), &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// Find resolves a run reference: a run number, a run ID (or unique ID
// prefix), or empty/"last" for the most recent run.
func (r *RunRepo) Find(ctx context.Context, pipeline, ref string) (*types.Run, error) {
	if number, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return r.Get(ctx, pipeline, number)
	}

	runs, err := r.List(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("no runs recorded for pipeline %s", pipeline)
	}

	if ref == "" || ref == "last" {
		return &runs[0], nil
	}

	var matches []*types.Run
	for i := range runs {
		if strings.HasPrefix(runs[i].ID, ref) {
			matches = append(matches, &runs[i])
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return nil, fmt.Errorf("run %q not found for pipeline %s", ref, pipeline)
	default:
		return nil, fmt.Errorf("run reference %q is ambiguous (%d matches)", ref, len(matches))
	}
}

// List returns a pipeline's runs, newest first.
func (r *RunRepo) List(ctx context.Context, pipeline string) ([]types.Run, error) {
	var runs []types.Run
	if err := r.store.List(ctx, store.ResourceTypeRun, pipeline, &runs); err != nil {
		return nil, err
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Number > runs[j].Number })
	return runs, nil
}

// SaveLeg creates or updates a leg record under its run.
func (r *RunRepo) SaveLeg(ctx context.Context, run *types.Run, leg *types.LegRun) error {
	key := legKey(run.Number, leg.ID)
	err := r.store.Update(ctx, store.ResourceTypeLegRun, run.PipelineName, key, leg)
	if store.IsNotFoundError(err) {
		return r.store.Create(ctx, store.ResourceTypeLegRun, run.PipelineName, key, leg)
	}
	return err
}

// Legs returns the leg records of a run, in creation order.
func (r *RunRepo) Legs(ctx context.Context, run *types.Run) ([]types.LegRun, error) {
	var all []types.LegRun
	if err := r.store.List(ctx, store.ResourceTypeLegRun, run.PipelineName, &all); err != nil {
		return nil, err
	}

	legs := make([]types.LegRun, 0, len(all))
	for _, leg := range all {
		if leg.RunID == run.ID {
			legs = append(legs, leg)
		}
	}
	sort.Slice(legs, func(i, j int) bool { return legs[i].CreatedAt.Before(legs[j].CreatedAt) })
	return legs, nil
}

// SaveArtifact records a staged distribution file under its run.
func (r *RunRepo) SaveArtifact(ctx context.Context, run *types.Run, artifact *types.Artifact) error {
	key := legKey(run.Number, artifact.ID)
	err := r.store.Update(ctx, store.ResourceTypeArtifact, run.PipelineName, key, artifact)
	if store.IsNotFoundError(err) {
		return r.store.Create(ctx, store.ResourceTypeArtifact, run.PipelineName, key, artifact)
	}
	return err
}

// RecordEvent appends a lifecycle event to a run's history.
func (r *RunRepo) RecordEvent(ctx context.Context, run *types.Run, event *types.Event) error {
	return r.store.Create(ctx, store.ResourceTypeEvent, run.PipelineName, legKey(run.Number, event.ID), event)
}

// Events returns a run's lifecycle events in chronological order.
func (r *RunRepo) Events(ctx context.Context, run *types.Run) ([]types.Event, error) {
	var all []types.Event
	if err := r.store.List(ctx, store.ResourceTypeEvent, run.PipelineName, &all); err != nil {
		return nil, err
	}

	events := make([]types.Event, 0, len(all))
	for _, ev := range all {
		if ev.RunID == run.ID {
			events = append(events, ev)
		}
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Timestamp.Before(events[j].Timestamp) })
	return events, nil
}

// Artifacts returns the artifacts a run staged, sorted by file name.
func (r *RunRepo) Artifacts(ctx context.Context, run *types.Run) ([]types.Artifact, error) {
	var all []types.Artifact
	if err := r.store.List(ctx, store.ResourceTypeArtifact, run.PipelineName, &all); err != nil {
		return nil, err
	}

	artifacts := make([]types.Artifact, 0, len(all))
	for _, a := range all {
		if a.RunID == run.ID {
			artifacts = append(artifacts, a)
		}
	}
	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Name < artifacts[j].Name })
	return artifacts, nil
}

// Delete removes a run with its legs and artifacts.
func (r *RunRepo) Delete(ctx context.Context, pipeline string, number int64) error {
	run, err := r.Get(ctx, pipeline, number)
	if err != nil {
		return err
	}

	legs, err := r.Legs(ctx, run)
	if err != nil {
		return err
	}
	for _, leg := range legs {
		if err := r.store.Delete(ctx, store.ResourceTypeLegRun, pipeline, legKey(number, leg.ID)); err != nil {
			return err
		}
	}

	artifacts, err := r.Artifacts(ctx, run)
	if err != nil {
		return err
	}
	for _, a := range artifacts {
		if err := r.store.Delete(ctx, store.ResourceTypeArtifact, pipeline, legKey(number, a.ID)); err != nil {
			return err
		}
	}

	events, err := r.Events(ctx, run)
	if err != nil {
		return err
	}
	for _, ev := range events {
		if err := r.store.Delete(ctx, store.ResourceTypeEvent, pipeline, legKey(number, ev.ID)); err != nil {
			return err
		}
	}

	return r.store.Delete(ctx, store.ResourceTypeRun, pipeline, runKey(number))
}

// PruneOptions bound how much finished history a pipeline keeps.
// Negative limits keep everything; zero deletes every finished run of
// that class. Pending and running runs are never pruned.
type PruneOptions struct {
	KeepSucceeded int
	KeepFailed    int
}

// Prune deletes finished runs beyond the configured limits and
// returns how many runs were removed.
func (r *RunRepo) Prune(ctx context.Context, pipeline string, opts PruneOptions) (int, error) {
	runs, err := r.List(ctx, pipeline)
	if err != nil {
		return 0, err
	}

	var succeeded, failed []types.Run
	for _, run := range runs {
		switch run.Status {
		case types.RunStatusSucceeded:
			succeeded = append(succeeded, run)
		case types.RunStatusFailed, types.RunStatusCanceled:
			failed = append(failed, run)
		}
	}

	pruned := 0
	for _, victim := range append(beyond(succeeded, opts.KeepSucceeded), beyond(failed, opts.KeepFailed)...) {
		if err := r.Delete(ctx, pipeline, victim.Number); err != nil {
			return pruned, err
		}
		pruned++
	}
	return pruned, nil
}

// beyond returns the runs past the first keep entries of a
// newest-first list.
func beyond(runs []types.Run, keep int) []types.Run {
	if keep < 0 || keep >= len(runs) {
		return nil
	}
	return runs[keep:]
}
