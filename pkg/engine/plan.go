package engine

import (
	"errors"
	"fmt"

	"github.com/dominikbraun/graph"

	"github.com/rzbill/slipway/pkg/matrix"
	"github.com/rzbill/slipway/pkg/trigger"
	"github.com/rzbill/slipway/pkg/types"
)

// JobPlan is one job's slot in a plan, in execution order.
type JobPlan struct {
	// Job name
	Name string

	// DisplayName shown in plan output
	DisplayName string

	// DependsOn lists the jobs that gate this one
	DependsOn []string

	// Legs the job expands to, in document order
	Legs []matrix.Leg

	// MaxParallel is the leg concurrency bound for this job
	MaxParallel int
}

// Plan is the dry-run view of what Run would do for an event.
type Plan struct {
	// Pipeline name
	Pipeline string

	// Decision is the trigger evaluation outcome
	Decision trigger.Decision

	// Jobs in execution order
	Jobs []JobPlan
}

// Legs counts the legs across all planned jobs.
func (p *Plan) Legs() int {
	n := 0
	for _, job := range p.Jobs {
		n += len(job.Legs)
	}
	return n
}

// Plan evaluates the trigger and resolves job order and matrix legs
// without touching the store or any executor.
func (e *Engine) Plan(pipeline *types.Pipeline, ev trigger.PushEvent) (*Plan, error) {
	ordered, err := orderJobs(pipeline)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		Pipeline: pipeline.Name,
		Decision: trigger.Matches(pipeline.Trigger, ev),
	}

	for _, job := range ordered {
		legs, err := legsFor(pipeline, job)
		if err != nil {
			return nil, err
		}

		plan.Jobs = append(plan.Jobs, JobPlan{
			Name:        job.Name,
			DisplayName: job.DisplayName,
			DependsOn:   append([]string(nil), job.DependsOn...),
			Legs:        legs,
			MaxParallel: matrix.MaxParallel(job, len(legs)),
		})
	}

	return plan, nil
}

// orderJobs resolves dependsOn into a stable topological order. Jobs
// with no ordering constraint between them keep document order.
func orderJobs(pipeline *types.Pipeline) ([]*types.JobSpec, error) {
	byName := make(map[string]*types.JobSpec, len(pipeline.Jobs))
	docOrder := make(map[string]int, len(pipeline.Jobs))

	g := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())
	for i := range pipeline.Jobs {
		job := &pipeline.Jobs[i]
		if _, exists := byName[job.Name]; exists {
			return nil, fmt.Errorf("duplicate job name %q", job.Name)
		}
		byName[job.Name] = job
		docOrder[job.Name] = i
		if err := g.AddVertex(job.Name); err != nil {
			return nil, fmt.Errorf("job graph: %w", err)
		}
	}

	for i := range pipeline.Jobs {
		job := &pipeline.Jobs[i]
		for _, dep := range job.DependsOn {
			if _, ok := byName[dep]; !ok {
				return nil, fmt.Errorf("job %q depends on unknown job %q", job.Name, dep)
			}
			err := g.AddEdge(dep, job.Name)
			switch {
			case errors.Is(err, graph.ErrEdgeCreatesCycle):
				return nil, fmt.Errorf("dependency cycle between jobs %q and %q", dep, job.Name)
			case errors.Is(err, graph.ErrEdgeAlreadyExists):
				// Duplicate dependsOn entries are harmless.
			case err != nil:
				return nil, fmt.Errorf("job graph: %w", err)
			}
		}
	}

	names, err := graph.StableTopologicalSort(g, func(a, b string) bool {
		return docOrder[a] < docOrder[b]
	})
	if err != nil {
		return nil, fmt.Errorf("ordering jobs: %w", err)
	}

	ordered := make([]*types.JobSpec, 0, len(names))
	for _, name := range names {
		ordered = append(ordered, byName[name])
	}
	return ordered, nil
}

// legsFor expands a job's matrix, inheriting the pipeline pool when
// the job does not pick its own environment.
func legsFor(pipeline *types.Pipeline, job *types.JobSpec) ([]matrix.Leg, error) {
	j := *job
	if j.Pool == nil && j.Container == "" {
		j.Pool = pipeline.Pool
	}
	return matrix.Expand(&j)
}
