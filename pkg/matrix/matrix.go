// Package matrix expands jobs into their per-leg executions.
package matrix

import (
	"fmt"

	"github.com/rzbill/slipway/pkg/types"
)

// Leg is one expanded execution of a job. A job with a three-entry
// matrix produces three legs; a job without a strategy produces one.
type Leg struct {
	// Leg name, from the matrix entry or the job itself
	Name string

	// JobName is the job this leg belongs to
	JobName string

	// Image the leg runs on, resolved from matrix vars or the job pool
	Image string

	// Vars are the matrix variable assignments for this leg
	Vars map[string]string
}

// QualifiedName returns the job/leg composite used in run records.
func (l Leg) QualifiedName() string {
	if l.Name == l.JobName {
		return l.JobName
	}
	return l.JobName + "/" + l.Name
}

// Expand fans a job out into its matrix legs, in document order.
//
// The image for a leg comes from its matrix variables ("image" or
// "imageName"), then the job's container, then the job's pool. A job
// without a matrix expands to a single leg named after the job.
func Expand(job *types.JobSpec) ([]Leg, error) {
	if job == nil {
		return nil, fmt.Errorf("cannot expand a nil job")
	}

	if job.Strategy == nil {
		return []Leg{implicitLeg(job)}, nil
	}

	if err := job.Strategy.Validate(); err != nil {
		return nil, fmt.Errorf("job %q: %w", job.Name, err)
	}

	if len(job.Strategy.Matrix.Legs) == 0 {
		return nil, fmt.Errorf("job %q declares a strategy with an empty matrix", job.Name)
	}

	legs := make([]Leg, 0, len(job.Strategy.Matrix.Legs))
	for _, entry := range job.Strategy.Matrix.Legs {
		vars := make(map[string]string, len(entry.Variables))
		for k, v := range entry.Variables {
			vars[k] = v
		}

		legs = append(legs, Leg{
			Name:    entry.Name,
			JobName: job.Name,
			Image:   resolveImage(job, vars),
			Vars:    vars,
		})
	}

	return legs, nil
}

// MaxParallel returns the concurrency bound for a job's legs. Zero or a
// missing strategy means all legs run at once.
func MaxParallel(job *types.JobSpec, legCount int) int {
	if job == nil || job.Strategy == nil || job.Strategy.MaxParallel <= 0 {
		return legCount
	}
	if job.Strategy.MaxParallel > legCount {
		return legCount
	}
	return job.Strategy.MaxParallel
}

func implicitLeg(job *types.JobSpec) Leg {
	return Leg{
		Name:    job.Name,
		JobName: job.Name,
		Image:   resolveImage(job, nil),
		Vars:    map[string]string{},
	}
}

// resolveImage picks the execution image for a leg. Matrix variables
// win so a pipeline can pool on $(imageName) per leg.
func resolveImage(job *types.JobSpec, legVars map[string]string) string {
	if img, ok := legVars["image"]; ok && img != "" {
		return img
	}
	if img, ok := legVars["imageName"]; ok && img != "" {
		return img
	}
	if job.Container != "" {
		return job.Container
	}
	if job.Pool != nil {
		return job.Pool.VMImage
	}
	return ""
}
