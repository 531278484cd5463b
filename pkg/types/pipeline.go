package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

var _ Spec = (*PipelineSpec)(nil)

// PipelineSpec is the YAML specification for a release pipeline.
type PipelineSpec struct {
	// Human-readable name for the pipeline (required)
	Name string `json:"name" yaml:"name"`

	// Optional description shown in listings
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Trigger controls which branch pushes start a run
	Trigger *TriggerSpec `json:"trigger,omitempty" yaml:"trigger,omitempty"`

	// Schedules defines cron-based runs
	Schedules []ScheduleSpec `json:"schedules,omitempty" yaml:"schedules,omitempty"`

	// Pool selects the default execution environment for all jobs
	Pool *PoolSpec `json:"pool,omitempty" yaml:"pool,omitempty"`

	// Strategy defines the matrix expansion applied to implicit steps
	Strategy *StrategySpec `json:"strategy,omitempty" yaml:"strategy,omitempty"`

	// Variables available to every job via $(name) macros
	Variables map[string]string `json:"variables,omitempty" yaml:"variables,omitempty"`

	// Jobs to run; when empty, Steps forms a single implicit job
	Jobs []JobSpec `json:"jobs,omitempty" yaml:"jobs,omitempty"`

	// Steps for the implicit single job form
	Steps []StepSpec `json:"steps,omitempty" yaml:"steps,omitempty"`

	// Artifacts lists workspace-relative globs staged after each leg
	Artifacts []string `json:"artifacts,omitempty" yaml:"artifacts,omitempty"`

	// Skip indicates this spec should be ignored by pipeline file parsing
	Skip bool `json:"skip,omitempty" yaml:"skip,omitempty"`

	// rawNode holds the original YAML mapping node for structural validation
	rawNode *yaml.Node `json:"-" yaml:"-"`
}

// Implement Spec interface for PipelineSpec
func (p *PipelineSpec) GetName() string { return p.Name }
func (p *PipelineSpec) Kind() string    { return "Pipeline" }

// TriggerSpec controls which pushes start a pipeline run.
//
// Three YAML forms are accepted:
//
//	trigger: none
//	trigger: [main, releases/*]
//	trigger:
//	  branches:
//	    include: [main]
//	    exclude: [wip/*]
type TriggerSpec struct {
	// Branches filters pushes by branch name glob
	Branches BranchFilter `json:"branches,omitempty" yaml:"branches,omitempty"`

	// Disabled marks the pipeline as manual-only (trigger: none)
	Disabled bool `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// BranchFilter holds include/exclude branch glob lists.
type BranchFilter struct {
	// Include lists branch globs that start a run
	Include []string `json:"include,omitempty" yaml:"include,omitempty"`

	// Exclude lists branch globs that never start a run
	Exclude []string `json:"exclude,omitempty" yaml:"exclude,omitempty"`
}

// UnmarshalYAML accepts the scalar, sequence, and mapping trigger forms.
func (t *TriggerSpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Value == "none" || node.Value == "" {
			t.Disabled = true
			return nil
		}
		t.Branches.Include = []string{node.Value}
		return nil
	case yaml.SequenceNode:
		var branches []string
		if err := node.Decode(&branches); err != nil {
			return fmt.Errorf("invalid trigger branch list at line %d: %w", node.Line, err)
		}
		t.Branches.Include = branches
		return nil
	case yaml.MappingNode:
		type plain struct {
			Branches BranchFilter `yaml:"branches"`
		}
		var p plain
		if err := node.Decode(&p); err != nil {
			return fmt.Errorf("invalid trigger at line %d: %w", node.Line, err)
		}
		t.Branches = p.Branches
		return nil
	default:
		return fmt.Errorf("invalid trigger at line %d", node.Line)
	}
}

// ScheduleSpec defines a cron-based pipeline run.
type ScheduleSpec struct {
	// Cron expression in standard five-field format (required)
	Cron string `json:"cron" yaml:"cron"`

	// DisplayName shown in listings and logs
	DisplayName string `json:"displayName,omitempty" yaml:"displayName,omitempty"`

	// Branches filters which branch the scheduled run uses
	Branches BranchFilter `json:"branches,omitempty" yaml:"branches,omitempty"`

	// Always fires even when the commit has not changed since the last
	// successful scheduled run
	Always bool `json:"always,omitempty" yaml:"always,omitempty"`
}

// PoolSpec selects the execution environment for a job.
type PoolSpec struct {
	// VMImage names an image alias resolved through the images config;
	// the reserved alias "host" runs steps directly on the local machine
	VMImage string `json:"vmImage,omitempty" yaml:"vmImage,omitempty"`
}

// JobSpec is a named group of steps with its own matrix and dependencies.
type JobSpec struct {
	// Job identifier, unique within the pipeline (required)
	Name string `json:"name" yaml:"name"`

	// DisplayName shown in run output
	DisplayName string `json:"displayName,omitempty" yaml:"displayName,omitempty"`

	// DependsOn lists jobs that must succeed before this one starts
	DependsOn StringList `json:"dependsOn,omitempty" yaml:"dependsOn,omitempty"`

	// Pool overrides the pipeline-level execution environment
	Pool *PoolSpec `json:"pool,omitempty" yaml:"pool,omitempty"`

	// Container runs the job's steps inside the given image
	Container string `json:"container,omitempty" yaml:"container,omitempty"`

	// Strategy defines the matrix expansion for this job
	Strategy *StrategySpec `json:"strategy,omitempty" yaml:"strategy,omitempty"`

	// Variables available to this job's steps via $(name) macros
	Variables map[string]string `json:"variables,omitempty" yaml:"variables,omitempty"`

	// Steps executed in order (required)
	Steps []StepSpec `json:"steps" yaml:"steps"`

	// Artifacts adds glob patterns staged after this job's legs succeed,
	// on top of the pipeline-level globs
	Artifacts []string `json:"artifacts,omitempty" yaml:"artifacts,omitempty"`

	// TimeoutMinutes bounds the whole job; zero means no limit
	TimeoutMinutes int `json:"timeoutMinutes,omitempty" yaml:"timeoutMinutes,omitempty"`
}

// StepSpec is a single unit of work inside a job.
type StepSpec struct {
	// Step identifier, unique within the job
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// DisplayName shown in run output
	DisplayName string `json:"displayName,omitempty" yaml:"displayName,omitempty"`

	// Script is an inline shell script run with the platform shell
	Script string `json:"script,omitempty" yaml:"script,omitempty"`

	// Task names a built-in task (use-python, index-auth, publish)
	Task string `json:"task,omitempty" yaml:"task,omitempty"`

	// Inputs holds task-specific parameters
	Inputs map[string]string `json:"inputs,omitempty" yaml:"inputs,omitempty"`

	// Env sets additional environment variables for the step
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// WorkingDirectory overrides the workspace directory for the step
	WorkingDirectory string `json:"workingDirectory,omitempty" yaml:"workingDirectory,omitempty"`

	// Condition controls whether the step runs (succeeded, always, failed)
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`

	// Enabled gates the step; disabled steps are recorded as skipped
	Enabled *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`

	// ContinueOnError keeps the leg running after this step fails
	ContinueOnError bool `json:"continueOnError,omitempty" yaml:"continueOnError,omitempty"`

	// TimeoutMinutes bounds the step; zero means no limit
	TimeoutMinutes int `json:"timeoutMinutes,omitempty" yaml:"timeoutMinutes,omitempty"`
}

// IsEnabled reports whether the step should execute. Steps are enabled
// unless explicitly disabled.
func (s *StepSpec) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Label returns the most descriptive identifier available for run output.
func (s *StepSpec) Label(index int) string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	if s.Name != "" {
		return s.Name
	}
	if s.Task != "" {
		return s.Task
	}
	return fmt.Sprintf("step %d", index+1)
}

// StringList accepts both a scalar and a sequence in YAML.
type StringList []string

// UnmarshalYAML allows dependsOn: build as well as dependsOn: [a, b].
func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Value == "" {
			*l = nil
			return nil
		}
		*l = StringList{node.Value}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return fmt.Errorf("invalid string list at line %d: %w", node.Line, err)
		}
		*l = StringList(items)
		return nil
	default:
		return fmt.Errorf("invalid string list at line %d", node.Line)
	}
}

// Validate validates the pipeline specification.
func (p *PipelineSpec) Validate() error {
	// Structural validation against original YAML node when available
	if err := p.validateStructureFromNode(); err != nil {
		return err
	}

	if p.Name == "" {
		return NewValidationError("pipeline name is required")
	}

	if len(p.Jobs) == 0 && len(p.Steps) == 0 {
		return NewValidationError("pipeline must define jobs or steps")
	}

	if len(p.Jobs) > 0 && len(p.Steps) > 0 {
		return NewValidationError("pipeline cannot define both jobs and top-level steps")
	}

	for i := range p.Schedules {
		expr := strings.TrimSpace(p.Schedules[i].Cron)
		if expr == "" {
			return NewValidationError("schedule cron expression is required")
		}
		if _, err := cron.ParseStandard(expr); err != nil {
			return NewValidationError(fmt.Sprintf("invalid cron expression %q: %v", expr, err))
		}
	}

	if p.Strategy != nil {
		if err := p.Strategy.Validate(); err != nil {
			return WrapValidationError(err, "invalid strategy")
		}
	}

	seen := make(map[string]bool)
	for i := range p.Jobs {
		job := &p.Jobs[i]
		if err := job.Validate(); err != nil {
			return WrapValidationError(err, "invalid job %q", job.Name)
		}
		if seen[job.Name] {
			return NewValidationError(fmt.Sprintf("duplicate job name %q", job.Name))
		}
		seen[job.Name] = true
	}

	// Dependencies must reference jobs defined in this pipeline
	for i := range p.Jobs {
		for _, dep := range p.Jobs[i].DependsOn {
			if !seen[dep] {
				return NewValidationError(fmt.Sprintf("job %q depends on unknown job %q", p.Jobs[i].Name, dep))
			}
		}
	}

	for i := range p.Steps {
		if err := p.Steps[i].Validate(); err != nil {
			return WrapValidationError(err, "invalid step %q", p.Steps[i].Label(i))
		}
	}

	return nil
}

// Validate validates a job specification.
func (j *JobSpec) Validate() error {
	if j.Name == "" {
		return NewValidationError("job name is required")
	}

	if len(j.Steps) == 0 {
		return NewValidationError("job must define at least one step")
	}

	if j.Strategy != nil {
		if err := j.Strategy.Validate(); err != nil {
			return WrapValidationError(err, "invalid strategy")
		}
	}

	if j.TimeoutMinutes < 0 {
		return NewValidationError("job timeout cannot be negative")
	}

	for i := range j.Steps {
		if err := j.Steps[i].Validate(); err != nil {
			return WrapValidationError(err, "invalid step %q", j.Steps[i].Label(i))
		}
	}

	return nil
}

// Validate validates a step specification.
func (s *StepSpec) Validate() error {
	hasScript := strings.TrimSpace(s.Script) != ""
	hasTask := s.Task != ""

	if !hasScript && !hasTask {
		return NewValidationError("step must define a script or a task")
	}

	if hasScript && hasTask {
		return NewValidationError("step cannot define both a script and a task")
	}

	if s.Condition != "" {
		switch s.Condition {
		case ConditionSucceeded, ConditionAlways, ConditionFailed, ConditionSucceededOrFailed:
		default:
			return NewValidationError(fmt.Sprintf("unknown step condition %q", s.Condition))
		}
	}

	if s.TimeoutMinutes < 0 {
		return NewValidationError("step timeout cannot be negative")
	}

	return nil
}

// Step conditions
const (
	// ConditionSucceeded runs the step only while the leg is passing (default)
	ConditionSucceeded = "succeeded"

	// ConditionAlways runs the step regardless of earlier failures
	ConditionAlways = "always"

	// ConditionFailed runs the step only after an earlier step failed
	ConditionFailed = "failed"

	// ConditionSucceededOrFailed runs the step unless the leg was canceled
	ConditionSucceededOrFailed = "succeededOrFailed"
)

// validateStructureFromNode validates unknown fields using the captured raw YAML node.
// If no raw node is available (e.g., constructed programmatically), it is a no-op.
func (p *PipelineSpec) validateStructureFromNode() error {
	if p.rawNode == nil {
		return nil
	}

	validPipelineFields := map[string]bool{
		"name":        true,
		"description": true,
		"trigger":     true,
		"schedules":   true,
		"pool":        true,
		"strategy":    true,
		"variables":   true,
		"jobs":        true,
		"steps":       true,
		"artifacts":   true,
		"skip":        true,
	}

	validJobFields := map[string]bool{
		"name":           true,
		"displayName":    true,
		"dependsOn":      true,
		"pool":           true,
		"container":      true,
		"strategy":       true,
		"variables":      true,
		"steps":          true,
		"artifacts":      true,
		"timeoutMinutes": true,
	}

	validStepFields := map[string]bool{
		"name":             true,
		"displayName":      true,
		"script":           true,
		"task":             true,
		"inputs":           true,
		"env":              true,
		"workingDirectory": true,
		"condition":        true,
		"enabled":          true,
		"continueOnError":  true,
		"timeoutMinutes":   true,
	}

	var errors []string
	if p.rawNode.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(p.rawNode.Content); i += 2 {
			fieldKey := p.rawNode.Content[i]
			fieldVal := p.rawNode.Content[i+1]
			if !validPipelineFields[fieldKey.Value] {
				errors = append(errors, fmt.Sprintf("unknown field '%s' in pipeline specification at line %d", fieldKey.Value, fieldKey.Line))
				continue
			}
			if fieldKey.Value == "jobs" && fieldVal.Kind == yaml.SequenceNode {
				collectJobFieldErrors(fieldVal, validJobFields, validStepFields, &errors)
			}
			if fieldKey.Value == "steps" && fieldVal.Kind == yaml.SequenceNode {
				collectStepFieldErrors(fieldVal, validStepFields, &errors)
			}
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("validation errors:\n%s", strings.Join(errors, "\n"))
	}
	return nil
}

// collectJobFieldErrors walks job mapping nodes looking for unknown fields.
func collectJobFieldErrors(jobs *yaml.Node, validJobFields, validStepFields map[string]bool, errors *[]string) {
	for _, job := range jobs.Content {
		if job.Kind != yaml.MappingNode {
			continue
		}
		for i := 0; i+1 < len(job.Content); i += 2 {
			key := job.Content[i]
			val := job.Content[i+1]
			if !validJobFields[key.Value] {
				*errors = append(*errors, fmt.Sprintf("unknown field '%s' in job specification at line %d", key.Value, key.Line))
				continue
			}
			if key.Value == "steps" && val.Kind == yaml.SequenceNode {
				collectStepFieldErrors(val, validStepFields, errors)
			}
		}
	}
}

// collectStepFieldErrors walks step mapping nodes looking for unknown fields.
func collectStepFieldErrors(steps *yaml.Node, validStepFields map[string]bool, errors *[]string) {
	for _, step := range steps.Content {
		if step.Kind != yaml.MappingNode {
			continue
		}
		for i := 0; i+1 < len(step.Content); i += 2 {
			key := step.Content[i]
			if !validStepFields[key.Value] {
				*errors = append(*errors, fmt.Sprintf("unknown field '%s' in step specification at line %d", key.Value, key.Line))
			}
		}
	}
}

// Pipeline is a stored, runnable pipeline definition.
type Pipeline struct {
	// Unique identifier for the pipeline
	ID string `json:"id" yaml:"id"`

	// Human-readable name for the pipeline
	Name string `json:"name" yaml:"name"`

	// Optional description shown in listings
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Trigger controls which branch pushes start a run
	Trigger *TriggerSpec `json:"trigger,omitempty" yaml:"trigger,omitempty"`

	// Schedules defines cron-based runs
	Schedules []ScheduleSpec `json:"schedules,omitempty" yaml:"schedules,omitempty"`

	// Pool selects the default execution environment for all jobs
	Pool *PoolSpec `json:"pool,omitempty" yaml:"pool,omitempty"`

	// Variables available to every job via $(name) macros
	Variables map[string]string `json:"variables,omitempty" yaml:"variables,omitempty"`

	// Jobs to run, normalized so the implicit single job form is expanded
	Jobs []JobSpec `json:"jobs" yaml:"jobs"`

	// Artifacts lists workspace-relative globs staged after each leg
	Artifacts []string `json:"artifacts,omitempty" yaml:"artifacts,omitempty"`

	// Creation timestamp
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`

	// Last update timestamp
	UpdatedAt time.Time `json:"updatedAt" yaml:"updatedAt"`
}

// DefaultArtifactGlobs is staged from each leg workspace when the
// pipeline does not list artifact globs itself.
var DefaultArtifactGlobs = []string{"dist/*"}

// ToPipeline converts a PipelineSpec to a Pipeline.
func (p *PipelineSpec) ToPipeline() (*Pipeline, error) {
	// Validate
	if err := p.Validate(); err != nil {
		return nil, err
	}

	jobs := p.Jobs
	if len(jobs) == 0 {
		// Normalize the implicit single job form
		jobs = []JobSpec{
			{
				Name:     "default",
				Pool:     p.Pool,
				Strategy: p.Strategy,
				Steps:    p.Steps,
			},
		}
	}

	// The default glob applies only when no level lists its own.
	jobArtifacts := false
	for i := range jobs {
		if len(jobs[i].Artifacts) > 0 {
			jobArtifacts = true
			break
		}
	}
	artifacts := p.Artifacts
	if len(artifacts) == 0 && !jobArtifacts {
		artifacts = append([]string(nil), DefaultArtifactGlobs...)
	}

	now := time.Now()

	return &Pipeline{
		ID:          uuid.New().String(),
		Name:        p.Name,
		Description: p.Description,
		Trigger:     p.Trigger,
		Schedules:   p.Schedules,
		Pool:        p.Pool,
		Variables:   p.Variables,
		Jobs:        jobs,
		Artifacts:   artifacts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}
