package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunReason records what started a pipeline run.
type RunReason string

const (
	// RunReasonManual indicates the run was started from the CLI
	RunReasonManual RunReason = "manual"

	// RunReasonPush indicates the run was started by a branch push
	RunReasonPush RunReason = "push"

	// RunReasonSchedule indicates the run was started by a cron schedule
	RunReasonSchedule RunReason = "schedule"
)

// RunStatus represents the current status of a pipeline run.
type RunStatus string

const (
	// RunStatusPending indicates the run is waiting to start
	RunStatusPending RunStatus = "Pending"

	// RunStatusRunning indicates the run is currently executing
	RunStatusRunning RunStatus = "Running"

	// RunStatusSucceeded indicates every leg completed successfully
	RunStatusSucceeded RunStatus = "Succeeded"

	// RunStatusFailed indicates at least one leg failed
	RunStatusFailed RunStatus = "Failed"

	// RunStatusCanceled indicates the run was interrupted before finishing
	RunStatusCanceled RunStatus = "Canceled"

	// RunStatusSkipped indicates the leg or job never ran, either because
	// a dependency failed or because no executor could run it
	RunStatusSkipped RunStatus = "Skipped"
)

// Terminal reports whether the status is a final state.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed, RunStatusCanceled, RunStatusSkipped:
		return true
	default:
		return false
	}
}

// StepStatus represents the current status of a single step.
type StepStatus string

const (
	// StepStatusPending indicates the step has not started yet
	StepStatusPending StepStatus = "Pending"

	// StepStatusRunning indicates the step is currently executing
	StepStatusRunning StepStatus = "Running"

	// StepStatusSucceeded indicates the step completed successfully
	StepStatusSucceeded StepStatus = "Succeeded"

	// StepStatusFailed indicates the step failed
	StepStatusFailed StepStatus = "Failed"

	// StepStatusSkipped indicates the step was disabled or its condition
	// did not hold
	StepStatusSkipped StepStatus = "Skipped"
)

// Run represents a single execution of a pipeline.
type Run struct {
	// Unique identifier for the run
	ID string `json:"id" yaml:"id"`

	// Monotonic run number, unique per pipeline
	Number int64 `json:"number" yaml:"number"`

	// Name of the pipeline this run belongs to
	PipelineName string `json:"pipelineName" yaml:"pipelineName"`

	// Reason records what started the run
	Reason RunReason `json:"reason" yaml:"reason"`

	// Branch the run was started for
	Branch string `json:"branch,omitempty" yaml:"branch,omitempty"`

	// Commit SHA the run was started for, when known
	Commit string `json:"commit,omitempty" yaml:"commit,omitempty"`

	// Status of the run
	Status RunStatus `json:"status" yaml:"status"`

	// Detailed status message
	StatusMessage string `json:"statusMessage,omitempty" yaml:"statusMessage,omitempty"`

	// Start time
	StartTime *time.Time `json:"startTime,omitempty" yaml:"startTime,omitempty"`

	// Completion time
	CompletionTime *time.Time `json:"completionTime,omitempty" yaml:"completionTime,omitempty"`

	// Creation timestamp
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`

	// Last update timestamp
	UpdatedAt time.Time `json:"updatedAt" yaml:"updatedAt"`
}

// LegRun represents one matrix leg execution inside a run.
type LegRun struct {
	// Unique identifier for the leg run
	ID string `json:"id" yaml:"id"`

	// ID of the run this leg belongs to
	RunID string `json:"runId" yaml:"runId"`

	// Job this leg was expanded from
	Job string `json:"job" yaml:"job"`

	// Matrix leg name; empty for jobs without a matrix
	Leg string `json:"leg,omitempty" yaml:"leg,omitempty"`

	// Composite display name (job or job/leg)
	Name string `json:"name" yaml:"name"`

	// Variables resolved for this leg
	Variables map[string]string `json:"variables,omitempty" yaml:"variables,omitempty"`

	// Executor that ran the leg (host or docker)
	Executor string `json:"executor,omitempty" yaml:"executor,omitempty"`

	// Image the leg ran in, for docker legs
	Image string `json:"image,omitempty" yaml:"image,omitempty"`

	// Status of the leg run
	Status RunStatus `json:"status" yaml:"status"`

	// Detailed status message
	StatusMessage string `json:"statusMessage,omitempty" yaml:"statusMessage,omitempty"`

	// Steps executed in this leg, in order
	Steps []StepRun `json:"steps,omitempty" yaml:"steps,omitempty"`

	// WorkspaceDir is the working directory the leg ran in
	WorkspaceDir string `json:"workspaceDir,omitempty" yaml:"workspaceDir,omitempty"`

	// LogFile is the path of the combined step output log
	LogFile string `json:"logFile,omitempty" yaml:"logFile,omitempty"`

	// Start time
	StartTime *time.Time `json:"startTime,omitempty" yaml:"startTime,omitempty"`

	// Completion time
	CompletionTime *time.Time `json:"completionTime,omitempty" yaml:"completionTime,omitempty"`

	// Creation timestamp
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`

	// Last update timestamp
	UpdatedAt time.Time `json:"updatedAt" yaml:"updatedAt"`
}

// StepRun records the outcome of a single step inside a leg.
type StepRun struct {
	// Step name or derived label
	Name string `json:"name" yaml:"name"`

	// DisplayName shown in run output
	DisplayName string `json:"displayName,omitempty" yaml:"displayName,omitempty"`

	// Status of the step
	Status StepStatus `json:"status" yaml:"status"`

	// Exit code for script steps that completed
	ExitCode int `json:"exitCode,omitempty" yaml:"exitCode,omitempty"`

	// Error message for failed steps
	Message string `json:"message,omitempty" yaml:"message,omitempty"`

	// Start time
	StartTime *time.Time `json:"startTime,omitempty" yaml:"startTime,omitempty"`

	// Completion time
	CompletionTime *time.Time `json:"completionTime,omitempty" yaml:"completionTime,omitempty"`
}

// NewRun creates a pending run for a pipeline.
func NewRun(pipelineName string, number int64, reason RunReason, branch, commit string) *Run {
	now := time.Now()

	return &Run{
		ID:           uuid.New().String(),
		Number:       number,
		PipelineName: pipelineName,
		Reason:       reason,
		Branch:       branch,
		Commit:       commit,
		Status:       RunStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// CreateLegRun creates a pending leg run attached to this run.
func (r *Run) CreateLegRun(job, leg string, variables map[string]string) *LegRun {
	now := time.Now()

	name := job
	if leg != "" {
		name = fmt.Sprintf("%s/%s", job, leg)
	}

	return &LegRun{
		ID:        uuid.New().String(),
		RunID:     r.ID,
		Job:       job,
		Leg:       leg,
		Name:      name,
		Variables: variables,
		Status:    RunStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Duration returns how long the run took, or how long it has been
// running for unfinished runs.
func (r *Run) Duration() time.Duration {
	if r.StartTime == nil {
		return 0
	}
	if r.CompletionTime != nil {
		return r.CompletionTime.Sub(*r.StartTime)
	}
	return time.Since(*r.StartTime)
}
