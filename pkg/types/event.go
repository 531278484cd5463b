package types

import (
	"time"

	"github.com/google/uuid"
)

// EventType classifies run history events.
type EventType string

const (
	// EventRunQueued records run creation
	EventRunQueued EventType = "run.queued"

	// EventRunStarted records the run transitioning to Running
	EventRunStarted EventType = "run.started"

	// EventRunFinished records the run reaching a terminal status
	EventRunFinished EventType = "run.finished"

	// EventLegStarted records a leg transitioning to Running
	EventLegStarted EventType = "leg.started"

	// EventLegFinished records a leg reaching a terminal status
	EventLegFinished EventType = "leg.finished"

	// EventStepFinished records a step outcome
	EventStepFinished EventType = "step.finished"

	// EventUpload records a distribution upload attempt
	EventUpload EventType = "upload"
)

// Event is an append-only record of something that happened during a run.
type Event struct {
	// Unique identifier for the event
	ID string `json:"id" yaml:"id"`

	// ID of the run the event belongs to
	RunID string `json:"runId" yaml:"runId"`

	// Type of the event
	Type EventType `json:"type" yaml:"type"`

	// Leg the event refers to, when applicable
	Leg string `json:"leg,omitempty" yaml:"leg,omitempty"`

	// Human-readable message
	Message string `json:"message,omitempty" yaml:"message,omitempty"`

	// Timestamp when the event occurred
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// NewEvent creates an event for a run.
func NewEvent(runID string, eventType EventType, leg, message string) *Event {
	return &Event{
		ID:        uuid.New().String(),
		RunID:     runID,
		Type:      eventType,
		Leg:       leg,
		Message:   message,
		Timestamp: time.Now(),
	}
}
