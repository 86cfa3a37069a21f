// Package orchestrator drives a reconstructed workflow to completion:
// scheduling tasks under a concurrency limit, serializing overlapping work,
// tracking failures, checkpointing progress, and honoring operator
// interventions.
package orchestrator

import (
	"time"
)

// EventType represents the type of engine event.
type EventType string

const (
	// EventTaskDispatched indicates a task was handed to an executor.
	EventTaskDispatched EventType = "task_dispatched"
	// EventTaskCompleted indicates a task completed successfully.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed indicates a task failed.
	EventTaskFailed EventType = "task_failed"
	// EventCircuitTripped indicates the failure breaker opened and new
	// dispatch halted.
	EventCircuitTripped EventType = "circuit_tripped"
	// EventPaused indicates an operator pause took effect.
	EventPaused EventType = "paused"
	// EventResumed indicates an operator resume took effect.
	EventResumed EventType = "resumed"
	// EventWorkflowDone indicates no queued or active work remains.
	EventWorkflowDone EventType = "workflow_done"
)

// Event is a notification emitted by the engine. Consumers use these to
// update status displays and audit progress.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// UnitID is the id of the related task, if applicable.
	UnitID string
	// Title is the title of the related task, if applicable.
	Title string
	// Message provides additional context.
	Message string
	// Timestamp is when the event occurred.
	Timestamp time.Time
}

// Emitter receives engine events. Implementations must not block.
type Emitter func(Event)
