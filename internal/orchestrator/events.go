// Package orchestrator turns a test plan into a correctly ordered,
// fault-tolerant execution backed by a durable session.
package orchestrator

import (
	"time"
)

// EventType represents the type of coordinator event.
type EventType string

const (
	// EventPhaseStarted indicates a phase began execution.
	EventPhaseStarted EventType = "phase_started"
	// EventPhaseCompleted indicates a phase finished with all tasks terminal.
	EventPhaseCompleted EventType = "phase_completed"
	// EventPhaseSkipped indicates a phase was skipped because a phase
	// dependency did not succeed.
	EventPhaseSkipped EventType = "phase_skipped"
	// EventTaskStarted indicates a task was dispatched to the adapter.
	EventTaskStarted EventType = "task_started"
	// EventTaskSucceeded indicates a task reached terminal success.
	EventTaskSucceeded EventType = "task_succeeded"
	// EventTaskFailed indicates a task reached terminal failure.
	EventTaskFailed EventType = "task_failed"
	// EventTaskRetried indicates a failed attempt was requeued into the
	// next execution group.
	EventTaskRetried EventType = "task_retried"
	// EventTaskSkipped indicates a task was skipped because a dependency
	// did not succeed.
	EventTaskSkipped EventType = "task_skipped"
	// EventValidationRejected indicates validation rejected a task outcome.
	EventValidationRejected EventType = "validation_rejected"
	// EventSessionPaused indicates the session paused after draining the
	// current execution group.
	EventSessionPaused EventType = "session_paused"
	// EventSessionDone indicates the session reached a final status.
	EventSessionDone EventType = "session_done"
)

// Event is emitted by the coordinator as execution progresses. Subscribers
// such as the CLI use it to render live status.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// SessionID is the owning session.
	SessionID string
	// Phase is the name of the related phase, if applicable.
	Phase string
	// TaskID is the ID of the related task, if applicable.
	TaskID string
	// Attempt is the attempt number for task events.
	Attempt int
	// Message provides additional context about the event.
	Message string
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
