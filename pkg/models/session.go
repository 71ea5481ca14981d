package models

import "time"

// SessionStatus represents the overall state of an execution session.
type SessionStatus string

const (
	// SessionRunning indicates the session is executing.
	SessionRunning SessionStatus = "running"
	// SessionPaused indicates execution stopped after draining the current
	// execution group; the session can be resumed without data loss.
	SessionPaused SessionStatus = "paused"
	// SessionCompleted indicates every phase finished.
	SessionCompleted SessionStatus = "completed"
	// SessionFailed indicates execution halted on a failed phase.
	SessionFailed SessionStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionRunning, SessionPaused, SessionCompleted, SessionFailed:
		return true
	default:
		return false
	}
}

// Session is the durable record of one plan's execution progress. It maps
// each task identifier to its latest result, in discovery order, and is the
// sole unit of durable state enabling resume after interruption.
type Session struct {
	// ID is the unique session identifier.
	ID string `json:"id"`
	// Plan is the owning test plan.
	Plan *TestPlan `json:"plan"`
	// PhaseIndex points at the phase currently (or last) being executed.
	PhaseIndex int `json:"phase_index"`
	// Status is the overall session state.
	Status SessionStatus `json:"status"`
	// StartedAt is when the session was created.
	StartedAt time.Time `json:"started_at"`
	// UpdatedAt is when the session was last written.
	UpdatedAt time.Time `json:"updated_at"`
	// Results holds each task's latest result in discovery order.
	// Task IDs are unique within the slice.
	Results []TaskResult `json:"results"`
}

// Result returns the latest result for a task, or nil if none was recorded.
func (s *Session) Result(taskID string) *TaskResult {
	for i := range s.Results {
		if s.Results[i].TaskID == taskID {
			return &s.Results[i]
		}
	}
	return nil
}

// CompletedSet returns the IDs of tasks whose result is terminal succeeded.
// This is the set the scheduler's readiness predicate consults.
func (s *Session) CompletedSet() map[string]bool {
	done := make(map[string]bool)
	for i := range s.Results {
		if s.Results[i].Status == TaskStatusSucceeded {
			done[s.Results[i].TaskID] = true
		}
	}
	return done
}

// TerminalCount returns how many recorded results reached a terminal status.
func (s *Session) TerminalCount() int {
	n := 0
	for i := range s.Results {
		if s.Results[i].Terminal() {
			n++
		}
	}
	return n
}
