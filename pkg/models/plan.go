// Package models contains the shared data types for test plans, task
// execution results, sessions, and validation verdicts.
package models

import "time"

// PlanStatus represents the lifecycle state of a test plan.
type PlanStatus string

const (
	// PlanStatusDraft indicates the plan has been produced but not started.
	PlanStatusDraft PlanStatus = "draft"
	// PlanStatusRunning indicates the plan is being executed.
	PlanStatusRunning PlanStatus = "running"
	// PlanStatusCompleted indicates every phase finished.
	PlanStatusCompleted PlanStatus = "completed"
	// PlanStatusFailed indicates execution halted on a failed phase.
	PlanStatusFailed PlanStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s PlanStatus) Valid() bool {
	switch s {
	case PlanStatusDraft, PlanStatusRunning, PlanStatusCompleted, PlanStatusFailed:
		return true
	default:
		return false
	}
}

// Phase is a named, ordered group of tasks sharing a category.
type Phase struct {
	// Name identifies the phase within its plan.
	Name string `json:"name" yaml:"name"`
	// Category tags the kind of testing the phase performs
	// (smoke, functional, regression, performance, security).
	Category string `json:"category,omitempty" yaml:"category,omitempty"`
	// Tasks is the ordered set of tasks in this phase.
	Tasks []Task `json:"tasks" yaml:"tasks"`
	// DependsOn lists phase names that must complete before this phase runs.
	// A phase whose dependency failed or was skipped is skipped entirely.
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
}

// TestPlan is the root object describing an ordered set of phases to execute.
// It is immutable once execution starts, except for Status transitions owned
// by the orchestrator.
type TestPlan struct {
	// ID is the unique plan identifier.
	ID string `json:"id" yaml:"id"`
	// Name is a human-readable plan name.
	Name string `json:"name" yaml:"name"`
	// Phases is the ordered sequence of phases.
	Phases []Phase `json:"phases" yaml:"phases"`
	// CreatedAt is when the planner produced the plan.
	CreatedAt time.Time `json:"created_at" yaml:"created_at,omitempty"`
	// Status is the plan lifecycle state.
	Status PlanStatus `json:"status" yaml:"status,omitempty"`
}

// TaskCount returns the total number of tasks across all phases.
func (p *TestPlan) TaskCount() int {
	n := 0
	for _, ph := range p.Phases {
		n += len(ph.Tasks)
	}
	return n
}

// FindTask returns the task with the given ID and the phase that owns it.
func (p *TestPlan) FindTask(id string) (*Task, *Phase) {
	for pi := range p.Phases {
		ph := &p.Phases[pi]
		for ti := range ph.Tasks {
			if ph.Tasks[ti].ID == id {
				return &ph.Tasks[ti], ph
			}
		}
	}
	return nil, nil
}

// FindPhase returns the phase with the given name, or nil.
func (p *TestPlan) FindPhase(name string) *Phase {
	for i := range p.Phases {
		if p.Phases[i].Name == name {
			return &p.Phases[i]
		}
	}
	return nil
}
