package models

import (
	"fmt"
	"time"

	"go.yaml.in/yaml/v3"
)

// TaskStatus represents the current state of a task result.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusRunning indicates the task is executing on the device backend.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusSucceeded indicates the task completed successfully.
	TaskStatusSucceeded TaskStatus = "succeeded"
	// TaskStatusFailed indicates the task failed after exhausting retries.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusSkipped indicates the task was never attempted because a
	// dependency ended failed or skipped.
	TaskStatusSkipped TaskStatus = "skipped"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusSucceeded, TaskStatusFailed, TaskStatusSkipped:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is final and the result must never
// change again.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusSucceeded, TaskStatusFailed, TaskStatusSkipped:
		return true
	default:
		return false
	}
}

// Task is the smallest unit of work dispatched to the automation backend.
type Task struct {
	// ID is the task identifier, unique within a plan.
	ID string `json:"id" yaml:"id"`
	// Description is a human-readable summary of what the task does.
	Description string `json:"description" yaml:"description"`
	// Expectation is the free-form success criterion the validator judges
	// the task output against.
	Expectation string `json:"expectation,omitempty" yaml:"expectation,omitempty"`
	// Tool names the automation action the device adapter dispatches.
	Tool string `json:"tool,omitempty" yaml:"tool,omitempty"`
	// Parameters are tool arguments passed through to the adapter.
	Parameters map[string]string `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	// DependsOn lists task IDs that must succeed before this task runs.
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	// Retries is the retry budget: how many times a failed attempt may be
	// re-queued before the task is terminally failed.
	Retries int `json:"retries,omitempty" yaml:"retries,omitempty"`
	// Timeout is the per-attempt execution deadline. Zero means the
	// configured default applies.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"-"`
}

// UnmarshalYAML decodes a task, accepting the timeout as a duration string
// such as "30s" or "2m".
func (t *Task) UnmarshalYAML(value *yaml.Node) error {
	type rawTask struct {
		ID          string            `yaml:"id"`
		Description string            `yaml:"description"`
		Expectation string            `yaml:"expectation"`
		Tool        string            `yaml:"tool"`
		Parameters  map[string]string `yaml:"parameters"`
		DependsOn   []string          `yaml:"depends_on"`
		Retries     int               `yaml:"retries"`
		Timeout     string            `yaml:"timeout"`
	}

	var raw rawTask
	if err := value.Decode(&raw); err != nil {
		return err
	}

	t.ID = raw.ID
	t.Description = raw.Description
	t.Expectation = raw.Expectation
	t.Tool = raw.Tool
	t.Parameters = raw.Parameters
	t.DependsOn = raw.DependsOn
	t.Retries = raw.Retries
	if raw.Timeout != "" {
		d, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return fmt.Errorf("task %s: invalid timeout %q: %w", raw.ID, raw.Timeout, err)
		}
		t.Timeout = d
	}
	return nil
}

// TaskResult records one task's latest execution outcome. It is created when
// the task begins and becomes immutable once Status is terminal.
type TaskResult struct {
	// TaskID identifies the task this result belongs to.
	TaskID string `json:"task_id"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// Output is the raw output returned by the device adapter.
	Output string `json:"output,omitempty"`
	// ErrorDetail describes the failure, including the attempt counter for
	// retried tasks. Empty on success.
	ErrorDetail string `json:"error_detail,omitempty"`
	// Attempts is the number of execution attempts made so far.
	Attempts int `json:"attempts"`
	// StartedAt is when the first attempt began.
	StartedAt time.Time `json:"started_at"`
	// FinishedAt is when the task reached its current status.
	FinishedAt time.Time `json:"finished_at"`
	// Validation is the validator's verdict, attached for reporting.
	// It is not part of the session's execution identity.
	Validation *ValidationResult `json:"validation,omitempty"`
}

// Duration returns the elapsed time between start and finish.
func (r *TaskResult) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Terminal returns true if the result's status is final.
func (r *TaskResult) Terminal() bool {
	return r.Status.Terminal()
}

// AttemptError formats an error detail that carries the attempt counter.
func AttemptError(attempt int, cause string) string {
	return fmt.Sprintf("attempt %d: %s", attempt, cause)
}
