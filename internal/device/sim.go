package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/calibrae/testflow/pkg/models"
)

// ScriptedOutcome declares what the simulator returns for one task, plus an
// artificial latency before it does.
type ScriptedOutcome struct {
	Outcome Outcome
	Latency time.Duration
	// FailFirst makes the first N attempts fail before the scripted
	// outcome applies, for exercising retry budgets.
	FailFirst int
}

// SimAdapter is a deterministic in-process automation backend. Unscripted
// tasks succeed with a synthesized output after the default latency.
type SimAdapter struct {
	mu       sync.Mutex
	script   map[string]*ScriptedOutcome
	attempts map[string]int
	latency  time.Duration
}

var _ Adapter = (*SimAdapter)(nil)

// NewSimAdapter creates a simulator with no scripted outcomes.
func NewSimAdapter() *SimAdapter {
	return &SimAdapter{
		script:   make(map[string]*ScriptedOutcome),
		attempts: make(map[string]int),
	}
}

// Script sets the outcome returned for the given task ID.
func (a *SimAdapter) Script(taskID string, s ScriptedOutcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.script[taskID] = &s
}

// SetLatency sets the default per-task latency for unscripted tasks.
func (a *SimAdapter) SetLatency(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.latency = d
}

// Attempts reports how many times the given task was executed.
func (a *SimAdapter) Attempts(taskID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attempts[taskID]
}

// Execute returns the scripted outcome for the task, or a synthesized
// success. It honors ctx cancellation during the simulated latency.
func (a *SimAdapter) Execute(ctx context.Context, task *models.Task) (*Outcome, error) {
	a.mu.Lock()
	a.attempts[task.ID]++
	attempt := a.attempts[task.ID]
	scripted := a.script[task.ID]
	latency := a.latency
	a.mu.Unlock()

	if scripted != nil && scripted.Latency > 0 {
		latency = scripted.Latency
	}
	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if scripted != nil {
		if attempt <= scripted.FailFirst {
			return &Outcome{
				Success: false,
				Error:   fmt.Sprintf("simulated transient failure on attempt %d", attempt),
			}, nil
		}
		out := scripted.Outcome
		return &out, nil
	}

	return &Outcome{
		Success: true,
		Output:  fmt.Sprintf("simulated %s: %s completed", toolName(task), task.ID),
	}, nil
}

func toolName(task *models.Task) string {
	if task.Tool != "" {
		return task.Tool
	}
	return "step"
}
