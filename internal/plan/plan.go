// Package plan loads test plans from YAML and statically validates them
// before execution.
package plan

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/calibrae/testflow/internal/graph"
	"github.com/calibrae/testflow/pkg/models"
)

// ErrPlanInvalid indicates a cyclic or dangling dependency in a test plan.
// It is fatal: execution aborts before any task runs.
var ErrPlanInvalid = errors.New("invalid test plan")

// Load reads a test plan from a YAML file and fills in defaults.
func Load(path string) (*models.TestPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	return Parse(data)
}

// Parse decodes a test plan from YAML bytes and fills in defaults.
func Parse(data []byte) (*models.TestPlan, error) {
	var p models.TestPlan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}

	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	if p.ID == "" {
		p.ID = fmt.Sprintf("plan_%s", p.CreatedAt.Format("20060102_150405"))
	}
	if p.Status == "" {
		p.Status = models.PlanStatusDraft
	}

	return &p, nil
}

// Validate checks a plan for structural problems: empty phases, duplicate
// identifiers, dangling dependencies, and cycles at both the phase and task
// level. All failures wrap ErrPlanInvalid.
func Validate(p *models.TestPlan) error {
	if len(p.Phases) == 0 {
		return fmt.Errorf("%w: plan has no phases", ErrPlanInvalid)
	}

	phaseIdx := make(map[string]int, len(p.Phases))
	for i, ph := range p.Phases {
		if ph.Name == "" {
			return fmt.Errorf("%w: phase %d has no name", ErrPlanInvalid, i)
		}
		if _, dup := phaseIdx[ph.Name]; dup {
			return fmt.Errorf("%w: duplicate phase %q", ErrPlanInvalid, ph.Name)
		}
		phaseIdx[ph.Name] = i
	}

	for _, ph := range p.Phases {
		for _, dep := range ph.DependsOn {
			if _, ok := phaseIdx[dep]; !ok {
				return fmt.Errorf("%w: phase %q depends on unknown phase %q", ErrPlanInvalid, ph.Name, dep)
			}
		}
	}
	if phaseCycle(p, phaseIdx) {
		return fmt.Errorf("%w: phase dependency cycle", ErrPlanInvalid)
	}

	seen := make(map[string]bool)
	for _, ph := range p.Phases {
		inPhase := make(map[string]bool, len(ph.Tasks))
		for _, t := range ph.Tasks {
			if t.ID == "" {
				return fmt.Errorf("%w: phase %q contains a task with no id", ErrPlanInvalid, ph.Name)
			}
			if seen[t.ID] {
				return fmt.Errorf("%w: duplicate task id %q", ErrPlanInvalid, t.ID)
			}
			if t.Retries < 0 {
				return fmt.Errorf("%w: task %q has negative retry budget", ErrPlanInvalid, t.ID)
			}
			seen[t.ID] = true
			inPhase[t.ID] = true
		}

		// Task dependencies stay within the owning phase; cross-phase
		// ordering is expressed through phase dependencies.
		for _, t := range ph.Tasks {
			for _, dep := range t.DependsOn {
				if !inPhase[dep] {
					return fmt.Errorf("%w: task %q depends on %q outside phase %q", ErrPlanInvalid, t.ID, dep, ph.Name)
				}
			}
		}

		g := graph.New()
		tasks := make([]*models.Task, len(ph.Tasks))
		for i := range ph.Tasks {
			tasks[i] = &ph.Tasks[i]
		}
		if err := g.Build(tasks); err != nil {
			return fmt.Errorf("%w: phase %q: %v", ErrPlanInvalid, ph.Name, err)
		}
	}

	return nil
}

// phaseCycle detects a cycle in the phase dependency relation.
func phaseCycle(p *models.TestPlan, idx map[string]int) bool {
	// 0 = unvisited, 1 = in progress, 2 = done.
	colors := make([]int, len(p.Phases))

	var visit func(i int) bool
	visit = func(i int) bool {
		colors[i] = 1
		for _, dep := range p.Phases[i].DependsOn {
			j := idx[dep]
			switch colors[j] {
			case 1:
				return true
			case 0:
				if visit(j) {
					return true
				}
			}
		}
		colors[i] = 2
		return false
	}

	for i := range p.Phases {
		if colors[i] == 0 && visit(i) {
			return true
		}
	}
	return false
}
