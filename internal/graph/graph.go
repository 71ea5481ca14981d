// Package graph provides a dependency graph for task scheduling.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/calibrae/testflow/pkg/models"
)

// ErrCycleDetected indicates a circular dependency in the task graph.
var ErrCycleDetected = errors.New("circular dependency detected")

// DependencyGraph is a directed acyclic graph of task dependencies within a
// single phase. Tasks are nodes; edges represent "blocked by" relationships.
type DependencyGraph struct {
	mu sync.RWMutex
	// nodes maps task ID to the task itself.
	nodes map[string]*models.Task
	// edges maps task ID to IDs of tasks it depends on.
	edges map[string][]string
	// order remembers declaration order for deterministic ready sets.
	order []string
	// completed tracks tasks that finished succeeded.
	completed map[string]bool
	// skipped tracks tasks ruled out because a dependency failed or was
	// itself skipped.
	skipped map[string]bool
	// failed tracks tasks that terminally failed.
	failed map[string]bool
	// started tracks tasks handed to an execution group, so a task is
	// dispatched at most once per scheduling pass.
	started map[string]bool
}

// New creates an empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes:     make(map[string]*models.Task),
		edges:     make(map[string][]string),
		completed: make(map[string]bool),
		skipped:   make(map[string]bool),
		failed:    make(map[string]bool),
		started:   make(map[string]bool),
	}
}

// Build constructs the graph from a slice of tasks. Returns an error if a
// dependency references an unknown task or a cycle is detected.
func (g *DependencyGraph) Build(tasks []*models.Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, task := range tasks {
		if _, dup := g.nodes[task.ID]; dup {
			return fmt.Errorf("duplicate task id %s", task.ID)
		}
		g.nodes[task.ID] = task
		g.edges[task.ID] = nil
		g.order = append(g.order, task.ID)
	}

	for _, task := range tasks {
		for _, depID := range task.DependsOn {
			if _, exists := g.nodes[depID]; !exists {
				return fmt.Errorf("task %s depends on unknown task %s", task.ID, depID)
			}
			g.edges[task.ID] = append(g.edges[task.ID], depID)
		}
	}

	if g.hasCycleLocked() {
		return ErrCycleDetected
	}
	return nil
}

// HasCycle returns true if the graph contains a circular dependency.
func (g *DependencyGraph) HasCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hasCycleLocked()
}

// hasCycleLocked runs a depth-first search with coloring to detect back edges.
// Caller must hold the lock.
func (g *DependencyGraph) hasCycleLocked() bool {
	// 0 = unvisited, 1 = in progress, 2 = done.
	colors := make(map[string]int, len(g.nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1
		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
		}
		colors[id] = 2
		return false
	}

	for id := range g.nodes {
		if colors[id] == 0 && visit(id) {
			return true
		}
	}
	return false
}

// Ready returns the next execution group: tasks not yet started, not ruled
// out, whose dependencies are all completed. Order follows declaration order.
func (g *DependencyGraph) Ready() []*models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []*models.Task
	for _, id := range g.order {
		if g.started[id] || g.completed[id] || g.skipped[id] || g.failed[id] {
			continue
		}
		ok := true
		for _, depID := range g.edges[id] {
			if !g.completed[depID] {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, g.nodes[id])
		}
	}
	return ready
}

// MarkStarted records that a task has been handed to an execution group.
func (g *DependencyGraph) MarkStarted(taskID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.started[taskID] = true
}

// MarkComplete records that a task finished succeeded, unblocking dependents.
func (g *DependencyGraph) MarkComplete(taskID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completed[taskID] = true
}

// MarkSkipped records a task as skipped without propagating, used when
// seeding the graph from persisted results.
func (g *DependencyGraph) MarkSkipped(taskID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.skipped[taskID] = true
}

// Requeue returns a failed-but-retryable task to the schedulable pool so it
// lands in the next execution group.
func (g *DependencyGraph) Requeue(taskID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.started, taskID)
}

// MarkFailed records a terminal failure and transitively skips every
// dependent task. It returns the IDs of the newly skipped tasks, in
// declaration order.
func (g *DependencyGraph) MarkFailed(taskID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.failed[taskID] = true
	return g.skipDependentsLocked(taskID)
}

// skipDependentsLocked marks all transitive dependents of taskID as skipped.
// Caller must hold the lock.
func (g *DependencyGraph) skipDependentsLocked(taskID string) []string {
	var newlySkipped []string
	frontier := []string{taskID}
	for len(frontier) > 0 {
		next := frontier[0]
		frontier = frontier[1:]
		for _, id := range g.dependentsLocked(next) {
			if g.skipped[id] || g.completed[id] || g.failed[id] {
				continue
			}
			g.skipped[id] = true
			newlySkipped = append(newlySkipped, id)
			frontier = append(frontier, id)
		}
	}
	sort.SliceStable(newlySkipped, func(i, j int) bool {
		return g.declIndexLocked(newlySkipped[i]) < g.declIndexLocked(newlySkipped[j])
	})
	return newlySkipped
}

func (g *DependencyGraph) declIndexLocked(taskID string) int {
	for i, id := range g.order {
		if id == taskID {
			return i
		}
	}
	return len(g.order)
}

// dependentsLocked returns the IDs of tasks that depend on taskID.
// Caller must hold the lock.
func (g *DependencyGraph) dependentsLocked(taskID string) []string {
	var dependents []string
	for _, id := range g.order {
		for _, depID := range g.edges[id] {
			if depID == taskID {
				dependents = append(dependents, id)
				break
			}
		}
	}
	return dependents
}

// Dependents returns the IDs of tasks that depend on the given task.
func (g *DependencyGraph) Dependents(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.dependentsLocked(taskID)
}

// Exhausted returns true once every task is completed, skipped, or failed.
func (g *DependencyGraph) Exhausted() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for id := range g.nodes {
		if !g.completed[id] && !g.skipped[id] && !g.failed[id] {
			return false
		}
	}
	return true
}

// Task returns the task for a given ID, or nil if not found.
func (g *DependencyGraph) Task(taskID string) *models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[taskID]
}

// Size returns the number of tasks in the graph.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// FailedCount returns the number of terminally failed tasks.
func (g *DependencyGraph) FailedCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.failed)
}
