package graph

import (
	"errors"
	"testing"

	"github.com/calibrae/testflow/pkg/models"
)

func buildGraph(t *testing.T, tasks []*models.Task) *DependencyGraph {
	t.Helper()
	g := New()
	if err := g.Build(tasks); err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}
	return g
}

func ids(tasks []*models.Task) []string {
	out := make([]string, len(tasks))
	for i, task := range tasks {
		out[i] = task.ID
	}
	return out
}

func TestBuildSimple(t *testing.T) {
	g := buildGraph(t, []*models.Task{
		{ID: "t1"},
		{ID: "t2"},
		{ID: "t3"},
	})
	if g.Size() != 3 {
		t.Errorf("expected size 3, got %d", g.Size())
	}
}

func TestBuildDuplicateID(t *testing.T) {
	g := New()
	err := g.Build([]*models.Task{{ID: "t1"}, {ID: "t1"}})
	if err == nil {
		t.Fatal("expected error for duplicate task id")
	}
}

func TestBuildUnknownDependency(t *testing.T) {
	g := New()
	err := g.Build([]*models.Task{{ID: "t1", DependsOn: []string{"missing"}}})
	if err == nil {
		t.Fatal("expected error for unknown dependency")
	}
}

func TestBuildCycleDetection(t *testing.T) {
	tests := []struct {
		name  string
		tasks []*models.Task
	}{
		{
			name: "direct cycle",
			tasks: []*models.Task{
				{ID: "a", DependsOn: []string{"b"}},
				{ID: "b", DependsOn: []string{"a"}},
			},
		},
		{
			name: "transitive cycle",
			tasks: []*models.Task{
				{ID: "a", DependsOn: []string{"c"}},
				{ID: "b", DependsOn: []string{"a"}},
				{ID: "c", DependsOn: []string{"b"}},
			},
		},
		{
			name:  "self cycle",
			tasks: []*models.Task{{ID: "a", DependsOn: []string{"a"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New()
			err := g.Build(tt.tasks)
			if !errors.Is(err, ErrCycleDetected) {
				t.Fatalf("expected ErrCycleDetected, got %v", err)
			}
		})
	}
}

func TestReadyRespectsDependencies(t *testing.T) {
	g := buildGraph(t, []*models.Task{
		{ID: "t1"},
		{ID: "t2", DependsOn: []string{"t1"}},
		{ID: "t3"},
	})

	ready := ids(g.Ready())
	if len(ready) != 2 || ready[0] != "t1" || ready[1] != "t3" {
		t.Fatalf("expected ready [t1 t3], got %v", ready)
	}

	g.MarkStarted("t1")
	g.MarkStarted("t3")
	if got := g.Ready(); len(got) != 0 {
		t.Fatalf("expected no ready tasks while group in flight, got %v", ids(got))
	}

	g.MarkComplete("t1")
	g.MarkComplete("t3")
	ready = ids(g.Ready())
	if len(ready) != 1 || ready[0] != "t2" {
		t.Fatalf("expected ready [t2] after t1 completes, got %v", ready)
	}
}

func TestRequeueReturnsTaskToPool(t *testing.T) {
	g := buildGraph(t, []*models.Task{{ID: "t1"}})

	g.MarkStarted("t1")
	if len(g.Ready()) != 0 {
		t.Fatal("started task must not be ready")
	}

	g.Requeue("t1")
	ready := ids(g.Ready())
	if len(ready) != 1 || ready[0] != "t1" {
		t.Fatalf("expected requeued task ready again, got %v", ready)
	}
}

func TestMarkFailedSkipsDependentsTransitively(t *testing.T) {
	g := buildGraph(t, []*models.Task{
		{ID: "t1"},
		{ID: "t2", DependsOn: []string{"t1"}},
		{ID: "t3", DependsOn: []string{"t2"}},
		{ID: "t4"},
	})

	skipped := g.MarkFailed("t1")
	if len(skipped) != 2 || skipped[0] != "t2" || skipped[1] != "t3" {
		t.Fatalf("expected [t2 t3] skipped in declaration order, got %v", skipped)
	}

	ready := ids(g.Ready())
	if len(ready) != 1 || ready[0] != "t4" {
		t.Fatalf("expected only t4 ready, got %v", ready)
	}

	if g.FailedCount() != 1 {
		t.Errorf("expected 1 failed, got %d", g.FailedCount())
	}
}

func TestMarkFailedDiamond(t *testing.T) {
	// t4 depends on both branches; one failing branch rules it out once.
	g := buildGraph(t, []*models.Task{
		{ID: "t1"},
		{ID: "t2", DependsOn: []string{"t1"}},
		{ID: "t3", DependsOn: []string{"t1"}},
		{ID: "t4", DependsOn: []string{"t2", "t3"}},
	})

	skipped := g.MarkFailed("t2")
	if len(skipped) != 1 || skipped[0] != "t4" {
		t.Fatalf("expected [t4] skipped, got %v", skipped)
	}
}

func TestExhausted(t *testing.T) {
	g := buildGraph(t, []*models.Task{
		{ID: "t1"},
		{ID: "t2", DependsOn: []string{"t1"}},
	})

	if g.Exhausted() {
		t.Fatal("fresh graph must not be exhausted")
	}

	g.MarkFailed("t1")
	if !g.Exhausted() {
		t.Fatal("expected exhausted after failure skips the rest")
	}
}
