package report

import (
	"strings"
	"testing"
	"time"

	"github.com/calibrae/testflow/pkg/models"
)

func sampleSession() *models.Session {
	start := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	return &models.Session{
		ID:     "sess-1",
		Status: models.SessionFailed,
		Plan: &models.TestPlan{
			ID:   "plan-1",
			Name: "checkout flow",
			Phases: []models.Phase{
				{
					Name:     "smoke",
					Category: "smoke",
					Tasks: []models.Task{
						{ID: "t1"},
						{ID: "t2", DependsOn: []string{"t1"}},
					},
				},
				{
					Name:      "functional",
					Category:  "functional",
					DependsOn: []string{"smoke"},
					Tasks: []models.Task{
						{ID: "t3"},
					},
				},
			},
		},
		StartedAt: start,
		Results: []models.TaskResult{
			{
				TaskID: "t1", Status: models.TaskStatusSucceeded, Attempts: 2,
				StartedAt: start, FinishedAt: start.Add(3 * time.Second),
				Validation: &models.ValidationResult{TaskID: "t1", Verdict: true, Confidence: 0.9},
			},
			{
				TaskID: "t2", Status: models.TaskStatusFailed, Attempts: 1,
				StartedAt: start.Add(3 * time.Second), FinishedAt: start.Add(5 * time.Second),
				ErrorDetail: "attempt 1 failed: element not found",
			},
		},
	}
}

func TestSummarize(t *testing.T) {
	sum := Summarize(sampleSession())

	if sum.SessionID != "sess-1" || sum.PlanName != "checkout flow" {
		t.Errorf("header = %s/%s", sum.SessionID, sum.PlanName)
	}
	if sum.FirstFailure != "t2" {
		t.Errorf("first failure = %q, want t2", sum.FirstFailure)
	}
	if len(sum.Phases) != 2 {
		t.Fatalf("phases = %d, want 2", len(sum.Phases))
	}

	smoke := sum.Phases[0]
	if smoke.Succeeded != 1 || smoke.Failed != 1 || smoke.Total != 2 {
		t.Errorf("smoke rollup = %+v", smoke)
	}
	if smoke.Duration != 5*time.Second {
		t.Errorf("smoke duration = %s, want 5s", smoke.Duration)
	}

	functional := sum.Phases[1]
	if functional.Pending != 1 {
		t.Errorf("functional rollup = %+v, want 1 pending", functional)
	}
}

func TestSummarizeValidationRejection(t *testing.T) {
	s := sampleSession()
	s.Results = []models.TaskResult{
		{
			TaskID: "t1", Status: models.TaskStatusSucceeded, Attempts: 1,
			Validation: &models.ValidationResult{TaskID: "t1", Verdict: false, Confidence: 0.8},
		},
	}

	sum := Summarize(s)
	if sum.Phases[0].Rejected != 1 || sum.Phases[0].Succeeded != 0 {
		t.Errorf("rollup = %+v, want the rejected result counted separately", sum.Phases[0])
	}
	if sum.FirstFailure != "t1" {
		t.Errorf("first failure = %q, want t1", sum.FirstFailure)
	}
}

func TestRender(t *testing.T) {
	out := Render(sampleSession())

	for _, want := range []string{
		"Session sess-1",
		"checkout flow",
		"First failure: t2",
		"Phase smoke (smoke): 1/2 succeeded, 1 failed",
		"(attempt 2)",
		"validation accepted (0.90)",
		"element not found",
		"not run",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q\n%s", want, out)
		}
	}
}
