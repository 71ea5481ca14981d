package state

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/calibrae/testflow/pkg/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return db
}

func twoPhasePlan() *models.TestPlan {
	return &models.TestPlan{
		ID:   "plan-1",
		Name: "login flow",
		Phases: []models.Phase{
			{
				Name:     "smoke",
				Category: "smoke",
				Tasks: []models.Task{
					{ID: "t1", Description: "launch app"},
					{ID: "t2", Description: "open login", DependsOn: []string{"t1"}},
				},
			},
			{
				Name:      "functional",
				Category:  "functional",
				DependsOn: []string{"smoke"},
				Tasks: []models.Task{
					{ID: "t3", Description: "submit credentials"},
				},
			},
		},
	}
}

func TestCreateAndGetSession(t *testing.T) {
	db := openTestDB(t)

	id, err := db.CreateSession(twoPhasePlan())
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty session ID")
	}

	s, err := db.GetSessionState(id)
	if err != nil {
		t.Fatalf("GetSessionState: %v", err)
	}
	if s.Status != models.SessionRunning {
		t.Errorf("status = %s, want %s", s.Status, models.SessionRunning)
	}
	if s.PhaseIndex != 0 {
		t.Errorf("phase index = %d, want 0", s.PhaseIndex)
	}
	if s.Plan == nil || s.Plan.ID != "plan-1" {
		t.Errorf("plan not round-tripped: %+v", s.Plan)
	}
	if len(s.Results) != 0 {
		t.Errorf("new session has %d results, want 0", len(s.Results))
	}
}

func TestGetSessionStateNotFound(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.GetSessionState("no-such-session"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestSaveTaskResultRoundTrip(t *testing.T) {
	db := openTestDB(t)
	id, _ := db.CreateSession(twoPhasePlan())

	started := time.Now().Add(-2 * time.Second)
	res := &models.TaskResult{
		TaskID:     "t1",
		Status:     models.TaskStatusSucceeded,
		Output:     "app launched",
		Attempts:   1,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Validation: &models.ValidationResult{Verdict: true, Confidence: 0.9},
	}
	if err := db.SaveTaskResult(id, res); err != nil {
		t.Fatalf("SaveTaskResult: %v", err)
	}

	s, err := db.GetSessionState(id)
	if err != nil {
		t.Fatalf("GetSessionState: %v", err)
	}
	got := s.Result("t1")
	if got == nil {
		t.Fatal("result t1 not persisted")
	}
	if got.Status != models.TaskStatusSucceeded || got.Output != "app launched" || got.Attempts != 1 {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.Validation == nil || !got.Validation.Verdict || got.Validation.Confidence != 0.9 {
		t.Errorf("validation not round-tripped: %+v", got.Validation)
	}
	if got.StartedAt.IsZero() || got.FinishedAt.IsZero() {
		t.Errorf("timestamps lost: started=%v finished=%v", got.StartedAt, got.FinishedAt)
	}
}

func TestSaveTaskResultDiscoveryOrder(t *testing.T) {
	db := openTestDB(t)
	id, _ := db.CreateSession(twoPhasePlan())

	// Results are listed in the order they were first written, not plan order.
	for _, taskID := range []string{"t2", "t1", "t3"} {
		res := &models.TaskResult{TaskID: taskID, Status: models.TaskStatusSucceeded, Attempts: 1}
		if err := db.SaveTaskResult(id, res); err != nil {
			t.Fatalf("SaveTaskResult(%s): %v", taskID, err)
		}
	}

	s, _ := db.GetSessionState(id)
	var order []string
	for _, r := range s.Results {
		order = append(order, r.TaskID)
	}
	want := []string{"t2", "t1", "t3"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("result order = %v, want %v", order, want)
		}
	}
}

func TestSaveTaskResultTerminalImmutable(t *testing.T) {
	db := openTestDB(t)
	id, _ := db.CreateSession(twoPhasePlan())

	if err := db.SaveTaskResult(id, &models.TaskResult{
		TaskID: "t1", Status: models.TaskStatusSucceeded, Attempts: 1,
	}); err != nil {
		t.Fatalf("first save: %v", err)
	}

	err := db.SaveTaskResult(id, &models.TaskResult{
		TaskID: "t1", Status: models.TaskStatusFailed, Attempts: 2,
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("conflicting terminal status: err = %v, want ErrInvalidTransition", err)
	}

	err = db.SaveTaskResult(id, &models.TaskResult{
		TaskID: "t1", Status: models.TaskStatusRunning, Attempts: 2,
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("terminal to non-terminal: err = %v, want ErrInvalidTransition", err)
	}

	// The stored result is untouched.
	s, _ := db.GetSessionState(id)
	if got := s.Result("t1"); got.Status != models.TaskStatusSucceeded || got.Attempts != 1 {
		t.Errorf("terminal result mutated: %+v", got)
	}
}

func TestSaveTaskResultIdenticalTerminalIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	id, _ := db.CreateSession(twoPhasePlan())

	res := &models.TaskResult{TaskID: "t1", Status: models.TaskStatusSucceeded, Attempts: 1}
	if err := db.SaveTaskResult(id, res); err != nil {
		t.Fatalf("first save: %v", err)
	}

	// Re-saving the same terminal status may attach a validation verdict.
	res.Validation = &models.ValidationResult{Verdict: false, Confidence: 0.4}
	if err := db.SaveTaskResult(id, res); err != nil {
		t.Fatalf("idempotent re-save: %v", err)
	}

	s, _ := db.GetSessionState(id)
	got := s.Result("t1")
	if got.Validation == nil || got.Validation.Verdict {
		t.Errorf("validation attachment not updated: %+v", got.Validation)
	}
}

func TestSaveTaskResultOverwritesNonTerminal(t *testing.T) {
	db := openTestDB(t)
	id, _ := db.CreateSession(twoPhasePlan())

	if err := db.SaveTaskResult(id, &models.TaskResult{
		TaskID: "t1", Status: models.TaskStatusRunning, Attempts: 1,
	}); err != nil {
		t.Fatalf("running save: %v", err)
	}
	if err := db.SaveTaskResult(id, &models.TaskResult{
		TaskID: "t1", Status: models.TaskStatusPending, Attempts: 1,
		ErrorDetail: "attempt 1 failed: flaky",
	}); err != nil {
		t.Fatalf("pending save: %v", err)
	}
	if err := db.SaveTaskResult(id, &models.TaskResult{
		TaskID: "t1", Status: models.TaskStatusSucceeded, Attempts: 2,
	}); err != nil {
		t.Fatalf("terminal save: %v", err)
	}

	s, _ := db.GetSessionState(id)
	if got := s.Result("t1"); got.Status != models.TaskStatusSucceeded || got.Attempts != 2 {
		t.Errorf("final = %+v, want succeeded after 2 attempts", got)
	}
	if len(s.Results) != 1 {
		t.Errorf("upsert created %d rows, want 1", len(s.Results))
	}
}

func TestUpdateSession(t *testing.T) {
	db := openTestDB(t)
	id, _ := db.CreateSession(twoPhasePlan())

	if err := db.UpdateSession(id, 1, models.SessionPaused); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}
	s, _ := db.GetSessionState(id)
	if s.PhaseIndex != 1 || s.Status != models.SessionPaused {
		t.Errorf("session = phase %d status %s, want phase 1 paused", s.PhaseIndex, s.Status)
	}

	if err := db.UpdateSession("missing", 0, models.SessionRunning); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("missing session: err = %v, want ErrSessionNotFound", err)
	}
}

func TestCompletedAndPendingProjections(t *testing.T) {
	db := openTestDB(t)
	id, _ := db.CreateSession(twoPhasePlan())

	saves := []models.TaskResult{
		{TaskID: "t1", Status: models.TaskStatusSucceeded, Attempts: 1},
		{TaskID: "t2", Status: models.TaskStatusRunning, Attempts: 1},
	}
	for i := range saves {
		if err := db.SaveTaskResult(id, &saves[i]); err != nil {
			t.Fatalf("SaveTaskResult: %v", err)
		}
	}

	completed, err := db.GetCompletedTasks(id)
	if err != nil {
		t.Fatalf("GetCompletedTasks: %v", err)
	}
	if len(completed) != 1 || completed[0].TaskID != "t1" {
		t.Errorf("completed = %+v, want just t1", completed)
	}

	pending, err := db.GetPendingTasks(id)
	if err != nil {
		t.Fatalf("GetPendingTasks: %v", err)
	}
	var ids []string
	for _, task := range pending {
		ids = append(ids, task.ID)
	}
	// t2 is running (not terminal) and t3 was never attempted.
	if len(ids) != 2 || ids[0] != "t2" || ids[1] != "t3" {
		t.Errorf("pending = %v, want [t2 t3]", ids)
	}
}

func TestResumeSession(t *testing.T) {
	tests := []struct {
		name       string
		results    []models.TaskResult
		wantResume int
	}{
		{
			name:       "nothing executed",
			wantResume: 0,
		},
		{
			name: "first phase partially done",
			results: []models.TaskResult{
				{TaskID: "t1", Status: models.TaskStatusSucceeded, Attempts: 1},
			},
			wantResume: 0,
		},
		{
			name: "first phase complete",
			results: []models.TaskResult{
				{TaskID: "t1", Status: models.TaskStatusSucceeded, Attempts: 1},
				{TaskID: "t2", Status: models.TaskStatusSucceeded, Attempts: 1},
			},
			wantResume: 1,
		},
		{
			name: "interrupted mid-task resumes its phase",
			results: []models.TaskResult{
				{TaskID: "t1", Status: models.TaskStatusSucceeded, Attempts: 1},
				{TaskID: "t2", Status: models.TaskStatusRunning, Attempts: 1},
			},
			wantResume: 0,
		},
		{
			name: "all terminal resumes past the end",
			results: []models.TaskResult{
				{TaskID: "t1", Status: models.TaskStatusSucceeded, Attempts: 1},
				{TaskID: "t2", Status: models.TaskStatusSkipped, Attempts: 0},
				{TaskID: "t3", Status: models.TaskStatusFailed, Attempts: 2},
			},
			wantResume: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := openTestDB(t)
			id, _ := db.CreateSession(twoPhasePlan())
			for i := range tt.results {
				if err := db.SaveTaskResult(id, &tt.results[i]); err != nil {
					t.Fatalf("SaveTaskResult: %v", err)
				}
			}
			if err := db.UpdateSession(id, 0, models.SessionPaused); err != nil {
				t.Fatalf("UpdateSession: %v", err)
			}

			s, resume, err := db.ResumeSession(id)
			if err != nil {
				t.Fatalf("ResumeSession: %v", err)
			}
			if resume != tt.wantResume {
				t.Errorf("resume point = %d, want %d", resume, tt.wantResume)
			}
			if len(s.Results) != len(tt.results) {
				t.Errorf("reconstructed %d results, want %d", len(s.Results), len(tt.results))
			}
		})
	}
}

func TestResumeSessionRejectsCompleted(t *testing.T) {
	db := openTestDB(t)
	id, _ := db.CreateSession(twoPhasePlan())
	if err := db.UpdateSession(id, 2, models.SessionCompleted); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}
	if _, _, err := db.ResumeSession(id); err == nil {
		t.Error("resuming a completed session should fail")
	}
}

func TestResumeSessionRejectsFailed(t *testing.T) {
	db := openTestDB(t)
	id, _ := db.CreateSession(twoPhasePlan())
	if err := db.UpdateSession(id, 0, models.SessionFailed); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}
	if _, _, err := db.ResumeSession(id); err == nil {
		t.Error("resuming a failed session should fail")
	}
}

func TestListSessionsNewestFirst(t *testing.T) {
	db := openTestDB(t)

	first, _ := db.CreateSession(twoPhasePlan())
	time.Sleep(10 * time.Millisecond)
	second, _ := db.CreateSession(twoPhasePlan())
	if err := db.SaveTaskResult(second, &models.TaskResult{
		TaskID: "t1", Status: models.TaskStatusSucceeded, Attempts: 1,
	}); err != nil {
		t.Fatalf("SaveTaskResult: %v", err)
	}

	infos, err := db.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("listed %d sessions, want 2", len(infos))
	}
	if infos[0].ID != second || infos[1].ID != first {
		t.Errorf("order = [%s %s], want newest first", infos[0].ID, infos[1].ID)
	}
	if infos[0].Results != 1 || infos[1].Results != 0 {
		t.Errorf("result counts = [%d %d], want [1 0]", infos[0].Results, infos[1].Results)
	}
	if infos[0].PlanName != "login flow" {
		t.Errorf("plan name = %q, want %q", infos[0].PlanName, "login flow")
	}
}

func TestPurgeOldSessions(t *testing.T) {
	db := openTestDB(t)
	id, _ := db.CreateSession(twoPhasePlan())
	if err := db.SaveTaskResult(id, &models.TaskResult{
		TaskID: "t1", Status: models.TaskStatusSucceeded, Attempts: 1,
	}); err != nil {
		t.Fatalf("SaveTaskResult: %v", err)
	}

	// A generous window keeps the fresh session.
	n, err := db.PurgeOldSessions(24 * time.Hour)
	if err != nil {
		t.Fatalf("PurgeOldSessions: %v", err)
	}
	if n != 0 {
		t.Errorf("purged %d sessions inside retention, want 0", n)
	}

	// A negative window puts the cutoff in the future and purges everything.
	n, err = db.PurgeOldSessions(-time.Hour)
	if err != nil {
		t.Fatalf("PurgeOldSessions: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d sessions, want 1", n)
	}
	if _, err := db.GetSessionState(id); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("session survived purge: err = %v", err)
	}
}
