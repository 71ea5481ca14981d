package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/calibrae/testflow/pkg/models"
)

// SessionInfo is a lightweight listing row for a persisted session.
type SessionInfo struct {
	ID        string
	PlanID    string
	PlanName  string
	Status    models.SessionStatus
	StartedAt time.Time
	UpdatedAt time.Time
	Results   int
}

// CreateSession allocates a new session for the plan with an empty result
// mapping and status running, persisting it before returning the session ID.
func (db *DB) CreateSession(p *models.TestPlan) (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	planJSON, err := json.Marshal(p)
	if err != nil {
		return "", &StorageError{Op: "encode plan", Err: err}
	}

	id := uuid.NewString()
	now := formatTime(time.Now())
	_, err = db.conn.Exec(`
		INSERT INTO sessions (id, plan_id, plan, phase_index, status, started_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?, ?)
	`, id, p.ID, string(planJSON), string(models.SessionRunning), now, now)
	if err != nil {
		return "", &StorageError{Op: "create session", Err: err}
	}
	return id, nil
}

// SaveTaskResult upserts a task result into the session's mapping and bumps
// the session's last-update timestamp. The write is committed before the
// call returns: a crash after SaveTaskResult must resume with this task
// correctly recorded, never re-executed.
//
// A result that already reached a terminal status is immutable. Re-saving
// the identical terminal status is accepted idempotently (the validation
// attachment may still be updated); any other overwrite fails with
// ErrInvalidTransition.
func (db *DB) SaveTaskResult(sessionID string, r *models.TaskResult) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return &StorageError{Op: "begin transaction", Err: err}
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRow(`
		SELECT status FROM task_results WHERE session_id = ? AND task_id = ?
	`, sessionID, r.TaskID).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
		// First write for this task.
	case err != nil:
		return &StorageError{Op: "read task result", Err: err}
	default:
		if models.TaskStatus(existing).Terminal() && models.TaskStatus(existing) != r.Status {
			return fmt.Errorf("%w: task %s is %s, cannot become %s",
				ErrInvalidTransition, r.TaskID, existing, r.Status)
		}
	}

	var validation any
	if r.Validation != nil {
		b, err := json.Marshal(r.Validation)
		if err != nil {
			return &StorageError{Op: "encode validation", Err: err}
		}
		validation = string(b)
	}

	var startedAt, finishedAt any
	if !r.StartedAt.IsZero() {
		startedAt = formatTime(r.StartedAt)
	}
	if !r.FinishedAt.IsZero() {
		finishedAt = formatTime(r.FinishedAt)
	}

	_, err = tx.Exec(`
		INSERT INTO task_results (session_id, task_id, status, output, error_detail, attempts, started_at, finished_at, validation)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, task_id) DO UPDATE SET
			status = excluded.status,
			output = excluded.output,
			error_detail = excluded.error_detail,
			attempts = excluded.attempts,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			validation = excluded.validation
	`, sessionID, r.TaskID, string(r.Status), r.Output, r.ErrorDetail, r.Attempts, startedAt, finishedAt, validation)
	if err != nil {
		return &StorageError{Op: "save task result", Err: err}
	}

	_, err = tx.Exec(`UPDATE sessions SET updated_at = ? WHERE id = ?`,
		formatTime(time.Now()), sessionID)
	if err != nil {
		return &StorageError{Op: "touch session", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "commit task result", Err: err}
	}
	return nil
}

// UpdateSession records the session's phase pointer and overall status.
func (db *DB) UpdateSession(sessionID string, phaseIndex int, status models.SessionStatus) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	res, err := db.conn.Exec(`
		UPDATE sessions SET phase_index = ?, status = ?, updated_at = ? WHERE id = ?
	`, phaseIndex, string(status), formatTime(time.Now()), sessionID)
	if err != nil {
		return &StorageError{Op: "update session", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return nil
}

// GetSessionState reconstructs the full in-memory session: plan, phase
// pointer, status, and the task-result mapping in discovery order. It is the
// read-only snapshot the reporter consumes.
func (db *DB) GetSessionState(sessionID string) (*models.Session, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.getSessionLocked(sessionID)
}

func (db *DB) getSessionLocked(sessionID string) (*models.Session, error) {
	row := db.conn.QueryRow(`
		SELECT id, plan, phase_index, status, started_at, updated_at
		FROM sessions WHERE id = ?
	`, sessionID)

	var s models.Session
	var planJSON, startedAt, updatedAt string
	var status string
	err := row.Scan(&s.ID, &planJSON, &s.PhaseIndex, &status, &startedAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, &StorageError{Op: "get session", Err: err}
	}

	var p models.TestPlan
	if err := json.Unmarshal([]byte(planJSON), &p); err != nil {
		return nil, &StorageError{Op: "decode plan", Err: err}
	}
	s.Plan = &p
	s.Status = models.SessionStatus(status)
	// The plan's lifecycle mirrors the session once execution starts; the
	// stored plan JSON keeps its creation-time status.
	switch s.Status {
	case models.SessionCompleted:
		p.Status = models.PlanStatusCompleted
	case models.SessionFailed:
		p.Status = models.PlanStatusFailed
	default:
		p.Status = models.PlanStatusRunning
	}
	s.StartedAt, _ = parseTime(startedAt)
	s.UpdatedAt, _ = parseTime(updatedAt)

	// rowid order preserves insertion, which is discovery order.
	rows, err := db.conn.Query(`
		SELECT task_id, status, output, error_detail, attempts, started_at, finished_at, validation
		FROM task_results WHERE session_id = ? ORDER BY rowid
	`, sessionID)
	if err != nil {
		return nil, &StorageError{Op: "list task results", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var r models.TaskResult
		var rstatus string
		var output, errDetail, started, finished, validation sql.NullString
		if err := rows.Scan(&r.TaskID, &rstatus, &output, &errDetail, &r.Attempts, &started, &finished, &validation); err != nil {
			return nil, &StorageError{Op: "scan task result", Err: err}
		}
		r.Status = models.TaskStatus(rstatus)
		r.Output = output.String
		r.ErrorDetail = errDetail.String
		r.StartedAt = parseNullableTime(started)
		r.FinishedAt = parseNullableTime(finished)
		if validation.Valid && validation.String != "" {
			var v models.ValidationResult
			if err := json.Unmarshal([]byte(validation.String), &v); err == nil {
				r.Validation = &v
			}
		}
		s.Results = append(s.Results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "iterate task results", Err: err}
	}

	return &s, nil
}

// GetCompletedTasks returns the session's results that reached a terminal
// status, in discovery order.
func (db *DB) GetCompletedTasks(sessionID string) ([]models.TaskResult, error) {
	s, err := db.GetSessionState(sessionID)
	if err != nil {
		return nil, err
	}
	var completed []models.TaskResult
	for _, r := range s.Results {
		if r.Terminal() {
			completed = append(completed, r)
		}
	}
	return completed, nil
}

// GetPendingTasks returns the plan's tasks that have not reached a terminal
// status, in plan declaration order.
func (db *DB) GetPendingTasks(sessionID string) ([]models.Task, error) {
	s, err := db.GetSessionState(sessionID)
	if err != nil {
		return nil, err
	}
	var pending []models.Task
	for _, ph := range s.Plan.Phases {
		for _, t := range ph.Tasks {
			if r := s.Result(t.ID); r == nil || !r.Terminal() {
				pending = append(pending, t)
			}
		}
	}
	return pending, nil
}

// ResumeSession reconstructs an interrupted session and computes the resume
// point: the index of the first phase containing at least one task not in a
// terminal state. Tasks already terminal are never re-executed, and a session
// that already reached a final status cannot be resumed.
func (db *DB) ResumeSession(sessionID string) (*models.Session, int, error) {
	s, err := db.GetSessionState(sessionID)
	if err != nil {
		return nil, 0, err
	}
	if s.Status == models.SessionCompleted || s.Status == models.SessionFailed {
		return nil, 0, fmt.Errorf("session %s already %s", sessionID, s.Status)
	}

	resumePoint := len(s.Plan.Phases)
	for i, ph := range s.Plan.Phases {
		for _, t := range ph.Tasks {
			if r := s.Result(t.ID); r == nil || !r.Terminal() {
				resumePoint = i
				break
			}
		}
		if resumePoint == i {
			break
		}
	}
	return s, resumePoint, nil
}

// ListSessions lists all sessions, newest first.
func (db *DB) ListSessions() ([]SessionInfo, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`
		SELECT s.id, s.plan_id, s.plan, s.status, s.started_at, s.updated_at,
			(SELECT COUNT(*) FROM task_results r WHERE r.session_id = s.id)
		FROM sessions s ORDER BY s.started_at DESC
	`)
	if err != nil {
		return nil, &StorageError{Op: "list sessions", Err: err}
	}
	defer rows.Close()

	var infos []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var planJSON, status, startedAt, updatedAt string
		if err := rows.Scan(&info.ID, &info.PlanID, &planJSON, &status, &startedAt, &updatedAt, &info.Results); err != nil {
			return nil, &StorageError{Op: "scan session", Err: err}
		}
		var p models.TestPlan
		if err := json.Unmarshal([]byte(planJSON), &p); err == nil {
			info.PlanName = p.Name
		}
		info.Status = models.SessionStatus(status)
		info.StartedAt, _ = parseTime(startedAt)
		info.UpdatedAt, _ = parseTime(updatedAt)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// PurgeOldSessions deletes sessions (and their results) started before the
// retention window. Returns the number of sessions deleted.
func (db *DB) PurgeOldSessions(olderThan time.Duration) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	cutoff := formatTime(time.Now().Add(-olderThan))

	tx, err := db.conn.Begin()
	if err != nil {
		return 0, &StorageError{Op: "begin transaction", Err: err}
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		DELETE FROM task_results WHERE session_id IN
			(SELECT id FROM sessions WHERE started_at < ?)
	`, cutoff)
	if err != nil {
		return 0, &StorageError{Op: "purge task results", Err: err}
	}

	res, err := tx.Exec(`DELETE FROM sessions WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, &StorageError{Op: "purge sessions", Err: err}
	}
	count, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, &StorageError{Op: "commit purge", Err: err}
	}
	return count, nil
}
