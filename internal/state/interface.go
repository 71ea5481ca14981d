package state

import (
	"io"
	"time"

	"github.com/calibrae/testflow/pkg/models"
)

// SessionStore handles session-level persistence operations.
type SessionStore interface {
	CreateSession(p *models.TestPlan) (string, error)
	GetSessionState(sessionID string) (*models.Session, error)
	UpdateSession(sessionID string, phaseIndex int, status models.SessionStatus) error
	ResumeSession(sessionID string) (*models.Session, int, error)
	ListSessions() ([]SessionInfo, error)
	PurgeOldSessions(olderThan time.Duration) (int64, error)
}

// ResultStore handles per-task result persistence operations.
type ResultStore interface {
	SaveTaskResult(sessionID string, r *models.TaskResult) error
	GetCompletedTasks(sessionID string) ([]models.TaskResult, error)
	GetPendingTasks(sessionID string) ([]models.Task, error)
}

// Migrator handles database schema migrations.
// Separating this allows clients to depend only on migration functionality.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// Store defines the interface for session persistence.
// This interface allows the orchestrator to work with any state backend
// without depending on the concrete SQLite implementation.
// It composes focused sub-interfaces for better modularity.
type Store interface {
	io.Closer
	Migrator
	SessionStore
	ResultStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Store        = (*DB)(nil)
	_ Migrator     = (*DB)(nil)
	_ SessionStore = (*DB)(nil)
	_ ResultStore  = (*DB)(nil)
)
