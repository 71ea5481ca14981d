// Package device abstracts the automation backend that executes individual
// tasks. The coordinator is agnostic to what sits behind the interface: a
// real device farm, an emulator bridge, or the simulator used in tests.
package device

import (
	"context"

	"github.com/calibrae/testflow/pkg/models"
)

// Outcome is a single attempt's observed result. The backend may retry
// internally; the caller treats any non-success return as one attempt.
type Outcome struct {
	// Success indicates whether the backend considers the attempt passed.
	Success bool
	// Output is the raw output captured during execution.
	Output string
	// Error describes the failure when Success is false.
	Error string
}

// Adapter executes one task against the automation backend. Execute blocks
// until the attempt reaches an outcome or ctx is cancelled; a ctx error is
// returned as an error, not an Outcome.
type Adapter interface {
	Execute(ctx context.Context, task *models.Task) (*Outcome, error)
}
