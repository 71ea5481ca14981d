// Package report renders read-only summaries of a session snapshot. It is
// the downstream consumer of the state layer's GetSessionState projection
// and never mutates what it reads.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/calibrae/testflow/pkg/models"
)

// PhaseSummary is one phase's rollup.
type PhaseSummary struct {
	Name      string
	Category  string
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	Pending   int
	Rejected  int
	Duration  time.Duration
}

// Summary is the aggregate view of a session used for reporting.
type Summary struct {
	SessionID string
	PlanName  string
	Status    models.SessionStatus
	StartedAt time.Time
	UpdatedAt time.Time
	Phases    []PhaseSummary
	// FirstFailure names the first task that caused a halt, if any.
	FirstFailure string
}

// Summarize aggregates a session snapshot into per-phase rollups.
func Summarize(s *models.Session) *Summary {
	sum := &Summary{
		SessionID: s.ID,
		PlanName:  s.Plan.Name,
		Status:    s.Status,
		StartedAt: s.StartedAt,
		UpdatedAt: s.UpdatedAt,
	}

	for i := range s.Plan.Phases {
		ph := &s.Plan.Phases[i]
		ps := PhaseSummary{
			Name:     ph.Name,
			Category: ph.Category,
			Total:    len(ph.Tasks),
		}
		for j := range ph.Tasks {
			r := s.Result(ph.Tasks[j].ID)
			if r == nil {
				ps.Pending++
				continue
			}
			switch r.Status {
			case models.TaskStatusSucceeded:
				if r.Validation != nil && !r.Validation.Verdict {
					ps.Rejected++
					if sum.FirstFailure == "" {
						sum.FirstFailure = r.TaskID
					}
				} else {
					ps.Succeeded++
				}
			case models.TaskStatusFailed:
				ps.Failed++
				if sum.FirstFailure == "" {
					sum.FirstFailure = r.TaskID
				}
			case models.TaskStatusSkipped:
				ps.Skipped++
			default:
				ps.Pending++
			}
			ps.Duration += r.Duration()
		}
		sum.Phases = append(sum.Phases, ps)
	}
	return sum
}

// Render produces a human-readable report for a session snapshot.
func Render(s *models.Session) string {
	sum := Summarize(s)
	var sb strings.Builder

	fmt.Fprintf(&sb, "Session %s\n", sum.SessionID)
	fmt.Fprintf(&sb, "Plan:    %s\n", sum.PlanName)
	fmt.Fprintf(&sb, "Status:  %s\n", sum.Status)
	fmt.Fprintf(&sb, "Started: %s\n", sum.StartedAt.Format(time.RFC3339))
	if sum.FirstFailure != "" {
		fmt.Fprintf(&sb, "First failure: %s\n", sum.FirstFailure)
	}
	sb.WriteString("\n")

	for _, ps := range sum.Phases {
		fmt.Fprintf(&sb, "Phase %s (%s): %d/%d succeeded", ps.Name, ps.Category, ps.Succeeded, ps.Total)
		if ps.Failed > 0 {
			fmt.Fprintf(&sb, ", %d failed", ps.Failed)
		}
		if ps.Rejected > 0 {
			fmt.Fprintf(&sb, ", %d rejected by validation", ps.Rejected)
		}
		if ps.Skipped > 0 {
			fmt.Fprintf(&sb, ", %d skipped", ps.Skipped)
		}
		if ps.Pending > 0 {
			fmt.Fprintf(&sb, ", %d pending", ps.Pending)
		}
		fmt.Fprintf(&sb, " [%s]\n", ps.Duration.Round(time.Millisecond))

		phase := s.Plan.FindPhase(ps.Name)
		for j := range phase.Tasks {
			r := s.Result(phase.Tasks[j].ID)
			sb.WriteString(renderTask(&phase.Tasks[j], r))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func renderTask(t *models.Task, r *models.TaskResult) string {
	if r == nil {
		return fmt.Sprintf("  - %-20s not run\n", t.ID)
	}

	line := fmt.Sprintf("  - %-20s %s", t.ID, r.Status)
	if r.Attempts > 1 {
		line += fmt.Sprintf(" (attempt %d)", r.Attempts)
	}
	if r.Validation != nil {
		verdict := "accepted"
		if !r.Validation.Verdict {
			verdict = "rejected"
		}
		line += fmt.Sprintf(", validation %s (%.2f)", verdict, r.Validation.Confidence)
	}
	if r.ErrorDetail != "" {
		line += " - " + r.ErrorDetail
	}
	return line + "\n"
}
