package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/calibrae/testflow/internal/config"
	"github.com/calibrae/testflow/internal/device"
	"github.com/calibrae/testflow/internal/orchestrator"
	"github.com/calibrae/testflow/internal/report"
	"github.com/calibrae/testflow/pkg/models"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <session-id>",
	Short: "Resume an interrupted session",
	Long: `Resume a paused or interrupted session.

Execution re-enters the scheduling loop at the first phase with unfinished
work. Tasks that already reached a terminal state are never re-executed.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func runResume(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	sessionID := args[0]
	adapter := device.NewSimAdapter()
	if runSimLatency > 0 {
		adapter.SetLatency(runSimLatency)
	}

	session, err := executePlan(cfg, func(o *orchestrator.Orchestrator) (*models.Session, error) {
		return o.ResumeWorkflow(cmd.Context(), sessionID)
	}, adapter)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Print(report.Render(session))
	if session.Status == models.SessionFailed {
		os.Exit(1)
	}
	return nil
}
