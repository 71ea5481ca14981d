package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/calibrae/testflow/internal/config"
	"github.com/calibrae/testflow/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report <session-id>",
	Short: "Show a session report",
	Long: `Render a summary report for a completed or in-progress session:
per-phase rollups, task statuses, attempts, and validation verdicts.`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	session, err := db.GetSessionState(args[0])
	if err != nil {
		return err
	}

	fmt.Print(report.Render(session))
	return nil
}
