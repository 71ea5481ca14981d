package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/calibrae/testflow/internal/config"
	"github.com/calibrae/testflow/pkg/models"
)

var sessionsPurge bool

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List stored sessions",
	Long: `List stored sessions, newest first.

With --purge, sessions older than the configured retention window are
deleted along with their task results.`,
	RunE: runSessions,
}

func init() {
	sessionsCmd.Flags().BoolVar(&sessionsPurge, "purge", false, "Delete sessions older than the retention window")
}

func runSessions(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if sessionsPurge {
		n, err := db.PurgeOldSessions(cfg.Storage.Retention)
		if err != nil {
			return err
		}
		fmt.Printf("purged %d sessions older than %s\n", n, cfg.Storage.Retention)
	}

	infos, err := db.ListSessions()
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("No sessions. Run 'testflow run <plan.yaml>' to start one.")
		return nil
	}

	for _, info := range infos {
		fmt.Printf("%s  %-10s %-24s %3d results  %s\n",
			info.ID, statusString(info.Status), info.PlanName, info.Results,
			info.StartedAt.Format(time.RFC3339))
	}
	return nil
}

func statusString(s models.SessionStatus) string {
	switch s {
	case models.SessionCompleted:
		return color.GreenString(string(s))
	case models.SessionFailed:
		return color.RedString(string(s))
	case models.SessionPaused:
		return color.YellowString(string(s))
	default:
		return string(s)
	}
}
