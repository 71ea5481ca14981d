package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "testflow",
	Short: "Test plan coordination engine",
	Long: `Testflow executes multi-phase test plans against an automation backend,
with dependency-aware scheduling, durable checkpoint/resume sessions, and
hybrid rule-plus-analysis result validation.

A plan declares ordered phases of tasks with dependencies. Testflow computes
execution groups, runs them concurrently within a configured bound, persists
every result before validating it, and can resume an interrupted session
without re-executing finished work.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(signalCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
