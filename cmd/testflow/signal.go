package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/calibrae/testflow/internal/control"
)

var signalCmd = &cobra.Command{
	Use:   "signal {stop|pause|resume}",
	Short: "Signal a running session",
	Long: `Send a run-control signal to the session running in this directory.

stop pauses the session permanently for this process; pause holds it until a
resume signal arrives. Either way the current execution group drains first,
so no task is aborted mid-flight.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"stop", "pause", "resume"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		dir := control.DefaultSignalDir(cwd)

		switch args[0] {
		case "stop":
			err = control.SendStop(dir)
		case "pause":
			err = control.SendPause(dir)
		case "resume":
			err = control.SendResume(dir)
		default:
			return fmt.Errorf("unknown signal %q", args[0])
		}
		if err != nil {
			return err
		}
		fmt.Printf("sent %s signal\n", args[0])
		return nil
	},
}
