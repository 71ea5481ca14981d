package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/calibrae/testflow/internal/config"
	"github.com/calibrae/testflow/internal/control"
	"github.com/calibrae/testflow/internal/device"
	"github.com/calibrae/testflow/internal/orchestrator"
	"github.com/calibrae/testflow/internal/plan"
	"github.com/calibrae/testflow/internal/report"
	"github.com/calibrae/testflow/pkg/models"
)

var (
	runConcurrency int
	runTimeout     time.Duration
	runSimLatency  time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run <plan.yaml>",
	Short: "Execute a test plan",
	Long: `Execute a test plan from a YAML file.

Creates a new session, runs the plan phase by phase against the simulated
automation backend, and prints a summary report. Drop a file named stop or
pause into .testflow/signals/ to stop or pause the run after the current
execution group drains; a resume file continues a paused run in place.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "Max concurrent tasks per execution group (0 = config default)")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Default per-task timeout (0 = config default)")
	runCmd.Flags().DurationVar(&runSimLatency, "sim-latency", 0, "Artificial latency per simulated task")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	p, err := plan.Load(args[0])
	if err != nil {
		return err
	}

	adapter := device.NewSimAdapter()
	if runSimLatency > 0 {
		adapter.SetLatency(runSimLatency)
	}

	session, err := executePlan(cfg, func(o *orchestrator.Orchestrator) (*models.Session, error) {
		ctx := cmd.Context()
		return o.ExecuteWorkflow(ctx, p)
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

// executePlan wires the store, validator, orchestrator, signal watcher, and
// event printer around one workflow invocation.
func executePlan(cfg *config.Config, invoke func(*orchestrator.Orchestrator) (*models.Session, error), adapter device.Adapter) (*models.Session, error) {
	db, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	concurrency := cfg.Execution.MaxConcurrentTasks
	if runConcurrency > 0 {
		concurrency = runConcurrency
	}
	timeout := cfg.Execution.TaskTimeout
	if runTimeout > 0 {
		timeout = runTimeout
	}

	cwd, _ := os.Getwd()
	emitter := orchestrator.NewEventEmitter(64)
	pause := orchestrator.NewPauseController()
	opts := []orchestrator.Option{
		orchestrator.WithMaxConcurrentTasks(concurrency),
		orchestrator.WithTaskTimeout(timeout),
		orchestrator.WithValidator(buildValidator(cfg)),
		orchestrator.WithEmitter(emitter),
		orchestrator.WithLogger(orchestrator.NewDebugLoggerForDir(cwd)),
		orchestrator.WithPauseController(pause),
	}

	signalDir := control.DefaultSignalDir(cwd)
	control.ClearSignals(signalDir)
	watcher, err := control.NewWatcher(signalDir, pause)
	if err == nil {
		defer watcher.Close()
		// Poll between execution groups so signal files still land when
		// filesystem notification is unavailable.
		opts = append(opts, orchestrator.WithSignalPoller(watcher.Poll))
		if watcher.Degraded() {
			fmt.Fprintln(os.Stderr, "warning: filesystem notification unavailable, signal files are checked between execution groups")
		}
	} else {
		fmt.Fprintf(os.Stderr, "warning: signal directory unavailable, run control disabled: %v\n", err)
	}

	o := orchestrator.New(db, adapter, opts...)

	done := make(chan struct{})
	go consumeEvents(o.Events(), done)

	session, err := invoke(o)
	emitter.Close()
	<-done
	return session, err
}
