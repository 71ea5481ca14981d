package main

import (
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/fatih/color"

	"github.com/calibrae/testflow/internal/analysis"
	"github.com/calibrae/testflow/internal/config"
	"github.com/calibrae/testflow/internal/orchestrator"
	"github.com/calibrae/testflow/internal/state"
	"github.com/calibrae/testflow/internal/validate"
)

// openStore opens and migrates the session database.
func openStore(cfg *config.Config) (*state.DB, error) {
	path := cfg.Storage.Path
	if path == "" {
		path = state.DefaultDBPath()
	}
	db, err := state.Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// buildValidator constructs the result validator, wiring in the analysis
// service when an API key (or Bedrock) is configured. Without one the
// validator runs rules only.
func buildValidator(cfg *config.Config) *validate.Validator {
	opts := []validate.Option{
		validate.WithConfidenceThreshold(cfg.Validation.ConfidenceThreshold),
	}

	if cfg.Validation.Enabled && (cfg.Anthropic.APIKey != "" || cfg.Anthropic.UseBedrock) {
		client, err := analysis.NewClient(analysis.ClientConfig{
			Model:         anthropic.Model(cfg.Anthropic.Model),
			APIKey:        cfg.Anthropic.APIKey,
			UseAWSBedrock: cfg.Anthropic.UseBedrock,
			AWSRegion:     cfg.Anthropic.AWSRegion,
			AWSProfile:    cfg.Anthropic.AWSProfile,
		})
		if err == nil {
			opts = append(opts, validate.WithAnalyzer(analysis.NewService(client, cfg.Analysis.Timeout)))
		} else {
			fmt.Fprintf(os.Stderr, "%s analysis service unavailable, validating with rules only: %v\n",
				color.YellowString("⚠"), err)
		}
	}

	return validate.NewValidator(opts...)
}

// consumeEvents prints live status lines until the emitter closes.
func consumeEvents(events <-chan orchestrator.Event, done chan<- struct{}) {
	for ev := range events {
		switch ev.Type {
		case orchestrator.EventPhaseStarted:
			fmt.Printf("%s phase %s\n", color.CyanString("▶"), ev.Phase)
		case orchestrator.EventPhaseSkipped:
			fmt.Printf("%s phase %s skipped\n", color.YellowString("↷"), ev.Phase)
		case orchestrator.EventTaskStarted:
			fmt.Printf("  %s %s (attempt %d)\n", color.CyanString("…"), ev.TaskID, ev.Attempt)
		case orchestrator.EventTaskSucceeded:
			fmt.Printf("  %s %s\n", color.GreenString("✓"), ev.TaskID)
		case orchestrator.EventTaskFailed:
			fmt.Printf("  %s %s: %s\n", color.RedString("✗"), ev.TaskID, ev.Message)
		case orchestrator.EventTaskRetried:
			fmt.Printf("  %s %s requeued: %s\n", color.YellowString("↻"), ev.TaskID, ev.Message)
		case orchestrator.EventTaskSkipped:
			fmt.Printf("  %s %s skipped: %s\n", color.YellowString("↷"), ev.TaskID, ev.Message)
		case orchestrator.EventValidationRejected:
			fmt.Printf("  %s %s rejected by validation: %s\n", color.RedString("✗"), ev.TaskID, ev.Message)
		case orchestrator.EventSessionPaused:
			fmt.Printf("%s session paused\n", color.YellowString("⏸"))
		case orchestrator.EventSessionDone:
			fmt.Printf("%s session %s\n", color.CyanString("■"), ev.Message)
		}
	}
	close(done)
}
