package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/calibrae/testflow/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key]",
	Short: "Show configuration",
	Long: `Display the effective configuration.

Without arguments, displays all values. With one argument, displays the
value for that key.

Configuration is stored at ~/.config/testflow/config.yaml
Project-specific overrides can be placed in .testflow.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		default:
			displayConfigKey(cfg, args[0])
		}
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	// Mask API key if set
	apiKeyDisplay := "(not set)"
	if cfg.Anthropic.APIKey != "" {
		apiKeyDisplay = "****"
	}

	fmt.Printf("anthropic.api_key: %s\n", apiKeyDisplay)
	fmt.Printf("anthropic.model: %s\n", cfg.Anthropic.Model)
	fmt.Printf("anthropic.use_bedrock: %t\n", cfg.Anthropic.UseBedrock)
	fmt.Printf("execution.max_concurrent_tasks: %d\n", cfg.Execution.MaxConcurrentTasks)
	fmt.Printf("execution.task_timeout: %s\n", cfg.Execution.TaskTimeout)
	fmt.Printf("validation.confidence_threshold: %.2f\n", cfg.Validation.ConfidenceThreshold)
	fmt.Printf("validation.enabled: %t\n", cfg.Validation.Enabled)
	fmt.Printf("analysis.timeout: %s\n", cfg.Analysis.Timeout)
	fmt.Printf("storage.path: %s\n", cfg.Storage.Path)
	fmt.Printf("storage.retention: %s\n", cfg.Storage.Retention)
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	switch key {
	case "anthropic.api_key":
		if cfg.Anthropic.APIKey != "" {
			fmt.Println("****")
		} else {
			fmt.Println("(not set)")
		}
	case "anthropic.model":
		fmt.Println(cfg.Anthropic.Model)
	case "anthropic.use_bedrock":
		fmt.Println(cfg.Anthropic.UseBedrock)
	case "execution.max_concurrent_tasks":
		fmt.Println(cfg.Execution.MaxConcurrentTasks)
	case "execution.task_timeout":
		fmt.Println(cfg.Execution.TaskTimeout)
	case "validation.confidence_threshold":
		fmt.Println(cfg.Validation.ConfidenceThreshold)
	case "validation.enabled":
		fmt.Println(cfg.Validation.Enabled)
	case "analysis.timeout":
		fmt.Println(cfg.Analysis.Timeout)
	case "storage.path":
		fmt.Println(cfg.Storage.Path)
	case "storage.retention":
		fmt.Println(cfg.Storage.Retention)
	default:
		fmt.Fprintf(os.Stderr, "Unknown configuration key: %s\n", key)
		os.Exit(1)
	}
}
