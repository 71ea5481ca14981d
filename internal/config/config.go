// Package config handles configuration loading and management for testflow.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for testflow.
type Config struct {
	Anthropic  AnthropicConfig  `mapstructure:"anthropic"`
	Execution  ExecutionConfig  `mapstructure:"execution"`
	Validation ValidationConfig `mapstructure:"validation"`
	Analysis   AnalysisConfig   `mapstructure:"analysis"`
	Storage    StorageConfig    `mapstructure:"storage"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
	// UseBedrock routes analysis calls through AWS Bedrock.
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
}

// ExecutionConfig holds scheduling settings.
type ExecutionConfig struct {
	// MaxConcurrentTasks bounds how many tasks of one execution group run
	// at once.
	MaxConcurrentTasks int `mapstructure:"max_concurrent_tasks"`
	// TaskTimeout is the default per-task execution deadline, used when a
	// task declares none.
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
}

// ValidationConfig holds result validation settings.
type ValidationConfig struct {
	// ConfidenceThreshold is the minimum analysis confidence for a
	// passing verdict.
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	// Enabled toggles analysis escalation; rules always run.
	Enabled bool `mapstructure:"enabled"`
}

// AnalysisConfig holds analysis service settings.
type AnalysisConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// StorageConfig holds session store settings.
type StorageConfig struct {
	// Path overrides the session database location.
	Path string `mapstructure:"path"`
	// Retention is how long finished sessions are kept by purge.
	Retention time.Duration `mapstructure:"retention"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY)
// 2. Project config (.testflow.yaml in current directory or parent)
// 3. User config (~/.config/testflow/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "")
	v.SetDefault("anthropic.use_bedrock", false)

	v.SetDefault("execution.max_concurrent_tasks", 3)
	v.SetDefault("execution.task_timeout", "5m")

	v.SetDefault("validation.confidence_threshold", 0.7)
	v.SetDefault("validation.enabled", true)

	v.SetDefault("analysis.timeout", "30s")

	v.SetDefault("storage.path", "")
	v.SetDefault("storage.retention", "720h")
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Execution: ExecutionConfig{
			MaxConcurrentTasks: 3,
			TaskTimeout:        5 * time.Minute,
		},
		Validation: ValidationConfig{
			ConfidenceThreshold: 0.7,
			Enabled:             true,
		},
		Analysis: AnalysisConfig{
			Timeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Retention: 720 * time.Hour,
		},
	}
}

// getUserConfigDir returns the XDG config directory for testflow.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "testflow")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "testflow")
	}
	return filepath.Join(home, ".config", "testflow")
}

// findProjectConfig searches for .testflow.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".testflow.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}
