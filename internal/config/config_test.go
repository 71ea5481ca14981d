package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFromPath(t *testing.T) {
	path := writeConfig(t, `
anthropic:
  api_key: test-key
  model: claude-sonnet-4-20250514
execution:
  max_concurrent_tasks: 5
  task_timeout: 90s
validation:
  confidence_threshold: 0.85
storage:
  retention: 48h
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}

	if cfg.Anthropic.APIKey != "test-key" {
		t.Errorf("api key = %q", cfg.Anthropic.APIKey)
	}
	if cfg.Anthropic.Model != "claude-sonnet-4-20250514" {
		t.Errorf("model = %q", cfg.Anthropic.Model)
	}
	if cfg.Execution.MaxConcurrentTasks != 5 {
		t.Errorf("max concurrent = %d, want 5", cfg.Execution.MaxConcurrentTasks)
	}
	if cfg.Execution.TaskTimeout != 90*time.Second {
		t.Errorf("task timeout = %s, want 90s", cfg.Execution.TaskTimeout)
	}
	if cfg.Validation.ConfidenceThreshold != 0.85 {
		t.Errorf("threshold = %v, want 0.85", cfg.Validation.ConfidenceThreshold)
	}
	if cfg.Storage.Retention != 48*time.Hour {
		t.Errorf("retention = %s, want 48h", cfg.Storage.Retention)
	}
}

func TestLoadFromPathFillsDefaults(t *testing.T) {
	path := writeConfig(t, `
anthropic:
  api_key: test-key
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}

	if cfg.Execution.MaxConcurrentTasks != 3 {
		t.Errorf("max concurrent = %d, want default 3", cfg.Execution.MaxConcurrentTasks)
	}
	if cfg.Execution.TaskTimeout != 5*time.Minute {
		t.Errorf("task timeout = %s, want default 5m", cfg.Execution.TaskTimeout)
	}
	if cfg.Validation.ConfidenceThreshold != 0.7 {
		t.Errorf("threshold = %v, want default 0.7", cfg.Validation.ConfidenceThreshold)
	}
	if !cfg.Validation.Enabled {
		t.Error("validation should default to enabled")
	}
	if cfg.Analysis.Timeout != 30*time.Second {
		t.Errorf("analysis timeout = %s, want default 30s", cfg.Analysis.Timeout)
	}
	if cfg.Storage.Retention != 720*time.Hour {
		t.Errorf("retention = %s, want default 720h", cfg.Storage.Retention)
	}
}

func TestLoadFromPathExpandsEnv(t *testing.T) {
	t.Setenv("TESTFLOW_TEST_KEY", "expanded-key")
	path := writeConfig(t, `
anthropic:
  api_key: ${TESTFLOW_TEST_KEY}
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Anthropic.APIKey != "expanded-key" {
		t.Errorf("api key = %q, want expansion applied", cfg.Anthropic.APIKey)
	}
}

func TestLoadFromPathMissingFile(t *testing.T) {
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected an error for a missing config file")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Execution.MaxConcurrentTasks != 3 || cfg.Execution.TaskTimeout != 5*time.Minute {
		t.Errorf("execution defaults = %+v", cfg.Execution)
	}
	if cfg.Validation.ConfidenceThreshold != 0.7 || !cfg.Validation.Enabled {
		t.Errorf("validation defaults = %+v", cfg.Validation)
	}
}
