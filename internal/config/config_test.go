package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ia319/nola/internal/config"
)

func TestLoadUsesDefaultsWhenFileMissing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "config.toml")
	cfg, resolved, exists, err := config.Load(missing)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing config file")
	}
	if resolved != missing {
		t.Fatalf("expected resolved path %q, got %q", missing, resolved)
	}
	if cfg.Workflow.DefaultMaxAttempts != 3 {
		t.Fatalf("unexpected default max attempts: %d", cfg.Workflow.DefaultMaxAttempts)
	}
	if cfg.Workflow.HeartbeatTimeout <= cfg.Workflow.HeartbeatInterval {
		t.Fatal("default heartbeat timeout must exceed the interval")
	}
}

func TestLoadParsesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
data_dir = "` + dir + `/data"

[workflow]
worker_count = 4
heartbeat_interval = 5
heartbeat_timeout = 60

[logging]
format = "json"
level = "debug"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to be found")
	}
	if cfg.Workflow.WorkerCount != 4 {
		t.Fatalf("worker_count = %d, want 4", cfg.Workflow.WorkerCount)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
	if cfg.Paths.UploadDir != filepath.Join(dir, "data", "uploads") {
		t.Fatalf("upload dir not derived from data dir: %s", cfg.Paths.UploadDir)
	}
}

func TestValidateRejectsHeartbeatTimeoutAtOrBelowInterval(t *testing.T) {
	cfg := config.Default()
	cfg.Workflow.HeartbeatInterval = 30
	cfg.Workflow.HeartbeatTimeout = 30
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "heartbeat_timeout") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsUnknownDevice(t *testing.T) {
	cfg := config.Default()
	cfg.Transcription.Device = "tpu"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unknown device")
	}
}

func TestSampleConfigNotEmpty(t *testing.T) {
	if strings.TrimSpace(config.SampleConfig()) == "" {
		t.Fatal("embedded sample config is empty")
	}
}
