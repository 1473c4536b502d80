package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"curator/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workflow.ExportWorkers != 4 {
		t.Fatalf("expected default export workers, got %d", cfg.Workflow.ExportWorkers)
	}
	if cfg.Logging.Format != "console" {
		t.Fatalf("expected console log format, got %q", cfg.Logging.Format)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[paths]
data_dir = "` + dir + `"
media_root = "` + dir + `"
export_dir = "` + dir + `"

[workflow]
item_timeout = 120
max_item_retries = 5
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workflow.ItemTimeout != 120 {
		t.Fatalf("expected item timeout 120, got %d", cfg.Workflow.ItemTimeout)
	}
	if cfg.Workflow.MaxItemRetries != 5 {
		t.Fatalf("expected max retries 5, got %d", cfg.Workflow.MaxItemRetries)
	}
	if cfg.Workflow.HeartbeatInterval != 5 {
		t.Fatalf("expected default heartbeat interval, got %d", cfg.Workflow.HeartbeatInterval)
	}
}

func TestValidateRejectsBadHeartbeat(t *testing.T) {
	cfg := config.Default()
	cfg.Workflow.HeartbeatTimeout = cfg.Workflow.HeartbeatInterval
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "heartbeat_timeout") {
		t.Fatalf("expected heartbeat validation error, got %v", err)
	}
}

func TestValidateRejectsUnknownLogFormat(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Format = "xml"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for log format")
	}
}

func TestWriteSampleRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := config.WriteSample(path); err != nil {
		t.Fatalf("WriteSample: %v", err)
	}
	if err := config.WriteSample(path); err == nil {
		t.Fatal("expected error writing over existing config")
	}
}
