package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaultsWithNoFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.UpdatePeriodSec != 300 {
		t.Fatalf("expected default update_period 300, got %d", cfg.UpdatePeriodSec)
	}
	if cfg.NoSuchNamePerHourThreshold != 10 {
		t.Fatalf("expected default threshold 10, got %d", cfg.NoSuchNamePerHourThreshold)
	}
	if !cfg.UseMultiprocessing {
		t.Fatal("expected use_multiprocessing default true")
	}
}

func TestLoadReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "sentinel.yaml")
	content := "monitor_interface: eth1\ncapture_filter: \"tcp port 80\"\nupdate_period: 60\nserver_update: http://example.com/trails\n"
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MonitorInterface != "eth1" {
		t.Fatalf("expected eth1, got %q", cfg.MonitorInterface)
	}
	if cfg.CaptureFilter != "tcp port 80" {
		t.Fatalf("expected filter override, got %q", cfg.CaptureFilter)
	}
	if cfg.UpdatePeriodSec != 60 {
		t.Fatalf("expected update_period 60, got %d", cfg.UpdatePeriodSec)
	}
	if cfg.ServerUpdate != "http://example.com/trails" {
		t.Fatalf("expected server_update override, got %q", cfg.ServerUpdate)
	}
	// unspecified keys keep their defaults
	if cfg.BufferLength != 1024 {
		t.Fatalf("expected default buffer_length 1024, got %d", cfg.BufferLength)
	}
}

func TestLoadReturnsErrorOnMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/sentinel.yaml"); err == nil {
		t.Fatal("expected error reading nonexistent config file")
	}
}
