package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gitter-badger/zproc/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	if cfg.Server.ReplyAddr == "" {
		t.Error("got empty Server.ReplyAddr, want a default socket path")
	}
	if cfg.Dispatch.WorkerCap != 32 {
		t.Errorf("got Dispatch.WorkerCap %d, want 32", cfg.Dispatch.WorkerCap)
	}
}

func TestConfig_Merge(t *testing.T) {
	cfg := config.DefaultConfig()

	source := &config.Config{
		Server:   config.ServerConfig{ReplyAddr: "/tmp/custom-reply.sock"},
		Dispatch: config.DispatchConfig{WorkerCap: 8, FailFast: true},
	}

	cfg.Merge(source)

	if cfg.Server.ReplyAddr != "/tmp/custom-reply.sock" {
		t.Errorf("got Server.ReplyAddr %q, want custom", cfg.Server.ReplyAddr)
	}
	if cfg.Dispatch.WorkerCap != 8 {
		t.Errorf("got Dispatch.WorkerCap %d, want 8", cfg.Dispatch.WorkerCap)
	}
	if !cfg.Dispatch.FailFast {
		t.Error("got FailFast false, want true")
	}
}

func TestConfig_Merge_ZeroValuesPreserveDefaults(t *testing.T) {
	cfg := config.DefaultConfig()
	original := cfg.Server.PubAddr

	cfg.Merge(&config.Config{})

	if cfg.Server.PubAddr != original {
		t.Errorf("got Server.PubAddr %q, want %q (preserved default)", cfg.Server.PubAddr, original)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")

	content := `{
		"server": {"reply_addr": "/tmp/loaded-reply.sock"},
		"dispatch": {"worker_cap": 4}
	}`

	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.ReplyAddr != "/tmp/loaded-reply.sock" {
		t.Errorf("got Server.ReplyAddr %q, want loaded value", cfg.Server.ReplyAddr)
	}
	if cfg.Dispatch.WorkerCap != 4 {
		t.Errorf("got Dispatch.WorkerCap %d, want 4", cfg.Dispatch.WorkerCap)
	}
	// Untouched fields keep their defaults.
	if cfg.Server.PubAddr == "" {
		t.Error("got empty Server.PubAddr, want default preserved")
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := config.LoadConfig("/nonexistent/path/config.json")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "bad.json")

	if err := os.WriteFile(configPath, []byte("{invalid}"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	_, err := config.LoadConfig(configPath)
	if err == nil {
		t.Fatal("expected error for invalid JSON, got nil")
	}
}
