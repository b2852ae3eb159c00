package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNew_Defaults(t *testing.T) {
	os.Setenv(EnvDataDir, t.TempDir())
	defer os.Unsetenv(EnvDataDir)

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != DefaultPort {
		t.Errorf("Port = %d, want %d", cfg.Port(), DefaultPort)
	}
	if cfg.LogLevel() != DefaultLogLevel {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel(), DefaultLogLevel)
	}
	if cfg.SaveDebounce() != time.Second {
		t.Errorf("SaveDebounce = %v, want 1s", cfg.SaveDebounce())
	}
	if cfg.SaveFlushInterval() != 5*time.Second {
		t.Errorf("SaveFlushInterval = %v, want 5s", cfg.SaveFlushInterval())
	}
	if cfg.SaveMaxRetries() != 3 {
		t.Errorf("SaveMaxRetries = %d, want 3", cfg.SaveMaxRetries())
	}
	if cfg.SaveMaxPendingOps() != 50 {
		t.Errorf("SaveMaxPendingOps = %d, want 50", cfg.SaveMaxPendingOps())
	}
	if cfg.RemoteEnabled() {
		t.Error("RemoteEnabled should be false without credentials")
	}
}

func TestNew_InvalidPort(t *testing.T) {
	os.Setenv(EnvDataDir, t.TempDir())
	os.Setenv(EnvPort, "99999")
	defer os.Unsetenv(EnvDataDir)
	defer os.Unsetenv(EnvPort)

	if _, err := New(); err == nil {
		t.Error("New() should reject out-of-range port")
	}
}

func TestNew_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	content := `
port = 9100
log_level = "debug"

[remote]
base_url = "https://api.cutline.test"
token = "file-token"
org_slug = "acme"

[autosave]
debounce_ms = 250
max_pending_ops = 10
`
	if err := os.WriteFile(filepath.Join(dir, ConfigFilename), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	os.Setenv(EnvDataDir, dir)
	os.Setenv(EnvRemoteToken, "env-token")
	defer os.Unsetenv(EnvDataDir)
	defer os.Unsetenv(EnvRemoteToken)

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != 9100 {
		t.Errorf("Port = %d, want 9100", cfg.Port())
	}
	if cfg.LogLevel() != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel())
	}
	if cfg.RemoteBaseURL() != "https://api.cutline.test" {
		t.Errorf("RemoteBaseURL = %q", cfg.RemoteBaseURL())
	}
	if cfg.RemoteToken() != "env-token" {
		t.Errorf("RemoteToken = %q, want env override", cfg.RemoteToken())
	}
	if !cfg.RemoteEnabled() {
		t.Error("RemoteEnabled should be true")
	}
	if cfg.SaveDebounce() != 250*time.Millisecond {
		t.Errorf("SaveDebounce = %v, want 250ms", cfg.SaveDebounce())
	}
	if cfg.SaveMaxPendingOps() != 10 {
		t.Errorf("SaveMaxPendingOps = %d, want 10", cfg.SaveMaxPendingOps())
	}
}

func TestNew_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ConfigFilename), []byte("port = {"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	os.Setenv(EnvDataDir, dir)
	defer os.Unsetenv(EnvDataDir)

	if _, err := New(); err == nil {
		t.Error("New() should fail on malformed TOML")
	}
}
