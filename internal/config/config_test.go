package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bridge.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadFileOverrides(t *testing.T) {
	path := writeConfig(t, `
host = "127.0.0.1"
port = 7341
request_timeout = "5s"
pong_wait = "90s"
log_format = "json"
transcript_path = " /tmp/bridge.cast "
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Host != "127.0.0.1" || cfg.Port != 7341 {
		t.Fatalf("unexpected address %s:%d", cfg.Host, cfg.Port)
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Fatalf("unexpected request timeout: %v", cfg.RequestTimeout)
	}
	if cfg.PongWait != 90*time.Second {
		t.Fatalf("unexpected pong wait: %v", cfg.PongWait)
	}
	if cfg.WriteWait != Default().WriteWait {
		t.Fatalf("undefined key changed write wait: %v", cfg.WriteWait)
	}
	if cfg.LogFormat != "json" {
		t.Fatalf("unexpected log format: %q", cfg.LogFormat)
	}
	if cfg.TranscriptPath != "/tmp/bridge.cast" {
		t.Fatalf("unexpected transcript path: %q", cfg.TranscriptPath)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `port = 7341`)
	t.Setenv("BRIDGE_PORT", "9000")
	t.Setenv("BRIDGE_REQUEST_TIMEOUT", "250ms")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9000 {
		t.Fatalf("expected env port, got %d", cfg.Port)
	}
	if cfg.RequestTimeout != 250*time.Millisecond {
		t.Fatalf("expected env timeout, got %v", cfg.RequestTimeout)
	}
}

func TestLoadFileRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, `write_wait = "soon"`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "write_wait") {
		t.Fatalf("expected write_wait parse error, got %v", err)
	}
}

func TestLoadFileRejectsUnknownKey(t *testing.T) {
	path := writeConfig(t, `listen = ":80"`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "listen") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Port = 70000 }, "port"},
		{"negative timeout", func(c *Config) { c.RequestTimeout = -time.Second }, "request_timeout"},
		{"pong wait", func(c *Config) { c.PongWait = 0 }, "pong_wait"},
		{"log format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %s error, got %v", tt.want, err)
			}
		})
	}

	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}
