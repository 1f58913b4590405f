package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingIsEmpty(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Broker != "" || cfg.Session != "" {
		t.Fatalf("expected empty config, got %+v", cfg)
	}
}

func TestLoadFromXDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	path := filepath.Join(dir, "vigil", "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	data := `
broker = "mqtts://broker.local:8883"
identity = "booth"
session = "memorial-1"

[tls]
ca = "/etc/vigil/ca.pem"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Broker != "mqtts://broker.local:8883" || cfg.Identity != "booth" || cfg.Session != "memorial-1" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.TLS.CA != "/etc/vigil/ca.pem" {
		t.Fatalf("expected tls ca, got %q", cfg.TLS.CA)
	}
}

func TestLoadRejectsDirectory(t *testing.T) {
	if _, err := LoadFile(t.TempDir()); err == nil {
		t.Fatalf("expected error for directory")
	}
}
