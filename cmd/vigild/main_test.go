package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mikey-austin/vigil/internal/vigild"
	"go.uber.org/zap"
)

func testConfig(t *testing.T) vigild.Config {
	t.Helper()
	catalog := filepath.Join(t.TempDir(), "catalog.toml")
	data := "[[video]]\nid = \"1\"\ntitle = \"Opening\"\nsrc = \"https://media.example.org/1.mp4\"\n"
	if err := os.WriteFile(catalog, []byte(data), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	cfg := vigild.Config{}
	cfg.Server.Session = "s1"
	cfg.Modules.Controller.Enabled = true
	cfg.Modules.Controller.NodeID = "vigil:controller:test"
	cfg.Modules.Controller.Catalog = catalog
	cfg.Modules.Controller.Media = "sim"
	cfg.Modules.Controller.Transport = "websocket"
	cfg.Modules.Gateway.Enabled = true
	return cfg
}

func TestBuildModulesWebsocketController(t *testing.T) {
	cfg := testConfig(t)
	applyOverrides(&cfg, flags{})
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	modules, err := buildModules(cfg, nil, zap.NewNop(), "", false)
	if err != nil {
		t.Fatalf("buildModules: %v", err)
	}
	if len(modules) != 2 || modules[0].Name != "controller" || modules[1].Name != "gateway" {
		t.Fatalf("unexpected modules %+v", modules)
	}
}

func TestBuildModulesModuleOnlyFilter(t *testing.T) {
	cfg := testConfig(t)
	if _, err := buildModules(cfg, nil, zap.NewNop(), "embedded_mqtt", false); err == nil {
		t.Fatalf("expected error for filtered module")
	}
}

func TestBuildModulesMQTTNeedsBroker(t *testing.T) {
	cfg := testConfig(t)
	cfg.Modules.Controller.Transport = "mqtt"
	cfg.Modules.Gateway.Enabled = false
	if _, err := buildModules(cfg, nil, zap.NewNop(), "", false); err == nil {
		t.Fatalf("expected error without a broker connection")
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := vigild.Config{}
	cfg.Modules.EmbeddedMQTT.Enabled = true
	applyOverrides(&cfg, flags{session: "s9", logLevel: "debug"})
	if cfg.Server.Session != "s9" || cfg.Server.LogLevel != "debug" {
		t.Fatalf("flags not applied: %+v", cfg.Server)
	}
	if cfg.Server.TopicBase != "vigil/v1" {
		t.Fatalf("expected default topic base, got %q", cfg.Server.TopicBase)
	}
	if cfg.Server.Broker != "mqtt://127.0.0.1:1883" {
		t.Fatalf("expected embedded broker url, got %q", cfg.Server.Broker)
	}
}
