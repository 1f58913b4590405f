package vigild

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/BurntSushi/toml"
)

// Config is the top-level configuration for vigild.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Modules ModulesConfig `toml:"modules"`
}

// ServerConfig defines shared server settings.
type ServerConfig struct {
	Broker    string     `toml:"broker"`
	Identity  string     `toml:"identity"`
	TopicBase string     `toml:"topic_base"`
	Session   string     `toml:"session"`
	LockDir   string     `toml:"lock_dir"`
	LogLevel  string     `toml:"log_level"`
	LogFormat string     `toml:"log_format"`
	LogOutput string     `toml:"log_output"`
	LogUTC    bool       `toml:"log_utc"`
	LogColor  bool       `toml:"log_color"`
	TLS       TLSConfig  `toml:"tls"`
	Auth      AuthConfig `toml:"auth"`
}

// TLSConfig holds TLS paths for MQTT.
type TLSConfig struct {
	CA   string `toml:"ca"`
	Cert string `toml:"cert"`
	Key  string `toml:"key"`
}

// AuthConfig holds MQTT auth credentials.
type AuthConfig struct {
	User string `toml:"user"`
	Pass string `toml:"pass"`
}

// ModulesConfig holds module configurations.
type ModulesConfig struct {
	Controller   ControllerConfig   `toml:"controller"`
	Gateway      GatewayConfig      `toml:"gateway"`
	EmbeddedMQTT EmbeddedMQTTConfig `toml:"embedded_mqtt"`
}

// ControllerConfig configures the playback controller.
type ControllerConfig struct {
	Enabled       bool            `toml:"enabled"`
	NodeID        string          `toml:"node_id"`
	Name          string          `toml:"name"`
	Catalog       string          `toml:"catalog"`
	CatalogDir    string          `toml:"catalog_dir"`
	CatalogExts   []string        `toml:"catalog_exts"`
	Feed          string          `toml:"feed"`
	InitialVideo  string          `toml:"initial_video"`
	Media         string          `toml:"media"`
	Transport     string          `toml:"transport"`
	ProbeWindowMS int64           `toml:"probe_window_ms"`
	VLC           VLCConfig       `toml:"vlc"`
	GStreamer     GStreamerConfig `toml:"gstreamer"`
}

// VLCConfig configures the VLC HTTP media element.
type VLCConfig struct {
	BaseURL   string `toml:"base_url"`
	Password  string `toml:"password"`
	PollMS    int64  `toml:"poll_ms"`
	TimeoutMS int64  `toml:"timeout_ms"`
}

// GStreamerConfig configures the GStreamer media element.
type GStreamerConfig struct {
	Pipeline string `toml:"pipeline"`
	PollMS   int64  `toml:"poll_ms"`
}

// GatewayConfig configures the browser console gateway.
type GatewayConfig struct {
	Enabled        bool     `toml:"enabled"`
	Listen         string   `toml:"listen"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// EmbeddedMQTTConfig configures the embedded MQTT broker.
type EmbeddedMQTTConfig struct {
	Enabled        bool   `toml:"enabled"`
	Listen         string `toml:"listen"`
	AllowAnonymous bool   `toml:"allow_anonymous"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	TLSCA          string `toml:"tls_ca"`
	TLSCert        string `toml:"tls_cert"`
	TLSKey         string `toml:"tls_key"`
}

// Module names accepted by --module.
const (
	ModuleEmbeddedMQTT = "embedded_mqtt"
	ModuleController   = "controller"
	ModuleGateway      = "gateway"
)

// LoadConfig loads a config file from path.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Config{}, err
	}
	if info.IsDir() {
		return Config{}, errors.New("config path is a directory")
	}

	var cfg Config
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return cfg, nil
}

// DefaultConfigPath returns the default config location.
func DefaultConfigPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "vigil", "vigild.toml"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "vigil", "vigild.toml"), nil
}

// Validate checks cross-section constraints after overrides are applied.
func (c Config) Validate() error {
	ctl := c.Modules.Controller
	if ctl.Enabled {
		if ctl.Catalog == "" && ctl.CatalogDir == "" && ctl.Feed == "" {
			return errors.New("modules.controller: catalog, catalog_dir or feed required")
		}
		if !slices.Contains([]string{"", "sim", "vlc", "gstreamer"}, ctl.Media) {
			return fmt.Errorf("modules.controller: unknown media %q", ctl.Media)
		}
		if !slices.Contains([]string{"", "mqtt", "websocket"}, ctl.Transport) {
			return fmt.Errorf("modules.controller: unknown transport %q", ctl.Transport)
		}
		if ctl.Transport == "websocket" && !c.Modules.Gateway.Enabled {
			return errors.New("modules.controller: websocket transport needs modules.gateway")
		}
	}
	if c.Modules.Gateway.Enabled && !ctl.Enabled {
		return errors.New("modules.gateway: needs modules.controller")
	}
	return nil
}

// EnabledModules lists enabled module names in start order.
func (c Config) EnabledModules() []string {
	out := []string{}
	if c.Modules.EmbeddedMQTT.Enabled {
		out = append(out, ModuleEmbeddedMQTT)
	}
	if c.Modules.Controller.Enabled {
		out = append(out, ModuleController)
	}
	if c.Modules.Gateway.Enabled {
		out = append(out, ModuleGateway)
	}
	return out
}
