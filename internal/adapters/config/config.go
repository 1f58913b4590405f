package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds console configuration from config.toml.
type Config struct {
	Broker    string `toml:"broker"`
	Gateway   string `toml:"gateway"`
	Identity  string `toml:"identity"`
	TopicBase string `toml:"topic_base"`
	Session   string `toml:"session"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	TLS       TLS    `toml:"tls"`
	Preview   string `toml:"preview_vlc"`
}

// TLS holds client certificate paths.
type TLS struct {
	CA   string `toml:"ca"`
	Cert string `toml:"cert"`
	Key  string `toml:"key"`
}

// Load loads config.toml if present. Missing file returns an empty config.
func Load() (Config, error) {
	path, err := Path()
	if err != nil {
		return Config{}, err
	}
	return LoadFile(path)
}

// LoadFile loads the config at path. Missing file returns an empty config.
func LoadFile(path string) (Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	if info.IsDir() {
		return Config{}, errors.New("config path is a directory")
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Path returns the console config location.
func Path() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "vigil", "config.toml"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "vigil", "config.toml"), nil
}
