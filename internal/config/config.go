package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.hush/config.toml.
type Config struct {
	DefaultProfile string `toml:"default_profile"`
	RelayURL       string `toml:"relay_url"`
	// PersistDebounceMs bounds how often streaming updates are flushed to the
	// local store. Zero means flush on every chunk.
	PersistDebounceMs int `toml:"persist_debounce_ms"`
	// ReconnectMaxSeconds caps the relay reconnect backoff interval.
	ReconnectMaxSeconds int `toml:"reconnect_max_seconds"`
}

// DefaultRelayURL is used when config.toml does not name a relay.
const DefaultRelayURL = "wss://relay.hush.chat/v1/stream"

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	if cfg.RelayURL == "" {
		cfg.RelayURL = DefaultRelayURL
	}
	if cfg.ReconnectMaxSeconds <= 0 {
		cfg.ReconnectMaxSeconds = 30
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
