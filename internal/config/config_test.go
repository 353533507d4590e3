package config

import (
	"path/filepath"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	want := &Config{
		DefaultProfile:      "work",
		RelayURL:            "wss://relay.example.test/v1/stream",
		PersistDebounceMs:   200,
		ReconnectMaxSeconds: 15,
	}
	if err := Save(path, want); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.DefaultProfile != "work" {
		t.Errorf("default_profile = %q, want work", got.DefaultProfile)
	}
	if got.RelayURL != want.RelayURL {
		t.Errorf("relay_url = %q, want %q", got.RelayURL, want.RelayURL)
	}
	if got.PersistDebounceMs != 200 {
		t.Errorf("persist_debounce_ms = %d, want 200", got.PersistDebounceMs)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := Save(path, &Config{DefaultProfile: "main"}); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.RelayURL != DefaultRelayURL {
		t.Errorf("relay_url = %q, want default", got.RelayURL)
	}
	if got.ReconnectMaxSeconds != 30 {
		t.Errorf("reconnect_max_seconds = %d, want 30", got.ReconnectMaxSeconds)
	}
}
