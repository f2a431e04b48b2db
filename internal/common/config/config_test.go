package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "3000" || cfg.Storage.DBPath != "data/db/floorplan.db" {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.SaveDebounce() != 5*time.Second {
		t.Errorf("SaveDebounce = %v", cfg.SaveDebounce())
	}
	if cfg.CacheTTL() != 5*time.Minute {
		t.Errorf("CacheTTL = %v", cfg.CacheTTL())
	}
	if !cfg.Hub.VerifySSL {
		t.Error("VerifySSL should default to true")
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.toml")
	data := `
port = "4000"
log_level = "debug"

[hub]
url = "http://homeassistant.local:8123"
api_key = "file-key"

[cache]
ttl = 60

[layout]
resize_policy = "cancel"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("HA_API_KEY", "env-key")
	t.Setenv("CACHE_TTL", "not-a-number")
	t.Setenv("WRITE_COLLECTIONS", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "4000" || cfg.LogLevel != "debug" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Hub.APIKey != "env-key" {
		t.Errorf("env did not override file: %q", cfg.Hub.APIKey)
	}
	if cfg.Cache.TTL != 60 {
		t.Errorf("invalid env int replaced file value: %d", cfg.Cache.TTL)
	}
	if !cfg.Debug.WriteCollections {
		t.Error("WRITE_COLLECTIONS not applied")
	}
	if cfg.Layout.ResizePolicy != "cancel" {
		t.Errorf("ResizePolicy = %q", cfg.Layout.ResizePolicy)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.toml"))
	if _, err := Load(); err == nil {
		t.Fatal("explicit missing config file accepted")
	}
}

func TestValidate(t *testing.T) {
	cfg := defaults()
	cfg.Port = "http"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate accepted empty hub settings")
	}
	for _, want := range []string{"HA_URL", "HA_API_KEY", "PORT"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestHubURLs(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"http://ha.local:8123", "ws://ha.local:8123/api/websocket"},
		{"https://ha.example.com/", "wss://ha.example.com/api/websocket"},
	}
	for _, tt := range tests {
		got, err := HubConfig{URL: tt.in}.WebsocketURL()
		if err != nil || got != tt.want {
			t.Errorf("WebsocketURL(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
	if got := (HubConfig{URL: "http://ha.local:8123/"}).RESTURL(); got != "http://ha.local:8123/api" {
		t.Errorf("RESTURL = %q", got)
	}
}

func TestRedacted(t *testing.T) {
	if got := Redacted("abcdefghijklmnop"); got != "abcd...mnop" {
		t.Errorf("Redacted = %q", got)
	}
	if got := Redacted("short"); got != "*****" {
		t.Errorf("Redacted(short) = %q", got)
	}
}
