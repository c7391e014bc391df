package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.Provider.Name != "gemini" {
		t.Errorf("expected gemini, got %s", cfg.Provider.Name)
	}
	if cfg.Gateway.Port != 18789 {
		t.Errorf("expected port 18789, got %d", cfg.Gateway.Port)
	}
	if cfg.Embedding.Dimensions != 1536 {
		t.Errorf("expected 1536, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Sandbox.NetworkMode != "bridge" {
		t.Errorf("expected bridge, got %s", cfg.Sandbox.NetworkMode)
	}
}

func TestLoadFromTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.toml")
	os.WriteFile(path, []byte(`
[gateway]
port = 9000

[heartbeat]
target = "telegram:123"
`), 0644)

	cfg := Load(filepath.Join(dir, "nonexistent.env"), path)
	if cfg.Gateway.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Gateway.Port)
	}
	if cfg.Heartbeat.Target != "telegram:123" {
		t.Errorf("expected telegram:123, got %s", cfg.Heartbeat.Target)
	}
	// Defaults preserved for untouched sections.
	if cfg.Provider.Name != "gemini" {
		t.Errorf("default should be preserved, got %s", cfg.Provider.Name)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("CLAWGATE_GATEWAY_PORT", "9001")
	t.Setenv("CLAWGATE_PROVIDER_API_KEY", "env-key")
	t.Setenv("CLAWGATE_SANDBOX_DANGEROUSLY_ALLOW_CONTAINER_NAMESPACE_JOIN", "true")

	cfg := Load("/nonexistent/.env", "/nonexistent/path.toml")
	if cfg.Gateway.Port != 9001 {
		t.Errorf("expected 9001, got %d", cfg.Gateway.Port)
	}
	if cfg.Provider.APIKey != "env-key" {
		t.Errorf("expected env-key, got %s", cfg.Provider.APIKey)
	}
	if !cfg.Sandbox.DangerouslyAllowContainerNamespaceJoin {
		t.Error("expected break-glass flag to be set from env")
	}
}

func TestEnvOverrideIgnoresMalformedPort(t *testing.T) {
	t.Setenv("CLAWGATE_GATEWAY_PORT", "not-a-number")
	cfg := Load("/nonexistent/.env", "/nonexistent/path.toml")
	if cfg.Gateway.Port != 18789 {
		t.Errorf("expected default port preserved on malformed override, got %d", cfg.Gateway.Port)
	}
}

func TestChannelsParsedFromTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.toml")
	os.WriteFile(path, []byte(`
[[channels]]
name = "telegram"
dm_policy = "allowlist"
allowed_sender_ids = ["12345"]
`), 0644)

	cfg := Load(filepath.Join(dir, "nonexistent.env"), path)
	if len(cfg.Channels) != 1 {
		t.Fatalf("expected 1 channel, got %d", len(cfg.Channels))
	}
	if cfg.Channels[0].DMPolicy != "allowlist" || cfg.Channels[0].AllowedSenderIDs[0] != "12345" {
		t.Errorf("got %+v", cfg.Channels[0])
	}
}
