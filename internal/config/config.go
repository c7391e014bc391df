// Package config loads the gateway's static configuration: listener and
// sandbox policy, secret-resolution limits, tool exposure, per-channel auth
// policy, and provider selection. Layering is defaults -> .env file ->
// TOML file -> process environment, with each later layer overriding the
// one before it.
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config is the gateway's full static configuration.
type Config struct {
	Gateway   GatewayConfig   `toml:"gateway"`
	Browser   BrowserConfig   `toml:"browser"`
	Sandbox   SandboxConfig   `toml:"sandbox"`
	Secrets   SecretsPolicy   `toml:"secrets"`
	Tools     ToolsConfig     `toml:"tools"`
	Channels  []ChannelConfig `toml:"channels"`
	Heartbeat HeartbeatConfig `toml:"heartbeat"`
	Provider  ProviderConfig  `toml:"provider"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Database  DatabaseConfig  `toml:"database"`
	Observer  ObserverConfig  `toml:"observer"`
}

// GatewayConfig controls the WebSocket listener and connection policy.
type GatewayConfig struct {
	Port           int `toml:"port"`
	PortSearchMax  int `toml:"port_search_max"`
	FloodThreshold int `toml:"flood_threshold"`
}

// BrowserConfig controls the CDP-driven browser automation pool.
type BrowserConfig struct {
	PoolSize   int    `toml:"pool_size"`
	ChromePath string `toml:"chrome_path"`
}

// SandboxConfig gates risky tool and network exposure.
type SandboxConfig struct {
	Enabled                                 bool   `toml:"enabled"`
	NetworkMode                             string `toml:"network_mode"`
	DangerouslyAllowContainerNamespaceJoin  bool   `toml:"dangerously_allow_container_namespace_join"`
}

// SecretsPolicy bounds how aggressively a SecretRef may be resolved. It is
// distinct from secrets.Config, which declares *where* each named secret
// lives; this struct declares the limits those resolutions must respect.
type SecretsPolicy struct {
	EnvAllowlist       []string `toml:"env_allowlist"`
	FileMaxBytes       int64    `toml:"file_max_bytes"`
	ExecTimeoutMs      int      `toml:"exec_timeout_ms"`
	ExecMaxOutputBytes int      `toml:"exec_max_output_bytes"`
}

// ToolsConfig governs which tools the registry exposes to the model.
// Allow/Deny entries may name a single tool or a "group:<name>" expansion
// resolved at startup against the registry's declared tool groups.
type ToolsConfig struct {
	Profile       string   `toml:"profile"` // "minimal" | "coding" | "messaging" | "full"
	Allow         []string `toml:"allow"`
	Deny          []string `toml:"deny"`
	WorkspacePath string   `toml:"workspace_path"` // root for shell_exec/file_* tools
}

// ChannelConfig is one configured messaging channel's auth policy.
type ChannelConfig struct {
	Name             string   `toml:"name"`
	Type             string   `toml:"type"` // "telegram" | "discord" | "slack" | "whatsapp" | "sms"
	DMPolicy         string   `toml:"dm_policy"` // "open" | "allowlist" | "pairing"
	AllowedSenderIDs []string `toml:"allowed_sender_ids"`
	GroupAllowlist   []string `toml:"group_allowlist"`
}

// HeartbeatConfig controls the idle-heartbeat delivery target.
type HeartbeatConfig struct {
	Target string `toml:"target"` // default "none"
}

// ProviderConfig selects and credentials the chat LLM backend.
type ProviderConfig struct {
	Name   string `toml:"name"`
	Model  string `toml:"model"`
	APIKey string `toml:"api_key"`
}

// EmbeddingConfig selects and credentials the embedding backend used by
// memory.embed and the RAG index.
type EmbeddingConfig struct {
	Provider   string `toml:"provider"`
	Model      string `toml:"model"`
	Dimensions int    `toml:"dimensions"`
	APIKey     string `toml:"api_key"`
}

// DatabaseConfig locates the session/memory store.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// ObserverConfig controls OTEL cost-tracking of provider usage.
type ObserverConfig struct {
	Enabled bool                       `toml:"enabled"`
	Pricing map[string]ObserverPricing `toml:"pricing"`
}

// ObserverPricing is the per-token cost of one provider/model pair, used to
// turn Usage counts into a dollar estimate.
type ObserverPricing struct {
	Input  float64 `toml:"input"`
	Output float64 `toml:"output"`
}

// Default returns a Config with every knob set to its documented default.
func Default() Config {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "/tmp"
	}
	return Config{
		Gateway: GatewayConfig{Port: 18789, PortSearchMax: 100, FloodThreshold: 50},
		Browser: BrowserConfig{PoolSize: 3},
		Sandbox: SandboxConfig{Enabled: true, NetworkMode: "bridge"},
		Secrets: SecretsPolicy{
			FileMaxBytes:       64 * 1024,
			ExecTimeoutMs:      10_000,
			ExecMaxOutputBytes: 64 * 1024,
		},
		Tools:     ToolsConfig{Profile: "full", WorkspacePath: filepath.Join(home, ".clawgate", "workspace")},
		Heartbeat: HeartbeatConfig{Target: "none"},
		Provider:  ProviderConfig{Name: "gemini", Model: "gemini-2.5-flash"},
		Embedding: EmbeddingConfig{Provider: "gemini", Model: "gemini-embedding-001", Dimensions: 1536},
		Database:  DatabaseConfig{Path: filepath.Join(home, ".clawgate", "clawgate.db")},
	}
}

// Load reads config: defaults -> .env file (if present) -> TOML file ->
// process env vars (env wins). envPath and tomlPath may both be empty, in
// which case ".env" and "clawgate.toml" in the working directory are tried.
func Load(envPath, tomlPath string) Config {
	cfg := Default()

	if envPath == "" {
		envPath = ".env"
	}
	_ = godotenv.Load(envPath) // missing .env is not an error

	if tomlPath == "" {
		tomlPath = "clawgate.toml"
	}
	if data, err := os.ReadFile(tomlPath); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	applyEnvOverrides(&cfg)
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CLAWGATE_GATEWAY_PORT"); v != "" {
		if port, err := parsePositiveInt(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("CLAWGATE_PROVIDER_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("CLAWGATE_PROVIDER_NAME"); v != "" {
		cfg.Provider.Name = v
	}
	if v := os.Getenv("CLAWGATE_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("CLAWGATE_BROWSER_CHROME_PATH"); v != "" {
		cfg.Browser.ChromePath = v
	}
	if v := os.Getenv("CLAWGATE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("CLAWGATE_SANDBOX_NETWORK_MODE"); v != "" {
		cfg.Sandbox.NetworkMode = v
	}
	if v := os.Getenv("CLAWGATE_SANDBOX_DANGEROUSLY_ALLOW_CONTAINER_NAMESPACE_JOIN"); v == "true" || v == "1" {
		cfg.Sandbox.DangerouslyAllowContainerNamespaceJoin = true
	}
	if v := os.Getenv("CLAWGATE_HEARTBEAT_TARGET"); v != "" {
		cfg.Heartbeat.Target = v
	}
	if v := os.Getenv("CLAWGATE_OBSERVER_ENABLED"); v == "true" || v == "1" {
		cfg.Observer.Enabled = true
	}
}

func parsePositiveInt(s string) (int, error) {
	if s == "" {
		return 0, os.ErrInvalid
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, os.ErrInvalid
		}
		n = n*10 + int(r-'0')
	}
	if n <= 0 {
		return 0, os.ErrInvalid
	}
	return n, nil
}
