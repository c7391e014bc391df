package secrets

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Config declares how each named secret used by the gateway is sourced.
// The TOML shape mirrors the inline-table convention so an operator can
// write, e.g.:
//
//	[secrets.telegram_token]
//	source = "env"
//	value = "CLAWGATE_TELEGRAM_TOKEN"
type Config struct {
	Refs map[string]SecretRef `toml:"secrets"`
}

// Default returns a Config with no refs — every secret must be declared
// explicitly, since there is no safe default source for a credential.
func Default() Config {
	return Config{Refs: make(map[string]SecretRef)}
}

// Load reads defaults, then overlays a TOML file at path if present. A
// missing file is not an error: an all-default Config with no secrets
// declared is valid for a gateway run with everything passed by env
// override instead.
func Load(path string) Config {
	cfg := Default()
	if path == "" {
		path = "secrets.toml"
	}
	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}
	if cfg.Refs == nil {
		cfg.Refs = make(map[string]SecretRef)
	}
	return cfg
}

// Lookup returns the ref registered under name, and whether it was found.
func (c Config) Lookup(name string) (SecretRef, bool) {
	ref, ok := c.Refs[name]
	return ref, ok
}
