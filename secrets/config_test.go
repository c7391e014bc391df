package secrets

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultHasEmptyRefs(t *testing.T) {
	cfg := Default()
	if len(cfg.Refs) != 0 {
		t.Fatalf("expected no default secrets, got %d", len(cfg.Refs))
	}
}

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if cfg.Refs == nil {
		t.Fatal("expected non-nil Refs map even with no file")
	}
}

func TestLoadParsesTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secrets.toml")
	contents := `
[secrets.telegram_token]
source = 1
value = "CLAWGATE_TELEGRAM_TOKEN"
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	cfg := Load(path)
	ref, ok := cfg.Lookup("telegram_token")
	if !ok {
		t.Fatal("expected telegram_token ref to be loaded")
	}
	if ref.Source != SourceEnv || ref.Value != "CLAWGATE_TELEGRAM_TOKEN" {
		t.Fatalf("got %+v", ref)
	}
}

func TestLookupMissing(t *testing.T) {
	cfg := Default()
	if _, ok := cfg.Lookup("nope"); ok {
		t.Fatal("expected lookup of unregistered secret to fail")
	}
}
