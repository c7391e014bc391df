package secrets

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestResolveLiteral(t *testing.T) {
	ref := Literal("plain-value")
	v, err := ref.Resolve(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "plain-value" {
		t.Fatalf("got %q", v)
	}
}

func TestResolveEnv(t *testing.T) {
	t.Setenv("CLAWGATE_TEST_SECRET", "from-env")
	ref := Env("CLAWGATE_TEST_SECRET")
	v, err := ref.Resolve(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "from-env" {
		t.Fatalf("got %q", v)
	}
}

func TestResolveEnvMissing(t *testing.T) {
	ref := Env("CLAWGATE_TEST_SECRET_DOES_NOT_EXIST")
	if _, err := ref.Resolve(context.Background()); err == nil {
		t.Fatal("expected error for missing env var")
	}
}

func TestResolveFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secret.txt")
	if err := os.WriteFile(path, []byte("from-file\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	ref := File(path)
	v, err := ref.Resolve(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "from-file" {
		t.Fatalf("got %q, want trimmed file contents", v)
	}
}

func TestResolveFileMissing(t *testing.T) {
	ref := File("/nonexistent/path/to/secret")
	if _, err := ref.Resolve(context.Background()); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestResolveExec(t *testing.T) {
	ref := Exec("echo from-exec")
	v, err := ref.Resolve(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "from-exec" {
		t.Fatalf("got %q", v)
	}
}

func TestResolveExecFailureReturnsError(t *testing.T) {
	ref := Exec("false")
	if _, err := ref.Resolve(context.Background()); err == nil {
		t.Fatal("expected error for nonzero exit")
	}
}

func TestResolveExecMalformedCommand(t *testing.T) {
	ref := Exec(`unterminated "quote`)
	if _, err := ref.Resolve(context.Background()); err == nil {
		t.Fatal("expected error for malformed command line")
	}
}

func TestIsZero(t *testing.T) {
	if !(SecretRef{}).IsZero() {
		t.Fatal("expected zero-value ref to report IsZero")
	}
	if Literal("x").IsZero() {
		t.Fatal("expected non-empty ref to not report IsZero")
	}
}
