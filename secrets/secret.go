// Package secrets resolves credential references declared in config without
// ever requiring the credential's literal value to sit in a config file.
// A SecretRef names where a value lives — an environment variable, a file
// on disk, or the stdout of a helper process — and Resolve fetches it at
// the point of use.
package secrets

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	shellquote "github.com/kballard/go-shellquote"

	oasis "github.com/nevindra/clawgate"
)

// Source tags how a SecretRef's value should be fetched.
type Source int

const (
	// SourceLiteral means Value already holds the secret (e.g. a value
	// supplied directly on the command line for local development).
	SourceLiteral Source = iota
	// SourceEnv means Value names an environment variable to read.
	SourceEnv
	// SourceFile means Value is a path whose trimmed contents are the secret.
	SourceFile
	// SourceExec means Value is a command line whose trimmed stdout is the
	// secret (e.g. a password-manager CLI, a cloud secret-store fetch).
	SourceExec
)

// execTimeout bounds how long a SourceExec resolution may run before it is
// treated as failed; a hung credential helper must not hang startup.
const execTimeout = 10 * time.Second

// SecretRef is a declarative pointer to a secret value.
type SecretRef struct {
	Source Source `toml:"source"`
	Value  string `toml:"value"`
}

// Literal builds a SecretRef that holds its value directly.
func Literal(value string) SecretRef { return SecretRef{Source: SourceLiteral, Value: value} }

// Env builds a SecretRef that resolves from an environment variable.
func Env(name string) SecretRef { return SecretRef{Source: SourceEnv, Value: name} }

// File builds a SecretRef that resolves from a file's contents.
func File(path string) SecretRef { return SecretRef{Source: SourceFile, Value: path} }

// Exec builds a SecretRef that resolves from a helper command's stdout.
func Exec(commandLine string) SecretRef { return SecretRef{Source: SourceExec, Value: commandLine} }

// IsZero reports whether the ref names no secret at all.
func (r SecretRef) IsZero() bool { return r.Value == "" }

// Resolve fetches the secret's current value. Exec resolution respects ctx
// cancellation and is bounded by execTimeout regardless of ctx's own deadline.
func (r SecretRef) Resolve(ctx context.Context) (string, *oasis.Error) {
	switch r.Source {
	case SourceLiteral:
		return r.Value, nil
	case SourceEnv:
		v, ok := os.LookupEnv(r.Value)
		if !ok {
			return "", oasis.NewNotFound("secret env var not set", r.Value)
		}
		return v, nil
	case SourceFile:
		data, err := os.ReadFile(r.Value)
		if err != nil {
			return "", oasis.NewNotFound("secret file not readable", err.Error())
		}
		return strings.TrimSpace(string(data)), nil
	case SourceExec:
		return resolveExec(ctx, r.Value)
	default:
		return "", oasis.NewInvalidArgument("unknown secret source", "")
	}
}

func resolveExec(ctx context.Context, commandLine string) (string, *oasis.Error) {
	argv, err := shellquote.Split(commandLine)
	if err != nil {
		return "", oasis.NewInvalidArgument("malformed secret exec command", err.Error())
	}
	if len(argv) == 0 {
		return "", oasis.NewInvalidArgument("empty secret exec command", "")
	}

	cctx, cancel := context.WithTimeout(ctx, execTimeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", oasis.NewInternal("secret exec command failed", strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}
