package guard

import (
	"path/filepath"
	"strings"

	shellquote "github.com/kballard/go-shellquote"
	oasis "github.com/nevindra/clawgate"
)

// maxUnwrapDepth bounds shell-wrapper unwrapping to prevent runaway
// recursion on a crafted argv.
const maxUnwrapDepth = 10

// shellWrapperBinaries execute their trailing arguments as a command; the
// "real" command is whatever follows the wrapper and its flags.
var shellWrapperBinaries = map[string]bool{
	"sh": true, "bash": true, "zsh": true, "dash": true,
	"env": true, "nice": true, "nohup": true, "sudo": true,
	"doas": true, "timeout": true,
}

func isShellWrapper(binary string) bool {
	return shellWrapperBinaries[binary]
}

// UnwrapShellWrapperArgv walks argv following wrapper chains (sh -> sudo ->
// env -> ...) and returns the index of the first argument that is the
// actual command to execute. Returns ok=false if the unwrap depth cap is
// exceeded, which callers must treat as fail-closed (reject the command).
func UnwrapShellWrapperArgv(argv []string) (index int, ok bool) {
	idx := 0
	depth := 0

	for idx < len(argv) && depth < maxUnwrapDepth {
		binary := filepath.Base(argv[idx])
		if !isShellWrapper(binary) {
			return idx, true
		}
		idx++
		depth++

		for idx < len(argv) && strings.HasPrefix(argv[idx], "-") {
			if argv[idx] == "-c" {
				if idx+1 < len(argv) {
					return idx + 1, true
				}
				return 0, false
			}
			idx++
		}
	}

	if depth >= maxUnwrapDepth {
		return 0, false
	}
	return idx, true
}

// TokenizeInlineCommand splits an inline shell command string (the argument
// following a "-c" flag) into POSIX argv tokens so its resolved binary can
// be inspected the same way a direct argv invocation would be.
func TokenizeInlineCommand(command string) ([]string, *oasis.Error) {
	tokens, err := shellquote.Split(command)
	if err != nil {
		return nil, oasis.NewInvalidArgument("could not tokenize inline command", err.Error())
	}
	return tokens, nil
}

// ResolveInlineCommandTokenIndex finds the index of an inline command
// string following a "-c" flag (e.g. `sh -c "rm -rf /"`), or ok=false if
// no such flag is present.
func ResolveInlineCommandTokenIndex(argv []string) (index int, ok bool) {
	for i, tok := range argv {
		if tok == "-c" && i+1 < len(argv) {
			return i + 1, true
		}
	}
	return 0, false
}

// HasTrailingPositionalArgv reports whether argv carries non-flag arguments
// after commandIndex, which could smuggle additional positional arguments
// past the resolved command (option injection).
func HasTrailingPositionalArgv(argv []string, commandIndex int) bool {
	for i := commandIndex + 1; i < len(argv); i++ {
		if !strings.HasPrefix(argv[i], "-") {
			return true
		}
	}
	return false
}

// ValidateSystemRunConsistency checks that an argv's resolved command
// (after unwrapping any shell wrappers) matches the command the caller
// declared it was running, rejecting mismatches that would indicate a
// wrapper was used to smuggle a different binary past a declared-command
// allowlist.
func ValidateSystemRunConsistency(argv []string, declaredCommand string) bool {
	if len(argv) == 0 {
		return false
	}

	idx, ok := UnwrapShellWrapperArgv(argv)
	if !ok || idx >= len(argv) {
		return false
	}

	resolvedBinary := filepath.Base(argv[idx])
	declaredBinary := filepath.Base(declaredCommand)
	return resolvedBinary == declaredBinary
}

// SafeBinDirRisk classifies why a directory on the trusted safe-bin path
// list might not actually be safe to trust.
type SafeBinDirRisk int

const (
	RiskRelative SafeBinDirRisk = iota
	RiskTemporary
	RiskPackageManager
	RiskHomeScoped
)

// DefaultTrustedDirs are immutable system paths unlikely to be user-writable.
var DefaultTrustedDirs = []string{"/bin", "/usr/bin"}

// ClassifyRiskySafeBinDir returns the risk category for dir, or ok=false if
// the directory is considered safe to trust.
func ClassifyRiskySafeBinDir(dir string) (risk SafeBinDirRisk, flagged bool) {
	if dir == "" || dir[0] != '/' {
		return RiskRelative, true
	}

	lower := strings.ToLower(dir)

	tempPrefixes := []string{"/tmp", "/var/tmp", "/private/tmp"}
	for _, p := range tempPrefixes {
		if lower == p || strings.HasPrefix(lower, p+"/") {
			return RiskTemporary, true
		}
	}

	pkgPrefixes := []string{"/usr/local/bin", "/opt/homebrew/bin", "/opt/local/bin"}
	for _, p := range pkgPrefixes {
		if lower == p || strings.HasPrefix(lower, p+"/") {
			return RiskPackageManager, true
		}
	}
	if strings.Contains(lower, "linuxbrew") {
		return RiskPackageManager, true
	}

	if strings.HasPrefix(lower, "/users/") || strings.HasPrefix(lower, "/home/") ||
		strings.Contains(lower, "/.local/bin") {
		return RiskHomeScoped, true
	}

	return 0, false
}

// SafeBinRiskDescription returns a human-readable description of risk.
func SafeBinRiskDescription(risk SafeBinDirRisk) string {
	switch risk {
	case RiskRelative:
		return "not an absolute path — cannot be trusted"
	case RiskTemporary:
		return "temporary directory — mutable and easy to poison"
	case RiskPackageManager:
		return "package manager directory — often user-writable"
	case RiskHomeScoped:
		return "home-scoped path — typically user-writable"
	default:
		return "unknown risk"
	}
}

// ValidateTrustedDirs checks every entry of dirs and returns a Forbidden
// error naming the first risky directory found, or nil if all are safe.
func ValidateTrustedDirs(dirs []string) *oasis.Error {
	for _, d := range dirs {
		if risk, flagged := ClassifyRiskySafeBinDir(d); flagged {
			return oasis.NewForbidden("untrusted safe-bin directory: "+SafeBinRiskDescription(risk), d)
		}
	}
	return nil
}
