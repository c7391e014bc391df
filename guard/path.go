// Package guard implements the gateway's security predicates: filesystem
// escape detection, exec-wrapper unwrapping, SSRF protection, network-mode
// restriction, auth policy, flood control, and related classifiers.
package guard

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	oasis "github.com/nevindra/clawgate"
)

// AssertNoPathAliasEscape canonicalizes path, rejects it if it resolves
// outside every root, and walks each prefix component looking for a
// symlink whose target escapes every root (and isn't a recognized ancestor
// alias such as /var -> /private/var on macOS).
func AssertNoPathAliasEscape(path string, roots []string) *oasis.Error {
	if len(roots) == 0 {
		return oasis.NewInvalidArgument("path-alias guard requires at least one workspace root", "")
	}

	decoded, err := iterativeURIDecode(path, 3)
	if err != nil {
		return oasis.NewForbidden("malformed percent-encoding in path", path)
	}

	abs, statErr := filepath.Abs(decoded)
	if statErr != nil {
		return oasis.NewForbidden("could not resolve absolute path", path)
	}
	canonical, statErr := filepath.EvalSymlinks(abs)
	if statErr != nil {
		// Path may not exist yet (e.g. a file about to be created); fall
		// back to the lexical absolute form for containment checks.
		canonical = filepath.Clean(abs)
	}

	if !containedInAny(canonical, roots) {
		return oasis.NewForbidden("path escapes workspace roots", canonical)
	}

	return walkSymlinkComponents(abs, roots)
}

func containedInAny(path string, roots []string) bool {
	for _, root := range roots {
		cleanRoot, err := filepath.EvalSymlinks(root)
		if err != nil {
			cleanRoot = filepath.Clean(root)
		}
		if isWithin(path, cleanRoot) || isAncestorAlias(cleanRoot, path) {
			return true
		}
	}
	return false
}

func isWithin(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && rel != "..")
}

// isAncestorAlias recognizes platform symlink pairs like /var -> /private/var:
// true when target is an ancestor of (or equal to) one of the configured
// roots, meaning a path under target is effectively still inside that root.
func isAncestorAlias(target, path string) bool {
	return isWithin(path, target)
}

func walkSymlinkComponents(path string, roots []string) *oasis.Error {
	components := strings.Split(filepath.Clean(path), string(filepath.Separator))
	current := string(filepath.Separator)
	for _, comp := range components {
		if comp == "" {
			continue
		}
		current = filepath.Join(current, comp)
		info, err := os.Lstat(current)
		if err != nil {
			continue
		}
		if info.Mode()&os.ModeSymlink == 0 {
			continue
		}
		target, err := os.Readlink(current)
		if err != nil {
			return oasis.NewForbidden("could not resolve symlink", current)
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(current), target)
		}
		resolvedTarget, err := filepath.EvalSymlinks(target)
		if err != nil {
			resolvedTarget = filepath.Clean(target)
		}
		if !containedInAny(resolvedTarget, roots) {
			return oasis.NewForbidden("symlink escapes workspace roots", fmt.Sprintf("%s -> %s", current, resolvedTarget))
		}
	}
	return nil
}

// iterativeURIDecode decodes percent-encoding up to maxPasses times,
// stopping early once a pass produces no change. Returns an error if any
// pass finds malformed %XX or a %00 null-byte injection.
func iterativeURIDecode(input string, maxPasses int) (string, error) {
	current := input
	for i := 0; i < maxPasses; i++ {
		if hasMalformedPercentEncoding(current) {
			return "", fmt.Errorf("malformed percent-encoding")
		}
		decoded, err := url.QueryUnescape(current)
		if err != nil {
			return "", err
		}
		if decoded == current {
			return decoded, nil
		}
		current = decoded
	}
	return current, nil
}

func hasMalformedPercentEncoding(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] != '%' {
			continue
		}
		if i+2 >= len(s) {
			return true
		}
		hex := s[i+1 : i+3]
		if hex == "00" {
			return true
		}
		if _, err := strconv.ParseUint(hex, 16, 8); err != nil {
			return true
		}
	}
	return false
}

// HardlinkPolicy controls remediation when a hardlinked final path
// component is detected.
type HardlinkPolicy int

const (
	// PolicyStrict rejects with Forbidden; no remediation.
	PolicyStrict HardlinkPolicy = iota
	// PolicyUnlinkTarget attempts to unlink the offending path instead of
	// rejecting; falls back to PolicyStrict behavior if the unlink fails.
	PolicyUnlinkTarget
)

// AssertNoHardlinkedFinalPath performs a triple-stat TOCTOU-resistant check
// on path's final component: lstat, stat, and realpath+stat, rejecting if
// nlink > 1 at any step or if the inode/device identity changes between
// steps (indicating a race).
func AssertNoHardlinkedFinalPath(path string, policy HardlinkPolicy) *oasis.Error {
	lstatInfo, err := os.Lstat(path)
	if err != nil {
		return oasis.NewForbidden("could not lstat path", path)
	}
	statInfo, err := os.Stat(path)
	if err != nil {
		return oasis.NewForbidden("could not stat path", path)
	}

	real, err := filepath.EvalSymlinks(path)
	if err != nil {
		return oasis.NewForbidden("could not resolve realpath", path)
	}
	realInfo, err := os.Stat(real)
	if err != nil {
		return oasis.NewForbidden("could not stat realpath", real)
	}

	if !sameIdentity(statInfo, realInfo) {
		return oasis.NewForbidden("path identity changed during check (TOCTOU race)", path)
	}

	if linkCount(lstatInfo) > 1 || linkCount(statInfo) > 1 {
		if policy == PolicyUnlinkTarget {
			if rmErr := os.Remove(path); rmErr == nil {
				return nil
			}
		}
		return oasis.NewForbidden("final path component is hardlinked", path)
	}

	return nil
}
