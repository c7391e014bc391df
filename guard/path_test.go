package guard

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAssertNoPathAliasEscapeAllowsWithinRoot(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "file.txt")
	os.WriteFile(target, []byte("x"), 0o644)

	if err := AssertNoPathAliasEscape(target, []string{root}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestAssertNoPathAliasEscapeRejectsOutsideRoot(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	target := filepath.Join(outside, "file.txt")
	os.WriteFile(target, []byte("x"), 0o644)

	if err := AssertNoPathAliasEscape(target, []string{root}); err == nil {
		t.Fatal("expected escape to be rejected")
	}
}

func TestAssertNoPathAliasEscapeRejectsSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	outsideFile := filepath.Join(outside, "secret.txt")
	os.WriteFile(outsideFile, []byte("x"), 0o644)

	link := filepath.Join(root, "link")
	if err := os.Symlink(outsideFile, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	if err := AssertNoPathAliasEscape(link, []string{root}); err == nil {
		t.Fatal("expected symlink escape to be rejected")
	}
}

func TestAssertNoPathAliasEscapeRejectsMalformedPercent(t *testing.T) {
	root := t.TempDir()
	if err := AssertNoPathAliasEscape(root+"/%zz", []string{root}); err == nil {
		t.Fatal("expected malformed percent-encoding to be rejected")
	}
}

func TestAssertNoHardlinkedFinalPathAllowsRegularFile(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "file.txt")
	os.WriteFile(target, []byte("x"), 0o644)

	if err := AssertNoHardlinkedFinalPath(target, PolicyStrict); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestAssertNoHardlinkedFinalPathRejectsHardlink(t *testing.T) {
	root := t.TempDir()
	original := filepath.Join(root, "original.txt")
	linked := filepath.Join(root, "linked.txt")
	os.WriteFile(original, []byte("x"), 0o644)
	if err := os.Link(original, linked); err != nil {
		t.Skipf("hardlinks unsupported: %v", err)
	}

	if err := AssertNoHardlinkedFinalPath(linked, PolicyStrict); err == nil {
		t.Fatal("expected hardlink to be rejected under strict policy")
	}
}

func TestAssertNoHardlinkedFinalPathUnlinkTargetRemoves(t *testing.T) {
	root := t.TempDir()
	original := filepath.Join(root, "original.txt")
	linked := filepath.Join(root, "linked.txt")
	os.WriteFile(original, []byte("x"), 0o644)
	if err := os.Link(original, linked); err != nil {
		t.Skipf("hardlinks unsupported: %v", err)
	}

	if err := AssertNoHardlinkedFinalPath(linked, PolicyUnlinkTarget); err != nil {
		t.Fatalf("expected unlink-target policy to succeed, got %v", err)
	}
	if _, err := os.Stat(linked); !os.IsNotExist(err) {
		t.Fatal("expected linked path to be removed")
	}
}

func TestHasMalformedPercentEncoding(t *testing.T) {
	cases := map[string]bool{
		"/a/b/c":   false,
		"%2e%2e":   false,
		"%00":      true,
		"%zz":      true,
		"%2":       true,
		"abc%":     true,
	}
	for input, want := range cases {
		if got := hasMalformedPercentEncoding(input); got != want {
			t.Errorf("hasMalformedPercentEncoding(%q) = %v, want %v", input, got, want)
		}
	}
}
