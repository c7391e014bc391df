package guard

import "testing"

func TestUnwrapShellWrapperArgvDirect(t *testing.T) {
	idx, ok := UnwrapShellWrapperArgv([]string{"/usr/bin/ls", "-la"})
	if !ok || idx != 0 {
		t.Fatalf("expected direct command at index 0, got idx=%d ok=%v", idx, ok)
	}
}

func TestUnwrapShellWrapperArgvSingleWrapper(t *testing.T) {
	idx, ok := UnwrapShellWrapperArgv([]string{"sudo", "rm", "-rf", "/tmp/x"})
	if !ok || idx != 1 {
		t.Fatalf("expected unwrap to index 1, got idx=%d ok=%v", idx, ok)
	}
}

func TestUnwrapShellWrapperArgvInlineCommand(t *testing.T) {
	idx, ok := UnwrapShellWrapperArgv([]string{"sh", "-c", "rm -rf /"})
	if !ok || idx != 2 {
		t.Fatalf("expected inline command at index 2, got idx=%d ok=%v", idx, ok)
	}
}

func TestUnwrapShellWrapperArgvNestedWrappers(t *testing.T) {
	idx, ok := UnwrapShellWrapperArgv([]string{"nohup", "sudo", "env", "rm", "-rf", "/"})
	if !ok || idx != 3 {
		t.Fatalf("expected unwrap past three wrappers to index 3, got idx=%d ok=%v", idx, ok)
	}
}

func TestUnwrapShellWrapperArgvFailsClosedOnDepthCap(t *testing.T) {
	argv := make([]string, 0, maxUnwrapDepth+2)
	for i := 0; i < maxUnwrapDepth+1; i++ {
		argv = append(argv, "sudo")
	}
	argv = append(argv, "rm")

	_, ok := UnwrapShellWrapperArgv(argv)
	if ok {
		t.Fatal("expected fail-closed on unwrap depth cap exceeded")
	}
}

func TestHasTrailingPositionalArgv(t *testing.T) {
	if !HasTrailingPositionalArgv([]string{"ls", "-la", "extra"}, 0) {
		t.Fatal("expected trailing positional arg to be detected")
	}
	if HasTrailingPositionalArgv([]string{"ls", "-la", "-x"}, 0) {
		t.Fatal("expected only-flags trailer to not count as positional")
	}
}

func TestValidateSystemRunConsistency(t *testing.T) {
	if !ValidateSystemRunConsistency([]string{"sudo", "/usr/bin/ls"}, "ls") {
		t.Fatal("expected matching declared command to validate")
	}
	if ValidateSystemRunConsistency([]string{"sudo", "/usr/bin/rm"}, "ls") {
		t.Fatal("expected mismatched declared command to fail validation")
	}
}

func TestTokenizeInlineCommand(t *testing.T) {
	tokens, err := TokenizeInlineCommand(`rm -rf "/tmp/my dir"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"rm", "-rf", "/tmp/my dir"}
	if len(tokens) != len(want) {
		t.Fatalf("expected %v, got %v", want, tokens)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, tokens)
		}
	}
}

func TestClassifyRiskySafeBinDir(t *testing.T) {
	tests := []struct {
		dir     string
		flagged bool
		risk    SafeBinDirRisk
	}{
		{"/bin", false, 0},
		{"/usr/bin", false, 0},
		{"relative/bin", true, RiskRelative},
		{"/tmp/bin", true, RiskTemporary},
		{"/usr/local/bin", true, RiskPackageManager},
		{"/home/alice/bin", true, RiskHomeScoped},
	}
	for _, tt := range tests {
		risk, flagged := ClassifyRiskySafeBinDir(tt.dir)
		if flagged != tt.flagged {
			t.Errorf("ClassifyRiskySafeBinDir(%q) flagged=%v, want %v", tt.dir, flagged, tt.flagged)
		}
		if flagged && risk != tt.risk {
			t.Errorf("ClassifyRiskySafeBinDir(%q) risk=%v, want %v", tt.dir, risk, tt.risk)
		}
	}
}

func TestValidateTrustedDirs(t *testing.T) {
	if err := ValidateTrustedDirs(DefaultTrustedDirs); err != nil {
		t.Fatalf("expected default trusted dirs to validate, got %v", err)
	}
	if err := ValidateTrustedDirs([]string{"/tmp/evil"}); err == nil {
		t.Fatal("expected /tmp/evil to be rejected")
	}
}
