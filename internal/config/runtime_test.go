package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestPatchSucceedsWithMatchingHash(t *testing.T) {
	rt := NewRuntime(map[string]any{"gateway": map[string]any{"port": float64(18789)}}, "")
	_, hash := rt.Get()

	ok, newHash, err := rt.Patch([]Patch{{Path: "gateway.port", Value: float64(8000)}}, hash)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected patch to succeed with matching hash")
	}
	if newHash == hash {
		t.Fatal("expected hash to change after mutation")
	}

	doc, _ := rt.Get()
	gateway := doc["gateway"].(map[string]any)
	if gateway["port"] != float64(8000) {
		t.Fatalf("expected port to be patched, got %v", gateway["port"])
	}
}

func TestPatchFailsOnStaleHash(t *testing.T) {
	rt := NewRuntime(map[string]any{"gateway": map[string]any{"port": float64(18789)}}, "")

	ok, _, err := rt.Patch([]Patch{{Path: "gateway.port", Value: float64(9000)}}, "stale-hash")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected patch to be rejected on hash mismatch")
	}

	doc, _ := rt.Get()
	gateway := doc["gateway"].(map[string]any)
	if gateway["port"] != float64(18789) {
		t.Fatal("expected no mutation on hash mismatch")
	}
}

func TestPatchCreatesIntermediateObjects(t *testing.T) {
	rt := NewRuntime(map[string]any{}, "")
	_, hash := rt.Get()

	ok, _, err := rt.Patch([]Patch{{Path: "sandbox.network_mode", Value: "none"}}, hash)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected patch to succeed")
	}

	doc, _ := rt.Get()
	sandbox := doc["sandbox"].(map[string]any)
	if sandbox["network_mode"] != "none" {
		t.Fatalf("got %+v", sandbox)
	}
}

func TestPatchRejectsNonObjectIntermediate(t *testing.T) {
	rt := NewRuntime(map[string]any{"gateway": "not-an-object"}, "")
	_, hash := rt.Get()

	_, _, err := rt.Patch([]Patch{{Path: "gateway.port", Value: float64(1)}}, hash)
	if err == nil {
		t.Fatal("expected error when intermediate path segment is not an object")
	}
}

func TestGetReturnsIndependentCopy(t *testing.T) {
	rt := NewRuntime(map[string]any{"tools": map[string]any{"profile": "full"}}, "")
	doc, _ := rt.Get()
	doc["tools"].(map[string]any)["profile"] = "minimal"

	again, _ := rt.Get()
	if again["tools"].(map[string]any)["profile"] != "full" {
		t.Fatal("expected mutation of returned snapshot to not affect Runtime's internal document")
	}
}

func TestPatchPersistsToDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runtime.json")
	rt := NewRuntime(map[string]any{"gateway": map[string]any{"port": float64(18789)}}, path)
	_, hash := rt.Get()

	ok, _, err := rt.Patch([]Patch{{Path: "gateway.port", Value: float64(9999)}}, hash)
	if err != nil || !ok {
		t.Fatalf("patch failed: ok=%v err=%v", ok, err)
	}

	data, readErr := os.ReadFile(path)
	if readErr != nil {
		t.Fatalf("expected persisted file, got error: %v", readErr)
	}
	var persisted map[string]any
	if err := json.Unmarshal(data, &persisted); err != nil {
		t.Fatalf("persisted file is not valid JSON: %v", err)
	}
	if persisted["gateway"].(map[string]any)["port"] != float64(9999) {
		t.Fatalf("got %+v", persisted)
	}
}

func TestHashIsStableForUnchangedDocument(t *testing.T) {
	rt := NewRuntime(map[string]any{"a": float64(1)}, "")
	h1 := rt.Hash()
	h2 := rt.Hash()
	if h1 != h2 {
		t.Fatal("expected stable hash across calls with no mutation")
	}
}
