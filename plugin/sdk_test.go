package plugin

import (
	"context"
	"encoding/json"
	"testing"

	oasis "github.com/nevindra/clawgate"
)

func TestRegisterAndExecuteTool(t *testing.T) {
	sdk := NewSDK()
	sdk.RegisterTool(oasis.ToolDefinition{Name: "echo", Description: "echoes input"},
		func(ctx context.Context, args json.RawMessage) (any, *oasis.Error) {
			return string(args), nil
		})

	if !sdk.Has("echo") {
		t.Fatal("expected echo tool to be registered")
	}

	result, err := sdk.Execute(context.Background(), "echo", json.RawMessage(`"hi"`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != `"hi"` {
		t.Fatalf("got %v", result)
	}
}

func TestExecuteUnknownToolReturnsNotFound(t *testing.T) {
	sdk := NewSDK()
	_, err := sdk.Execute(context.Background(), "missing", nil)
	if err == nil || err.Kind != oasis.KindNotFound {
		t.Fatalf("expected NotFound error, got %v", err)
	}
}

func TestDefinitionsReturnsAllRegisteredTools(t *testing.T) {
	sdk := NewSDK()
	sdk.RegisterTool(oasis.ToolDefinition{Name: "a"}, noop)
	sdk.RegisterTool(oasis.ToolDefinition{Name: "b"}, noop)

	defs := sdk.Definitions()
	if len(defs) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(defs))
	}
}

func TestRegisterOverwritesExisting(t *testing.T) {
	sdk := NewSDK()
	sdk.RegisterTool(oasis.ToolDefinition{Name: "a", Description: "first"}, noop)
	sdk.RegisterTool(oasis.ToolDefinition{Name: "a", Description: "second"}, noop)

	defs := sdk.Definitions()
	if len(defs) != 1 || defs[0].Description != "second" {
		t.Fatalf("expected overwritten registration, got %+v", defs)
	}
}

func noop(ctx context.Context, args json.RawMessage) (any, *oasis.Error) { return nil, nil }
