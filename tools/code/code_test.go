package code

import (
	"context"
	"encoding/json"
	"testing"

	oasis "github.com/nevindra/clawgate"
)

type fakeRunner struct {
	result oasis.CodeResult
	err    error
	lastReq oasis.CodeRequest
	dispatched oasis.ToolCall
}

func (f *fakeRunner) Run(ctx context.Context, req oasis.CodeRequest, dispatch oasis.DispatchFunc) (oasis.CodeResult, error) {
	f.lastReq = req
	if dispatch != nil {
		f.dispatched = oasis.ToolCall{Name: "probe"}
		dispatch(ctx, f.dispatched)
	}
	return f.result, f.err
}

func TestExecuteCodeReturnsOutput(t *testing.T) {
	runner := &fakeRunner{result: oasis.CodeResult{Output: `{"ok":true}`}}
	tool := New(runner, nil)

	args, _ := json.Marshal(map[string]any{"code": "set_result({'ok': True})"})
	result, err := tool.Execute(context.Background(), "execute_code", args)
	if err != nil {
		t.Fatal(err)
	}
	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	if result.Content != `{"ok":true}` {
		t.Errorf("unexpected content: %q", result.Content)
	}
}

func TestExecuteCodeRequiresCode(t *testing.T) {
	tool := New(&fakeRunner{}, nil)
	args, _ := json.Marshal(map[string]any{"code": ""})
	result, _ := tool.Execute(context.Background(), "execute_code", args)
	if result.Error == "" {
		t.Fatal("expected error for empty code")
	}
}

func TestExecuteCodeSurfacesRunnerError(t *testing.T) {
	runner := &fakeRunner{result: oasis.CodeResult{Logs: "partial output", Error: "exit code 1"}}
	tool := New(runner, nil)
	args, _ := json.Marshal(map[string]any{"code": "raise ValueError()"})
	result, _ := tool.Execute(context.Background(), "execute_code", args)
	if result.Error != "exit code 1" || result.Content != "partial output" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestDispatchRefusesRecursion(t *testing.T) {
	tool := New(&fakeRunner{}, oasis.NewToolRegistry())
	out := tool.dispatch(context.Background(), oasis.ToolCall{Name: "execute_code"})
	if !out.IsError {
		t.Fatal("expected recursive execute_code call to be refused")
	}
}

func TestDispatchWithoutRegistryRefuses(t *testing.T) {
	tool := New(&fakeRunner{}, nil)
	out := tool.dispatch(context.Background(), oasis.ToolCall{Name: "anything"})
	if !out.IsError {
		t.Fatal("expected dispatch without a registry to report an error")
	}
}
