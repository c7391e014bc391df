// Package code exposes an oasis.CodeRunner as a chat-engine tool so the
// model can execute Python snippets mid-conversation.
package code

import (
	"context"
	"encoding/json"
	"time"

	oasis "github.com/nevindra/clawgate"
)

// Tool adapts an oasis.CodeRunner into the chat engine's Tool interface.
// The registry dispatch passed to Run lets executed code call back into
// every other registered tool via call_tool(), except itself (no recursion).
type Tool struct {
	runner oasis.CodeRunner
	tools  *oasis.ToolRegistry
}

// New creates a code-execution tool backed by runner. tools is the full
// registry the sandboxed code may call back into; pass nil to run code
// without tool access (e.g. a container runner with no dispatch bridge).
func New(runner oasis.CodeRunner, tools *oasis.ToolRegistry) *Tool {
	return &Tool{runner: runner, tools: tools}
}

func (t *Tool) Definitions() []oasis.ToolDefinition {
	return []oasis.ToolDefinition{{
		Name: "execute_code",
		Description: "Execute Python code in a sandbox. Use set_result(value) to return structured " +
			"output and call_tool(name, args) to invoke other available tools from within the code.",
		Parameters: json.RawMessage(`{"type":"object","properties":{"code":{"type":"string","description":"Python source to run"},"timeout":{"type":"integer","description":"Timeout in seconds"}},"required":["code"]}`),
	}}
}

func (t *Tool) Execute(ctx context.Context, _ string, args json.RawMessage) (oasis.ToolResult, error) {
	var params struct {
		Code    string `json:"code"`
		Timeout int    `json:"timeout"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return oasis.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	if params.Code == "" {
		return oasis.ToolResult{Error: "code is required"}, nil
	}

	req := oasis.CodeRequest{Code: params.Code}
	if params.Timeout > 0 {
		req.Timeout = time.Duration(params.Timeout) * time.Second
	}

	result, err := t.runner.Run(ctx, req, t.dispatch)
	if err != nil {
		return oasis.ToolResult{Error: err.Error()}, nil
	}
	if result.Error != "" {
		return oasis.ToolResult{Content: result.Logs, Error: result.Error}, nil
	}
	content := result.Output
	if content == "" {
		content = result.Logs
	}
	return oasis.ToolResult{Content: content}, nil
}

// dispatch bridges call_tool() invocations from inside the sandbox back to
// the full tool registry, refusing recursive execute_code calls.
func (t *Tool) dispatch(ctx context.Context, call oasis.ToolCall) oasis.DispatchResult {
	if t.tools == nil || call.Name == "execute_code" {
		return oasis.DispatchResult{IsError: true, Content: "execute_code cannot call execute_code (no recursion)"}
	}
	result, err := t.tools.Execute(ctx, call.Name, call.Args)
	if err != nil {
		return oasis.DispatchResult{IsError: true, Content: err.Error()}
	}
	if result.Error != "" {
		return oasis.DispatchResult{IsError: true, Content: result.Error}
	}
	return oasis.DispatchResult{Content: result.Content}
}
