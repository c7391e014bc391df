package clawgate

import (
	"context"
	"encoding/json"
)

// Tool defines an agent capability with one or more tool functions.
type Tool interface {
	Definitions() []ToolDefinition
	Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error)
}

// ToolResult is the outcome of a tool execution.
type ToolResult struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

// AgentTask carries the identity of whoever triggered a tool call — the
// chat's user, thread, or an originating input string — through context.
// Tools that attribute what they create (e.g. skill_create) read it back
// with TaskFromContext; callers that don't care about attribution can leave
// it unset, in which case tools fall back to an "unknown" attribution.
type AgentTask struct {
	Input    string
	UserID   string
	ChatID   string
	ThreadID string
}

// WithUserID returns a copy of the task with UserID set.
func (t AgentTask) WithUserID(id string) AgentTask {
	t.UserID = id
	return t
}

// TaskUserID returns the task's UserID, or "" if unset.
func (t AgentTask) TaskUserID() string { return t.UserID }

type taskContextKey struct{}

// WithTaskContext attaches an AgentTask to ctx for tools to read back.
func WithTaskContext(ctx context.Context, task AgentTask) context.Context {
	return context.WithValue(ctx, taskContextKey{}, task)
}

// TaskFromContext retrieves the AgentTask attached by WithTaskContext, if any.
func TaskFromContext(ctx context.Context) (AgentTask, bool) {
	task, ok := ctx.Value(taskContextKey{}).(AgentTask)
	return task, ok
}

// ToolRegistry holds all registered tools and dispatches execution.
type ToolRegistry struct {
	tools []Tool
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{}
}

// Add registers a tool.
func (r *ToolRegistry) Add(t Tool) {
	r.tools = append(r.tools, t)
}

// AllDefinitions returns tool definitions from all registered tools.
func (r *ToolRegistry) AllDefinitions() []ToolDefinition {
	var defs []ToolDefinition
	for _, t := range r.tools {
		defs = append(defs, t.Definitions()...)
	}
	return defs
}

// Execute dispatches a tool call by name.
func (r *ToolRegistry) Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error) {
	for _, t := range r.tools {
		for _, d := range t.Definitions() {
			if d.Name == name {
				return t.Execute(ctx, name, args)
			}
		}
	}
	return ToolResult{Error: "unknown tool: " + name}, nil
}
