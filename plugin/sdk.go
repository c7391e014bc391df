// Package plugin lets a gateway operator extend the tool set at runtime by
// dropping a compiled Go plugin (.so) into a plugins directory, without
// recompiling the gateway itself.
package plugin

import (
	"context"
	"encoding/json"
	"sync"

	oasis "github.com/nevindra/clawgate"
)

// ToolExecuteFunc runs a registered tool call and returns its result.
type ToolExecuteFunc func(ctx context.Context, args json.RawMessage) (any, *oasis.Error)

// registeredTool pairs a tool's definition with its executor.
type registeredTool struct {
	definition oasis.ToolDefinition
	execute    ToolExecuteFunc
}

// SDK is the handle a plugin's Register function receives. A plugin calls
// RegisterTool for each tool it wants to expose through the gateway; the
// gateway then dispatches tool calls by name the same way it dispatches
// built-in tools.
type SDK struct {
	mu    sync.RWMutex
	tools map[string]registeredTool
}

// NewSDK creates an empty SDK. Call it once per plugin before invoking the
// plugin's Register entry point.
func NewSDK() *SDK {
	return &SDK{tools: make(map[string]registeredTool)}
}

// RegisterTool adds a tool to the SDK. Calling it twice for the same name
// overwrites the earlier registration, matching how a plugin re-registering
// itself (e.g. after a config reload) is expected to behave.
func (s *SDK) RegisterTool(def oasis.ToolDefinition, execute ToolExecuteFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools[def.Name] = registeredTool{definition: def, execute: execute}
}

// Definitions returns the ToolDefinition for every registered tool, for
// inclusion in a ChatRequest's available-tools list.
func (s *SDK) Definitions() []oasis.ToolDefinition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]oasis.ToolDefinition, 0, len(s.tools))
	for _, t := range s.tools {
		out = append(out, t.definition)
	}
	return out
}

// Execute runs the named tool. Returns NotFound if no plugin registered it.
func (s *SDK) Execute(ctx context.Context, name string, args json.RawMessage) (any, *oasis.Error) {
	s.mu.RLock()
	t, ok := s.tools[name]
	s.mu.RUnlock()
	if !ok {
		return nil, oasis.NewNotFound("plugin tool not registered", name)
	}
	return t.execute(ctx, args)
}

// Has reports whether name is registered, for routing a tool call to the
// plugin dispatcher only when the built-in registry doesn't own it.
func (s *SDK) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tools[name]
	return ok
}
