package clawgate

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

type sequenceProvider struct {
	name      string
	responses []ChatResponse
	call      int
	mu        sync.Mutex
}

func (p *sequenceProvider) next() ChatResponse {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.call >= len(p.responses) {
		return ChatResponse{Content: "no more responses"}
	}
	r := p.responses[p.call]
	p.call++
	return r
}

func (p *sequenceProvider) Name() string { return p.name }

func (p *sequenceProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	return p.next(), nil
}

func (p *sequenceProvider) ChatWithTools(ctx context.Context, req ChatRequest, tools []ToolDefinition) (ChatResponse, error) {
	return p.next(), nil
}

func (p *sequenceProvider) ChatStream(ctx context.Context, req ChatRequest, ch chan<- StreamEvent) (ChatResponse, error) {
	defer close(ch)
	resp := p.next()
	if resp.Content != "" {
		ch <- StreamEvent{Type: EventTextDelta, Content: resp.Content}
	}
	return resp, nil
}

type echoTool struct{ calls int }

func (t *echoTool) Definitions() []ToolDefinition {
	return []ToolDefinition{{Name: "echo", Description: "echoes its input"}}
}

func (t *echoTool) Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error) {
	t.calls++
	return ToolResult{Content: string(args)}, nil
}

type capturingSink struct {
	mu     sync.Mutex
	events []EventFrame
}

func (s *capturingSink) Emit(ev EventFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *capturingSink) snapshot() []EventFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]EventFrame(nil), s.events...)
}

func newTestEngine(tools *ToolRegistry, maxIter int) (*ChatEngine, *capturingSink, context.Context) {
	reg := NewRegistry(nil)
	d := NewDispatcher(reg, nil)
	sink := &capturingSink{}
	ctx := WithEventSink(context.Background(), sink)
	return NewChatEngine(d, tools, maxIter, nil), sink, ctx
}

func waitForFinal(t *testing.T, sink *capturingSink) EventFrame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, ev := range sink.snapshot() {
			if ev.Topic == TopicChat {
				if data, ok := ev.Data.(map[string]any); ok {
					if state, _ := data["state"].(string); state == "final" || state == "error" {
						return ev
					}
				}
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for final/error chat event")
	return EventFrame{}
}

func TestChatEngineNoTools(t *testing.T) {
	engine, sink, ctx := newTestEngine(nil, 8)
	provider := &sequenceProvider{name: "test", responses: []ChatResponse{{Content: "hello there"}}}

	runID := engine.Start(ctx, provider, "sess-1", ChatRequest{Messages: []ChatMessage{UserMessage("hi")}})
	if runID == "" {
		t.Fatal("expected non-empty runId")
	}

	final := waitForFinal(t, sink)
	data := final.Data.(map[string]any)
	if data["state"] != "final" {
		t.Fatalf("expected final state, got %+v", data)
	}
	if data["text"] != "hello there" {
		t.Fatalf("expected text %q, got %+v", "hello there", data["text"])
	}
	if data["stopReason"] != StopEndTurn {
		t.Fatalf("expected stop reason %q, got %+v", StopEndTurn, data["stopReason"])
	}
}

func TestChatEngineToolLoop(t *testing.T) {
	tool := &echoTool{}
	registry := NewToolRegistry()
	registry.Add(tool)

	engine, sink, ctx := newTestEngine(registry, 8)
	provider := &sequenceProvider{
		name: "test",
		responses: []ChatResponse{
			{ToolCalls: []ToolCall{{ID: "1", Name: "echo", Args: json.RawMessage(`{"x":1}`)}}},
			{Content: "done"},
		},
	}

	engine.Start(ctx, provider, "sess-2", ChatRequest{Messages: []ChatMessage{UserMessage("run echo")}})

	final := waitForFinal(t, sink)
	data := final.Data.(map[string]any)
	if data["text"] != "done" {
		t.Fatalf("expected final text %q, got %+v", "done", data["text"])
	}
	if tool.calls != 1 {
		t.Fatalf("expected echo tool to be called once, got %d", tool.calls)
	}
}

func TestChatEngineMaxIterations(t *testing.T) {
	tool := &echoTool{}
	registry := NewToolRegistry()
	registry.Add(tool)

	responses := make([]ChatResponse, 0, 4)
	for i := 0; i < 4; i++ {
		responses = append(responses, ChatResponse{ToolCalls: []ToolCall{{ID: "x", Name: "echo", Args: json.RawMessage(`{}`)}}})
	}
	engine, sink, ctx := newTestEngine(registry, 2)
	provider := &sequenceProvider{name: "test", responses: responses}

	engine.Start(ctx, provider, "sess-3", ChatRequest{Messages: []ChatMessage{UserMessage("loop forever")}})

	final := waitForFinal(t, sink)
	data := final.Data.(map[string]any)
	if data["stopReason"] != StopMaxIterations {
		t.Fatalf("expected stop reason %q, got %+v", StopMaxIterations, data["stopReason"])
	}
}

func TestChatEngineCancel(t *testing.T) {
	registry := NewToolRegistry()
	registry.Add(&echoTool{})
	engine, sink, ctx := newTestEngine(registry, 8)
	provider := &sequenceProvider{
		name:      "test",
		responses: []ChatResponse{{ToolCalls: []ToolCall{{ID: "1", Name: "echo", Args: json.RawMessage(`{}`)}}}},
	}

	runID := engine.Start(ctx, provider, "sess-4", ChatRequest{Messages: []ChatMessage{UserMessage("hi")}})
	engine.Cancel(runID)

	final := waitForFinal(t, sink)
	data := final.Data.(map[string]any)
	if data["state"] != "error" {
		t.Fatalf("expected error state after cancel, got %+v", data)
	}
}
