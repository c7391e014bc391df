package clawgate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// StreamEventType discriminates the pieces a provider can push while
// streaming a completion.
type StreamEventType string

const (
	EventTextDelta StreamEventType = "text_delta"
	EventToolUse   StreamEventType = "tool_use"
	EventThinking  StreamEventType = "thinking"
)

// StreamEvent is what a Provider's ChatStream pushes onto its output
// channel as the completion is produced.
type StreamEvent struct {
	Type      StreamEventType
	Content   string
	ToolName  string
	ToolInput json.RawMessage
}

// CompletionChunk is the engine-internal queued unit consumed by the event
// broadcaster. It mirrors StreamEvent but uses the wire vocabulary
// ("text"|"tool_use"|"thinking") so it can be embedded directly in event
// payloads.
type CompletionChunk struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	ToolInput json.RawMessage `json:"tool_input,omitempty"`
}

func chunkFromStreamEvent(ev StreamEvent) CompletionChunk {
	switch ev.Type {
	case EventToolUse:
		return CompletionChunk{Type: "tool_use", ToolName: ev.ToolName, ToolInput: ev.ToolInput}
	case EventThinking:
		return CompletionChunk{Type: "thinking", Text: ev.Content}
	default:
		return CompletionChunk{Type: "text", Text: ev.Content}
	}
}

// chunkQueue is the mutually-excluded queue + single-slot notifier described
// by SPEC_FULL.md §4.2's producer/consumer design. The producer pushes under
// lock and signals notify; the consumer waits on notify, then drains
// everything queued since its last wake under the same lock.
type chunkQueue struct {
	mu     sync.Mutex
	items  []CompletionChunk
	done   bool
	notify chan struct{}
}

func newChunkQueue() *chunkQueue {
	return &chunkQueue{notify: make(chan struct{}, 1)}
}

func (q *chunkQueue) push(c CompletionChunk) {
	q.mu.Lock()
	q.items = append(q.items, c)
	q.mu.Unlock()
	q.signal()
}

func (q *chunkQueue) close() {
	q.mu.Lock()
	q.done = true
	q.mu.Unlock()
	q.signal()
}

func (q *chunkQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// drain returns everything queued plus whether the queue is done and empty
// (i.e. the consumer should exit after processing this batch).
func (q *chunkQueue) drain() (batch []CompletionChunk, finished bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	batch = q.items
	q.items = nil
	finished = q.done && len(batch) == 0
	return batch, finished
}

// ChatRunState is the lifecycle of one agent.chat/chat.send invocation.
type ChatRunState string

const (
	RunQueued    ChatRunState = "queued"
	RunStreaming ChatRunState = "streaming"
	RunFinal     ChatRunState = "final"
	RunError     ChatRunState = "error"
	RunCancelled ChatRunState = "cancelled"
)

// StopReason describes why the tool loop stopped iterating.
const (
	StopEndTurn       = "end_turn"
	StopMaxIterations = "max_iterations"
	StopCancelled     = "cancelled"
)

// ChatRun tracks one in-flight chat turn: its state, the cancellation flag
// polled by the tool loop, and bookkeeping for gateway.status.
type ChatRun struct {
	ID         string
	SessionID  string
	State      ChatRunState
	StartedAt  time.Time
	cancelled  atomic.Bool
	inputToks  atomic.Int64
	outputToks atomic.Int64
}

// Cancel requests cooperative cancellation; observable at the next tool-loop
// boundary or consumed chunk.
func (r *ChatRun) Cancel() { r.cancelled.Store(true) }

func (r *ChatRun) isCancelled() bool { return r.cancelled.Load() }

// ChatEngine drives the streaming tool-calling loop described in
// SPEC_FULL.md §4.2: it owns no transport of its own, emitting progress
// purely through the Dispatcher's EventSink.
type ChatEngine struct {
	dispatcher    *Dispatcher
	tools         *ToolRegistry
	maxIterations int
	log           *slog.Logger

	mu   sync.Mutex
	runs map[string]*ChatRun
}

// NewChatEngine builds an engine bound to dispatcher (for event emission)
// and tools (the tool-call loop's dispatch target). maxIterations <= 0
// defaults to 8.
func NewChatEngine(dispatcher *Dispatcher, tools *ToolRegistry, maxIterations int, log *slog.Logger) *ChatEngine {
	if maxIterations <= 0 {
		maxIterations = 8
	}
	if log == nil {
		log = slog.Default()
	}
	return &ChatEngine{
		dispatcher:    dispatcher,
		tools:         tools,
		maxIterations: maxIterations,
		log:           log,
		runs:          make(map[string]*ChatRun),
	}
}

// Start begins a new chat run for req against provider and returns its
// runId immediately; the turn executes on its own goroutine, exactly as
// handle_chat_send is specified to do.
func (e *ChatEngine) Start(ctx context.Context, provider Provider, sessionID string, req ChatRequest) string {
	run := &ChatRun{ID: uuid.NewString(), SessionID: sessionID, State: RunQueued, StartedAt: time.Now()}
	e.mu.Lock()
	e.runs[run.ID] = run
	e.mu.Unlock()

	go e.execute(context.WithoutCancel(ctx), provider, run, req)
	return run.ID
}

// Cancel flags a run for cooperative cancellation. Returns false if the run
// is unknown (already finished or never existed).
func (e *ChatEngine) Cancel(runID string) bool {
	e.mu.Lock()
	run, ok := e.runs[runID]
	e.mu.Unlock()
	if !ok {
		return false
	}
	run.Cancel()
	return true
}

// Run returns the tracked ChatRun for runID, if any.
func (e *ChatEngine) Run(runID string) (*ChatRun, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	run, ok := e.runs[runID]
	return run, ok
}

func (e *ChatEngine) execute(ctx context.Context, provider Provider, run *ChatRun, req ChatRequest) {
	run.State = RunStreaming

	tools := e.injectToolsIfNeeded(req)

	resp, stopReason, err := e.processWithTools(ctx, provider, run, req, tools)
	if err != nil {
		run.State = RunError
		e.dispatcher.Emit(ctx, TopicChat, map[string]any{
			"runId": run.ID,
			"state": "error",
			"error": err.What(),
		})
		return
	}

	run.State = RunFinal
	e.dispatcher.Emit(ctx, TopicChat, map[string]any{
		"runId":        run.ID,
		"state":        "final",
		"text":         resp.Content,
		"model":        resp.Model,
		"inputTokens":  resp.Usage.InputTokens,
		"outputTokens": resp.Usage.OutputTokens,
		"stopReason":   stopReason,
	})
}

// injectToolsIfNeeded returns the tool registry's definitions when the
// request carries none of its own and the registry is non-empty.
func (e *ChatEngine) injectToolsIfNeeded(req ChatRequest) []ToolDefinition {
	if e.tools == nil {
		return nil
	}
	return e.tools.AllDefinitions()
}

// processWithTools implements the tool loop: call provider, collect
// tool_use blocks, execute them, append a tool_result message, repeat until
// the model stops calling tools or maxIterations is hit.
func (e *ChatEngine) processWithTools(ctx context.Context, provider Provider, run *ChatRun, req ChatRequest, tools []ToolDefinition) (ChatResponse, string, *Error) {
	messages := append([]ChatMessage(nil), req.Messages...)
	var totalIn, totalOut int
	var last ChatResponse

	for iter := 0; iter < e.maxIterations; iter++ {
		if run.isCancelled() {
			return last, StopCancelled, NewInternal("chat run cancelled", run.ID)
		}

		resp, streamErr := e.streamOnce(ctx, provider, run, ChatRequest{Messages: messages, ResponseSchema: req.ResponseSchema}, tools)
		if streamErr != nil {
			return last, "", streamErr
		}
		last = resp
		totalIn += resp.Usage.InputTokens
		totalOut += resp.Usage.OutputTokens

		if len(resp.ToolCalls) == 0 {
			last.Usage = Usage{InputTokens: totalIn, OutputTokens: totalOut}
			run.inputToks.Store(int64(totalIn))
			run.outputToks.Store(int64(totalOut))
			return last, StopEndTurn, nil
		}

		messages = append(messages, ChatMessage{Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls})

		var resultDump strings.Builder
		for _, tc := range resp.ToolCalls {
			if run.isCancelled() {
				return last, StopCancelled, NewInternal("chat run cancelled", run.ID)
			}
			result := e.dispatchTool(ctx, tc)
			payload, _ := json.Marshal(map[string]string{"tool_use_id": tc.ID, "tool_name": tc.Name, "result": result})
			resultDump.Write(payload)
			resultDump.WriteByte('\n')
		}
		messages = append(messages, ChatMessage{Role: "tool", Content: resultDump.String()})
	}

	last.Usage = Usage{InputTokens: totalIn, OutputTokens: totalOut}
	return last, StopMaxIterations, nil
}

// dispatchTool executes one tool call. Execution errors are not fatal to
// the chat run: they're folded into the result payload as {"error": "..."}.
func (e *ChatEngine) dispatchTool(ctx context.Context, tc ToolCall) string {
	if e.tools == nil {
		return fmt.Sprintf(`{"error":"no tools registered, cannot run %q"}`, tc.Name)
	}
	res, err := e.tools.Execute(ctx, tc.Name, tc.Args)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	if res.Error != "" {
		return fmt.Sprintf(`{"error":%q}`, res.Error)
	}
	return res.Content
}

// streamOnce performs a single provider call, fanning chunks through a
// chunkQueue and a consumer goroutine that emits matching events, exactly
// as SPEC_FULL.md §4.2 specifies. The consumer is joined before streamOnce
// returns so ordering relative to the final event is preserved.
//
// When tool definitions are in play the call goes through ChatWithTools,
// since tool_use blocks are only decodable from its return value, not from
// a provider's plain text-delta stream; its content is then fed through the
// same queue as a single chunk so the event path stays uniform either way.
func (e *ChatEngine) streamOnce(ctx context.Context, provider Provider, run *ChatRun, req ChatRequest, tools []ToolDefinition) (ChatResponse, *Error) {
	queue := newChunkQueue()

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		for {
			<-queue.notify
			batch, finished := queue.drain()
			for _, c := range batch {
				if run.isCancelled() {
					return
				}
				e.emitChunk(ctx, run, c)
			}
			if finished {
				return
			}
		}
	}()

	var resp ChatResponse
	var err error
	if len(tools) > 0 {
		resp, err = provider.ChatWithTools(ctx, req, tools)
		if err == nil && resp.Content != "" {
			queue.push(CompletionChunk{Type: "text", Text: resp.Content})
		}
		queue.close()
	} else {
		providerCh := make(chan StreamEvent, 16)
		relayDone := make(chan struct{})
		go func() {
			defer close(relayDone)
			for ev := range providerCh {
				queue.push(chunkFromStreamEvent(ev))
			}
			queue.close()
		}()
		resp, err = provider.ChatStream(ctx, req, providerCh)
		<-relayDone
	}

	<-consumerDone
	if err != nil {
		return ChatResponse{}, AsError(err)
	}
	return resp, nil
}

func (e *ChatEngine) emitChunk(ctx context.Context, run *ChatRun, c CompletionChunk) {
	switch c.Type {
	case "tool_use":
		e.dispatcher.Emit(ctx, TopicAgent, map[string]any{"runId": run.ID, "stream": "tool", "toolName": c.ToolName, "toolInput": c.ToolInput})
	case "thinking":
		e.dispatcher.Emit(ctx, TopicAgent, map[string]any{"runId": run.ID, "stream": "thinking", "text": c.Text})
	default:
		e.dispatcher.Emit(ctx, TopicChat, map[string]any{"runId": run.ID, "state": "delta", "stream": "assistant", "text": c.Text})
	}
}
