package clawgate

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// EventSink receives events produced while handling a request (tool-stream
// chunks, cron firings, session lifecycle) so they can be broadcast to
// subscribed connections without the handler needing direct access to the
// transport layer.
type EventSink interface {
	Emit(ev EventFrame)
}

// sinkKey is the context key under which a per-connection EventSink is
// stashed so deeply nested handlers (tool execution, chat streaming) can
// publish events without threading a sink parameter through every call.
type sinkKey struct{}

// WithEventSink returns a context carrying sink, retrievable with SinkFromContext.
func WithEventSink(ctx context.Context, sink EventSink) context.Context {
	return context.WithValue(ctx, sinkKey{}, sink)
}

// SinkFromContext returns the EventSink stashed by WithEventSink, or a no-op
// sink if none was attached.
func SinkFromContext(ctx context.Context) EventSink {
	if s, ok := ctx.Value(sinkKey{}).(EventSink); ok && s != nil {
		return s
	}
	return noopSink{}
}

type noopSink struct{}

func (noopSink) Emit(EventFrame) {}

// Dispatcher binds a Registry to frame-level request/response handling and
// timestamps events on behalf of handlers that don't have a clock of their
// own (SPEC_FULL.md §4.1, §9 on the callback-driven event model).
type Dispatcher struct {
	registry *Registry
	log      *slog.Logger
	nowFunc  func() time.Time
}

// NewDispatcher builds a Dispatcher over registry. log may be nil.
func NewDispatcher(registry *Registry, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{registry: registry, log: log, nowFunc: time.Now}
}

// HandleRequest decodes, dispatches, and re-encodes one request frame into a
// response frame. The ID is always echoed back, even on malformed params,
// so a client can always correlate a failure to its request.
func (d *Dispatcher) HandleRequest(ctx context.Context, req RequestFrame) ResponseFrame {
	if req.Method == "" {
		return NewErrorResponse(req.ID, NewInvalidArgument("missing method", ""))
	}

	result, gwErr := d.registry.Dispatch(ctx, req)
	if gwErr != nil {
		d.log.Warn("dispatch failed", "method", req.Method, "id", req.ID, "kind", gwErr.Kind.String(), "detail", gwErr.Detail)
		return NewErrorResponse(req.ID, gwErr)
	}
	return NewResponse(req.ID, result)
}

// Emit builds and timestamps an EventFrame and hands it to the sink attached
// to ctx (if any). Handlers call this instead of constructing EventFrame
// directly so the timestamp source stays centralized and test-injectable.
func (d *Dispatcher) Emit(ctx context.Context, topic string, data any) {
	SinkFromContext(ctx).Emit(NewEvent(topic, data, d.nowFunc().UnixMilli()))
}

// DecodeParams unmarshals raw into dst, wrapping a json error as a gateway
// InvalidArgument so handlers don't need to hand-roll this boilerplate.
func DecodeParams(raw json.RawMessage, dst any) *Error {
	if len(raw) == 0 {
		return NewInvalidArgument("missing params", "")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return NewInvalidArgument("invalid params", err.Error())
	}
	return nil
}
