package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// LogRecord is one captured log line, shaped for gateway.logs responses.
type LogRecord struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// LogRecorder is an slog.Handler that keeps the last N records in a ring
// buffer while forwarding every record to an inner handler, so gateway.logs
// can answer "what has this process logged recently" without a separate
// log-shipping pipeline.
type LogRecorder struct {
	inner slog.Handler
	mu    *sync.Mutex
	buf   []LogRecord
	cap   int
	next  *int
	full  *bool
}

// NewLogRecorder wraps inner, retaining the most recent capacity records.
func NewLogRecorder(inner slog.Handler, capacity int) *LogRecorder {
	if capacity <= 0 {
		capacity = 500
	}
	next, full := 0, false
	return &LogRecorder{inner: inner, mu: &sync.Mutex{}, buf: make([]LogRecord, capacity), cap: capacity, next: &next, full: &full}
}

func (r *LogRecorder) Enabled(ctx context.Context, level slog.Level) bool {
	return r.inner.Enabled(ctx, level)
}

func (r *LogRecorder) Handle(ctx context.Context, rec slog.Record) error {
	attrs := make(map[string]any, rec.NumAttrs())
	rec.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})

	r.mu.Lock()
	r.buf[*r.next] = LogRecord{Time: rec.Time, Level: rec.Level.String(), Message: rec.Message, Attrs: attrs}
	*r.next = (*r.next + 1) % r.cap
	if *r.next == 0 {
		*r.full = true
	}
	r.mu.Unlock()

	return r.inner.Handle(ctx, rec)
}

func (r *LogRecorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LogRecorder{inner: r.inner.WithAttrs(attrs), buf: r.buf, cap: r.cap, next: r.next, full: r.full}
}

func (r *LogRecorder) WithGroup(name string) slog.Handler {
	return &LogRecorder{inner: r.inner.WithGroup(name), buf: r.buf, cap: r.cap, next: r.next, full: r.full}
}

// Records returns up to limit of the most recently captured log lines,
// oldest first. limit <= 0 returns everything retained.
func (r *LogRecorder) Records(limit int) []LogRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ordered []LogRecord
	if *r.full {
		ordered = append(ordered, r.buf[*r.next:]...)
		ordered = append(ordered, r.buf[:*r.next]...)
	} else {
		ordered = append(ordered, r.buf[:*r.next]...)
	}

	if limit > 0 && limit < len(ordered) {
		ordered = ordered[len(ordered)-limit:]
	}
	return ordered
}
