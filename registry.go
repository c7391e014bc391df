package clawgate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Handler answers one RequestFrame's params and returns either a JSON-able
// result or a gateway *Error. It runs as its own goroutine per dispatch, so
// it may block on I/O freely.
type Handler func(ctx context.Context, params json.RawMessage) (any, *Error)

// MethodEntry is one row of the method registry (SPEC_FULL.md §3, §4.1).
type MethodEntry struct {
	Name        string
	Handler     Handler
	Description string
	Group       string
}

// Registry is the gateway's method table: name -> {handler, description,
// group}. Safe for concurrent registration and dispatch; registration is
// write-mostly at startup and read-only afterwards (SPEC_FULL.md §5).
type Registry struct {
	mu      sync.RWMutex
	entries map[string]MethodEntry
	log     *slog.Logger
}

// NewRegistry creates an empty registry. log may be nil, in which case
// slog.Default() is used.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{entries: make(map[string]MethodEntry), log: log}
}

// Register adds or replaces a method entry. Re-registering an existing name
// logs a warning and keeps only the new entry (SPEC_FULL.md §8 round-trip
// property: register-twice keeps the last).
func (r *Registry) Register(name string, h Handler, description, group string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		r.log.Warn("registry: replacing method", "method", name)
	}
	r.entries[name] = MethodEntry{Name: name, Handler: h, Description: description, Group: group}
}

// HasMethod reports whether name is currently registered.
func (r *Registry) HasMethod(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Methods returns all registered entries sorted by name.
func (r *Registry) Methods() []MethodEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MethodEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// MethodsInGroup returns entries whose Group matches, sorted by name.
func (r *Registry) MethodsInGroup(group string) []MethodEntry {
	all := r.Methods()
	out := all[:0:0]
	for _, e := range all {
		if e.Group == group {
			out = append(out, e)
		}
	}
	return out
}

// Dispatch looks up req.Method and invokes its handler. Unknown methods
// produce NotFound; a panicking handler is recovered and converted to
// InternalError with the panic text as detail (SPEC_FULL.md §4.1, §4.8).
func (r *Registry) Dispatch(ctx context.Context, req RequestFrame) (result any, err *Error) {
	r.mu.RLock()
	entry, ok := r.entries[req.Method]
	r.mu.RUnlock()
	if !ok {
		return nil, NewNotFound("unknown method", req.Method)
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = NewInternal("handler panicked", fmt.Sprint(rec))
			result = nil
		}
	}()

	result, err = entry.Handler(ctx, req.Params)
	return result, err
}

// notImplementedStub returns a handler that produces the §4.1 stub payload.
// Stubs are successful responses, not errors, so gateway.methods stays
// accurate while the real subsystem behind a method comes online.
func notImplementedStub(method string) Handler {
	return func(ctx context.Context, params json.RawMessage) (any, *Error) {
		return map[string]string{
			"status":  "not_implemented",
			"method":  method,
			"message": "this method is not yet wired to a subsystem",
		}, nil
	}
}

// stubSpec names one built-in method surface entry: its group and a short
// human description used for gateway.methods listings.
type stubSpec struct {
	name, group, description string
}

// builtinMethodSurface enumerates every method named in SPEC_FULL.md §6's
// method groups. RegisterBuiltinStubs populates the registry with one stub
// per entry; real subsystems later overwrite the entries they implement.
var builtinMethodSurface = []stubSpec{
	{"gateway.info", "gateway", "static build/version info"},
	{"gateway.ping", "gateway", "liveness check"},
	{"gateway.status", "gateway", "subsystem health + security-audit findings"},
	{"gateway.methods", "gateway", "list all registered methods"},
	{"gateway.subscribe", "gateway", "subscribe connection to an event topic"},
	{"gateway.unsubscribe", "gateway", "unsubscribe connection from an event topic"},
	{"gateway.shutdown", "gateway", "graceful shutdown"},
	{"gateway.reload", "gateway", "reload configuration from disk"},
	{"gateway.metrics", "gateway", "OTEL metric snapshot"},
	{"gateway.logs", "gateway", "recent structured log lines"},

	{"session.create", "session", "create a session"},
	{"session.get", "session", "fetch a session by id"},
	{"session.list", "session", "list sessions for a user"},
	{"session.destroy", "session", "end a session"},
	{"session.heartbeat", "session", "renew Active state"},
	{"session.update", "session", "update session metadata"},
	{"session.context.set", "session", "set a context variable"},
	{"session.context.get", "session", "get a context variable"},
	{"session.context.clear", "session", "clear context variables"},
	{"session.history", "session", "fetch turn history"},

	{"channel.list", "channel", "list registered channels"},
	{"channel.connect", "channel", "start a channel"},
	{"channel.disconnect", "channel", "stop a channel"},
	{"channel.status", "channel", "channel running state"},
	{"channel.send", "channel", "send an outbound message"},
	{"channel.receive", "channel", "poll for inbound messages"},
	{"channel.configure", "channel", "set channel auth policy"},
	{"channel.telegram.webhook", "channel", "telegram webhook ingress"},
	{"channel.discord.setup", "channel", "discord bot setup"},
	{"channel.slack.setup", "channel", "slack app setup"},
	{"channel.whatsapp.setup", "channel", "whatsapp setup"},
	{"channel.sms.send", "channel", "send an SMS"},

	{"tool.list", "tool", "list registered tools"},
	{"tool.execute", "tool", "invoke a tool by name"},
	{"tool.register", "tool", "register a tool"},
	{"tool.unregister", "tool", "unregister a tool"},
	{"tool.describe", "tool", "describe a tool's schema"},
	{"tool.enable", "tool", "enable a tool"},
	{"tool.disable", "tool", "disable a tool"},
	{"tool.shell.exec", "tool", "run a shell command"},
	{"tool.file.read", "tool", "read a file"},
	{"tool.file.write", "tool", "write a file"},
	{"tool.file.list", "tool", "list a directory"},
	{"tool.file.search", "tool", "search files"},
	{"tool.http.request", "tool", "SSRF-guarded HTTP fetch"},
	{"tool.code.run", "tool", "run sandboxed code"},
	{"tool.code.analyze", "tool", "static-analyze code"},

	{"memory.store", "memory", "store a document or fact"},
	{"memory.recall", "memory", "recall by id"},
	{"memory.search", "memory", "semantic search"},
	{"memory.delete", "memory", "delete a memory record"},
	{"memory.list", "memory", "list memory records"},
	{"memory.clear", "memory", "clear memory"},
	{"memory.stats", "memory", "memory usage stats"},
	{"memory.embed", "memory", "embed text"},
	{"memory.index.rebuild", "memory", "rebuild the vector index"},
	{"memory.rag.query", "memory", "retrieval-augmented query"},

	{"browser.open", "browser", "acquire a browser instance"},
	{"browser.close", "browser", "release a browser instance"},
	{"browser.navigate", "browser", "navigate to a URL"},
	{"browser.screenshot", "browser", "capture a screenshot"},
	{"browser.content", "browser", "fetch rendered HTML"},
	{"browser.click", "browser", "click an element"},
	{"browser.type", "browser", "type into an element"},
	{"browser.fill", "browser", "fill a form field"},
	{"browser.evaluate", "browser", "run JS in the page"},
	{"browser.wait", "browser", "wait for a selector"},
	{"browser.scroll", "browser", "scroll the page"},
	{"browser.pdf", "browser", "render page to PDF"},
	{"browser.cookies.get", "browser", "read cookies"},
	{"browser.cookies.set", "browser", "set cookies"},

	{"provider.list", "provider", "list configured providers"},
	{"provider.chat", "provider", "one-shot chat completion"},
	{"provider.chat.stream", "provider", "streaming chat completion"},
	{"provider.models", "provider", "list available models"},
	{"provider.embed", "provider", "embed text"},
	{"provider.status", "provider", "provider health"},
	{"provider.configure", "provider", "set provider credentials"},
	{"provider.usage", "provider", "token usage stats"},

	{"plugin.list", "plugin", "list loaded plugins"},
	{"plugin.install", "plugin", "load a plugin"},
	{"plugin.uninstall", "plugin", "unload a plugin"},
	{"plugin.enable", "plugin", "enable a plugin"},
	{"plugin.disable", "plugin", "disable a plugin"},
	{"plugin.configure", "plugin", "set plugin config"},
	{"plugin.call", "plugin", "invoke a plugin-defined method"},
	{"plugin.status", "plugin", "plugin health"},

	{"agent.chat", "agent", "start a tool-looped chat run"},
	{"agent.chat.stream", "agent", "start a streaming chat run"},
	{"agent.chat.cancel", "agent", "cancel a chat run"},
	{"agent.system_prompt.get", "agent", "get the system prompt"},
	{"agent.system_prompt.set", "agent", "set the system prompt"},
	{"agent.thinking.get", "agent", "get thinking-mode setting"},
	{"agent.thinking.set", "agent", "set thinking-mode setting"},
	{"agent.model.get", "agent", "get the active model"},
	{"agent.model.set", "agent", "set the active model"},
	{"agent.conversation.create", "agent", "create a conversation"},
	{"agent.conversation.list", "agent", "list conversations"},
	{"agent.conversation.get", "agent", "fetch a conversation"},
	{"agent.conversation.delete", "agent", "delete a conversation"},
	{"agent.conversation.rename", "agent", "rename a conversation"},

	{"cron.list", "cron", "list scheduled tasks"},
	{"cron.create", "cron", "create a scheduled task"},
	{"cron.delete", "cron", "cancel a scheduled task"},
	{"cron.enable", "cron", "enable a scheduled task"},
	{"cron.disable", "cron", "disable a scheduled task"},
	{"cron.trigger", "cron", "run a scheduled task immediately"},
	{"cron.status", "cron", "scheduler run history"},

	{"config.get", "config", "get a config value"},
	{"config.set", "config", "set a config value"},
	{"config.patch", "config", "optimistic multi-path patch"},
	{"config.list", "config", "dump the config tree"},
	{"config.reset", "config", "reset to defaults"},
	{"config.export", "config", "export config as JSON"},
	{"config.import", "config", "import config from JSON"},

	{"chat.send", "chat", "send a chat turn, returns {runId}"},
}

// RegisterBuiltinStubs populates r with a not_implemented stub for every
// method named in SPEC_FULL.md §6. Call once at startup before wiring real
// subsystem handlers, which overwrite the stubs they implement.
func (r *Registry) RegisterBuiltinStubs() {
	for _, s := range builtinMethodSurface {
		r.Register(s.name, notImplementedStub(s.name), s.description, s.group)
	}
}
