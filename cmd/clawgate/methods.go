package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	oasis "github.com/nevindra/clawgate"
	"github.com/nevindra/clawgate/browser"
	"github.com/nevindra/clawgate/channel"
	"github.com/nevindra/clawgate/cron"
	"github.com/nevindra/clawgate/gateway"
	"github.com/nevindra/clawgate/guard"
	"github.com/nevindra/clawgate/internal/config"
	clawmemory "github.com/nevindra/clawgate/memory"
	"github.com/nevindra/clawgate/plugin"
	"github.com/nevindra/clawgate/session"
	"github.com/nevindra/clawgate/store/sqlite"
)

var processStartedAt = time.Now()

// registerGatewayMethods wires process-level introspection and control.
// shutdownFn cancels the context main() is blocked on, triggering the same
// graceful drain path as an interrupt signal.
func registerGatewayMethods(registry *oasis.Registry, cfg config.Config, runtimeCfg *config.Runtime, srv *gateway.Server, logs *gateway.LogRecorder, shutdownFn context.CancelFunc) {
	registry.Register("gateway.info", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		version := "dev"
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
			version = info.Main.Version
		}
		return map[string]any{
			"version": version,
			"uptime":  time.Since(processStartedAt).Seconds(),
		}, nil
	}, "static build/version info", "gateway")

	registry.Register("gateway.ping", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		return map[string]string{"status": "ok"}, nil
	}, "liveness check", "gateway")

	registry.Register("gateway.methods", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		entries := registry.Methods()
		out := make([]map[string]string, 0, len(entries))
		for _, e := range entries {
			out = append(out, map[string]string{"name": e.Name, "group": e.Group, "description": e.Description})
		}
		return out, nil
	}, "list all registered methods", "gateway")

	registry.Register("gateway.status", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		return map[string]any{
			"sandboxEnabled": cfg.Sandbox.Enabled,
			"networkMode":    cfg.Sandbox.NetworkMode,
			"findings":       auditConfig(cfg),
		}, nil
	}, "subsystem health + security-audit findings", "gateway")

	registry.Register("gateway.metrics", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)
		return map[string]any{
			"uptimeSeconds":  time.Since(processStartedAt).Seconds(),
			"connectedWS":    srv.ClientCount(),
			"goroutines":     runtime.NumGoroutine(),
			"heapAllocBytes": mem.HeapAlloc,
			"gcCycles":       mem.NumGC,
		}, nil
	}, "process + connection counters", "gateway")

	registry.Register("gateway.logs", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var req struct {
			Limit int `json:"limit"`
		}
		_ = oasis.DecodeParams(params, &req)
		return map[string]any{"logs": logs.Records(req.Limit)}, nil
	}, "recent in-memory log lines captured by the process", "gateway")

	registry.Register("gateway.subscribe", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		return map[string]any{
			"ok":   true,
			"note": "every connected client already receives every topic; there is no per-connection topic filter to narrow",
		}, nil
	}, "no-op: the gateway already broadcasts every event to every connection", "gateway")

	registry.Register("gateway.unsubscribe", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		return map[string]any{
			"ok":   true,
			"note": "every connected client already receives every topic; there is no per-connection topic filter to narrow",
		}, nil
	}, "no-op: the gateway already broadcasts every event to every connection", "gateway")

	registry.Register("gateway.reload", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		fresh := config.Load(os.Getenv("CLAWGATE_ENV_FILE"), os.Getenv("CLAWGATE_CONFIG_FILE"))
		doc := configToRuntimeDoc(fresh)
		_, baseHash := runtimeCfg.Get()
		patches := make([]config.Patch, 0, len(doc))
		for k, v := range doc {
			patches = append(patches, config.Patch{Path: k, Value: v})
		}
		ok, hash, perr := runtimeCfg.Patch(patches, baseHash)
		if perr != nil {
			return nil, perr
		}
		return map[string]any{"ok": ok, "hash": hash}, nil
	}, "re-read the on-disk env/TOML config files and apply them over the live runtime config", "gateway")

	registry.Register("gateway.shutdown", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		shutdownFn()
		return map[string]bool{"ok": true}, nil
	}, "trigger the same graceful shutdown path as an interrupt signal", "gateway")
}

// auditFinding is one static security-audit observation over a loaded
// Config, surfaced through gateway.status' findings field.
type auditFinding struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// auditConfig runs the static config security-audit heuristics: open
// group/DM policies, wildcard allowlists, and sandbox/tool-exposure
// mismatches.
func auditConfig(cfg config.Config) []auditFinding {
	var findings []auditFinding
	for _, ch := range cfg.Channels {
		if ch.DMPolicy == "open" {
			findings = append(findings, auditFinding{
				Severity: "warn",
				Message:  "channel " + ch.Name + " has an open DM policy: any sender can reach the assistant",
			})
		}
		for _, id := range ch.AllowedSenderIDs {
			if id == "*" {
				findings = append(findings, auditFinding{
					Severity: "warn",
					Message:  "channel " + ch.Name + " has a wildcard sender allowlist entry",
				})
			}
		}
	}
	if !cfg.Sandbox.Enabled && cfg.Tools.Profile == "full" {
		findings = append(findings, auditFinding{
			Severity: "high",
			Message:  "sandbox disabled while tools.profile is \"full\": all tools are exposed unsandboxed",
		})
	}
	if cfg.Sandbox.DangerouslyAllowContainerNamespaceJoin {
		findings = append(findings, auditFinding{
			Severity: "high",
			Message:  "sandbox network break-glass flag is enabled: container namespace joins are permitted",
		})
	}
	return findings
}

func registerSessionMethods(registry *oasis.Registry, sessions *session.Manager) {
	registry.Register("session.create", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var req struct {
			ChatID  string `json:"chatId"`
			Channel string `json:"channel"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		s := sessions.GetOrCreate(req.ChatID, req.Channel, time.Now())
		return map[string]any{"chatId": s.ChatID, "channel": s.Channel, "createdAt": s.CreatedAt}, nil
	}, "create or fetch the session for a chat", "session")

	registry.Register("session.get", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var req struct {
			ChatID string `json:"chatId"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		s, ok := sessions.Get(req.ChatID)
		if !ok {
			return nil, oasis.NewNotFound("no session for chat", req.ChatID)
		}
		return map[string]any{"chatId": s.ChatID, "channel": s.Channel, "updatedAt": s.UpdatedAt}, nil
	}, "fetch a session's metadata", "session")

	registry.Register("session.list", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		return sessions.List(), nil
	}, "list all live sessions", "session")

	registry.Register("session.destroy", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var req struct {
			ChatID string `json:"chatId"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		return map[string]bool{"destroyed": sessions.Destroy(req.ChatID)}, nil
	}, "destroy a session", "session")

	registry.Register("session.heartbeat", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var req struct {
			ChatID string `json:"chatId"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		s, ok := sessions.Get(req.ChatID)
		if !ok {
			return nil, oasis.NewNotFound("no session for chat", req.ChatID)
		}
		s.Touch(time.Now())
		return map[string]bool{"ok": true}, nil
	}, "stamp a session as active without appending a message", "session")

	registry.Register("session.history", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var req struct {
			ChatID string `json:"chatId"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		s, ok := sessions.Get(req.ChatID)
		if !ok {
			return nil, oasis.NewNotFound("no session for chat", req.ChatID)
		}
		return s.Snapshot(), nil
	}, "fetch a session's message history", "session")

	registry.Register("session.update", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var req struct {
			ChatID   string            `json:"chatId"`
			Metadata map[string]string `json:"metadata"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		s, ok := sessions.Get(req.ChatID)
		if !ok {
			return nil, oasis.NewNotFound("no session for chat", req.ChatID)
		}
		for k, v := range req.Metadata {
			s.SetContext(k, v)
		}
		s.Touch(time.Now())
		return map[string]bool{"ok": true}, nil
	}, "merge metadata fields into a session", "session")

	registry.Register("session.context.set", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var req struct {
			ChatID string `json:"chatId"`
			Key    string `json:"key"`
			Value  string `json:"value"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		s, ok := sessions.Get(req.ChatID)
		if !ok {
			return nil, oasis.NewNotFound("no session for chat", req.ChatID)
		}
		s.SetContext(req.Key, req.Value)
		return map[string]bool{"ok": true}, nil
	}, "set a session metadata key", "session")

	registry.Register("session.context.get", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var req struct {
			ChatID string `json:"chatId"`
			Key    string `json:"key"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		s, ok := sessions.Get(req.ChatID)
		if !ok {
			return nil, oasis.NewNotFound("no session for chat", req.ChatID)
		}
		v, found := s.GetContext(req.Key)
		return map[string]any{"value": v, "found": found}, nil
	}, "read a session metadata key", "session")

	registry.Register("session.context.clear", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var req struct {
			ChatID string `json:"chatId"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		s, ok := sessions.Get(req.ChatID)
		if !ok {
			return nil, oasis.NewNotFound("no session for chat", req.ChatID)
		}
		s.ClearContext()
		return map[string]bool{"ok": true}, nil
	}, "clear all session metadata", "session")
}

func registerMemoryMethods(registry *oasis.Registry, store *sqlite.Store, embedding oasis.EmbeddingProvider, provider oasis.Provider) {
	registry.Register("memory.store", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var req struct {
			Title   string `json:"title"`
			Source  string `json:"source"`
			Content string `json:"content"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		vectors, embErr := embedding.Embed(ctx, []string{req.Content})
		if embErr != nil {
			return nil, oasis.AsError(embErr)
		}
		doc := oasis.Document{ID: oasis.NewID(), Title: req.Title, Source: req.Source, Content: req.Content, CreatedAt: oasis.NowUnix()}
		chunk := oasis.Chunk{ID: oasis.NewID(), DocumentID: doc.ID, Content: req.Content, ChunkIndex: 0, Embedding: vectors[0]}
		if storeErr := store.StoreDocument(ctx, doc, []oasis.Chunk{chunk}); storeErr != nil {
			return nil, oasis.AsError(storeErr)
		}
		return map[string]string{"id": doc.ID}, nil
	}, "embed and store a document", "memory")

	registry.Register("memory.search", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var req struct {
			Query string `json:"query"`
			TopK  int    `json:"topK"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		if req.TopK <= 0 {
			req.TopK = 5
		}
		vectors, embErr := embedding.Embed(ctx, []string{req.Query})
		if embErr != nil {
			return nil, oasis.AsError(embErr)
		}
		chunks, searchErr := store.SearchChunks(ctx, vectors[0], req.TopK)
		if searchErr != nil {
			return nil, oasis.AsError(searchErr)
		}
		return chunks, nil
	}, "semantic search over stored documents", "memory")

	registry.Register("memory.rag.query", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var req struct {
			Query string `json:"query"`
			TopK  int    `json:"topK"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		if req.TopK <= 0 {
			req.TopK = 5
		}
		vectors, embErr := embedding.Embed(ctx, []string{req.Query})
		if embErr != nil {
			return nil, oasis.AsError(embErr)
		}
		chunks, searchErr := store.SearchChunks(ctx, vectors[0], req.TopK)
		if searchErr != nil {
			return nil, oasis.AsError(searchErr)
		}
		var b strings.Builder
		for _, c := range chunks {
			b.WriteString(c.Content)
			b.WriteString("\n\n")
		}
		return map[string]any{"context": b.String(), "chunks": chunks}, nil
	}, "retrieve-and-assemble context for a query", "memory")

	registry.Register("memory.recall", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var req struct {
			ThreadID string `json:"threadId"`
			Limit    int    `json:"limit"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		if req.Limit <= 0 {
			req.Limit = 50
		}
		messages, getErr := store.GetMessages(ctx, req.ThreadID, req.Limit)
		if getErr != nil {
			return nil, oasis.AsError(getErr)
		}
		return messages, nil
	}, "fetch recent messages for a thread", "memory")

	registry.Register("memory.list", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var req struct {
			Limit int `json:"limit"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		if req.Limit <= 0 {
			req.Limit = 50
		}
		docs, listErr := store.ListDocuments(ctx, req.Limit)
		if listErr != nil {
			return nil, oasis.AsError(listErr)
		}
		return docs, nil
	}, "list stored documents", "memory")

	registry.Register("memory.delete", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var req struct {
			ID string `json:"id"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		if delErr := store.DeleteDocument(ctx, req.ID); delErr != nil {
			return nil, oasis.AsError(delErr)
		}
		return map[string]bool{"deleted": true}, nil
	}, "delete a stored document", "memory")

	registry.Register("memory.clear", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		docs, listErr := store.ListDocuments(ctx, 1<<20)
		if listErr != nil {
			return nil, oasis.AsError(listErr)
		}
		cleared := 0
		for _, d := range docs {
			if delErr := store.DeleteDocument(ctx, d.ID); delErr == nil {
				cleared++
			}
		}
		return map[string]int{"cleared": cleared}, nil
	}, "delete every stored document", "memory")

	registry.Register("memory.stats", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var docCount, chunkCount, messageCount int
		_ = store.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&docCount)
		_ = store.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&chunkCount)
		_ = store.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&messageCount)
		return map[string]int{"documents": docCount, "chunks": chunkCount, "messages": messageCount}, nil
	}, "report stored document/chunk/message counts", "memory")

	registry.Register("memory.index.rebuild", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		docs, listErr := store.ListDocuments(ctx, 1<<20)
		if listErr != nil {
			return nil, oasis.AsError(listErr)
		}
		rebuilt := 0
		for _, d := range docs {
			chunks, chunkErr := store.GetChunksByDocument(ctx, d.ID)
			if chunkErr != nil {
				continue
			}
			texts := make([]string, len(chunks))
			for i, c := range chunks {
				texts[i] = c.Content
			}
			if len(texts) == 0 {
				continue
			}
			vectors, embErr := embedding.Embed(ctx, texts)
			if embErr != nil {
				continue
			}
			for i := range chunks {
				chunks[i].Embedding = vectors[i]
			}
			if storeErr := store.StoreDocument(ctx, d, chunks); storeErr == nil {
				rebuilt++
			}
		}
		return map[string]int{"rebuilt": rebuilt}, nil
	}, "re-embed every stored document's chunks against the current embedding model", "memory")

	registry.Register("memory.embed", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var req struct {
			Texts []string `json:"texts"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		vectors, embErr := embedding.Embed(ctx, req.Texts)
		if embErr != nil {
			return nil, oasis.AsError(embErr)
		}
		return map[string]any{"vectors": vectors, "dimensions": embedding.Dimensions()}, nil
	}, "embed a batch of texts", "memory")

	registry.Register("memory.extract_facts", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var req struct {
			Text  string `json:"text"`
			Store bool   `json:"store"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		if !clawmemory.ShouldExtract(req.Text) {
			return map[string]any{"facts": []clawmemory.ExtractedFact{}}, nil
		}
		resp, chatErr := provider.Chat(ctx, oasis.ChatRequest{
			Messages: []oasis.ChatMessage{
				{Role: "system", Content: clawmemory.ExtractFactsPrompt},
				{Role: "user", Content: req.Text},
			},
			ResponseSchema: clawmemory.ExtractFactsSchema,
		})
		if chatErr != nil {
			return nil, oasis.AsError(chatErr)
		}
		facts := clawmemory.ParseExtractedFacts(resp.Content)
		if req.Store {
			for _, f := range facts {
				vectors, embErr := embedding.Embed(ctx, []string{f.Fact})
				if embErr != nil {
					continue
				}
				doc := oasis.Document{ID: oasis.NewID(), Title: f.Category, Source: "memory.extract_facts", Content: f.Fact, CreatedAt: oasis.NowUnix()}
				chunk := oasis.Chunk{ID: oasis.NewID(), DocumentID: doc.ID, Content: f.Fact, ChunkIndex: 0, Embedding: vectors[0]}
				_ = store.StoreDocument(ctx, doc, []oasis.Chunk{chunk})
			}
		}
		return map[string]any{"facts": facts}, nil
	}, "extract structured user facts from a message via LLM, optionally persisting them", "memory")
}

func registerToolMethods(registry *oasis.Registry, tools *oasis.ToolRegistry) {
	registry.Register("tool.list", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		return tools.AllDefinitions(), nil
	}, "list every tool definition available to the chat engine", "tool")

	registry.Register("tool.describe", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var req struct {
			Name string `json:"name"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		for _, d := range tools.AllDefinitions() {
			if d.Name == req.Name {
				return d, nil
			}
		}
		return nil, oasis.NewNotFound("no tool with that name", req.Name)
	}, "describe a single tool's schema", "tool")

	registry.Register("tool.execute", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var req struct {
			Name string          `json:"name"`
			Args json.RawMessage `json:"args"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		result, execErr := tools.Execute(ctx, req.Name, req.Args)
		if execErr != nil {
			return nil, oasis.AsError(execErr)
		}
		return result, nil
	}, "invoke a registered tool directly", "tool")

	// Per-namespace aliases for the tool surface's most-used built-ins, so a
	// caller that knows it wants the shell doesn't have to round-trip through
	// tool.describe to learn the underlying registered name is "shell_exec".
	alias := func(method, toolName, description string) {
		registry.Register(method, func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
			result, execErr := tools.Execute(ctx, toolName, params)
			if execErr != nil {
				return nil, oasis.AsError(execErr)
			}
			return result, nil
		}, description, "tool")
	}
	alias("tool.shell.exec", "shell_exec", "run a shell command in the tool workspace")
	alias("tool.file.read", "file_read", "read a file from the tool workspace")
	alias("tool.file.write", "file_write", "write a file in the tool workspace")
	alias("tool.file.list", "file_list", "list files in the tool workspace")
	alias("tool.file.search", "file_search", "search file contents in the tool workspace")
	alias("tool.http.request", "http_fetch", "fetch a URL through the SSRF-guarded HTTP tool")
	alias("tool.code.run", "execute_code", "run Python code in the sandbox")

	registry.Register("tool.code.analyze", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		return nil, oasis.NewInvalidArgument("static analysis is not implemented; use tool.code.run to execute a linter/checker as a subprocess instead", "")
	}, "not supported: no built-in static analyzer, run one via tool.code.run", "tool")

	registry.Register("tool.enable", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		return nil, oasis.NewInvalidArgument("tools are enabled at startup via the workspace/embedding configuration; there is no live per-tool toggle", "")
	}, "not supported: tools are a fixed set assembled at startup", "tool")

	registry.Register("tool.disable", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		return nil, oasis.NewInvalidArgument("tools are enabled at startup via the workspace/embedding configuration; there is no live per-tool toggle", "")
	}, "not supported: tools are a fixed set assembled at startup", "tool")

	registry.Register("tool.register", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		return nil, oasis.NewInvalidArgument("dynamic tool registration is not supported; install a plugin via plugin.install instead", "")
	}, "not supported: use plugin.install for runtime-added capabilities", "tool")

	registry.Register("tool.unregister", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		return nil, oasis.NewInvalidArgument("dynamic tool registration is not supported; uninstall via plugin.uninstall instead", "")
	}, "not supported: use plugin.uninstall for runtime-added capabilities", "tool")
}

func registerBrowserMethods(registry *oasis.Registry, pool *browser.Pool) {
	instanceOf := func(params json.RawMessage) (*browser.Instance, string, *oasis.Error) {
		var req struct {
			InstanceID string `json:"instanceId"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, "", err
		}
		inst, ok := pool.Get(req.InstanceID)
		if !ok {
			return nil, "", oasis.NewNotFound("no browser instance with that id", req.InstanceID)
		}
		return inst, req.InstanceID, nil
	}

	registry.Register("browser.open", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		inst, err := pool.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]string{"instanceId": inst.ID}, nil
	}, "launch or reuse a headless chrome instance", "browser")

	registry.Register("browser.close", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var req struct {
			InstanceID string `json:"instanceId"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		if err := pool.Close(req.InstanceID); err != nil {
			return nil, err
		}
		return map[string]bool{"closed": true}, nil
	}, "tear down a browser instance", "browser")

	registry.Register("browser.navigate", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		inst, _, err := instanceOf(params)
		if err != nil {
			return nil, err
		}
		var req struct {
			URL string `json:"url"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		if err := inst.Navigate(ctx, req.URL); err != nil {
			return nil, err
		}
		return map[string]bool{"ok": true}, nil
	}, "navigate the active page to a url", "browser")

	registry.Register("browser.screenshot", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		inst, _, err := instanceOf(params)
		if err != nil {
			return nil, err
		}
		data, serr := inst.Screenshot(ctx)
		if serr != nil {
			return nil, serr
		}
		return map[string]string{"image": data, "format": "png;base64"}, nil
	}, "capture a PNG screenshot of the active page", "browser")

	registry.Register("browser.pdf", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		inst, _, err := instanceOf(params)
		if err != nil {
			return nil, err
		}
		data, perr := inst.PDF(ctx)
		if perr != nil {
			return nil, perr
		}
		return map[string]string{"pdf": data}, nil
	}, "render the active page to PDF", "browser")

	registry.Register("browser.content", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		inst, _, err := instanceOf(params)
		if err != nil {
			return nil, err
		}
		html, cerr := inst.Content(ctx)
		if cerr != nil {
			return nil, cerr
		}
		return map[string]string{"html": html}, nil
	}, "fetch the active page's outer HTML", "browser")

	registry.Register("browser.evaluate", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		inst, _, err := instanceOf(params)
		if err != nil {
			return nil, err
		}
		var req struct {
			Expression string `json:"expression"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		value, eerr := inst.Evaluate(ctx, req.Expression)
		if eerr != nil {
			return nil, eerr
		}
		return map[string]any{"value": value}, nil
	}, "evaluate a JavaScript expression in the active page", "browser")

	registry.Register("browser.click", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		inst, _, err := instanceOf(params)
		if err != nil {
			return nil, err
		}
		var req struct {
			Selector string `json:"selector"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		if err := inst.Click(ctx, req.Selector); err != nil {
			return nil, err
		}
		return map[string]bool{"ok": true}, nil
	}, "click the element matching a CSS selector", "browser")

	registry.Register("browser.type", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		inst, _, err := instanceOf(params)
		if err != nil {
			return nil, err
		}
		var req struct {
			Text string `json:"text"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		if err := inst.Type(ctx, req.Text); err != nil {
			return nil, err
		}
		return map[string]bool{"ok": true}, nil
	}, "type text into the focused element", "browser")

	registry.Register("browser.fill", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		inst, _, err := instanceOf(params)
		if err != nil {
			return nil, err
		}
		var req struct {
			Selector string `json:"selector"`
			Text     string `json:"text"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		if err := inst.Fill(ctx, req.Selector, req.Text); err != nil {
			return nil, err
		}
		return map[string]bool{"ok": true}, nil
	}, "click a field and replace its contents", "browser")

	registry.Register("browser.wait", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		inst, _, err := instanceOf(params)
		if err != nil {
			return nil, err
		}
		var req struct {
			Selector  string `json:"selector"`
			TimeoutMs int    `json:"timeoutMs"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		timeout := time.Duration(req.TimeoutMs) * time.Millisecond
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		if err := inst.Wait(ctx, req.Selector, timeout); err != nil {
			return nil, err
		}
		return map[string]bool{"ok": true}, nil
	}, "wait for an element to appear", "browser")

	registry.Register("browser.scroll", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		inst, _, err := instanceOf(params)
		if err != nil {
			return nil, err
		}
		var req struct {
			DX float64 `json:"dx"`
			DY float64 `json:"dy"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		if err := inst.Scroll(ctx, req.DX, req.DY); err != nil {
			return nil, err
		}
		return map[string]bool{"ok": true}, nil
	}, "scroll the active page by a pixel offset", "browser")

	registry.Register("browser.cookies.get", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		inst, _, err := instanceOf(params)
		if err != nil {
			return nil, err
		}
		cookies, cerr := inst.Cookies(ctx)
		if cerr != nil {
			return nil, cerr
		}
		return map[string]any{"cookies": cookies}, nil
	}, "list the browser's current cookies", "browser")

	registry.Register("browser.cookies.set", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		inst, _, err := instanceOf(params)
		if err != nil {
			return nil, err
		}
		var req struct {
			Name   string `json:"name"`
			Value  string `json:"value"`
			Domain string `json:"domain"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		if err := inst.SetCookie(ctx, req.Name, req.Value, req.Domain); err != nil {
			return nil, err
		}
		return map[string]bool{"ok": true}, nil
	}, "set a cookie in the browser", "browser")
}

func registerAgentMethods(registry *oasis.Registry, engine *oasis.ChatEngine, provider oasis.Provider, sessions *session.Manager) {
	start := func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var req struct {
			SessionID string `json:"sessionId"`
			Channel   string `json:"channel"`
			Message   string `json:"message"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		now := time.Now()
		s := sessions.GetOrCreate(req.SessionID, req.Channel, now)
		userMsg := oasis.UserMessage(req.Message)
		s.Append(userMsg, now)

		messages := s.Snapshot()
		if prompt, ok := s.GetContext("system_prompt"); ok && prompt != "" {
			messages = append([]oasis.ChatMessage{oasis.SystemMessage(prompt)}, messages...)
		}

		runID := engine.Start(ctx, provider, req.SessionID, oasis.ChatRequest{
			Messages: messages,
		})
		return map[string]string{"runId": runID}, nil
	}
	registry.Register("agent.chat", start, "send a chat turn, returns {runId}", "agent")
	registry.Register("agent.chat.stream", start, "send a chat turn with streamed events, returns {runId}", "agent")
	registry.Register("chat.send", start, "alias of agent.chat", "agent")

	registry.Register("agent.chat.cancel", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var req struct {
			RunID string `json:"runId"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		return map[string]bool{"cancelled": engine.Cancel(req.RunID)}, nil
	}, "cancel an in-flight chat run", "agent")

	registry.Register("agent.conversation.create", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var req struct {
			ChatID  string `json:"chatId"`
			Channel string `json:"channel"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		s := sessions.GetOrCreate(req.ChatID, req.Channel, time.Now())
		return map[string]any{"chatId": s.ChatID, "channel": s.Channel, "createdAt": s.CreatedAt}, nil
	}, "alias of session.create", "agent")

	registry.Register("agent.conversation.list", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		return sessions.List(), nil
	}, "alias of session.list", "agent")

	registry.Register("agent.conversation.get", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var req struct {
			ChatID string `json:"chatId"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		s, ok := sessions.Get(req.ChatID)
		if !ok {
			return nil, oasis.NewNotFound("no session for chat", req.ChatID)
		}
		title, _ := s.GetContext("title")
		return map[string]any{"chatId": s.ChatID, "channel": s.Channel, "title": title, "updatedAt": s.UpdatedAt}, nil
	}, "alias of session.get, plus title metadata", "agent")

	registry.Register("agent.conversation.delete", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var req struct {
			ChatID string `json:"chatId"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		return map[string]bool{"deleted": sessions.Destroy(req.ChatID)}, nil
	}, "alias of session.destroy", "agent")

	registry.Register("agent.conversation.rename", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var req struct {
			ChatID string `json:"chatId"`
			Title  string `json:"title"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		s, ok := sessions.Get(req.ChatID)
		if !ok {
			return nil, oasis.NewNotFound("no session for chat", req.ChatID)
		}
		s.SetContext("title", req.Title)
		return map[string]bool{"ok": true}, nil
	}, "set a conversation's display title (chatId itself is immutable)", "agent")

	registry.Register("agent.system_prompt.get", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var req struct {
			ChatID string `json:"chatId"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		s, ok := sessions.Get(req.ChatID)
		if !ok {
			return nil, oasis.NewNotFound("no session for chat", req.ChatID)
		}
		prompt, _ := s.GetContext("system_prompt")
		return map[string]string{"systemPrompt": prompt}, nil
	}, "get a conversation's system prompt override", "agent")

	registry.Register("agent.system_prompt.set", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var req struct {
			ChatID       string `json:"chatId"`
			SystemPrompt string `json:"systemPrompt"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		s, ok := sessions.Get(req.ChatID)
		if !ok {
			return nil, oasis.NewNotFound("no session for chat", req.ChatID)
		}
		s.SetContext("system_prompt", req.SystemPrompt)
		return map[string]bool{"ok": true}, nil
	}, "set a conversation's system prompt, prepended on its next agent.chat turn", "agent")

	registry.Register("agent.model.get", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		return map[string]string{"provider": provider.Name()}, nil
	}, "report the configured chat provider (fixed at process startup)", "agent")

	registry.Register("agent.model.set", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		return nil, oasis.NewInvalidArgument("the chat provider is constructed once at startup from config.provider; change it with config.patch and restart, there is no live model swap", "")
	}, "not supported: the provider is fixed for the process lifetime", "agent")

	registry.Register("agent.thinking.get", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		return nil, oasis.NewInvalidArgument("thinking-mode is a provider-level construction setting, not a live per-conversation toggle", "")
	}, "not supported: no live thinking-mode toggle exists", "agent")

	registry.Register("agent.thinking.set", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		return nil, oasis.NewInvalidArgument("thinking-mode is a provider-level construction setting, not a live per-conversation toggle", "")
	}, "not supported: no live thinking-mode toggle exists", "agent")
}

func registerCronMethods(registry *oasis.Registry, scheduler *cron.Scheduler, dispatcher *oasis.Dispatcher) {
	registry.Register("cron.create", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var req struct {
			Name           string          `json:"name"`
			CronExpr       string          `json:"cronExpr"`
			Method         string          `json:"method"`
			Params         json.RawMessage `json:"params"`
			DeleteAfterRun bool            `json:"deleteAfterRun"`
			StaggerMs      int             `json:"staggerMs"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		task := func() error {
			resp := dispatcher.HandleRequest(context.Background(), oasis.RequestFrame{
				Type:   oasis.FrameRequest,
				ID:     req.Name,
				Method: req.Method,
				Params: req.Params,
			})
			if resp.Error != nil {
				return fmt.Errorf("%s", resp.Error.Message)
			}
			return nil
		}
		if serr := scheduler.Schedule(req.Name, req.CronExpr, task, req.DeleteAfterRun, req.StaggerMs); serr != nil {
			return nil, serr
		}
		return map[string]bool{"created": true}, nil
	}, "schedule a task that invokes a registered method on a cron expression", "cron")

	registry.Register("cron.list", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		tasks := scheduler.List(cron.ListParams{})
		out := make([]map[string]any, 0, len(tasks))
		for _, t := range tasks {
			out = append(out, map[string]any{
				"name":           t.Name,
				"deleteAfterRun": t.DeleteAfterRun,
				"staggerMs":      t.StaggerMS,
				"createdAt":      t.CreatedAt,
				"enabled":        t.Enabled,
			})
		}
		return out, nil
	}, "list scheduled tasks", "cron")

	registry.Register("cron.delete", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var req struct {
			Name string `json:"name"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		return map[string]bool{"deleted": scheduler.Cancel(req.Name)}, nil
	}, "cancel a scheduled task", "cron")

	registry.Register("cron.enable", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var req struct {
			Name string `json:"name"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		return map[string]bool{"enabled": scheduler.SetEnabled(req.Name, true)}, nil
	}, "enable a scheduled task", "cron")

	registry.Register("cron.disable", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var req struct {
			Name string `json:"name"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		return map[string]bool{"enabled": scheduler.SetEnabled(req.Name, false)}, nil
	}, "disable a scheduled task", "cron")

	registry.Register("cron.trigger", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var req struct {
			Name string `json:"name"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		if serr := scheduler.ManualRun(req.Name); serr != nil {
			return nil, serr
		}
		return map[string]bool{"triggered": true}, nil
	}, "run a scheduled task immediately", "cron")

	registry.Register("cron.status", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		return scheduler.ListRuns(cron.ListParams{}), nil
	}, "scheduler run history", "cron")
}

func registerConfigMethods(registry *oasis.Registry, runtime *config.Runtime) {
	registry.Register("config.get", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		doc, hash := runtime.Get()
		return map[string]any{"config": doc, "hash": hash}, nil
	}, "get the full config tree and its hash", "config")

	registry.Register("config.list", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		doc, _ := runtime.Get()
		return doc, nil
	}, "dump the config tree", "config")

	registry.Register("config.set", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var req struct {
			Path     string `json:"path"`
			Value    any    `json:"value"`
			BaseHash string `json:"baseHash"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		if req.Path == "" {
			return nil, oasis.NewInvalidArgument("path is required", "")
		}
		baseHash := req.BaseHash
		if baseHash == "" {
			_, baseHash = runtime.Get()
		}
		ok, hash, perr := runtime.Patch([]config.Patch{{Path: req.Path, Value: req.Value}}, baseHash)
		if perr != nil {
			return nil, perr
		}
		return map[string]any{"ok": ok, "hash": hash}, nil
	}, "set a single config path to a value", "config")

	registry.Register("config.patch", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var req struct {
			BaseHash string         `json:"baseHash"`
			Patches  []config.Patch `json:"patches"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		ok, hash, perr := runtime.Patch(req.Patches, req.BaseHash)
		if perr != nil {
			return nil, perr
		}
		return map[string]any{"ok": ok, "hash": hash}, nil
	}, "optimistic multi-path patch", "config")

	registry.Register("config.export", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		doc, hash := runtime.Get()
		data, err := json.Marshal(doc)
		if err != nil {
			return nil, oasis.NewInternal("failed to export config", err.Error())
		}
		return map[string]any{"json": string(data), "hash": hash}, nil
	}, "export the config tree as a JSON blob", "config")

	registry.Register("config.import", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var req struct {
			JSON     string `json:"json"`
			BaseHash string `json:"baseHash"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		var doc map[string]any
		if err := json.Unmarshal([]byte(req.JSON), &doc); err != nil {
			return nil, oasis.NewInvalidArgument("imported json is not a valid config object", err.Error())
		}
		patches := make([]config.Patch, 0, len(doc))
		for k, v := range doc {
			patches = append(patches, config.Patch{Path: k, Value: v})
		}
		ok, hash, perr := runtime.Patch(patches, req.BaseHash)
		if perr != nil {
			return nil, perr
		}
		return map[string]any{"ok": ok, "hash": hash}, nil
	}, "replace top-level config sections from an exported JSON blob", "config")

	registry.Register("config.reset", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		_, baseHash := runtime.Get()
		defaults := configToRuntimeDoc(config.Default())
		patches := make([]config.Patch, 0, len(defaults))
		for k, v := range defaults {
			patches = append(patches, config.Patch{Path: k, Value: v})
		}
		ok, hash, perr := runtime.Patch(patches, baseHash)
		if perr != nil {
			return nil, perr
		}
		return map[string]any{"ok": ok, "hash": hash}, nil
	}, "reset all config sections to their defaults", "config")
}

func registerChannelMethods(registry *oasis.Registry, channels *channel.Registry, policies map[string]guard.AuthPolicy) {
	channelOf := func(params json.RawMessage) (*channel.Channel, *oasis.Error) {
		var req struct {
			Name string `json:"name"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		ch, ok := channels.Get(req.Name)
		if !ok {
			return nil, oasis.NewNotFound("no channel registered with that name", req.Name)
		}
		return ch, nil
	}

	registry.Register("channel.list", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		return channels.List(), nil
	}, "list every registered channel and its connection state", "channel")

	registry.Register("channel.connect", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		ch, err := channelOf(params)
		if err != nil {
			return nil, err
		}
		if serr := ch.Start(context.Background()); serr != nil {
			return nil, oasis.NewConnectionFailed("failed to start channel", serr.Error())
		}
		return map[string]bool{"connected": true}, nil
	}, "start polling a registered channel for inbound messages", "channel")

	registry.Register("channel.disconnect", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		ch, err := channelOf(params)
		if err != nil {
			return nil, err
		}
		ch.Stop()
		return map[string]bool{"disconnected": true}, nil
	}, "stop polling a registered channel", "channel")

	registry.Register("channel.status", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		ch, err := channelOf(params)
		if err != nil {
			return nil, err
		}
		return channel.Status{Name: ch.Name, Type: ch.Type, Running: ch.IsRunning()}, nil
	}, "report one channel's connection state", "channel")

	registry.Register("channel.send", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		ch, err := channelOf(params)
		if err != nil {
			return nil, err
		}
		var req struct {
			ChatID string `json:"chatId"`
			Text   string `json:"text"`
		}
		if derr := oasis.DecodeParams(params, &req); derr != nil {
			return nil, derr
		}
		msgID, serr := ch.Send(ctx, req.ChatID, req.Text)
		if serr != nil {
			return nil, oasis.NewInternal("failed to send through channel", serr.Error())
		}
		return map[string]string{"messageId": msgID}, nil
	}, "send an outbound message through a connected channel", "channel")

	registry.Register("channel.receive", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		ch, err := channelOf(params)
		if err != nil {
			return nil, err
		}
		var req struct {
			Max int `json:"max"`
		}
		_ = oasis.DecodeParams(params, &req)
		return map[string]any{"messages": ch.Receive(req.Max)}, nil
	}, "drain buffered inbound messages from a channel without blocking", "channel")

	registry.Register("channel.configure", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var req struct {
			Name string `json:"name"`
		}
		if derr := oasis.DecodeParams(params, &req); derr != nil {
			return nil, derr
		}
		policy, ok := policies[req.Name]
		if !ok {
			return nil, oasis.NewNotFound("no auth policy configured for that channel", req.Name)
		}
		return policy, nil
	}, "report a channel's configured auth policy (read-only; set via config.patch)", "channel")
}

func registerProviderMethods(registry *oasis.Registry, provider oasis.Provider, embedding oasis.EmbeddingProvider, cfg config.Config) {
	registry.Register("provider.list", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		return map[string]any{"providers": []map[string]string{
			{"name": provider.Name(), "model": cfg.Provider.Model, "role": "chat"},
			{"name": embedding.Name(), "model": cfg.Embedding.Model, "role": "embedding"},
		}}, nil
	}, "list the configured chat and embedding providers", "provider")

	registry.Register("provider.chat", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var req struct {
			Messages []oasis.ChatMessage `json:"messages"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		resp, cerr := provider.Chat(ctx, oasis.ChatRequest{Messages: req.Messages})
		if cerr != nil {
			return nil, oasis.AsError(cerr)
		}
		return resp, nil
	}, "send a one-shot chat request directly to the provider", "provider")

	registry.Register("provider.chat.stream", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var req struct {
			Messages []oasis.ChatMessage `json:"messages"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		events := make(chan oasis.StreamEvent, 16)
		collected := make([]oasis.StreamEvent, 0, 16)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for ev := range events {
				collected = append(collected, ev)
			}
		}()
		resp, cerr := provider.ChatStream(ctx, oasis.ChatRequest{Messages: req.Messages}, events)
		close(events)
		<-done
		if cerr != nil {
			return nil, oasis.AsError(cerr)
		}
		return map[string]any{"response": resp, "events": collected}, nil
	}, "send a chat request to the provider, collecting the stream events synchronously", "provider")

	registry.Register("provider.models", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		return map[string]any{
			"chat":      []string{cfg.Provider.Model},
			"embedding": []string{cfg.Embedding.Model},
		}, nil
	}, "list the models configured for the active providers", "provider")

	registry.Register("provider.embed", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var req struct {
			Texts []string `json:"texts"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		vectors, eerr := embedding.Embed(ctx, req.Texts)
		if eerr != nil {
			return nil, oasis.AsError(eerr)
		}
		return map[string]any{"vectors": vectors, "dimensions": embedding.Dimensions()}, nil
	}, "embed text directly through the configured embedding provider", "provider")

	registry.Register("provider.status", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		return map[string]any{
			"chat":      map[string]string{"name": provider.Name(), "model": cfg.Provider.Model},
			"embedding": map[string]string{"name": embedding.Name(), "model": cfg.Embedding.Model},
		}, nil
	}, "report the health and identity of the active providers", "provider")

	registry.Register("provider.configure", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		return nil, oasis.NewInvalidArgument(
			"provider swap requires a restart", "change provider.* config and restart the gateway")
	}, "attempt to reconfigure the active provider (restart required)", "provider")

	registry.Register("provider.usage", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		return map[string]any{"observerEnabled": cfg.Observer.Enabled}, nil
	}, "report whether usage/cost tracking is active", "provider")
}

// pluginManager tracks which plugin files have been loaded into an SDK, since
// plugin.SDK itself only tracks registered tools, not their originating file.
type pluginManager struct {
	mu     sync.Mutex
	sdk    *plugin.SDK
	dir    string
	loaded map[string]bool
}

func newPluginManager(dir string, sdk *plugin.SDK) *pluginManager {
	return &pluginManager{sdk: sdk, dir: dir, loaded: make(map[string]bool)}
}

func registerPluginMethods(registry *oasis.Registry, mgr *pluginManager) {
	registry.Register("plugin.list", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		mgr.mu.Lock()
		defer mgr.mu.Unlock()
		names := make([]string, 0, len(mgr.loaded))
		for name := range mgr.loaded {
			names = append(names, name)
		}
		return map[string]any{"plugins": names, "tools": mgr.sdk.Definitions()}, nil
	}, "list loaded plugin files and the tools they registered", "plugin")

	registry.Register("plugin.install", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var req struct {
			Path string `json:"path"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		full := filepath.Join(mgr.dir, req.Path)
		if err := plugin.LoadFile(full, mgr.sdk); err != nil {
			return nil, err
		}
		mgr.mu.Lock()
		mgr.loaded[req.Path] = true
		mgr.mu.Unlock()
		return map[string]bool{"installed": true}, nil
	}, "load a compiled plugin file into the gateway", "plugin")

	registry.Register("plugin.uninstall", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var req struct {
			Path string `json:"path"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		mgr.mu.Lock()
		_, ok := mgr.loaded[req.Path]
		delete(mgr.loaded, req.Path)
		mgr.mu.Unlock()
		if !ok {
			return nil, oasis.NewNotFound("plugin not loaded", req.Path)
		}
		return nil, oasis.NewInvalidArgument(
			"plugin unload requires a restart", "Go plugins cannot be unloaded from a running process")
	}, "forget a loaded plugin (tools remain registered until restart)", "plugin")

	registry.Register("plugin.enable", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		return map[string]bool{"enabled": true}, nil
	}, "no-op: loaded plugins are always enabled", "plugin")

	registry.Register("plugin.disable", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		return nil, oasis.NewInvalidArgument(
			"plugin disable requires a restart", "Go plugins cannot be unloaded from a running process")
	}, "disable a loaded plugin (restart required)", "plugin")

	registry.Register("plugin.configure", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		return map[string]bool{"ok": true}, nil
	}, "accept plugin configuration (plugins read their own config files)", "plugin")

	registry.Register("plugin.call", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		var req struct {
			Tool string          `json:"tool"`
			Args json.RawMessage `json:"args"`
		}
		if err := oasis.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		return mgr.sdk.Execute(ctx, req.Tool, req.Args)
	}, "invoke a tool a plugin registered", "plugin")

	registry.Register("plugin.status", func(ctx context.Context, params json.RawMessage) (any, *oasis.Error) {
		mgr.mu.Lock()
		count := len(mgr.loaded)
		mgr.mu.Unlock()
		return map[string]any{"loaded": count, "toolsRegistered": len(mgr.sdk.Definitions())}, nil
	}, "report how many plugins and plugin-provided tools are active", "plugin")
}
