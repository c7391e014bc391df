// Command clawgate runs the local agent gateway: a WebSocket front door
// fronting a streaming chat engine, browser automation, a cron scheduler,
// and the method registry those subsystems answer through.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	oasis "github.com/nevindra/clawgate"
	"github.com/nevindra/clawgate/auth"
	"github.com/nevindra/clawgate/browser"
	"github.com/nevindra/clawgate/channel"
	oasiscode "github.com/nevindra/clawgate/code"
	"github.com/nevindra/clawgate/cron"
	"github.com/nevindra/clawgate/frontend/telegram"
	"github.com/nevindra/clawgate/gateway"
	"github.com/nevindra/clawgate/guard"
	"github.com/nevindra/clawgate/internal/config"
	"github.com/nevindra/clawgate/observer"
	"github.com/nevindra/clawgate/plugin"
	"github.com/nevindra/clawgate/provider/resolve"
	"github.com/nevindra/clawgate/secrets"
	"github.com/nevindra/clawgate/session"
	"github.com/nevindra/clawgate/store/sqlite"
	tooldata "github.com/nevindra/clawgate/tools/data"
	toolfile "github.com/nevindra/clawgate/tools/file"
	toolhttp "github.com/nevindra/clawgate/tools/http"
	toolknowledge "github.com/nevindra/clawgate/tools/knowledge"
	toolremember "github.com/nevindra/clawgate/tools/remember"
	toolschedule "github.com/nevindra/clawgate/tools/schedule"
	toolsearch "github.com/nevindra/clawgate/tools/search"
	toolshell "github.com/nevindra/clawgate/tools/shell"
	toolskill "github.com/nevindra/clawgate/tools/skill"
	toolcode "github.com/nevindra/clawgate/tools/code"
)

func main() {
	cfg := config.Load(os.Getenv("CLAWGATE_ENV_FILE"), os.Getenv("CLAWGATE_CONFIG_FILE"))
	secretsCfg := secrets.Load(os.Getenv("CLAWGATE_SECRETS_FILE"))

	if cfg.Provider.APIKey == "" {
		if ref, ok := secretsCfg.Lookup("provider_api_key"); ok {
			if v, err := ref.Resolve(context.Background()); err == nil {
				cfg.Provider.APIKey = v
			} else {
				log.Printf("clawgate: failed to resolve provider_api_key secret: %v", err)
			}
		}
	}
	if cfg.Provider.APIKey == "" {
		log.Fatal("clawgate: no provider API key configured (set provider.api_key, CLAWGATE_PROVIDER_API_KEY, or a provider_api_key secret)")
	}

	chatProvider, err := resolve.Provider(resolve.Config{
		Provider: cfg.Provider.Name,
		APIKey:   cfg.Provider.APIKey,
		Model:    cfg.Provider.Model,
	})
	if err != nil {
		log.Fatalf("clawgate: failed to construct provider: %v", err)
	}

	registry := oasis.NewRegistry(nil)
	registry.RegisterBuiltinStubs()

	if mkErr := os.MkdirAll(cfg.Tools.WorkspacePath, 0o755); mkErr != nil {
		log.Fatalf("clawgate: failed to create tool workspace: %v", mkErr)
	}

	memoryStore := sqlite.New(cfg.Database.Path)
	if initErr := memoryStore.Init(context.Background()); initErr != nil {
		log.Fatalf("clawgate: failed to initialize memory store: %v", initErr)
	}

	if cfg.Embedding.APIKey == "" {
		if ref, ok := secretsCfg.Lookup("embedding_api_key"); ok {
			if v, verr := ref.Resolve(context.Background()); verr == nil {
				cfg.Embedding.APIKey = v
			}
		}
	}
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = cfg.Provider.APIKey // same-vendor default (e.g. gemini chat + gemini embeddings)
	}

	embeddingProvider, embErr := resolve.EmbeddingProvider(resolve.EmbeddingConfig{
		Provider:   cfg.Embedding.Provider,
		APIKey:     cfg.Embedding.APIKey,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
	})
	if embErr != nil {
		log.Fatalf("clawgate: failed to construct embedding provider: %v", embErr)
	}

	if cfg.Observer.Enabled {
		pricing := make(map[string]observer.ModelPricing, len(cfg.Observer.Pricing))
		for model, p := range cfg.Observer.Pricing {
			pricing[model] = observer.ModelPricing{InputPerMillion: p.Input, OutputPerMillion: p.Output}
		}
		inst, shutdown, oerr := observer.Init(context.Background(), pricing)
		if oerr != nil {
			log.Printf("clawgate: observer disabled: failed to initialize OTEL: %v", oerr)
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					log.Printf("clawgate: observer shutdown error: %v", err)
				}
			}()
			chatProvider = observer.WrapProvider(chatProvider, cfg.Provider.Model, inst)
			embeddingProvider = observer.WrapEmbedding(embeddingProvider, cfg.Embedding.Model, inst)
		}
	}

	braveAPIKey := ""
	if ref, ok := secretsCfg.Lookup("brave_api_key"); ok {
		if v, verr := ref.Resolve(context.Background()); verr == nil {
			braveAPIKey = v
		}
	}

	tools := oasis.NewToolRegistry()
	tools.Add(toolshell.New(cfg.Tools.WorkspacePath, 30))
	tools.Add(toolfile.New(cfg.Tools.WorkspacePath))
	tools.Add(toolhttp.New())
	tools.Add(tooldata.New())
	tools.Add(toolknowledge.New(memoryStore, embeddingProvider))
	tools.Add(toolremember.New(memoryStore, embeddingProvider))
	tools.Add(toolschedule.New(memoryStore, 0))
	tools.Add(toolsearch.New(embeddingProvider, braveAPIKey))
	tools.Add(toolskill.New(memoryStore, embeddingProvider))

	var codeRunner oasis.CodeRunner = oasiscode.NewSubprocessRunner("python3", oasiscode.WithWorkspace(cfg.Tools.WorkspacePath))
	if cfg.Sandbox.Enabled && guard.ValidateSandboxNetworkMode(cfg.Sandbox.NetworkMode, cfg.Sandbox.DangerouslyAllowContainerNamespaceJoin) {
		if dockerRunner, derr := oasiscode.NewDockerRunner("python:3.12-slim", cfg.Sandbox.NetworkMode); derr != nil {
			log.Printf("clawgate: sandbox.enabled but Docker unavailable, falling back to subprocess code runner: %v", derr)
		} else {
			codeRunner = dockerRunner
		}
	}
	tools.Add(toolcode.New(codeRunner, tools))

	engine := oasis.NewChatEngine(oasis.NewDispatcher(registry, nil), tools, 10, nil)
	dispatcher := oasis.NewDispatcher(registry, nil)

	scheduler := cron.New(nil)
	scheduler.Start()
	defer scheduler.Stop()

	browserPool := browser.NewPool(cfg.Browser.PoolSize, cfg.Browser.ChromePath)
	defer browserPool.CloseAll()

	runtimeCfg := config.NewRuntime(configToRuntimeDoc(cfg), os.Getenv("CLAWGATE_RUNTIME_CONFIG_FILE"))

	pairingSecret := []byte(cfg.Provider.APIKey) // placeholder secret source until a dedicated pairing secret is configured
	if ref, ok := secretsCfg.Lookup("pairing_secret"); ok {
		if v, verr := ref.Resolve(context.Background()); verr == nil {
			pairingSecret = []byte(v)
		}
	}
	signer, sigErr := auth.NewSigner(pairingSecret)
	if sigErr != nil {
		log.Fatalf("clawgate: failed to build pairing token signer: %v", sigErr)
	}

	sessions := session.NewManager()

	channels := channel.NewRegistry()
	for _, ch := range cfg.Channels {
		switch ch.Type {
		case "telegram":
			ref, ok := secretsCfg.Lookup(ch.Name + "_bot_token")
			if !ok {
				log.Printf("clawgate: channel %q configured as telegram but no %s_bot_token secret; skipping", ch.Name, ch.Name)
				continue
			}
			token, verr := ref.Resolve(context.Background())
			if verr != nil {
				log.Printf("clawgate: channel %q: failed to resolve bot token: %v", ch.Name, verr)
				continue
			}
			channels.Add(channel.New(ch.Name, ch.Type, telegram.New(token)))
		case "":
			// no frontend implementation selected for this channel entry
		default:
			log.Printf("clawgate: channel %q has unsupported type %q; no frontend wired", ch.Name, ch.Type)
		}
	}
	defer channels.StopAll()

	pluginMgr := newPluginManager(filepath.Join(cfg.Tools.WorkspacePath, "plugins"), plugin.NewSDK())

	logRecorder := gateway.NewLogRecorder(slog.Default().Handler(), 500)
	gatewayLog := slog.New(logRecorder)
	slog.SetDefault(gatewayLog)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	srv := gateway.New(dispatcher, gatewayLog)

	registerGatewayMethods(registry, cfg, runtimeCfg, srv, logRecorder, stop)
	registerAgentMethods(registry, engine, chatProvider, sessions)
	registerCronMethods(registry, scheduler, dispatcher)
	registerConfigMethods(registry, runtimeCfg)
	registerSessionMethods(registry, sessions)
	registerBrowserMethods(registry, browserPool)
	registerToolMethods(registry, tools)
	registerMemoryMethods(registry, memoryStore, embeddingProvider, chatProvider)

	authPolicies := buildAuthPolicies(cfg)
	registerChannelMethods(registry, channels, authPolicies)
	registerProviderMethods(registry, chatProvider, embeddingProvider, cfg)
	registerPluginMethods(registry, pluginMgr)

	floodGuard := guard.NewUnauthorizedFloodGuard(cfg.Gateway.FloodThreshold, nil)
	_ = floodGuard // per-channel guard instances are owned by each frontend's message loop once wired
	_ = signer     // wired in once a pairing RPC flow is added alongside channel.configure

	listener, port, lerr := listenOnAvailablePort(cfg.Gateway.Port, cfg.Gateway.PortSearchMax)
	if lerr != nil {
		log.Fatalf("clawgate: failed to bind gateway listener: %v", lerr)
	}
	log.Printf("clawgate: listening on port %d", port)

	httpSrv := &http.Server{Handler: srv}
	go func() {
		if err := httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("clawgate: http server stopped: %v", err)
		}
	}()

	<-ctx.Done()
	log.Print("clawgate: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("clawgate: gateway shutdown error: %v", err)
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("clawgate: http shutdown error: %v", err)
	}
}

// listenOnAvailablePort binds the first free TCP port starting at base,
// trying up to maxAttempts ports — SPEC_FULL.md's "auto-search up to 100
// ports if busy" listener policy.
func listenOnAvailablePort(base, maxAttempts int) (net.Listener, int, error) {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		port := base + i
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err == nil {
			return ln, port, nil
		}
		lastErr = err
	}
	return nil, 0, fmt.Errorf("no free port found in range [%d, %d]: %w", base, base+maxAttempts-1, lastErr)
}

func buildAuthPolicies(cfg config.Config) map[string]guard.AuthPolicy {
	policies := make(map[string]guard.AuthPolicy, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		policies[ch.Name] = guard.AuthPolicy{
			DMPolicy:       ch.DMPolicy,
			DMAllowlist:    ch.AllowedSenderIDs,
			GroupAllowlist: ch.GroupAllowlist,
		}
	}
	return policies
}

// configToRuntimeDoc flattens the static Config into the JSON-object shape
// the mutable runtime document starts from, so config.get reflects the
// values the gateway actually booted with.
func configToRuntimeDoc(cfg config.Config) map[string]any {
	data, err := json.Marshal(cfg)
	if err != nil {
		return map[string]any{}
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return map[string]any{}
	}
	return doc
}
