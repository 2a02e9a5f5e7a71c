// Command agent boots the engine core, a reference memory store, and an
// optional voice websocket server. It carries no REPL, slash commands, or
// banners — those stay out of scope (SPEC_FULL.md §0); this binary exists
// only to prove the packages wire together and to give operators something
// runnable while iterating on a real front end.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ChamsBouzaiene/dodo-agentcore/internal/config"
	"github.com/ChamsBouzaiene/dodo-agentcore/internal/engine"
	"github.com/ChamsBouzaiene/dodo-agentcore/internal/memory"
	"github.com/ChamsBouzaiene/dodo-agentcore/internal/providers"
	"github.com/ChamsBouzaiene/dodo-agentcore/internal/tools/fixtures"
	"github.com/ChamsBouzaiene/dodo-agentcore/internal/voice"
)

func main() {
	if err := run(context.Background()); err != nil {
		log.Fatalf("agent: %v", err)
	}
}

func run(ctx context.Context) error {
	fs := flag.NewFlagSet("agent", flag.ExitOnError)
	dataDir := fs.String("data-dir", "", "directory for the memory store (overrides saved config)")
	voiceAddr := fs.String("voice-addr", "", "address to serve the voice websocket on, e.g. :8088 (empty disables voice)")
	message := fs.String("message", "", "run a single text turn through the tool loop and print the response, then exit")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}

	cfgManager, err := config.NewManager()
	if err != nil {
		return fmt.Errorf("creating config manager: %w", err)
	}
	cfg, err := cfgManager.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	applyDefaults(cfg)
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *voiceAddr != "" {
		cfg.VoiceListenAddr = *voiceAddr
	}

	llmClient, providerName, err := providers.NewLLMClientFromEnv(ctx)
	if err != nil {
		return fmt.Errorf("building LLM client: %w", err)
	}
	log.Printf("using provider %s", providerName)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	store, err := memory.Open(ctx, cfg.DataDir+"/memory.db")
	if err != nil {
		return fmt.Errorf("opening memory store: %w", err)
	}
	defer store.Close()

	retention, _ := time.ParseDuration(cfg.MemoryRetention)
	housekeeper := memory.NewHousekeeper(store, retention)
	if err := housekeeper.Start(); err != nil {
		return fmt.Errorf("starting housekeeping sweep: %w", err)
	}
	defer housekeeper.Stop()

	registry := buildToolRegistry(ctx)

	reg := prometheus.NewRegistry()
	metricsHook := engine.NewMetricsHook(reg)
	tracingHook := engine.NewTracingHook("dodo-agentcore")
	loggerHook := engine.LoggerHook{L: log.Default()}
	hooks := engine.Hooks{loggerHook, metricsHook, tracingHook}

	engineCfg := engine.DefaultEngineConfig()
	loopCfg := engine.LoopConfig{
		Model:         providerName,
		SystemPrompt:  "You are a helpful agent with access to tools.",
		MaxIterations: engine.DefaultMaxIterations,
		MaxTokens:     engine.DefaultMaxTokens,
		TimeoutSecs:   engine.DefaultTimeoutSecs,
		Client:        llmClient,
		Tools:         registry,
		ToolContext:   engine.ToolContext{SessionID: "cli"},
		RetryPolicy:   engineCfg.Retry.LLMPolicy,
		Hooks:         hooks,
	}

	go serveMetrics(reg)

	if *message != "" {
		return runOneShot(ctx, loopCfg, *message)
	}

	if cfg.VoiceListenAddr == "" {
		log.Println("no -voice-addr given and no -message given; nothing to do")
		return nil
	}

	return serveVoice(ctx, cfg, loopCfg, store, hooks)
}

func applyDefaults(cfg *config.Config) {
	defaults := config.DefaultConfig()
	if cfg.DataDir == "" {
		cfg.DataDir = defaults.DataDir
	}
	if cfg.VoiceListenAddr == "" {
		cfg.VoiceListenAddr = defaults.VoiceListenAddr
	}
	if cfg.MemoryRetention == "" {
		cfg.MemoryRetention = defaults.MemoryRetention
	}
}

// buildToolRegistry registers the shell_exec fixture tool when Docker is
// reachable, and logs a clear reason when it isn't rather than failing
// startup outright.
func buildToolRegistry(ctx context.Context) engine.ToolRegistry {
	registry := engine.ToolRegistry{}
	shellTool, err := fixtures.NewShellExecTool(ctx)
	if err != nil {
		log.Printf("shell_exec tool unavailable (docker not reachable): %v", err)
		return registry
	}
	desc := shellTool.Tool()
	registry[desc.Name] = desc
	return registry
}

func runOneShot(ctx context.Context, loopCfg engine.LoopConfig, message string) error {
	result, err := engine.Run(ctx, loopCfg, []engine.ChatMessage{
		{Role: engine.RoleUser, Content: message},
	})
	if err != nil {
		return fmt.Errorf("running tool loop: %w", err)
	}
	fmt.Println(result.FinalResponse)
	return nil
}

func serveMetrics(reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(":9090", mux); err != nil && err != http.ErrServerClosed {
		log.Printf("metrics server stopped: %v", err)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func serveVoice(ctx context.Context, cfg *config.Config, loopCfg engine.LoopConfig, store *memory.Store, hooks engine.Hooks) error {
	compactor := &engine.SessionCompactor{}

	apiKey := os.Getenv("OPENAI_API_KEY")
	baseURL := os.Getenv("OPENAI_BASE_URL")
	if apiKey == "" {
		log.Println("OPENAI_API_KEY not set; voice sessions will have no transcriber or synthesizer")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/voice", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("voice upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		voiceCfg := voice.Config{
			Conn:      conn,
			Decoder:   voice.WAVDecoder{},
			Memory:    store,
			Loop:      loopCfg,
			Compactor: compactor,
			Hooks:     hooks,
			SessionID: r.RemoteAddr,
		}
		if apiKey != "" {
			embedder := fixtures.NewOpenAIEmbedder(apiKey, baseURL, cfg.EmbeddingModel)
			voiceCfg.Embedder = embedder
			voiceCfg.Transcriber = fixtures.NewOpenAITranscriber(apiKey, baseURL, cfg.TranscriptionModel)
			voiceCfg.Synthesizer = fixtures.NewOpenAISynthesizer(apiKey, baseURL, cfg.SpeechModel, cfg.SpeechVoice)
		}

		sess := voice.NewSession(voiceCfg)
		if err := sess.Run(r.Context()); err != nil {
			log.Printf("voice session ended: %v", err)
		}
	})

	server := &http.Server{Addr: cfg.VoiceListenAddr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Printf("voice server listening on %s", cfg.VoiceListenAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("voice server: %w", err)
	}
	return nil
}
