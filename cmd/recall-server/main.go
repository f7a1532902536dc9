package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/decay"
	"github.com/scrypster/recall/internal/embedding"
	"github.com/scrypster/recall/internal/pipeline"
	"github.com/scrypster/recall/internal/server"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/internal/storage/postgres"
	"github.com/scrypster/recall/internal/storage/sqlite"
)

// primaryProbeInterval is how often a degraded embedding chain re-checks the
// primary provider.
const primaryProbeInterval = 30 * time.Second

func main() {
	paramsPath := flag.String("params", "", "Path to the YAML parameter file (overrides RECALL_PARAMS_PATH)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *paramsPath != "" {
		cfg.ParamsPath = *paramsPath
	}

	// Parameters: defaults unless a file is configured. With a file, the
	// watcher picks up edits and the pipeline is rebuilt on the new values.
	var watcher *config.ParamWatcher
	params := config.DefaultParameters()
	if cfg.ParamsPath != "" {
		watcher, err = config.NewParamWatcher(cfg.ParamsPath)
		if err != nil {
			log.Fatalf("Failed to load parameters from %s: %v", cfg.ParamsPath, err)
		}
		if err := watcher.Start(); err != nil {
			log.Fatalf("Failed to watch parameter file: %v", err)
		}
		defer watcher.Stop()
		params = watcher.Current()
		log.Printf("main: parameters loaded from %s", cfg.ParamsPath)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	cached, err := storage.NewCachedStore(store)
	if err != nil {
		log.Fatalf("Failed to initialize store cache: %v", err)
	}

	embedder := buildEmbedder(cfg, params)

	pipe, err := pipeline.New(cached, embedder, params)
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}

	engine := decay.NewEngine(params.Decay)
	handlers := server.NewHandlers(cached, pipe, engine, embedder)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if watcher != nil {
		go applyParamReloads(ctx, watcher, cached, embedder, handlers)
	}
	if cfg.Embedding.OpenAIAPIKey != "" {
		// Degraded chains only recover through the probe, never through
		// query traffic.
		go embedder.RunPrimaryProbe(ctx, primaryProbeInterval)
	}

	addr, err := server.Start(ctx, cfg, handlers)
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	log.Printf("recall serving at http://%s (storage: %s)", addr, cfg.Storage.Engine)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("main: shutting down")
	cancel()
	time.Sleep(200 * time.Millisecond)
}

// applyParamReloads swaps a freshly built pipeline into the handlers when
// the watcher publishes a new parameter set.
func applyParamReloads(ctx context.Context, watcher *config.ParamWatcher, store storage.GraphStore, embedder pipeline.Embedder, handlers *server.Handlers) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	last := watcher.Current()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current := watcher.Current()
			if current == last {
				continue
			}
			pipe, err := pipeline.New(store, embedder, current)
			if err != nil {
				log.Printf("main: rejected reloaded parameters: %v", err)
				continue
			}
			handlers.SetPipeline(pipe)
			last = current
			log.Println("main: applied reloaded parameters")
		}
	}
}

// openStore selects the graph store backend from configuration.
func openStore(cfg *config.Config) (storage.GraphStore, error) {
	if cfg.Storage.Engine == "postgres" {
		return postgres.NewGraphStore(cfg.Storage.PostgresDSN)
	}
	if dir := filepath.Dir(cfg.Storage.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return sqlite.NewGraphStore(cfg.Storage.SQLitePath)
}

// buildEmbedder assembles the three-level provider chain. The primary is
// omitted when no API key is configured; Ollama and the local hash provider
// always participate.
func buildEmbedder(cfg *config.Config, params *config.Parameters) *embedding.FallbackController {
	var primary embedding.Provider
	if cfg.Embedding.OpenAIAPIKey != "" {
		primary = embedding.NewOpenAIProvider(embedding.OpenAIConfig{
			APIKey:  cfg.Embedding.OpenAIAPIKey,
			Model:   cfg.Embedding.OpenAIModel,
			BaseURL: cfg.Embedding.OpenAIBaseURL,
			Timeout: params.Embedding.RequestTimeout,
		})
	}

	secondary := embedding.NewOllamaProvider(embedding.OllamaConfig{
		BaseURL: cfg.Embedding.OllamaURL,
		Model:   cfg.Embedding.OllamaModel,
		Timeout: params.Embedding.RequestTimeout,
	})

	local := embedding.NewLocalProvider(cfg.Embedding.Dimension)
	health := embedding.NewHealthTracker()

	return embedding.NewFallbackController(primary, secondary, local, health, params.Embedding)
}
