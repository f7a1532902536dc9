package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/decay"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/internal/storage/postgres"
	"github.com/scrypster/recall/internal/storage/sqlite"
)

func main() {
	interval := flag.Duration("interval", 6*time.Hour, "Time between decay passes")
	once := flag.Bool("once", false, "Run a single pass and exit")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	params := config.DefaultParameters()
	if cfg.ParamsPath != "" {
		params, err = config.LoadParameters(cfg.ParamsPath)
		if err != nil {
			log.Fatalf("Failed to load parameters from %s: %v", cfg.ParamsPath, err)
		}
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	runner := decay.NewBatchRunner(decay.NewEngine(params.Decay), store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("decay: interrupted, finishing current pass")
		cancel()
	}()

	if _, err := runner.Run(ctx, time.Now()); err != nil {
		log.Fatalf("Decay pass failed: %v", err)
	}
	if *once {
		return
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := runner.Run(ctx, time.Now()); err != nil {
				log.Printf("decay: pass failed: %v", err)
			}
		}
	}
}

// openStore selects the graph store backend from configuration.
func openStore(cfg *config.Config) (storage.GraphStore, error) {
	if cfg.Storage.Engine == "postgres" {
		return postgres.NewGraphStore(cfg.Storage.PostgresDSN)
	}
	return sqlite.NewGraphStore(cfg.Storage.SQLitePath)
}
