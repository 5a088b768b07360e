// Command forged runs the dynamic domain discovery daemon: it captures
// low-confidence turns, clusters them, serves the review surface, and hosts
// the deployed domain tables.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm/logger"

	"github.com/thebtf/domainforge/internal/capture"
	"github.com/thebtf/domainforge/internal/cluster"
	"github.com/thebtf/domainforge/internal/config"
	"github.com/thebtf/domainforge/internal/db"
	"github.com/thebtf/domainforge/internal/deploy"
	"github.com/thebtf/domainforge/internal/embedding"
	"github.com/thebtf/domainforge/internal/extract"
	"github.com/thebtf/domainforge/internal/provider"
	"github.com/thebtf/domainforge/internal/record"
	"github.com/thebtf/domainforge/internal/registry"
	"github.com/thebtf/domainforge/internal/reprocess"
	"github.com/thebtf/domainforge/internal/server"
	"github.com/thebtf/domainforge/internal/synth"
	"github.com/thebtf/domainforge/internal/watcher"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	store, err := db.NewStore(db.Config{Path: cfg.DBPath, LogLevel: logger.Silent})
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("Failed to open database")
	}
	defer store.Close()

	ctx := context.Background()

	client := provider.NewOpenAIClient(provider.OpenAIConfig{
		APIKey:     cfg.Provider.APIKey,
		APIBase:    cfg.Provider.APIBase,
		ChatModel:  cfg.Provider.ChatModel,
		EmbedModel: cfg.Provider.EmbedModel,
		Timeout:    cfg.Provider.Timeout(),
	})

	captures := db.NewCaptureStore(store)
	embeddings := db.NewEmbeddingStore(store)
	proposals := db.NewProposalStore(store)
	domains := db.NewDomainStore(store)

	cache := embedding.NewCache(client, embeddings)
	if err := cache.Load(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to load embedding cache")
	}

	reg := registry.New()
	if err := reg.Load(ctx, domains); err != nil {
		log.Fatal().Err(err).Msg("Failed to load domain registry")
	}
	log.Info().Int("domains", reg.Len()).Int("embeddings", cache.Len()).Msg("Warm state loaded")

	captureSvc := capture.NewService(captures, cache, cfg.Capture.ConfidenceThreshold)
	records := record.NewService(store, reg)
	extractor := extract.NewLLMExtractor(client, reg, cfg.FixedDomains)

	svc := server.NewService(server.Deps{
		Listen:      cfg.Listen,
		Captures:    captures,
		Proposals:   proposals,
		Embeddings:  embeddings,
		Registry:    reg,
		Capture:     captureSvc,
		Clusters:    cluster.NewEngine(captures, cache, cfg.Clustering.MinClusterSize, cfg.Clustering.SimilarityThreshold),
		Synthesizer: synth.NewSynthesizer(client, reg, cfg.FixedDomains),
		Deployer:    deploy.NewDeployer(store, proposals, domains, reg),
		Records:     records,
		Reprocessor: reprocess.NewReprocessor(captures, embeddings, cache, extractor, records, reg, cfg.Capture.ConfidenceThreshold),
	})

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	w, err := watcher.New(cfg.DBPath, func() {
		stop <- syscall.SIGTERM
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create database watcher")
	}
	if err := w.Start(); err != nil {
		log.Warn().Err(err).Msg("Database watcher not running")
	}
	defer w.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Start()
	}()

	select {
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := svc.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown did not complete cleanly")
	}
}
