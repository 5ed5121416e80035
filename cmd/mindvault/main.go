package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/xhad/mindvault/internal/auth"
	"github.com/xhad/mindvault/internal/logging"
	cfgPkg "github.com/xhad/mindvault/pkg/config"
	"github.com/xhad/mindvault/pkg/content"
	"github.com/xhad/mindvault/pkg/llm"
	"github.com/xhad/mindvault/pkg/processor"
	"github.com/xhad/mindvault/pkg/scraper"
	"github.com/xhad/mindvault/pkg/search"
	"github.com/xhad/mindvault/pkg/store"
	"github.com/xhad/mindvault/server"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := cfgPkg.LoadConfig(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		log.Fatalf("invalid configuration:\n  %s", strings.Join(msgs, "\n  "))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg *cfgPkg.Config) error {
	logger := logging.Configure(os.Stdout, cfg.Logging.Level)

	db, err := store.Open(ctx, store.Config{
		Type:          cfg.Database.Type,
		URL:           cfg.Database.URL,
		Database:      cfg.Database.Name,
		IndexName:     cfg.Database.IndexName,
		VectorDim:     cfg.Database.VectorDim,
		NumCandidates: cfg.Database.NumCandidates,
	})
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Database.Type, err)
	}
	defer db.Close()

	embedder, err := llm.NewEmbedder(llm.EmbedderConfig{
		Type:    cfg.Embedder.Type,
		BaseURL: cfg.Embedder.BaseURL,
		Model:   cfg.Embedder.Model,
		APIKey:  cfg.Embedder.APIKey,
		Timeout: cfg.Embedder.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}

	generator, err := llm.NewGenerator(llm.ChatConfig{
		Type:        cfg.LLM.Type,
		Model:       cfg.LLM.Model,
		Temperature: *cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Timeout:     cfg.LLM.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize chat engine: %w", err)
	}

	renderer := processor.New()

	assembler := search.NewAssembler(db, renderer, cfg.Search.MaxContextChars, logger).
		WithLookupTimeout(cfg.Search.Timeout)
	orchestrator := search.NewOrchestrator(embedder, db, assembler, generator, search.Config{
		TopK:             cfg.Search.TopK,
		MaxQueryChars:    cfg.Search.MaxQueryChars,
		SkipEmptyContext: cfg.Search.SkipEmptyContext,
		EmbedTimeout:     cfg.Embedder.Timeout,
		SearchTimeout:    cfg.Search.Timeout,
		GenerateTimeout:  cfg.LLM.Timeout,
	}, logger)

	titles := scraper.NewWithConfig(scraper.ScraperConfig{
		RateLimit: cfg.Scraper.RateLimit,
		Timeout:   cfg.Scraper.Timeout,
		UserAgent: cfg.Scraper.UserAgent,
	})

	contentSvc := content.NewService(db, db, embedder, titles, renderer, content.ServiceConfig{
		EmbedTimeout: cfg.Embedder.Timeout,
		FetchTimeout: cfg.Scraper.Timeout,
	}, logger)
	shares := content.NewShareService(db, db, cfg.Server.PublicBaseURL, logger)

	srv := server.New(server.Config{
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		SearchRateLimit: cfg.Server.SearchRateLimit,
		SearchBurst:     cfg.Server.SearchBurst,
	}, orchestrator, contentSvc, shares, auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.CookieName), logger)

	logger.Info("mindvault starting",
		"database", cfg.Database.Type,
		"embedder", cfg.Embedder.Type,
		"llm", cfg.LLM.Type,
		"model", cfg.LLM.Model,
	)

	err = srv.ListenAndServe(ctx, fmt.Sprintf(":%d", cfg.Server.Port), cfg.Server.ShutdownTimeout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("mindvault stopped")
	return nil
}
