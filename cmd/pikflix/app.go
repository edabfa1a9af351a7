package main

import (
	"context"
	"fmt"

	"github.com/jonathan/pikflix/internal/availability"
	"github.com/jonathan/pikflix/internal/catalog"
	"github.com/jonathan/pikflix/internal/config"
	"github.com/jonathan/pikflix/internal/db"
	"github.com/jonathan/pikflix/internal/llm"
	"github.com/jonathan/pikflix/internal/logging"
	"github.com/jonathan/pikflix/internal/pipeline"
	"github.com/jonathan/pikflix/internal/tmdb"
	"github.com/jonathan/pikflix/internal/writeback"
)

// app holds the collaborators built once per process.
type app struct {
	cfg          *config.Config
	db           *db.DB
	llm          llm.Client
	writer       *writeback.Writer
	orchestrator *pipeline.Orchestrator
	providers    *availability.Service
}

// loadConfig loads and validates configuration and initialises logging.
func loadConfig(forServe bool) (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	validate := cfg.Validate
	if forServe {
		validate = cfg.ValidateForServe
	}
	if err := validate(); err != nil {
		return nil, err
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	return cfg, nil
}

// buildApp connects to every external dependency and wires the services.
// The write-back queue is created but not started.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	database, err := db.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return nil, err
	}

	llmClient, err := llm.NewClient(ctx, llm.DefaultConfig().WithModel(cfg.LLM.Model), cfg.LLM.APIKey)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	metadata, err := tmdb.NewClient(&tmdb.Options{
		BaseURL:           cfg.TMDB.BaseURL,
		APIToken:          cfg.TMDB.APIToken,
		Timeout:           cfg.TMDB.Timeout,
		RequestsPerSecond: cfg.TMDB.RequestsPerSecond,
		Burst:             cfg.TMDB.Burst,
	})
	if err != nil {
		_ = llmClient.Close()
		database.Close()
		return nil, fmt.Errorf("failed to create TMDB client: %w", err)
	}

	gateway := catalog.New(database)
	writer := writeback.New(gateway, writeback.Options{
		Workers:      cfg.Writeback.Workers,
		QueueSize:    cfg.Writeback.QueueSize,
		WriteTimeout: cfg.Writeback.WriteTimeout,
	})

	orchestrator := pipeline.New(pipeline.Deps{
		Source:    llm.NewRecommender(llmClient, cfg.LLM.MaxRecommendations),
		Catalog:   gateway,
		Metadata:  metadata,
		Persister: writer,
	}, pipeline.Options{
		TTL:               cfg.Cache.TTL,
		FetchConcurrency:  cfg.Pipeline.FetchConcurrency,
		StreamConcurrency: cfg.Pipeline.StreamConcurrency,
	})

	return &app{
		cfg:          cfg,
		db:           database,
		llm:          llmClient,
		writer:       writer,
		orchestrator: orchestrator,
		providers:    availability.NewService(gateway, metadata, writer, cfg.Cache.TTL),
	}, nil
}

// Close releases connections. Stop the write-back queue first.
func (a *app) Close() {
	if err := a.llm.Close(); err != nil {
		logging.Warn().Err(err).Msg("failed to close LLM client")
	}
	a.db.Close()
}
