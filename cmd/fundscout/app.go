package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/kalambet/fundscout/internal/agent"
	"github.com/kalambet/fundscout/internal/config"
	"github.com/kalambet/fundscout/internal/intent"
	"github.com/kalambet/fundscout/internal/llm"
	"github.com/kalambet/fundscout/internal/orchestrator"
	"github.com/kalambet/fundscout/internal/pipeline"
	"github.com/kalambet/fundscout/internal/retrieval"
	"github.com/kalambet/fundscout/internal/storage"
	"github.com/kalambet/fundscout/internal/tools"
	"github.com/kalambet/fundscout/internal/websearch"
)

// app holds every component built from one config.
type app struct {
	cfg      config.Config
	store    *storage.Store
	llm      *llm.Client
	vectors  *retrieval.SQLiteStore
	ingester *retrieval.Ingester
	engine   *retrieval.Engine
	registry *tools.Registry
	advice   *pipeline.Advice
	rag      *pipeline.RAGQuery
	router   *orchestrator.Orchestrator
}

// loadConfig loads the layered config and installs the default logger.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	setupLogging(cfg.Log)
	return cfg, nil
}

func setupLogging(cfg config.LogConfig) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// openApp opens storage and wires the model client, retrieval engine, tool
// registry, agents and pipelines. source tags workflow traces ("cli", "api").
func openApp(cfg config.Config, source string) (*app, error) {
	if err := cfg.RequireLLM(); err != nil {
		return nil, err
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	client := llm.New(llm.Config{
		BaseURL:          cfg.LLM.BaseURL,
		APIKey:           cfg.LLM.APIKey,
		EmbedModel:       cfg.LLM.EmbedModel,
		EmbedDimensions:  cfg.LLM.EmbedDimensions,
		StoreCompletions: cfg.LLM.StoreCompletions,
	})

	embedder := retrieval.NewEmbedder(client, cfg.LLM.EmbedDimensions, 0)
	vectors := retrieval.NewSQLiteStore(store.DB())
	ingester := retrieval.NewIngester(store, embedder, vectors, cfg.Retrieval.IngestBatchSize)
	engine := retrieval.NewEngine(embedder, vectors, ingester, client, retrieval.Config{
		TopK:              cfg.Retrieval.TopK,
		DistanceThreshold: cfg.Retrieval.DistanceThreshold,
		ReasoningModel:    cfg.LLM.ReasoningModel,
		SynthesisTimeout:  cfg.LLM.Timeout,
	})

	searcher := websearch.NewHTMLSearcher(websearch.Config{
		Endpoint:      cfg.WebSearch.Endpoint,
		RatePerSecond: cfg.WebSearch.RatePerSecond,
	})

	registry := tools.NewRegistry(cfg.LLM.Timeout)
	registry.MustRegister(tools.RetrievalTools(engine)...)
	registry.MustRegister(tools.FundingTools(store)...)
	registry.MustRegister(tools.WebSearchTool(searcher))

	runner := agent.NewRunner(client, registry, agent.Config{
		FastModel:      cfg.LLM.FastModel,
		ReasoningModel: cfg.LLM.ReasoningModel,
		CallTimeout:    cfg.LLM.Timeout,
	})

	gate := pipeline.NewSectorGate(runner, store, cfg.Advice.ConfidenceThreshold)
	advice := pipeline.NewAdvice(runner, registry, gate)
	research := pipeline.NewResearch(runner, cfg.Research.EnrichmentTimeout)

	return &app{
		cfg:      cfg,
		store:    store,
		llm:      client,
		vectors:  vectors,
		ingester: ingester,
		engine:   engine,
		registry: registry,
		advice:   advice,
		rag:      pipeline.NewRAGQuery(runner),
		router:   orchestrator.New(intent.NewClassifier(runner), research, advice, store, source),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
	}
}
