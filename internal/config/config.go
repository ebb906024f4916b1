package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	LLM       LLMConfig
	Retrieval RetrievalConfig
	Advice    AdviceConfig
	Research  ResearchConfig
	WebSearch WebSearchConfig
	Log       LogConfig
	API       APIConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

type LLMConfig struct {
	BaseURL         string
	APIKey          string
	FastModel       string
	ReasoningModel  string
	EmbedModel      string
	EmbedDimensions int
	Timeout         time.Duration
	// StoreCompletions asks the provider to keep completions, which is what
	// makes the forwarded trace metadata visible in its dashboard.
	StoreCompletions bool
}

type RetrievalConfig struct {
	TopK              int
	DistanceThreshold float64
	IngestBatchSize   int
}

type AdviceConfig struct {
	ConfidenceThreshold float64
}

type ResearchConfig struct {
	EnrichmentTimeout time.Duration
}

type WebSearchConfig struct {
	Endpoint      string
	RatePerSecond float64
}

type LogConfig struct {
	Level  string
	Format string
}

type APIConfig struct {
	Token string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4000,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		LLM: LLMConfig{
			BaseURL:          "https://api.openai.com/v1",
			FastModel:        "gpt-4o-mini",
			ReasoningModel:   "gpt-4o",
			EmbedModel:       "text-embedding-3-small",
			EmbedDimensions:  1536,
			Timeout:          60 * time.Second,
			StoreCompletions: true,
		},
		Retrieval: RetrievalConfig{
			TopK:              5,
			DistanceThreshold: 0.3,
			IngestBatchSize:   64,
		},
		Advice: AdviceConfig{
			ConfidenceThreshold: 0.8,
		},
		Research: ResearchConfig{
			EnrichmentTimeout: 45 * time.Second,
		},
		WebSearch: WebSearchConfig{
			Endpoint:      "https://html.duckduckgo.com/html/",
			RatePerSecond: 1,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration in layers: defaults, the JSON config file at
// $XDG_CONFIG_HOME/fundscout/config.json, then FUNDSCOUT_* environment
// variables. A .env file in the working directory is loaded first; it never
// overrides variables that are already set. Secrets are read from the
// environment only.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Retrieval.DistanceThreshold < 0 || c.Retrieval.DistanceThreshold > 2 {
		return fmt.Errorf("retrieval.distance_threshold must be in [0, 2], got %v", c.Retrieval.DistanceThreshold)
	}
	if c.Advice.ConfidenceThreshold <= 0 || c.Advice.ConfidenceThreshold > 1 {
		return fmt.Errorf("advice.confidence_threshold must be in (0, 1], got %v", c.Advice.ConfidenceThreshold)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	return nil
}

// RequireLLM reports a missing model provider key. Only commands that call
// the model need one.
func (c Config) RequireLLM() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("missing required config: LLM API key. Set it via environment variable FUNDSCOUT_LLM_API_KEY or in ./.env")
	}
	return nil
}
