package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "FUNDSCOUT_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "FUNDSCOUT_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "llm.base_url", typ: kString, env: "FUNDSCOUT_LLM_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.LLM.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.BaseURL },
	},
	{
		key: "llm.api_key", typ: kString, env: "FUNDSCOUT_LLM_API_KEY",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.LLM.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.APIKey },
	},
	{
		key: "llm.fast_model", typ: kString, env: "FUNDSCOUT_LLM_FAST_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.FastModel = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.FastModel },
	},
	{
		key: "llm.reasoning_model", typ: kString, env: "FUNDSCOUT_LLM_REASONING_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.ReasoningModel = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.ReasoningModel },
	},
	{
		key: "llm.embed_model", typ: kString, env: "FUNDSCOUT_LLM_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.EmbedModel },
	},
	{
		key: "llm.embed_dimensions", typ: kInt, env: "FUNDSCOUT_LLM_EMBED_DIMENSIONS",
		apply:   func(cfg *Config, v any) { cfg.LLM.EmbedDimensions = v.(int) },
		extract: func(cfg Config) any { return cfg.LLM.EmbedDimensions },
	},
	{
		key: "llm.timeout", typ: kDuration, env: "FUNDSCOUT_LLM_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.LLM.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.LLM.Timeout },
	},
	{
		key: "llm.store_completions", typ: kBool, env: "FUNDSCOUT_LLM_STORE_COMPLETIONS",
		apply:   func(cfg *Config, v any) { cfg.LLM.StoreCompletions = v.(bool) },
		extract: func(cfg Config) any { return cfg.LLM.StoreCompletions },
	},
	{
		key: "retrieval.top_k", typ: kInt, env: "FUNDSCOUT_RETRIEVAL_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.TopK },
	},
	{
		key: "retrieval.distance_threshold", typ: kFloat, env: "FUNDSCOUT_RETRIEVAL_DISTANCE_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.DistanceThreshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Retrieval.DistanceThreshold },
	},
	{
		key: "retrieval.ingest_batch_size", typ: kInt, env: "FUNDSCOUT_RETRIEVAL_INGEST_BATCH_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.IngestBatchSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.IngestBatchSize },
	},
	{
		key: "advice.confidence_threshold", typ: kFloat, env: "FUNDSCOUT_ADVICE_CONFIDENCE_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Advice.ConfidenceThreshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Advice.ConfidenceThreshold },
	},
	{
		key: "research.enrichment_timeout", typ: kDuration, env: "FUNDSCOUT_RESEARCH_ENRICHMENT_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Research.EnrichmentTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Research.EnrichmentTimeout },
	},
	{
		key: "websearch.endpoint", typ: kString, env: "FUNDSCOUT_WEBSEARCH_ENDPOINT",
		apply:   func(cfg *Config, v any) { cfg.WebSearch.Endpoint = v.(string) },
		extract: func(cfg Config) any { return cfg.WebSearch.Endpoint },
	},
	{
		key: "websearch.rate_per_second", typ: kFloat, env: "FUNDSCOUT_WEBSEARCH_RATE_PER_SECOND",
		apply:   func(cfg *Config, v any) { cfg.WebSearch.RatePerSecond = v.(float64) },
		extract: func(cfg Config) any { return cfg.WebSearch.RatePerSecond },
	},
	{
		key: "log.level", typ: kString, env: "FUNDSCOUT_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.format", typ: kString, env: "FUNDSCOUT_LOG_FORMAT",
		apply:   func(cfg *Config, v any) { cfg.Log.Format = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Format },
	},
	{
		key: "api.token", typ: kString, env: "FUNDSCOUT_API_TOKEN",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.API.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.API.Token },
	},
}

// parse converts a raw string for a non-int key.
func (s keySpec) parse(raw string) (any, error) {
	switch s.typ {
	case kBool:
		return strconv.ParseBool(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	case kDuration:
		return time.ParseDuration(raw)
	case kInt:
		return strconv.Atoi(raw)
	default:
		return raw, nil
	}
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		default:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if pv, err := s.parse(v); err == nil {
					s.apply(cfg, pv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}
