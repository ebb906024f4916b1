package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kalambet/fundscout/internal/llm"
	"github.com/kalambet/fundscout/internal/metrics"
	"github.com/kalambet/fundscout/internal/trace"
)

const (
	// NoDocumentsAnswer is returned by Synthesize when given no evidence.
	NoDocumentsAnswer = "No relevant documents were found for this query. Please try a different search term."
	// NoMatchesAnswer is returned by FullQuery when the search finds nothing.
	NoMatchesAnswer = "No relevant documents found for your query."

	defaultTopK              = 5
	defaultDistanceThreshold = 0.3
	defaultSearchTimeout     = 10 * time.Second
	defaultSynthesisTimeout  = 60 * time.Second
)

// Reasoner generates the synthesized answer.
type Reasoner interface {
	Complete(ctx context.Context, req llm.Request) (llm.Response, error)
}

type Config struct {
	TopK              int
	DistanceThreshold float64
	ReasoningModel    string
	MaxContextTokens  int
	SearchTimeout     time.Duration
	SynthesisTimeout  time.Duration
}

// SearchResults is the wire shape of a semantic search: parallel slices
// ordered by ascending distance.
type SearchResults struct {
	Documents []string   `json:"documents"`
	Metadatas []Metadata `json:"metadatas"`
	Distances []float64  `json:"distances"`
	Count     int        `json:"count"`
}

// SearchResult is one ranked hit. Rank starts at 1.
type SearchResult struct {
	Document Document
	Distance float64
	Rank     int
}

// Results returns the hits as ranked values.
func (s SearchResults) Results() []SearchResult {
	out := make([]SearchResult, len(s.Documents))
	for i := range s.Documents {
		out[i] = SearchResult{
			Document: Document{Text: s.Documents[i], Metadata: s.Metadatas[i]},
			Distance: s.Distances[i],
			Rank:     i + 1,
		}
		out[i].Document.ID = DocumentID(s.Metadatas[i].SourceIndex)
	}
	return out
}

type FullQueryResult struct {
	Answer        string   `json:"answer"`
	Sources       []string `json:"sources"`
	DocumentCount int      `json:"document_count"`
}

// Engine embeds queries, searches the vector index and synthesizes answers.
type Engine struct {
	embedder *Embedder
	store    VectorStore
	ingester *Ingester
	reasoner Reasoner
	cfg      Config

	mu      sync.Mutex
	indexed bool
}

// NewEngine creates an Engine. ingester may be nil to disable lazy indexing.
func NewEngine(embedder *Embedder, store VectorStore, ingester *Ingester, reasoner Reasoner, cfg Config) *Engine {
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}
	if cfg.DistanceThreshold <= 0 {
		cfg.DistanceThreshold = defaultDistanceThreshold
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = defaultSearchTimeout
	}
	if cfg.SynthesisTimeout <= 0 {
		cfg.SynthesisTimeout = defaultSynthesisTimeout
	}
	return &Engine{embedder: embedder, store: store, ingester: ingester, reasoner: reasoner, cfg: cfg}
}

// Defaults returns the configured top-K and distance threshold.
func (e *Engine) Defaults() (topK int, threshold float64) {
	return e.cfg.TopK, e.cfg.DistanceThreshold
}

// EnsureIndexed runs ingestion once when the index holds no vectors for the
// current model. A failed attempt is retried on the next call.
func (e *Engine) EnsureIndexed(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.indexed || e.ingester == nil {
		return nil
	}

	n, err := e.store.Count(ctx, e.embedder.Model())
	if err != nil {
		return fmt.Errorf("counting indexed documents: %w", err)
	}
	if n == 0 {
		slog.Info("vector index empty, ingesting", "model", e.embedder.Model())
		if _, err := e.ingester.Run(ctx); err != nil {
			if errors.Is(err, ErrIngestInProgress) {
				return nil
			}
			return fmt.Errorf("auto-ingest: %w", err)
		}
	}
	e.indexed = true
	return nil
}

// SemanticSearch returns up to topK documents within threshold cosine
// distance of query, closest first. An empty index yields zero results.
// topK <= 0 and threshold < 0 select the configured defaults.
func (e *Engine) SemanticSearch(ctx context.Context, query string, topK int, threshold float64) (SearchResults, error) {
	results := SearchResults{Documents: []string{}, Metadatas: []Metadata{}, Distances: []float64{}}
	if topK <= 0 {
		topK = e.cfg.TopK
	}
	if threshold < 0 {
		threshold = e.cfg.DistanceThreshold
	}
	if strings.TrimSpace(query) == "" {
		return results, nil
	}

	if err := e.EnsureIndexed(ctx); err != nil {
		return results, err
	}

	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return results, fmt.Errorf("embedding query: %w", err)
	}

	searchCtx, cancel := context.WithTimeout(ctx, e.cfg.SearchTimeout)
	defer cancel()
	hits, err := e.store.Search(searchCtx, e.embedder.Model(), vec, topK)
	if err != nil {
		return results, fmt.Errorf("searching index: %w", err)
	}

	for _, h := range hits {
		if h.Distance > threshold {
			continue
		}
		results.Documents = append(results.Documents, h.Text)
		results.Metadatas = append(results.Metadatas, Metadata{
			EntityName:  h.EntityName,
			SourceIndex: h.SourceIndex,
			Timestamp:   h.Timestamp,
		})
		results.Distances = append(results.Distances, h.Distance)
	}
	results.Count = len(results.Documents)
	metrics.SearchResults.Observe(float64(results.Count))

	trace.Logger(ctx).Debug("semantic search", "query", query, "top_k", topK, "threshold", threshold, "count", results.Count)
	return results, nil
}

// Synthesize asks the reasoning model for an answer grounded in docs. With no
// documents it returns NoDocumentsAnswer without calling the model.
func (e *Engine) Synthesize(ctx context.Context, query string, docs []string, metas []Metadata, distances []float64) (string, error) {
	if len(docs) == 0 {
		return NoDocumentsAnswer, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.SynthesisTimeout)
	defer cancel()

	resp, err := e.reasoner.Complete(ctx, llm.Request{
		Model: e.cfg.ReasoningModel,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: synthesisInstructions},
			{Role: llm.RoleUser, Content: buildSynthesisPrompt(query, docs, metas, distances, e.cfg.MaxContextTokens)},
		},
		Metadata: trace.Metadata(ctx, "rag_synthesis"),
	})
	if err != nil {
		return "", fmt.Errorf("synthesizing answer: %w", err)
	}
	return strings.TrimSpace(resp.Message.Content), nil
}

// FullQuery searches with the default threshold and synthesizes an answer
// from the hits.
func (e *Engine) FullQuery(ctx context.Context, query string, topK int) (FullQueryResult, error) {
	search, err := e.SemanticSearch(ctx, query, topK, e.cfg.DistanceThreshold)
	if err != nil {
		return FullQueryResult{}, err
	}
	if search.Count == 0 {
		return FullQueryResult{Answer: NoMatchesAnswer, Sources: []string{}}, nil
	}

	answer, err := e.Synthesize(ctx, query, search.Documents, search.Metadatas, search.Distances)
	if err != nil {
		return FullQueryResult{}, err
	}

	sources := make([]string, len(search.Metadatas))
	for i, m := range search.Metadatas {
		sources[i] = m.EntityName
	}
	return FullQueryResult{Answer: answer, Sources: sources, DocumentCount: search.Count}, nil
}
