package retrieval

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	defaultEmbedTimeout = 30 * time.Second
	embedConcurrency    = 4
)

// Provider produces embeddings with a single, named model.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedModel() string
}

// Embedder wraps a Provider with a per-call timeout and a dimension check.
type Embedder struct {
	provider   Provider
	dimensions int
	timeout    time.Duration
}

// NewEmbedder creates an Embedder. dimensions <= 0 disables the dimension check.
func NewEmbedder(p Provider, dimensions int, timeout time.Duration) *Embedder {
	if timeout <= 0 {
		timeout = defaultEmbedTimeout
	}
	return &Embedder{provider: p, dimensions: dimensions, timeout: timeout}
}

// Model returns the embedding model name recorded with every vector.
func (e *Embedder) Model() string {
	return e.provider.EmbedModel()
}

// Embed returns the embedding vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	vec, err := e.provider.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if e.dimensions > 0 && len(vec) != e.dimensions {
		return nil, fmt.Errorf("embedding has %d dimensions, expected %d", len(vec), e.dimensions)
	}
	return vec, nil
}

// EmbedBatch returns embedding vectors for multiple texts with bounded
// concurrency. Results are in input order. Returns nil for empty input.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for i, text := range texts {
		g.Go(func() error {
			vec, err := e.Embed(gCtx, text)
			if err != nil {
				return fmt.Errorf("text %d: %w", i, err)
			}
			results[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
