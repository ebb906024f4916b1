package retrieval

import (
	"context"
	"time"
)

// VectorStore persists document embeddings and answers nearest-neighbour
// queries. Records are keyed by a stable document id; vectors are only
// comparable within one embedding model.
type VectorStore interface {
	// Upsert inserts or replaces records by id in one transaction. A record
	// keeps the ingestion sequence it was first assigned.
	Upsert(ctx context.Context, records []Record) error

	// Search returns up to topK records embedded with model, ordered by
	// ascending cosine distance and then by ingestion sequence.
	Search(ctx context.Context, model string, vector []float32, topK int) ([]ScoredRecord, error)

	// Hashes returns the stored text hash per document id.
	Hashes(ctx context.Context) (map[string]string, error)

	// Delete removes the given document ids.
	Delete(ctx context.Context, ids []string) error

	// Count returns the number of records embedded with model.
	Count(ctx context.Context, model string) (int, error)
}

// Record is one indexed document with its embedding.
type Record struct {
	ID          string
	Seq         int64
	EntityName  string
	SourceIndex int
	Timestamp   string
	Text        string
	TextHash    string
	Embedding   []float32
	EmbedModel  string
	UpdatedAt   time.Time
}

// ScoredRecord is a Record with its cosine distance (1 - cosine similarity)
// to the query vector. Distances range over [0, 2].
type ScoredRecord struct {
	Record
	Distance float64
}
