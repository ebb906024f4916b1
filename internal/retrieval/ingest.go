package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kalambet/fundscout/internal/metrics"
	"github.com/kalambet/fundscout/internal/storage"
)

const defaultIngestBatchSize = 64

// ErrIngestInProgress is returned by Ingester.Run while another run holds the
// writer lock.
var ErrIngestInProgress = errors.New("ingestion already in progress")

// EntitySource lists the structured records to index.
type EntitySource interface {
	ListCompanies(ctx context.Context) ([]storage.Company, error)
}

// IngestStats summarizes one ingestion run.
type IngestStats struct {
	Total     int `json:"total"`
	Embedded  int `json:"embedded"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
	Removed   int `json:"removed"`
}

// Ingester indexes entity records into the vector store. It is the only
// writer of the index.
type Ingester struct {
	source    EntitySource
	embedder  *Embedder
	store     VectorStore
	batchSize int
	mu        sync.Mutex
}

func NewIngester(source EntitySource, embedder *Embedder, store VectorStore, batchSize int) *Ingester {
	if batchSize <= 0 {
		batchSize = defaultIngestBatchSize
	}
	return &Ingester{source: source, embedder: embedder, store: store, batchSize: batchSize}
}

// Run reads every entity, embeds documents whose text changed since the last
// run, upserts them in batch transactions and removes documents whose source
// record disappeared. Concurrent calls fail fast with ErrIngestInProgress.
func (in *Ingester) Run(ctx context.Context) (IngestStats, error) {
	if !in.mu.TryLock() {
		return IngestStats{}, ErrIngestInProgress
	}
	defer in.mu.Unlock()

	start := time.Now()
	var stats IngestStats

	companies, err := in.source.ListCompanies(ctx)
	if err != nil {
		return stats, fmt.Errorf("listing entities: %w", err)
	}
	existing, err := in.store.Hashes(ctx)
	if err != nil {
		return stats, fmt.Errorf("loading document hashes: %w", err)
	}

	model := in.embedder.Model()
	seen := make(map[string]bool, len(companies))
	var pending []Record
	for _, c := range companies {
		stats.Total++
		if strings.TrimSpace(c.CompanyName) == "" && strings.TrimSpace(c.Description) == "" {
			stats.Skipped++
			continue
		}
		doc := CompanyDocument(c)
		seen[doc.ID] = true

		hash := TextHash(model, doc.Text)
		if existing[doc.ID] == hash {
			stats.Unchanged++
			continue
		}
		pending = append(pending, Record{
			ID:          doc.ID,
			EntityName:  doc.Metadata.EntityName,
			SourceIndex: doc.Metadata.SourceIndex,
			Timestamp:   doc.Metadata.Timestamp,
			Text:        doc.Text,
			TextHash:    hash,
			EmbedModel:  model,
		})
	}

	for batchStart := 0; batchStart < len(pending); batchStart += in.batchSize {
		batch := pending[batchStart:min(batchStart+in.batchSize, len(pending))]

		texts := make([]string, len(batch))
		for i, r := range batch {
			texts[i] = r.Text
		}
		vecs, err := in.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return stats, fmt.Errorf("embedding batch at %d: %w", batchStart, err)
		}
		for i := range batch {
			batch[i].Embedding = vecs[i]
		}
		if err := in.store.Upsert(ctx, batch); err != nil {
			return stats, fmt.Errorf("upserting batch at %d: %w", batchStart, err)
		}
		stats.Embedded += len(batch)
		metrics.IngestDocumentsTotal.WithLabelValues("embedded").Add(float64(len(batch)))
	}
	metrics.IngestDocumentsTotal.WithLabelValues("unchanged").Add(float64(stats.Unchanged))

	var stale []string
	for id := range existing {
		if !seen[id] {
			stale = append(stale, id)
		}
	}
	if err := in.store.Delete(ctx, stale); err != nil {
		return stats, fmt.Errorf("removing stale documents: %w", err)
	}
	stats.Removed = len(stale)

	slog.Info("ingestion complete",
		"total", stats.Total,
		"embedded", stats.Embedded,
		"unchanged", stats.Unchanged,
		"removed", stats.Removed,
		"duration", time.Since(start),
	)
	return stats, nil
}
