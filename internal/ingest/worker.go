package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kalambet/fundscout/internal/metrics"
	"github.com/kalambet/fundscout/internal/retrieval"
	"github.com/kalambet/fundscout/internal/storage"
)

// JobReindex rebuilds the vector index from the company store.
const JobReindex = "reindex"

// JobStore abstracts the job queue operations.
type JobStore interface {
	EnqueueJob(ctx context.Context, job storage.Job) error
	ClaimNextJob(ctx context.Context, types []string) (*storage.Job, error)
	CompleteJob(ctx context.Context, id string) error
	FailJob(ctx context.Context, id string, errMsg string) error
}

// Indexer runs one ingestion pass.
type Indexer interface {
	Run(ctx context.Context) (retrieval.IngestStats, error)
}

type reindexPayload struct {
	Reason string `json:"reason,omitempty"`
}

// Worker processes reindex jobs from the SQLite job queue. It is the only
// background writer of the vector index.
type Worker struct {
	store   JobStore
	indexer Indexer
	poll    time.Duration
	logger  *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, indexer Indexer, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:   store,
		indexer: indexer,
		poll:    pollInterval,
		logger:  slog.Default().With("component", "ingest"),
	}
}

// Enqueue schedules a reindex job and returns its id.
func Enqueue(ctx context.Context, store JobStore, reason string) (string, error) {
	payload, err := json.Marshal(reindexPayload{Reason: reason})
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	if err := store.EnqueueJob(ctx, storage.Job{ID: id, Type: JobReindex, PayloadJSON: string(payload)}); err != nil {
		return "", err
	}
	return id, nil
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single reindex job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob(ctx, []string{JobReindex})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		metrics.JobsTotal.WithLabelValues(job.Type, "failed").Inc()
		if failErr := w.store.FailJob(ctx, job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	metrics.JobsTotal.WithLabelValues(job.Type, "completed").Inc()
	if err := w.store.CompleteJob(ctx, job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload reindexPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	// A concurrent synchronous ingest returns ErrIngestInProgress; the job is
	// retried after backoff.
	stats, err := w.indexer.Run(ctx)
	if err != nil {
		return fmt.Errorf("reindexing: %w", err)
	}
	w.logger.Info("reindex complete", "job_id", job.ID, "reason", payload.Reason,
		"total", stats.Total, "embedded", stats.Embedded, "unchanged", stats.Unchanged, "removed", stats.Removed)
	return nil
}
