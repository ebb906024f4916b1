package retrieval

import (
	"container/heap"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

var _ VectorStore = (*SQLiteStore)(nil)

// SQLiteStore provides vector storage and brute-force cosine search over the
// documents table. The table is created by the storage migrations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an existing *sql.DB for vector operations.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Upsert inserts or replaces records keyed by id. New ids take the next
// ingestion sequence number; existing ids keep theirs.
func (s *SQLiteStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning upsert transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (id, seq, entity_name, source_index, timestamp, text, text_hash, embedding, embed_model, updated_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM documents), ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			entity_name = excluded.entity_name,
			source_index = excluded.source_index,
			timestamp = excluded.timestamp,
			text = excluded.text,
			text_hash = excluded.text_hash,
			embedding = excluded.embedding,
			embed_model = excluded.embed_model,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("preparing upsert statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		updatedAt := r.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.EntityName, r.SourceIndex, r.Timestamp, r.Text, r.TextHash,
			encodeFloat32s(r.Embedding), r.EmbedModel, updatedAt.UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("upserting record %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// candidate holds only what the scan phase of Search needs.
type candidate struct {
	ID       string
	Seq      int64
	Distance float64
}

// Search scans every vector of the given model and keeps the topK closest.
func (s *SQLiteStore) Search(ctx context.Context, model string, vector []float32, topK int) ([]ScoredRecord, error) {
	if topK <= 0 {
		return nil, nil
	}
	queryNorm := norm(vector)
	if queryNorm == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, seq, embedding FROM documents WHERE embed_model = ?`, model)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	h := &candidateHeap{}
	var buf []float32
	for rows.Next() {
		var c candidate
		var blob []byte
		if err := rows.Scan(&c.ID, &c.Seq, &blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", c.ID, err)
		}
		if len(buf) != len(vector) {
			continue
		}
		c.Distance = cosineDistance(vector, buf, queryNorm)

		if h.Len() < topK {
			heap.Push(h, c)
		} else if worse((*h)[0], c) {
			(*h)[0] = c
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	if h.Len() == 0 {
		return nil, nil
	}

	distances := make(map[string]float64, h.Len())
	ids := make([]any, 0, h.Len())
	for _, c := range *h {
		distances[c.ID] = c.Distance
		ids = append(ids, c.ID)
	}

	fullRows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, entity_name, source_index, timestamp, text, text_hash, embed_model, updated_at
		FROM documents WHERE id IN (?`+strings.Repeat(",?", len(ids)-1)+`)`, ids...)
	if err != nil {
		return nil, fmt.Errorf("fetching top-K records: %w", err)
	}
	defer fullRows.Close()

	results := make([]ScoredRecord, 0, len(ids))
	for fullRows.Next() {
		var r Record
		var updatedAt string
		if err := fullRows.Scan(&r.ID, &r.Seq, &r.EntityName, &r.SourceIndex, &r.Timestamp, &r.Text, &r.TextHash, &r.EmbedModel, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning full record: %w", err)
		}
		if r.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at for %s: %w", r.ID, err)
		}
		results = append(results, ScoredRecord{Record: r, Distance: distances[r.ID]})
	}
	if err := fullRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating full records: %w", err)
	}

	// IN queries do not preserve order.
	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].Seq < results[j].Seq
	})
	return results, nil
}

func (s *SQLiteStore) Hashes(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, text_hash FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("querying hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]string)
	for rows.Next() {
		var id, hash string
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, err
		}
		hashes[id] = hash
	}
	return hashes, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id IN (?`+strings.Repeat(",?", len(ids)-1)+`)`, args...); err != nil {
		return fmt.Errorf("deleting %d records: %w", len(ids), err)
	}
	return nil
}

func (s *SQLiteStore) Count(ctx context.Context, model string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE embed_model = ?`, model).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}
	return count, nil
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32sInto decodes little-endian bytes into buf, growing it if needed.
func decodeFloat32sInto(buf []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	if cap(buf) < n {
		buf = make([]float32, n)
	} else {
		buf = buf[:n]
	}
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return buf, nil
}

func norm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

// cosineDistance returns 1 - cos(a, b) clamped to [0, 2]. aNorm is the
// precomputed L2 norm of a. A zero vector b is at distance 1.
func cosineDistance(a, b []float32, aNorm float64) float64 {
	var dot, bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	if bNormSq == 0 {
		return 1
	}
	d := 1 - dot/(aNorm*math.Sqrt(bNormSq))
	return math.Min(2, math.Max(0, d))
}

// worse reports whether a ranks below b: farther, or equally far but ingested later.
func worse(a, b candidate) bool {
	if a.Distance != b.Distance {
		return a.Distance > b.Distance
	}
	return a.Seq > b.Seq
}

// candidateHeap keeps the worst retained candidate at the root.
type candidateHeap []candidate

func (h candidateHeap) Len() int           { return len(h) }
func (h candidateHeap) Less(i, j int) bool { return worse(h[i], h[j]) }
func (h candidateHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x any)        { *h = append(*h, x.(candidate)) }
func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
