package retrieval

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeProvider returns fixed vectors per text and a small default otherwise.
type fakeProvider struct {
	vectors map[string][]float32
	err     error
	calls   atomic.Int32

	mu    sync.Mutex
	texts []string
}

func (f *fakeProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0.1, 0.1, 0.1}, nil
}

func (f *fakeProvider) EmbedModel() string { return testModel }

func TestEmbed_DimensionCheck(t *testing.T) {
	p := &fakeProvider{}
	if _, err := NewEmbedder(p, 3, 0).Embed(context.Background(), "x"); err != nil {
		t.Fatalf("Embed with matching dims: %v", err)
	}
	_, err := NewEmbedder(p, 768, 0).Embed(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "expected 768") {
		t.Errorf("expected dimension error, got %v", err)
	}
}

func TestEmbed_ProviderError(t *testing.T) {
	p := &fakeProvider{err: errors.New("connection refused")}
	_, err := NewEmbedder(p, 0, 0).Embed(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("expected wrapped provider error, got %v", err)
	}
}

type slowProvider struct{}

func (slowProvider) Embed(ctx context.Context, _ string) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (slowProvider) EmbedModel() string { return testModel }

func TestEmbed_Timeout(t *testing.T) {
	_, err := NewEmbedder(slowProvider{}, 0, 20*time.Millisecond).Embed(context.Background(), "x")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestEmbedBatch_PreservesOrder(t *testing.T) {
	p := &fakeProvider{vectors: map[string][]float32{
		"a": {1, 0, 0},
		"b": {0, 1, 0},
		"c": {0, 0, 1},
	}}
	vecs, err := NewEmbedder(p, 3, 0).EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 3 || vecs[0][0] != 1 || vecs[1][1] != 1 || vecs[2][2] != 1 {
		t.Errorf("unexpected vectors: %v", vecs)
	}

	empty, err := NewEmbedder(p, 3, 0).EmbedBatch(context.Background(), nil)
	if err != nil || empty != nil {
		t.Errorf("expected nil, nil for empty batch, got %v, %v", empty, err)
	}
}

func TestEmbedBatch_Error(t *testing.T) {
	p := &fakeProvider{err: errors.New("boom")}
	if _, err := NewEmbedder(p, 0, 0).EmbedBatch(context.Background(), []string{"a", "b"}); err == nil {
		t.Error("expected error")
	}
}
