package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kalambet/fundscout/internal/storage"
)

// keywordProvider embeds a text as a one-hot vector over a fixed keyword set,
// so tests can reason about distances exactly.
type keywordProvider struct {
	fakeProvider
	keywords []string
}

func newKeywordProvider(keywords ...string) *keywordProvider {
	return &keywordProvider{keywords: keywords}
}

func (k *keywordProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if _, err := k.fakeProvider.Embed(ctx, text); err != nil {
		return nil, err
	}
	lower := strings.ToLower(text)
	vec := make([]float32, len(k.keywords))
	for i, kw := range k.keywords {
		if strings.Contains(lower, kw) {
			vec[i] = 1
		}
	}
	return vec, nil
}

func seedCompanies(t *testing.T, st *storage.Store, companies ...storage.Company) {
	t.Helper()
	if err := st.UpsertCompanies(context.Background(), companies); err != nil {
		t.Fatalf("UpsertCompanies: %v", err)
	}
}

func TestIngest_EmbedsAndSkipsUnchanged(t *testing.T) {
	st, vs := openTestStore(t)
	ctx := context.Background()
	seedCompanies(t, st,
		storage.Company{SourceIndex: 1, CompanyName: "Ledger", Sector: "Fintech", Description: "payments"},
		storage.Company{SourceIndex: 2, CompanyName: "Calo", Sector: "Food", Description: "meal plans"},
	)

	p := newKeywordProvider("fintech", "food")
	in := NewIngester(st, NewEmbedder(p, 2, 0), vs, 1)

	stats, err := in.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Total != 2 || stats.Embedded != 2 || stats.Unchanged != 0 {
		t.Errorf("unexpected first-run stats: %+v", stats)
	}

	before := p.calls.Load()
	stats, err = in.Run(ctx)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if stats.Embedded != 0 || stats.Unchanged != 2 {
		t.Errorf("unexpected second-run stats: %+v", stats)
	}
	if p.calls.Load() != before {
		t.Errorf("unchanged documents were re-embedded")
	}
}

func TestIngest_UpdatedRecordReplacesDocument(t *testing.T) {
	st, vs := openTestStore(t)
	ctx := context.Background()
	seedCompanies(t, st, storage.Company{SourceIndex: 7, CompanyName: "Kitopi", Sector: "Food", Description: "kitchens"})

	in := NewIngester(st, NewEmbedder(newKeywordProvider("food"), 1, 0), vs, 0)
	if _, err := in.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	seedCompanies(t, st, storage.Company{SourceIndex: 7, CompanyName: "Kitopi", Sector: "Food", Description: "cloud kitchens", Series: "Series C"})
	stats, err := in.Run(ctx)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if stats.Embedded != 1 {
		t.Errorf("expected changed record to be re-embedded, got %+v", stats)
	}

	n, err := vs.Count(ctx, testModel)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("expected a single document for entity 7, got %d", n)
	}
	hits, err := vs.Search(ctx, testModel, []float32{1}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || !strings.Contains(hits[0].Text, "Series: Series C") {
		t.Errorf("expected updated text, got %+v", hits)
	}
}

type companyList []storage.Company

func (c companyList) ListCompanies(context.Context) ([]storage.Company, error) { return c, nil }

func TestIngest_RemovesStaleAndSkipsEmpty(t *testing.T) {
	_, vs := openTestStore(t)
	ctx := context.Background()
	emb := NewEmbedder(newKeywordProvider("ai"), 1, 0)

	first := companyList{
		{SourceIndex: 1, CompanyName: "A", Sector: "AI"},
		{SourceIndex: 2, CompanyName: "B", Sector: "AI"},
	}
	if _, err := NewIngester(first, emb, vs, 0).Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	second := companyList{
		{SourceIndex: 1, CompanyName: "A", Sector: "AI"},
		{SourceIndex: 3, Sector: "AI"},
	}
	stats, err := NewIngester(second, emb, vs, 0).Run(ctx)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if stats.Removed != 1 || stats.Skipped != 1 || stats.Unchanged != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	hashes, _ := vs.Hashes(ctx)
	if _, ok := hashes[DocumentID(2)]; ok {
		t.Error("stale document company:2 still indexed")
	}
}

// blockingSource holds the ingestion lock until released.
type blockingSource struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSource) ListCompanies(context.Context) ([]storage.Company, error) {
	close(b.entered)
	<-b.release
	return nil, nil
}

func TestIngest_ConcurrentRunFailsFast(t *testing.T) {
	_, vs := openTestStore(t)
	src := &blockingSource{entered: make(chan struct{}), release: make(chan struct{})}
	in := NewIngester(src, NewEmbedder(&fakeProvider{}, 0, 0), vs, 0)

	done := make(chan error, 1)
	go func() {
		_, err := in.Run(context.Background())
		done <- err
	}()
	<-src.entered

	if _, err := in.Run(context.Background()); !errors.Is(err, ErrIngestInProgress) {
		t.Errorf("expected ErrIngestInProgress, got %v", err)
	}
	close(src.release)
	if err := <-done; err != nil {
		t.Errorf("first Run: %v", err)
	}
}

func TestIngest_EmbedFailureLeavesIndexUntouched(t *testing.T) {
	_, vs := openTestStore(t)
	src := companyList{{SourceIndex: 1, CompanyName: "A", Sector: "AI"}}
	p := &fakeProvider{err: errors.New("model not loaded")}

	if _, err := NewIngester(src, NewEmbedder(p, 0, 0), vs, 0).Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if n, _ := vs.Count(context.Background(), testModel); n != 0 {
		t.Errorf("expected empty index, got %d", n)
	}
}

func TestCompanyDocument(t *testing.T) {
	doc := CompanyDocument(storage.Company{
		SourceIndex:   4,
		CompanyName:   "Tabby",
		Sector:        "Fintech",
		Description:   "buy now pay later",
		FundingAmount: "$200M",
		Investors:     "STV, PayPal Ventures",
		Date:          "2023-10-01",
	})
	want := "Company: Tabby\nSector: Fintech\nDescription: buy now pay later\nFunding: $200M\nInvestors: STV, PayPal Ventures"
	if doc.Text != want {
		t.Errorf("text mismatch\n got: %q\nwant: %q", doc.Text, want)
	}
	if doc.ID != "company:4" || doc.Metadata.EntityName != "Tabby" || doc.Metadata.Timestamp != "2023-10-01" {
		t.Errorf("unexpected document: %+v", doc)
	}
}

func TestTextHash_CoversModel(t *testing.T) {
	if TextHash("a", "text") == TextHash("b", "text") {
		t.Error("hash should differ across models")
	}
	if TextHash("a", "text") != TextHash("a", "text") {
		t.Error("hash should be deterministic")
	}
}
