package retrieval

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/kalambet/fundscout/internal/llm"
	"github.com/kalambet/fundscout/internal/storage"
)

type fakeReasoner struct {
	answer string
	err    error
	reqs   []llm.Request
}

func (f *fakeReasoner) Complete(_ context.Context, req llm.Request) (llm.Response, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Message: llm.Message{Role: llm.RoleAssistant, Content: f.answer}}, nil
}

func newTestEngine(t *testing.T, companies ...storage.Company) (*Engine, *fakeReasoner, *keywordProvider) {
	t.Helper()
	st, vs := openTestStore(t)
	if len(companies) > 0 {
		seedCompanies(t, st, companies...)
	}
	p := newKeywordProvider("fintech", "food", "climate")
	emb := NewEmbedder(p, 3, 0)
	r := &fakeReasoner{answer: "  Fintech funding is concentrated [1].  "}
	eng := NewEngine(emb, vs, NewIngester(st, emb, vs, 0), r, Config{ReasoningModel: "reasoner"})
	return eng, r, p
}

func fintechCompanies(n int) []storage.Company {
	var out []storage.Company
	for i := 0; i < n; i++ {
		out = append(out, storage.Company{SourceIndex: i, CompanyName: fmt.Sprintf("Pay%d", i), Sector: "Fintech"})
	}
	out = append(out, storage.Company{SourceIndex: 100, CompanyName: "Calo", Sector: "Food"})
	return out
}

func TestSemanticSearch_DefaultsBoundResults(t *testing.T) {
	eng, _, _ := newTestEngine(t, fintechCompanies(8)...)

	res, err := eng.SemanticSearch(context.Background(), "fintech startups", 0, -1)
	if err != nil {
		t.Fatalf("SemanticSearch: %v", err)
	}
	if res.Count != 5 || len(res.Documents) != 5 || len(res.Metadatas) != 5 || len(res.Distances) != 5 {
		t.Fatalf("expected 5 aligned results, got %+v", res)
	}
	for i, d := range res.Distances {
		if d > 0.3 {
			t.Errorf("result %d distance %f exceeds threshold", i, d)
		}
		if i > 0 && d < res.Distances[i-1] {
			t.Errorf("distances not ascending: %v", res.Distances)
		}
	}
	// Equal distances come back in ingestion order.
	for i, m := range res.Metadatas {
		if want := fmt.Sprintf("Pay%d", i); m.EntityName != want {
			t.Errorf("result %d: got %s, want %s", i, m.EntityName, want)
		}
	}

	ranked := res.Results()
	if ranked[0].Rank != 1 || ranked[0].Document.ID != "company:0" {
		t.Errorf("unexpected first ranked result: %+v", ranked[0])
	}
}

func TestSemanticSearch_ThresholdExcludesDistant(t *testing.T) {
	eng, _, _ := newTestEngine(t, fintechCompanies(2)...)

	res, err := eng.SemanticSearch(context.Background(), "food", 10, 0.3)
	if err != nil {
		t.Fatalf("SemanticSearch: %v", err)
	}
	if res.Count != 1 || res.Metadatas[0].EntityName != "Calo" {
		t.Errorf("expected only Calo, got %+v", res)
	}

	res, err = eng.SemanticSearch(context.Background(), "food", 10, 2)
	if err != nil {
		t.Fatalf("SemanticSearch: %v", err)
	}
	if res.Count != 3 {
		t.Errorf("threshold 2 should admit every document, got %d", res.Count)
	}
}

func TestSemanticSearch_EmptyIndex(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	res, err := eng.SemanticSearch(context.Background(), "fintech", 5, 0.3)
	if err != nil {
		t.Fatalf("SemanticSearch: %v", err)
	}
	if res.Count != 0 || res.Documents == nil || res.Metadatas == nil || res.Distances == nil {
		t.Errorf("expected empty non-nil slices, got %+v", res)
	}
}

func TestSemanticSearch_IndexesLazilyOnce(t *testing.T) {
	eng, _, p := newTestEngine(t, fintechCompanies(3)...)
	ctx := context.Background()

	if _, err := eng.SemanticSearch(ctx, "fintech", 5, 0.3); err != nil {
		t.Fatalf("first search: %v", err)
	}
	after := p.calls.Load()
	if after != 5 {
		t.Errorf("expected 4 document embeddings plus 1 query, got %d calls", after)
	}
	if _, err := eng.SemanticSearch(ctx, "fintech", 5, 0.3); err != nil {
		t.Fatalf("second search: %v", err)
	}
	if p.calls.Load() != after+1 {
		t.Errorf("second search should only embed the query")
	}
}

func TestSynthesize_NoDocuments(t *testing.T) {
	eng, r, _ := newTestEngine(t)

	answer, err := eng.Synthesize(context.Background(), "anything", nil, nil, nil)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if answer != NoDocumentsAnswer {
		t.Errorf("got %q", answer)
	}
	if len(r.reqs) != 0 {
		t.Error("model should not be called without documents")
	}
}

func TestSynthesize_PromptCarriesEvidence(t *testing.T) {
	eng, r, _ := newTestEngine(t)

	answer, err := eng.Synthesize(context.Background(), "who funds payments?",
		[]string{"Company: Tabby\nSector: Fintech"},
		[]Metadata{{EntityName: "Tabby", SourceIndex: 1}},
		[]float64{0.12},
	)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if answer != "Fintech funding is concentrated [1]." {
		t.Errorf("answer not trimmed: %q", answer)
	}
	req := r.reqs[0]
	if req.Model != "reasoner" {
		t.Errorf("expected reasoning model, got %q", req.Model)
	}
	prompt := req.Messages[1].Content
	if !strings.Contains(prompt, "[1] Tabby (relevance 0.88): Company: Tabby Sector: Fintech") {
		t.Errorf("prompt missing formatted record:\n%s", prompt)
	}
}

func TestBuildSynthesisPrompt_Budget(t *testing.T) {
	long := strings.Repeat("x", 400)
	prompt := buildSynthesisPrompt("q", []string{"short", long, "tiny"},
		[]Metadata{{EntityName: "A"}, {EntityName: "B"}, {EntityName: "C"}},
		[]float64{0.1, 0.2, 0.3}, 40)

	if !strings.Contains(prompt, "[1] A") || !strings.Contains(prompt, "[3] C") {
		t.Errorf("short records should fit:\n%s", prompt)
	}
	if strings.Contains(prompt, "[2] B") {
		t.Errorf("oversized record should be dropped:\n%s", prompt)
	}
	if !strings.Contains(prompt, "1 further records omitted") {
		t.Errorf("expected omission note:\n%s", prompt)
	}
}

func TestFullQuery(t *testing.T) {
	eng, _, _ := newTestEngine(t, fintechCompanies(3)...)
	ctx := context.Background()

	got, err := eng.FullQuery(ctx, "fintech", 5)
	if err != nil {
		t.Fatalf("FullQuery: %v", err)
	}
	search, err := eng.SemanticSearch(ctx, "fintech", 5, 0.3)
	if err != nil {
		t.Fatalf("SemanticSearch: %v", err)
	}
	if got.DocumentCount != len(search.Documents) {
		t.Errorf("document count %d != search count %d", got.DocumentCount, len(search.Documents))
	}
	if len(got.Sources) != 3 || got.Sources[0] != "Pay0" {
		t.Errorf("unexpected sources: %v", got.Sources)
	}
}

func TestFullQuery_NoMatches(t *testing.T) {
	eng, r, _ := newTestEngine(t, fintechCompanies(1)...)

	got, err := eng.FullQuery(context.Background(), "climate", 5)
	if err != nil {
		t.Fatalf("FullQuery: %v", err)
	}
	if got.Answer != NoMatchesAnswer || got.DocumentCount != 0 || got.Sources == nil || len(got.Sources) != 0 {
		t.Errorf("unexpected result: %+v", got)
	}
	if len(r.reqs) != 0 {
		t.Error("model should not be called without matches")
	}
}
