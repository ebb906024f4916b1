package orchestrator

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/fundscout/internal/agent"
	"github.com/kalambet/fundscout/internal/intent"
	"github.com/kalambet/fundscout/internal/llm"
	"github.com/kalambet/fundscout/internal/pipeline"
	"github.com/kalambet/fundscout/internal/retrieval"
	"github.com/kalambet/fundscout/internal/tools"
)

// scriptedModel answers each agent by the name of its response format. The
// knowledge-base agent searches first and answers once the tool result is in.
type scriptedModel struct {
	mu     sync.Mutex
	agents []string
}

func (m *scriptedModel) Complete(_ context.Context, req llm.Request) (llm.Response, error) {
	name := req.ResponseFormat.Name
	m.mu.Lock()
	m.agents = append(m.agents, name)
	m.mu.Unlock()

	last := req.Messages[len(req.Messages)-1]
	switch name {
	case "intent_classifier":
		return answer(`{"label":"research","confidence":0.95,"reasoning":"asks which companies raised"}`), nil
	case pipeline.AgentKBResearch:
		if last.Role != llm.RoleTool {
			return llm.Response{Message: llm.Message{
				Role:      llm.RoleAssistant,
				ToolCalls: []llm.ToolCall{{ID: "call-1", Name: tools.RAGSemanticSearch, Arguments: `{"query":"fintech companies Series B"}`}},
			}}, nil
		}
		return answer(`{"companies":[{"company_name":"Tabby","description":"Buy now, pay later.","industry":"Fintech","relevance_score":0.9}]}`), nil
	case pipeline.AgentEnrichment:
		return answer(`{"website":"https://tabby.ai","company_size":"500-1000","headquarters_location":"Riyadh, Saudi Arabia","founded_year":2019,"industry":"Fintech","description":"BNPL provider."}`), nil
	}
	return llm.Response{}, nil
}

func (m *scriptedModel) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.agents)
}

func answer(content string) llm.Response {
	return llm.Response{Message: llm.Message{Role: llm.RoleAssistant, Content: content}}
}

type recordingRetriever struct {
	mu      sync.Mutex
	queries []string
}

func (r *recordingRetriever) SemanticSearch(_ context.Context, query string, _ int, _ float64) (retrieval.SearchResults, error) {
	r.mu.Lock()
	r.queries = append(r.queries, query)
	r.mu.Unlock()
	return retrieval.SearchResults{
		Documents: []string{"Tabby: Buy now, pay later. Sector: Fintech. Series B."},
		Metadatas: []retrieval.Metadata{{EntityName: "Tabby", SourceIndex: 0}},
		Distances: []float64{0.1},
		Count:     1,
	}, nil
}

func (r *recordingRetriever) Synthesize(context.Context, string, []string, []retrieval.Metadata, []float64) (string, error) {
	return "", nil
}

func (r *recordingRetriever) FullQuery(context.Context, string, int) (retrieval.FullQueryResult, error) {
	return retrieval.FullQueryResult{}, nil
}

func (r *recordingRetriever) Defaults() (int, float64) { return 5, 0.3 }

func TestRoute_ResearchQuerySearchesKnowledgeBase(t *testing.T) {
	rag := &recordingRetriever{}
	registry := tools.NewRegistry(time.Second)
	registry.MustRegister(tools.RetrievalTools(rag)...)
	registry.MustRegister(tools.Tool{
		Name:       tools.WebSearch,
		Parameters: agent.Object(map[string]*agent.Schema{"query": agent.String("q")}, "query"),
		Handler: func(context.Context, json.RawMessage) (any, error) {
			return []string{}, nil
		},
	})

	model := &scriptedModel{}
	runner := agent.NewRunner(model, registry, agent.Config{FastModel: "fast", ReasoningModel: "reasoning", CallTimeout: time.Second})
	log := &memoryLog{}
	o := New(intent.NewClassifier(runner), pipeline.NewResearch(runner, time.Second), &fakeAdvice{}, log, "test")

	res, err := o.Route(context.Background(), "Which fintech companies raised a Series B?", nil)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}

	if res.Intent.Label != intent.LabelResearch || res.Intent.Confidence != 0.95 {
		t.Errorf("unexpected classification: %+v", res.Intent)
	}
	if len(rag.queries) != 1 || rag.queries[0] == "" {
		t.Fatalf("expected one non-empty semantic search, got %q", rag.queries)
	}
	want := []string{"intent_classifier", pipeline.AgentKBResearch, pipeline.AgentKBResearch, pipeline.AgentEnrichment}
	if got := model.calls(); !slices.Equal(got, want) {
		t.Errorf("agent order = %v, want %v", got, want)
	}
	if res.Research == nil || len(res.Research.Companies) != 1 {
		t.Fatalf("unexpected research result: %+v", res.Research)
	}
	if c := res.Research.Companies[0]; c.CompanyName != "Tabby" || !c.Enriched || c.Details.Website != "https://tabby.ai" {
		t.Errorf("unexpected company: %+v", c)
	}
	if len(log.entries) != 1 || log.entries[0].Intent != intent.LabelResearch {
		t.Errorf("unexpected interaction log: %+v", log.entries)
	}
}
