package pipeline

import (
	"context"
	"testing"

	"github.com/kalambet/fundscout/internal/tools"
)

func TestRAGQuery(t *testing.T) {
	m := newMockRunner().on(AgentRAGQuery, `{"answer":"Tabby raised $200M [1].","sources":[{"company_name":"Tabby","relevance_score":0.88,"document_snippet":"BNPL"}],"confidence_score":0.8,"reasoning":"r"}`)

	got, err := NewRAGQuery(m).Run(context.Background(), "How much did Tabby raise?", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got.Sources) != 1 || got.Sources[0].CompanyName != "Tabby" || got.ConfidenceScore != 0.8 {
		t.Errorf("unexpected answer: %+v", got)
	}

	spec := m.callsTo(AgentRAGQuery)[0].spec
	if len(spec.GroundingTools) != 1 || spec.GroundingTools[0] != tools.RAGSemanticSearch {
		t.Errorf("rag agent must be grounded on semantic search, got %v", spec.GroundingTools)
	}
}

func TestRAGQuery_NoSources(t *testing.T) {
	m := newMockRunner().on(AgentRAGQuery, `{"answer":"Nothing found.","sources":[],"confidence_score":0.1,"reasoning":"r"}`)

	got, err := NewRAGQuery(m).Run(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got.Sources == nil {
		t.Error("sources should be an empty list")
	}
}
