package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/kalambet/fundscout/internal/agent"
)

// RAGAnswer is the standalone retrieval agent's answer.
type RAGAnswer struct {
	Answer          string      `json:"answer"`
	Sources         []RAGSource `json:"sources"`
	ConfidenceScore float64     `json:"confidence_score"`
	Reasoning       string      `json:"reasoning"`
}

type RAGSource struct {
	CompanyName     string  `json:"company_name"`
	RelevanceScore  float64 `json:"relevance_score"`
	DocumentSnippet string  `json:"document_snippet"`
}

// RAGQuery answers a question with a single retrieval agent, bypassing
// intent routing.
type RAGQuery struct {
	runner AgentRunner
	spec   agent.Spec
}

func NewRAGQuery(runner AgentRunner) *RAGQuery {
	return &RAGQuery{runner: runner, spec: ragQuerySpec()}
}

func (q *RAGQuery) Run(ctx context.Context, query string, history []agent.Turn) (_ *RAGAnswer, err error) {
	start := time.Now()
	defer func() { observe("rag", start, err) }()

	res, err := q.runner.Run(ctx, q.spec, agent.NewConversation(history, query))
	if err != nil {
		return nil, err
	}
	var answer RAGAnswer
	if err := res.Decode(&answer); err != nil {
		return nil, fmt.Errorf("decoding rag answer: %w", err)
	}
	if answer.Sources == nil {
		answer.Sources = []RAGSource{}
	}
	return &answer, nil
}
