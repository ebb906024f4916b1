// Package intent decides which pipeline handles a query.
package intent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kalambet/fundscout/internal/agent"
	"github.com/kalambet/fundscout/internal/trace"
)

const (
	LabelAdvice   = "advice"
	LabelResearch = "research"
)

// AgentRunner runs a single agent over a conversation.
type AgentRunner interface {
	Run(ctx context.Context, spec agent.Spec, conv agent.Conversation) (*agent.Result, error)
}

// Classification is the classifier's structured verdict.
type Classification struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Classifier labels queries as advice or research.
type Classifier struct {
	runner AgentRunner
	spec   agent.Spec
}

func NewClassifier(runner AgentRunner) *Classifier {
	return &Classifier{runner: runner, spec: Spec()}
}

// Classify returns the label for query given prior turns. Unlike lookups on
// the enrichment path, a failed classification is an error: callers must not
// guess a label.
func (c *Classifier) Classify(ctx context.Context, query string, history []agent.Turn) (Classification, error) {
	if strings.TrimSpace(query) == "" {
		return Classification{}, errors.New("empty query")
	}

	res, err := c.runner.Run(ctx, c.spec, agent.NewConversation(history, query))
	if err != nil {
		return Classification{}, err
	}

	var cl Classification
	if err := res.Decode(&cl); err != nil {
		return Classification{}, fmt.Errorf("decoding classification: %w", err)
	}
	trace.Logger(ctx).Debug("intent classified", "label", cl.Label, "confidence", cl.Confidence)
	return cl, nil
}
