// Package pipeline implements the research and advice agent chains the
// orchestrator dispatches to.
package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kalambet/fundscout/internal/agent"
	"github.com/kalambet/fundscout/internal/metrics"
)

// AgentRunner runs a single agent over a conversation.
type AgentRunner interface {
	Run(ctx context.Context, spec agent.Spec, conv agent.Conversation) (*agent.Result, error)
}

// ToolInvoker calls registry tools directly, outside an agent run.
type ToolInvoker interface {
	Invoke(ctx context.Context, name string, args json.RawMessage) (string, error)
}

// observe records a pipeline run duration under its outcome.
func observe(pipeline string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.PipelineDuration.WithLabelValues(pipeline, outcome).Observe(time.Since(start).Seconds())
}
