// Package orchestrator classifies a funding question and hands it to exactly
// one pipeline.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kalambet/fundscout/internal/agent"
	"github.com/kalambet/fundscout/internal/intent"
	"github.com/kalambet/fundscout/internal/metrics"
	"github.com/kalambet/fundscout/internal/pipeline"
	"github.com/kalambet/fundscout/internal/storage"
	"github.com/kalambet/fundscout/internal/trace"
)

const interactionLogTimeout = 2 * time.Second

// RoutingError reports a query that could not be assigned to a pipeline:
// the classifier failed or returned a label outside {advice, research}.
type RoutingError struct {
	Label string
	Err   error
}

func (e *RoutingError) Error() string {
	if e.Label != "" {
		return fmt.Sprintf("routing: unsupported intent %q", e.Label)
	}
	return fmt.Sprintf("routing: %v", e.Err)
}

func (e *RoutingError) Unwrap() error { return e.Err }

// Classifier labels a query.
type Classifier interface {
	Classify(ctx context.Context, query string, history []agent.Turn) (intent.Classification, error)
}

type ResearchPipeline interface {
	Run(ctx context.Context, query string, history []agent.Turn) (*pipeline.ResearchSummary, error)
}

type AdvicePipeline interface {
	Run(ctx context.Context, query string, history []agent.Turn) (*pipeline.AdviceSummary, error)
}

// InteractionLog records routed queries.
type InteractionLog interface {
	SaveInteraction(ctx context.Context, i storage.Interaction) error
}

// Result is the outcome of one routed query. Exactly one of Research and
// Advice is set.
type Result struct {
	WorkflowID string                    `json:"workflow_id"`
	Intent     intent.Classification     `json:"intent"`
	Research   *pipeline.ResearchSummary `json:"research,omitempty"`
	Advice     *pipeline.AdviceSummary   `json:"advice,omitempty"`
}

// Orchestrator routes queries between the research and advice pipelines.
type Orchestrator struct {
	classifier Classifier
	research   ResearchPipeline
	advice     AdvicePipeline
	log        InteractionLog
	source     string
}

// New creates an Orchestrator. log may be nil. source names the trace origin
// ("api", "cli") forwarded with model requests.
func New(classifier Classifier, research ResearchPipeline, advice AdvicePipeline, log InteractionLog, source string) *Orchestrator {
	if source == "" {
		source = "orchestrator"
	}
	return &Orchestrator{classifier: classifier, research: research, advice: advice, log: log, source: source}
}

// Route classifies query and runs the matching pipeline. Classification
// failures and unknown labels return *RoutingError; pipeline failures are
// returned unchanged.
func (o *Orchestrator) Route(ctx context.Context, query string, history []agent.Turn) (_ Result, err error) {
	t, ok := trace.FromContext(ctx)
	if !ok {
		t = trace.New(o.source)
		ctx = trace.WithTrace(ctx, t)
	}
	log := trace.Logger(ctx)
	res := Result{WorkflowID: t.WorkflowID}

	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			log.Warn("query failed", "intent", res.Intent.Label, "error", err, "elapsed", trace.Elapsed(ctx))
		} else {
			log.Info("query routed", "intent", res.Intent.Label, "elapsed", trace.Elapsed(ctx))
		}
		label := res.Intent.Label
		if label == "" {
			label = "none"
		}
		metrics.RoutesTotal.WithLabelValues(label, outcome).Inc()
		o.record(ctx, t, query, res.Intent.Label, err)
	}()

	cl, err := o.classifier.Classify(ctx, query, history)
	if err != nil {
		return res, &RoutingError{Err: err}
	}
	res.Intent = cl

	switch cl.Label {
	case intent.LabelResearch:
		res.Research, err = o.research.Run(ctx, query, history)
	case intent.LabelAdvice:
		res.Advice, err = o.advice.Run(ctx, query, history)
	default:
		return res, &RoutingError{Label: cl.Label, Err: errors.New("unsupported intent label")}
	}
	if err != nil {
		return res, err
	}
	return res, nil
}

func (o *Orchestrator) record(ctx context.Context, t trace.Trace, query, label string, routeErr error) {
	if o.log == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), interactionLogTimeout)
	defer cancel()

	i := storage.Interaction{
		ID:         uuid.NewString(),
		WorkflowID: t.WorkflowID,
		CreatedAt:  time.Now(),
		Query:      query,
		Intent:     label,
		Status:     "completed",
	}
	if routeErr != nil {
		i.Status = "failed"
		i.Error = routeErr.Error()
	}
	if err := o.log.SaveInteraction(ctx, i); err != nil {
		trace.Logger(ctx).Error("recording interaction", "error", err)
	}
}
