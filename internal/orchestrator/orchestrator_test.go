package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/kalambet/fundscout/internal/agent"
	"github.com/kalambet/fundscout/internal/intent"
	"github.com/kalambet/fundscout/internal/pipeline"
	"github.com/kalambet/fundscout/internal/storage"
	"github.com/kalambet/fundscout/internal/trace"
)

type fakeClassifier struct {
	cl    intent.Classification
	err   error
	calls int
	ctx   context.Context
}

func (f *fakeClassifier) Classify(ctx context.Context, _ string, _ []agent.Turn) (intent.Classification, error) {
	f.calls++
	f.ctx = ctx
	return f.cl, f.err
}

type fakeResearch struct {
	out   *pipeline.ResearchSummary
	err   error
	calls int
}

func (f *fakeResearch) Run(context.Context, string, []agent.Turn) (*pipeline.ResearchSummary, error) {
	f.calls++
	return f.out, f.err
}

type fakeAdvice struct {
	out   *pipeline.AdviceSummary
	err   error
	calls int
}

func (f *fakeAdvice) Run(context.Context, string, []agent.Turn) (*pipeline.AdviceSummary, error) {
	f.calls++
	return f.out, f.err
}

type memoryLog struct {
	entries []storage.Interaction
}

func (m *memoryLog) SaveInteraction(_ context.Context, i storage.Interaction) error {
	m.entries = append(m.entries, i)
	return nil
}

func TestRoute_Research(t *testing.T) {
	cl := &fakeClassifier{cl: intent.Classification{Label: intent.LabelResearch, Confidence: 0.95}}
	research := &fakeResearch{out: &pipeline.ResearchSummary{Companies: []pipeline.CompanyProfile{{CompanyName: "Tabby", Enriched: true}}}}
	advice := &fakeAdvice{}
	log := &memoryLog{}

	res, err := New(cl, research, advice, log, "test").Route(context.Background(), "Which fintech companies raised Series B?", nil)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if res.Research == nil || res.Advice != nil {
		t.Fatalf("expected only a research result, got %+v", res)
	}
	if cl.calls != 1 || research.calls != 1 || advice.calls != 0 {
		t.Errorf("calls: classify=%d research=%d advice=%d", cl.calls, research.calls, advice.calls)
	}

	tr, ok := trace.FromContext(cl.ctx)
	if !ok || tr.WorkflowID != res.WorkflowID || tr.Source != "test" {
		t.Errorf("classifier context should carry the run's trace, got %+v", tr)
	}

	if len(log.entries) != 1 {
		t.Fatalf("expected one interaction, got %d", len(log.entries))
	}
	if e := log.entries[0]; e.Intent != intent.LabelResearch || e.Status != "completed" || e.WorkflowID != res.WorkflowID {
		t.Errorf("unexpected interaction: %+v", e)
	}
}

func TestRoute_Advice(t *testing.T) {
	cl := &fakeClassifier{cl: intent.Classification{Label: intent.LabelAdvice, Confidence: 0.9}}
	research := &fakeResearch{}
	advice := &fakeAdvice{out: &pipeline.AdviceSummary{Route: pipeline.RouteGeneric}}

	res, err := New(cl, research, advice, nil, "").Route(context.Background(), "Who should I pitch?", nil)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if res.Advice == nil || res.Research != nil {
		t.Fatalf("expected only an advice result, got %+v", res)
	}
	if research.calls != 0 || advice.calls != 1 {
		t.Errorf("calls: research=%d advice=%d", research.calls, advice.calls)
	}
}

func TestRoute_ReusesExistingTrace(t *testing.T) {
	cl := &fakeClassifier{cl: intent.Classification{Label: intent.LabelAdvice}}
	tr := trace.New("api")
	ctx := trace.WithTrace(context.Background(), tr)

	res, err := New(cl, &fakeResearch{}, &fakeAdvice{out: &pipeline.AdviceSummary{}}, nil, "").Route(ctx, "q", nil)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if res.WorkflowID != tr.WorkflowID {
		t.Errorf("workflow id = %s, want %s", res.WorkflowID, tr.WorkflowID)
	}
}

func TestRoute_RoutingErrors(t *testing.T) {
	timeout := &agent.UpstreamTimeout{Step: "agent intent_classifier", Err: context.DeadlineExceeded}

	cases := []struct {
		name      string
		cl        *fakeClassifier
		label     string
		retryable bool
	}{
		{"unknown label", &fakeClassifier{cl: intent.Classification{Label: "chitchat", Confidence: 0.9}}, "chitchat", false},
		{"classifier failure", &fakeClassifier{err: errors.New("model unavailable")}, "", false},
		{"classifier timeout", &fakeClassifier{err: timeout}, "", true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			research, advice, log := &fakeResearch{}, &fakeAdvice{}, &memoryLog{}
			_, err := New(c.cl, research, advice, log, "").Route(context.Background(), "q", nil)

			var re *RoutingError
			if !errors.As(err, &re) {
				t.Fatalf("expected RoutingError, got %v", err)
			}
			if re.Label != c.label {
				t.Errorf("label = %q, want %q", re.Label, c.label)
			}
			if agent.IsRetryable(err) != c.retryable {
				t.Errorf("IsRetryable = %v, want %v", agent.IsRetryable(err), c.retryable)
			}
			if research.calls+advice.calls != 0 {
				t.Error("no pipeline should run on a routing failure")
			}
			if len(log.entries) != 1 || log.entries[0].Status != "failed" {
				t.Errorf("expected a failed interaction, got %+v", log.entries)
			}
		})
	}
}

func TestRoute_PipelineErrorIsNotWrapped(t *testing.T) {
	cl := &fakeClassifier{cl: intent.Classification{Label: intent.LabelResearch}}
	ground := &agent.GroundingError{Agent: pipeline.AgentKBResearch, Attempts: 2}

	_, err := New(cl, &fakeResearch{err: ground}, &fakeAdvice{}, nil, "").Route(context.Background(), "q", nil)
	if err != ground {
		t.Errorf("expected the pipeline error unchanged, got %v", err)
	}
	var re *RoutingError
	if errors.As(err, &re) {
		t.Error("pipeline failures are not routing errors")
	}
}
