package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kalambet/fundscout/internal/agent"
	"github.com/kalambet/fundscout/internal/llm"
	"github.com/kalambet/fundscout/internal/tools"
	"github.com/kalambet/fundscout/internal/trace"
)

// AdviceSummary is the advice pipeline result. Display is nil for
// advice-only runs.
type AdviceSummary struct {
	Route      string         `json:"route"`
	Sector     string         `json:"sector,omitempty"`
	Confidence float64        `json:"confidence"`
	Advice     AdviceOutput   `json:"advice"`
	Display    *AdviceDisplay `json:"display,omitempty"`
}

type InvestorPair struct {
	Investor string `json:"investor"`
	Company  string `json:"company"`
}

// AdviceOutput is the advice agent's structured answer.
type AdviceOutput struct {
	Investors       []InvestorPair `json:"investors"`
	StrategicAdvice string         `json:"strategic_advice"`
}

// AdviceDisplay is the summarizer's presentation object.
type AdviceDisplay struct {
	InvestorName string `json:"investor_name"`
	Industry     string `json:"industry"`
	Description  string `json:"description"`
}

// Advice chains the sector gate, the advice agent and the summarizer.
type Advice struct {
	runner AgentRunner
	tools  ToolInvoker
	gate   *SectorGate
}

func NewAdvice(runner AgentRunner, invoker ToolInvoker, gate *SectorGate) *Advice {
	return &Advice{runner: runner, tools: invoker, gate: gate}
}

// Run classifies the sector, produces advice on the gated route and
// summarizes it for display.
func (a *Advice) Run(ctx context.Context, query string, history []agent.Turn) (_ *AdviceSummary, err error) {
	start := time.Now()
	defer func() { observe("advice", start, err) }()

	summary, conv, err := a.advise(ctx, query, history)
	if err != nil {
		return nil, err
	}

	res, err := a.runner.Run(ctx, summarizerSpec(), conv)
	if err != nil {
		return nil, err
	}
	var display AdviceDisplay
	if err := res.Decode(&display); err != nil {
		return nil, fmt.Errorf("decoding summary: %w", err)
	}
	summary.Display = &display
	return summary, nil
}

// AdviceOnly runs the sector gate and the advice agent without the
// summarizer.
func (a *Advice) AdviceOnly(ctx context.Context, query string, history []agent.Turn) (_ *AdviceSummary, err error) {
	start := time.Now()
	defer func() { observe("advice_only", start, err) }()

	summary, _, err := a.advise(ctx, query, history)
	return summary, err
}

// advise returns the advice summary and the conversation to hand to the
// summarizer.
func (a *Advice) advise(ctx context.Context, query string, history []agent.Turn) (*AdviceSummary, agent.Conversation, error) {
	decision, err := a.gate.Decide(ctx, query, history)
	if err != nil {
		return nil, agent.Conversation{}, err
	}

	conv := agent.NewConversation(history, query)
	summary := &AdviceSummary{Route: decision.Route()}

	var spec agent.Spec
	switch d := decision.(type) {
	case SectorScoped:
		summary.Sector, summary.Confidence = d.Sector, d.Confidence
		conv = conv.Append(llm.Message{
			Role:    llm.RoleSystem,
			Content: fmt.Sprintf("The user's startup has been classified into the following sector: %s", d.Sector),
		})
		if conv, err = a.prefetch(ctx, conv, d.Sector); err != nil {
			return nil, agent.Conversation{}, err
		}
		spec = adviceSpec()
	case Generic:
		summary.Sector, summary.Confidence = d.Sector, d.Confidence
		conv = conv.Append(llm.Message{
			Role:    llm.RoleSystem,
			Content: fmt.Sprintf("No sector could be determined with confidence (%s).", d.Reason),
		})
		spec = genericAdviceSpec()
	default:
		return nil, agent.Conversation{}, fmt.Errorf("unknown gate decision %T", decision)
	}

	res, err := a.runner.Run(ctx, spec, conv)
	if err != nil {
		return nil, agent.Conversation{}, err
	}
	if err := res.Decode(&summary.Advice); err != nil {
		return nil, agent.Conversation{}, fmt.Errorf("decoding advice: %w", err)
	}
	if summary.Advice.Investors == nil {
		summary.Advice.Investors = []InvestorPair{}
	}
	return summary, res.Conversation, nil
}

// prefetch invokes both sector tools through the registry and appends the
// calls and their results to conv, as if the advice agent had made them.
// A failed lookup is recorded as an error result for the agent to see.
func (a *Advice) prefetch(ctx context.Context, conv agent.Conversation, sector string) (agent.Conversation, error) {
	args, err := json.Marshal(map[string]string{"sector": sector})
	if err != nil {
		return conv, err
	}

	names := []string{tools.SearchFundedEntitiesBySector, tools.GetInvestorsForSector}
	calls := make([]llm.ToolCall, len(names))
	for i, name := range names {
		calls[i] = llm.ToolCall{ID: fmt.Sprintf("prefetch_%d", i+1), Name: name, Arguments: string(args)}
	}
	conv = conv.Append(llm.Message{Role: llm.RoleAssistant, ToolCalls: calls})

	for _, call := range calls {
		out, err := a.tools.Invoke(ctx, call.Name, args)
		if err != nil {
			if ctx.Err() != nil {
				return conv, ctx.Err()
			}
			trace.Logger(ctx).Warn("sector lookup failed", "tool", call.Name, "sector", sector, "error", err)
			b, _ := json.Marshal(map[string]string{"error": err.Error()})
			out = string(b)
		}
		conv = conv.Append(llm.Message{Role: llm.RoleTool, Name: call.Name, ToolCallID: call.ID, Content: out})
	}
	return conv, nil
}
