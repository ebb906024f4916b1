package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/kalambet/fundscout/internal/llm"
	"github.com/kalambet/fundscout/internal/trace"
)

const (
	defaultCallTimeout   = 60 * time.Second
	defaultMaxTurns      = 8
	defaultMaxToolErrors = 3
	maxAttempts          = 2
)

// Model is the chat completion backend.
type Model interface {
	Complete(ctx context.Context, req llm.Request) (llm.Response, error)
}

// ToolInvoker executes named tools and describes them to the model.
type ToolInvoker interface {
	Invoke(ctx context.Context, name string, args json.RawMessage) (string, error)
	Definitions(names ...string) ([]llm.ToolDefinition, error)
}

// Config controls the run loop.
type Config struct {
	FastModel      string
	ReasoningModel string
	CallTimeout    time.Duration
	MaxTurns       int
	MaxToolErrors  int
}

// ToolCallRecord is one tool call made during a run.
type ToolCallRecord struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Err       string `json:"error,omitempty"`
}

// Result is the outcome of a successful run.
type Result struct {
	Agent string
	// Output is the validated structured answer when the spec declares a
	// schema; Text holds the raw final content either way.
	Output    json.RawMessage
	Text      string
	ToolCalls []ToolCallRecord
	// Conversation is the input log plus the agent's final answer, ready to
	// hand to the next agent. Transcript additionally holds every tool turn.
	Conversation Conversation
	Transcript   Conversation
}

// Decode unmarshals the structured output into v.
func (r *Result) Decode(v any) error {
	if len(r.Output) == 0 {
		return fmt.Errorf("agent %s produced no structured output", r.Agent)
	}
	return json.Unmarshal(r.Output, v)
}

// Called reports whether any of the named tools was invoked successfully.
func (r *Result) Called(names ...string) bool {
	for _, rec := range r.ToolCalls {
		if rec.Err == "" && slices.Contains(names, rec.Name) {
			return true
		}
	}
	return false
}

// Runner drives agents through the tool-calling loop: call the model, execute
// requested tools, feed results back, and validate the final answer.
type Runner struct {
	model Model
	tools ToolInvoker
	cfg   Config
}

// NewRunner creates a Runner. tools may be nil when no agent uses tools.
func NewRunner(model Model, tools ToolInvoker, cfg Config) *Runner {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = defaultMaxTurns
	}
	if cfg.MaxToolErrors <= 0 {
		cfg.MaxToolErrors = defaultMaxToolErrors
	}
	return &Runner{model: model, tools: tools, cfg: cfg}
}

// Run executes spec over conv. An ungrounded answer or an answer failing the
// output schema is retried once before the error is returned.
func (r *Runner) Run(ctx context.Context, spec Spec, conv Conversation) (*Result, error) {
	log := trace.Logger(ctx).With("agent", spec.Name)

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var res *Result
		res, err = r.runOnce(ctx, spec, conv)
		if err == nil {
			return res, nil
		}

		var ge *GroundingError
		var se *SchemaValidationError
		switch {
		case errors.As(err, &ge):
			ge.Attempts = attempt
		case errors.As(err, &se):
		default:
			return nil, err
		}
		if attempt < maxAttempts {
			log.Warn("agent answer rejected, retrying", "attempt", attempt, "error", err)
		}
	}
	return nil, err
}

func (r *Runner) runOnce(ctx context.Context, spec Spec, conv Conversation) (*Result, error) {
	var defs []llm.ToolDefinition
	if len(spec.Tools) > 0 {
		if r.tools == nil {
			return nil, fmt.Errorf("agent %s declares tools but no tool invoker is configured", spec.Name)
		}
		var err error
		if defs, err = r.tools.Definitions(spec.Tools...); err != nil {
			return nil, fmt.Errorf("agent %s: %w", spec.Name, err)
		}
	}

	req := llm.Request{
		Model:       r.modelFor(spec.Tier),
		Tools:       defs,
		Temperature: spec.Temperature,
		Metadata:    trace.Metadata(ctx, spec.Name),
	}
	if spec.Output != nil {
		req.ResponseFormat = &llm.ResponseFormat{Name: spec.Name, Schema: SchemaJSON(spec.Output)}
	}
	system := llm.Message{Role: llm.RoleSystem, Content: spec.Instructions}

	transcript := conv
	var records []ToolCallRecord
	toolErrors := 0

	for turn := 0; turn < r.cfg.MaxTurns; turn++ {
		req.Messages = append([]llm.Message{system}, transcript.Messages()...)
		resp, err := r.complete(ctx, spec, req)
		if err != nil {
			return nil, err
		}

		msg := resp.Message
		msg.Role = llm.RoleAssistant
		transcript = transcript.Append(msg)

		if len(msg.ToolCalls) == 0 {
			return r.finish(spec, conv, transcript, records, msg)
		}

		for _, call := range msg.ToolCalls {
			out, err := r.invoke(ctx, spec, call)
			rec := ToolCallRecord{Name: call.Name, Arguments: call.Arguments}
			if err != nil {
				rec.Err = err.Error()
				var tie *ToolInvocationError
				switch {
				case errors.As(err, &tie):
					toolErrors++
					if toolErrors >= r.cfg.MaxToolErrors {
						return nil, tie
					}
				case ctx.Err() != nil:
					return nil, r.contextError(spec.Name, ctx.Err())
				default:
					toolErrors = 0
					trace.Logger(ctx).Warn("tool execution failed", "agent", spec.Name, "tool", call.Name, "error", err)
				}
				out = toolErrorContent(err)
			} else {
				toolErrors = 0
			}
			records = append(records, rec)
			transcript = transcript.Append(llm.Message{
				Role:       llm.RoleTool,
				Name:       call.Name,
				ToolCallID: call.ID,
				Content:    out,
			})
		}
	}
	return nil, &UpstreamError{
		Step:      "agent " + spec.Name,
		Retryable: true,
		Err:       fmt.Errorf("no final answer after %d turns", r.cfg.MaxTurns),
	}
}

func (r *Runner) invoke(ctx context.Context, spec Spec, call llm.ToolCall) (string, error) {
	if !slices.Contains(spec.Tools, call.Name) {
		return "", &ToolInvocationError{Tool: call.Name, Reason: "tool is not available to this agent"}
	}
	return r.tools.Invoke(ctx, call.Name, json.RawMessage(call.Arguments))
}

func (r *Runner) complete(ctx context.Context, spec Spec, req llm.Request) (llm.Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()

	resp, err := r.model.Complete(callCtx, req)
	if err == nil {
		return resp, nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return llm.Response{}, &UpstreamTimeout{Step: "agent " + spec.Name, Timeout: r.cfg.CallTimeout, Err: err}
	}
	return llm.Response{}, &UpstreamError{Step: "agent " + spec.Name, Retryable: llm.IsTransient(err), Err: err}
}

func (r *Runner) contextError(step string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &UpstreamTimeout{Step: "agent " + step, Err: err}
	}
	return fmt.Errorf("agent %s: %w", step, err)
}

func (r *Runner) finish(spec Spec, conv, transcript Conversation, records []ToolCallRecord, msg llm.Message) (*Result, error) {
	res := &Result{
		Agent:        spec.Name,
		Text:         msg.Content,
		ToolCalls:    records,
		Conversation: conv.Append(llm.Message{Role: llm.RoleAssistant, Name: spec.Name, Content: msg.Content}),
		Transcript:   transcript,
	}

	if len(spec.GroundingTools) > 0 && !res.Called(spec.GroundingTools...) {
		return nil, &GroundingError{Agent: spec.Name, Attempts: 1}
	}

	if spec.Output != nil {
		raw := []byte(stripCodeFence(msg.Content))
		if err := ValidateJSON(spec.Output, raw); err != nil {
			return nil, &SchemaValidationError{Agent: spec.Name, Raw: msg.Content, Err: err}
		}
		res.Output = json.RawMessage(raw)
	}
	return res, nil
}

func (r *Runner) modelFor(tier Tier) string {
	if tier == TierReasoning && r.cfg.ReasoningModel != "" {
		return r.cfg.ReasoningModel
	}
	return r.cfg.FastModel
}

func toolErrorContent(err error) string {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(b)
}

// stripCodeFence removes a surrounding ```json fence some models add despite
// structured output being requested.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
