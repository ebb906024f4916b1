package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/kalambet/fundscout/internal/agent"
	"github.com/kalambet/fundscout/internal/llm"
	"github.com/kalambet/fundscout/internal/metrics"
	"github.com/kalambet/fundscout/internal/trace"
)

const defaultToolTimeout = 30 * time.Second

// Handler executes a tool with arguments that already passed schema
// validation. The returned value is marshalled to JSON for the model.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// Tool is a named, schema-typed callable an agent may invoke.
type Tool struct {
	Name        string
	Description string
	Parameters  *agent.Schema
	Handler     Handler
}

// Registry holds the tools available to agents and validates every call
// against the tool's parameter schema before running it.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	params  map[string]*jsonschema.Resolved
	timeout time.Duration
}

var _ agent.ToolInvoker = (*Registry)(nil)

// NewRegistry creates an empty Registry. Each invocation is bounded by timeout.
func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = defaultToolTimeout
	}
	return &Registry{
		tools:   make(map[string]Tool),
		params:  make(map[string]*jsonschema.Resolved),
		timeout: timeout,
	}
}

func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return errors.New("tool name is required")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %q has no handler", t.Name)
	}
	if t.Parameters == nil {
		t.Parameters = agent.Object(nil)
	}
	params, err := agent.Resolve(t.Parameters)
	if err != nil {
		return fmt.Errorf("tool %q: %w", t.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[t.Name]; ok {
		return fmt.Errorf("tool %q already registered", t.Name)
	}
	r.tools[t.Name] = t
	r.params[t.Name] = params
	return nil
}

// MustRegister is like Register but panics on error. It is meant for
// process start-up wiring.
func (r *Registry) MustRegister(tools ...Tool) {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Subset returns the named tools in the given order. Unknown names are an
// error so that a misconfigured agent fails at start-up.
func (r *Registry) Subset(names ...string) ([]Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(names))
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			return nil, fmt.Errorf("unknown tool %q", name)
		}
		out = append(out, t)
	}
	return out, nil
}

// Definitions describes the named tools to the model.
func (r *Registry) Definitions(names ...string) ([]llm.ToolDefinition, error) {
	subset, err := r.Subset(names...)
	if err != nil {
		return nil, err
	}
	defs := make([]llm.ToolDefinition, len(subset))
	for i, t := range subset {
		defs[i] = llm.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  agent.SchemaJSON(t.Parameters),
		}
	}
	return defs, nil
}

// Invoke validates args against the tool's schema and runs it. Unknown tools
// and invalid arguments return *agent.ToolInvocationError so the caller can
// hand the error back to the model for correction.
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) (string, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	params := r.params[name]
	r.mu.RUnlock()
	if !ok {
		metrics.ToolCallsTotal.WithLabelValues("unknown", "rejected").Inc()
		return "", &agent.ToolInvocationError{Tool: name, Reason: "unknown tool"}
	}

	args, err := normalizeArgs(params, args)
	if err != nil {
		metrics.ToolCallsTotal.WithLabelValues(name, "rejected").Inc()
		return "", &agent.ToolInvocationError{Tool: name, Reason: "invalid arguments", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	out, err := t.Handler(ctx, args)
	if err != nil {
		var tie *agent.ToolInvocationError
		if errors.As(err, &tie) {
			metrics.ToolCallsTotal.WithLabelValues(name, "rejected").Inc()
			return "", tie
		}
		if errors.Is(err, context.DeadlineExceeded) {
			metrics.ToolCallsTotal.WithLabelValues(name, "timeout").Inc()
			return "", &agent.UpstreamTimeout{Step: "tool " + name, Timeout: r.timeout, Err: err}
		}
		metrics.ToolCallsTotal.WithLabelValues(name, "error").Inc()
		return "", fmt.Errorf("tool %s: %w", name, err)
	}

	b, err := json.Marshal(out)
	if err != nil {
		metrics.ToolCallsTotal.WithLabelValues(name, "error").Inc()
		return "", fmt.Errorf("tool %s: encoding result: %w", name, err)
	}
	metrics.ToolCallsTotal.WithLabelValues(name, "ok").Inc()
	trace.Logger(ctx).Debug("tool invoked", "tool", name, "duration", time.Since(start))
	return string(b), nil
}

// normalizeArgs validates raw arguments and fills in schema defaults for
// omitted or null top-level properties. Empty input is treated as an empty object.
func normalizeArgs(params *jsonschema.Resolved, raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	obj, ok := agent.DropNulls(v).(map[string]any)
	if !ok {
		return nil, errors.New("arguments must be a JSON object")
	}
	if err := params.ApplyDefaults(&obj); err != nil {
		return nil, err
	}
	if err := params.Validate(obj); err != nil {
		return nil, err
	}
	return json.Marshal(obj)
}

// decodeArgs unmarshals validated arguments into a typed struct.
func decodeArgs[T any](tool string, raw json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, &agent.ToolInvocationError{Tool: tool, Reason: "invalid arguments", Err: err}
	}
	return v, nil
}
