package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kalambet/fundscout/internal/agent"
	"github.com/kalambet/fundscout/internal/llm"
)

type runCall struct {
	spec agent.Spec
	conv agent.Conversation
}

// mockRunner answers each agent by name with a scripted handler.
type mockRunner struct {
	mu       sync.Mutex
	handlers map[string]func(ctx context.Context, conv agent.Conversation) (string, error)
	calls    []runCall
}

func newMockRunner() *mockRunner {
	return &mockRunner{handlers: map[string]func(context.Context, agent.Conversation) (string, error){}}
}

// on scripts agent name to return output.
func (m *mockRunner) on(name, output string) *mockRunner {
	m.handlers[name] = func(context.Context, agent.Conversation) (string, error) { return output, nil }
	return m
}

func (m *mockRunner) onFunc(name string, fn func(ctx context.Context, conv agent.Conversation) (string, error)) *mockRunner {
	m.handlers[name] = fn
	return m
}

func (m *mockRunner) Run(ctx context.Context, spec agent.Spec, conv agent.Conversation) (*agent.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, runCall{spec: spec, conv: conv})
	h, ok := m.handlers[spec.Name]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unexpected agent %s", spec.Name)
	}

	out, err := h(ctx, conv)
	if err != nil {
		return nil, err
	}
	return &agent.Result{
		Agent:        spec.Name,
		Output:       json.RawMessage(out),
		Text:         out,
		Conversation: conv.Append(llm.Message{Role: llm.RoleAssistant, Name: spec.Name, Content: out}),
	}, nil
}

func (m *mockRunner) callsTo(name string) []runCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []runCall
	for _, c := range m.calls {
		if c.spec.Name == name {
			out = append(out, c)
		}
	}
	return out
}

func (m *mockRunner) order() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.calls))
	for i, c := range m.calls {
		names[i] = c.spec.Name
	}
	return names
}

type invokeCall struct {
	name string
	args string
}

// mockTools records direct tool invocations.
type mockTools struct {
	results map[string]string
	err     error
	calls   []invokeCall
}

func (m *mockTools) Invoke(_ context.Context, name string, args json.RawMessage) (string, error) {
	m.calls = append(m.calls, invokeCall{name: name, args: string(args)})
	if m.err != nil {
		return "", m.err
	}
	if out, ok := m.results[name]; ok {
		return out, nil
	}
	return "[]", nil
}

type fakeSectors struct {
	sectors []string
	err     error
	calls   int
}

func (f *fakeSectors) ListValidSectors(ctx context.Context) ([]string, error) {
	f.calls++
	return f.sectors, f.err
}
