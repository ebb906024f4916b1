// Package trace carries the workflow correlation id of an orchestrated run
// through the context. It never influences routing.
package trace

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// MetadataSourceKey and MetadataWorkflowKey are the request metadata keys
// forwarded on every model call.
const (
	MetadataSourceKey   = "trace_source"
	MetadataWorkflowKey = "workflow_id"
)

// Trace identifies one orchestrated run.
type Trace struct {
	WorkflowID string
	Source     string
	StartedAt  time.Time
}

type ctxKey struct{}

// New starts a trace with a fresh workflow id.
func New(source string) Trace {
	return Trace{
		WorkflowID: uuid.NewString(),
		Source:     source,
		StartedAt:  time.Now(),
	}
}

// WithTrace returns a copy of ctx carrying t.
func WithTrace(ctx context.Context, t Trace) context.Context {
	return context.WithValue(ctx, ctxKey{}, t)
}

// FromContext returns the trace attached to ctx, if any.
func FromContext(ctx context.Context) (Trace, bool) {
	t, ok := ctx.Value(ctxKey{}).(Trace)
	return t, ok
}

// Metadata returns the model request metadata for a call made by source.
// It returns nil when ctx carries no trace.
func Metadata(ctx context.Context, source string) map[string]string {
	t, ok := FromContext(ctx)
	if !ok {
		return nil
	}
	return map[string]string{
		MetadataSourceKey:   source,
		MetadataWorkflowKey: t.WorkflowID,
	}
}

// Logger returns the default logger annotated with the workflow id of ctx.
func Logger(ctx context.Context) *slog.Logger {
	if t, ok := FromContext(ctx); ok {
		return slog.Default().With("workflow_id", t.WorkflowID)
	}
	return slog.Default()
}

// Elapsed reports how long the trace in ctx has been running.
func Elapsed(ctx context.Context) time.Duration {
	if t, ok := FromContext(ctx); ok {
		return time.Since(t.StartedAt)
	}
	return 0
}
