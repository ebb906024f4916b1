package agent

import (
	"errors"
	"fmt"
	"time"
)

// GroundingError reports an answer produced without consulting any of the
// agent's retrieval tools.
type GroundingError struct {
	Agent    string
	Attempts int
}

func (e *GroundingError) Error() string {
	return fmt.Sprintf("agent %s answered without retrieval evidence after %d attempt(s)", e.Agent, e.Attempts)
}

// ToolInvocationError reports a tool call the registry rejected: unknown tool,
// malformed arguments or arguments that fail the tool's schema.
type ToolInvocationError struct {
	Tool   string
	Reason string
	Err    error
}

func (e *ToolInvocationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tool %q: %s: %v", e.Tool, e.Reason, e.Err)
	}
	return fmt.Sprintf("tool %q: %s", e.Tool, e.Reason)
}

func (e *ToolInvocationError) Unwrap() error { return e.Err }

// SchemaValidationError reports a final agent output that does not match the
// declared output schema.
type SchemaValidationError struct {
	Agent string
	Raw   string
	Err   error
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("agent %s output failed validation: %v", e.Agent, e.Err)
}

func (e *SchemaValidationError) Unwrap() error { return e.Err }

// UpstreamTimeout reports a bounded external call that ran out of time.
type UpstreamTimeout struct {
	Step    string
	Timeout time.Duration
	Err     error
}

func (e *UpstreamTimeout) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("%s timed out after %s", e.Step, e.Timeout)
	}
	return fmt.Sprintf("%s timed out", e.Step)
}

func (e *UpstreamTimeout) Unwrap() error { return e.Err }

// UpstreamError reports a failed model call, or an agent that kept calling
// tools without producing a final answer. Retryable is set for rate limits,
// provider 5xx responses and exhausted turns.
type UpstreamError struct {
	Step      string
	Retryable bool
	Err       error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// IsRetryable reports whether retrying the request that produced err may
// succeed. Ungrounded answers, invalid outputs and timeouts are retryable.
// Upstream errors carry their own verdict. Rejected tool calls and
// everything else are not retryable.
func IsRetryable(err error) bool {
	var tie *ToolInvocationError
	if errors.As(err, &tie) {
		return false
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Retryable
	}
	var ge *GroundingError
	var se *SchemaValidationError
	var ut *UpstreamTimeout
	return errors.As(err, &ge) || errors.As(err, &se) || errors.As(err, &ut)
}
