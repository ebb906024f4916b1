package llm

import "encoding/json"

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one chat turn. Assistant turns may carry tool calls; tool turns
// answer exactly one call through ToolCallID.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a function call requested by the model. Arguments is the raw,
// untrusted JSON text the model produced.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition advertises a callable tool to the model.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// ResponseFormat requests structured JSON output matching Schema.
type ResponseFormat struct {
	Name   string
	Schema json.RawMessage
}

type Request struct {
	Model          string
	Messages       []Message
	Tools          []ToolDefinition
	ResponseFormat *ResponseFormat
	Temperature    float32
	Metadata       map[string]string
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

type Response struct {
	Message      Message
	FinishReason string
	Usage        Usage
}
