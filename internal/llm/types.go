// Package llm provides the model-invocation layer: chat types, an
// OpenAI-compatible HTTP client, and a rate-limit-aware retrying invoker.
package llm

import "encoding/json"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single chat turn. ToolCalls is set on assistant messages that
// request tool execution; ToolCallID ties a tool-role message back to the
// call it answers.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is an immutable tool invocation requested by the model.
// Arguments preserve the raw JSON exactly as the model produced it.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolDef describes a tool bound to a request. Parameters is a JSON schema.
type ToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ResponseSchema constrains a request to structured JSON output.
type ResponseSchema struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
}

type Request struct {
	Model     string          `json:"model"`
	Messages  []Message       `json:"messages"`
	MaxTokens int             `json:"max_tokens,omitempty"`
	Tools     []ToolDef       `json:"-"`
	Schema    *ResponseSchema `json:"-"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response carries the assistant text and/or tool calls for one completion.
type Response struct {
	Model     string     `json:"model"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Usage     Usage      `json:"usage"`
}

// Message converts the response into an assistant transcript message.
func (r *Response) Message() Message {
	return Message{
		Role:      RoleAssistant,
		Content:   r.Content,
		ToolCalls: r.ToolCalls,
	}
}

// HasToolCall reports whether the response requested the named tool.
func (r *Response) HasToolCall(name string) bool {
	for _, tc := range r.ToolCalls {
		if tc.Name == name {
			return true
		}
	}
	return false
}
