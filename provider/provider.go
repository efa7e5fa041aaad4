package provider

import (
	"context"

	"github.com/isdmx/agentbox/tools"
)

// Message is one entry in a model conversation. Assistant messages may carry
// tool-call requests; tool messages answer one request, correlated by id.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a model-requested tool invocation
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Usage reports token consumption for one completion
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Request carries one chat completion call
type Request struct {
	Messages    []Message
	Model       string
	Temperature float64
	MaxTokens   int
	Tools       []tools.Definition
}

// Response is the model's reply to a Request
type Response struct {
	Content   string
	ToolCalls []ToolCall
	Usage     *Usage
}

// Provider is a chat completion backend. StreamCompletion returns a finite,
// non-restartable sequence of text chunks.
type Provider interface {
	ChatCompletion(ctx context.Context, req Request) (*Response, error)
	StreamCompletion(ctx context.Context, req Request) (<-chan string, error)
}
