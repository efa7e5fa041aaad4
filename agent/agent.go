package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/agentbox/conversation"
	"github.com/isdmx/agentbox/provider"
	"github.com/isdmx/agentbox/retry"
	"github.com/isdmx/agentbox/tools"
)

// Config carries the agent's identity and loop limits
type Config struct {
	Name          string
	Model         string
	Temperature   float64
	MaxTokens     int
	SystemPrompt  string
	ToolsEnabled  bool
	MaxIterations int
	Timeout       time.Duration
}

// Response is the outcome of one conversation turn
type Response struct {
	Content    string              `json:"content"`
	ToolCalls  []provider.ToolCall `json:"tool_calls,omitempty"`
	Iterations int                 `json:"iterations"`
	Usage      provider.Usage      `json:"usage"`
}

// Agent drives the model/tool loop for conversation turns. Within a turn the
// model may request tool invocations; tool results feed back into the same
// turn until the model answers in plain text or the iteration cap is hit.
type Agent struct {
	logger        *zap.Logger
	config        Config
	provider      provider.Provider
	conversations *conversation.Manager
	executor      *tools.Executor
	policy        retry.Policy
}

// Option defines a functional option for Agent
type Option func(*Agent)

// WithRetryPolicy overrides the retry policy applied to model calls
func WithRetryPolicy(p retry.Policy) Option {
	return func(a *Agent) {
		a.policy = p
	}
}

// New creates an agent
func New(logger *zap.Logger, cfg Config, prov provider.Provider, conv *conversation.Manager, exec *tools.Executor, opts ...Option) *Agent {
	if cfg.MaxIterations < 1 {
		cfg.MaxIterations = 5
	}

	a := &Agent{
		logger:        logger,
		config:        cfg,
		provider:      prov,
		conversations: conv,
		executor:      exec,
		policy:        retry.Policy{Retryable: IsTransient},
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// IsTransient classifies model call errors for retrying: everything except
// context cancellation is retryable, since model call failures are dominated
// by network and platform errors.
func IsTransient(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Run processes one user message and returns the final assistant reply.
//
// The working transcript grows with every model and tool message, but only
// the incoming user message and the final assistant reply are persisted to
// the session history. Intermediate tool traffic stays within the turn.
func (a *Agent) Run(ctx context.Context, sessionID, message string) (*Response, error) {
	if a.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
	}

	a.logger.Info("processing message",
		zap.String("session_id", sessionID),
		zap.String("agent", a.config.Name))

	transcript := a.seedTranscript(sessionID)
	transcript = append(transcript, provider.Message{Role: "user", Content: message})

	var (
		resp       *Response
		lastReply  *provider.Response
		iterations int
		usage      provider.Usage
		invoked    []provider.ToolCall
	)

	for iterations = 1; iterations <= a.config.MaxIterations; iterations++ {
		req := provider.Request{
			Messages:    transcript,
			Model:       a.config.Model,
			Temperature: a.config.Temperature,
			MaxTokens:   a.config.MaxTokens,
		}
		if a.config.ToolsEnabled {
			req.Tools = a.executor.Schemas()
		}

		reply, err := retry.DoValue(ctx, a.policy, func() (*provider.Response, error) {
			return a.provider.ChatCompletion(ctx, req)
		})
		if err != nil {
			return nil, fmt.Errorf("model call failed: %w", err)
		}

		lastReply = reply
		if reply.Usage != nil {
			usage.PromptTokens += reply.Usage.PromptTokens
			usage.CompletionTokens += reply.Usage.CompletionTokens
			usage.TotalTokens += reply.Usage.TotalTokens
		}

		transcript = append(transcript, provider.Message{
			Role:      "assistant",
			Content:   reply.Content,
			ToolCalls: reply.ToolCalls,
		})

		if len(reply.ToolCalls) == 0 {
			break
		}

		for _, tc := range reply.ToolCalls {
			invoked = append(invoked, tc)
			result := a.executor.Execute(ctx, sessionID, tc.Name, tc.Arguments)
			transcript = append(transcript, provider.Message{
				Role:       "tool",
				Content:    encodeResult(result),
				ToolCallID: tc.ID,
			})
		}
	}

	content := ""
	if lastReply != nil {
		content = lastReply.Content
	}
	if content == "" && lastReply != nil && len(lastReply.ToolCalls) > 0 {
		content = "I could not complete the request within the allowed number of tool invocations."
	}

	a.conversations.AddMessage(sessionID, conversation.Message{
		Role:    conversation.RoleUser,
		Content: message,
	})
	a.conversations.AddMessage(sessionID, conversation.Message{
		Role:    conversation.RoleAssistant,
		Content: content,
	})

	if iterations > a.config.MaxIterations {
		iterations = a.config.MaxIterations
	}

	resp = &Response{
		Content:    content,
		ToolCalls:  invoked,
		Iterations: iterations,
		Usage:      usage,
	}

	a.logger.Info("turn complete",
		zap.String("session_id", sessionID),
		zap.Int("iterations", resp.Iterations),
		zap.Int("tool_calls", len(invoked)))

	return resp, nil
}

// Stream processes one user message and streams the reply as text chunks.
// Tool invocation is bypassed in streaming mode; the full reply is persisted
// to the session history once the stream ends.
func (a *Agent) Stream(ctx context.Context, sessionID, message string) (<-chan string, error) {
	cancel := context.CancelFunc(func() {})
	if a.config.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, a.config.Timeout)
	}

	transcript := a.seedTranscript(sessionID)
	transcript = append(transcript, provider.Message{Role: "user", Content: message})

	chunks, err := a.provider.StreamCompletion(ctx, provider.Request{
		Messages:    transcript,
		Model:       a.config.Model,
		Temperature: a.config.Temperature,
		MaxTokens:   a.config.MaxTokens,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stream start failed: %w", err)
	}

	out := make(chan string)
	go func() {
		defer close(out)
		defer cancel()

		var full []byte
		for chunk := range chunks {
			full = append(full, chunk...)
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}

		a.conversations.AddMessage(sessionID, conversation.Message{
			Role:    conversation.RoleUser,
			Content: message,
		})
		a.conversations.AddMessage(sessionID, conversation.Message{
			Role:    conversation.RoleAssistant,
			Content: string(full),
		})
	}()

	return out, nil
}

// ResetSession discards all persisted history for the session
func (a *Agent) ResetSession(sessionID string) {
	a.conversations.ClearSession(sessionID)
	a.logger.Info("session reset", zap.String("session_id", sessionID))
}

// Config returns the agent's configuration
func (a *Agent) Config() Config {
	return a.config
}

// seedTranscript loads persisted history into a working transcript, planting
// the system prompt when the session has none yet
func (a *Agent) seedTranscript(sessionID string) []provider.Message {
	history := a.conversations.GetMessages(sessionID)

	transcript := make([]provider.Message, 0, len(history)+2)

	hasSystem := len(history) > 0 && history[0].Role == conversation.RoleSystem
	if !hasSystem && a.config.SystemPrompt != "" {
		transcript = append(transcript, provider.Message{Role: "system", Content: a.config.SystemPrompt})
		if len(history) == 0 {
			a.conversations.AddMessage(sessionID, conversation.Message{
				Role:    conversation.RoleSystem,
				Content: a.config.SystemPrompt,
			})
		}
	}

	for _, msg := range history {
		transcript = append(transcript, provider.Message{
			Role:       string(msg.Role),
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		})
	}

	return transcript
}

func encodeResult(result tools.Result) string {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":%q}`, err.Error())
	}
	return string(data)
}
