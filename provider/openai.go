package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"

	"github.com/isdmx/agentbox/tools"
)

// OpenAIProvider implements Provider against any OpenAI-compatible chat
// completion endpoint
type OpenAIProvider struct {
	logger *zap.Logger
	client openai.Client
}

// NewOpenAIProvider creates a provider. An empty baseURL uses the platform
// default endpoint.
func NewOpenAIProvider(logger *zap.Logger, apiKey, baseURL string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAIProvider{
		logger: logger,
		client: openai.NewClient(opts...),
	}
}

// ChatCompletion performs one chat completion call
func (p *OpenAIProvider) ChatCompletion(ctx context.Context, req Request) (*Response, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("chat completion: empty choices")
	}

	choice := completion.Choices[0]

	resp := &Response{
		Content: choice.Message.Content,
		Usage: &Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
	}

	for _, tc := range choice.Message.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: decodeArguments(tc.Function.Arguments),
		})
	}

	p.logger.Debug("chat completion finished",
		zap.String("model", req.Model),
		zap.Int("tool_calls", len(resp.ToolCalls)),
		zap.Int("total_tokens", resp.Usage.TotalTokens))

	return resp, nil
}

// StreamCompletion performs a streaming chat completion, delivering text
// chunks on the returned channel. The channel is closed when the stream
// ends; the sequence is finite and cannot be restarted.
func (p *OpenAIProvider) StreamCompletion(ctx context.Context, req Request) (<-chan string, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)

	out := make(chan string)
	go func() {
		defer close(out)
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				select {
				case out <- delta:
				case <-ctx.Done():
					return
				}
			}
		}

		if err := stream.Err(); err != nil {
			p.logger.Warn("completion stream ended with error", zap.Error(err))
		}
	}()

	return out, nil
}

func (p *OpenAIProvider) buildParams(req Request) (openai.ChatCompletionNewParams, error) {
	msgs, err := convertMessages(req.Messages)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: msgs,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}

	return params, nil
}

func convertMessages(messages []Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			out = append(out, openai.SystemMessage(msg.Content))

		case "user":
			out = append(out, openai.UserMessage(msg.Content))

		case "assistant":
			if len(msg.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(msg.Content))
				continue
			}

			am := openai.ChatCompletionAssistantMessageParam{}
			if msg.Content != "" {
				am.Content.OfArrayOfContentParts = append(am.Content.OfArrayOfContentParts,
					openai.ChatCompletionAssistantMessageParamContentArrayOfContentPartUnion{
						OfText: &openai.ChatCompletionContentPartTextParam{Text: msg.Content},
					})
			}
			for _, tc := range msg.ToolCalls {
				am.ToolCalls = append(am.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: encodeArguments(tc.Arguments),
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &am})

		case "tool":
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolCallID))

		default:
			return nil, fmt.Errorf("unsupported message role: %q", msg.Role)
		}
	}

	return out, nil
}

func convertTools(defs []tools.Definition) []openai.ChatCompletionToolParam {
	params := make([]openai.ChatCompletionToolParam, 0, len(defs))
	for _, def := range defs {
		params = append(params, openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  openai.FunctionParameters(def.Parameters),
			},
		})
	}
	return params
}

func encodeArguments(args map[string]any) string {
	data, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func decodeArguments(raw string) map[string]any {
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]any{}
	}
	return args
}
