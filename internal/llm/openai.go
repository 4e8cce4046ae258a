package llm

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures an OpenAI-compatible provider. BaseURL may point at
// OpenRouter or any other compatible gateway.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
}

// OpenAIClient talks to the chat completions API.
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient creates a client for an OpenAI-compatible endpoint.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(clientCfg)}, nil
}

// Generate sends one chat completion request.
func (c *OpenAIClient) Generate(ctx context.Context, req Request) (*Response, error) {
	resp, err := c.client.CreateChatCompletion(ctx, buildOpenAIRequest(req))
	if err != nil {
		return nil, fmt.Errorf("create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	msg := resp.Choices[0].Message
	out := &Response{
		Content:          msg.Content,
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}
	if out.Content == "" && len(msg.MultiContent) > 0 {
		for _, part := range msg.MultiContent {
			if part.Type == openai.ChatMessagePartTypeText {
				out.Content += part.Text
			}
		}
	}
	for _, tc := range msg.ToolCalls {
		args := json.RawMessage(tc.Function.Arguments)
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}
	return out, nil
}

func buildOpenAIRequest(req Request) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, toOpenAIMessage(m))
	}

	out := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

func toOpenAIMessage(m Message) openai.ChatCompletionMessage {
	switch m.Role {
	case RoleSystem:
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: m.Content}
	case RoleAssistant:
		msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		return msg
	case RoleTool:
		return openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
	default:
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content}
	}
}
