package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiClient talks to the Gemini API.
type GeminiClient struct {
	client *genai.Client
}

// NewGeminiClient creates a Gemini API client.
func NewGeminiClient(ctx context.Context, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{client: client}, nil
}

// Generate sends one generateContent request.
func (c *GeminiClient) Generate(ctx context.Context, req Request) (*Response, error) {
	contents, cfg := buildGeminiRequest(req)
	resp, err := c.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	return parseGeminiResponse(resp, req.Model)
}

func parseGeminiResponse(resp *genai.GenerateContentResponse, model string) (*Response, error) {
	if len(resp.Candidates) == 0 {
		return nil, ErrEmptyResponse
	}

	out := &Response{Model: model}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if resp.UsageMetadata != nil {
		out.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	var text strings.Builder
	if cand := resp.Candidates[0]; cand.Content != nil {
		for _, part := range cand.Content.Parts {
			switch {
			case part.FunctionCall != nil:
				args, err := json.Marshal(part.FunctionCall.Args)
				if err != nil {
					return nil, fmt.Errorf("marshal function call args: %w", err)
				}
				id := part.FunctionCall.ID
				if id == "" {
					id = fmt.Sprintf("call_%d", len(out.ToolCalls))
				}
				out.ToolCalls = append(out.ToolCalls, ToolCall{
					ID:               id,
					Name:             part.FunctionCall.Name,
					Arguments:        args,
					ThoughtSignature: part.ThoughtSignature,
				})
			case part.Text != "" && !part.Thought:
				text.WriteString(part.Text)
			}
		}
	}
	out.Content = text.String()
	return out, nil
}

// buildGeminiRequest maps the neutral request onto Gemini contents. Gemini has no
// system role inside the history, so system prompt and directives are folded into
// SystemInstruction in their original order.
func buildGeminiRequest(req Request) ([]*genai.Content, *genai.GenerateContentConfig) {
	cfg := &genai.GenerateContentConfig{Temperature: genai.Ptr(req.Temperature)}

	var system []*genai.Part
	if req.System != "" {
		system = append(system, genai.NewPartFromText(req.System))
	}

	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, genai.NewPartFromText(m.Content))
		case RoleAssistant:
			content := &genai.Content{Role: genai.RoleModel}
			if m.Content != "" {
				content.Parts = append(content.Parts, genai.NewPartFromText(m.Content))
			}
			for _, tc := range m.ToolCalls {
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						ID:   tc.ID,
						Name: tc.Name,
						Args: decodeArgs(tc.Arguments),
					},
					ThoughtSignature: tc.ThoughtSignature,
				})
			}
			contents = append(contents, content)
		case RoleTool:
			part := genai.NewPartFromFunctionResponse(m.Name, toolResponse(m.Content))
			part.FunctionResponse.ID = m.ToolCallID
			// Consecutive tool results belong to the same turn.
			if n := len(contents); n > 0 && isFunctionResponseTurn(contents[n-1]) {
				contents[n-1].Parts = append(contents[n-1].Parts, part)
				continue
			}
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{part}})
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	if len(system) > 0 {
		cfg.SystemInstruction = &genai.Content{Parts: system}
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 t.Name,
				Description:          t.Description,
				ParametersJsonSchema: t.Parameters,
			})
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return contents, cfg
}

func isFunctionResponseTurn(c *genai.Content) bool {
	if c.Role != genai.RoleUser || len(c.Parts) == 0 {
		return false
	}
	for _, p := range c.Parts {
		if p.FunctionResponse == nil {
			return false
		}
	}
	return true
}

func decodeArgs(raw json.RawMessage) map[string]any {
	args := map[string]any{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &args)
	}
	return args
}

// toolResponse wraps a serialized tool result in the object Gemini expects.
func toolResponse(content string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(content), &obj); err == nil {
		return obj
	}
	var anyValue any
	if err := json.Unmarshal([]byte(content), &anyValue); err == nil {
		return map[string]any{"result": anyValue}
	}
	return map[string]any{"result": content}
}
