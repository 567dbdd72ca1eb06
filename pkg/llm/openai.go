package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

// OpenAIClient implements Client over the OpenAI Responses API.
type OpenAIClient struct {
	client openai.Client
	model  string
}

// NewOpenAIClient creates a client for the given model.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	return &OpenAIClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// GetModelName returns the model identifier.
func (c *OpenAIClient) GetModelName() string {
	return c.model
}

// Complete implements Client. The Responses API takes a single input string,
// so the message sequence is flattened with role prefixes.
func (c *OpenAIClient) Complete(ctx context.Context, in Request) (Response, error) {
	if len(in.Messages) == 0 {
		return Response{}, fmt.Errorf("message list cannot be empty")
	}

	var input strings.Builder
	for _, msg := range in.Messages {
		switch msg.Role {
		case RoleSystem:
			fmt.Fprintf(&input, "System: %s\n\n", msg.Content)
		case RoleAssistant:
			fmt.Fprintf(&input, "Assistant: %s\n\n", msg.Content)
		default:
			input.WriteString(msg.Content)
			input.WriteString("\n\n")
		}
	}

	params := responses.ResponseNewParams{
		Model:           c.model,
		MaxOutputTokens: openai.Int(int64(in.MaxTokens)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(input.String())},
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("openai API error: %w", err)
	}
	if resp == nil {
		return Response{}, ErrEmptyResponse
	}

	content := resp.OutputText()
	if content == "" {
		return Response{}, ErrEmptyResponse
	}

	return Response{Content: content}, nil
}
