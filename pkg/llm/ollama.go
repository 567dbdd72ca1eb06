package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
)

// OllamaClient implements Client over a local Ollama server, for running
// open-source models without an external API key.
type OllamaClient struct {
	client *api.Client
	model  string
}

// NewOllamaClient creates a client for the given model. host defaults to the
// standard local Ollama address when empty or unparsable.
func NewOllamaClient(host, model string) *OllamaClient {
	if host == "" {
		host = "http://localhost:11434"
	}
	parsedURL, err := url.Parse(host)
	if err != nil {
		parsedURL, _ = url.Parse("http://localhost:11434")
	}

	return &OllamaClient{
		client: api.NewClient(parsedURL, http.DefaultClient),
		model:  model,
	}
}

// GetModelName returns the model identifier.
func (c *OllamaClient) GetModelName() string {
	return c.model
}

// Complete implements Client.
func (c *OllamaClient) Complete(ctx context.Context, in Request) (Response, error) {
	if len(in.Messages) == 0 {
		return Response{}, fmt.Errorf("message list cannot be empty")
	}

	messages := make([]api.Message, 0, len(in.Messages))
	for _, msg := range in.Messages {
		messages = append(messages, api.Message{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	stream := false
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": in.Temperature,
			"num_predict": in.MaxTokens,
		},
	}

	var response api.ChatResponse
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return Response{}, fmt.Errorf("ollama API error: %w", err)
	}
	if response.Message.Content == "" {
		return Response{}, ErrEmptyResponse
	}

	return Response{Content: response.Message.Content}, nil
}
