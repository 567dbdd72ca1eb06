// Package llm defines the chat-completion client interface and its provider
// implementations.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrEmptyResponse indicates the provider returned no usable content.
var ErrEmptyResponse = errors.New("empty response from model")

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a provider-neutral completion request.
//
//nolint:govet // struct alignment optimization not critical for this type
type Request struct {
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

// Response is the provider-neutral completion result.
type Response struct {
	Content string `json:"content"`
}

// Client is the interface every model backend implements.
type Client interface {
	// Complete sends a completion request and blocks until the full
	// response is available.
	Complete(ctx context.Context, in Request) (Response, error)
	// GetModelName returns the model identifier this client targets.
	GetModelName() string
}

// Provider names accepted by NewClient.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
)

// NewClient constructs a client for the named provider. host is only used by
// the ollama provider.
func NewClient(provider, apiKey, model, host string) (Client, error) {
	switch provider {
	case ProviderAnthropic:
		if apiKey == "" {
			return nil, fmt.Errorf("anthropic provider requires an API key")
		}
		return NewAnthropicClient(apiKey, model), nil
	case ProviderOpenAI:
		if apiKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key")
		}
		return NewOpenAIClient(apiKey, model), nil
	case ProviderOllama:
		return NewOllamaClient(host, model), nil
	default:
		return nil, fmt.Errorf("unknown model provider: %q", provider)
	}
}
