package usercontext

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter provides tokenizer-backed counting for conversation budgeting.
// All supported chat models are close enough to GPT-4 encoding for budget
// purposes.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter creates a counter using the GPT-4 encoding.
func NewTokenCounter() (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec: %w", err)
	}
	return &TokenCounter{codec: codec}, nil
}

// Count returns the number of tokens in text, falling back to a 4-chars-per-
// token estimate if the codec is unavailable.
func (tc *TokenCounter) Count(text string) int {
	if tc == nil || tc.codec == nil {
		return len(text) / 4
	}
	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// TrimConversation drops the oldest messages until the conversation fits the
// token budget. The most recent message always survives even if it alone
// exceeds the budget.
func (tc *TokenCounter) TrimConversation(messages []Message, budget int) []Message {
	if len(messages) == 0 || budget <= 0 {
		return nil
	}

	total := 0
	counts := make([]int, len(messages))
	for i, msg := range messages {
		counts[i] = tc.Count(msg.Role) + tc.Count(msg.Content)
		total += counts[i]
	}

	start := 0
	for total > budget && start < len(messages)-1 {
		total -= counts[start]
		start++
	}

	out := make([]Message, len(messages)-start)
	copy(out, messages[start:])
	return out
}
