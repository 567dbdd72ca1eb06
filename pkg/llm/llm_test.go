package llm

import (
	"testing"
)

func TestEnsureAlternationExtractsSystem(t *testing.T) {
	system, messages, err := ensureAlternation([]Message{
		{Role: RoleSystem, Content: "You are a fitness coach."},
		{Role: RoleUser, Content: "hello"},
	})
	if err != nil {
		t.Fatalf("ensureAlternation failed: %v", err)
	}
	if system != "You are a fitness coach." {
		t.Errorf("System prompt not extracted: %q", system)
	}
	if len(messages) != 1 || messages[0].Role != RoleUser {
		t.Errorf("Expected single user message, got %+v", messages)
	}
}

func TestEnsureAlternationMergesConsecutiveUser(t *testing.T) {
	_, messages, err := ensureAlternation([]Message{
		{Role: RoleUser, Content: "part one"},
		{Role: RoleUser, Content: "part two"},
		{Role: RoleAssistant, Content: "reply"},
		{Role: RoleUser, Content: "part three"},
	})
	if err != nil {
		t.Fatalf("ensureAlternation failed: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("Expected 3 messages after merge, got %d", len(messages))
	}
	if messages[0].Content != "part one\n\npart two" {
		t.Errorf("Consecutive user messages not merged: %q", messages[0].Content)
	}
	for i, msg := range messages {
		if i > 0 && msg.Role == messages[i-1].Role {
			t.Errorf("Alternation broken at index %d", i)
		}
	}
}

func TestEnsureAlternationRejectsBadSequences(t *testing.T) {
	cases := []struct {
		name     string
		messages []Message
	}{
		{"empty", nil},
		{"system only", []Message{{Role: RoleSystem, Content: "x"}}},
		{"ends with assistant", []Message{
			{Role: RoleUser, Content: "hi"},
			{Role: RoleAssistant, Content: "hello"},
		}},
		{"starts with assistant", []Message{
			{Role: RoleAssistant, Content: "hello"},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := ensureAlternation(tc.messages); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestNewClientProviders(t *testing.T) {
	client, err := NewClient(ProviderAnthropic, "test-key", "claude-sonnet-4-20250514", "")
	if err != nil {
		t.Fatalf("NewClient anthropic failed: %v", err)
	}
	if client.GetModelName() != "claude-sonnet-4-20250514" {
		t.Errorf("Model mismatch: %s", client.GetModelName())
	}

	client, err = NewClient(ProviderOpenAI, "test-key", "gpt-4o", "")
	if err != nil {
		t.Fatalf("NewClient openai failed: %v", err)
	}
	if client.GetModelName() != "gpt-4o" {
		t.Errorf("Model mismatch: %s", client.GetModelName())
	}

	client, err = NewClient(ProviderOllama, "", "llama3.2", "http://localhost:11434")
	if err != nil {
		t.Fatalf("NewClient ollama failed: %v", err)
	}
	if client.GetModelName() != "llama3.2" {
		t.Errorf("Model mismatch: %s", client.GetModelName())
	}
}

func TestNewClientRejectsMissingKey(t *testing.T) {
	for _, provider := range []string{ProviderAnthropic, ProviderOpenAI} {
		if _, err := NewClient(provider, "", "model", ""); err == nil {
			t.Errorf("Provider %s must require an API key", provider)
		}
	}
}

func TestNewClientUnknownProvider(t *testing.T) {
	if _, err := NewClient("cohere", "key", "model", ""); err == nil {
		t.Error("Expected error for unknown provider")
	}
}
