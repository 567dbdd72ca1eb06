// Package handlers implements the specialized conversational handlers that
// turns are routed to.
package handlers

import (
	"context"
	"fmt"

	"fitcoach/pkg/llm"
	"fitcoach/pkg/logx"
	"fitcoach/pkg/proto"
	"fitcoach/pkg/usercontext"
)

// Request carries everything a handler needs for one turn.
//
//nolint:govet // struct alignment optimization not critical for this type
type Request struct {
	UserID  string
	Message string
	Mode    proto.Mode
	// State is the onboarding state this turn serves; zero in free mode.
	State int
	// Context is the cached user snapshot, possibly nil for brand-new users.
	Context *usercontext.UserContext
	// History is the conversation tail to replay into the model.
	History []llm.Message
}

// Handler produces the conversational reply for a turn, optionally asking the
// orchestrator to persist onboarding data via the result's save request.
type Handler interface {
	ID() proto.HandlerID
	Handle(ctx context.Context, req Request) (proto.HandlerResult, error)
}

// Completion limits for handler turns.
const (
	maxReplyTokens    = 1024
	replyTemperature  = 0.7
	onboardingReplies = 0.4 // lower temperature while collecting structured data
)

// LLMHandler is the common implementation behind every domain handler; they
// differ only in identity and prompt material.
type LLMHandler struct {
	id     proto.HandlerID
	client llm.Client
	logger *logx.Logger
}

// NewLLMHandler creates a handler for the given domain backed by client.
func NewLLMHandler(id proto.HandlerID, client llm.Client) *LLMHandler {
	return &LLMHandler{
		id:     id,
		client: client,
		logger: logx.NewLogger("handler-" + string(id)),
	}
}

// ID returns the handler's identity.
func (h *LLMHandler) ID() proto.HandlerID {
	return h.id
}

// Handle implements Handler.
func (h *LLMHandler) Handle(ctx context.Context, req Request) (proto.HandlerResult, error) {
	system, err := buildSystemPrompt(h.id, req)
	if err != nil {
		return proto.HandlerResult{}, fmt.Errorf("prompt build failed: %w", err)
	}

	messages := make([]llm.Message, 0, len(req.History)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})
	messages = append(messages, req.History...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: req.Message})

	temperature := replyTemperature
	if req.Mode == proto.ModeOnboarding {
		temperature = onboardingReplies
	}

	resp, err := h.client.Complete(ctx, llm.Request{
		Messages:    messages,
		MaxTokens:   maxReplyTokens,
		Temperature: temperature,
	})
	if err != nil {
		return proto.HandlerResult{}, fmt.Errorf("handler %s completion failed: %w", h.id, err)
	}

	content, save := extractSaveRequest(resp.Content)
	if save != nil {
		h.logger.Debug("handler %s emitted save request for state %d", h.id, save.State)
	}

	return proto.HandlerResult{Content: content, Save: save}, nil
}

// Registry resolves handler identities to handler instances. Resolution is
// total: unknown or empty identities resolve to the general handler.
type Registry struct {
	handlers map[proto.HandlerID]Handler
	general  Handler
}

// NewRegistry builds the closed handler set over a shared model client.
func NewRegistry(client llm.Client) *Registry {
	handlers := make(map[proto.HandlerID]Handler, len(proto.AllHandlers()))
	for _, id := range proto.AllHandlers() {
		handlers[id] = NewLLMHandler(id, client)
	}
	return &Registry{
		handlers: handlers,
		general:  handlers[proto.HandlerGeneral],
	}
}

// Get resolves a handler identity, falling back to the general handler.
func (r *Registry) Get(id proto.HandlerID) Handler {
	if handler, ok := r.handlers[id]; ok {
		return handler
	}
	return r.general
}
