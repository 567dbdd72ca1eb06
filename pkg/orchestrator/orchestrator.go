// Package orchestrator ties the onboarding engine together: it resolves access
// and routing for each conversational turn, invokes the chosen handler, and
// funnels any resulting data save through validation into the progress store.
package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"fitcoach/pkg/access"
	"fitcoach/pkg/classify"
	"fitcoach/pkg/handlers"
	"fitcoach/pkg/llm"
	"fitcoach/pkg/logx"
	"fitcoach/pkg/metrics"
	"fitcoach/pkg/persistence"
	"fitcoach/pkg/proto"
	"fitcoach/pkg/usercontext"
	"fitcoach/pkg/validate"
)

// ProgressStore is the persistence surface the orchestrator needs.
type ProgressStore interface {
	Get(userID string) (*persistence.OnboardingProgress, error)
	RecordCompletion(userID string, stateNumber int, validatedPayload map[string]any, handlerID proto.HandlerID) (*persistence.OnboardingProgress, error)
}

// HandlerRegistry resolves handler identities; resolution is total.
type HandlerRegistry interface {
	Get(id proto.HandlerID) handlers.Handler
}

// TurnRequest is one conversational turn.
//
//nolint:govet // struct alignment optimization not critical for this type
type TurnRequest struct {
	UserID  string     `json:"user_id"`
	Message string     `json:"message"`
	Mode    proto.Mode `json:"mode"`
	// RequestedHandler is an optional explicit routing request; only honored
	// in free mode, and only for the general handler.
	RequestedHandler proto.HandlerID `json:"requested_handler,omitempty"`
	// UseCache opts into the cached-context path. Voice callers set it; text
	// callers reload fresh context every turn.
	UseCache bool `json:"use_cache"`
	// SessionID scopes classifier memoization on the voice path. Memoized
	// prefixes never cross sessions and are discarded with the session; voice
	// turns without a session ID classify fresh.
	SessionID string `json:"session_id,omitempty"`
}

// TurnResult is what transports render back to the user. Access denials and
// validation failures are carried here as data, not as Go errors.
//
//nolint:govet // struct alignment optimization not critical for this type
type TurnResult struct {
	Content   string          `json:"content"`
	HandlerID proto.HandlerID `json:"handler_id,omitempty"`
	// StateAdvanced is true iff current_state strictly increased this turn.
	StateAdvanced bool `json:"state_advanced"`
	NewState      int  `json:"new_state,omitempty"`

	Access          proto.AccessDecision     `json:"access"`
	Progress        persistence.ProgressView `json:"progress"`
	ValidationError *validate.FieldError     `json:"validation_error,omitempty"`
}

// Turn outcomes for metrics.
const (
	outcomeOK               = "ok"
	outcomeDenied           = "denied"
	outcomeValidationFailed = "validation_failed"
	outcomeError            = "error"
)

// Orchestrator coordinates one turn end to end. It performs no CPU-heavy work
// itself; context loads, the model call, and the store write are the only
// blocking points, so a turn is cancellable at each I/O boundary.
type Orchestrator struct {
	store         ProgressStore
	registry      HandlerRegistry
	cache         *usercontext.Cache
	loader        usercontext.Loader
	classifier    classify.Classifier
	memoCapacity  int
	tokens        *usercontext.TokenCounter
	historyBudget int
	recorder      *metrics.Recorder
	logger        *logx.Logger

	// Voice-session classifier memos, one table per session ID. FIFO-bounded
	// so abandoned sessions cannot accumulate forever.
	sessionsMu   sync.Mutex
	sessionMemos map[string]*classify.Memoized
	sessionOrder []string
}

// maxTrackedSessions bounds the number of live voice-session memo tables.
const maxTrackedSessions = 256

// Options configures an Orchestrator.
//
//nolint:govet // struct alignment optimization not critical for this type
type Options struct {
	Store    ProgressStore
	Registry HandlerRegistry
	Cache    *usercontext.Cache
	Loader   usercontext.Loader
	// Classifier routes free-mode turns; a memoized wrapper is derived from
	// it per voice session.
	Classifier classify.Classifier
	// ClassifierMemoCapacity bounds each voice session's memo table.
	ClassifierMemoCapacity int
	// HistoryTokenBudget bounds conversation history fed into prompts.
	HistoryTokenBudget int
	// Recorder is optional; nil disables metrics.
	Recorder *metrics.Recorder
}

// New creates an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("progress store is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("handler registry is required")
	}
	if opts.Loader == nil {
		return nil, fmt.Errorf("context loader is required")
	}

	classifier := opts.Classifier
	if classifier == nil {
		classifier = classify.NewKeywordClassifier()
	}
	cache := opts.Cache
	if cache == nil {
		cache = usercontext.NewCache(usercontext.DefaultTTL)
	}
	budget := opts.HistoryTokenBudget
	if budget <= 0 {
		budget = 2048
	}

	// Token counting degrades to a length estimate if the codec fails.
	tokens, err := usercontext.NewTokenCounter()
	if err != nil {
		tokens = nil
	}

	if opts.Recorder != nil {
		cache.SetRecorder(opts.Recorder)
	}

	return &Orchestrator{
		store:         opts.Store,
		registry:      opts.Registry,
		cache:         cache,
		loader:        opts.Loader,
		classifier:    classifier,
		memoCapacity:  opts.ClassifierMemoCapacity,
		tokens:        tokens,
		historyBudget: budget,
		recorder:      opts.Recorder,
		logger:        logx.NewLogger("orchestrator"),
		sessionMemos:  make(map[string]*classify.Memoized),
	}, nil
}

// sessionClassifier returns the classifier for a voice turn. Each session gets
// its own memo table, so a cached prefix classification can never leak into a
// different session's turn; an empty session ID classifies fresh.
func (o *Orchestrator) sessionClassifier(sessionID string) classify.Classifier {
	if sessionID == "" {
		return o.classifier
	}

	o.sessionsMu.Lock()
	defer o.sessionsMu.Unlock()

	if memo, ok := o.sessionMemos[sessionID]; ok {
		return memo
	}
	if len(o.sessionOrder) >= maxTrackedSessions {
		oldest := o.sessionOrder[0]
		o.sessionOrder = o.sessionOrder[1:]
		delete(o.sessionMemos, oldest)
	}
	memo := classify.NewMemoized(o.classifier, o.memoCapacity)
	o.sessionMemos[sessionID] = memo
	o.sessionOrder = append(o.sessionOrder, sessionID)
	return memo
}

// EndSession discards a voice session's memoized classifications. Safe to call
// for unknown sessions.
func (o *Orchestrator) EndSession(sessionID string) {
	o.sessionsMu.Lock()
	defer o.sessionsMu.Unlock()

	if _, ok := o.sessionMemos[sessionID]; !ok {
		return
	}
	delete(o.sessionMemos, sessionID)
	for i, id := range o.sessionOrder {
		if id == sessionID {
			o.sessionOrder = append(o.sessionOrder[:i], o.sessionOrder[i+1:]...)
			break
		}
	}
}

// HandleTurn runs one turn:
//
//  1. load the user's progress
//  2. determine onboarding completeness
//  3. access gate (denial returns before any side effect)
//  4. resolve the handler (catalog in onboarding, classifier in free mode)
//  5. obtain user context (cache for voice callers, fresh load otherwise)
//  6. invoke the handler
//  7. route any save request through validation into the store
//  8. assemble the result with progress arithmetic
func (o *Orchestrator) HandleTurn(ctx context.Context, req TurnRequest) (TurnResult, error) {
	start := time.Now()

	result, err := o.handleTurn(ctx, req)

	if o.recorder != nil {
		outcome := outcomeOK
		switch {
		case err != nil:
			outcome = outcomeError
		case !result.Access.Allowed:
			outcome = outcomeDenied
		case result.ValidationError != nil:
			outcome = outcomeValidationFailed
		}
		o.recorder.ObserveTurn(string(req.Mode), string(result.HandlerID), outcome, time.Since(start))
	}

	return result, err
}

func (o *Orchestrator) handleTurn(ctx context.Context, req TurnRequest) (TurnResult, error) {
	if req.UserID == "" {
		return TurnResult{}, fmt.Errorf("turn request missing user ID")
	}

	// Steps 1-2: load progress and completeness.
	progress, err := o.store.Get(req.UserID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("progress load failed: %w", err)
	}
	preState := progress.CurrentState

	// Step 3: access gate. A denial is a result, and nothing has been
	// mutated or invoked at this point.
	decision := access.Decide(progress.IsComplete, req.Mode, progress.CurrentState, req.RequestedHandler)
	if !decision.Allowed {
		if o.recorder != nil {
			o.recorder.IncDenial(string(decision.Reason))
		}
		o.logger.Debug("turn denied for %s: %s", req.UserID, decision.Reason)
		return TurnResult{
			Access:   decision,
			Progress: persistence.ComputeProgressView(progress),
			NewState: progress.CurrentState,
		}, nil
	}

	// Step 4: resolve the handler. Onboarding turns use the gate-fixed
	// catalog handler; free turns with no explicit request go through the
	// classifier, memoized only on the voice path.
	handlerID := decision.Handler
	if req.Mode == proto.ModeFree && req.RequestedHandler == "" {
		if req.UseCache {
			handlerID = o.sessionClassifier(req.SessionID).Classify(req.Message)
		} else {
			handlerID = o.classifier.Classify(req.Message)
		}
	}

	// Step 5: user context. Voice callers accept a bounded staleness window
	// in exchange for skipping the load.
	var userCtx *usercontext.UserContext
	if req.UseCache {
		userCtx, err = o.cache.GetOrLoad(ctx, req.UserID, o.loader)
	} else {
		userCtx, err = o.loader(ctx, req.UserID)
		if err != nil {
			err = fmt.Errorf("%w: user %s: %w", usercontext.ErrContextLoad, req.UserID, err)
		}
	}
	if err != nil {
		return TurnResult{}, fmt.Errorf("context load failed: %w", err)
	}

	// Step 6: invoke the handler.
	handler := o.registry.Get(handlerID)
	handlerResult, err := handler.Handle(ctx, handlers.Request{
		UserID:  req.UserID,
		Message: req.Message,
		Mode:    req.Mode,
		State:   progress.CurrentState,
		Context: userCtx,
		History: o.conversationHistory(userCtx),
	})
	if err != nil {
		return TurnResult{}, fmt.Errorf("handler %s failed: %w", handlerID, err)
	}

	result := TurnResult{
		Content:   handlerResult.Content,
		HandlerID: handlerID,
		Access:    decision,
	}

	// Step 7: persist a requested save through validation. Only onboarding
	// turns may write progress.
	if handlerResult.Save != nil && req.Mode == proto.ModeOnboarding {
		progress, result.ValidationError, err = o.applySave(req.UserID, progress, handlerResult.Save, handlerID)
		if err != nil {
			return TurnResult{}, err
		}
	}

	// Step 8: progress arithmetic against the pre-turn state.
	result.StateAdvanced = progress.CurrentState > preState
	result.NewState = progress.CurrentState
	result.Progress = persistence.ComputeProgressView(progress)

	return result, nil
}

// applySave validates and persists a handler's save request. A validation
// failure comes back as a field error value with state untouched; skip-ahead
// saves are dropped outright.
func (o *Orchestrator) applySave(userID string, progress *persistence.OnboardingProgress, save *proto.SaveRequest, handlerID proto.HandlerID) (*persistence.OnboardingProgress, *validate.FieldError, error) {
	if save.State > progress.CurrentState {
		// Handlers cannot complete states ahead of the user's position.
		o.logger.Warn("dropping skip-ahead save for %s: state %d ahead of %d", userID, save.State, progress.CurrentState)
		return progress, nil, nil
	}

	validated, fieldErr, err := validate.Validate(save.State, save.Payload)
	if err != nil {
		return nil, nil, fmt.Errorf("save validation failed: %w", err)
	}
	if fieldErr != nil {
		if o.recorder != nil {
			o.recorder.IncValidationFailure(strconv.Itoa(save.State), fieldErr.Field)
		}
		o.logger.Debug("validation rejected state %d for %s: %s", save.State, userID, fieldErr.Field)
		return progress, fieldErr, nil
	}

	// Stale saves for already-completed states land here too; the store
	// treats them as a success no-op.
	updated, err := o.store.RecordCompletion(userID, save.State, validated, handlerID)
	if err != nil {
		return nil, nil, fmt.Errorf("record completion failed: %w", err)
	}

	if updated.CurrentState > progress.CurrentState {
		if o.recorder != nil {
			o.recorder.IncCompletion(strconv.Itoa(save.State), string(handlerID))
		}
		o.logger.Info("user %s completed state %d, now at %d", userID, save.State, updated.CurrentState)
	}

	// The cached snapshot is stale the moment progress changes.
	o.cache.Invalidate(userID)

	return updated, nil, nil
}

// conversationHistory trims the cached conversation tail to the token budget.
func (o *Orchestrator) conversationHistory(userCtx *usercontext.UserContext) []llm.Message {
	if userCtx == nil || len(userCtx.RecentConversation) == 0 {
		return nil
	}

	recent := userCtx.RecentConversation
	if o.tokens != nil {
		recent = o.tokens.TrimConversation(recent, o.historyBudget)
	}

	history := make([]llm.Message, 0, len(recent))
	for _, msg := range recent {
		history = append(history, llm.Message{Role: msg.Role, Content: msg.Content})
	}
	return history
}
