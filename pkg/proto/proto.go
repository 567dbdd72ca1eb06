// Package proto defines the shared domain protocol for the onboarding engine:
// handler identities, interaction modes, access decisions, and the save-request
// contract between handlers and the orchestrator.
package proto

import "fmt"

// HandlerID identifies one of the specialized conversational handlers.
// The set is closed: adding a handler is a compile-time change, not a runtime
// registry mutation.
type HandlerID string

const (
	HandlerWorkout    HandlerID = "workout"
	HandlerDiet       HandlerID = "diet"
	HandlerScheduling HandlerID = "scheduling"
	HandlerSupplement HandlerID = "supplement"
	HandlerGeneral    HandlerID = "general"
)

// AllHandlers returns every known handler identity.
func AllHandlers() []HandlerID {
	return []HandlerID{
		HandlerWorkout,
		HandlerDiet,
		HandlerScheduling,
		HandlerSupplement,
		HandlerGeneral,
	}
}

// IsValidHandler checks whether id names a known handler.
func IsValidHandler(id HandlerID) bool {
	for _, h := range AllHandlers() {
		if h == id {
			return true
		}
	}
	return false
}

func (h HandlerID) String() string {
	return string(h)
}

// Mode selects how a turn resolves its handler.
type Mode string

const (
	// ModeOnboarding routes to the current onboarding state's handler.
	ModeOnboarding Mode = "onboarding"
	// ModeFree routes via the classifier, restricted to the general handler.
	ModeFree Mode = "free"
)

func (m Mode) String() string {
	return string(m)
}

// AccessReason is the machine-readable outcome of an access decision.
type AccessReason string

const (
	ReasonAllowed            AccessReason = "ALLOWED"
	ReasonAlreadyComplete    AccessReason = "ALREADY_COMPLETE"
	ReasonOnboardingRequired AccessReason = "ONBOARDING_REQUIRED"
	ReasonHandlerRestricted  AccessReason = "HANDLER_RESTRICTED"
)

// AccessDecision is produced fresh per request by the access gate. It is a
// value, never persisted, and denial is an expected outcome rather than an
// error (policy results travel the success channel).
type AccessDecision struct {
	Allowed      bool         `json:"allowed"`
	Reason       AccessReason `json:"reason"`
	Handler      HandlerID    `json:"handler,omitempty"`
	RedirectHint string       `json:"redirect_hint,omitempty"`
}

// SaveRequest is a handler's request to persist data for an onboarding state.
type SaveRequest struct {
	State   int            `json:"state"`
	Payload map[string]any `json:"payload"`
}

// HandlerResult is what a handler invocation returns to the orchestrator:
// conversational content plus an optional state-save side-effect request.
type HandlerResult struct {
	Content string       `json:"content"`
	Save    *SaveRequest `json:"save,omitempty"`
}

// Validate checks structural sanity of a save request before it reaches the
// validator set.
func (s *SaveRequest) Validate() error {
	if s.State < 1 {
		return fmt.Errorf("save request state must be >= 1, got %d", s.State)
	}
	if s.Payload == nil {
		return fmt.Errorf("save request payload cannot be nil")
	}
	return nil
}
