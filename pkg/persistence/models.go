package persistence

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"fitcoach/pkg/proto"
)

// ErrNotFound indicates a user has no onboarding progress record. Progress
// records are created at user provisioning, so a miss here points at an
// upstream provisioning bug, not a normal empty state.
var ErrNotFound = errors.New("onboarding progress not found")

// OnboardingProgress is the durable per-user onboarding record.
//
//nolint:govet // struct alignment optimization not critical for this type
type OnboardingProgress struct {
	UserID string `json:"user_id"`
	// CurrentState is the lowest-numbered state with no completed entry, or
	// TotalStates+1 once complete. Monotonically non-decreasing.
	CurrentState int `json:"current_state"`
	// CompletedStateData maps state number to its validated payload. A state
	// is completed iff present as a key.
	CompletedStateData map[int]map[string]any `json:"completed_state_data"`
	// RoutingHistory is append-only, chronological.
	RoutingHistory []RoutingEntry `json:"routing_history"`
	IsComplete     bool           `json:"is_complete"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Completed reports whether the given state has a completed-data entry.
func (p *OnboardingProgress) Completed(state int) bool {
	_, ok := p.CompletedStateData[state]
	return ok
}

// RoutingEntry records which handler touched which state, and when.
type RoutingEntry struct {
	ID        string          `json:"id"`
	State     int             `json:"state"`
	HandlerID proto.HandlerID `json:"handler_id"`
	Timestamp time.Time       `json:"timestamp"`
}

// ProgressView is the derived, caller-facing progress snapshot. It carries no
// independent state: it is computed from OnboardingProgress plus the catalog.
//
//nolint:govet // struct alignment optimization not critical for this type
type ProgressView struct {
	CurrentState         int   `json:"current_state"`
	TotalStates          int   `json:"total_states"`
	CompletedStates      []int `json:"completed_states"` // sorted ascending
	CompletionPercentage int   `json:"completion_percentage"`
	IsComplete           bool  `json:"is_complete"`
	// CanComplete is true when exactly one state remains.
	CanComplete bool `json:"can_complete"`
}

// GenerateRoutingEntryID generates a new UUID for a routing history row.
func GenerateRoutingEntryID() string {
	return uuid.New().String()
}
