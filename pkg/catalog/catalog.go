// Package catalog is the static registry of the ordered onboarding states.
//
// The catalog is immutable after process start and requires no locking. States
// are numbered 1..TotalStates with no gaps; progress-percentage and next-state
// logic depend on that contiguity.
package catalog

import (
	"errors"
	"fmt"

	"fitcoach/pkg/proto"
)

// ErrUnknownState is returned for state numbers outside [1, TotalStates].
var ErrUnknownState = errors.New("unknown onboarding state")

// StateInfo describes one onboarding state.
type StateInfo struct {
	Number         int             `json:"number"`
	Name           string          `json:"name"`
	HandlerID      proto.HandlerID `json:"handler_id"`
	Description    string          `json:"description"`
	RequiredFields []string        `json:"required_fields"`
}

// states is the fixed onboarding sequence. Field order within RequiredFields
// is the validation order; validators report the first failing field in this
// order, so reordering entries changes user-visible error messages.
//
//nolint:gochecknoglobals // Immutable state registry, loaded once
var states = []StateInfo{
	{
		Number:         1,
		Name:           "basic_profile",
		HandlerID:      proto.HandlerGeneral,
		Description:    "Basic physical profile: age, sex, height, and weight",
		RequiredFields: []string{"age", "sex", "height_cm", "weight_kg"},
	},
	{
		Number:         2,
		Name:           "fitness_level",
		HandlerID:      proto.HandlerGeneral,
		Description:    "Self-assessed training experience",
		RequiredFields: []string{"fitness_level"},
	},
	{
		Number:         3,
		Name:           "primary_goal",
		HandlerID:      proto.HandlerGeneral,
		Description:    "The primary training goal driving the plan",
		RequiredFields: []string{"primary_goal", "target_weight_kg"},
	},
	{
		Number:         4,
		Name:           "workout_preferences",
		HandlerID:      proto.HandlerWorkout,
		Description:    "Preferred training style, frequency, and equipment",
		RequiredFields: []string{"days_per_week", "session_minutes", "training_styles", "equipment"},
	},
	{
		Number:         5,
		Name:           "workout_limitations",
		HandlerID:      proto.HandlerWorkout,
		Description:    "Injuries and movement restrictions to plan around",
		RequiredFields: []string{"has_limitations", "limitations"},
	},
	{
		Number:         6,
		Name:           "diet_preferences",
		HandlerID:      proto.HandlerDiet,
		Description:    "Diet type, allergies, and target macro split",
		RequiredFields: []string{"diet_type", "allergies", "protein_pct", "carbs_pct", "fat_pct"},
	},
	{
		Number:         7,
		Name:           "meal_schedule",
		HandlerID:      proto.HandlerDiet,
		Description:    "Meals per day and eating window",
		RequiredFields: []string{"meals_per_day", "first_meal_hour", "last_meal_hour"},
	},
	{
		Number:         8,
		Name:           "weekly_schedule",
		HandlerID:      proto.HandlerScheduling,
		Description:    "Weekly availability for training sessions",
		RequiredFields: []string{"timezone", "available_days"},
	},
	{
		Number:         9,
		Name:           "supplement_preferences",
		HandlerID:      proto.HandlerSupplement,
		Description:    "Current supplements and openness to recommendations",
		RequiredFields: []string{"current_supplements", "open_to_recommendations"},
	},
}

// TotalStates returns N, the number of onboarding states.
func TotalStates() int {
	return len(states)
}

// Describe returns the state info for the given state number.
func Describe(stateNumber int) (StateInfo, error) {
	if stateNumber < 1 || stateNumber > len(states) {
		return StateInfo{}, fmt.Errorf("%w: %d (valid range 1..%d)", ErrUnknownState, stateNumber, len(states))
	}
	return states[stateNumber-1], nil
}

// Next returns the state following stateNumber, or ok=false at the end of the
// sequence.
func Next(stateNumber int) (next int, ok bool, err error) {
	if stateNumber < 1 || stateNumber > len(states) {
		return 0, false, fmt.Errorf("%w: %d (valid range 1..%d)", ErrUnknownState, stateNumber, len(states))
	}
	if stateNumber == len(states) {
		return 0, false, nil
	}
	return stateNumber + 1, true, nil
}

// HandlerFor resolves the owning handler for a state number.
func HandlerFor(stateNumber int) (proto.HandlerID, error) {
	info, err := Describe(stateNumber)
	if err != nil {
		return "", err
	}
	return info.HandlerID, nil
}

// All returns a copy of the full state sequence, in order.
func All() []StateInfo {
	out := make([]StateInfo, len(states))
	copy(out, states)
	return out
}
