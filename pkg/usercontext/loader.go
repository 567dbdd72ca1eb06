package usercontext

import (
	"context"
	"fmt"

	"fitcoach/pkg/catalog"
	"fitcoach/pkg/persistence"
)

// ProgressGetter is the slice of the progress store the loader reads from.
type ProgressGetter interface {
	Get(userID string) (*persistence.OnboardingProgress, error)
}

// NewProgressLoader builds a Loader over the progress store: completed-state
// payloads become the profile, keyed by state name, and a plan summary is
// rendered once onboarding is done.
func NewProgressLoader(store ProgressGetter) Loader {
	return func(_ context.Context, userID string) (*UserContext, error) {
		progress, err := store.Get(userID)
		if err != nil {
			return nil, err
		}

		profile := make(map[string]map[string]any, len(progress.CompletedStateData))
		for state, payload := range progress.CompletedStateData {
			info, err := catalog.Describe(state)
			if err != nil {
				// Stored state outside the catalog: skip rather than fail
				// the whole load.
				continue
			}
			profile[info.Name] = payload
		}

		uc := &UserContext{
			UserID:  userID,
			Profile: profile,
		}
		if progress.IsComplete {
			uc.PlanSummary = planSummary(profile)
		}
		return uc, nil
	}
}

// planSummary renders a one-line plan description from the collected profile.
func planSummary(profile map[string]map[string]any) string {
	goal := "general_fitness"
	if p, ok := profile["primary_goal"]; ok {
		if g, ok := p["primary_goal"].(string); ok {
			goal = g
		}
	}
	days := any(nil)
	if p, ok := profile["workout_preferences"]; ok {
		days = p["days_per_week"]
	}
	if days != nil {
		return fmt.Sprintf("goal: %s, training %v days/week", goal, days)
	}
	return fmt.Sprintf("goal: %s", goal)
}
