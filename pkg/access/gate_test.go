package access

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fitcoach/pkg/proto"
)

func TestDecideOnboardingIncomplete(t *testing.T) {
	decision := Decide(false, proto.ModeOnboarding, 4, "")

	assert.True(t, decision.Allowed)
	assert.Equal(t, proto.ReasonAllowed, decision.Reason)
	assert.Equal(t, proto.HandlerWorkout, decision.Handler, "handler must be forced to the current state's handler")
}

func TestDecideOnboardingIgnoresRequestedHandler(t *testing.T) {
	// A requested handler in onboarding mode is ignored outright.
	decision := Decide(false, proto.ModeOnboarding, 6, proto.HandlerSupplement)

	assert.True(t, decision.Allowed)
	assert.Equal(t, proto.HandlerDiet, decision.Handler)
}

func TestDecideOnboardingAlreadyComplete(t *testing.T) {
	decision := Decide(true, proto.ModeOnboarding, 10, "")

	assert.False(t, decision.Allowed)
	assert.Equal(t, proto.ReasonAlreadyComplete, decision.Reason)
}

func TestDecideFreeRequiresOnboarding(t *testing.T) {
	decision := Decide(false, proto.ModeFree, 1, "")

	assert.False(t, decision.Allowed)
	assert.Equal(t, proto.ReasonOnboardingRequired, decision.Reason)
	assert.Equal(t, "start onboarding", decision.RedirectHint)
}

func TestDecideFreeGeneralAllowed(t *testing.T) {
	for _, requested := range []proto.HandlerID{"", proto.HandlerGeneral} {
		decision := Decide(true, proto.ModeFree, 10, requested)

		assert.True(t, decision.Allowed, "requested=%q", requested)
		assert.Equal(t, proto.HandlerGeneral, decision.Handler)
	}
}

func TestDecideFreeSpecificHandlerRestricted(t *testing.T) {
	decision := Decide(true, proto.ModeFree, 10, proto.HandlerWorkout)

	assert.False(t, decision.Allowed)
	assert.Equal(t, proto.ReasonHandlerRestricted, decision.Reason)
}

// TestDecideTotality crosses every (complete, mode) pair with requested
// handler unset/general/other and checks each triple maps to exactly one of
// the five defined outcomes.
func TestDecideTotality(t *testing.T) {
	outcomes := map[proto.AccessReason]bool{
		proto.ReasonAllowed:            true,
		proto.ReasonAlreadyComplete:    true,
		proto.ReasonOnboardingRequired: true,
		proto.ReasonHandlerRestricted:  true,
	}

	for _, complete := range []bool{false, true} {
		for _, mode := range []proto.Mode{proto.ModeOnboarding, proto.ModeFree} {
			for _, requested := range []proto.HandlerID{"", proto.HandlerGeneral, proto.HandlerDiet} {
				decision := Decide(complete, mode, 1, requested)

				assert.True(t, outcomes[decision.Reason],
					"complete=%v mode=%s requested=%q produced unknown reason %q",
					complete, mode, requested, decision.Reason)
				if decision.Allowed {
					assert.Equal(t, proto.ReasonAllowed, decision.Reason)
					assert.NotEmpty(t, decision.Handler, "allowed decisions must carry a handler")
				} else {
					assert.NotEqual(t, proto.ReasonAllowed, decision.Reason)
				}
			}
		}
	}
}
