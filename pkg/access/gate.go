// Package access implements the access control gate: a pure decision function
// over (onboarding completeness, mode, requested handler).
//
// Denial is an expected policy outcome carried as data, never a Go error.
// Every other subsystem that gates features on onboarding completeness must
// call Decide (or ProgressView.IsComplete) rather than re-deriving the check.
package access

import (
	"fitcoach/pkg/catalog"
	"fitcoach/pkg/proto"
)

// Decide applies the five access rules in order. The rules are total and
// mutually exclusive: every input triple maps to exactly one outcome.
//
//  1. onboarding mode after completion        -> deny ALREADY_COMPLETE
//  2. onboarding mode before completion       -> allow, handler forced to the
//     current state's catalog handler (requestedHandler is ignored)
//  3. free mode before completion             -> deny ONBOARDING_REQUIRED
//  4. free mode after completion, general or
//     no handler requested                    -> allow, handler = general
//  5. free mode after completion, any other
//     specific handler requested              -> deny HANDLER_RESTRICTED
func Decide(onboardingComplete bool, mode proto.Mode, currentState int, requestedHandler proto.HandlerID) proto.AccessDecision {
	if mode == proto.ModeOnboarding {
		if onboardingComplete {
			return proto.AccessDecision{
				Allowed:      false,
				Reason:       proto.ReasonAlreadyComplete,
				RedirectHint: "onboarding finished, use free mode",
			}
		}

		handler, err := catalog.HandlerFor(currentState)
		if err != nil {
			// current_state outside the catalog means corrupted progress;
			// fail closed onto the general handler rather than panic.
			handler = proto.HandlerGeneral
		}
		return proto.AccessDecision{
			Allowed: true,
			Reason:  proto.ReasonAllowed,
			Handler: handler,
		}
	}

	// Free mode.
	if !onboardingComplete {
		return proto.AccessDecision{
			Allowed:      false,
			Reason:       proto.ReasonOnboardingRequired,
			RedirectHint: "start onboarding",
		}
	}

	if requestedHandler == "" || requestedHandler == proto.HandlerGeneral {
		return proto.AccessDecision{
			Allowed: true,
			Reason:  proto.ReasonAllowed,
			Handler: proto.HandlerGeneral,
		}
	}

	return proto.AccessDecision{
		Allowed:      false,
		Reason:       proto.ReasonHandlerRestricted,
		RedirectHint: "specialized handlers are reached through the general assistant",
	}
}
