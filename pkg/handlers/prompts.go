package handlers

import (
	"encoding/json"
	"fmt"
	"strings"

	"fitcoach/pkg/catalog"
	"fitcoach/pkg/proto"
)

// Domain personas. The shared preamble keeps tone consistent across handlers.
//
//nolint:gochecknoglobals // Immutable prompt material
var personas = map[proto.HandlerID]string{
	proto.HandlerWorkout:    "You are the training specialist of a fitness coaching service. You design and adjust workout programming: exercise selection, volume, intensity, and recovery.",
	proto.HandlerDiet:       "You are the nutrition specialist of a fitness coaching service. You advise on diet structure, macros, meal timing, and food choices.",
	proto.HandlerScheduling: "You are the scheduling assistant of a fitness coaching service. You manage weekly training availability and session timing.",
	proto.HandlerSupplement: "You are the supplement advisor of a fitness coaching service. You give evidence-based guidance on supplements; you never give medical advice.",
	proto.HandlerGeneral:    "You are the general coach of a fitness coaching service. You answer broad fitness questions and guide users through getting set up.",
}

const preamble = "Be concise, encouraging, and practical. Ask one question at a time. Never invent data the user has not given you."

// saveInstructions tells the model how to hand structured data back. The
// fenced block is stripped from the reply before it reaches the user.
const saveInstructions = `When, and only when, the user has provided every required field for the current step, append a fenced JSON block to your reply in exactly this form:

` + "```json" + `
{"state": %d, "payload": {%s}}
` + "```" + `

Use the field names exactly as listed. If any field is still missing, ask for it instead of emitting the block.`

// buildSystemPrompt assembles the system prompt for a turn: persona, user
// snapshot, and (in onboarding mode) the current step's data contract.
func buildSystemPrompt(id proto.HandlerID, req Request) (string, error) {
	persona, ok := personas[id]
	if !ok {
		persona = personas[proto.HandlerGeneral]
	}

	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\n")
	b.WriteString(preamble)

	if req.Context != nil {
		if summary := profileSummary(req.Context.Profile); summary != "" {
			b.WriteString("\n\nWhat you already know about this user:\n")
			b.WriteString(summary)
		}
		if req.Context.PlanSummary != "" {
			b.WriteString("\n\nTheir current plan:\n")
			b.WriteString(req.Context.PlanSummary)
		}
	}

	if req.Mode == proto.ModeOnboarding {
		info, err := catalog.Describe(req.State)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "\n\nYou are running onboarding step %d of %d: %s.\n%s\nRequired fields: %s.\n\n",
			info.Number, catalog.TotalStates(), info.Name, info.Description,
			strings.Join(info.RequiredFields, ", "))
		fmt.Fprintf(&b, saveInstructions, info.Number, fieldPlaceholders(info.RequiredFields))
	}

	return b.String(), nil
}

// profileSummary renders collected onboarding payloads as compact JSON lines.
func profileSummary(profile map[string]map[string]any) string {
	if len(profile) == 0 {
		return ""
	}
	var lines []string
	for _, info := range catalog.All() {
		payload, ok := profile[info.Name]
		if !ok {
			continue
		}
		encoded, err := json.Marshal(payload)
		if err != nil {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", info.Name, encoded))
	}
	return strings.Join(lines, "\n")
}

func fieldPlaceholders(fields []string) string {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = fmt.Sprintf("%q: ...", f)
	}
	return strings.Join(quoted, ", ")
}
