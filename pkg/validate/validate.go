// Package validate holds the per-state payload validators.
//
// Validators are pure: they never touch storage and depend only on the payload
// and the state catalog's declared field order. Unknown extra fields are
// ignored for forward compatibility; the returned payload contains only the
// declared fields, normalized. The first failing field (in catalog order) is
// reported, so error messages are deterministic.
package validate

import (
	"fmt"
	"math"
	"strings"

	"fitcoach/pkg/catalog"
)

// FieldError describes a validation failure for a single field. It is a
// result value, not a Go error: callers render it conversationally.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *FieldError) String() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// MacroTolerance is the allowed deviation when the macro percentages are
// summed against 100.
const MacroTolerance = 2.0

// fieldCheck validates one declared field out of the raw payload and returns
// the normalized value to store.
type fieldCheck func(payload map[string]any) (any, *FieldError)

// Validate runs the validator for stateNumber against payload. On success it
// returns the normalized payload restricted to the state's declared fields.
// On failure it returns the first failing field in declared order.
func Validate(stateNumber int, payload map[string]any) (map[string]any, *FieldError, error) {
	info, err := catalog.Describe(stateNumber)
	if err != nil {
		return nil, nil, err
	}

	checks := checksForState(stateNumber)

	validated := make(map[string]any, len(info.RequiredFields))
	for _, field := range info.RequiredFields {
		check, ok := checks[field]
		if !ok {
			// A declared field with no check only requires presence.
			value, present := payload[field]
			if !present {
				return nil, &FieldError{Field: field, Message: "is required"}, nil
			}
			validated[field] = value
			continue
		}
		value, ferr := check(payload)
		if ferr != nil {
			return nil, ferr, nil
		}
		validated[field] = value
	}

	// Cross-field checks run after all per-field checks so single-field
	// problems surface first.
	if ferr := crossFieldCheck(stateNumber, validated); ferr != nil {
		return nil, ferr, nil
	}

	return validated, nil, nil
}

func checksForState(stateNumber int) map[string]fieldCheck {
	switch stateNumber {
	case 1:
		return map[string]fieldCheck{
			"age":       intInRange("age", 13, 100),
			"sex":       enumField("sex", "male", "female", "other"),
			"height_cm": numberInRange("height_cm", 100, 250),
			"weight_kg": numberInRange("weight_kg", 30, 300),
		}
	case 2:
		return map[string]fieldCheck{
			"fitness_level": enumField("fitness_level", "beginner", "intermediate", "advanced"),
		}
	case 3:
		return map[string]fieldCheck{
			"primary_goal":     enumField("primary_goal", "lose_weight", "build_muscle", "improve_endurance", "general_fitness"),
			"target_weight_kg": numberInRange("target_weight_kg", 30, 300),
		}
	case 4:
		return map[string]fieldCheck{
			"days_per_week":   intInRange("days_per_week", 1, 7),
			"session_minutes": intInRange("session_minutes", 15, 180),
			"training_styles": stringList("training_styles", true),
			"equipment":       stringList("equipment", false),
		}
	case 5:
		return map[string]fieldCheck{
			"has_limitations": boolField("has_limitations"),
			"limitations":     stringList("limitations", false),
		}
	case 6:
		return map[string]fieldCheck{
			"diet_type":   enumField("diet_type", "omnivore", "vegetarian", "vegan", "pescatarian", "keto"),
			"allergies":   stringList("allergies", false),
			"protein_pct": numberInRange("protein_pct", 0, 100),
			"carbs_pct":   numberInRange("carbs_pct", 0, 100),
			"fat_pct":     numberInRange("fat_pct", 0, 100),
		}
	case 7:
		return map[string]fieldCheck{
			"meals_per_day":   intInRange("meals_per_day", 1, 8),
			"first_meal_hour": intInRange("first_meal_hour", 0, 23),
			"last_meal_hour":  intInRange("last_meal_hour", 0, 23),
		}
	case 8:
		return map[string]fieldCheck{
			"timezone":       timezoneField("timezone"),
			"available_days": weekdayList("available_days"),
		}
	case 9:
		return map[string]fieldCheck{
			"current_supplements":     stringList("current_supplements", false),
			"open_to_recommendations": boolField("open_to_recommendations"),
		}
	default:
		return nil
	}
}

// crossFieldCheck enforces constraints spanning multiple already-validated
// fields. Reported under a synthetic field name so the message stays
// deterministic.
func crossFieldCheck(stateNumber int, validated map[string]any) *FieldError {
	switch stateNumber {
	case 5:
		has, _ := validated["has_limitations"].(bool)
		limitations, _ := validated["limitations"].([]string)
		if has && len(limitations) == 0 {
			return &FieldError{Field: "limitations", Message: "must list at least one limitation when has_limitations is true"}
		}
	case 6:
		sum := validated["protein_pct"].(float64) + validated["carbs_pct"].(float64) + validated["fat_pct"].(float64)
		if math.Abs(sum-100) > MacroTolerance {
			return &FieldError{
				Field:   "macro_split",
				Message: fmt.Sprintf("protein/carbs/fat percentages must sum to 100 (±%.0f), got %.1f", MacroTolerance, sum),
			}
		}
	case 7:
		first := validated["first_meal_hour"].(int)
		last := validated["last_meal_hour"].(int)
		if last < first {
			return &FieldError{Field: "last_meal_hour", Message: "must not be earlier than first_meal_hour"}
		}
	}
	return nil
}

// asNumber accepts the numeric shapes a JSON payload can carry.
func asNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func numberInRange(field string, min, max float64) fieldCheck {
	return func(payload map[string]any) (any, *FieldError) {
		raw, present := payload[field]
		if !present {
			return nil, &FieldError{Field: field, Message: "is required"}
		}
		n, ok := asNumber(raw)
		if !ok {
			return nil, &FieldError{Field: field, Message: "must be a number"}
		}
		if n < min || n > max {
			return nil, &FieldError{Field: field, Message: fmt.Sprintf("must be between %g and %g", min, max)}
		}
		return n, nil
	}
}

func intInRange(field string, min, max int) fieldCheck {
	return func(payload map[string]any) (any, *FieldError) {
		raw, present := payload[field]
		if !present {
			return nil, &FieldError{Field: field, Message: "is required"}
		}
		n, ok := asNumber(raw)
		if !ok {
			return nil, &FieldError{Field: field, Message: "must be a whole number"}
		}
		if n != math.Trunc(n) {
			return nil, &FieldError{Field: field, Message: "must be a whole number"}
		}
		i := int(n)
		if i < min || i > max {
			return nil, &FieldError{Field: field, Message: fmt.Sprintf("must be between %d and %d", min, max)}
		}
		return i, nil
	}
}

func enumField(field string, allowed ...string) fieldCheck {
	return func(payload map[string]any) (any, *FieldError) {
		raw, present := payload[field]
		if !present {
			return nil, &FieldError{Field: field, Message: "is required"}
		}
		s, ok := raw.(string)
		if !ok {
			return nil, &FieldError{Field: field, Message: "must be a string"}
		}
		s = strings.ToLower(strings.TrimSpace(s))
		for _, a := range allowed {
			if s == a {
				return s, nil
			}
		}
		return nil, &FieldError{Field: field, Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", "))}
	}
}

func boolField(field string) fieldCheck {
	return func(payload map[string]any) (any, *FieldError) {
		raw, present := payload[field]
		if !present {
			return nil, &FieldError{Field: field, Message: "is required"}
		}
		b, ok := raw.(bool)
		if !ok {
			return nil, &FieldError{Field: field, Message: "must be true or false"}
		}
		return b, nil
	}
}

// stringList accepts []string or []any of strings. requireNonEmpty forces at
// least one entry.
func stringList(field string, requireNonEmpty bool) fieldCheck {
	return func(payload map[string]any) (any, *FieldError) {
		raw, present := payload[field]
		if !present {
			return nil, &FieldError{Field: field, Message: "is required"}
		}
		list, ferr := coerceStringList(field, raw)
		if ferr != nil {
			return nil, ferr
		}
		if requireNonEmpty && len(list) == 0 {
			return nil, &FieldError{Field: field, Message: "must have at least one entry"}
		}
		return list, nil
	}
}

func weekdayList(field string) fieldCheck {
	valid := map[string]bool{
		"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
		"friday": true, "saturday": true, "sunday": true,
	}
	return func(payload map[string]any) (any, *FieldError) {
		raw, present := payload[field]
		if !present {
			return nil, &FieldError{Field: field, Message: "is required"}
		}
		list, ferr := coerceStringList(field, raw)
		if ferr != nil {
			return nil, ferr
		}
		if len(list) == 0 {
			return nil, &FieldError{Field: field, Message: "must have at least one entry"}
		}
		normalized := make([]string, len(list))
		for i, day := range list {
			d := strings.ToLower(strings.TrimSpace(day))
			if !valid[d] {
				return nil, &FieldError{Field: field, Message: fmt.Sprintf("%q is not a weekday name", day)}
			}
			normalized[i] = d
		}
		return normalized, nil
	}
}

func timezoneField(field string) fieldCheck {
	return func(payload map[string]any) (any, *FieldError) {
		raw, present := payload[field]
		if !present {
			return nil, &FieldError{Field: field, Message: "is required"}
		}
		s, ok := raw.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return nil, &FieldError{Field: field, Message: "must be a non-empty IANA timezone name"}
		}
		s = strings.TrimSpace(s)
		if s != "UTC" && !strings.Contains(s, "/") {
			return nil, &FieldError{Field: field, Message: "must be an IANA timezone name like Europe/Berlin"}
		}
		return s, nil
	}
}

func coerceStringList(field string, raw any) ([]string, *FieldError) {
	switch v := raw.(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, &FieldError{Field: field, Message: "must be a list of strings"}
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, &FieldError{Field: field, Message: "must be a list of strings"}
	}
}
