package validate

import (
	"errors"
	"testing"

	"fitcoach/pkg/catalog"
)

func validBasicProfile() map[string]any {
	return map[string]any{
		"age":       float64(30),
		"sex":       "female",
		"height_cm": float64(170),
		"weight_kg": float64(65),
	}
}

func validDietPreferences() map[string]any {
	return map[string]any{
		"diet_type":   "omnivore",
		"allergies":   []string{"peanuts"},
		"protein_pct": float64(30),
		"carbs_pct":   float64(45),
		"fat_pct":     float64(25),
	}
}

func TestValidateBasicProfile(t *testing.T) {
	validated, ferr, err := Validate(1, validBasicProfile())
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if ferr != nil {
		t.Fatalf("Unexpected field error: %s", ferr)
	}
	if validated["sex"] != "female" {
		t.Errorf("Expected normalized sex 'female', got %v", validated["sex"])
	}
	if validated["age"] != 30 {
		t.Errorf("Expected age normalized to int 30, got %v (%T)", validated["age"], validated["age"])
	}
}

func TestValidateUnknownExtraFieldsIgnored(t *testing.T) {
	payload := validBasicProfile()
	payload["favorite_color"] = "green"

	validated, ferr, err := Validate(1, payload)
	if err != nil || ferr != nil {
		t.Fatalf("Validate failed: err=%v ferr=%v", err, ferr)
	}
	if _, present := validated["favorite_color"]; present {
		t.Error("Extra fields must be dropped from the validated payload")
	}
}

func TestValidateFirstFailingFieldIsDeterministic(t *testing.T) {
	// Both age and height are invalid; age is declared first in the catalog
	// so it must be the reported field, every time.
	payload := validBasicProfile()
	payload["age"] = float64(5)
	payload["height_cm"] = float64(10)

	for i := 0; i < 10; i++ {
		_, ferr, err := Validate(1, payload)
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if ferr == nil {
			t.Fatal("Expected a field error")
		}
		if ferr.Field != "age" {
			t.Fatalf("Expected first failing field 'age', got %q", ferr.Field)
		}
	}
}

func TestValidateMissingField(t *testing.T) {
	payload := validBasicProfile()
	delete(payload, "weight_kg")

	_, ferr, err := Validate(1, payload)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if ferr == nil || ferr.Field != "weight_kg" {
		t.Errorf("Expected field error on weight_kg, got %v", ferr)
	}
}

func TestValidateEnum(t *testing.T) {
	_, ferr, err := Validate(2, map[string]any{"fitness_level": "expert"})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if ferr == nil || ferr.Field != "fitness_level" {
		t.Errorf("Expected enum failure on fitness_level, got %v", ferr)
	}

	// Enum values normalize case and whitespace.
	validated, ferr, err := Validate(2, map[string]any{"fitness_level": "  Beginner "})
	if err != nil || ferr != nil {
		t.Fatalf("Validate failed: err=%v ferr=%v", err, ferr)
	}
	if validated["fitness_level"] != "beginner" {
		t.Errorf("Expected normalized 'beginner', got %v", validated["fitness_level"])
	}
}

func TestValidateMacroSplit(t *testing.T) {
	t.Run("WithinTolerance", func(t *testing.T) {
		payload := validDietPreferences()
		payload["protein_pct"] = float64(30)
		payload["carbs_pct"] = float64(46) // sum = 101, inside ±2
		_, ferr, err := Validate(6, payload)
		if err != nil || ferr != nil {
			t.Errorf("Expected success inside tolerance: err=%v ferr=%v", err, ferr)
		}
	})

	t.Run("OutsideTolerance", func(t *testing.T) {
		payload := validDietPreferences()
		payload["carbs_pct"] = float64(60) // sum = 115
		_, ferr, err := Validate(6, payload)
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if ferr == nil || ferr.Field != "macro_split" {
			t.Errorf("Expected macro_split failure, got %v", ferr)
		}
	})

	t.Run("PerFieldBeforeCrossField", func(t *testing.T) {
		// An out-of-range field must be reported before the sum check.
		payload := validDietPreferences()
		payload["protein_pct"] = float64(120)
		_, ferr, err := Validate(6, payload)
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if ferr == nil || ferr.Field != "protein_pct" {
			t.Errorf("Expected protein_pct failure, got %v", ferr)
		}
	})
}

func TestValidateLimitations(t *testing.T) {
	_, ferr, err := Validate(5, map[string]any{
		"has_limitations": true,
		"limitations":     []string{},
	})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if ferr == nil || ferr.Field != "limitations" {
		t.Errorf("Expected limitations failure, got %v", ferr)
	}

	_, ferr, err = Validate(5, map[string]any{
		"has_limitations": false,
		"limitations":     []any{},
	})
	if err != nil || ferr != nil {
		t.Errorf("Empty limitations with has_limitations=false must pass: err=%v ferr=%v", err, ferr)
	}
}

func TestValidateMealWindow(t *testing.T) {
	_, ferr, err := Validate(7, map[string]any{
		"meals_per_day":   float64(3),
		"first_meal_hour": float64(20),
		"last_meal_hour":  float64(8),
	})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if ferr == nil || ferr.Field != "last_meal_hour" {
		t.Errorf("Expected last_meal_hour failure, got %v", ferr)
	}
}

func TestValidateWeeklySchedule(t *testing.T) {
	validated, ferr, err := Validate(8, map[string]any{
		"timezone":       "Europe/Berlin",
		"available_days": []any{"Monday", "wednesday", "FRIDAY"},
	})
	if err != nil || ferr != nil {
		t.Fatalf("Validate failed: err=%v ferr=%v", err, ferr)
	}
	days := validated["available_days"].([]string)
	if len(days) != 3 || days[0] != "monday" || days[2] != "friday" {
		t.Errorf("Expected normalized weekday names, got %v", days)
	}

	_, ferr, _ = Validate(8, map[string]any{
		"timezone":       "nowhere",
		"available_days": []string{"monday"},
	})
	if ferr == nil || ferr.Field != "timezone" {
		t.Errorf("Expected timezone failure, got %v", ferr)
	}
}

func TestValidateUnknownState(t *testing.T) {
	_, _, err := Validate(99, map[string]any{})
	if !errors.Is(err, catalog.ErrUnknownState) {
		t.Errorf("Expected ErrUnknownState, got %v", err)
	}
}

func TestValidateAllStatesHaveChecks(t *testing.T) {
	// Every cataloged state must validate a fully-populated payload.
	full := map[int]map[string]any{
		1: validBasicProfile(),
		2: {"fitness_level": "intermediate"},
		3: {"primary_goal": "build_muscle", "target_weight_kg": float64(80)},
		4: {
			"days_per_week":   float64(4),
			"session_minutes": float64(60),
			"training_styles": []string{"strength"},
			"equipment":       []string{},
		},
		5: {"has_limitations": false, "limitations": []string{}},
		6: validDietPreferences(),
		7: {"meals_per_day": float64(3), "first_meal_hour": float64(8), "last_meal_hour": float64(20)},
		8: {"timezone": "UTC", "available_days": []string{"monday", "thursday"}},
		9: {"current_supplements": []string{"creatine"}, "open_to_recommendations": true},
	}
	if len(full) != catalog.TotalStates() {
		t.Fatalf("Test payloads cover %d states, catalog has %d", len(full), catalog.TotalStates())
	}
	for state, payload := range full {
		_, ferr, err := Validate(state, payload)
		if err != nil {
			t.Errorf("State %d: unexpected error %v", state, err)
		}
		if ferr != nil {
			t.Errorf("State %d: unexpected field error %s", state, ferr)
		}
	}
}
