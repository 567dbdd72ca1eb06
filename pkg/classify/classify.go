// Package classify routes free-mode messages to a coaching handler.
package classify

import (
	"strings"
	"sync"
	"unicode"

	"fitcoach/pkg/proto"
)

// Classifier maps a user message to the handler best suited to answer it.
// Classification is total: every input maps to some handler, with
// HandlerGeneral as the fallback.
type Classifier interface {
	Classify(message string) proto.HandlerID
}

// keyword lists are matched against whole words of the normalized message.
// First domain with a hit wins; order encodes priority when a message spans
// domains (asking about "protein before my workout" is a diet question).
//
//nolint:gochecknoglobals // Immutable keyword tables
var domainKeywords = []struct {
	handler  proto.HandlerID
	keywords []string
}{
	{proto.HandlerDiet, []string{
		"diet", "meal", "meals", "food", "eat", "eating", "nutrition",
		"calorie", "calories", "protein", "carb", "carbs", "fat", "macro",
		"macros", "recipe", "snack", "fasting", "vegan", "vegetarian", "keto",
	}},
	{proto.HandlerWorkout, []string{
		"workout", "workouts", "exercise", "exercises", "training", "train",
		"lift", "lifting", "squat", "deadlift", "bench", "cardio", "run",
		"running", "sets", "reps", "gym", "muscle", "stretch", "warmup",
		"soreness", "sore",
	}},
	{proto.HandlerScheduling, []string{
		"schedule", "reschedule", "calendar", "monday", "tuesday", "wednesday",
		"thursday", "friday", "saturday", "sunday", "tomorrow", "tonight",
		"morning", "evening", "weekly", "session", "sessions", "availability",
		"cancel", "skip",
	}},
	{proto.HandlerSupplement, []string{
		"supplement", "supplements", "creatine", "whey", "caffeine",
		"preworkout", "vitamin", "vitamins", "omega", "magnesium", "zinc",
		"bcaa", "electrolyte", "electrolytes",
	}},
}

// KeywordClassifier is the default deterministic classifier.
type KeywordClassifier struct{}

// NewKeywordClassifier creates the keyword classifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

// Classify returns the handler for a message. Never fails; unmatched or empty
// messages route to the general handler.
func (c *KeywordClassifier) Classify(message string) proto.HandlerID {
	words := tokenize(message)
	if len(words) == 0 {
		return proto.HandlerGeneral
	}

	present := make(map[string]bool, len(words))
	for _, word := range words {
		present[word] = true
	}

	for _, domain := range domainKeywords {
		for _, keyword := range domain.keywords {
			if present[keyword] {
				return domain.handler
			}
		}
	}
	return proto.HandlerGeneral
}

// tokenize lowercases and splits on non-letter/digit runs.
func tokenize(message string) []string {
	return strings.FieldsFunc(strings.ToLower(message), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// memoPrefixWords is how many leading words form the memoization key. Voice
// transcription re-sends a growing transcript several times per utterance;
// the leading words stabilize first, so they make a useful replay key.
const memoPrefixWords = 6

// defaultMemoCapacity bounds the per-session memo table.
const defaultMemoCapacity = 128

// Memoized wraps a classifier with a bounded per-session cache keyed by the
// normalized message prefix. Intended for voice sessions where near-identical
// partial transcripts arrive in quick succession; discard it with the session.
type Memoized struct {
	inner    Classifier
	mu       sync.Mutex
	cache    map[string]proto.HandlerID
	order    []string
	capacity int
}

// NewMemoized wraps inner with a memo table of the given capacity. A
// non-positive capacity uses the default.
func NewMemoized(inner Classifier, capacity int) *Memoized {
	if capacity <= 0 {
		capacity = defaultMemoCapacity
	}
	return &Memoized{
		inner:    inner,
		cache:    make(map[string]proto.HandlerID, capacity),
		capacity: capacity,
	}
}

// Classify returns the memoized result for the message's normalized prefix,
// delegating to the wrapped classifier on a miss.
func (m *Memoized) Classify(message string) proto.HandlerID {
	key := prefixKey(message)

	m.mu.Lock()
	if handler, ok := m.cache[key]; ok {
		m.mu.Unlock()
		return handler
	}
	m.mu.Unlock()

	handler := m.inner.Classify(message)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cache[key]; !ok {
		if len(m.order) >= m.capacity {
			// Evict oldest entry.
			oldest := m.order[0]
			m.order = m.order[1:]
			delete(m.cache, oldest)
		}
		m.cache[key] = handler
		m.order = append(m.order, key)
	}
	return handler
}

// prefixKey normalizes a message down to its leading words.
func prefixKey(message string) string {
	words := tokenize(message)
	if len(words) > memoPrefixWords {
		words = words[:memoPrefixWords]
	}
	return strings.Join(words, " ")
}
