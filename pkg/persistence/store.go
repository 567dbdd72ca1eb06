package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"fitcoach/pkg/catalog"
	"fitcoach/pkg/proto"
)

// Store provides the progress operations. All mutating operations on a single
// user's record are serialized through a per-user mutex around the SQLite
// transaction; cross-user operations are fully independent.
type Store struct {
	db    *sql.DB
	locks sync.Map // user_id -> *sync.Mutex
}

// NewStore creates a Store over an initialized database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) userLock(userID string) *sync.Mutex {
	lock, _ := s.locks.LoadOrStore(userID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// Provision creates an empty progress record for a new user. Idempotent: an
// existing record is left untouched.
func (s *Store) Provision(userID string) error {
	if userID == "" {
		return fmt.Errorf("userID cannot be empty")
	}

	now := time.Now().UTC()
	_, err := s.db.Exec(`
		INSERT INTO onboarding_progress (user_id, current_state, is_complete, created_at, updated_at)
		VALUES (?, 1, 0, ?, ?)
		ON CONFLICT(user_id) DO NOTHING
	`, userID, now, now)
	if err != nil {
		return fmt.Errorf("failed to provision progress for %s: %w", userID, err)
	}
	return nil
}

// Get loads a user's full onboarding progress, including completed-state
// payloads and routing history. Returns ErrNotFound for unprovisioned users.
func (s *Store) Get(userID string) (*OnboardingProgress, error) {
	if userID == "" {
		return nil, fmt.Errorf("userID cannot be empty")
	}

	progress := &OnboardingProgress{
		UserID:             userID,
		CompletedStateData: make(map[int]map[string]any),
	}

	var isComplete int
	err := s.db.QueryRow(`
		SELECT current_state, is_complete, created_at, updated_at
		FROM onboarding_progress WHERE user_id = ?
	`, userID).Scan(&progress.CurrentState, &isComplete, &progress.CreatedAt, &progress.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load progress for %s: %w", userID, err)
	}
	progress.IsComplete = isComplete != 0

	if err := s.loadCompletedStates(progress); err != nil {
		return nil, err
	}
	if err := s.loadRoutingHistory(progress); err != nil {
		return nil, err
	}

	return progress, nil
}

func (s *Store) loadCompletedStates(progress *OnboardingProgress) error {
	rows, err := s.db.Query(`
		SELECT state, payload FROM completed_states WHERE user_id = ?
	`, progress.UserID)
	if err != nil {
		return fmt.Errorf("failed to load completed states for %s: %w", progress.UserID, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var state int
		var payloadJSON string
		if err := rows.Scan(&state, &payloadJSON); err != nil {
			return fmt.Errorf("completed state scan error: %w", err)
		}
		payload := make(map[string]any)
		if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
			return fmt.Errorf("failed to unmarshal payload for state %d: %w", state, err)
		}
		progress.CompletedStateData[state] = payload
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("completed state rows error: %w", err)
	}
	return nil
}

func (s *Store) loadRoutingHistory(progress *OnboardingProgress) error {
	// rowid ordering preserves append order even for same-millisecond writes.
	rows, err := s.db.Query(`
		SELECT id, state, handler_id, created_at
		FROM routing_history WHERE user_id = ? ORDER BY rowid
	`, progress.UserID)
	if err != nil {
		return fmt.Errorf("failed to load routing history for %s: %w", progress.UserID, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var entry RoutingEntry
		var handlerID string
		if err := rows.Scan(&entry.ID, &entry.State, &handlerID, &entry.Timestamp); err != nil {
			return fmt.Errorf("routing history scan error: %w", err)
		}
		entry.HandlerID = proto.HandlerID(handlerID)
		progress.RoutingHistory = append(progress.RoutingHistory, entry)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("routing history rows error: %w", err)
	}
	return nil
}

// RecordCompletion persists a validated payload for a state and advances
// current_state. It is the single mutation path for progress and it is
// idempotent: recording an already-completed state (same-state retry or a
// stale replay of an earlier state) is a success no-op that appends no
// duplicate history entry and leaves current_state unchanged.
func (s *Store) RecordCompletion(userID string, stateNumber int, validatedPayload map[string]any, handlerID proto.HandlerID) (*OnboardingProgress, error) {
	if userID == "" {
		return nil, fmt.Errorf("userID cannot be empty")
	}
	if stateNumber < 1 || stateNumber > catalog.TotalStates() {
		return nil, fmt.Errorf("%w: %d", catalog.ErrUnknownState, stateNumber)
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var currentState int
	err = tx.QueryRow(`
		SELECT current_state FROM onboarding_progress WHERE user_id = ?
	`, userID).Scan(&currentState)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load progress for %s: %w", userID, err)
	}

	var exists int
	err = tx.QueryRow(`
		SELECT COUNT(1) FROM completed_states WHERE user_id = ? AND state = ?
	`, userID, stateNumber).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("completed state lookup error: %w", err)
	}
	if exists > 0 {
		// Replay: already recorded, success without mutation.
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit no-op: %w", err)
		}
		return s.Get(userID)
	}

	payloadJSON, err := json.Marshal(validatedPayload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload for state %d: %w", stateNumber, err)
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(`
		INSERT INTO completed_states (user_id, state, payload, handler_id, completed_at)
		VALUES (?, ?, ?, ?, ?)
	`, userID, stateNumber, string(payloadJSON), string(handlerID), now); err != nil {
		return nil, fmt.Errorf("failed to insert completed state %d for %s: %w", stateNumber, userID, err)
	}

	if _, err := tx.Exec(`
		INSERT INTO routing_history (id, user_id, state, handler_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, GenerateRoutingEntryID(), userID, stateNumber, string(handlerID), now); err != nil {
		return nil, fmt.Errorf("failed to append routing history for %s: %w", userID, err)
	}

	newCurrent, complete, err := nextIncompleteState(tx, userID)
	if err != nil {
		return nil, err
	}

	// current_state never decreases; a completed gap below an advanced
	// position cannot pull it backwards.
	if newCurrent < currentState {
		newCurrent = currentState
	}

	isComplete := 0
	if complete {
		isComplete = 1
	}
	if _, err := tx.Exec(`
		UPDATE onboarding_progress
		SET current_state = ?, is_complete = ?, updated_at = ?
		WHERE user_id = ?
	`, newCurrent, isComplete, time.Now().UTC(), userID); err != nil {
		return nil, fmt.Errorf("failed to update progress for %s: %w", userID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit completion for %s: %w", userID, err)
	}

	return s.Get(userID)
}

// nextIncompleteState returns the lowest state in [1, N] with no completed
// entry, or N+1 and complete=true when every state is done.
func nextIncompleteState(tx *sql.Tx, userID string) (state int, complete bool, err error) {
	rows, err := tx.Query(`
		SELECT state FROM completed_states WHERE user_id = ? ORDER BY state
	`, userID)
	if err != nil {
		return 0, false, fmt.Errorf("failed to list completed states for %s: %w", userID, err)
	}
	defer func() { _ = rows.Close() }()

	done := make(map[int]bool)
	for rows.Next() {
		var st int
		if err := rows.Scan(&st); err != nil {
			return 0, false, fmt.Errorf("state scan error: %w", err)
		}
		done[st] = true
	}
	if err := rows.Err(); err != nil {
		return 0, false, fmt.Errorf("state rows error: %w", err)
	}

	total := catalog.TotalStates()
	for st := 1; st <= total; st++ {
		if !done[st] {
			return st, false, nil
		}
	}
	return total + 1, true, nil
}

// ComputeProgressView derives the caller-facing view from a loaded progress
// record and the state catalog. Pure derivation, no independent state.
func ComputeProgressView(progress *OnboardingProgress) ProgressView {
	total := catalog.TotalStates()

	completed := make([]int, 0, len(progress.CompletedStateData))
	for state := range progress.CompletedStateData {
		completed = append(completed, state)
	}
	sort.Ints(completed)

	return ProgressView{
		CurrentState:         progress.CurrentState,
		TotalStates:          total,
		CompletedStates:      completed,
		CompletionPercentage: len(completed) * 100 / total,
		IsComplete:           progress.IsComplete,
		CanComplete:          !progress.IsComplete && len(completed) == total-1,
	}
}

// ProgressViewFor loads a user's record and derives its progress view.
func (s *Store) ProgressViewFor(userID string) (ProgressView, error) {
	progress, err := s.Get(userID)
	if err != nil {
		return ProgressView{}, err
	}
	return ComputeProgressView(progress), nil
}
