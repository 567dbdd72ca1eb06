// Package usercontext caches the per-user coaching context that handler
// prompts are built from.
package usercontext

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fitcoach/pkg/logx"
)

// ErrContextLoad wraps loader failures. Failures are never cached; the next
// request retries the loader.
var ErrContextLoad = errors.New("user context load failed")

// DefaultTTL is how long a cached context stays fresh.
const DefaultTTL = 5 * time.Minute

// Message is one turn of recent conversation carried into handler prompts.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UserContext is the snapshot handlers build prompts from. Snapshots are
// immutable once cached: the cache hands out defensive copies, so callers can
// hold one across a turn without seeing concurrent updates.
//
//nolint:govet // struct alignment optimization not critical for this type
type UserContext struct {
	UserID string `json:"user_id"`
	// Profile holds the validated onboarding payloads collected so far,
	// keyed by state name.
	Profile map[string]map[string]any `json:"profile"`
	// PlanSummary is a short rendering of the user's active plan, empty
	// until onboarding completes.
	PlanSummary string `json:"plan_summary"`
	// RecentConversation is the token-budgeted tail of the conversation,
	// oldest first.
	RecentConversation []Message `json:"recent_conversation"`
	LoadedAt           time.Time `json:"loaded_at"`
}

// Loader produces a fresh context for a user, typically by reading the
// progress store and conversation log.
type Loader func(ctx context.Context, userID string) (*UserContext, error)

// LookupRecorder observes cache lookup outcomes. The metrics recorder
// satisfies it.
type LookupRecorder interface {
	IncCacheLookup(result string)
}

// Lookup outcome labels.
const (
	LookupHit  = "hit"
	LookupMiss = "miss"
)

type cacheEntry struct {
	value     *UserContext
	expiresAt time.Time
}

// Cache is a TTL cache over per-user contexts. Concurrent GetOrLoad calls for
// the same user are collapsed so the loader runs once per expiry window.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*cacheEntry
	loads    map[string]*loadCall
	ttl      time.Duration
	now      func() time.Time
	logger   *logx.Logger
	recorder LookupRecorder
}

type loadCall struct {
	done  chan struct{}
	value *UserContext
	err   error
}

// NewCache creates a cache with the given TTL. A non-positive TTL falls back
// to DefaultTTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		entries: make(map[string]*cacheEntry),
		loads:   make(map[string]*loadCall),
		ttl:     ttl,
		now:     time.Now,
		logger:  logx.NewLogger("usercontext"),
	}
}

// SetRecorder registers a hit/miss observer for subsequent lookups. Call
// before the cache is shared across goroutines.
func (c *Cache) SetRecorder(recorder LookupRecorder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recorder = recorder
}

func (c *Cache) record(recorder LookupRecorder, result string) {
	if recorder != nil {
		recorder.IncCacheLookup(result)
	}
}

// GetOrLoad returns the cached context for userID, invoking loader on a miss
// or after expiry. Loader errors propagate to every waiting caller and are
// not cached.
func (c *Cache) GetOrLoad(ctx context.Context, userID string, loader Loader) (*UserContext, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: empty user ID", ErrContextLoad)
	}

	c.mu.Lock()
	recorder := c.recorder
	if entry, ok := c.entries[userID]; ok && c.now().Before(entry.expiresAt) {
		value := entry.value.clone()
		c.mu.Unlock()
		c.record(recorder, LookupHit)
		return value, nil
	}
	c.record(recorder, LookupMiss)

	if call, ok := c.loads[userID]; ok {
		// Another goroutine is loading this user; wait for its result.
		c.mu.Unlock()
		select {
		case <-call.done:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrContextLoad, ctx.Err())
		}
		if call.err != nil {
			return nil, call.err
		}
		return call.value.clone(), nil
	}

	call := &loadCall{done: make(chan struct{})}
	c.loads[userID] = call
	c.mu.Unlock()

	value, err := loader(ctx, userID)
	if err == nil && value == nil {
		err = errors.New("loader returned nil context")
	}

	c.mu.Lock()
	delete(c.loads, userID)
	if err != nil {
		call.err = fmt.Errorf("%w: user %s: %w", ErrContextLoad, userID, err)
		c.mu.Unlock()
		close(call.done)
		c.logger.Warn("context load failed for %s: %v", userID, err)
		return nil, call.err
	}

	value.LoadedAt = c.now()
	c.entries[userID] = &cacheEntry{
		value:     value.clone(),
		expiresAt: c.now().Add(c.ttl),
	}
	call.value = value
	c.mu.Unlock()
	close(call.done)

	return value.clone(), nil
}

// Invalidate drops the cached context for userID. Called after any write that
// changes what handlers should see, so the next turn reloads fresh state.
func (c *Cache) Invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
}

// Len returns the number of live (possibly expired) entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// clone deep-copies the snapshot so cached state can never be mutated through
// a returned pointer.
func (u *UserContext) clone() *UserContext {
	if u == nil {
		return nil
	}
	out := &UserContext{
		UserID:      u.UserID,
		PlanSummary: u.PlanSummary,
		LoadedAt:    u.LoadedAt,
	}
	if u.Profile != nil {
		out.Profile = make(map[string]map[string]any, len(u.Profile))
		for state, payload := range u.Profile {
			copied := make(map[string]any, len(payload))
			for k, v := range payload {
				copied[k] = v
			}
			out.Profile[state] = copied
		}
	}
	if u.RecentConversation != nil {
		out.RecentConversation = make([]Message, len(u.RecentConversation))
		copy(out.RecentConversation, u.RecentConversation)
	}
	return out
}
