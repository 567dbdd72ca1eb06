package usercontext

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func staticLoader(calls *int32) Loader {
	return func(_ context.Context, userID string) (*UserContext, error) {
		atomic.AddInt32(calls, 1)
		return &UserContext{
			UserID: userID,
			Profile: map[string]map[string]any{
				"basic_profile": {"age": 30.0},
			},
			RecentConversation: []Message{{Role: "user", Content: "hello"}},
		}, nil
	}
}

func TestGetOrLoadCachesWithinTTL(t *testing.T) {
	cache := NewCache(time.Minute)
	var calls int32

	ctx := context.Background()
	first, err := cache.GetOrLoad(ctx, "user-1", staticLoader(&calls))
	if err != nil {
		t.Fatalf("GetOrLoad failed: %v", err)
	}
	second, err := cache.GetOrLoad(ctx, "user-1", staticLoader(&calls))
	if err != nil {
		t.Fatalf("GetOrLoad failed: %v", err)
	}

	if calls != 1 {
		t.Errorf("Expected 1 loader call, got %d", calls)
	}
	if first.UserID != second.UserID {
		t.Errorf("Cache returned different users: %s vs %s", first.UserID, second.UserID)
	}
}

func TestGetOrLoadReloadsAfterExpiry(t *testing.T) {
	cache := NewCache(time.Minute)
	now := time.Now()
	cache.now = func() time.Time { return now }

	var calls int32
	ctx := context.Background()
	if _, err := cache.GetOrLoad(ctx, "user-1", staticLoader(&calls)); err != nil {
		t.Fatalf("GetOrLoad failed: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := cache.GetOrLoad(ctx, "user-1", staticLoader(&calls)); err != nil {
		t.Fatalf("GetOrLoad after expiry failed: %v", err)
	}

	if calls != 2 {
		t.Errorf("Expected reload after TTL, got %d loader calls", calls)
	}
}

func TestLoaderErrorPropagatesAndIsNotCached(t *testing.T) {
	cache := NewCache(time.Minute)
	boom := errors.New("profile service unavailable")
	failures := int32(1)
	var calls int32

	loader := func(_ context.Context, userID string) (*UserContext, error) {
		atomic.AddInt32(&calls, 1)
		if atomic.AddInt32(&failures, -1) >= 0 {
			return nil, boom
		}
		return &UserContext{UserID: userID}, nil
	}

	ctx := context.Background()
	_, err := cache.GetOrLoad(ctx, "user-1", loader)
	if !errors.Is(err, ErrContextLoad) {
		t.Fatalf("Expected ErrContextLoad, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("Expected underlying cause in chain, got %v", err)
	}

	// Next call retries the loader rather than serving the failure.
	uc, err := cache.GetOrLoad(ctx, "user-1", loader)
	if err != nil {
		t.Fatalf("Retry after failure should succeed: %v", err)
	}
	if uc.UserID != "user-1" {
		t.Errorf("Unexpected user: %s", uc.UserID)
	}
	if calls != 2 {
		t.Errorf("Expected 2 loader calls, got %d", calls)
	}
}

func TestInvalidateForcesReload(t *testing.T) {
	cache := NewCache(time.Minute)
	var calls int32
	ctx := context.Background()

	if _, err := cache.GetOrLoad(ctx, "user-1", staticLoader(&calls)); err != nil {
		t.Fatalf("GetOrLoad failed: %v", err)
	}
	cache.Invalidate("user-1")
	if _, err := cache.GetOrLoad(ctx, "user-1", staticLoader(&calls)); err != nil {
		t.Fatalf("GetOrLoad after invalidate failed: %v", err)
	}

	if calls != 2 {
		t.Errorf("Expected reload after invalidate, got %d loader calls", calls)
	}
}

// countingLookupRecorder tallies hit/miss observations.
type countingLookupRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *countingLookupRecorder) IncCacheLookup(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[string]int)
	}
	r.counts[result]++
}

func TestRecorderObservesHitsAndMisses(t *testing.T) {
	cache := NewCache(time.Minute)
	recorder := &countingLookupRecorder{}
	cache.SetRecorder(recorder)

	var calls int32
	ctx := context.Background()
	if _, err := cache.GetOrLoad(ctx, "user-1", staticLoader(&calls)); err != nil {
		t.Fatalf("GetOrLoad failed: %v", err)
	}
	if _, err := cache.GetOrLoad(ctx, "user-1", staticLoader(&calls)); err != nil {
		t.Fatalf("GetOrLoad failed: %v", err)
	}
	cache.Invalidate("user-1")
	if _, err := cache.GetOrLoad(ctx, "user-1", staticLoader(&calls)); err != nil {
		t.Fatalf("GetOrLoad after invalidate failed: %v", err)
	}

	if got := recorder.counts[LookupMiss]; got != 2 {
		t.Errorf("Expected 2 misses (cold and post-invalidate), got %d", got)
	}
	if got := recorder.counts[LookupHit]; got != 1 {
		t.Errorf("Expected 1 hit, got %d", got)
	}
}

func TestSnapshotsAreImmutable(t *testing.T) {
	cache := NewCache(time.Minute)
	var calls int32
	ctx := context.Background()

	first, err := cache.GetOrLoad(ctx, "user-1", staticLoader(&calls))
	if err != nil {
		t.Fatalf("GetOrLoad failed: %v", err)
	}

	// Mutating a returned snapshot must not leak into the cache.
	first.Profile["basic_profile"]["age"] = 99.0
	first.RecentConversation[0].Content = "tampered"

	second, err := cache.GetOrLoad(ctx, "user-1", staticLoader(&calls))
	if err != nil {
		t.Fatalf("GetOrLoad failed: %v", err)
	}
	if got := second.Profile["basic_profile"]["age"]; got != 30.0 {
		t.Errorf("Cached profile mutated through snapshot: %v", got)
	}
	if second.RecentConversation[0].Content != "hello" {
		t.Errorf("Cached conversation mutated through snapshot: %q", second.RecentConversation[0].Content)
	}
}

func TestConcurrentLoadsCollapse(t *testing.T) {
	cache := NewCache(time.Minute)
	var calls int32
	started := make(chan struct{})
	release := make(chan struct{})

	loader := func(_ context.Context, userID string) (*UserContext, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
		}
		<-release
		return &UserContext{UserID: userID}, nil
	}

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.GetOrLoad(ctx, "user-1", loader); err != nil {
				t.Errorf("GetOrLoad failed: %v", err)
			}
		}()
	}

	<-started
	close(release)
	wg.Wait()

	if calls != 1 {
		t.Errorf("Expected concurrent loads to collapse into 1 call, got %d", calls)
	}
}

func TestTrimConversationDropsOldest(t *testing.T) {
	counter, err := NewTokenCounter()
	if err != nil {
		t.Fatalf("NewTokenCounter failed: %v", err)
	}

	messages := []Message{
		{Role: "user", Content: "first message about my workout plan and goals"},
		{Role: "assistant", Content: "a long reply describing the training split in detail"},
		{Role: "user", Content: "short follow up"},
	}

	full := 0
	for _, msg := range messages {
		full += counter.Count(msg.Role) + counter.Count(msg.Content)
	}

	trimmed := counter.TrimConversation(messages, full)
	if len(trimmed) != 3 {
		t.Errorf("Budget covering everything must keep all messages, got %d", len(trimmed))
	}

	trimmed = counter.TrimConversation(messages, 1)
	if len(trimmed) != 1 {
		t.Fatalf("Tiny budget must keep only the newest message, got %d", len(trimmed))
	}
	if trimmed[0].Content != "short follow up" {
		t.Errorf("Wrong survivor: %q", trimmed[0].Content)
	}
}
