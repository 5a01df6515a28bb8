package security

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestLimiter(cfg RateLimitConfig, now *time.Time) *RateLimiter {
	rl := NewRateLimiter(cfg)
	rl.now = func() time.Time { return *now }
	return rl
}

func TestRateLimiter_AllowWithinLimit(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rl := newTestLimiter(RateLimitConfig{ChatPerMin: 3}, &now)

	for i := range 3 {
		if err := rl.Allow(KindChat); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if err := rl.Allow(KindChat); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("fourth call err = %v, want ErrRateLimited", err)
	}
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rl := newTestLimiter(RateLimitConfig{TriggerPerMin: 2}, &now)

	_ = rl.Allow(KindTrigger)
	now = now.Add(30 * time.Second)
	_ = rl.Allow(KindTrigger)

	if err := rl.Allow(KindTrigger); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}

	now = now.Add(31 * time.Second)
	if err := rl.Allow(KindTrigger); err != nil {
		t.Fatalf("after first event left window: %v", err)
	}
}

func TestRateLimiter_KindsAreIndependent(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rl := newTestLimiter(RateLimitConfig{ChatPerMin: 1, TriggerPerMin: 1}, &now)

	if err := rl.Allow(KindChat); err != nil {
		t.Fatal(err)
	}
	if err := rl.Allow(KindTrigger); err != nil {
		t.Fatalf("trigger limited by chat usage: %v", err)
	}
}

func TestRateLimiter_UnknownKind(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{})
	for range 1000 {
		if err := rl.Allow("memory"); err != nil {
			t.Fatalf("unknown kind limited: %v", err)
		}
	}
}

func TestRateLimiter_Defaults(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{})
	if got := rl.buckets[KindChat].limit; got != 30 {
		t.Errorf("chat limit = %d, want 30", got)
	}
	if got := rl.buckets[KindTrigger].limit; got != 10 {
		t.Errorf("trigger limit = %d, want 10", got)
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{ChatPerMin: 50})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow(KindChat) == nil {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("allowed = %d, want 50", allowed)
	}
}
