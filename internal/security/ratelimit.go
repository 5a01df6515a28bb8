package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a request exceeds the rate limit.
var ErrRateLimited = errors.New("rate limit exceeded")

// Rate-limited request kinds.
const (
	KindChat    = "chat"
	KindTrigger = "trigger"
)

// RateLimitConfig holds per-minute limits for gateway requests.
type RateLimitConfig struct {
	ChatPerMin    int `yaml:"chat_per_min"`
	TriggerPerMin int `yaml:"trigger_per_min"`
}

func (c *RateLimitConfig) defaults() {
	if c.ChatPerMin <= 0 {
		c.ChatPerMin = 30
	}
	if c.TriggerPerMin <= 0 {
		c.TriggerPerMin = 10
	}
}

// RateLimiter implements sliding window rate limiting.
// Each bucket tracks timestamps of recent events within its window.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	window time.Duration
	limit  int
	events []time.Time
}

// NewRateLimiter creates a rate limiter. Zero fields use defaults.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	cfg.defaults()
	return &RateLimiter{
		now: time.Now,
		buckets: map[string]*bucket{
			KindChat:    {window: time.Minute, limit: cfg.ChatPerMin},
			KindTrigger: {window: time.Minute, limit: cfg.TriggerPerMin},
		},
	}
}

// Allow records one event of kind, or returns ErrRateLimited.
// Kinds without a bucket are unlimited.
func (rl *RateLimiter) Allow(kind string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[kind]
	if !ok {
		return nil
	}

	now := rl.now()
	b.evict(now)
	if len(b.events) >= b.limit {
		return ErrRateLimited
	}
	b.events = append(b.events, now)
	return nil
}

// evict removes events outside the sliding window.
func (b *bucket) evict(now time.Time) {
	cutoff := now.Add(-b.window)
	i := 0
	for i < len(b.events) && b.events[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		b.events = b.events[i:]
	}
}
