package ratelimit

import (
	"sync"
	"time"
)

type bucket struct {
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	last       time.Time
}

// Limiter is a keyed token bucket, used to bound per-caller request rates on
// the decision and ingest endpoints. The key set is capped: when full, the
// stalest bucket is evicted so hostile key churn cannot grow it unbounded.
type Limiter struct {
	mu      sync.Mutex
	m       map[string]*bucket
	maxKeys int
}

// New creates a limiter tracking at most maxKeys callers.
func New(maxKeys int) *Limiter {
	if maxKeys <= 0 {
		maxKeys = 4096
	}
	return &Limiter{m: make(map[string]*bucket), maxKeys: maxKeys}
}

// Allow consumes one token for key if available.
func (l *Limiter) Allow(key string, capacity, refillPerSec float64) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.m[key]
	if !ok {
		if len(l.m) >= l.maxKeys {
			l.evictStalest()
		}
		b = &bucket{tokens: capacity, capacity: capacity, refillRate: refillPerSec, last: now}
		l.m[key] = b
	}

	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.refillRate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.last = now
	}
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// evictStalest assumes l.mu is held.
func (l *Limiter) evictStalest() {
	var oldest string
	var oldestAt time.Time
	for k, b := range l.m {
		if oldest == "" || b.last.Before(oldestAt) {
			oldest, oldestAt = k, b.last
		}
	}
	if oldest != "" {
		delete(l.m, oldest)
	}
}
