package ratelimit

import (
	"context"
	"sync"
	"time"
)

// entry is one token bucket, keyed by caller identity.
type entry struct {
	tokens   float64
	lastSeen time.Time
}

// MemoryLimiter implements Limiter with an in-process token bucket per key.
//
// Watchtower runs as a single process per deployment, so in-memory state is
// sufficient; a multi-instance deployment would need the buckets moved into
// the shared Redis the registry already uses. A background goroutine evicts
// idle buckets to bound memory.
type MemoryLimiter struct {
	rate  float64 // tokens added per second
	burst float64 // bucket capacity

	mu      sync.Mutex
	entries map[string]*entry

	stopOnce sync.Once
	done     chan struct{}
}

// NewMemoryLimiter creates a token bucket limiter allowing a sustained rate
// of requests per second per key, with the given burst capacity.
// Call Close to stop the eviction goroutine.
func NewMemoryLimiter(rate float64, burst int) *MemoryLimiter {
	m := &MemoryLimiter{
		rate:    rate,
		burst:   float64(burst),
		entries: make(map[string]*entry),
		done:    make(chan struct{}),
	}
	go m.evictLoop()
	return m
}

// Allow consumes one token from the bucket for key.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	e, ok := m.entries[key]
	if !ok {
		// First request: full bucket minus the token just spent.
		m.entries[key] = &entry{tokens: m.burst - 1, lastSeen: now}
		return true, nil
	}

	e.tokens += now.Sub(e.lastSeen).Seconds() * m.rate
	if e.tokens > m.burst {
		e.tokens = m.burst
	}
	e.lastSeen = now

	if e.tokens < 1 {
		return false, nil
	}
	e.tokens--
	return true, nil
}

// Close stops the eviction goroutine. Safe to call multiple times.
func (m *MemoryLimiter) Close() error {
	m.stopOnce.Do(func() { close(m.done) })
	return nil
}

const idleEvictAfter = 10 * time.Minute

func (m *MemoryLimiter) evictLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-idleEvictAfter)
			m.mu.Lock()
			for key, e := range m.entries {
				if e.lastSeen.Before(cutoff) {
					delete(m.entries, key)
				}
			}
			m.mu.Unlock()
		}
	}
}
