package cache

import (
	"context"
	"sync"
	"time"
)

type memoryLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	events map[string][]time.Time
	now    func() time.Time
}

// NewMemoryRateLimiter is the in-process counterpart of NewRateLimiter.
func NewMemoryRateLimiter(limit int, window time.Duration) RateLimiter {
	return &memoryLimiter{limit: limit, window: window, events: make(map[string][]time.Time), now: time.Now}
}

func (m *memoryLimiter) Limit() int { return m.limit }

func (m *memoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	cutoff := now.Add(-m.window)
	kept := m.events[key][:0]
	for _, at := range m.events[key] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	kept = append(kept, now)
	m.events[key] = kept
	return len(kept) <= m.limit, nil
}

type memoryRedeemer struct {
	mu   sync.Mutex
	used map[string]time.Time
	now  func() time.Time
}

func NewMemoryRedeemer() Redeemer {
	return &memoryRedeemer{used: make(map[string]time.Time), now: time.Now}
}

func (m *memoryRedeemer) Redeem(_ context.Context, id string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, exp := range m.used {
		if now.After(exp) {
			delete(m.used, k)
		}
	}
	if _, seen := m.used[id]; seen {
		return false, nil
	}
	m.used[id] = now.Add(ttl)
	return true, nil
}
