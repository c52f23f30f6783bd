package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryCounter is an in-process CounterStore for single-node deployments
// and tests. Production multi-node deployments should use RedisCounter so
// all nodes share one window.
type MemoryCounter struct {
	mu      sync.Mutex
	entries map[string][]memberEntry
}

type memberEntry struct {
	member string
	at     time.Time
}

// NewMemoryCounter creates an empty in-memory counter store.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{
		entries: make(map[string][]memberEntry),
	}
}

// Record implements CounterStore.
func (c *MemoryCounter) Record(_ context.Context, key, member string, now time.Time, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := now.Add(-window)
	kept := c.entries[key][:0]
	for _, e := range c.entries[key] {
		if e.at.After(cutoff) {
			kept = append(kept, e)
		}
	}

	count := int64(len(kept))
	c.entries[key] = append(kept, memberEntry{member: member, at: now})
	return count, nil
}

// Retract implements CounterStore.
func (c *MemoryCounter) Retract(_ context.Context, key, member string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.entries[key]
	for i, e := range entries {
		if e.member == member {
			c.entries[key] = append(entries[:i], entries[i+1:]...)
			return nil
		}
	}
	return nil
}
