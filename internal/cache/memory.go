package cache

import (
	"context"
	"sync"
	"time"

	"github.com/cementai/plant-core/pkg/models"
)

// maxMemoryEntries bounds the in-process cache.
const maxMemoryEntries = 10000

type memoryEntry struct {
	p       models.Prediction
	expires time.Time // zero means no expiry
}

// Memory is an in-process TTL cache.
type Memory struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemory creates an in-process cache. A zero ttl keeps entries until
// the cache is full.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) (*models.Prediction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.entries, key)
		return nil, false, nil
	}
	p := e.p
	return &p, true, nil
}

func (m *Memory) Set(_ context.Context, key string, p *models.Prediction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if len(m.entries) >= maxMemoryEntries {
		m.evict(now)
	}
	e := memoryEntry{p: *p}
	if m.ttl > 0 {
		e.expires = now.Add(m.ttl)
	}
	m.entries[key] = e
	return nil
}

// evict drops expired entries, or everything when none have expired.
func (m *Memory) evict(now time.Time) {
	for k, e := range m.entries {
		if !e.expires.IsZero() && !now.Before(e.expires) {
			delete(m.entries, k)
		}
	}
	if len(m.entries) >= maxMemoryEntries {
		m.entries = make(map[string]memoryEntry)
	}
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) Close() error { return nil }
