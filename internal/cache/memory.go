package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process cache with a bounded entry count. When the
// bound is exceeded the oldest entries are evicted.
type Memory struct {
	mu         sync.RWMutex
	entries    map[string]*Entry
	maxEntries int
}

// NewMemory creates a Memory cache holding at most maxEntries entries.
func NewMemory(maxEntries int) *Memory {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	return &Memory{
		entries:    make(map[string]*Entry),
		maxEntries: maxEntries,
	}
}

// Get returns the entry for key, or nil on a miss.
func (m *Memory) Get(_ context.Context, key string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	clone := *entry
	clone.Payload = append([]byte(nil), entry.Payload...)
	return &clone, nil
}

// Put stores a payload under key, stamping it with the current time.
func (m *Memory) Put(_ context.Context, key string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = &Entry{
		Payload:  append([]byte(nil), payload...),
		StoredAt: time.Now(),
	}
	if len(m.entries) > m.maxEntries {
		m.evictOldest()
	}
	return nil
}

func (m *Memory) evictOldest() {
	var (
		oldestKey string
		oldestAt  time.Time
	)
	for key, entry := range m.entries {
		if oldestKey == "" || entry.StoredAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.StoredAt
		}
	}
	if oldestKey != "" {
		delete(m.entries, oldestKey)
	}
}

// Close is a no-op for the in-memory cache.
func (m *Memory) Close() error {
	return nil
}

// ensure interface compliance at compile time
var _ Cache = (*Memory)(nil)
