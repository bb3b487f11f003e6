package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	entry     Entry
	expiresAt time.Time
}

// Memory is an in-process Cache. It is the default backend when no
// Redis address is configured.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	stop    chan struct{}
	once    sync.Once
	now     func() time.Time
}

// NewMemory creates an in-memory cache. When janitorInterval is
// positive a background goroutine evicts expired entries on that
// interval; expired entries are also dropped lazily on Get.
func NewMemory(janitorInterval time.Duration) *Memory {
	m := &Memory{
		entries: make(map[string]memoryEntry),
		stop:    make(chan struct{}),
		now:     time.Now,
	}
	if janitorInterval > 0 {
		go m.janitor(janitorInterval)
	}
	return m
}

func (m *Memory) Get(_ context.Context, key string) (*Entry, bool, error) {
	m.mu.RLock()
	me, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !me.expiresAt.IsZero() && m.now().After(me.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, false, nil
	}
	e := me.entry
	return &e, true, nil
}

func (m *Memory) Set(_ context.Context, key string, entry *Entry, ttl time.Duration) error {
	me := memoryEntry{entry: *entry}
	if ttl > 0 {
		me.expiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = me
	m.mu.Unlock()
	return nil
}

// Close stops the janitor goroutine.
func (m *Memory) Close() error {
	m.once.Do(func() { close(m.stop) })
	return nil
}

// Len reports the number of entries currently held, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.evictExpired()
		}
	}
}

func (m *Memory) evictExpired() {
	now := m.now()
	m.mu.Lock()
	for k, me := range m.entries {
		if !me.expiresAt.IsZero() && now.After(me.expiresAt) {
			delete(m.entries, k)
		}
	}
	m.mu.Unlock()
}
