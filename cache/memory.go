package cache

import (
	"sync"
	"time"
)

// MemoryCache is an in-process bounded cache. When a Set would exceed the
// bound, the single oldest-inserted entry is evicted: insertion-order FIFO,
// not LRU. Access recency does not protect an entry.
type MemoryCache struct {
	mu      sync.Mutex
	max     int
	entries map[string]entry
	order   []string // insertion order, oldest first
}

// NewMemory creates a memory cache bounded to max entries.
func NewMemory(max int) *MemoryCache {
	return &MemoryCache{
		max:     max,
		entries: make(map[string]entry),
	}
}

func (m *MemoryCache) Get(key string) (any, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if e.expired(time.Now()) {
		m.remove(key)
		return nil, false, nil
	}
	return e.Value, true, nil
}

func (m *MemoryCache) Set(key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; !exists {
		if len(m.entries) >= m.max && len(m.order) > 0 {
			m.remove(m.order[0])
		}
		m.order = append(m.order, key)
	}
	m.entries[key] = entry{Value: value, Expires: expiryFor(time.Now(), ttl)}
	return nil
}

func (m *MemoryCache) Has(key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return false, nil
	}
	if e.expired(time.Now()) {
		m.remove(key)
		return false, nil
	}
	return true, nil
}

func (m *MemoryCache) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remove(key)
	return nil
}

func (m *MemoryCache) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]entry)
	m.order = nil
	return nil
}

func (m *MemoryCache) Size() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries), nil
}

// remove deletes an entry and its insertion-order slot. Callers hold mu.
func (m *MemoryCache) remove(key string) {
	if _, ok := m.entries[key]; !ok {
		return
	}
	delete(m.entries, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}
