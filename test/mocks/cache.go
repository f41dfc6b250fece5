package mocks

import (
	"context"
	"sync"
	"time"
)

// MockCache is an in-memory cache.Cache that counts reads and writes.
type MockCache struct {
	data map[string]string
	ttls map[string]time.Duration
	mu   sync.RWMutex

	// Err makes every operation fail when set
	Err error

	Gets int
	Sets int
}

// NewMockCache creates a new mock cache instance
func NewMockCache() *MockCache {
	return &MockCache{
		data: make(map[string]string),
		ttls: make(map[string]time.Duration),
	}
}

// Get returns "" for missing keys, like RedisCache.
func (m *MockCache) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Gets++
	if m.Err != nil {
		return "", m.Err
	}
	return m.data[key], nil
}

// Set stores a value in the mock cache
func (m *MockCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Sets++
	if m.Err != nil {
		return m.Err
	}
	switch v := value.(type) {
	case string:
		m.data[key] = v
	case []byte:
		m.data[key] = string(v)
	}
	// expiration is recorded but never enforced
	m.ttls[key] = expiration
	return nil
}

// Del deletes keys from the mock cache
func (m *MockCache) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	for _, key := range keys {
		delete(m.data, key)
		delete(m.ttls, key)
	}
	return nil
}

// TTL returns the expiration a key was stored with
func (m *MockCache) TTL(key string) time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ttls[key]
}
