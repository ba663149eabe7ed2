package storage

import (
	"context"
	"sync"
)

type memory struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemory() KV {
	return &memory{data: make(map[string]string)}
}

func (m *memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *memory) Set(_ context.Context, key string, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = value
	return nil
}

func (m *memory) MultiSet(_ context.Context, pairs []Pair) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range pairs {
		m.data[p.Key] = p.Value
	}
	return nil
}

func (m *memory) MultiRemove(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}
