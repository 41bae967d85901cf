package settings

import (
	"context"
	"sync"
)

// Backend is a tiny string key-value store. Get returns "" for missing keys.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

type memoryBackend struct {
	mutex   sync.RWMutex
	hashmap map[string]string
}

func NewMemory() Backend {
	return &memoryBackend{hashmap: make(map[string]string)}
}

func (m *memoryBackend) Get(_ context.Context, key string) (string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.hashmap[key], nil
}

func (m *memoryBackend) Set(_ context.Context, key string, value string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.hashmap[key] = value
	return nil
}

func (m *memoryBackend) Delete(_ context.Context, key string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.hashmap, key)
	return nil
}

func (m *memoryBackend) Close() error { return nil }
