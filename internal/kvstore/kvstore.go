// Package kvstore defines the key-value store the fundamentals cache
// persists through. The interface is deliberately small (get/set/delete/
// keys) so the same cache logic can run against an in-memory map, a
// browser-storage bridge, or an on-disk store.
package kvstore

import "sync"

type Store interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
	Delete(key string)
	Keys() []string
}

// Memory is a mutex-guarded in-process Store.
type Memory struct {
	mu    sync.RWMutex
	items map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{items: make(map[string][]byte)}
}

func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok
}

func (m *Memory) Set(key string, value []byte) {
	m.mu.Lock()
	m.items[key] = value
	m.mu.Unlock()
}

func (m *Memory) Delete(key string) {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
}

func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	return keys
}
