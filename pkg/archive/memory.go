package archive

import (
	"sync"
	"time"
)

const memoryKeep = 50

// MemoryStore is a simple in-memory implementation, intended for dev/demo and
// for running without a local database file.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]Entry)}
}

func (m *MemoryStore) Record(e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	list := append(m.entries[e.Node], e)
	if len(list) > memoryKeep {
		list = list[len(list)-memoryKeep:]
	}
	m.entries[e.Node] = list
	return nil
}

func (m *MemoryStore) Recent(node string, limit int) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.entries[node]
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	out := make([]Entry, 0, limit)
	for i := len(list) - 1; i >= len(list)-limit; i-- {
		out = append(out, list[i])
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
