package store

import (
	"context"
	"fmt"
	"sync"
)

// MemoryContainer keeps records in a map. It is safe for concurrent use.
type MemoryContainer struct {
	mu      sync.RWMutex
	records map[string]Fields
}

// NewMemoryContainer creates an empty MemoryContainer.
func NewMemoryContainer() *MemoryContainer {
	return &MemoryContainer{records: make(map[string]Fields)}
}

func (m *MemoryContainer) Put(_ context.Context, id string, fields Fields, replace bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.records[id]
	if exists && !replace {
		return false, fmt.Errorf("%w: %q", ErrSubjectExists, id)
	}
	m.records[id] = cloneFields(fields)
	return exists, nil
}

func (m *MemoryContainer) Get(_ context.Context, id string) (Fields, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSubjectNotFound, id)
	}
	return cloneFields(f), nil
}

func (m *MemoryContainer) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

func (m *MemoryContainer) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *MemoryContainer) Close() error { return nil }
