// Package store provides Store implementations.
package store

import (
	"context"
	"sync"

	"github.com/warp/dose-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	collections map[string][]engine.Record
}

func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string][]engine.Record),
	}
}

// GetAll returns a copy of the collection in insertion order.
func (m *Memory) GetAll(_ context.Context, collection string) ([]engine.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs := m.collections[collection]
	result := make([]engine.Record, len(recs))
	for i, r := range recs {
		result[i] = engine.Record{ID: r.ID, Data: append([]byte(nil), r.Data...)}
	}
	return result, nil
}

// Put replaces in place when the id exists, appends otherwise.
func (m *Memory) Put(_ context.Context, collection string, rec engine.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec.Data = append([]byte(nil), rec.Data...)
	recs := m.collections[collection]
	for i := range recs {
		if recs[i].ID == rec.ID {
			recs[i] = rec
			return nil
		}
	}
	m.collections[collection] = append(recs, rec)
	return nil
}

func (m *Memory) Remove(_ context.Context, collection string, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	recs := m.collections[collection]
	for i := range recs {
		if recs[i].ID == id {
			m.collections[collection] = append(recs[:i:i], recs[i+1:]...)
			return nil
		}
	}
	return nil
}
