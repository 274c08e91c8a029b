package expiry

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type memoryKey struct {
	scope     string
	sessionID uuid.UUID
}

// MemoryStore is an in-memory Store for tests and single-process development.
type MemoryStore struct {
	mu   sync.RWMutex
	recs map[memoryKey]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: make(map[memoryKey]Record)}
}

func (m *MemoryStore) Record(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[memoryKey{rec.Scope, rec.SessionID}] = rec
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, scope string, sessionID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recs, memoryKey{scope, sessionID})
	return nil
}

func (m *MemoryStore) ListByScope(_ context.Context, scope string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var recs []Record
	for k, rec := range m.recs {
		if k.scope == scope {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}
