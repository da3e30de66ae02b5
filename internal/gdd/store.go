package gdd

import (
	"context"
	"encoding/json"
	"sync"
)

// Store persists document sessions. Implementations return copies so callers
// may mutate what they get back and Put it again.
type Store interface {
	Get(ctx context.Context, id string) (*DocSession, error)
	Put(ctx context.Context, s *DocSession) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*DocSession, error) {
	m.mu.RLock()
	b, ok := m.data[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return decodeSession(b)
}

func (m *MemoryStore) Put(_ context.Context, s *DocSession) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[s.ID] = b
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.data, id)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Close() error { return nil }

func decodeSession(b []byte) (*DocSession, error) {
	var s DocSession
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
