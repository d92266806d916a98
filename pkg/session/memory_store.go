package session

import (
	"context"
	"sync"
)

// MemoryStore keeps records in process. It backs tests and the "memory" driver.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (m *MemoryStore) Insert(_ context.Context, s *Session) error {
	if err := checkIDs(s); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[s.SessionID]; ok {
		return ErrDuplicate
	}
	m.records[s.SessionID] = s.Record()
	return nil
}

func (m *MemoryStore) FindOne(_ context.Context, f Filter) (*Session, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[f.SessionID]
	if !ok || !f.Matches(r) {
		return nil, ErrNotFound
	}
	return r.Session()
}

func (m *MemoryStore) UpdateOne(_ context.Context, f Filter, p Patch) (bool, error) {
	if err := f.validate(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[f.SessionID]
	if !ok || !f.Matches(r) {
		return false, nil
	}
	p.Apply(&r)
	m.records[f.SessionID] = r
	return true, nil
}
