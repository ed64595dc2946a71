package credstore

import (
	"context"
	"sync"

	"github.com/darmiel/taskdeck/internal/bundle"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps the serialized record in memory.
// It goes through the same encoding as the durable stores.
type MemoryStore struct {
	mu     sync.RWMutex
	record []byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Persist(_ context.Context, b *bundle.TokenBundle) error {
	data, err := encodeRecord(b)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.record = data
	return nil
}

func (s *MemoryStore) Load(_ context.Context) (*bundle.TokenBundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.record == nil {
		return nil, nil
	}
	return decodeRecord(s.record), nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record = nil
	return nil
}

// SetRecord replaces the raw record, e.g. with one written by another version.
func (s *MemoryStore) SetRecord(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record = data
}

// Record returns a copy of the raw record, nil if empty.
func (s *MemoryStore) Record() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.record == nil {
		return nil
	}
	cpy := make([]byte, len(s.record))
	copy(cpy, s.record)
	return cpy
}
