package store

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/diarykeeper/internal/common"
	"github.com/dmitrijs2005/diarykeeper/internal/cryptox"
)

// MemoryStore keeps serialized envelopes in a map. Used for development
// and tests; contents are lost on restart.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*cryptox.Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	b, ok := s.data[id]
	s.mu.RUnlock()
	if !ok {
		return nil, common.ErrorNotFound
	}
	return decode(b)
}

func (s *MemoryStore) Put(ctx context.Context, id string, env *cryptox.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := env.MarshalBinary()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data[id] = b
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.data, id)
	s.mu.Unlock()
	return nil
}

// Len reports how many envelopes are stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
