package session

import (
	"context"
	"sync"
	"time"

	"github.com/Divas-Gupta30/esports-agent/internal/graph"
)

// MemoryStore keeps encoded state in a map. Data is lost when the process
// exits.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]byte
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string][]byte),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (s *MemoryStore) Load(ctx context.Context, id string) (*graph.State, error) {
	s.mu.RLock()
	b, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	st, err := decode(b)
	if err != nil {
		return nil, err
	}
	if expired(st, s.ttl, s.now()) {
		return nil, ErrNotFound
	}
	return st, nil
}

func (s *MemoryStore) Save(ctx context.Context, id string, st *graph.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stored *graph.State
	if b, ok := s.sessions[id]; ok {
		var err error
		if stored, err = decode(b); err != nil {
			return err
		}
	}
	if conflicts(stored, st.Version, s.ttl, s.now()) {
		return ErrConflict
	}

	saved := next(st, s.now())
	b, err := encode(saved)
	if err != nil {
		return err
	}
	s.sessions[id] = b
	st.Version = saved.Version
	st.UpdatedAt = saved.UpdatedAt
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// Len returns the number of stored sessions, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *MemoryStore) Close() error {
	return nil
}
