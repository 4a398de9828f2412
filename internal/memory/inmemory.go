package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a process-lifetime store keyed by session identity.
type InMemoryStore struct {
	mu       sync.RWMutex
	bound    int
	sessions map[string][]Turn
}

func NewInMemoryStore(bound int) *InMemoryStore {
	return &InMemoryStore{
		bound:    normalizeBound(bound),
		sessions: make(map[string][]Turn),
	}
}

func (s *InMemoryStore) Append(_ context.Context, key string, turns ...Turn) error {
	if len(turns) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	arr := s.sessions[key]
	for _, t := range turns {
		arr = append(arr, stamp(t))
		arr = trimToBound(arr, s.bound)
	}
	s.sessions[key] = arr
	return nil
}

func (s *InMemoryStore) History(_ context.Context, key string) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.sessions[key]
	if len(arr) == 0 {
		return nil, nil
	}
	out := make([]Turn, len(arr))
	copy(out, arr)
	return out, nil
}

func (s *InMemoryStore) Evict(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key)
	return nil
}

func (s *InMemoryStore) Bound() int { return s.bound }

func (s *InMemoryStore) Mode() string { return "memory" }

func (s *InMemoryStore) Close() error { return nil }

func stamp(t Turn) Turn {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	return t
}
