package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// GlobalKey is the session key used when conversations are not split per client.
const GlobalKey = "global"

var ErrNotFound = errors.New("session not found")

// Session tracks one conversation identity. Its turn history lives in the memory store.
type Session struct {
	ID             string    `json:"session_id"`
	Key            string    `json:"key"`
	Turns          int       `json:"turns"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// Manager creates sessions lazily on first use and optionally expires idle ones.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	idleTTL  time.Duration
	onExpire func(*Session)
}

// NewManager returns a registry. An idleTTL of zero keeps sessions for the process lifetime.
func NewManager(idleTTL time.Duration) *Manager {
	if idleTTL < 0 {
		idleTTL = 0
	}
	return &Manager{
		sessions: make(map[string]*Session),
		idleTTL:  idleTTL,
	}
}

func (m *Manager) SetExpireHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// Resolve returns the session for key, creating it on first use, and marks it active.
func (m *Manager) Resolve(key string) (s *Session, created bool) {
	if key == "" {
		key = GlobalKey
	}
	now := time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.sessions[key]
	if ok {
		existing.LastActivityAt = now
		return clone(existing), false
	}
	s = &Session{
		ID:             uuid.NewString(),
		Key:            key,
		StartedAt:      now,
		LastActivityAt: now,
	}
	m.sessions[key] = s
	return clone(s), true
}

func (m *Manager) Get(key string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[key]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

// RecordTurns bumps the turn counter after a completed request.
func (m *Manager) RecordTurns(key string, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok {
		return ErrNotFound
	}
	s.Turns += n
	s.LastActivityAt = time.Now().UTC()
	return nil
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if m.idleTTL <= 0 {
		return
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireIdle()
			}
		}
	}()
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) expireIdle() {
	now := time.Now().UTC()
	var expired []*Session

	m.mu.Lock()
	for key, s := range m.sessions {
		if now.Sub(s.LastActivityAt) < m.idleTTL {
			continue
		}
		expired = append(expired, clone(s))
		delete(m.sessions, key)
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, s := range expired {
			hook(s)
		}
	}
}

func clone(s *Session) *Session {
	c := *s
	return &c
}
