package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerResolveCreatesLazily(t *testing.T) {
	m := NewManager(0)
	s, created := m.Resolve("10.0.0.7")
	require.True(t, created)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "10.0.0.7", s.Key)

	again, created := m.Resolve("10.0.0.7")
	assert.False(t, created)
	assert.Equal(t, s.ID, again.ID)

	global, _ := m.Resolve("")
	assert.Equal(t, GlobalKey, global.Key)
	assert.Equal(t, 2, m.ActiveCount())
}

func TestManagerRecordTurns(t *testing.T) {
	m := NewManager(0)
	m.Resolve("k")
	require.NoError(t, m.RecordTurns("k", 2))

	got, err := m.Get("k")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Turns)
	assert.ErrorIs(t, m.RecordTurns("missing", 1), ErrNotFound)
}

func TestManagerJanitorExpiresIdle(t *testing.T) {
	m := NewManager(30 * time.Millisecond)
	m.Resolve("u1")

	var (
		mu      sync.Mutex
		expired []string
	)
	m.SetExpireHook(func(s *Session) {
		mu.Lock()
		defer mu.Unlock()
		expired = append(expired, s.Key)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, 10*time.Millisecond)

	time.Sleep(90 * time.Millisecond)
	_, err := m.Get("u1")
	assert.ErrorIs(t, err, ErrNotFound)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"u1"}, expired)
}

func TestManagerWithoutTTLNeverExpires(t *testing.T) {
	m := NewManager(0)
	m.Resolve("u1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, time.Millisecond)
	m.expireIdle()
	_, err := m.Get("u1")
	assert.NoError(t, err, "session kept")
}
