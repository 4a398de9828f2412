package voice

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"
	"time"

	"github.com/ent0n29/lain/internal/audio"
)

// MockProvider is a local stand-in used when no speech provider is configured.
// Each text chunk becomes a short silent WAV clip.
type MockProvider struct {
	clip time.Duration
}

func NewMockProvider() *MockProvider { return &MockProvider{clip: 200 * time.Millisecond} }

func (p *MockProvider) StartStream(_ context.Context, _ string, _ string, _ TTSSettings) (TTSStream, error) {
	events := make(chan TTSEvent, 128)
	return &mockTTSStream{events: events, clip: p.clip}, nil
}

// NewMockSynthesizer wires the mock provider through the stream collector.
func NewMockSynthesizer() *StreamSynthesizer {
	return NewStreamSynthesizer(NewMockProvider(), StreamSynthesizerConfig{Name: "mock", Format: "wav"})
}

type mockTTSStream struct {
	mu     sync.Mutex
	events chan TTSEvent
	clip   time.Duration
	closed bool
}

func (s *mockTTSStream) SendText(_ context.Context, text string, _ bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	encoded := base64.StdEncoding.EncodeToString(audio.SilentWAV(s.clip, audio.DefaultSampleRate))
	s.events <- TTSEvent{Type: TTSEventAudio, AudioBase64: encoded, Format: "wav"}
	return nil
}

func (s *mockTTSStream) CloseInput(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.events <- TTSEvent{Type: TTSEventFinal}
	return nil
}

func (s *mockTTSStream) Events() <-chan TTSEvent { return s.events }

func (s *mockTTSStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.events)
	return nil
}
