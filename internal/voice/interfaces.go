package voice

import (
	"context"
	"errors"
	"fmt"
)

// ErrNothingToSay is returned when sanitization leaves no speakable text.
var ErrNothingToSay = errors.New("nothing to synthesize")

// Audio is one synthesized clip.
type Audio struct {
	Data   []byte
	Format string
}

// Synthesizer turns speakable text into a single audio clip.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (Audio, error)
	Name() string
}

// SynthesisError wraps a failure from a speech provider.
type SynthesisError struct {
	Provider  string
	Code      string
	Retryable bool
	Err       error
}

func (e *SynthesisError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s tts (%s): %v", e.Provider, e.Code, e.Err)
	}
	return fmt.Sprintf("%s tts: %v", e.Provider, e.Err)
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}

type TTSEventType string

const (
	TTSEventAudio TTSEventType = "audio"
	TTSEventFinal TTSEventType = "final"
	TTSEventError TTSEventType = "error"
)

type TTSEvent struct {
	Type        TTSEventType
	AudioBase64 string
	Format      string
	Code        string
	Detail      string
	Retryable   bool
}

type TTSSettings struct {
	Stability       float64
	SimilarityBoost float64
	Speed           float64
}

// TTSStream is an incremental synthesis session on a streaming provider.
type TTSStream interface {
	SendText(ctx context.Context, text string, tryTrigger bool) error
	CloseInput(ctx context.Context) error
	Events() <-chan TTSEvent
	Close() error
}

type TTSProvider interface {
	StartStream(ctx context.Context, voiceID, modelID string, settings TTSSettings) (TTSStream, error)
}
