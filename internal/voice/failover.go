package voice

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

// NewFailoverSynthesizer prefers primary and switches to fallback when primary fails.
// Once fallback succeeds, it stays active until fallback fails; then primary is retried.
func NewFailoverSynthesizer(primary, fallback Synthesizer) Synthesizer {
	return &failoverSynthesizer{primary: primary, fallback: fallback}
}

type failoverSynthesizer struct {
	fallbackActive atomic.Bool
	primary        Synthesizer
	fallback       Synthesizer
}

func (s *failoverSynthesizer) Name() string {
	return s.primary.Name() + "+" + s.fallback.Name()
}

// FallbackActive reports whether requests currently go to the fallback first.
func (s *failoverSynthesizer) FallbackActive() bool {
	return s.fallbackActive.Load()
}

func (s *failoverSynthesizer) Synthesize(ctx context.Context, text string) (Audio, error) {
	if s.fallbackActive.Load() {
		out, fbErr := s.fallback.Synthesize(ctx, text)
		if fbErr == nil || errors.Is(fbErr, ErrNothingToSay) {
			return out, fbErr
		}
		// Fallback failed after being active; try primary again.
		out, prErr := s.primary.Synthesize(ctx, text)
		if prErr == nil {
			s.fallbackActive.Store(false)
			return out, nil
		}
		return Audio{}, fmt.Errorf("tts fallback failed: %v; tts primary failed: %w", fbErr, prErr)
	}

	out, prErr := s.primary.Synthesize(ctx, text)
	if prErr == nil || errors.Is(prErr, ErrNothingToSay) || errors.Is(prErr, context.Canceled) {
		return out, prErr
	}
	out, fbErr := s.fallback.Synthesize(ctx, text)
	if fbErr != nil {
		return Audio{}, fmt.Errorf("tts primary failed: %v; tts fallback failed: %w", prErr, fbErr)
	}
	s.fallbackActive.Store(true)
	return out, nil
}
