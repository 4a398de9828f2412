package voice

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
)

const defaultStreamTimeout = 60 * time.Second

// StreamSynthesizer collects a streaming provider's audio chunks into one clip.
type StreamSynthesizer struct {
	name     string
	provider TTSProvider
	voiceID  string
	modelID  string
	settings TTSSettings
	format   string
	timeout  time.Duration
}

type StreamSynthesizerConfig struct {
	Name     string
	VoiceID  string
	ModelID  string
	Settings TTSSettings
	Format   string
	// Timeout bounds one whole synthesis, dial included. Zero means 60s.
	Timeout time.Duration
}

func NewStreamSynthesizer(provider TTSProvider, cfg StreamSynthesizerConfig) *StreamSynthesizer {
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = "stream"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultStreamTimeout
	}
	return &StreamSynthesizer{
		name:     name,
		provider: provider,
		voiceID:  cfg.VoiceID,
		modelID:  cfg.ModelID,
		settings: cfg.Settings,
		format:   cfg.Format,
		timeout:  timeout,
	}
}

func (s *StreamSynthesizer) Name() string { return s.name }

func (s *StreamSynthesizer) Synthesize(ctx context.Context, text string) (Audio, error) {
	if strings.TrimSpace(text) == "" {
		return Audio{}, ErrNothingToSay
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	stream, err := s.provider.StartStream(ctx, s.voiceID, s.modelID, s.settings)
	if err != nil {
		return Audio{}, &SynthesisError{Provider: s.name, Err: fmt.Errorf("start stream: %w", err)}
	}
	defer stream.Close()

	if err := stream.SendText(ctx, text, true); err != nil {
		return Audio{}, &SynthesisError{Provider: s.name, Err: fmt.Errorf("send text: %w", err)}
	}
	if err := stream.CloseInput(ctx); err != nil {
		return Audio{}, &SynthesisError{Provider: s.name, Err: fmt.Errorf("close input: %w", err)}
	}

	var buf bytes.Buffer
	format := s.format
	for {
		select {
		case <-ctx.Done():
			code := "canceled"
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				code = "timeout"
			}
			return Audio{}, &SynthesisError{Provider: s.name, Code: code, Retryable: code == "timeout", Err: ctx.Err()}
		case ev, ok := <-stream.Events():
			if !ok {
				return s.finish(buf.Bytes(), format)
			}
			switch ev.Type {
			case TTSEventAudio:
				chunk, err := base64.StdEncoding.DecodeString(ev.AudioBase64)
				if err != nil {
					return Audio{}, &SynthesisError{Provider: s.name, Err: fmt.Errorf("decode chunk: %w", err)}
				}
				buf.Write(chunk)
				if format == "" && ev.Format != "" {
					format = ev.Format
				}
			case TTSEventFinal:
				return s.finish(buf.Bytes(), format)
			case TTSEventError:
				return Audio{}, &SynthesisError{
					Provider:  s.name,
					Code:      ev.Code,
					Retryable: ev.Retryable,
					Err:       errors.New(ev.Detail),
				}
			}
		}
	}
}

func (s *StreamSynthesizer) finish(data []byte, format string) (Audio, error) {
	if len(data) == 0 {
		return Audio{}, &SynthesisError{Provider: s.name, Err: errors.New("stream ended without audio")}
	}
	return Audio{Data: data, Format: format}, nil
}
