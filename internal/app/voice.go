package app

import (
	"fmt"

	"github.com/ent0n29/lain/internal/config"
	"github.com/ent0n29/lain/internal/voice"
)

type voiceSetup struct {
	synth  voice.Synthesizer
	detail string
}

func resolveSynthesizer(cfg config.Config) (voiceSetup, error) {
	synth, err := voice.NewSynthesizer(voice.SynthConfig{
		Provider:            cfg.TTSProvider,
		Timeout:             cfg.TTSTimeout,
		OpenAIAPIKey:        cfg.OpenAIAPIKey,
		OpenAIModel:         cfg.OpenAITTSModel,
		OpenAIVoice:         cfg.OpenAITTSVoice,
		ElevenLabsAPIKey:    cfg.ElevenLabsAPIKey,
		ElevenLabsWSBaseURL: cfg.ElevenLabsWSBaseURL,
		ElevenLabsVoice:     cfg.ElevenLabsTTSVoice,
		ElevenLabsModel:     cfg.ElevenLabsTTSModel,
		ElevenLabsFormat:    cfg.ElevenLabsFormat,
		LocalCommand:        cfg.LocalTTSCommand,
		LocalVoice:          cfg.LocalTTSVoice,
	})
	if err != nil {
		return voiceSetup{}, fmt.Errorf("tts provider init failed: %w", err)
	}
	if synth == nil {
		return voiceSetup{detail: "disabled"}, nil
	}
	detail := synth.Name()
	if _, ok := synth.(interface{ FallbackActive() bool }); ok {
		detail += " (automatic local fallback)"
	}
	return voiceSetup{synth: synth, detail: detail}, nil
}
