package voice

import (
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// SynthConfig selects and configures the speech provider.
type SynthConfig struct {
	Provider string
	Timeout  time.Duration

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	OpenAIVoice   string

	ElevenLabsAPIKey    string
	ElevenLabsWSBaseURL string
	ElevenLabsVoice     string
	ElevenLabsModel     string
	ElevenLabsFormat    string

	LocalCommand string
	LocalVoice   string
}

// NewSynthesizer builds the configured provider. A nil Synthesizer with a nil
// error means synthesis is disabled.
func NewSynthesizer(cfg SynthConfig) (Synthesizer, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "auto"
	}

	switch provider {
	case "auto":
		return newAutoSynthesizer(cfg), nil
	case "openai":
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for openai tts")
		}
		return newOpenAI(cfg), nil
	case "elevenlabs":
		if strings.TrimSpace(cfg.ElevenLabsAPIKey) == "" || strings.TrimSpace(cfg.ElevenLabsVoice) == "" {
			return nil, fmt.Errorf("ELEVENLABS_API_KEY and ELEVENLABS_TTS_VOICE are required for elevenlabs tts")
		}
		return newElevenLabs(cfg), nil
	case "local":
		local, err := NewLocalSynthesizer(LocalTTSConfig{Command: cfg.LocalCommand, Voice: cfg.LocalVoice, Timeout: cfg.Timeout})
		if err != nil {
			return nil, err
		}
		return local, nil
	case "mock":
		return NewMockSynthesizer(), nil
	case "none", "off":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported tts provider %q", cfg.Provider)
	}
}

func newAutoSynthesizer(cfg SynthConfig) Synthesizer {
	var primary Synthesizer
	switch {
	case strings.TrimSpace(cfg.OpenAIAPIKey) != "":
		primary = newOpenAI(cfg)
	case strings.TrimSpace(cfg.ElevenLabsAPIKey) != "" && strings.TrimSpace(cfg.ElevenLabsVoice) != "":
		primary = newElevenLabs(cfg)
	}

	if strings.TrimSpace(cfg.LocalCommand) != "" {
		local, err := NewLocalSynthesizer(LocalTTSConfig{Command: cfg.LocalCommand, Voice: cfg.LocalVoice, Timeout: cfg.Timeout})
		if err != nil {
			log.WithError(err).Warn("local tts unavailable")
		} else if primary != nil {
			return NewFailoverSynthesizer(primary, local)
		} else {
			return local
		}
	}
	if primary == nil {
		log.Info("no tts provider configured; replies will carry no audio")
	}
	return primary
}

func newOpenAI(cfg SynthConfig) *OpenAISynthesizer {
	return NewOpenAISynthesizer(OpenAITTSConfig{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
		Voice:   cfg.OpenAIVoice,
		Timeout: cfg.Timeout,
	})
}

func newElevenLabs(cfg SynthConfig) *StreamSynthesizer {
	provider := NewElevenLabsProvider(ElevenLabsConfig{
		APIKey:              cfg.ElevenLabsAPIKey,
		WSBaseURL:           cfg.ElevenLabsWSBaseURL,
		DefaultOutputFormat: cfg.ElevenLabsFormat,
	})
	return NewStreamSynthesizer(provider, StreamSynthesizerConfig{
		Name:    "elevenlabs",
		VoiceID: cfg.ElevenLabsVoice,
		ModelID: cfg.ElevenLabsModel,
		Format:  provider.OutputContainer(),
		Timeout: cfg.Timeout,
	})
}
