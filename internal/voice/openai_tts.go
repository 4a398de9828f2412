package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ent0n29/lain/internal/reliability"
)

const maxSpeechBytes = 16 << 20

type OpenAITTSConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Voice   string
	Timeout time.Duration
}

// OpenAISynthesizer renders mp3 through the /audio/speech endpoint.
type OpenAISynthesizer struct {
	client *openai.Client
	model  openai.SpeechModel
	voice  openai.SpeechVoice
}

func NewOpenAISynthesizer(cfg OpenAITTSConfig) *OpenAISynthesizer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	clientCfg := openai.DefaultConfig(strings.TrimSpace(cfg.APIKey))
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.BaseURL = strings.TrimRight(base, "/")
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	model := openai.SpeechModel(strings.TrimSpace(cfg.Model))
	if model == "" {
		model = openai.TTSModel1
	}
	voice := openai.SpeechVoice(strings.TrimSpace(cfg.Voice))
	if voice == "" {
		voice = openai.VoiceAlloy
	}
	return &OpenAISynthesizer{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		voice:  voice,
	}
}

func (s *OpenAISynthesizer) Name() string { return "openai" }

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text string) (Audio, error) {
	if strings.TrimSpace(text) == "" {
		return Audio{}, ErrNothingToSay
	}

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          s.model,
		Input:          text,
		Voice:          s.voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		status := 0
		var apiErr *openai.APIError
		var reqErr *openai.RequestError
		switch {
		case errors.As(err, &apiErr):
			status = apiErr.HTTPStatusCode
		case errors.As(err, &reqErr):
			status = reqErr.HTTPStatusCode
		}
		return Audio{}, &SynthesisError{
			Provider:  s.Name(),
			Code:      reliability.ErrorClass(status, err),
			Retryable: status == 0 || reliability.IsRetryableHTTPStatus(status),
			Err:       err,
		}
	}
	defer resp.Close()

	data, err := io.ReadAll(io.LimitReader(resp, maxSpeechBytes))
	if err != nil {
		return Audio{}, &SynthesisError{Provider: s.Name(), Err: fmt.Errorf("read speech: %w", err)}
	}
	if len(data) == 0 {
		return Audio{}, &SynthesisError{Provider: s.Name(), Err: errors.New("empty speech response")}
	}
	return Audio{Data: data, Format: "mp3"}, nil
}
