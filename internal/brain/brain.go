// Package brain turns a composed prompt into a reply from a language model.
package brain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ent0n29/lain/internal/prompt"
)

// Gateway produces one reply for one prompt.
type Gateway interface {
	Infer(ctx context.Context, p prompt.Prompt) (string, error)
	Name() string
}

// ProviderError reports a transport failure or non-success status from a model provider.
type ProviderError struct {
	Provider   string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// MalformedResponseError means the provider answered successfully without reply text.
type MalformedResponseError struct {
	Provider string
	Detail   string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: malformed response: %s", e.Provider, e.Detail)
}

// Config controls gateway construction.
type Config struct {
	Mode        string
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
	LocalURL    string
	LocalModel  string
}

func NewGateway(cfg Config) (Gateway, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		return newAutoGateway(cfg)
	case "openai", "groq":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, errors.New("hosted model API key is required for openai mode")
		}
		return NewOpenAIGateway(cfg), nil
	case "ollama", "local":
		if strings.TrimSpace(cfg.LocalURL) == "" {
			return nil, errors.New("local inference url is required for ollama mode")
		}
		return NewOllamaGateway(cfg)
	case "mock":
		return NewMockGateway(), nil
	default:
		return nil, fmt.Errorf("unsupported brain mode %q", cfg.Mode)
	}
}

func newAutoGateway(cfg Config) (Gateway, error) {
	var local Gateway
	if strings.TrimSpace(cfg.LocalURL) != "" {
		g, err := NewOllamaGateway(cfg)
		if err != nil {
			return nil, err
		}
		local = g
	}

	if strings.TrimSpace(cfg.APIKey) != "" {
		hosted := NewOpenAIGateway(cfg)
		if local != nil {
			return NewFallbackGateway(hosted, local), nil
		}
		return hosted, nil
	}
	if local != nil {
		return local, nil
	}

	log.Warn("no model provider configured (GROQ_API_KEY / LOCAL_INFERENCE_URL); using mock brain")
	return NewMockGateway(), nil
}
