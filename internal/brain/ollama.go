package brain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/ent0n29/lain/internal/prompt"
	"github.com/ent0n29/lain/internal/reliability"
)

const DefaultLocalModel = "llama3.1:8b"

// OllamaGateway talks to a local Ollama server without streaming.
type OllamaGateway struct {
	client      *api.Client
	model       string
	temperature float64
}

func NewOllamaGateway(cfg Config) (*OllamaGateway, error) {
	base, err := url.Parse(strings.TrimSpace(cfg.LocalURL))
	if err != nil {
		return nil, fmt.Errorf("parse local inference url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OllamaGateway{
		client:      api.NewClient(base, &http.Client{Timeout: timeout}),
		model:       firstNonEmpty(cfg.LocalModel, DefaultLocalModel),
		temperature: cfg.Temperature,
	}, nil
}

func (g *OllamaGateway) Name() string { return "ollama" }

func (g *OllamaGateway) Infer(ctx context.Context, p prompt.Prompt) (string, error) {
	stream := false
	req := &api.ChatRequest{
		Model: g.model,
		Messages: []api.Message{
			{Role: "system", Content: p.System},
			{Role: "user", Content: p.User},
		},
		Stream:  &stream,
		Options: map[string]any{"temperature": g.temperature},
	}

	var out strings.Builder
	err := g.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		out.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		status := 0
		var statusErr api.StatusError
		if errors.As(err, &statusErr) {
			status = statusErr.StatusCode
		}
		return "", &ProviderError{
			Provider:   g.Name(),
			StatusCode: status,
			Retryable:  status == 0 || reliability.IsRetryableHTTPStatus(status),
			Err:        fmt.Errorf("chat: %w", err),
		}
	}

	text := out.String()
	if strings.TrimSpace(text) == "" {
		return "", &MalformedResponseError{Provider: g.Name(), Detail: "empty message content"}
	}
	return text, nil
}
