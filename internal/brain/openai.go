package brain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ent0n29/lain/internal/prompt"
	"github.com/ent0n29/lain/internal/reliability"
)

const (
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "llama-3.1-8b-instant"
)

// OpenAIGateway calls any OpenAI-compatible chat completions endpoint (Groq by default).
type OpenAIGateway struct {
	client      *openai.Client
	model       string
	temperature float32
}

func NewOpenAIGateway(cfg Config) *OpenAIGateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	clientCfg := openai.DefaultConfig(strings.TrimSpace(cfg.APIKey))
	clientCfg.BaseURL = strings.TrimRight(firstNonEmpty(cfg.BaseURL, DefaultBaseURL), "/")
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenAIGateway{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       firstNonEmpty(cfg.Model, DefaultModel),
		temperature: float32(cfg.Temperature),
	}
}

func (g *OpenAIGateway) Name() string { return "openai" }

func (g *OpenAIGateway) Infer(ctx context.Context, p prompt.Prompt) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: g.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.System},
			{Role: openai.ChatMessageRoleUser, Content: p.User},
		},
	})
	if err != nil {
		return "", g.providerError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &MalformedResponseError{Provider: g.Name(), Detail: "no choices"}
	}
	text := resp.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return "", &MalformedResponseError{Provider: g.Name(), Detail: "empty message content"}
	}
	return text, nil
}

func (g *OpenAIGateway) providerError(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	return &ProviderError{
		Provider:   g.Name(),
		StatusCode: status,
		Retryable:  status == 0 || reliability.IsRetryableHTTPStatus(status),
		Err:        fmt.Errorf("chat completion: %w", err),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
