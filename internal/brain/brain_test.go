package brain

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/lain/internal/prompt"
)

func chatCompletionServer(t *testing.T, status int, body string, seen *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if seen != nil {
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, seen)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestOpenAIGatewayInfer(t *testing.T) {
	var seen map[string]any
	srv := chatCompletionServer(t, http.StatusOK,
		`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Resposta fixa."},"finish_reason":"stop"}]}`,
		&seen)
	defer srv.Close()

	g := NewOpenAIGateway(Config{APIKey: "k", BaseURL: srv.URL, Temperature: 0.6, Timeout: time.Second})
	got, err := g.Infer(context.Background(), prompt.Prompt{System: "persona", User: "Olá"})
	require.NoError(t, err)
	assert.Equal(t, "Resposta fixa.", got)

	assert.Equal(t, DefaultModel, seen["model"])
	assert.InDelta(t, 0.6, seen["temperature"], 0.001)
	msgs, ok := seen["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "persona", msgs[0].(map[string]any)["content"])
	assert.Equal(t, "Olá", msgs[1].(map[string]any)["content"])
}

func TestOpenAIGatewayStatusError(t *testing.T) {
	srv := chatCompletionServer(t, http.StatusServiceUnavailable,
		`{"error":{"message":"over capacity","type":"server_error"}}`, nil)
	defer srv.Close()

	g := NewOpenAIGateway(Config{APIKey: "k", BaseURL: srv.URL, Timeout: time.Second})
	_, err := g.Infer(context.Background(), prompt.Prompt{User: "Olá"})

	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, "openai", provErr.Provider)
	assert.Equal(t, http.StatusServiceUnavailable, provErr.StatusCode)
	assert.True(t, provErr.Retryable)
}

func TestOpenAIGatewayMalformedResponse(t *testing.T) {
	srv := chatCompletionServer(t, http.StatusOK, `{"id":"c1","choices":[]}`, nil)
	defer srv.Close()

	g := NewOpenAIGateway(Config{APIKey: "k", BaseURL: srv.URL, Timeout: time.Second})
	_, err := g.Infer(context.Background(), prompt.Prompt{User: "Olá"})

	var malformed *MalformedResponseError
	require.ErrorAs(t, err, &malformed)
}

func TestOllamaGatewayInfer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, false, req["stream"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"llama3.1:8b","message":{"role":"assistant","content":"Oi, Matheus."},"done":true}` + "\n"))
	}))
	defer srv.Close()

	g, err := NewOllamaGateway(Config{LocalURL: srv.URL, Timeout: time.Second})
	require.NoError(t, err)
	got, err := g.Infer(context.Background(), prompt.Prompt{System: "p", User: "Olá"})
	require.NoError(t, err)
	assert.Equal(t, "Oi, Matheus.", got)
}

type scriptedGateway struct {
	name  string
	reply string
	err   error
	calls int
}

func (g *scriptedGateway) Name() string { return g.name }

func (g *scriptedGateway) Infer(context.Context, prompt.Prompt) (string, error) {
	g.calls++
	return g.reply, g.err
}

func TestFallbackGateway(t *testing.T) {
	t.Run("primary ok", func(t *testing.T) {
		primary := &scriptedGateway{name: "a", reply: "um"}
		secondary := &scriptedGateway{name: "b", reply: "dois"}
		got, err := NewFallbackGateway(primary, secondary).Infer(context.Background(), prompt.Prompt{})
		require.NoError(t, err)
		assert.Equal(t, "um", got)
		assert.Zero(t, secondary.calls)
	})

	t.Run("primary fails", func(t *testing.T) {
		primary := &scriptedGateway{name: "a", err: &ProviderError{Provider: "a", StatusCode: 500}}
		secondary := &scriptedGateway{name: "b", reply: "dois"}
		got, err := NewFallbackGateway(primary, secondary).Infer(context.Background(), prompt.Prompt{})
		require.NoError(t, err)
		assert.Equal(t, "dois", got)
	})

	t.Run("cancellation is not retried", func(t *testing.T) {
		primary := &scriptedGateway{name: "a", err: context.Canceled}
		secondary := &scriptedGateway{name: "b", reply: "dois"}
		_, err := NewFallbackGateway(primary, secondary).Infer(context.Background(), prompt.Prompt{})
		require.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, secondary.calls)
	})

	t.Run("both fail", func(t *testing.T) {
		boom := errors.New("boom")
		primary := &scriptedGateway{name: "a", err: boom}
		secondary := &scriptedGateway{name: "b", err: errors.New("also down")}
		_, err := NewFallbackGateway(primary, secondary).Infer(context.Background(), prompt.Prompt{})
		require.ErrorIs(t, err, boom)
	})
}

func TestNewGatewayModes(t *testing.T) {
	g, err := NewGateway(Config{})
	require.NoError(t, err)
	assert.Equal(t, "mock", g.Name())

	g, err = NewGateway(Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "openai", g.Name())

	g, err = NewGateway(Config{APIKey: "k", LocalURL: "http://127.0.0.1:11434"})
	require.NoError(t, err)
	fb, ok := g.(*FallbackGateway)
	require.True(t, ok)
	assert.Equal(t, "openai", fb.Primary().Name())
	assert.Equal(t, "ollama", fb.Secondary().Name())

	_, err = NewGateway(Config{Mode: "openai"})
	assert.Error(t, err)
	_, err = NewGateway(Config{Mode: "nope"})
	assert.Error(t, err)
}

func TestMockGatewayEchoes(t *testing.T) {
	got, err := NewMockGateway().Infer(context.Background(), prompt.Prompt{User: " Olá "})
	require.NoError(t, err)
	assert.Equal(t, "Eu ouvi você: Olá", got)
}
