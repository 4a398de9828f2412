package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/lain/internal/config"
	"github.com/ent0n29/lain/internal/memory"
	"github.com/ent0n29/lain/internal/observability"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notas.txt"), []byte("Protocolo sete conecta a Wired."), 0o644))
	return config.Config{
		SessionKeying:     "global",
		MaxMemory:         4,
		ContextPolicy:     "corpus_only",
		CorpusDir:         dir,
		CorpusMaxPages:    5,
		CorpusMaxChars:    1000,
		SearchKeepResults: 2,
		BrainMode:         "mock",
		TTSProvider:       "mock",
		InferenceTimeout:  time.Second,
		TTSTimeout:        time.Second,
	}
}

func testBuild(t *testing.T, cfg config.Config) *BuildResult {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	reg := prometheus.NewRegistry()
	res, err := build(ctx, cfg, observability.NewMetricsWithRegistry("test_app", reg, reg))
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Cleanup() })
	return res
}

func TestBuildReportsModes(t *testing.T) {
	res := testBuild(t, testConfig(t))

	assert.Equal(t, "memory", res.Modes["memory"])
	assert.Equal(t, "mock", res.Modes["brain"])
	assert.Equal(t, "mock", res.Modes["tts"])
	assert.Equal(t, "corpus_only", res.Modes["context"])
}

func TestBuildServesChatEndToEnd(t *testing.T) {
	res := testBuild(t, testConfig(t))
	ts := httptest.NewServer(res.API.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/chat", "application/json", strings.NewReader(`{"mensagem":"Olá"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Resposta string  `json:"resposta"`
		Audio    *string `json:"audio"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, "Eu ouvi você: Olá", payload.Resposta)
	require.NotNil(t, payload.Audio)
	assert.NotEmpty(t, *payload.Audio)

	sess, err := res.Sessions.Get("global")
	require.NoError(t, err)
	assert.Equal(t, 2, sess.Turns)
}

func TestBuildTTSDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.TTSProvider = "none"
	res := testBuild(t, cfg)
	assert.Equal(t, "disabled", res.Modes["tts"])
}

func TestBuildRejectsInvalidSettings(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetricsWithRegistry("test_app_invalid", reg, reg)

	cfg := testConfig(t)
	cfg.ContextPolicy = "everything"
	_, err := build(context.Background(), cfg, metrics)
	require.Error(t, err)

	cfg = testConfig(t)
	cfg.BrainMode = "telepathy"
	_, err = build(context.Background(), cfg, metrics)
	require.Error(t, err)
}

func TestBuildUsesFileStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.MemoryFile = filepath.Join(t.TempDir(), "memoria.json")
	res := testBuild(t, cfg)
	assert.Equal(t, "file", res.Modes["memory"])

	_, err := res.Orchestrator.HandleTurn(context.Background(), "", "Olá")
	require.NoError(t, err)

	store, err := memory.NewFileStore(cfg.MemoryFile, cfg.MaxMemory, cfg.UserLabel, cfg.AgentLabel)
	require.NoError(t, err)
	turns, err := store.History(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, turns, 2)
}

func TestLabelsFromConfig(t *testing.T) {
	labels := labelsFrom(config.Config{UserLabel: " Alice "})
	assert.Equal(t, "Alice", labels.User)
	assert.Equal(t, "Lain", labels.Agent)
}
