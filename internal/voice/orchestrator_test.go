package voice

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/lain/internal/audio"
	"github.com/ent0n29/lain/internal/brain"
	"github.com/ent0n29/lain/internal/contextsrc"
	"github.com/ent0n29/lain/internal/memory"
	"github.com/ent0n29/lain/internal/observability"
	"github.com/ent0n29/lain/internal/prompt"
	"github.com/ent0n29/lain/internal/session"
)

type stubResolver struct {
	excerpt contextsrc.Excerpt
	err     error
}

func (s stubResolver) Resolve(context.Context, string) (contextsrc.Excerpt, error) {
	return s.excerpt, s.err
}

type recordingBrain struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []prompt.Prompt
	ctxErrs []error
}

func (b *recordingBrain) Name() string { return "stub" }

func (b *recordingBrain) Infer(ctx context.Context, p prompt.Prompt) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prompts = append(b.prompts, p)
	b.ctxErrs = append(b.ctxErrs, ctx.Err())
	return b.reply, b.err
}

type failingHistoryStore struct {
	memory.Store
}

func (s failingHistoryStore) History(context.Context, string) ([]memory.Turn, error) {
	return nil, &memory.PersistenceError{Backend: "file", Op: "read", Err: errors.New("unexpected end of JSON input")}
}

func newTestOrchestrator(t *testing.T, resolver ContextResolver, store memory.Store, gw brain.Gateway, synth Synthesizer) *Orchestrator {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewOrchestrator(Dependencies{
		Sessions:    session.NewManager(0),
		Context:     resolver,
		Memory:      store,
		Brain:       gw,
		Synthesizer: synth,
		Metrics:     observability.NewMetricsWithRegistry("lain_test", reg, reg),
	}, OrchestratorConfig{Labels: prompt.DefaultLabels()})
}

func TestHandleTurnEndToEnd(t *testing.T) {
	store := memory.NewInMemoryStore(8)
	gw := &recordingBrain{reply: "Resposta fixa."}
	o := newTestOrchestrator(t,
		stubResolver{excerpt: contextsrc.Excerpt{Text: "Trecho do corpus.", Source: contextsrc.SourceCorpus}},
		store, gw, NewMockSynthesizer())

	res, err := o.HandleTurn(context.Background(), "10.0.0.1", "Olá")
	require.NoError(t, err)

	assert.Equal(t, "Resposta fixa.", res.Reply)
	assert.Equal(t, "10.0.0.1", res.SessionKey)
	assert.Equal(t, contextsrc.SourceCorpus, res.ContextSource)
	assert.Equal(t, "Trecho do corpus.", res.Sources)
	assert.Empty(t, res.Degraded)
	require.NotNil(t, res.AudioBase64)
	clip, err := base64.StdEncoding.DecodeString(*res.AudioBase64)
	require.NoError(t, err)
	assert.True(t, audio.IsWAV(clip))

	history, err := store.History(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, memory.SpeakerUser, history[0].Speaker)
	assert.Equal(t, "Olá", history[0].Text)
	assert.Equal(t, memory.SpeakerAgent, history[1].Speaker)
	assert.Equal(t, "Resposta fixa.", history[1].Text)

	require.Len(t, gw.prompts, 1)
	assert.Equal(t, "Olá", gw.prompts[0].User)
	assert.Contains(t, gw.prompts[0].System, "Contexto:\nTrecho do corpus.")
	assert.True(t, strings.HasSuffix(gw.prompts[0].System, "Histórico:\n"), "first turn has empty history")
}

type emptyCorpus struct{}

func (emptyCorpus) Extract(context.Context) (string, error) { return "", nil }

type fixedSearch struct {
	results []contextsrc.Result
	queries []string
}

func (s *fixedSearch) Search(_ context.Context, query string) ([]contextsrc.Result, error) {
	s.queries = append(s.queries, query)
	return s.results, nil
}

func TestHandleTurnWebContextEndToEnd(t *testing.T) {
	search := &fixedSearch{results: []contextsrc.Result{
		{Title: "Primeiro", Link: "https://acervo.org/um", Snippet: "Snippet um."},
		{Title: "Segundo", Link: "https://acervo.org/dois", Snippet: "Snippet dois."},
	}}
	selector := contextsrc.NewSelector(emptyCorpus{}, search, contextsrc.Options{
		QuerySuffix: "livro pdf",
		Blocklist:   []string{"wikipedia"},
	})
	store := memory.NewInMemoryStore(8)
	gw := &recordingBrain{reply: "Resposta fixa."}
	o := newTestOrchestrator(t, selector, store, gw, NewMockSynthesizer())

	res, err := o.HandleTurn(context.Background(), "10.0.0.2", "Olá")
	require.NoError(t, err)

	wantContext := "Título: Primeiro\nLink: https://acervo.org/um\nResumo: Snippet um.\n" +
		"\n\n" +
		"Título: Segundo\nLink: https://acervo.org/dois\nResumo: Snippet dois.\n"
	assert.Equal(t, []string{"Olá livro pdf"}, search.queries)
	assert.Equal(t, contextsrc.SourceWeb, res.ContextSource)
	assert.Equal(t, wantContext, res.Sources)
	assert.Equal(t, "Resposta fixa.", res.Reply)
	assert.Empty(t, res.Degraded)
	require.NotNil(t, res.AudioBase64)

	require.Len(t, gw.prompts, 1)
	want := prompt.Compose(prompt.DefaultPersona, wantContext, nil, "Olá", prompt.DefaultLabels())
	assert.Equal(t, want, gw.prompts[0])
	system := gw.prompts[0].System
	assert.True(t, strings.HasPrefix(system, prompt.DefaultPersona))
	assert.Less(t, strings.Index(system, "Contexto:"), strings.Index(system, "Histórico:"))
	assert.True(t, strings.HasSuffix(system, "Histórico:\n"))

	history, err := store.History(context.Background(), "10.0.0.2")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestHandleTurnInferenceFailureUsesFallback(t *testing.T) {
	store := memory.NewInMemoryStore(8)
	gw := &recordingBrain{err: &brain.ProviderError{Provider: "openai", StatusCode: 503, Err: errors.New("over capacity")}}
	o := newTestOrchestrator(t, stubResolver{err: contextsrc.ErrNoResults}, store, gw, nil)

	res, err := o.HandleTurn(context.Background(), "k", "Olá")
	require.NoError(t, err)
	assert.Equal(t, DefaultFallbackReply, res.Reply)
	assert.Nil(t, res.AudioBase64)
	assert.Contains(t, res.Degraded, observability.StageInference)

	history, err := store.History(context.Background(), "k")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "Olá", history[0].Text)
	assert.Equal(t, DefaultFallbackReply, history[1].Text)
}

func TestHandleTurnContextFailureUsesSentinel(t *testing.T) {
	gw := &recordingBrain{reply: "Sim."}
	o := newTestOrchestrator(t,
		stubResolver{err: &contextsrc.SourceError{Source: contextsrc.SourceWeb, Err: errors.New("timeout")}},
		memory.NewInMemoryStore(8), gw, nil)

	res, err := o.HandleTurn(context.Background(), "k", "Olá")
	require.NoError(t, err)
	assert.Equal(t, contextsrc.Sentinel, res.Sources)
	assert.Equal(t, contextsrc.SourceNone, res.ContextSource)
	assert.Contains(t, gw.prompts[0].System, "Contexto:\n"+contextsrc.Sentinel)
}

func TestHandleTurnHistoryFailureContinues(t *testing.T) {
	inner := memory.NewInMemoryStore(8)
	gw := &recordingBrain{reply: "Estou aqui."}
	o := newTestOrchestrator(t, stubResolver{excerpt: contextsrc.Excerpt{Text: "x", Source: contextsrc.SourceWeb}},
		failingHistoryStore{Store: inner}, gw, nil)

	res, err := o.HandleTurn(context.Background(), "k", "Olá")
	require.NoError(t, err)
	assert.Equal(t, "Estou aqui.", res.Reply)
	assert.Contains(t, res.Degraded, observability.StageHistory)

	stored, err := inner.History(context.Background(), "k")
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestHandleTurnHistoryExcludesCurrentUtterance(t *testing.T) {
	gw := &recordingBrain{reply: "Oi."}
	o := newTestOrchestrator(t, stubResolver{excerpt: contextsrc.Excerpt{Text: "x", Source: contextsrc.SourceCorpus}},
		memory.NewInMemoryStore(8), gw, nil)

	_, err := o.HandleTurn(context.Background(), "k", "primeira")
	require.NoError(t, err)
	_, err = o.HandleTurn(context.Background(), "k", "segunda")
	require.NoError(t, err)

	require.Len(t, gw.prompts, 2)
	assert.True(t, strings.HasSuffix(gw.prompts[1].System, "Histórico:\nMatheus: primeira\nLain: Oi."))
	assert.NotContains(t, gw.prompts[1].System, "segunda")
}

func TestHandleTurnStageDirectionOnlySkipsSynthesis(t *testing.T) {
	synth := &stubSynth{name: "spy", out: Audio{Data: []byte("x")}}
	o := newTestOrchestrator(t, stubResolver{excerpt: contextsrc.Excerpt{Text: "x", Source: contextsrc.SourceCorpus}},
		memory.NewInMemoryStore(8), &recordingBrain{reply: "*waves*"}, synth)

	res, err := o.HandleTurn(context.Background(), "k", "Olá")
	require.NoError(t, err)
	assert.Equal(t, "*waves*", res.Reply, "text reply is returned unsanitized")
	assert.Nil(t, res.AudioBase64)
	assert.Zero(t, synth.calls)
}

func TestHandleTurnSynthesisGetsSanitizedText(t *testing.T) {
	synth := &stubSynth{name: "spy", out: Audio{Data: []byte("mp3"), Format: "mp3"}}
	o := newTestOrchestrator(t, stubResolver{excerpt: contextsrc.Excerpt{Text: "x", Source: contextsrc.SourceCorpus}},
		memory.NewInMemoryStore(8), &recordingBrain{reply: "Lain: *sorri* Olá, Matheus."}, synth)

	res, err := o.HandleTurn(context.Background(), "k", "Olá")
	require.NoError(t, err)
	require.Equal(t, []string{"Olá, Matheus."}, synth.texts)
	require.NotNil(t, res.AudioBase64)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("mp3")), *res.AudioBase64)
	assert.Equal(t, "mp3", res.AudioFormat)
}

func TestHandleTurnSynthesisFailureNullAudio(t *testing.T) {
	synth := &stubSynth{name: "spy", err: &SynthesisError{Provider: "spy", Code: "timeout", Err: context.DeadlineExceeded}}
	o := newTestOrchestrator(t, stubResolver{excerpt: contextsrc.Excerpt{Text: "x", Source: contextsrc.SourceCorpus}},
		memory.NewInMemoryStore(8), &recordingBrain{reply: "Olá."}, synth)

	res, err := o.HandleTurn(context.Background(), "k", "Olá")
	require.NoError(t, err)
	assert.Equal(t, "Olá.", res.Reply)
	assert.Nil(t, res.AudioBase64)
	assert.Contains(t, res.Degraded, observability.StageSynthesis)
}

func TestHandleTurnIgnoresCallerCancellation(t *testing.T) {
	gw := &recordingBrain{reply: "Ainda aqui."}
	o := newTestOrchestrator(t, stubResolver{excerpt: contextsrc.Excerpt{Text: "x", Source: contextsrc.SourceCorpus}},
		memory.NewInMemoryStore(8), gw, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := o.HandleTurn(ctx, "k", "Olá")
	require.NoError(t, err)
	assert.Equal(t, "Ainda aqui.", res.Reply)
	assert.NoError(t, gw.ctxErrs[0])
}

func TestHandleTurnRejectsEmptyUtterance(t *testing.T) {
	o := newTestOrchestrator(t, nil, memory.NewInMemoryStore(8), &recordingBrain{reply: "x"}, nil)
	_, err := o.HandleTurn(context.Background(), "k", "  \n")
	assert.ErrorIs(t, err, ErrEmptyUtterance)
}

func TestHandleTurnRespectsMemoryBound(t *testing.T) {
	store := memory.NewInMemoryStore(3)
	o := newTestOrchestrator(t, stubResolver{excerpt: contextsrc.Excerpt{Text: "x", Source: contextsrc.SourceCorpus}},
		store, &recordingBrain{reply: "r"}, nil)

	for _, u := range []string{"a", "b", "c"} {
		_, err := o.HandleTurn(context.Background(), "k", u)
		require.NoError(t, err)
	}
	history, err := store.History(context.Background(), "k")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []string{"r", "c", "r"}, []string{history[0].Text, history[1].Text, history[2].Text})
}

func TestOrchestratorDescribe(t *testing.T) {
	sel := contextsrc.NewSelector(nil, nil, contextsrc.Options{Policy: contextsrc.PolicyCorpusOnly})
	o := newTestOrchestrator(t, sel, memory.NewInMemoryStore(8), brain.NewMockGateway(), NewMockSynthesizer())
	assert.Equal(t, map[string]string{
		"memory":  "memory",
		"brain":   "mock",
		"tts":     "mock",
		"context": "corpus_only",
	}, o.Describe())
}
