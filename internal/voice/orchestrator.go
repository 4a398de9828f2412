package voice

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/ent0n29/lain/internal/brain"
	"github.com/ent0n29/lain/internal/contextsrc"
	"github.com/ent0n29/lain/internal/memory"
	"github.com/ent0n29/lain/internal/observability"
	"github.com/ent0n29/lain/internal/policy"
	"github.com/ent0n29/lain/internal/prompt"
	"github.com/ent0n29/lain/internal/reliability"
	"github.com/ent0n29/lain/internal/session"
)

// DefaultFallbackReply is spoken when the model cannot be reached.
const DefaultFallbackReply = "A conexão com a Wired falhou. Tente de novo em instantes."

var ErrEmptyUtterance = errors.New("utterance is empty")

// ContextResolver is satisfied by *contextsrc.Selector.
type ContextResolver interface {
	Resolve(ctx context.Context, utterance string) (contextsrc.Excerpt, error)
}

// Result is everything one chat request produces.
type Result struct {
	Reply         string
	AudioBase64   *string
	AudioFormat   string
	Sources       string
	ContextSource contextsrc.Source
	SessionKey    string
	SessionID     string
	Degraded      []string
}

type Dependencies struct {
	Sessions    *session.Manager
	Context     ContextResolver
	Memory      memory.Store
	Brain       brain.Gateway
	Synthesizer Synthesizer
	Metrics     *observability.Metrics
}

type OrchestratorConfig struct {
	Persona       string
	Labels        prompt.Labels
	FallbackReply string
}

// Orchestrator runs the request pipeline: context, history, inference,
// memory update, sanitization and synthesis, strictly in that order.
type Orchestrator struct {
	sessions      *session.Manager
	contextSrc    ContextResolver
	store         memory.Store
	brain         brain.Gateway
	synth         Synthesizer
	metrics       *observability.Metrics
	persona       string
	labels        prompt.Labels
	fallbackReply string
}

func NewOrchestrator(deps Dependencies, cfg OrchestratorConfig) *Orchestrator {
	metrics := deps.Metrics
	if metrics == nil {
		reg := prometheus.NewRegistry()
		metrics = observability.NewMetricsWithRegistry("lain", reg, reg)
	}
	sessions := deps.Sessions
	if sessions == nil {
		sessions = session.NewManager(0)
	}
	persona := cfg.Persona
	if strings.TrimSpace(persona) == "" {
		persona = prompt.DefaultPersona
	}
	fallback := strings.TrimSpace(cfg.FallbackReply)
	if fallback == "" {
		fallback = DefaultFallbackReply
	}
	return &Orchestrator{
		sessions:      sessions,
		contextSrc:    deps.Context,
		store:         deps.Memory,
		brain:         deps.Brain,
		synth:         deps.Synthesizer,
		metrics:       metrics,
		persona:       persona,
		labels:        cfg.Labels,
		fallbackReply: fallback,
	}
}

// HandleTurn answers one utterance. Collaborator failures are substituted, never
// returned; the only error is an empty utterance.
func (o *Orchestrator) HandleTurn(ctx context.Context, key, utterance string) (Result, error) {
	if strings.TrimSpace(utterance) == "" {
		return Result{}, ErrEmptyUtterance
	}
	startedAt := time.Now()

	// Outbound calls keep running if the client goes away; each has its own timeout.
	ctx = context.WithoutCancel(ctx)

	sess, created := o.sessions.Resolve(key)
	key = sess.Key
	if created {
		o.metrics.ActiveSessions.Set(float64(o.sessions.ActiveCount()))
	}
	logger := log.WithFields(log.Fields{"session": key})
	logger.WithField("utterance", policy.LogPreview(utterance, 80)).Debug("turn received")

	res := Result{SessionKey: key, SessionID: sess.ID}

	excerpt := o.resolveContext(ctx, logger, utterance, &res)
	history := o.loadHistory(ctx, logger, key, &res)

	p := prompt.Compose(o.persona, excerpt.Text, history, utterance, o.labels)
	res.Reply = o.infer(ctx, logger, p, &res)

	o.remember(ctx, logger, key, utterance, res.Reply, &res)
	o.speak(ctx, logger, res.Reply, &res)

	if err := o.sessions.RecordTurns(key, 2); err != nil {
		logger.WithError(err).Debug("session expired during turn")
	}

	outcome := "ok"
	if len(res.Degraded) > 0 {
		outcome = "degraded"
	}
	o.metrics.ChatRequests.WithLabelValues(outcome).Inc()
	o.metrics.ObserveStage(observability.StageTotal, time.Since(startedAt))
	return res, nil
}

func (o *Orchestrator) resolveContext(ctx context.Context, logger *log.Entry, utterance string, res *Result) contextsrc.Excerpt {
	stageStart := time.Now()
	defer func() { o.metrics.ObserveStage(observability.StageContext, time.Since(stageStart)) }()

	excerpt := contextsrc.Excerpt{Source: contextsrc.SourceNone}
	if o.contextSrc != nil {
		var err error
		excerpt, err = o.contextSrc.Resolve(ctx, utterance)
		if err != nil {
			entry := logger.WithFields(log.Fields{"stage": observability.StageContext, "err": err})
			if errors.Is(err, contextsrc.ErrNoResults) {
				entry.Info("no context found; using sentinel")
			} else {
				entry.Warn("context source failed; using sentinel")
			}
			o.degrade(observability.StageContext, res)
			excerpt = contextsrc.Excerpt{Source: contextsrc.SourceNone}
		}
	}
	if strings.TrimSpace(excerpt.Text) == "" {
		excerpt = contextsrc.Excerpt{Text: contextsrc.Sentinel, Source: contextsrc.SourceNone}
	}
	o.metrics.ContextSources.WithLabelValues(string(excerpt.Source)).Inc()
	res.Sources = excerpt.Text
	res.ContextSource = excerpt.Source
	return excerpt
}

func (o *Orchestrator) loadHistory(ctx context.Context, logger *log.Entry, key string, res *Result) []memory.Turn {
	if o.store == nil {
		return nil
	}
	stageStart := time.Now()
	history, err := o.store.History(ctx, key)
	o.metrics.ObserveStage(observability.StageHistory, time.Since(stageStart))
	if err != nil {
		logger.WithFields(log.Fields{"stage": observability.StageHistory, "err": err}).Warn("history unavailable; continuing without it")
		o.degrade(observability.StageHistory, res)
		return nil
	}
	return history
}

func (o *Orchestrator) infer(ctx context.Context, logger *log.Entry, p prompt.Prompt, res *Result) string {
	if o.brain == nil {
		o.degrade(observability.StageInference, res)
		return o.fallbackReply
	}
	stageStart := time.Now()
	reply, err := o.brain.Infer(ctx, p)
	o.metrics.ObserveStage(observability.StageInference, time.Since(stageStart))
	if err == nil {
		return reply
	}

	provider, code := o.brain.Name(), "malformed"
	var provErr *brain.ProviderError
	if errors.As(err, &provErr) {
		provider = provErr.Provider
		code = reliability.ErrorClass(provErr.StatusCode, provErr.Err)
	}
	o.metrics.ProviderErrors.WithLabelValues(provider, code).Inc()
	logger.WithFields(log.Fields{"stage": observability.StageInference, "provider": provider, "err": err}).Warn("inference failed; using fallback reply")
	o.degrade(observability.StageInference, res)
	return o.fallbackReply
}

func (o *Orchestrator) remember(ctx context.Context, logger *log.Entry, key, utterance, reply string, res *Result) {
	if o.store == nil {
		return
	}
	stageStart := time.Now()
	err := o.store.Append(ctx, key,
		memory.Turn{Speaker: memory.SpeakerUser, Text: utterance},
		memory.Turn{Speaker: memory.SpeakerAgent, Text: reply},
	)
	o.metrics.ObserveStage(observability.StageMemoryWrite, time.Since(stageStart))
	if err != nil {
		logger.WithFields(log.Fields{"stage": observability.StageMemoryWrite, "err": err}).Warn("failed to persist turns")
		o.degrade(observability.StageMemoryWrite, res)
	}
}

func (o *Orchestrator) speak(ctx context.Context, logger *log.Entry, reply string, res *Result) {
	if o.synth == nil {
		return
	}
	speakable := SanitizeForSpeech(reply)
	if speakable == "" {
		logger.WithField("stage", observability.StageSynthesis).Debug("reply has nothing to say; skipping synthesis")
		return
	}

	stageStart := time.Now()
	clip, err := o.synth.Synthesize(ctx, speakable)
	o.metrics.ObserveStage(observability.StageSynthesis, time.Since(stageStart))
	if err != nil {
		if errors.Is(err, ErrNothingToSay) {
			return
		}
		code := "error"
		var synthErr *SynthesisError
		if errors.As(err, &synthErr) && synthErr.Code != "" {
			code = synthErr.Code
		}
		o.metrics.ProviderErrors.WithLabelValues(o.synth.Name(), code).Inc()
		logger.WithFields(log.Fields{"stage": observability.StageSynthesis, "provider": o.synth.Name(), "err": err}).Warn("synthesis failed; replying without audio")
		o.degrade(observability.StageSynthesis, res)
		return
	}

	encoded := base64.StdEncoding.EncodeToString(clip.Data)
	res.AudioBase64 = &encoded
	res.AudioFormat = clip.Format
}

func (o *Orchestrator) degrade(stage string, res *Result) {
	o.metrics.ObserveDegradation(stage)
	res.Degraded = append(res.Degraded, stage)
}

// Describe reports which collaborators are wired, for readiness output.
func (o *Orchestrator) Describe() map[string]string {
	out := map[string]string{"memory": "none", "brain": "none", "tts": "none"}
	if o.store != nil {
		out["memory"] = o.store.Mode()
	}
	if o.brain != nil {
		out["brain"] = o.brain.Name()
	}
	if o.synth != nil {
		out["tts"] = o.synth.Name()
	}
	if sel, ok := o.contextSrc.(*contextsrc.Selector); ok {
		out["context"] = string(sel.Policy())
	}
	return out
}
