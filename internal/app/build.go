package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ent0n29/lain/internal/brain"
	"github.com/ent0n29/lain/internal/config"
	"github.com/ent0n29/lain/internal/httpapi"
	"github.com/ent0n29/lain/internal/memory"
	"github.com/ent0n29/lain/internal/observability"
	"github.com/ent0n29/lain/internal/prompt"
	"github.com/ent0n29/lain/internal/session"
	"github.com/ent0n29/lain/internal/voice"
)

const janitorInterval = 30 * time.Second

type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Sessions     *session.Manager
	Orchestrator *voice.Orchestrator
	Metrics      *observability.Metrics
	Modes        map[string]string

	// Cleanup should be called on shutdown to release the memory backend.
	Cleanup func() error
}

// Build wires every collaborator from cfg. The janitor runs until ctx ends.
func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	return build(ctx, cfg, observability.NewMetrics(cfg.MetricsNamespace))
}

func build(ctx context.Context, cfg config.Config, metrics *observability.Metrics) (*BuildResult, error) {
	store, err := memory.NewStore(ctx, memory.Options{
		Bound:       cfg.MaxMemory,
		DatabaseURL: cfg.DatabaseURL,
		RedisURL:    cfg.RedisURL,
		FilePath:    cfg.MemoryFile,
		UserLabel:   cfg.UserLabel,
		AgentLabel:  cfg.AgentLabel,
	})
	if err != nil {
		return nil, fmt.Errorf("memory store init failed: %w", err)
	}

	resolver, err := buildContextResolver(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	gateway, err := brain.NewGateway(brain.Config{
		Mode:        cfg.BrainMode,
		APIKey:      cfg.GroqAPIKey,
		BaseURL:     cfg.LLMBaseURL,
		Model:       cfg.ModelName,
		Temperature: cfg.ModelTemperature,
		Timeout:     cfg.InferenceTimeout,
		LocalURL:    cfg.LocalInferenceURL,
		LocalModel:  cfg.LocalModelName,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("brain init failed: %w", err)
	}

	voiceSetup, err := resolveSynthesizer(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	sessions := session.NewManager(cfg.SessionIdleTTL)
	sessions.SetExpireHook(func(s *session.Session) {
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
		evictCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Evict(evictCtx, s.Key); err != nil {
			log.WithError(err).WithField("session", s.Key).Warn("evicting idle session history failed")
		}
	})
	sessions.StartJanitor(ctx, janitorInterval)

	orchestrator := voice.NewOrchestrator(voice.Dependencies{
		Sessions:    sessions,
		Context:     resolver,
		Memory:      store,
		Brain:       gateway,
		Synthesizer: voiceSetup.synth,
		Metrics:     metrics,
	}, voice.OrchestratorConfig{
		Persona:       prompt.DefaultPersona,
		Labels:        labelsFrom(cfg),
		FallbackReply: cfg.FallbackReply,
	})

	api := httpapi.New(cfg, orchestrator, metrics)

	modes := orchestrator.Describe()
	modes["tts"] = voiceSetup.detail

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Sessions:     sessions,
		Orchestrator: orchestrator,
		Metrics:      metrics,
		Modes:        modes,
		Cleanup:      store.Close,
	}, nil
}

func labelsFrom(cfg config.Config) prompt.Labels {
	labels := prompt.DefaultLabels()
	if v := strings.TrimSpace(cfg.UserLabel); v != "" {
		labels.User = v
	}
	if v := strings.TrimSpace(cfg.AgentLabel); v != "" {
		labels.Agent = v
	}
	return labels
}
