package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/ent0n29/lain/internal/config"
	"github.com/ent0n29/lain/internal/observability"
	"github.com/ent0n29/lain/internal/session"
	"github.com/ent0n29/lain/internal/voice"
)

type Orchestrator interface {
	HandleTurn(ctx context.Context, key, utterance string) (voice.Result, error)
	Describe() map[string]string
}

type Server struct {
	cfg          config.Config
	orchestrator Orchestrator
	metrics      *observability.Metrics
	static       http.Handler
}

func New(cfg config.Config, orchestrator Orchestrator, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:          cfg,
		orchestrator: orchestrator,
		metrics:      metrics,
		static:       newStaticHandler(),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Handle("/static/*", http.StripPrefix("/static/", s.static))

	r.Post("/chat", s.handleChat)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.handleMetrics)
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	return r
}

type chatRequest struct {
	Mensagem string `json:"mensagem"`
}

type chatResponse struct {
	Resposta    string  `json:"resposta"`
	Audio       *string `json:"audio"`
	AudioFormat string  `json:"audio_format,omitempty"`
	Fontes      *string `json:"fontes,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.reject()
		if errors.Is(err, errEmptyBody) {
			respondError(w, http.StatusBadRequest, "empty_body", "request body is required")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Mensagem) == "" {
		s.reject()
		respondError(w, http.StatusBadRequest, "empty_message", "mensagem is required")
		return
	}
	if s.orchestrator == nil {
		respondError(w, http.StatusServiceUnavailable, "not_ready", "orchestrator is not configured")
		return
	}

	key := s.sessionKey(r)
	res, err := s.orchestrator.HandleTurn(r.Context(), key, req.Mensagem)
	if err != nil {
		if errors.Is(err, voice.ErrEmptyUtterance) {
			respondError(w, http.StatusBadRequest, "empty_message", "mensagem is required")
			return
		}
		log.WithError(err).WithField("session", key).Error("chat turn failed")
		respondError(w, http.StatusInternalServerError, "internal", "turn failed")
		return
	}

	out := chatResponse{Resposta: res.Reply, Audio: res.AudioBase64}
	if res.AudioBase64 != nil {
		out.AudioFormat = res.AudioFormat
	}
	if s.cfg.ChatIncludeSources {
		sources := res.Sources
		out.Fontes = &sources
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) reject() {
	if s.metrics != nil {
		s.metrics.ChatRequests.WithLabelValues("rejected").Inc()
	}
}

// sessionKey maps a request to its conversation identity.
func (s *Server) sessionKey(r *http.Request) string {
	if s.cfg.SessionKeying == "global" {
		return session.GlobalKey
	}
	return clientAddress(r)
}

func clientAddress(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.orchestrator == nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready"})
		return
	}
	payload := map[string]any{
		"status":         "ready",
		"session_keying": s.cfg.SessionKeying,
	}
	for k, v := range s.orchestrator.Describe() {
		payload[k] = v
	}
	respondJSON(w, http.StatusOK, payload)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		http.NotFound(w, r)
		return
	}
	s.metrics.Handler().ServeHTTP(w, r)
}

var errEmptyBody = errors.New("empty request body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
