package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/lain/internal/reliability"
)

type ElevenLabsConfig struct {
	APIKey              string
	WSBaseURL           string
	DefaultOutputFormat string
}

// ElevenLabsProvider streams text-to-speech over the stream-input websocket.
type ElevenLabsProvider struct {
	cfg ElevenLabsConfig
}

func NewElevenLabsProvider(cfg ElevenLabsConfig) *ElevenLabsProvider {
	if strings.TrimSpace(cfg.WSBaseURL) == "" {
		cfg.WSBaseURL = "wss://api.elevenlabs.io"
	}
	if strings.TrimSpace(cfg.DefaultOutputFormat) == "" {
		cfg.DefaultOutputFormat = "mp3_44100_128"
	}
	return &ElevenLabsProvider{cfg: cfg}
}

// OutputContainer maps the configured output format (e.g. mp3_44100_128) to its container name.
func (p *ElevenLabsProvider) OutputContainer() string {
	container, _, _ := strings.Cut(p.cfg.DefaultOutputFormat, "_")
	return container
}

func (p *ElevenLabsProvider) StartStream(ctx context.Context, voiceID, modelID string, settings TTSSettings) (TTSStream, error) {
	if strings.TrimSpace(voiceID) == "" {
		return nil, fmt.Errorf("voice_id is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "eleven_multilingual_v2"
	}

	u, err := url.Parse(strings.TrimRight(p.cfg.WSBaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(voiceID) + "/stream-input")
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("model_id", modelID)
	q.Set("output_format", p.cfg.DefaultOutputFormat)
	q.Set("auto_mode", "true")
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("xi-api-key", p.cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		return nil, fmt.Errorf("dial tts websocket: %w", err)
	}

	s := &elevenTTSStream{conn: conn, events: make(chan TTSEvent, 512), done: make(chan struct{})}
	go s.readLoop()
	// The first message primes the stream with voice settings.
	if err := s.writeJSON(map[string]any{
		"text":           " ",
		"voice_settings": normalizeVoiceSettings(settings),
	}); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("prime tts stream: %w", err)
	}
	return s, nil
}

func normalizeVoiceSettings(settings TTSSettings) map[string]any {
	stability := settings.Stability
	if stability <= 0 {
		stability = 0.42
	}
	similarity := settings.SimilarityBoost
	if similarity <= 0 {
		similarity = 0.85
	}
	speed := settings.Speed
	if speed <= 0 {
		speed = 1.0
	}
	return map[string]any{
		"stability":        clamp(stability, 0, 1),
		"similarity_boost": clamp(similarity, 0, 1),
		"speed":            clamp(speed, 0.7, 1.2),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

type elevenTTSStream struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	events    chan TTSEvent
	done      chan struct{}
}

func (s *elevenTTSStream) SendText(_ context.Context, text string, tryTrigger bool) error {
	payload := map[string]any{
		"text":                   text,
		"try_trigger_generation": tryTrigger,
	}
	return s.writeJSON(payload)
}

func (s *elevenTTSStream) CloseInput(_ context.Context) error {
	return s.writeJSON(map[string]any{"text": ""})
}

func (s *elevenTTSStream) Events() <-chan TTSEvent { return s.events }

func (s *elevenTTSStream) Close() error {
	var retErr error
	s.closeOnce.Do(func() {
		close(s.done)
		retErr = s.conn.Close()
	})
	return retErr
}

func (s *elevenTTSStream) writeJSON(payload map[string]any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(payload)
}

// readLoop owns the events channel and closes it when the socket ends.
func (s *elevenTTSStream) readLoop() {
	defer close(s.events)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			continue
		}

		if audio := asString(raw["audio"]); audio != "" {
			if !s.emit(TTSEvent{Type: TTSEventAudio, AudioBase64: audio}) {
				return
			}
		}
		if errMsg := asString(raw["error"]); errMsg != "" {
			code := asString(raw["message_type"])
			s.emit(TTSEvent{Type: TTSEventError, Code: code, Detail: errMsg, Retryable: reliability.IsRetryableStreamMessageType(code)})
			return
		}
		if asBool(raw["isFinal"]) || asBool(raw["is_final"]) {
			s.emit(TTSEvent{Type: TTSEventFinal})
			return
		}
	}
}

// emit reports false once the consumer has closed the stream.
func (s *elevenTTSStream) emit(ev TTSEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func asBool(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return false
}
