package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the chat service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	LogLevel         string
	LogFormat        string

	SessionKeying  string
	SessionIdleTTL time.Duration
	UserLabel      string
	AgentLabel     string

	MaxMemory   int
	MemoryFile  string
	DatabaseURL string
	RedisURL    string

	ContextPolicy      string
	CorpusDir          string
	CorpusMaxPages     int
	CorpusMaxChars     int
	SearchQuerySuffix  string
	SearchRegion       string
	SearchSafeSearch   string
	SearchMaxResults   int
	SearchKeepResults  int
	SearchSnippetChars int
	SearchBlocklist    []string
	SearchTimeout      time.Duration

	BrainMode         string
	GroqAPIKey        string
	LLMBaseURL        string
	ModelName         string
	ModelTemperature  float64
	InferenceTimeout  time.Duration
	LocalInferenceURL string
	LocalModelName    string
	FallbackReply     string

	TTSProvider         string
	TTSTimeout          time.Duration
	OpenAIAPIKey        string
	OpenAITTSModel      string
	OpenAITTSVoice      string
	ElevenLabsAPIKey    string
	ElevenLabsWSBaseURL string
	ElevenLabsTTSVoice  string
	ElevenLabsTTSModel  string
	ElevenLabsFormat    string
	LocalTTSCommand     string
	LocalTTSVoice       string

	ChatIncludeSources bool
}

var defaultBlocklist = []string{"brainly", "todasasrespostas", "wikipedia", "significados", "resumos"}

// Load reads environment variables (after an optional .env file) and applies safe defaults.
func Load() (Config, error) {
	// A missing .env is the normal production case.
	_ = godotenv.Load()

	cfg := Config{
		BindAddr:           bindAddrFromEnv(),
		MetricsNamespace:   envOrDefault("APP_METRICS_NAMESPACE", "lain"),
		LogLevel:           envOrDefault("APP_LOG_LEVEL", "info"),
		LogFormat:          envOrDefault("APP_LOG_FORMAT", "text"),
		SessionKeying:      strings.ToLower(envOrDefault("APP_SESSION_KEYING", "client")),
		UserLabel:          envOrDefault("APP_USER_LABEL", "Matheus"),
		AgentLabel:         envOrDefault("APP_AGENT_LABEL", "Lain"),
		MaxMemory:          8,
		MemoryFile:         stringsTrimSpace("MEMORY_FILE"),
		DatabaseURL:        stringsTrimSpace("DATABASE_URL"),
		RedisURL:           stringsTrimSpace("REDIS_URL"),
		ContextPolicy:      strings.ToLower(envOrDefault("CONTEXT_POLICY", "corpus_first")),
		CorpusDir:          envOrDefault("CORPUS_DIR", "biblioteca/livros_pdf"),
		CorpusMaxPages:     10,
		CorpusMaxChars:     3000,
		SearchQuerySuffix:  envOrDefault("SEARCH_QUERY_SUFFIX", "livro pdf alquimia tradicional cristã"),
		SearchRegion:       envOrDefault("SEARCH_REGION", "br-pt"),
		SearchSafeSearch:   envOrDefault("SEARCH_SAFESEARCH", "moderate"),
		SearchMaxResults:   5,
		SearchKeepResults:  3,
		SearchSnippetChars: 300,
		SearchBlocklist:    defaultBlocklist,
		SearchTimeout:      30 * time.Second,
		BrainMode:          strings.ToLower(envOrDefault("BRAIN_MODE", "auto")),
		GroqAPIKey:         stringsTrimSpace("GROQ_API_KEY"),
		LLMBaseURL:         envOrDefault("LLM_BASE_URL", "https://api.groq.com/openai/v1"),
		ModelName:          envOrDefault("MODEL_NAME", "llama-3.1-8b-instant"),
		ModelTemperature:   0.6,
		InferenceTimeout:   30 * time.Second,
		LocalInferenceURL:  stringsTrimSpace("LOCAL_INFERENCE_URL"),
		LocalModelName:     envOrDefault("LOCAL_MODEL_NAME", "llama3.1:8b"),
		FallbackReply:      envOrDefault("FALLBACK_REPLY", "A conexão com a Wired falhou. Tente de novo em instantes."),
		TTSProvider:        strings.ToLower(envOrDefault("TTS_PROVIDER", "auto")),
		TTSTimeout:         60 * time.Second,
		OpenAIAPIKey:       stringsTrimSpace("OPENAI_API_KEY"),
		OpenAITTSModel:     envOrDefault("OPENAI_TTS_MODEL", "tts-1"),
		OpenAITTSVoice:     envOrDefault("OPENAI_TTS_VOICE", "alloy"),
		ElevenLabsAPIKey:   stringsTrimSpace("ELEVENLABS_API_KEY"),
		ElevenLabsTTSVoice: envOrDefault("ELEVENLABS_TTS_VOICE_ID", "cgSgspJ2msm6clMCkdW9"),
		ElevenLabsTTSModel: envOrDefault("ELEVENLABS_TTS_MODEL_ID", "eleven_multilingual_v2"),
		ElevenLabsFormat:   envOrDefault("ELEVENLABS_TTS_OUTPUT_FORMAT", "mp3_44100_128"),
		LocalTTSCommand:    stringsTrimSpace("LOCAL_TTS_COMMAND"),
		LocalTTSVoice:      envOrDefault("LOCAL_TTS_VOICE", "pt-br"),
		ShutdownTimeout:    15 * time.Second,
	}

	cfg.ElevenLabsWSBaseURL = envOrDefault("ELEVENLABS_WS_BASE_URL", "wss://api.elevenlabs.io")

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionIdleTTL, err = durationFromEnv("APP_SESSION_IDLE_TTL", cfg.SessionIdleTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.SearchTimeout, err = durationFromEnv("SEARCH_TIMEOUT", cfg.SearchTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.InferenceTimeout, err = durationFromEnv("INFERENCE_TIMEOUT", cfg.InferenceTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.TTSTimeout, err = durationFromEnv("TTS_TIMEOUT", cfg.TTSTimeout)
	if err != nil {
		return Config{}, err
	}

	cfg.MaxMemory, err = intFromEnv("MAX_MEMORY", cfg.MaxMemory)
	if err != nil {
		return Config{}, err
	}
	cfg.CorpusMaxPages, err = intFromEnv("CORPUS_MAX_PAGES", cfg.CorpusMaxPages)
	if err != nil {
		return Config{}, err
	}
	cfg.CorpusMaxChars, err = intFromEnv("CORPUS_MAX_CHARS", cfg.CorpusMaxChars)
	if err != nil {
		return Config{}, err
	}
	cfg.SearchMaxResults, err = intFromEnv("SEARCH_MAX_RESULTS", cfg.SearchMaxResults)
	if err != nil {
		return Config{}, err
	}
	cfg.SearchKeepResults, err = intFromEnv("SEARCH_KEEP_RESULTS", cfg.SearchKeepResults)
	if err != nil {
		return Config{}, err
	}
	cfg.SearchSnippetChars, err = intFromEnv("SEARCH_SNIPPET_CHARS", cfg.SearchSnippetChars)
	if err != nil {
		return Config{}, err
	}
	cfg.SearchBlocklist = listFromEnv("SEARCH_BLOCKLIST", cfg.SearchBlocklist)

	cfg.ModelTemperature, err = floatFromEnv("MODEL_TEMPERATURE", cfg.ModelTemperature)
	if err != nil {
		return Config{}, err
	}
	cfg.ChatIncludeSources, err = boolFromEnv("CHAT_INCLUDE_SOURCES", cfg.ChatIncludeSources)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.MaxMemory < 1 || c.MaxMemory > 64 {
		return fmt.Errorf("MAX_MEMORY must be between 1 and 64")
	}
	if c.CorpusMaxPages <= 0 {
		return fmt.Errorf("CORPUS_MAX_PAGES must be positive")
	}
	if c.CorpusMaxChars <= 0 {
		return fmt.Errorf("CORPUS_MAX_CHARS must be positive")
	}
	if c.SearchMaxResults <= 0 || c.SearchKeepResults <= 0 {
		return fmt.Errorf("SEARCH_MAX_RESULTS and SEARCH_KEEP_RESULTS must be positive")
	}
	if c.SearchSnippetChars <= 0 {
		return fmt.Errorf("SEARCH_SNIPPET_CHARS must be positive")
	}
	if c.ModelTemperature < 0 || c.ModelTemperature > 2 {
		return fmt.Errorf("MODEL_TEMPERATURE must be within [0,2]")
	}
	if c.SessionIdleTTL < 0 {
		return fmt.Errorf("APP_SESSION_IDLE_TTL must be >= 0")
	}
	if c.SessionIdleTTL > 0 && c.SessionIdleTTL < 5*time.Second {
		return fmt.Errorf("APP_SESSION_IDLE_TTL must be 0 or at least 5s")
	}
	switch c.SessionKeying {
	case "client", "global":
	default:
		return fmt.Errorf("invalid APP_SESSION_KEYING: %q (expected client|global)", c.SessionKeying)
	}
	switch c.ContextPolicy {
	case "corpus_first", "web_only", "corpus_only":
	default:
		return fmt.Errorf("invalid CONTEXT_POLICY: %q (expected corpus_first|web_only|corpus_only)", c.ContextPolicy)
	}
	if strings.TrimSpace(c.FallbackReply) == "" {
		return fmt.Errorf("FALLBACK_REPLY must not be empty")
	}
	return nil
}

// bindAddrFromEnv honours APP_BIND_ADDR first and falls back to the PORT convention
// used by hosting platforms.
func bindAddrFromEnv() string {
	if v := stringsTrimSpace("APP_BIND_ADDR"); v != "" {
		return v
	}
	return "0.0.0.0:" + envOrDefault("PORT", "10000")
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}

// listFromEnv splits a comma-separated value; an explicitly empty list is not expressible
// and keeps the fallback.
func listFromEnv(key string, fallback []string) []string {
	v := stringsTrimSpace(key)
	if v == "" {
		return append([]string(nil), fallback...)
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), fallback...)
	}
	return out
}
