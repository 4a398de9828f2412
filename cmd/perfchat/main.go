package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type options struct {
	baseURL        string
	turns          int
	concurrency    int
	interTurnDelay time.Duration
	turnTimeout    time.Duration
	forwardedFor   string
	texts          []string
	verbose        bool
}

type chatRequest struct {
	Mensagem string `json:"mensagem"`
}

type chatResponse struct {
	Resposta string  `json:"resposta"`
	Audio    *string `json:"audio"`
}

type turnSample struct {
	latency    time.Duration
	audioBytes int
}

var defaultUtterances = []string{
	"Quem é você?",
	"O que é a Wired?",
	"Resuma o protocolo sete em uma frase.",
	"Você lembra o que eu perguntei antes?",
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "perfchat: %v\n", err)
		os.Exit(2)
	}
	if err := run(context.Background(), cfg, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "perfchat: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var cfg options
	var textsRaw string
	var interTurnMS int
	var turnTimeoutMS int

	flag.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:10000", "Lain base URL")
	flag.IntVar(&cfg.turns, "turns", 10, "number of chat turns per worker")
	flag.IntVar(&cfg.concurrency, "concurrency", 1, "number of concurrent workers")
	flag.IntVar(&interTurnMS, "inter-turn-ms", 180, "delay between turns in milliseconds")
	flag.IntVar(&turnTimeoutMS, "turn-timeout-ms", 90000, "timeout per chat request in milliseconds")
	flag.StringVar(&cfg.forwardedFor, "forwarded-for", "", "X-Forwarded-For prefix; each worker appends its index")
	flag.StringVar(&textsRaw, "texts", "", "utterances separated by '|' (optional)")
	flag.BoolVar(&cfg.verbose, "verbose", true, "print replay progress")
	flag.Parse()

	return normalizeOptions(cfg, textsRaw, interTurnMS, turnTimeoutMS)
}

func normalizeOptions(cfg options, textsRaw string, interTurnMS, turnTimeoutMS int) (options, error) {
	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.turns <= 0 {
		return options{}, fmt.Errorf("turns must be > 0")
	}
	if cfg.concurrency <= 0 || cfg.concurrency > 64 {
		return options{}, fmt.Errorf("concurrency must be in [1,64]")
	}
	if interTurnMS < 0 {
		interTurnMS = 0
	}
	if turnTimeoutMS < 1000 {
		turnTimeoutMS = 1000
	}
	cfg.interTurnDelay = time.Duration(interTurnMS) * time.Millisecond
	cfg.turnTimeout = time.Duration(turnTimeoutMS) * time.Millisecond

	if strings.TrimSpace(textsRaw) == "" {
		cfg.texts = append([]string(nil), defaultUtterances...)
		return cfg, nil
	}
	for _, part := range strings.Split(textsRaw, "|") {
		if t := strings.TrimSpace(part); t != "" {
			cfg.texts = append(cfg.texts, t)
		}
	}
	if len(cfg.texts) == 0 {
		return options{}, fmt.Errorf("texts produced no non-empty utterances")
	}
	return cfg, nil
}

func run(ctx context.Context, cfg options, out io.Writer) error {
	httpClient := &http.Client{Timeout: cfg.turnTimeout}

	var (
		mu      sync.Mutex
		samples []turnSample
	)
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.concurrency; w++ {
		worker := w
		g.Go(func() error {
			for i := 0; i < cfg.turns; i++ {
				text := cfg.texts[(worker+i)%len(cfg.texts)]
				sample, err := sendTurn(gctx, httpClient, cfg, worker, text)
				if err != nil {
					return fmt.Errorf("worker %d turn %d: %w", worker, i+1, err)
				}
				mu.Lock()
				samples = append(samples, sample)
				if cfg.verbose {
					fmt.Fprintf(out, "perfchat: worker=%d turn=%d latency_ms=%d audio_bytes=%d\n", worker, i+1, sample.latency.Milliseconds(), sample.audioBytes)
				}
				mu.Unlock()
				if cfg.interTurnDelay > 0 {
					select {
					case <-gctx.Done():
						return gctx.Err()
					case <-time.After(cfg.interTurnDelay):
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	summary := summarize(samples)
	fmt.Fprintf(out, "perfchat: turns=%d p50_ms=%d p95_ms=%d max_ms=%d with_audio=%d\n",
		summary.count, summary.p50.Milliseconds(), summary.p95.Milliseconds(), summary.max.Milliseconds(), summary.withAudio)

	stages, err := fetchStageSnapshot(ctx, httpClient, cfg.baseURL)
	if err != nil {
		return fmt.Errorf("fetch stage snapshot: %w", err)
	}
	fmt.Fprintf(out, "perfchat: server stages %s\n", stages)
	return nil
}

func sendTurn(ctx context.Context, client *http.Client, cfg options, worker int, text string) (turnSample, error) {
	body, _ := json.Marshal(chatRequest{Mensagem: text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return turnSample{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("%s%d", cfg.forwardedFor, worker))
	}

	started := time.Now()
	res, err := client.Do(req)
	if err != nil {
		return turnSample{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return turnSample{}, fmt.Errorf("status=%d body=%s", res.StatusCode, strings.TrimSpace(string(raw)))
	}
	var payload chatResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return turnSample{}, fmt.Errorf("decode response: %w", err)
	}
	sample := turnSample{latency: time.Since(started)}
	if strings.TrimSpace(payload.Resposta) == "" {
		return turnSample{}, fmt.Errorf("empty resposta")
	}
	if payload.Audio != nil {
		decoded, err := base64.StdEncoding.DecodeString(*payload.Audio)
		if err != nil {
			return turnSample{}, fmt.Errorf("decode audio: %w", err)
		}
		sample.audioBytes = len(decoded)
	}
	return sample, nil
}

func fetchStageSnapshot(ctx context.Context, client *http.Client, baseURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/perf/latency", nil)
	if err != nil {
		return "", err
	}
	res, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status=%d", res.StatusCode)
	}
	return strings.TrimSpace(string(raw)), nil
}

type latencySummary struct {
	count     int
	p50       time.Duration
	p95       time.Duration
	max       time.Duration
	withAudio int
}

func summarize(samples []turnSample) latencySummary {
	if len(samples) == 0 {
		return latencySummary{}
	}
	latencies := make([]time.Duration, 0, len(samples))
	s := latencySummary{count: len(samples)}
	for _, sample := range samples {
		latencies = append(latencies, sample.latency)
		if sample.audioBytes > 0 {
			s.withAudio++
		}
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	s.p50 = percentile(latencies, 0.50)
	s.p95 = percentile(latencies, 0.95)
	s.max = latencies[len(latencies)-1]
	return s
}

// percentile uses nearest-rank on an ascending slice.
func percentile(sorted []time.Duration, q float64) time.Duration {
	idx := int(q*float64(len(sorted))+0.999999) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
