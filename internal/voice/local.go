package voice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/ent0n29/lain/internal/audio"
)

type LocalTTSConfig struct {
	Command string
	Voice   string
	Timeout time.Duration
}

// LocalSynthesizer shells out to an espeak-compatible command that writes WAV to stdout.
type LocalSynthesizer struct {
	command string
	voice   string
	timeout time.Duration
}

func NewLocalSynthesizer(cfg LocalTTSConfig) (*LocalSynthesizer, error) {
	command := strings.TrimSpace(cfg.Command)
	if command == "" {
		command = "espeak-ng"
	}
	path, err := exec.LookPath(command)
	if err != nil {
		return nil, fmt.Errorf("local tts command %q: %w", command, err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &LocalSynthesizer{command: path, voice: strings.TrimSpace(cfg.Voice), timeout: timeout}, nil
}

func (s *LocalSynthesizer) Name() string { return "local" }

func (s *LocalSynthesizer) Synthesize(ctx context.Context, text string) (Audio, error) {
	if strings.TrimSpace(text) == "" {
		return Audio{}, ErrNothingToSay
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	args := []string{"--stdout"}
	if s.voice != "" {
		args = append(args, "-v", s.voice)
	}
	args = append(args, "--", text)

	cmd := exec.CommandContext(ctx, s.command, args...)
	var stdout bytes.Buffer
	stderr := newTailBuffer(4 << 10)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Audio{}, &SynthesisError{Provider: s.Name(), Code: "timeout", Err: ctxErr}
		}
		detail := stderr.String()
		if detail == "" {
			detail = err.Error()
		}
		return Audio{}, &SynthesisError{Provider: s.Name(), Err: errors.New(detail)}
	}

	data := stdout.Bytes()
	if !audio.IsWAV(data) {
		return Audio{}, &SynthesisError{Provider: s.Name(), Err: audio.ErrNotWAV}
	}
	return Audio{Data: data, Format: "wav"}, nil
}

// tailBuffer keeps the last max bytes written, for readable subprocess errors.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newTailBuffer(max int) *tailBuffer {
	if max <= 0 {
		max = 16 << 10
	}
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
