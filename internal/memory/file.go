package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const fileLockRetry = 25 * time.Millisecond

// FileStore keeps one global conversation as a JSON array of "<Label>: <text>" lines.
// The session key is ignored. Every Append rewrites the whole file.
type FileStore struct {
	path       string
	bound      int
	userLabel  string
	agentLabel string

	mu   sync.Mutex
	lock *flock.Flock
}

func NewFileStore(path string, bound int, userLabel, agentLabel string) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("memory file path is required")
	}
	if strings.TrimSpace(userLabel) == "" {
		userLabel = "User"
	}
	if strings.TrimSpace(agentLabel) == "" {
		agentLabel = "Agent"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create memory dir: %w", err)
	}
	return &FileStore{
		path:       path,
		bound:      normalizeBound(bound),
		userLabel:  userLabel,
		agentLabel: agentLabel,
		lock:       flock.New(path + ".lock"),
	}, nil
}

func (s *FileStore) Append(ctx context.Context, _ string, turns ...Turn) error {
	if len(turns) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.lock.TryLockContext(ctx, fileLockRetry); err != nil {
		return &PersistenceError{Backend: "file", Op: "lock", Err: err}
	}
	defer s.lock.Unlock()

	lines, err := s.load()
	if err != nil {
		// A corrupt file is replaced by the new window rather than blocking the conversation.
		lines = nil
	}
	for _, t := range turns {
		lines = append(lines, s.formatLine(t))
		if len(lines) > s.bound {
			lines = lines[len(lines)-s.bound:]
		}
	}
	if err := s.save(lines); err != nil {
		return &PersistenceError{Backend: "file", Op: "save", Err: err}
	}
	return nil
}

func (s *FileStore) History(ctx context.Context, _ string) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.lock.TryRLockContext(ctx, fileLockRetry); err != nil {
		return nil, &PersistenceError{Backend: "file", Op: "lock", Err: err}
	}
	defer s.lock.Unlock()

	lines, err := s.load()
	if err != nil {
		return nil, &PersistenceError{Backend: "file", Op: "load", Err: err}
	}
	lines = lastN(lines, s.bound)
	if len(lines) == 0 {
		return nil, nil
	}
	out := make([]Turn, 0, len(lines))
	for _, line := range lines {
		out = append(out, s.parseLine(line))
	}
	return out, nil
}

func (s *FileStore) Evict(ctx context.Context, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.lock.TryLockContext(ctx, fileLockRetry); err != nil {
		return &PersistenceError{Backend: "file", Op: "lock", Err: err}
	}
	defer s.lock.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &PersistenceError{Backend: "file", Op: "evict", Err: err}
	}
	return nil
}

func (s *FileStore) Bound() int { return s.bound }

func (s *FileStore) Mode() string { return "file" }

func (s *FileStore) Close() error { return nil }

func (s *FileStore) load() ([]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var lines []string
	if err := json.Unmarshal(data, &lines); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return lines, nil
}

// save writes to a temp file in the same directory and renames it over the target.
func (s *FileStore) save(lines []string) error {
	if lines == nil {
		lines = []string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(lines); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

func (s *FileStore) formatLine(t Turn) string {
	label := s.userLabel
	if t.Speaker == SpeakerAgent {
		label = s.agentLabel
	}
	return label + ": " + t.Text
}

func (s *FileStore) parseLine(line string) Turn {
	if rest, ok := strings.CutPrefix(line, s.agentLabel+": "); ok {
		return Turn{Speaker: SpeakerAgent, Text: rest}
	}
	if rest, ok := strings.CutPrefix(line, s.userLabel+": "); ok {
		return Turn{Speaker: SpeakerUser, Text: rest}
	}
	return Turn{Speaker: SpeakerUser, Text: line}
}

func lastN(lines []string, n int) []string {
	if n <= 0 || len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}
