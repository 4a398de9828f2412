package memory

import (
	"context"
	"strings"
)

// Options selects and configures a memory backend.
type Options struct {
	Bound       int
	DatabaseURL string
	RedisURL    string
	FilePath    string
	UserLabel   string
	AgentLabel  string
}

// NewStore picks postgres, then redis, then the JSON file, and falls back to in-memory.
func NewStore(ctx context.Context, opts Options) (Store, error) {
	switch {
	case strings.TrimSpace(opts.DatabaseURL) != "":
		s, err := NewPostgresStore(ctx, opts.DatabaseURL, opts.Bound)
		if err != nil {
			return nil, err
		}
		return s, nil
	case strings.TrimSpace(opts.RedisURL) != "":
		s, err := NewRedisStore(ctx, opts.RedisURL, opts.Bound)
		if err != nil {
			return nil, err
		}
		return s, nil
	case strings.TrimSpace(opts.FilePath) != "":
		s, err := NewFileStore(opts.FilePath, opts.Bound, opts.UserLabel, opts.AgentLabel)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return NewInMemoryStore(opts.Bound), nil
	}
}
