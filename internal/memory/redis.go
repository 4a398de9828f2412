package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "lain:session:"

// RedisStore keeps one capped list per session key.
type RedisStore struct {
	client *redis.Client
	bound  int
}

func NewRedisStore(ctx context.Context, redisURL string, bound int) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &RedisStore{client: client, bound: normalizeBound(bound)}, nil
}

func (s *RedisStore) Append(ctx context.Context, key string, turns ...Turn) error {
	if len(turns) == 0 {
		return nil
	}
	values := make([]any, 0, len(turns))
	for _, t := range turns {
		b, err := json.Marshal(stamp(t))
		if err != nil {
			return &PersistenceError{Backend: "redis", Op: "encode", Err: err}
		}
		values = append(values, b)
	}

	listKey := redisKeyPrefix + key
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, listKey, values...)
		pipe.LTrim(ctx, listKey, int64(-s.bound), -1)
		return nil
	})
	if err != nil {
		return &PersistenceError{Backend: "redis", Op: "append", Err: err}
	}
	return nil
}

func (s *RedisStore) History(ctx context.Context, key string) ([]Turn, error) {
	raw, err := s.client.LRange(ctx, redisKeyPrefix+key, int64(-s.bound), -1).Result()
	if err != nil {
		return nil, &PersistenceError{Backend: "redis", Op: "history", Err: err}
	}
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]Turn, 0, len(raw))
	for _, item := range raw {
		var t Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			return nil, &PersistenceError{Backend: "redis", Op: "decode", Err: err}
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *RedisStore) Evict(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return &PersistenceError{Backend: "redis", Op: "evict", Err: err}
	}
	return nil
}

func (s *RedisStore) Bound() int { return s.bound }

func (s *RedisStore) Mode() string { return "redis" }

func (s *RedisStore) Close() error { return s.client.Close() }
