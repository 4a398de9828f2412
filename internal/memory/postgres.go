package memory

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists bounded session history in PostgreSQL.
type PostgresStore struct {
	pool  *pgxpool.Pool
	bound int
}

func NewPostgresStore(ctx context.Context, databaseURL string, bound int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool, bound: normalizeBound(bound)}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat_turns (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			session_key TEXT NOT NULL,
			speaker TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_turns_session_seq ON chat_turns (session_key, seq);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, key string, turns ...Turn) error {
	if len(turns) == 0 {
		return nil
	}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		// Serializes appends per session so the trim below sees every insert.
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return fmt.Errorf("lock session: %w", err)
		}
		for _, t := range turns {
			t = stamp(t)
			if _, err := tx.Exec(ctx,
				`INSERT INTO chat_turns (id, session_key, speaker, content, created_at)
				 VALUES ($1, $2, $3, $4, $5)`,
				t.ID, key, string(t.Speaker), t.Text, t.CreatedAt,
			); err != nil {
				return fmt.Errorf("insert turn: %w", err)
			}
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM chat_turns WHERE session_key=$1 AND seq NOT IN (
				SELECT seq FROM chat_turns WHERE session_key=$1 ORDER BY seq DESC LIMIT $2
			)`,
			key, s.bound,
		); err != nil {
			return fmt.Errorf("trim session: %w", err)
		}
		return nil
	})
	if err != nil {
		return &PersistenceError{Backend: "postgres", Op: "append", Err: err}
	}
	return nil
}

func (s *PostgresStore) History(ctx context.Context, key string) ([]Turn, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, speaker, content, created_at FROM (
			SELECT seq, id, speaker, content, created_at
			FROM chat_turns WHERE session_key=$1 ORDER BY seq DESC LIMIT $2
		) recent ORDER BY seq ASC`,
		key,
		s.bound,
	)
	if err != nil {
		return nil, &PersistenceError{Backend: "postgres", Op: "history", Err: err}
	}
	defer rows.Close()

	items := make([]Turn, 0, s.bound)
	for rows.Next() {
		var (
			t       Turn
			speaker string
		)
		if err := rows.Scan(&t.ID, &speaker, &t.Text, &t.CreatedAt); err != nil {
			return nil, &PersistenceError{Backend: "postgres", Op: "scan", Err: err}
		}
		t.Speaker = Speaker(speaker)
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Backend: "postgres", Op: "iterate", Err: err}
	}
	return items, nil
}

func (s *PostgresStore) Evict(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM chat_turns WHERE session_key=$1`, key); err != nil {
		return &PersistenceError{Backend: "postgres", Op: "evict", Err: err}
	}
	return nil
}

func (s *PostgresStore) Bound() int { return s.bound }

func (s *PostgresStore) Mode() string { return "postgres" }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
