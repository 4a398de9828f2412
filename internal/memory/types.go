package memory

import (
	"context"
	"fmt"
	"time"
)

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "agent"
)

// DefaultBound is the number of turns kept per session when no bound is configured.
const DefaultBound = 8

// Turn stores a single user or agent utterance. Turns are never mutated after Append.
type Turn struct {
	ID        string    `json:"id"`
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Store holds a bounded, ordered turn history per session key.
//
// Append enforces the bound after the turns are pushed: the oldest turns are dropped
// until at most Bound() remain. History returns the retained window oldest first.
type Store interface {
	Append(ctx context.Context, key string, turns ...Turn) error
	History(ctx context.Context, key string) ([]Turn, error)
	Evict(ctx context.Context, key string) error
	Bound() int
	Mode() string
	Close() error
}

// PersistenceError reports a backend read or write failure.
type PersistenceError struct {
	Backend string
	Op      string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s memory %s: %v", e.Backend, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// trimToBound keeps the last bound turns, preserving order.
func trimToBound(turns []Turn, bound int) []Turn {
	if bound <= 0 || len(turns) <= bound {
		return turns
	}
	out := make([]Turn, bound)
	copy(out, turns[len(turns)-bound:])
	return out
}

func normalizeBound(bound int) int {
	if bound <= 0 {
		return DefaultBound
	}
	return bound
}
