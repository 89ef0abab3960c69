package store

import (
	"context"
	"time"
)

const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Turn is one message of a chat session.
type Turn struct {
	Role      string    `db:"role" json:"role"` // "user" or "model"
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// SessionStore holds the ordered turns of every chat session, keyed by session id.
// Sessions are created on first append and never destroyed.
type SessionStore interface {
	// History returns the turns of a session in insertion order. Unknown
	// sessions have an empty history.
	History(ctx context.Context, sessionID string) ([]Turn, error)
	// Append adds turns to the end of a session atomically.
	Append(ctx context.Context, sessionID string, turns ...Turn) error
	Close() error
}

func stamp(turns []Turn) []Turn {
	now := time.Now().UTC()
	out := make([]Turn, len(turns))
	for i, t := range turns {
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		out[i] = t
	}
	return out
}
