// Package sessions provides durable, concurrent-safe storage of sessions
// and their message transcripts.
package sessions

import (
	"context"
	"errors"

	"github.com/hearthfire/hearth/pkg/models"
)

var (
	// ErrNotFound is returned when a session or message does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when a session belongs to another user.
	ErrForbidden = errors.New("forbidden")
)

// MaxHistoryLimit caps any single history query.
const MaxHistoryLimit = 500

// SessionSummary is a session with transcript aggregates for listings.
type SessionSummary struct {
	models.Session
	MessageCount int `json:"message_count"`
}

// Store is the interface for session persistence. Messages are append-only;
// sessions are created lazily and removed only by explicit delete.
type Store interface {
	// GetOrCreate returns the session for (user, channel) under the
	// configured scope, creating it atomically when absent. Concurrent
	// calls for the same key return the same session.
	GetOrCreate(ctx context.Context, userID, channel string) (*models.Session, error)

	// Get returns a session by id.
	Get(ctx context.Context, id string) (*models.Session, error)

	// AppendMessage appends a message to an existing session and returns
	// it with id and timestamp assigned. Model and tokens may be empty/nil
	// where unknown.
	AppendMessage(ctx context.Context, sessionID string, role models.Role, content string, model string, tokens *int) (*models.Message, error)

	// ListMessages returns up to limit of the most recent messages in
	// chronological order, skipping offset from the tail. limit is capped
	// at MaxHistoryLimit.
	ListMessages(ctx context.Context, sessionID string, limit, offset int) ([]*models.Message, error)

	// GetMessage returns a message by id.
	GetMessage(ctx context.Context, id string) (*models.Message, error)

	// CountMessages returns the transcript length.
	CountMessages(ctx context.Context, sessionID string) (int, error)

	// ListSessions enumerates a user's sessions with aggregates.
	ListSessions(ctx context.Context, userID string) ([]*SessionSummary, error)

	// Delete removes all messages then the session row. It fails with
	// ErrForbidden when the session belongs to another user and
	// ErrNotFound when it does not exist.
	Delete(ctx context.Context, sessionID, userID string) error

	// Stats summarizes a session transcript.
	Stats(ctx context.Context, sessionID string) (*models.SessionStats, error)

	// Close releases store resources.
	Close() error
}

func clampLimit(limit int) int {
	if limit < 0 {
		return 0
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}
