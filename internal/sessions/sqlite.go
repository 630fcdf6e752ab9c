package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/hearthfire/hearth/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	channel     TEXT NOT NULL,
	scope       TEXT NOT NULL,
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_key ON sessions(user_id, channel, scope);

CREATE TABLE IF NOT EXISTS messages (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	role        TEXT NOT NULL,
	content     TEXT NOT NULL,
	created_at  INTEGER NOT NULL,
	model_used  TEXT,
	tokens      INTEGER
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);
`

// SQLiteStore is the durable Store implementation backed by SQLite.
type SQLiteStore struct {
	db    *sql.DB
	scope models.Scope
}

// NewSQLiteStore opens (creating if needed) the database at path and
// prepares the schema. WAL mode keeps readers unblocked during turn writes.
func NewSQLiteStore(path string, scope models.Scope) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// The sqlite driver serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent turns.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db, scope: scope}, nil
}

func (s *SQLiteStore) GetOrCreate(ctx context.Context, userID, channel string) (*models.Session, error) {
	effUser, effChannel := ScopeKey(s.scope, userID, channel)
	now := time.Now()

	// An upsert against the unique (user_id, channel, scope) index (which
	// refreshes updated_at on conflict) makes concurrent get-or-creates
	// converge on one row.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, channel, scope, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, channel, scope) DO UPDATE SET updated_at = excluded.updated_at`,
		uuid.NewString(), effUser, effChannel, string(s.scope), now.UnixNano(), now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("get-or-create session: %w", err)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, channel, scope, created_at, updated_at
		 FROM sessions WHERE user_id = ? AND channel = ? AND scope = ?`,
		effUser, effChannel, string(s.scope))
	return scanSession(row)
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, channel, scope, created_at, updated_at FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, sessionID string, role models.Role, content string, model string, tokens *int) (*models.Message, error) {
	now := time.Now()
	msg := &models.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: now,
		ModelUsed: model,
	}
	if tokens != nil {
		v := *tokens
		msg.Tokens = &v
	}

	var modelVal, tokensVal any
	if model != "" {
		modelVal = model
	}
	if tokens != nil {
		tokensVal = *tokens
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, sessionID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("append message: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, role, content, created_at, model_used, tokens)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, sessionID, string(role), content, now.UnixNano(), modelVal, tokensVal); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE id = ?`, now.UnixNano(), sessionID); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	return msg, nil
}

func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string, limit, offset int) ([]*models.Message, error) {
	if _, err := s.Get(ctx, sessionID); err != nil {
		return nil, err
	}

	limit = clampLimit(limit)
	if offset < 0 {
		offset = 0
	}
	if limit == 0 {
		return []*models.Message{}, nil
	}

	// Take the trailing window in reverse, then flip to chronological.
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, created_at, model_used, tokens
		 FROM messages WHERE session_id = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		sessionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var reversed []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		reversed = append(reversed, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	out := make([]*models.Message, len(reversed))
	for i, msg := range reversed {
		out[len(reversed)-1-i] = msg
	}
	return out, nil
}

func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, role, content, created_at, model_used, tokens FROM messages WHERE id = ?`, id)
	msg, err := scanMessage(row)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *SQLiteStore) CountMessages(ctx context.Context, sessionID string) (int, error) {
	if _, err := s.Get(ctx, sessionID); err != nil {
		return 0, err
	}
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, userID string) ([]*SessionSummary, error) {
	effUser, _ := ScopeKey(s.scope, userID, "")

	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.user_id, s.channel, s.scope, s.created_at, s.updated_at, COUNT(m.id)
		 FROM sessions s LEFT JOIN messages m ON m.session_id = s.id
		 WHERE s.user_id = ?
		 GROUP BY s.id ORDER BY s.updated_at DESC`, effUser)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*SessionSummary
	for rows.Next() {
		var (
			summary          SessionSummary
			created, updated int64
			scope            string
		)
		if err := rows.Scan(&summary.ID, &summary.UserID, &summary.Channel, &scope, &created, &updated, &summary.MessageCount); err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		summary.Scope = models.Scope(scope)
		summary.CreatedAt = time.Unix(0, created)
		summary.UpdatedAt = time.Unix(0, updated)
		out = append(out, &summary)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, sessionID, userID string) error {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if !ownerMatches(session, userID) {
		return ErrForbidden
	}

	// messages go with the session via ON DELETE CASCADE
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Stats(ctx context.Context, sessionID string) (*models.SessionStats, error) {
	if _, err := s.Get(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT role, model_used, tokens FROM messages WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session stats: %w", err)
	}
	defer rows.Close()

	stats := &models.SessionStats{ModelsUsed: map[string]int{}}
	for rows.Next() {
		var (
			role   string
			model  sql.NullString
			tokens sql.NullInt64
		)
		if err := rows.Scan(&role, &model, &tokens); err != nil {
			return nil, fmt.Errorf("session stats: %w", err)
		}
		stats.TotalMessages++
		switch models.Role(role) {
		case models.RoleUser:
			stats.UserMessages++
		case models.RoleAssistant:
			stats.AssistantMessages++
		}
		if tokens.Valid {
			stats.TotalTokens += int(tokens.Int64)
		}
		if model.Valid && model.String != "" {
			stats.ModelsUsed[model.String]++
		}
	}
	return stats, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		session          models.Session
		scope            string
		created, updated int64
	)
	err := row.Scan(&session.ID, &session.UserID, &session.Channel, &scope, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	session.Scope = models.Scope(scope)
	session.CreatedAt = time.Unix(0, created)
	session.UpdatedAt = time.Unix(0, updated)
	return &session, nil
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var (
		msg     models.Message
		role    string
		created int64
		model   sql.NullString
		tokens  sql.NullInt64
	)
	err := row.Scan(&msg.ID, &msg.SessionID, &role, &msg.Content, &created, &model, &tokens)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}
	msg.Role = models.Role(role)
	msg.CreatedAt = time.Unix(0, created)
	if model.Valid {
		msg.ModelUsed = model.String
	}
	if tokens.Valid {
		v := int(tokens.Int64)
		msg.Tokens = &v
	}
	return &msg, nil
}
