package sessions

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hearthfire/hearth/pkg/models"
)

// MemoryStore provides an in-memory Store implementation for tests and
// local runs. It obeys the same contracts as the durable store.
type MemoryStore struct {
	mu       sync.RWMutex
	scope    models.Scope
	sessions map[string]*models.Session
	byKey    map[string]string
	messages map[string][]*models.Message
	byMsgID  map[string]*models.Message
}

// NewMemoryStore creates an in-memory session store with the given scope.
func NewMemoryStore(scope models.Scope) *MemoryStore {
	return &MemoryStore{
		scope:    scope,
		sessions: map[string]*models.Session{},
		byKey:    map[string]string{},
		messages: map[string][]*models.Message{},
		byMsgID:  map[string]*models.Message{},
	}
}

func sessionKey(userID, channel string, scope models.Scope) string {
	return userID + ":" + channel + ":" + string(scope)
}

func (m *MemoryStore) GetOrCreate(ctx context.Context, userID, channel string) (*models.Session, error) {
	effUser, effChannel := ScopeKey(m.scope, userID, channel)
	key := sessionKey(effUser, effChannel, m.scope)

	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byKey[key]; ok {
		if session, ok := m.sessions[id]; ok {
			session.UpdatedAt = time.Now()
			return cloneSession(session), nil
		}
	}

	now := time.Now()
	session := &models.Session{
		ID:        uuid.NewString(),
		UserID:    effUser,
		Channel:   effChannel,
		Scope:     m.scope,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.sessions[session.ID] = session
	m.byKey[key] = session.ID
	return cloneSession(session), nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSession(session), nil
}

func (m *MemoryStore) AppendMessage(ctx context.Context, sessionID string, role models.Role, content string, model string, tokens *int) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}

	now := time.Now()
	// Timestamps must be non-decreasing within a session; ties are broken
	// by insertion order which the slice preserves.
	if n := len(m.messages[sessionID]); n > 0 {
		if last := m.messages[sessionID][n-1]; now.Before(last.CreatedAt) {
			now = last.CreatedAt
		}
	}

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

	m.messages[sessionID] = append(m.messages[sessionID], msg)
	m.byMsgID[msg.ID] = msg
	session.UpdatedAt = now
	return cloneMessage(msg), nil
}

func (m *MemoryStore) ListMessages(ctx context.Context, sessionID string, limit, offset int) ([]*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.sessions[sessionID]; !ok {
		return nil, ErrNotFound
	}

	msgs := m.messages[sessionID]
	limit = clampLimit(limit)
	if offset < 0 {
		offset = 0
	}

	end := len(msgs) - offset
	if end < 0 {
		end = 0
	}
	start := end - limit
	if start < 0 {
		start = 0
	}

	out := make([]*models.Message, 0, end-start)
	for _, msg := range msgs[start:end] {
		out = append(out, cloneMessage(msg))
	}
	return out, nil
}

func (m *MemoryStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msg, ok := m.byMsgID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneMessage(msg), nil
}

func (m *MemoryStore) CountMessages(ctx context.Context, sessionID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.sessions[sessionID]; !ok {
		return 0, ErrNotFound
	}
	return len(m.messages[sessionID]), nil
}

func (m *MemoryStore) ListSessions(ctx context.Context, userID string) ([]*SessionSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*SessionSummary
	for _, session := range m.sessions {
		if !ownerMatches(session, userID) {
			continue
		}
		out = append(out, &SessionSummary{
			Session:      *cloneSession(session),
			MessageCount: len(m.messages[session.ID]),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (m *MemoryStore) Delete(ctx context.Context, sessionID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	if !ownerMatches(session, userID) {
		return ErrForbidden
	}

	for _, msg := range m.messages[sessionID] {
		delete(m.byMsgID, msg.ID)
	}
	delete(m.messages, sessionID)
	delete(m.sessions, sessionID)
	delete(m.byKey, sessionKey(session.UserID, session.Channel, session.Scope))
	return nil
}

func (m *MemoryStore) Stats(ctx context.Context, sessionID string) (*models.SessionStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.sessions[sessionID]; !ok {
		return nil, ErrNotFound
	}

	stats := &models.SessionStats{ModelsUsed: map[string]int{}}
	for _, msg := range m.messages[sessionID] {
		stats.TotalMessages++
		switch msg.Role {
		case models.RoleUser:
			stats.UserMessages++
		case models.RoleAssistant:
			stats.AssistantMessages++
		}
		if msg.Tokens != nil {
			stats.TotalTokens += *msg.Tokens
		}
		if msg.ModelUsed != "" {
			stats.ModelsUsed[msg.ModelUsed]++
		}
	}
	return stats, nil
}

func (m *MemoryStore) Close() error { return nil }

func cloneSession(session *models.Session) *models.Session {
	clone := *session
	return &clone
}

func cloneMessage(msg *models.Message) *models.Message {
	clone := *msg
	if msg.Tokens != nil {
		v := *msg.Tokens
		clone.Tokens = &v
	}
	return &clone
}
