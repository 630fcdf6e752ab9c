package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/hearthfire/hearth/internal/auth"
	"github.com/hearthfire/hearth/internal/engine"
	"github.com/hearthfire/hearth/internal/llm"
	"github.com/hearthfire/hearth/internal/sessions"
	"github.com/hearthfire/hearth/pkg/models"
)

type chatRequest struct {
	Message   string `json:"message"`
	Stream    bool   `json:"stream"`
	SessionID string `json:"session_id,omitempty"`
	Model     string `json:"model,omitempty"`
}

type chatContent struct {
	Text   string `json:"text"`
	Tokens int    `json:"tokens"`
	Model  string `json:"model,omitempty"`
}

type chatResponse struct {
	MessageID string      `json:"message_id"`
	SessionID string      `json:"session_id"`
	UserID    string      `json:"user_id"`
	Timestamp time.Time   `json:"timestamp"`
	Input     chatContent `json:"input"`
	Response  chatContent `json:"response"`
	LatencyMS int64       `json:"latency_ms"`
}

// handleChat runs one turn. With stream=false the final assistant reply
// comes back as JSON; with stream=true the response is an SSE stream.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserFromContext(r.Context())

	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "message is required")
		return
	}
	if len(req.Message) > maxMessageLength {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "message exceeds maximum length")
		return
	}

	session, ok := s.resolveSession(w, r, userID, req.SessionID)
	if !ok {
		return
	}

	if req.Stream {
		s.streamChat(w, r, session, &req)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	result, err := s.engine.Process(ctx, session.ID, req.Message, req.Model, nil)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, chatResponse{
		MessageID: result.MessageID,
		SessionID: session.ID,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
		Input: chatContent{
			Text:   req.Message,
			Tokens: engine.EstimateTokens(req.Message),
		},
		Response: chatContent{
			Text:   result.Text,
			Tokens: result.TotalTokens,
			Model:  result.Model,
		},
		LatencyMS: result.LatencyMS,
	})
}

// resolveSession loads an explicit session (verifying ownership) or
// lazily creates the caller's web session.
func (s *Server) resolveSession(w http.ResponseWriter, r *http.Request, userID, sessionID string) (*models.Session, bool) {
	store := s.engine.Store()

	if sessionID == "" {
		session, err := store.GetOrCreate(r.Context(), userID, webChannel)
		if err != nil {
			writeError(w, http.StatusInternalServerError, codeInternalError, "session lookup failed")
			return nil, false
		}
		return session, true
	}

	session, err := store.Get(r.Context(), sessionID)
	if err != nil {
		s.writeEngineError(w, err)
		return nil, false
	}
	if !s.ownedBy(session, userID) {
		writeError(w, http.StatusForbidden, codeForbidden, "session belongs to another user")
		return nil, false
	}
	return session, true
}

// ownedBy applies the scope rule when checking cross-user access.
func (s *Server) ownedBy(session *models.Session, userID string) bool {
	if session.Scope == models.ScopeMain {
		return true
	}
	return session.UserID == userID
}

// writeEngineError translates store and backend failures into the
// response shapes of the surface.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	var provErr *llm.ProviderError
	switch {
	case errors.Is(err, sessions.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, "not found")
	case errors.Is(err, sessions.ErrForbidden):
		writeError(w, http.StatusForbidden, codeForbidden, "forbidden")
	case errors.As(err, &provErr):
		writeError(w, http.StatusServiceUnavailable, codeServiceUnavailable, "backend unavailable")
	case errors.Is(err, engine.ErrShuttingDown):
		writeError(w, http.StatusServiceUnavailable, codeServiceUnavailable, "shutting down")
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}
