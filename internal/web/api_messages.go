package web

import (
	"net/http"
	"strconv"

	"github.com/hearthfire/hearth/internal/auth"
	"github.com/hearthfire/hearth/internal/sessions"
)

// handleMessageList returns the caller's history window. An explicit
// session_id targets that session; otherwise the caller's web session is
// used. limit defaults to 50 and clamps at the store maximum.
func (s *Server) handleMessageList(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserFromContext(r.Context())

	limit := parseIntParam(r, "limit", 50)
	offset := parseIntParam(r, "offset", 0)
	if limit < 0 || offset < 0 {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "limit and offset must be non-negative")
		return
	}
	if limit > sessions.MaxHistoryLimit {
		limit = sessions.MaxHistoryLimit
	}

	session, ok := s.resolveSession(w, r, userID, r.URL.Query().Get("session_id"))
	if !ok {
		return
	}

	store := s.engine.Store()
	msgs, err := store.ListMessages(r.Context(), session.ID, limit, offset)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	total, err := store.CountMessages(r.Context(), session.ID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{
		"session_id": session.ID,
		"messages":   msgs,
		"total":      total,
		"limit":      limit,
		"offset":     offset,
	})
}

func (s *Server) handleMessageGet(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserFromContext(r.Context())
	store := s.engine.Store()

	msg, err := store.GetMessage(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	session, err := store.Get(r.Context(), msg.SessionID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if !s.ownedBy(session, userID) {
		writeError(w, http.StatusForbidden, codeForbidden, "message belongs to another user")
		return
	}
	writeSuccess(w, http.StatusOK, msg)
}

func parseIntParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return value
}
