package web

import (
	"encoding/json"
	"net/http"

	"github.com/hearthfire/hearth/internal/auth"
	"github.com/hearthfire/hearth/pkg/models"
)

type sessionResponse struct {
	models.Session
	MessageCount int                  `json:"message_count"`
	Stats        *models.SessionStats `json:"stats,omitempty"`
	Elevated     bool                 `json:"elevated"`
}

// handleSessionCreate lazily creates (or returns) the caller's web
// session. Sessions are keyed by the configured scope, so repeated
// creates converge on the same row.
func (s *Server) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserFromContext(r.Context())

	session, err := s.engine.Store().GetOrCreate(r.Context(), userID, webChannel)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, sessionResponse{
		Session:  *session,
		Elevated: s.engine.Policy().IsElevated(session.ID),
	})
}

func (s *Server) handleSessionList(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserFromContext(r.Context())

	summaries, err := s.engine.Store().ListSessions(r.Context(), userID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	out := make([]sessionResponse, 0, len(summaries))
	for _, summary := range summaries {
		out = append(out, sessionResponse{
			Session:      summary.Session,
			MessageCount: summary.MessageCount,
			Elevated:     s.engine.Policy().IsElevated(summary.ID),
		})
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"sessions": out,
		"total":    len(out),
	})
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserFromContext(r.Context())
	store := s.engine.Store()

	session, err := store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if !s.ownedBy(session, userID) {
		writeError(w, http.StatusForbidden, codeForbidden, "session belongs to another user")
		return
	}

	stats, err := store.Stats(r.Context(), session.ID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, sessionResponse{
		Session:      *session,
		MessageCount: stats.TotalMessages,
		Stats:        stats,
		Elevated:     s.engine.Policy().IsElevated(session.ID),
	})
}

// handleSessionDelete clears the transcript and removes the session.
// Delete is hard; the first call yields 204 and any repeat yields 404.
func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserFromContext(r.Context())

	if err := s.engine.Store().Delete(r.Context(), r.PathValue("id"), userID); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.engine.CancelSession(r.PathValue("id"))
	s.engine.Policy().SetElevated(r.PathValue("id"), false)
	writeSuccess(w, http.StatusNoContent, nil)
}

// handleSessionElevated toggles elevated mode. The toggle lives in
// process memory and resets on restart.
func (s *Server) handleSessionElevated(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserFromContext(r.Context())

	session, err := s.engine.Store().Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if !s.ownedBy(session, userID) {
		writeError(w, http.StatusForbidden, codeForbidden, "session belongs to another user")
		return
	}

	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body")
		return
	}

	s.engine.Policy().SetElevated(session.ID, req.Enabled)
	writeSuccess(w, http.StatusOK, map[string]any{
		"session_id": session.ID,
		"elevated":   req.Enabled,
	})
}
