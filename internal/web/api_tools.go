package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/hearthfire/hearth/internal/auth"
	"github.com/hearthfire/hearth/internal/llm"
	"github.com/hearthfire/hearth/internal/tools"
	"github.com/hearthfire/hearth/pkg/models"
)

// handleToolCreate registers a user-authored tool and persists it to the
// user-tool directory so restarts preserve it.
func (s *Server) handleToolCreate(w http.ResponseWriter, r *http.Request) {
	def, ok := s.decodeToolDefinition(w, r)
	if !ok {
		return
	}

	if err := s.engine.Registry().Register(*def); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}

	if err := tools.SaveToDir(s.userToolDir, def); err != nil {
		if s.logger != nil {
			s.logger.Warn(r.Context(), "tool persistence failed", "tool", def.Name, "error", err)
		}
	}
	writeSuccess(w, http.StatusCreated, def)
}

func (s *Server) handleToolList(w http.ResponseWriter, r *http.Request) {
	defs := s.engine.Registry().List()
	writeSuccess(w, http.StatusOK, map[string]any{
		"tools": defs,
		"total": len(defs),
	})
}

func (s *Server) handleToolGet(w http.ResponseWriter, r *http.Request) {
	def, ok := s.engine.Registry().Get(r.PathValue("name"))
	if !ok {
		writeError(w, http.StatusNotFound, codeNotFound, "tool not found")
		return
	}
	writeSuccess(w, http.StatusOK, def)
}

// handleToolReplace swaps a user tool definition in place.
func (s *Server) handleToolReplace(w http.ResponseWriter, r *http.Request) {
	def, ok := s.decodeToolDefinition(w, r)
	if !ok {
		return
	}
	if def.Name != r.PathValue("name") {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "name in body must match path")
		return
	}
	if _, exists := s.engine.Registry().Get(def.Name); !exists {
		writeError(w, http.StatusNotFound, codeNotFound, "tool not found")
		return
	}

	if err := s.engine.Registry().Replace(*def); err != nil {
		if errors.Is(err, tools.ErrImmutable) {
			writeError(w, http.StatusForbidden, codeForbidden, "tool is not user-authored")
			return
		}
		writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}

	if err := tools.SaveToDir(s.userToolDir, def); err != nil && s.logger != nil {
		s.logger.Warn(r.Context(), "tool persistence failed", "tool", def.Name, "error", err)
	}
	writeSuccess(w, http.StatusOK, def)
}

func (s *Server) handleToolDelete(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	if err := s.engine.Registry().Unregister(name); err != nil {
		switch {
		case errors.Is(err, tools.ErrToolNotFound):
			writeError(w, http.StatusNotFound, codeNotFound, "tool not found")
		case errors.Is(err, tools.ErrImmutable):
			writeError(w, http.StatusForbidden, codeForbidden, "tool is not user-authored")
		default:
			writeError(w, http.StatusInternalServerError, codeInternalError, "unregister failed")
		}
		return
	}

	if err := tools.RemoveFromDir(s.userToolDir, name); err != nil && s.logger != nil {
		s.logger.Warn(r.Context(), "tool file removal failed", "tool", name, "error", err)
	}
	writeSuccess(w, http.StatusNoContent, nil)
}

// handleToolTest dry-runs a tool with caller-supplied parameters. Policy
// still applies; failures come back as textual results, not errors.
func (s *Server) handleToolTest(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserFromContext(r.Context())
	name := r.PathValue("name")

	if _, ok := s.engine.Registry().Get(name); !ok {
		writeError(w, http.StatusNotFound, codeNotFound, "tool not found")
		return
	}

	var req struct {
		Parameters map[string]any `json:"parameters"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body")
		return
	}
	args, err := json.Marshal(req.Parameters)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid parameters")
		return
	}

	// Dry runs execute under the caller's web session so the elevated
	// toggle behaves the same as in a turn.
	session, ok := s.resolveSession(w, r, userID, "")
	if !ok {
		return
	}

	result := s.engine.Executor().Execute(r.Context(), session.ID, models.ToolCall{
		ID:        uuid.NewString(),
		Name:      name,
		Arguments: args,
	})
	writeSuccess(w, http.StatusOK, map[string]any{
		"tool":     name,
		"result":   result.Content,
		"is_error": result.IsError,
	})
}

// handleToolValidate checks a registered definition without executing it.
func (s *Server) handleToolValidate(w http.ResponseWriter, r *http.Request) {
	def, ok := s.engine.Registry().Get(r.PathValue("name"))
	if !ok {
		writeError(w, http.StatusNotFound, codeNotFound, "tool not found")
		return
	}

	var req struct {
		CheckSyntax     bool `json:"check_syntax"`
		CheckParameters bool `json:"check_parameters"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body")
		return
	}

	var problems []string
	if req.CheckParameters {
		if err := tools.ValidateParameterSchema(def.Parameters); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if req.CheckSyntax {
		if err := tools.ValidateBody(&def); err != nil {
			problems = append(problems, err.Error())
		}
	}

	writeSuccess(w, http.StatusOK, map[string]any{
		"tool":   def.Name,
		"valid":  len(problems) == 0,
		"errors": problems,
	})
}

// handleToolDefinition returns the backend-schema form of one tool.
func (s *Server) handleToolDefinition(w http.ResponseWriter, r *http.Request) {
	def, ok := s.engine.Registry().Get(r.PathValue("name"))
	if !ok {
		writeError(w, http.StatusNotFound, codeNotFound, "tool not found")
		return
	}
	wire := llm.ToWireTools([]models.ToolDefinition{def})
	if len(wire) == 0 {
		writeError(w, http.StatusInternalServerError, codeInternalError, "schema conversion failed")
		return
	}
	writeSuccess(w, http.StatusOK, json.RawMessage(wire[0]))
}

// handleToolDefinitionsAll returns the backend-schema form of every tool.
func (s *Server) handleToolDefinitionsAll(w http.ResponseWriter, r *http.Request) {
	wire := llm.ToWireTools(s.engine.Registry().List())
	out := make([]json.RawMessage, len(wire))
	copy(out, wire)
	writeSuccess(w, http.StatusOK, out)
}

func (s *Server) decodeToolDefinition(w http.ResponseWriter, r *http.Request) (*models.ToolDefinition, bool) {
	var def models.ToolDefinition
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&def); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body")
		return nil, false
	}
	if err := tools.ValidateDefinition(&def); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return nil, false
	}
	return &def, true
}
