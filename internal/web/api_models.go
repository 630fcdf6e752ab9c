package web

import (
	"net/http"
	"time"
)

type modelInfo struct {
	Name     string     `json:"name"`
	Role     string     `json:"role"`
	Loaded   bool       `json:"loaded"`
	LastUsed *time.Time `json:"last_used,omitempty"`
}

// handleModelList reports the role models plus any warm models the cache
// policy is tracking.
func (s *Server) handleModelList(w http.ResponseWriter, r *http.Request) {
	cache := s.engine.Cache()
	router := s.engine.Router()

	warm := map[string]time.Time{}
	for _, state := range cache.Snapshot() {
		warm[state.Name] = state.LastUsed
	}

	seen := map[string]bool{}
	var out []modelInfo
	appendModel := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		info := modelInfo{Name: name, Role: router.RoleFor(name)}
		if used, ok := warm[name]; ok {
			info.Loaded = true
			info.LastUsed = &used
		}
		out = append(out, info)
	}

	appendModel(router.Primary())
	for name := range warm {
		appendModel(name)
	}

	writeSuccess(w, http.StatusOK, map[string]any{
		"models":   out,
		"strategy": string(cache.Strategy()),
	})
}

// handleModelLoad warms a model through a minimal generation so the
// backend keeps it resident under the active cache hint.
func (s *Server) handleModelLoad(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "model name is required")
		return
	}

	cache := s.engine.Cache()
	if err := s.engine.Client().Warm(r.Context(), name, cache.KeepAlive()); err != nil {
		s.writeEngineError(w, err)
		return
	}
	cache.MarkUsed(name)

	writeSuccess(w, http.StatusOK, map[string]any{
		"model":  name,
		"loaded": true,
	})
}
