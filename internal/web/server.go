// Package web exposes the gateway core over a bearer-token-authenticated
// HTTP surface, Server-Sent Events on the chat endpoint, and a WebSocket
// endpoint for interactive observers.
package web

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hearthfire/hearth/internal/auth"
	"github.com/hearthfire/hearth/internal/engine"
	"github.com/hearthfire/hearth/internal/observability"
)

// Version reported by the health endpoint.
const Version = "0.3.0"

// webChannel is the channel label for sessions created over this surface.
const webChannel = "web"

// maxMessageLength bounds chat message bodies.
const maxMessageLength = 10000

// Server is the HTTP/WS surface over the turn engine.
type Server struct {
	engine  *engine.Engine
	auth    *auth.Service
	logger  *observability.Logger
	metrics *observability.Metrics

	// userToolDir persists HTTP-created tools across restarts.
	userToolDir string

	// requestTimeout bounds synchronous handlers; streaming paths manage
	// their own lifetimes.
	requestTimeout time.Duration
}

// NewServer builds the surface around a fully wired engine.
func NewServer(eng *engine.Engine, authService *auth.Service, logger *observability.Logger,
	metrics *observability.Metrics, userToolDir string) *Server {
	return &Server{
		engine:         eng,
		auth:           authService,
		logger:         logger,
		metrics:        metrics,
		userToolDir:    userToolDir,
		requestTimeout: 30 * time.Second,
	}
}

// SetRequestTimeout overrides the synchronous-handler bound.
func (s *Server) SetRequestTimeout(d time.Duration) {
	if d > 0 {
		s.requestTimeout = d
	}
}

// Handler assembles the route table. Health, metrics, and the WS endpoint
// sit outside the bearer middleware; WS authenticates via query token.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /api/chat", s.handleChat)
	api.HandleFunc("POST /api/sessions", s.handleSessionCreate)
	api.HandleFunc("GET /api/sessions", s.handleSessionList)
	api.HandleFunc("GET /api/sessions/{id}", s.handleSessionGet)
	api.HandleFunc("DELETE /api/sessions/{id}", s.handleSessionDelete)
	api.HandleFunc("POST /api/sessions/{id}/elevated", s.handleSessionElevated)
	api.HandleFunc("GET /api/messages", s.handleMessageList)
	api.HandleFunc("GET /api/messages/{id}", s.handleMessageGet)
	api.HandleFunc("GET /api/models", s.handleModelList)
	api.HandleFunc("POST /api/models/{name}/load", s.handleModelLoad)
	api.HandleFunc("POST /api/tools", s.handleToolCreate)
	api.HandleFunc("GET /api/tools", s.handleToolList)
	api.HandleFunc("GET /api/tools/definitions/all", s.handleToolDefinitionsAll)
	api.HandleFunc("GET /api/tools/{name}", s.handleToolGet)
	api.HandleFunc("PUT /api/tools/{name}", s.handleToolReplace)
	api.HandleFunc("DELETE /api/tools/{name}", s.handleToolDelete)
	api.HandleFunc("POST /api/tools/{name}/test", s.handleToolTest)
	api.HandleFunc("POST /api/tools/{name}/validate", s.handleToolValidate)
	api.HandleFunc("GET /api/tools/{name}/definition", s.handleToolDefinition)

	authed := authMiddleware(s.auth)(api)

	root := http.NewServeMux()
	root.HandleFunc("GET /health", s.handleHealth)
	root.Handle("GET /metrics", promhttp.Handler())
	root.HandleFunc("GET /ws", s.handleWS)
	root.Handle("/api/", authed)

	return loggingMiddleware(s.logger)(root)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": Version,
		"gateway": "hearth",
	})
}
