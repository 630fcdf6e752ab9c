package web

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hearthfire/hearth/internal/engine"
	"github.com/hearthfire/hearth/pkg/models"
)

const (
	// wsPingInterval is how often an idle socket is pinged; a client
	// missing two consecutive pongs is closed.
	wsPingInterval = 30 * time.Second
	wsMaxMissed    = 2

	wsWriteTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	HandshakeTimeout: 5 * time.Second,
	ReadBufferSize:   4096,
	WriteBufferSize:  4096,
	// The gateway is local-first; cross-origin browsers are expected.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsClient serializes writes to one socket.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(v)
}

// wsInbound is a client-to-server frame.
type wsInbound struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// handleWS upgrades the connection and runs the frame loop. Auth uses the
// token query parameter; the header form is unavailable to browsers here.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	userID, err := s.auth.ValidateToken(r.URL.Query().Get("token"))
	if err != nil {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "missing or invalid token")
		return
	}

	session, err := s.engine.Store().GetOrCreate(r.Context(), userID, webChannel)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternalError, "session lookup failed")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := &wsClient{conn: conn}
	defer conn.Close()

	if s.metrics != nil {
		s.metrics.ActiveObservers.WithLabelValues("ws").Inc()
		defer s.metrics.ActiveObservers.WithLabelValues("ws").Dec()
	}

	if err := client.writeJSON(engine.Connected(session.ID)); err != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var missedPongs atomic.Int32
	go s.wsPingLoop(ctx, client, &missedPongs, cancel)

	for {
		var frame wsInbound
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}

		switch frame.Type {
		case "pong":
			missedPongs.Store(0)
		case "message":
			if frame.Content == "" || len(frame.Content) > maxMessageLength {
				client.writeJSON(engine.Error("message must be 1 to 10000 characters", 400))
				continue
			}
			// Each message is one turn; the engine serializes turns per
			// session so frames sent back-to-back process in order.
			go s.runWSTurn(client, session, frame.Content)
		default:
			client.writeJSON(engine.Error("unknown frame type", 400))
		}
	}
}

func (s *Server) wsPingLoop(ctx context.Context, client *wsClient, missed *atomic.Int32, cancel context.CancelFunc) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if missed.Add(1) > wsMaxMissed {
				client.conn.Close()
				cancel()
				return
			}
			if err := client.writeJSON(engine.Ping()); err != nil {
				client.conn.Close()
				cancel()
				return
			}
		}
	}
}

// runWSTurn processes one message and forwards turn events to the socket.
// The turn runs on a background context: a dropped socket stops delivery
// but never aborts transcript persistence.
func (s *Server) runWSTurn(client *wsClient, session *models.Session, content string) {
	observer := engine.NewObserver()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range observer.Events() {
			if err := client.writeJSON(ev); err != nil {
				// Observer write failure: disconnect the observer, let
				// the turn continue. Remaining events drain below.
				for range observer.Events() {
				}
				return
			}
		}
	}()

	// Engine failures already emitted their error frame to the observer.
	_, err := s.engine.Process(context.Background(), session.ID, content, "", observer)
	if err != nil && s.logger != nil {
		s.logger.Warn(context.Background(), "ws turn failed", "session_id", session.ID, "error", err)
	}
	observer.Close()
	<-done
}
