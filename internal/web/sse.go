package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/hearthfire/hearth/internal/engine"
	"github.com/hearthfire/hearth/pkg/models"
)

// streamChat delivers a turn as Server-Sent Events. Default events carry
// raw text fragments; tool_start/tool_end/done/error are named events.
// The turn runs detached from the request context so an observer
// disconnect never aborts transcript persistence.
func (s *Server) streamChat(w http.ResponseWriter, r *http.Request, session *models.Session, req *chatRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, codeInternalError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	observer := engine.NewObserver()
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer observer.Close()
		// Detached context: the turn completes server-side for durability
		// even when the SSE client goes away.
		_, err := s.engine.Process(context.WithoutCancel(r.Context()), session.ID, req.Message, req.Model, observer)
		if err != nil && s.logger != nil {
			s.logger.Warn(r.Context(), "streamed turn failed", "session_id", session.ID, "error", err)
		}
	}()

	if s.metrics != nil {
		s.metrics.ActiveObservers.WithLabelValues("sse").Inc()
		defer s.metrics.ActiveObservers.WithLabelValues("sse").Dec()
	}

	clientGone := r.Context().Done()
	for {
		select {
		case <-clientGone:
			// Stop writing; the turn finishes on its own.
			<-done
			return
		case ev, open := <-observer.Events():
			if !open {
				return
			}
			if !writeSSEEvent(w, ev) {
				continue
			}
			flusher.Flush()
		}
	}
}

// writeSSEEvent maps one engine event onto the SSE wire format. Returns
// false for events with no SSE representation.
func writeSSEEvent(w http.ResponseWriter, ev engine.Event) bool {
	switch ev.Type {
	case engine.EventStream:
		for _, line := range strings.Split(ev.Content, "\n") {
			fmt.Fprintf(w, "data: %s\n", line)
		}
		fmt.Fprint(w, "\n")
		return true
	case engine.EventToolUse:
		name := "tool_start"
		if ev.Status == engine.ToolStatusDone {
			name = "tool_end"
		}
		payload, _ := json.Marshal(map[string]string{"name": ev.Tool})
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload)
		return true
	case engine.EventEnd:
		payload, _ := json.Marshal(map[string]any{
			"model": ev.Model,
			"usage": map[string]int{
				"prompt_tokens":     ev.PromptTokens,
				"completion_tokens": ev.CompletionTokens,
				"total_tokens":      ev.TotalTokens,
			},
		})
		fmt.Fprintf(w, "event: done\ndata: %s\n\n", payload)
		return true
	case engine.EventError:
		payload, _ := json.Marshal(map[string]any{"error": ev.Error, "code": ev.ErrorCode})
		fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload)
		return true
	default:
		return false
	}
}
