package web

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hearthfire/hearth/internal/auth"
	"github.com/hearthfire/hearth/internal/observability"
)

// responseWriter captures the status code for request logging.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack passes through so the WebSocket upgrade works behind the wrapper.
func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, errors.New("response writer does not support hijacking")
}

// loggingMiddleware logs each request with a correlation id.
func loggingMiddleware(logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := observability.AddRequestID(r.Context(), uuid.NewString())

			wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r.WithContext(ctx))

			if logger != nil {
				logger.Debug(ctx, "http request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", wrapped.status,
					"duration_ms", time.Since(start).Milliseconds(),
				)
			}
		})
	}
}

// authMiddleware enforces bearer-token authentication and stores the
// resolved user id on the context. The WS endpoint authenticates through
// its token query parameter instead.
func authMiddleware(service *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := service.ValidateBearer(r.Header.Get("Authorization"))
			if err != nil {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "missing or invalid token")
				return
			}
			ctx := auth.WithUser(r.Context(), userID)
			ctx = observability.AddUserID(ctx, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
