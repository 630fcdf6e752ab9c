// Package auth validates bearer tokens and maps them to user identities.
package auth

import (
	"crypto/subtle"
	"errors"
	"strings"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

// WebUserPrefix marks tokens whose suffix is the user id.
const WebUserPrefix = "web-user-"

// Service validates tokens against a static allow list. A token maps 1:1 to
// a user identity: "web-user-<name>" yields "<name>", anything else yields
// the token itself.
type Service struct {
	tokens []string
}

// NewService constructs a token validator. An empty list rejects everything.
func NewService(tokens []string) *Service {
	cleaned := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if trimmed := strings.TrimSpace(t); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return &Service{tokens: cleaned}
}

// ValidateBearer checks an Authorization header value and returns the user id.
func (s *Service) ValidateBearer(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", ErrInvalidToken
	}
	return s.ValidateToken(strings.TrimSpace(header[len(prefix):]))
}

// ValidateToken checks a raw token string (used for WS query-param auth).
func (s *Service) ValidateToken(token string) (string, error) {
	if token == "" {
		return "", ErrMissingToken
	}
	for _, valid := range s.tokens {
		if len(valid) == len(token) && subtle.ConstantTimeCompare([]byte(valid), []byte(token)) == 1 {
			return UserID(token), nil
		}
	}
	return "", ErrInvalidToken
}

// UserID derives the user identity for a token.
func UserID(token string) string {
	if suffix, ok := strings.CutPrefix(token, WebUserPrefix); ok {
		return suffix
	}
	return token
}
