package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// DefaultSessionHeader carries the session token when no Authorization header is set.
const DefaultSessionHeader = "x-access-token"

// Config contains configuration for the identity middleware.
type Config struct {
	// SessionHeader is the header carrying the session token.
	SessionHeader string

	// SkipPaths are paths that skip identity resolution.
	SkipPaths []string
}

// DefaultConfig returns the default middleware configuration.
func DefaultConfig() Config {
	return Config{
		SessionHeader: DefaultSessionHeader,
		SkipPaths:     []string{"/health"},
	}
}

// extractSessionToken reads the session header, then an Authorization bearer token.
func extractSessionToken(r *http.Request, header string) string {
	if tok := strings.TrimSpace(r.Header.Get(header)); tok != "" {
		return tok
	}
	authz := r.Header.Get("Authorization")
	if len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return ""
}

// Middleware resolves the caller identity from a session token.
// A missing token yields the anonymous identity; an invalid or expired one is
// rejected with 401.
func Middleware(sessions *SessionManager, config Config, logger zerolog.Logger) func(http.Handler) http.Handler {
	if config.SessionHeader == "" {
		config.SessionHeader = DefaultSessionHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, path := range config.SkipPaths {
				if r.URL.Path == path {
					next.ServeHTTP(w, r)
					return
				}
			}

			tokenString := extractSessionToken(r, config.SessionHeader)
			if tokenString == "" {
				next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), AnonymousIdentity)))
				return
			}

			id, err := sessions.Parse(tokenString)
			if err != nil {
				logger.Debug().Err(err).Str("path", r.URL.Path).Msg("session token rejected")
				writeAuthError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// writeAuthError writes a 401 JSON error body.
func writeAuthError(w http.ResponseWriter, err error) {
	message := "Invalid session token"
	if errors.Is(err, ErrTokenExpired) {
		message = "Session token expired"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "UNAUTHORIZED",
		"message": message,
	})
}
