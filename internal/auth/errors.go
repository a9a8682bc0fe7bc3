// Package auth resolves caller identities from session tokens and issues and
// verifies download capability tokens.
package auth

import "errors"

// Token errors.
var (
	// ErrTokenMissing indicates no token was presented.
	ErrTokenMissing = errors.New("token missing")

	// ErrTokenInvalid indicates a malformed token or a bad signature.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrTokenExpired indicates the token's expiry has passed.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenScopeMismatch indicates a valid download token presented for a
	// different artifact address than the one it was minted for.
	ErrTokenScopeMismatch = errors.New("token does not match requested artifact")

	// ErrUnauthenticated indicates an operation requires a non-anonymous caller.
	ErrUnauthenticated = errors.New("authentication required")
)

// RejectionReason returns a short label for a token error, for metrics.
func RejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrTokenMissing):
		return "missing"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrTokenScopeMismatch):
		return "scope"
	case errors.Is(err, ErrTokenInvalid):
		return "invalid"
	}
	return "other"
}
