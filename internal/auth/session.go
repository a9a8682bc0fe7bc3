package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const sessionAudience = "boxvault-session"

// SessionClaims are the claims of a caller session token.
type SessionClaims struct {
	jwt.RegisteredClaims
	ID               int64 `json:"id"`
	IsServiceAccount bool  `json:"isServiceAccount"`
}

// SessionManager issues and parses session tokens.
type SessionManager struct {
	key []byte
	now func() time.Time
}

// NewSessionManager creates a SessionManager signing with key.
func NewSessionManager(key []byte) *SessionManager {
	return &SessionManager{key: key, now: time.Now}
}

// Issue mints a session token for a non-anonymous identity.
func (m *SessionManager) Issue(id Identity, ttl time.Duration) (string, error) {
	if id.Anonymous {
		return "", ErrUnauthenticated
	}
	now := m.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{sessionAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		ID:               id.ID,
		IsServiceAccount: id.IsServiceAccount,
	})
	return token.SignedString(m.key)
}

// Parse verifies a session token and returns its identity.
func (m *SessionManager) Parse(tokenString string) (Identity, error) {
	if tokenString == "" {
		return AnonymousIdentity, ErrTokenMissing
	}
	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return m.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(sessionAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return AnonymousIdentity, mapJWTError(err)
	}
	if claims.ID <= 0 {
		return AnonymousIdentity, ErrTokenInvalid
	}
	return Identity{ID: claims.ID, IsServiceAccount: claims.IsServiceAccount}, nil
}

func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrTokenExpired
	}
	return errors.Join(ErrTokenInvalid, err)
}
