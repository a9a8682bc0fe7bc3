package auth

import (
	"context"
	"fmt"
)

type contextKey string

// IdentityContextKey is the context key for the resolved caller identity.
const IdentityContextKey contextKey = "identity"

// Identity is the resolved caller of a request.
type Identity struct {
	// ID is the user id, or the service account id when IsServiceAccount is set.
	ID int64

	// IsServiceAccount marks ID as a service account id.
	IsServiceAccount bool

	// Anonymous is set when no session token was presented.
	Anonymous bool
}

// AnonymousIdentity is the identity of a caller without a session.
var AnonymousIdentity = Identity{Anonymous: true}

// UserID returns the user id, or 0 for service accounts and anonymous callers.
func (i Identity) UserID() int64 {
	if i.Anonymous || i.IsServiceAccount {
		return 0
	}
	return i.ID
}

// ServiceAccountID returns the service account id, or 0 for other callers.
func (i Identity) ServiceAccountID() int64 {
	if i.Anonymous || !i.IsServiceAccount {
		return 0
	}
	return i.ID
}

func (i Identity) String() string {
	switch {
	case i.Anonymous:
		return "anonymous"
	case i.IsServiceAccount:
		return fmt.Sprintf("service-account:%d", i.ID)
	}
	return fmt.Sprintf("user:%d", i.ID)
}

// WithIdentity returns a context carrying the identity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, IdentityContextKey, id)
}

// GetIdentity retrieves the identity from a context. Missing means anonymous.
func GetIdentity(ctx context.Context) Identity {
	if id, ok := ctx.Value(IdentityContextKey).(Identity); ok {
		return id
	}
	return AnonymousIdentity
}

// RequireIdentity returns the identity or ErrUnauthenticated for anonymous callers.
func RequireIdentity(ctx context.Context) (Identity, error) {
	id := GetIdentity(ctx)
	if id.Anonymous {
		return id, ErrUnauthenticated
	}
	return id, nil
}
