// Package gateway translates between the box distribution client protocol
// and the canonical API routes.
package gateway

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// DefaultClientPrefix is the User-Agent prefix of the distribution client.
const DefaultClientPrefix = "Vagrant/"

// boxesMarker is the literal middle segment of the three-segment client path.
const boxesMarker = "boxes"

type contextKey string

const protocolContextKey contextKey = "protocol-request"

// reservedRoots are first path segments that never name an organization.
var reservedRoots = map[string]bool{
	"api":     true,
	"health":  true,
	"metrics": true,
}

// ProtocolRequest is attached to rewritten client metadata requests.
type ProtocolRequest struct {
	// Organization is the organization segment as sent by the client.
	Organization string

	// BoxName is the box segment as sent by the client.
	BoxName string

	// OriginalPath is the path before rewriting.
	OriginalPath string
}

// Requested is the exact "organization/box" name the client asked for.
func (p ProtocolRequest) Requested() string {
	return p.Organization + "/" + p.BoxName
}

// Detector recognizes distribution client requests.
type Detector struct {
	prefix string
	logger zerolog.Logger
}

// NewDetector creates a Detector for a User-Agent prefix.
func NewDetector(prefix string, logger zerolog.Logger) *Detector {
	if prefix == "" {
		prefix = DefaultClientPrefix
	}
	return &Detector{
		prefix: prefix,
		logger: logger.With().Str("component", "gateway").Logger(),
	}
}

// IsClient reports whether the request comes from the distribution client.
func (d *Detector) IsClient(r *http.Request) bool {
	return strings.HasPrefix(r.UserAgent(), d.prefix)
}

// ParseClientPath extracts organization and box from "/org/box" or
// "/org/boxes/box". Any other shape reports false.
func ParseClientPath(path string) (org, box string, ok bool) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return "", "", false
	}
	parts := strings.Split(trimmed, "/")

	switch len(parts) {
	case 2:
		org, box = parts[0], parts[1]
	case 3:
		if parts[1] != boxesMarker {
			return "", "", false
		}
		org, box = parts[0], parts[2]
	default:
		return "", "", false
	}

	if org == "" || box == "" || reservedRoots[org] {
		return "", "", false
	}
	return org, box, true
}

// CanonicalBoxPath returns the API route for a box lookup.
func CanonicalBoxPath(org, box string) string {
	return "/api/organization/" + org + "/box/" + box
}

// Middleware rewrites client metadata requests onto the canonical box route
// and marks them as protocol requests. Non-client and non-GET requests pass
// through unchanged.
func (d *Detector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || !d.IsClient(r) {
			next.ServeHTTP(w, r)
			return
		}

		org, box, ok := ParseClientPath(r.URL.Path)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		pr := ProtocolRequest{Organization: org, BoxName: box, OriginalPath: r.URL.Path}
		d.logger.Debug().
			Str("from", r.URL.Path).
			Str("requested", pr.Requested()).
			Msg("rewriting protocol client request")

		r2 := r.Clone(WithProtocolRequest(r.Context(), pr))
		r2.URL.Path = CanonicalBoxPath(org, box)
		r2.URL.RawPath = ""
		r2.RequestURI = r2.URL.RequestURI()

		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r2)
	})
}

// WithProtocolRequest returns a context carrying the protocol request.
func WithProtocolRequest(ctx context.Context, pr ProtocolRequest) context.Context {
	return context.WithValue(ctx, protocolContextKey, pr)
}

// GetProtocolRequest returns the protocol request attached by Middleware.
func GetProtocolRequest(ctx context.Context) (ProtocolRequest, bool) {
	pr, ok := ctx.Value(protocolContextKey).(ProtocolRequest)
	return pr, ok
}
