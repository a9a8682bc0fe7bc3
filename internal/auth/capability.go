package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/prn-tf/boxvault/internal/domain"
)

const downloadAudience = "boxvault-download"

// DownloadClaims bind a caller identity to exactly one artifact address.
type DownloadClaims struct {
	jwt.RegisteredClaims
	UserID           int64  `json:"userId"`
	IsServiceAccount bool   `json:"isServiceAccount"`
	Organization     string `json:"organization"`
	BoxID            string `json:"boxId"`
	VersionNumber    string `json:"versionNumber"`
	ProviderName     string `json:"providerName"`
	ArchitectureName string `json:"architectureName"`
}

// Address returns the artifact address carried by the claims.
func (c *DownloadClaims) Address() domain.Address {
	return domain.Address{
		Organization: c.Organization,
		Box:          c.BoxID,
		Version:      c.VersionNumber,
		Provider:     c.ProviderName,
		Architecture: c.ArchitectureName,
	}
}

// Identity returns the identity the token was minted for.
func (c *DownloadClaims) Identity() Identity {
	if c.UserID == 0 {
		return AnonymousIdentity
	}
	return Identity{ID: c.UserID, IsServiceAccount: c.IsServiceAccount}
}

// DownloadTokens issues and verifies stateless download capability tokens.
// Tokens are never persisted.
type DownloadTokens struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewDownloadTokens creates a DownloadTokens signing with key.
func NewDownloadTokens(key []byte, ttl time.Duration) *DownloadTokens {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &DownloadTokens{key: key, ttl: ttl, now: time.Now}
}

// TTL returns the token lifetime.
func (d *DownloadTokens) TTL() time.Duration {
	return d.ttl
}

// Issue mints a token for the identity and address.
func (d *DownloadTokens) Issue(id Identity, addr domain.Address) (string, time.Time, error) {
	now := d.now()
	expiresAt := now.Add(d.ttl)

	claims := DownloadClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Audience:  jwt.ClaimStrings{downloadAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		IsServiceAccount: id.IsServiceAccount,
		Organization:     addr.Organization,
		BoxID:            addr.Box,
		VersionNumber:    addr.Version,
		ProviderName:     addr.Provider,
		ArchitectureName: addr.Architecture,
	}
	if !id.Anonymous {
		claims.UserID = id.ID
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(d.key)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify checks signature and expiry, then requires every address claim to
// equal the requested address exactly.
func (d *DownloadTokens) Verify(tokenString string, requested domain.Address) (*DownloadClaims, error) {
	if tokenString == "" {
		return nil, ErrTokenMissing
	}

	claims := &DownloadClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return d.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(downloadAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(d.now),
	)
	if err != nil {
		return nil, mapJWTError(err)
	}

	if claims.Address() != requested {
		return nil, ErrTokenScopeMismatch
	}
	return claims, nil
}
