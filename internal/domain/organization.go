// Package domain contains the core catalog entities for BoxVault.
// These are pure Go structs with no external dependencies, representing
// the organization → box → version → provider → architecture → file hierarchy.
package domain

import (
	"time"
)

// Role is a member's role within an organization.
type Role string

const (
	// RoleUser can read the organization's private boxes.
	RoleUser Role = "user"

	// RoleModerator can additionally upload, replace and delete artifacts.
	RoleModerator Role = "moderator"

	// RoleAdmin has every moderator permission.
	RoleAdmin Role = "admin"
)

// CanWrite reports whether the role allows artifact mutation.
func (r Role) CanWrite() bool {
	return r == RoleModerator || r == RoleAdmin
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleModerator, RoleAdmin:
		return true
	}
	return false
}

// Organization is the top-level addressing unit. Its name is the first
// segment of every artifact address.
type Organization struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// NewOrganization creates a new Organization.
func NewOrganization(name string) *Organization {
	return &Organization{
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
}

// Membership links a user to an organization with a role.
type Membership struct {
	UserID         int64     `json:"user_id"`
	OrganizationID int64     `json:"organization_id"`
	Role           Role      `json:"role"`
	CreatedAt      time.Time `json:"created_at"`
}

// ServiceAccount is a non-human identity scoped to one organization.
// Service accounts can read and write every box of their organization.
type ServiceAccount struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"created_at"`

	// ExpiresAt is optional; a nil value never expires.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// IsExpired reports whether the service account has expired.
func (s *ServiceAccount) IsExpired() bool {
	return s.ExpiresAt != nil && time.Now().After(*s.ExpiresAt)
}
