package domain

import (
	"regexp"
	"strings"
	"time"
)

// boxNameRegex matches box names: letters, digits, periods and hyphens.
var boxNameRegex = regexp.MustCompile(`^[A-Za-z0-9.-]+$`)

// segmentRegex matches version numbers, provider and architecture names.
// They must not start with a period or a hyphen.
var segmentRegex = regexp.MustCompile(`^[0-9A-Za-z_][0-9A-Za-z._-]*$`)

// Box is a named, versioned artifact collection within an organization.
type Box struct {
	ID             int64  `json:"id"`
	OrganizationID int64  `json:"organization_id"`
	Name           string `json:"name"`
	Description    string `json:"description"`

	// IsPublic allows anonymous reads of every artifact in the box.
	IsPublic bool `json:"is_public"`

	// UserID is the owning identity.
	UserID int64 `json:"user_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewBox creates a new private Box.
func NewBox(orgID, userID int64, name string) *Box {
	now := time.Now().UTC()
	return &Box{
		OrganizationID: orgID,
		UserID:         userID,
		Name:           name,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Version is a version of a Box. VersionNumber is unique per box.
type Version struct {
	ID            int64     `json:"id"`
	BoxID         int64     `json:"box_id"`
	VersionNumber string    `json:"version_number"`
	Description   string    `json:"description"`
	CreatedAt     time.Time `json:"created_at"`
}

// Provider is a virtualization provider (virtualbox, libvirt, ...) of a Version.
type Provider struct {
	ID          int64     `json:"id"`
	VersionID   int64     `json:"version_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Architecture is the leaf addressing unit. It holds at most one File.
type Architecture struct {
	ID         int64  `json:"id"`
	ProviderID int64  `json:"provider_id"`
	Name       string `json:"name"`

	// DefaultBox is nullable in the catalog; nil is treated as true.
	DefaultBox *bool `json:"default_box,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// IsDefault returns the default-architecture flag, defaulting to true.
func (a *Architecture) IsDefault() bool {
	if a.DefaultBox == nil {
		return true
	}
	return *a.DefaultBox
}

// ValidateBoxName checks a box name against the allowed character set.
func ValidateBoxName(name string) error {
	if name == "" || !boxNameRegex.MatchString(name) {
		return NewDomainError(ErrInvalidName, "box name must contain only letters, numbers, periods and hyphens", name)
	}
	return nil
}

// ValidateSegment checks a version number, provider or architecture name.
func ValidateSegment(kind, name string) error {
	if name == "" || !segmentRegex.MatchString(name) {
		return NewDomainError(ErrInvalidName, kind+" must contain only letters, numbers, periods, underscores and hyphens and must not start with a period or hyphen", name)
	}
	return nil
}

// StripVersionPrefix removes exactly one leading "v" from a version string.
func StripVersionPrefix(version string) string {
	return strings.TrimPrefix(version, "v")
}
