// Package repository defines data access interfaces for the BoxVault catalog.
// These interfaces abstract database operations, allowing for different implementations
// (PostgreSQL, SQLite, in-memory for testing) while keeping the service layer clean.
//
// Lookups that find nothing return the matching domain sentinel
// (domain.ErrBoxNotFound, domain.ErrFileNotFound, ...).
package repository

import (
	"context"

	"github.com/prn-tf/boxvault/internal/domain"
)

// =============================================================================
// Organization Repository
// =============================================================================

// OrganizationRepository defines the interface for organization data access.
type OrganizationRepository interface {
	// Create creates a new organization.
	Create(ctx context.Context, org *domain.Organization) error

	// GetByName retrieves an organization by exact name.
	GetByName(ctx context.Context, name string) (*domain.Organization, error)
}

// =============================================================================
// Membership Repository
// =============================================================================

// MembershipRepository defines the interface for organization membership data access.
type MembershipRepository interface {
	// Upsert adds a member or changes an existing member's role.
	Upsert(ctx context.Context, m *domain.Membership) error

	// Get retrieves the membership of a user in an organization.
	// Returns repository.ErrNotFound when the user is not a member.
	Get(ctx context.Context, userID, orgID int64) (*domain.Membership, error)
}

// =============================================================================
// Service Account Repository
// =============================================================================

// ServiceAccountRepository defines the interface for service account data access.
type ServiceAccountRepository interface {
	// Create creates a new service account.
	Create(ctx context.Context, sa *domain.ServiceAccount) error

	// GetByID retrieves a service account by ID.
	// Returns repository.ErrNotFound when it does not exist.
	GetByID(ctx context.Context, id int64) (*domain.ServiceAccount, error)
}

// =============================================================================
// Box Repository
// =============================================================================

// BoxRepository defines the interface for box data access.
type BoxRepository interface {
	// Create creates a new box.
	Create(ctx context.Context, box *domain.Box) error

	// GetByName retrieves a box by exact name within an organization.
	GetByName(ctx context.Context, orgID int64, name string) (*domain.Box, error)

	// FindByNameFold retrieves a box by case-insensitive name within an organization.
	FindByNameFold(ctx context.Context, orgID int64, name string) (*domain.Box, error)
}

// =============================================================================
// Version Repository
// =============================================================================

// VersionRepository defines the interface for box version data access.
type VersionRepository interface {
	// Create creates a new version.
	Create(ctx context.Context, v *domain.Version) error

	// GetByNumber retrieves a version of a box by exact version number.
	GetByNumber(ctx context.Context, boxID int64, number string) (*domain.Version, error)

	// ListByBox returns every version of a box, oldest first.
	ListByBox(ctx context.Context, boxID int64) ([]*domain.Version, error)
}

// =============================================================================
// Provider Repository
// =============================================================================

// ProviderRepository defines the interface for provider data access.
type ProviderRepository interface {
	// Create creates a new provider.
	Create(ctx context.Context, p *domain.Provider) error

	// GetByName retrieves a provider of a version by exact name.
	GetByName(ctx context.Context, versionID int64, name string) (*domain.Provider, error)

	// ListByVersion returns every provider of a version ordered by name.
	ListByVersion(ctx context.Context, versionID int64) ([]*domain.Provider, error)
}

// =============================================================================
// Architecture Repository
// =============================================================================

// ArchitectureRepository defines the interface for architecture data access.
type ArchitectureRepository interface {
	// Create creates a new architecture.
	Create(ctx context.Context, a *domain.Architecture) error

	// GetByName retrieves an architecture of a provider by exact name.
	GetByName(ctx context.Context, providerID int64, name string) (*domain.Architecture, error)

	// ListByProvider returns every architecture of a provider ordered by name.
	ListByProvider(ctx context.Context, providerID int64) ([]*domain.Architecture, error)
}

// =============================================================================
// File Repository
// =============================================================================

// FileRepository defines the interface for artifact file data access.
type FileRepository interface {
	// GetByArchitecture retrieves the file of an architecture slot.
	GetByArchitecture(ctx context.Context, archID int64) (*domain.File, error)

	// Upsert creates the slot's file row or updates it in place.
	// The row keeps its ID and download count across updates.
	Upsert(ctx context.Context, f *domain.File) error

	// MoveToArchitecture re-parents an existing file row onto another slot.
	// Returns domain.ErrConflict when the target slot already has a file.
	MoveToArchitecture(ctx context.Context, fileID, archID int64) error

	// DeleteByArchitecture removes the slot's file row.
	// Returns false without error when no row existed.
	DeleteByArchitecture(ctx context.Context, archID int64) (bool, error)

	// IncrementDownloadCount atomically adds one to the slot's download count.
	IncrementDownloadCount(ctx context.Context, archID int64) error
}
