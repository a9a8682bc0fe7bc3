package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/boxvault/internal/domain"
	"github.com/prn-tf/boxvault/internal/repository"
)

// CatalogService creates catalog entries for administration.
// Uploads never create hierarchy; operators add it here first.
type CatalogService struct {
	repos  repository.Repositories
	logger zerolog.Logger
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(repos repository.Repositories, logger zerolog.Logger) *CatalogService {
	return &CatalogService{
		repos:  repos,
		logger: logger.With().Str("service", "catalog").Logger(),
	}
}

// EnsureChainInput describes an architecture slot to create.
type EnsureChainInput struct {
	Address     domain.Address
	OwnerID     int64
	Public      bool
	Description string

	// DefaultArchitecture is stored only when set.
	DefaultArchitecture *bool
}

// EnsureChain creates every missing level of an address and returns the bound chain.
// Existing levels are left unchanged.
func (s *CatalogService) EnsureChain(ctx context.Context, in EnsureChainInput) (*domain.Bound, error) {
	addr := in.Address
	if err := addr.Validate(); err != nil {
		return nil, err
	}

	org, err := s.repos.Organization.GetByName(ctx, addr.Organization)
	if errors.Is(err, domain.ErrOrganizationNotFound) {
		org = domain.NewOrganization(addr.Organization)
		err = s.repos.Organization.Create(ctx, org)
	}
	if err != nil {
		return nil, fmt.Errorf("organization %s: %w", addr.Organization, err)
	}

	box, err := s.repos.Box.GetByName(ctx, org.ID, addr.Box)
	if errors.Is(err, domain.ErrBoxNotFound) {
		box = domain.NewBox(org.ID, in.OwnerID, addr.Box)
		box.IsPublic = in.Public
		box.Description = in.Description
		err = s.repos.Box.Create(ctx, box)
	}
	if err != nil {
		return nil, fmt.Errorf("box %s: %w", addr.Box, err)
	}

	now := time.Now().UTC()
	version, err := s.repos.Version.GetByNumber(ctx, box.ID, addr.Version)
	if errors.Is(err, domain.ErrVersionNotFound) {
		version = &domain.Version{BoxID: box.ID, VersionNumber: addr.Version, CreatedAt: now}
		err = s.repos.Version.Create(ctx, version)
	}
	if err != nil {
		return nil, fmt.Errorf("version %s: %w", addr.Version, err)
	}

	provider, err := s.repos.Provider.GetByName(ctx, version.ID, addr.Provider)
	if errors.Is(err, domain.ErrProviderNotFound) {
		provider = &domain.Provider{VersionID: version.ID, Name: addr.Provider, CreatedAt: now}
		err = s.repos.Provider.Create(ctx, provider)
	}
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", addr.Provider, err)
	}

	arch, err := s.repos.Architecture.GetByName(ctx, provider.ID, addr.Architecture)
	if errors.Is(err, domain.ErrArchitectureNotFound) {
		arch = &domain.Architecture{ProviderID: provider.ID, Name: addr.Architecture, DefaultBox: in.DefaultArchitecture, CreatedAt: now}
		err = s.repos.Architecture.Create(ctx, arch)
	}
	if err != nil {
		return nil, fmt.Errorf("architecture %s: %w", addr.Architecture, err)
	}

	s.logger.Info().Str("address", addr.String()).Msg("catalog chain ensured")

	return &domain.Bound{
		Address:      addr,
		Organization: org,
		Box:          box,
		Version:      version,
		Provider:     provider,
		Architecture: arch,
	}, nil
}

// AddMember grants a user a role in an organization.
func (s *CatalogService) AddMember(ctx context.Context, orgName string, userID int64, role domain.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", domain.ErrInvalidRequest, role)
	}
	org, err := s.repos.Organization.GetByName(ctx, orgName)
	if err != nil {
		return err
	}
	return s.repos.Membership.Upsert(ctx, &domain.Membership{
		UserID:         userID,
		OrganizationID: org.ID,
		Role:           role,
		CreatedAt:      time.Now().UTC(),
	})
}

// CreateServiceAccount creates a service account for an organization.
func (s *CatalogService) CreateServiceAccount(ctx context.Context, orgName, name string, ttl time.Duration) (*domain.ServiceAccount, error) {
	org, err := s.repos.Organization.GetByName(ctx, orgName)
	if err != nil {
		return nil, err
	}
	sa := &domain.ServiceAccount{
		OrganizationID: org.ID,
		Name:           name,
		CreatedAt:      time.Now().UTC(),
	}
	if ttl > 0 {
		exp := sa.CreatedAt.Add(ttl)
		sa.ExpiresAt = &exp
	}
	if err := s.repos.ServiceAccount.Create(ctx, sa); err != nil {
		return nil, err
	}
	return sa, nil
}
