package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/boxvault/internal/domain"
	"github.com/prn-tf/boxvault/internal/repository"
)

// ResolveOptions relaxes the exact-name chain lookup.
type ResolveOptions struct {
	// FoldBoxName retries a missed box lookup case-insensitively.
	FoldBoxName bool

	// VersionPrefixFallback retries a missed version lookup with a leading "v".
	VersionPrefixFallback bool
}

// ProtocolResolve is used for distribution client routes, whose box names and
// version numbers may differ in case or "v" prefix from the catalog.
var ProtocolResolve = ResolveOptions{FoldBoxName: true, VersionPrefixFallback: true}

// Resolver resolves caller-supplied addresses into catalog rows.
type Resolver struct {
	repos    repository.Repositories
	cache    repository.Cache
	cacheTTL time.Duration
	logger   zerolog.Logger
}

// NewResolver creates a Resolver. A nil cache disables organization caching.
func NewResolver(repos repository.Repositories, cache repository.Cache, cacheTTL time.Duration, logger zerolog.Logger) *Resolver {
	return &Resolver{
		repos:    repos,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger.With().Str("service", "resolver").Logger(),
	}
}

// Resolve walks organization, box, version, provider and architecture in
// order. The first missing level fails with a *domain.NotFoundError naming it.
// The returned Address carries the canonical stored names; File is nil when
// the slot is empty.
func (r *Resolver) Resolve(ctx context.Context, addr domain.Address, opts ResolveOptions) (*domain.Bound, error) {
	org, box, err := r.ResolveBox(ctx, addr.Organization, addr.Box, opts.FoldBoxName)
	if err != nil {
		return nil, err
	}

	version, err := r.repos.Version.GetByNumber(ctx, box.ID, addr.Version)
	if errors.Is(err, domain.ErrVersionNotFound) && opts.VersionPrefixFallback && addr.Version != "" && addr.Version[0] != 'v' {
		version, err = r.repos.Version.GetByNumber(ctx, box.ID, "v"+addr.Version)
	}
	if err != nil {
		return nil, notFoundOr(err, domain.ErrVersionNotFound, domain.LevelVersion, addr.Version)
	}

	provider, err := r.repos.Provider.GetByName(ctx, version.ID, addr.Provider)
	if err != nil {
		return nil, notFoundOr(err, domain.ErrProviderNotFound, domain.LevelProvider, addr.Provider)
	}

	arch, err := r.repos.Architecture.GetByName(ctx, provider.ID, addr.Architecture)
	if err != nil {
		return nil, notFoundOr(err, domain.ErrArchitectureNotFound, domain.LevelArchitecture, addr.Architecture)
	}

	bound := &domain.Bound{
		Address: domain.Address{
			Organization: org.Name,
			Box:          box.Name,
			Version:      version.VersionNumber,
			Provider:     provider.Name,
			Architecture: arch.Name,
		},
		Organization: org,
		Box:          box,
		Version:      version,
		Provider:     provider,
		Architecture: arch,
	}

	file, err := r.repos.File.GetByArchitecture(ctx, arch.ID)
	switch {
	case err == nil:
		bound.File = file
	case errors.Is(err, domain.ErrFileNotFound):
	default:
		return nil, fmt.Errorf("failed to load file: %w", err)
	}

	return bound, nil
}

// ResolveBox resolves an organization and one of its boxes.
func (r *Resolver) ResolveBox(ctx context.Context, orgName, boxName string, fold bool) (*domain.Organization, *domain.Box, error) {
	org, err := r.ResolveOrganization(ctx, orgName)
	if err != nil {
		return nil, nil, err
	}

	box, err := r.repos.Box.GetByName(ctx, org.ID, boxName)
	if errors.Is(err, domain.ErrBoxNotFound) && fold {
		box, err = r.repos.Box.FindByNameFold(ctx, org.ID, boxName)
	}
	if err != nil {
		return nil, nil, notFoundOr(err, domain.ErrBoxNotFound, domain.LevelBox, boxName)
	}
	return org, box, nil
}

// ResolveOrganization looks up an organization by exact name, consulting the cache first.
func (r *Resolver) ResolveOrganization(ctx context.Context, name string) (*domain.Organization, error) {
	key := repository.CacheKey{}.Organization(name)

	if r.cache != nil {
		if data, err := r.cache.Get(ctx, key); err == nil {
			var org domain.Organization
			if jsonErr := json.Unmarshal(data, &org); jsonErr == nil {
				return &org, nil
			}
		} else if !errors.Is(err, repository.ErrCacheMiss) {
			r.logger.Debug().Err(err).Str("organization", name).Msg("organization cache read failed")
		}
	}

	org, err := r.repos.Organization.GetByName(ctx, name)
	if err != nil {
		return nil, notFoundOr(err, domain.ErrOrganizationNotFound, domain.LevelOrganization, name)
	}

	if r.cache != nil {
		if data, err := json.Marshal(org); err == nil {
			if err := r.cache.Set(ctx, key, data, r.cacheTTL); err != nil {
				r.logger.Debug().Err(err).Str("organization", name).Msg("organization cache write failed")
			}
		}
	}
	return org, nil
}

// notFoundOr converts a level sentinel into a *domain.NotFoundError and wraps anything else.
func notFoundOr(err, sentinel error, level domain.Level, name string) error {
	if errors.Is(err, sentinel) {
		return domain.NewNotFoundError(level, name)
	}
	return fmt.Errorf("failed to resolve %s %q: %w", level, name, err)
}
