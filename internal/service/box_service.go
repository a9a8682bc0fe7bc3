package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/prn-tf/boxvault/internal/auth"
	"github.com/prn-tf/boxvault/internal/domain"
	"github.com/prn-tf/boxvault/internal/repository"
)

// BoxService loads box hierarchies for metadata and box lookups.
type BoxService struct {
	resolver   *Resolver
	authorizer *Authorizer
	repos      repository.Repositories
	logger     zerolog.Logger
}

// NewBoxService creates a new BoxService.
func NewBoxService(resolver *Resolver, authorizer *Authorizer, repos repository.Repositories, logger zerolog.Logger) *BoxService {
	return &BoxService{
		resolver:   resolver,
		authorizer: authorizer,
		repos:      repos,
		logger:     logger.With().Str("service", "box").Logger(),
	}
}

// Tree resolves a box and loads every version, provider, architecture and
// file under it. fold allows a case-insensitive box match.
func (s *BoxService) Tree(ctx context.Context, orgName, boxName string, fold bool, id auth.Identity) (*domain.BoxTree, error) {
	org, box, err := s.resolver.ResolveBox(ctx, orgName, boxName, fold)
	if err != nil {
		return nil, err
	}
	if err := s.authorizer.RequireRead(ctx, id, org, box); err != nil {
		return nil, err
	}

	versions, err := s.repos.Version.ListByBox(ctx, box.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}

	tree := &domain.BoxTree{
		Organization: org,
		Box:          box,
		Versions:     make([]domain.VersionTree, 0, len(versions)),
	}

	for _, v := range versions {
		providers, err := s.repos.Provider.ListByVersion(ctx, v.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list providers: %w", err)
		}

		vt := domain.VersionTree{Version: v, Providers: make([]domain.ProviderTree, 0, len(providers))}
		for _, p := range providers {
			archs, err := s.repos.Architecture.ListByProvider(ctx, p.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to list architectures: %w", err)
			}

			pt := domain.ProviderTree{Provider: p, Architectures: make([]domain.ArchitectureTree, 0, len(archs))}
			for _, a := range archs {
				f, err := s.currentFile(ctx, a.ID)
				if err != nil {
					return nil, err
				}
				pt.Architectures = append(pt.Architectures, domain.ArchitectureTree{Architecture: a, File: f})
			}
			vt.Providers = append(vt.Providers, pt)
		}
		tree.Versions = append(tree.Versions, vt)
	}

	return tree, nil
}

func (s *BoxService) currentFile(ctx context.Context, archID int64) (*domain.File, error) {
	f, err := s.repos.File.GetByArchitecture(ctx, archID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load file: %w", err)
	}
	return f, nil
}
