package repository

import (
	"context"
)

// Repositories holds all repository instances.
type Repositories struct {
	Organization   OrganizationRepository
	Membership     MembershipRepository
	ServiceAccount ServiceAccountRepository
	Box            BoxRepository
	Version        VersionRepository
	Provider       ProviderRepository
	Architecture   ArchitectureRepository
	File           FileRepository
}

// DatabaseHealth is an interface for database health checks.
// This interface satisfies handler.HealthChecker for the health endpoint.
type DatabaseHealth interface {
	Ping(ctx context.Context) error
	Health(ctx context.Context) error
	Close() error
}
