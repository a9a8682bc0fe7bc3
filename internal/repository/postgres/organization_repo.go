package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/prn-tf/boxvault/internal/domain"
	"github.com/prn-tf/boxvault/internal/repository"
)

// organizationRepository implements repository.OrganizationRepository.
type organizationRepository struct {
	db *DB
}

// NewOrganizationRepository creates a new PostgreSQL organization repository.
func NewOrganizationRepository(db *DB) repository.OrganizationRepository {
	return &organizationRepository{db: db}
}

// Create creates a new organization.
func (r *organizationRepository) Create(ctx context.Context, org *domain.Organization) error {
	if org.CreatedAt.IsZero() {
		org.CreatedAt = time.Now().UTC()
	}

	err := r.db.Pool.QueryRow(ctx,
		`INSERT INTO organizations (name, created_at) VALUES ($1, $2) RETURNING id`,
		org.Name, org.CreatedAt,
	).Scan(&org.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: organization %s", domain.ErrAlreadyExists, org.Name)
		}
		return fmt.Errorf("failed to create organization: %w", err)
	}
	return nil
}

// GetByName retrieves an organization by exact name.
func (r *organizationRepository) GetByName(ctx context.Context, name string) (*domain.Organization, error) {
	org := &domain.Organization{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM organizations WHERE name = $1`, name,
	).Scan(&org.ID, &org.Name, &org.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to get organization by name: %w", err)
	}
	return org, nil
}

// membershipRepository implements repository.MembershipRepository.
type membershipRepository struct {
	db *DB
}

// NewMembershipRepository creates a new PostgreSQL membership repository.
func NewMembershipRepository(db *DB) repository.MembershipRepository {
	return &membershipRepository{db: db}
}

// Upsert adds a member or changes an existing member's role.
func (r *membershipRepository) Upsert(ctx context.Context, m *domain.Membership) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO memberships (user_id, organization_id, role, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, organization_id) DO UPDATE SET role = EXCLUDED.role
	`, m.UserID, m.OrganizationID, string(m.Role), m.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrOrganizationNotFound
		}
		return fmt.Errorf("failed to upsert membership: %w", err)
	}
	return nil
}

// Get retrieves the membership of a user in an organization.
func (r *membershipRepository) Get(ctx context.Context, userID, orgID int64) (*domain.Membership, error) {
	m := &domain.Membership{}
	var role string

	err := r.db.Pool.QueryRow(ctx, `
		SELECT user_id, organization_id, role, created_at
		FROM memberships
		WHERE user_id = $1 AND organization_id = $2
	`, userID, orgID).Scan(&m.UserID, &m.OrganizationID, &role, &m.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}

	m.Role = domain.Role(role)
	return m, nil
}

// serviceAccountRepository implements repository.ServiceAccountRepository.
type serviceAccountRepository struct {
	db *DB
}

// NewServiceAccountRepository creates a new PostgreSQL service account repository.
func NewServiceAccountRepository(db *DB) repository.ServiceAccountRepository {
	return &serviceAccountRepository{db: db}
}

// Create creates a new service account.
func (r *serviceAccountRepository) Create(ctx context.Context, sa *domain.ServiceAccount) error {
	if sa.CreatedAt.IsZero() {
		sa.CreatedAt = time.Now().UTC()
	}

	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO service_accounts (organization_id, name, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, sa.OrganizationID, sa.Name, sa.CreatedAt, sa.ExpiresAt).Scan(&sa.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrOrganizationNotFound
		}
		return fmt.Errorf("failed to create service account: %w", err)
	}
	return nil
}

// GetByID retrieves a service account by ID.
func (r *serviceAccountRepository) GetByID(ctx context.Context, id int64) (*domain.ServiceAccount, error) {
	sa := &domain.ServiceAccount{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, organization_id, name, created_at, expires_at
		FROM service_accounts
		WHERE id = $1
	`, id).Scan(&sa.ID, &sa.OrganizationID, &sa.Name, &sa.CreatedAt, &sa.ExpiresAt)
	if err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get service account: %w", err)
	}
	return sa, nil
}

var (
	_ repository.OrganizationRepository   = (*organizationRepository)(nil)
	_ repository.MembershipRepository     = (*membershipRepository)(nil)
	_ repository.ServiceAccountRepository = (*serviceAccountRepository)(nil)
)
