package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prn-tf/boxvault/internal/domain"
	"github.com/prn-tf/boxvault/internal/repository"
)

// organizationRepository implements repository.OrganizationRepository for SQLite.
type organizationRepository struct {
	db *DB
}

// NewOrganizationRepository creates a new SQLite organization repository.
func NewOrganizationRepository(db *DB) repository.OrganizationRepository {
	return &organizationRepository{db: db}
}

// Create creates a new organization.
func (r *organizationRepository) Create(ctx context.Context, org *domain.Organization) error {
	if org.CreatedAt.IsZero() {
		org.CreatedAt = time.Now().UTC()
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO organizations (name, created_at) VALUES (?, ?)`,
		org.Name, formatTime(org.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: organization %s", domain.ErrAlreadyExists, org.Name)
		}
		return fmt.Errorf("failed to create organization: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	org.ID = id
	return nil
}

// GetByName retrieves an organization by exact name.
func (r *organizationRepository) GetByName(ctx context.Context, name string) (*domain.Organization, error) {
	org := &domain.Organization{}
	var createdAt string

	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM organizations WHERE name = ?`, name,
	).Scan(&org.ID, &org.Name, &createdAt)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to get organization by name: %w", err)
	}

	org.CreatedAt = parseTime(createdAt)
	return org, nil
}

// membershipRepository implements repository.MembershipRepository for SQLite.
type membershipRepository struct {
	db *DB
}

// NewMembershipRepository creates a new SQLite membership repository.
func NewMembershipRepository(db *DB) repository.MembershipRepository {
	return &membershipRepository{db: db}
}

// Upsert adds a member or changes an existing member's role.
func (r *membershipRepository) Upsert(ctx context.Context, m *domain.Membership) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO memberships (user_id, organization_id, role, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, organization_id) DO UPDATE SET role = excluded.role
	`, m.UserID, m.OrganizationID, string(m.Role), formatTime(m.CreatedAt))
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
	var role, createdAt string

	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, organization_id, role, created_at
		FROM memberships
		WHERE user_id = ? AND organization_id = ?
	`, userID, orgID).Scan(&m.UserID, &m.OrganizationID, &role, &createdAt)
	if err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}

	m.Role = domain.Role(role)
	m.CreatedAt = parseTime(createdAt)
	return m, nil
}

// serviceAccountRepository implements repository.ServiceAccountRepository for SQLite.
type serviceAccountRepository struct {
	db *DB
}

// NewServiceAccountRepository creates a new SQLite service account repository.
func NewServiceAccountRepository(db *DB) repository.ServiceAccountRepository {
	return &serviceAccountRepository{db: db}
}

// Create creates a new service account.
func (r *serviceAccountRepository) Create(ctx context.Context, sa *domain.ServiceAccount) error {
	if sa.CreatedAt.IsZero() {
		sa.CreatedAt = time.Now().UTC()
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO service_accounts (organization_id, name, created_at, expires_at)
		VALUES (?, ?, ?, ?)
	`, sa.OrganizationID, sa.Name, formatTime(sa.CreatedAt), nullableTime(sa.ExpiresAt))
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrOrganizationNotFound
		}
		return fmt.Errorf("failed to create service account: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	sa.ID = id
	return nil
}

// GetByID retrieves a service account by ID.
func (r *serviceAccountRepository) GetByID(ctx context.Context, id int64) (*domain.ServiceAccount, error) {
	sa := &domain.ServiceAccount{}
	var createdAt string
	var expiresAt sql.NullString

	err := r.db.QueryRowContext(ctx, `
		SELECT id, organization_id, name, created_at, expires_at
		FROM service_accounts
		WHERE id = ?
	`, id).Scan(&sa.ID, &sa.OrganizationID, &sa.Name, &createdAt, &expiresAt)
	if err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get service account: %w", err)
	}

	sa.CreatedAt = parseTime(createdAt)
	sa.ExpiresAt = timePtr(expiresAt)
	return sa, nil
}

var (
	_ repository.OrganizationRepository   = (*organizationRepository)(nil)
	_ repository.MembershipRepository     = (*membershipRepository)(nil)
	_ repository.ServiceAccountRepository = (*serviceAccountRepository)(nil)
)
