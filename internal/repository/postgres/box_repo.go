package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/prn-tf/boxvault/internal/domain"
	"github.com/prn-tf/boxvault/internal/repository"
)

// =============================================================================
// Boxes
// =============================================================================

// boxRepository implements repository.BoxRepository.
type boxRepository struct {
	db *DB
}

// NewBoxRepository creates a new PostgreSQL box repository.
func NewBoxRepository(db *DB) repository.BoxRepository {
	return &boxRepository{db: db}
}

const boxColumns = `id, organization_id, name, description, is_public, user_id, created_at, updated_at`

// Create creates a new box.
func (r *boxRepository) Create(ctx context.Context, box *domain.Box) error {
	now := time.Now().UTC()
	if box.CreatedAt.IsZero() {
		box.CreatedAt = now
	}
	if box.UpdatedAt.IsZero() {
		box.UpdatedAt = now
	}

	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO boxes (organization_id, name, description, is_public, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`,
		box.OrganizationID,
		box.Name,
		box.Description,
		box.IsPublic,
		box.UserID,
		box.CreatedAt,
		box.UpdatedAt,
	).Scan(&box.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: box %s", domain.ErrAlreadyExists, box.Name)
		}
		if isForeignKeyViolation(err) {
			return domain.ErrOrganizationNotFound
		}
		return fmt.Errorf("failed to create box: %w", err)
	}
	return nil
}

// GetByName retrieves a box by exact name within an organization.
func (r *boxRepository) GetByName(ctx context.Context, orgID int64, name string) (*domain.Box, error) {
	row := r.db.Pool.QueryRow(ctx,
		`SELECT `+boxColumns+` FROM boxes WHERE organization_id = $1 AND name = $2`, orgID, name)
	return scanBox(row)
}

// FindByNameFold retrieves a box by case-insensitive name within an organization.
// An exact match wins over a folded one.
func (r *boxRepository) FindByNameFold(ctx context.Context, orgID int64, name string) (*domain.Box, error) {
	row := r.db.Pool.QueryRow(ctx, `
		SELECT `+boxColumns+` FROM boxes
		WHERE organization_id = $1 AND lower(name) = lower($2)
		ORDER BY (name = $2) DESC, id
		LIMIT 1
	`, orgID, name)
	return scanBox(row)
}

func scanBox(row pgx.Row) (*domain.Box, error) {
	box := &domain.Box{}
	err := row.Scan(
		&box.ID,
		&box.OrganizationID,
		&box.Name,
		&box.Description,
		&box.IsPublic,
		&box.UserID,
		&box.CreatedAt,
		&box.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrBoxNotFound
		}
		return nil, fmt.Errorf("failed to get box: %w", err)
	}
	return box, nil
}

// =============================================================================
// Versions
// =============================================================================

// versionRepository implements repository.VersionRepository.
type versionRepository struct {
	db *DB
}

// NewVersionRepository creates a new PostgreSQL version repository.
func NewVersionRepository(db *DB) repository.VersionRepository {
	return &versionRepository{db: db}
}

// Create creates a new version.
func (r *versionRepository) Create(ctx context.Context, v *domain.Version) error {
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}

	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO versions (box_id, version_number, description, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, v.BoxID, v.VersionNumber, v.Description, v.CreatedAt).Scan(&v.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: version %s", domain.ErrAlreadyExists, v.VersionNumber)
		}
		if isForeignKeyViolation(err) {
			return domain.ErrBoxNotFound
		}
		return fmt.Errorf("failed to create version: %w", err)
	}
	return nil
}

// GetByNumber retrieves a version of a box by exact version number.
func (r *versionRepository) GetByNumber(ctx context.Context, boxID int64, number string) (*domain.Version, error) {
	v := &domain.Version{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, box_id, version_number, description, created_at
		FROM versions
		WHERE box_id = $1 AND version_number = $2
	`, boxID, number).Scan(&v.ID, &v.BoxID, &v.VersionNumber, &v.Description, &v.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrVersionNotFound
		}
		return nil, fmt.Errorf("failed to get version: %w", err)
	}
	return v, nil
}

// ListByBox returns every version of a box, oldest first.
func (r *versionRepository) ListByBox(ctx context.Context, boxID int64) ([]*domain.Version, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, box_id, version_number, description, created_at
		FROM versions
		WHERE box_id = $1
		ORDER BY id ASC
	`, boxID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var versions []*domain.Version
	for rows.Next() {
		v := &domain.Version{}
		if err := rows.Scan(&v.ID, &v.BoxID, &v.VersionNumber, &v.Description, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating versions: %w", err)
	}
	return versions, nil
}

// =============================================================================
// Providers
// =============================================================================

// providerRepository implements repository.ProviderRepository.
type providerRepository struct {
	db *DB
}

// NewProviderRepository creates a new PostgreSQL provider repository.
func NewProviderRepository(db *DB) repository.ProviderRepository {
	return &providerRepository{db: db}
}

// Create creates a new provider.
func (r *providerRepository) Create(ctx context.Context, p *domain.Provider) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO providers (version_id, name, description, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, p.VersionID, p.Name, p.Description, p.CreatedAt).Scan(&p.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: provider %s", domain.ErrAlreadyExists, p.Name)
		}
		if isForeignKeyViolation(err) {
			return domain.ErrVersionNotFound
		}
		return fmt.Errorf("failed to create provider: %w", err)
	}
	return nil
}

// GetByName retrieves a provider of a version by exact name.
func (r *providerRepository) GetByName(ctx context.Context, versionID int64, name string) (*domain.Provider, error) {
	p := &domain.Provider{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, version_id, name, description, created_at
		FROM providers
		WHERE version_id = $1 AND name = $2
	`, versionID, name).Scan(&p.ID, &p.VersionID, &p.Name, &p.Description, &p.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrProviderNotFound
		}
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}
	return p, nil
}

// ListByVersion returns every provider of a version ordered by name.
func (r *providerRepository) ListByVersion(ctx context.Context, versionID int64) ([]*domain.Provider, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, version_id, name, description, created_at
		FROM providers
		WHERE version_id = $1
		ORDER BY name ASC
	`, versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	defer rows.Close()

	var providers []*domain.Provider
	for rows.Next() {
		p := &domain.Provider{}
		if err := rows.Scan(&p.ID, &p.VersionID, &p.Name, &p.Description, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan provider: %w", err)
		}
		providers = append(providers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating providers: %w", err)
	}
	return providers, nil
}

// =============================================================================
// Architectures
// =============================================================================

// architectureRepository implements repository.ArchitectureRepository.
type architectureRepository struct {
	db *DB
}

// NewArchitectureRepository creates a new PostgreSQL architecture repository.
func NewArchitectureRepository(db *DB) repository.ArchitectureRepository {
	return &architectureRepository{db: db}
}

// Create creates a new architecture.
func (r *architectureRepository) Create(ctx context.Context, a *domain.Architecture) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO architectures (provider_id, name, default_box, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, a.ProviderID, a.Name, a.DefaultBox, a.CreatedAt).Scan(&a.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: architecture %s", domain.ErrAlreadyExists, a.Name)
		}
		if isForeignKeyViolation(err) {
			return domain.ErrProviderNotFound
		}
		return fmt.Errorf("failed to create architecture: %w", err)
	}
	return nil
}

// GetByName retrieves an architecture of a provider by exact name.
func (r *architectureRepository) GetByName(ctx context.Context, providerID int64, name string) (*domain.Architecture, error) {
	a := &domain.Architecture{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, provider_id, name, default_box, created_at
		FROM architectures
		WHERE provider_id = $1 AND name = $2
	`, providerID, name).Scan(&a.ID, &a.ProviderID, &a.Name, &a.DefaultBox, &a.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrArchitectureNotFound
		}
		return nil, fmt.Errorf("failed to get architecture: %w", err)
	}
	return a, nil
}

// ListByProvider returns every architecture of a provider ordered by name.
func (r *architectureRepository) ListByProvider(ctx context.Context, providerID int64) ([]*domain.Architecture, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, provider_id, name, default_box, created_at
		FROM architectures
		WHERE provider_id = $1
		ORDER BY name ASC
	`, providerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list architectures: %w", err)
	}
	defer rows.Close()

	var archs []*domain.Architecture
	for rows.Next() {
		a := &domain.Architecture{}
		if err := rows.Scan(&a.ID, &a.ProviderID, &a.Name, &a.DefaultBox, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan architecture: %w", err)
		}
		archs = append(archs, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating architectures: %w", err)
	}
	return archs, nil
}

var (
	_ repository.BoxRepository          = (*boxRepository)(nil)
	_ repository.VersionRepository      = (*versionRepository)(nil)
	_ repository.ProviderRepository     = (*providerRepository)(nil)
	_ repository.ArchitectureRepository = (*architectureRepository)(nil)
)
