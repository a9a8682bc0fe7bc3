package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prn-tf/boxvault/internal/domain"
	"github.com/prn-tf/boxvault/internal/repository"
)

// =============================================================================
// Versions
// =============================================================================

// versionRepository implements repository.VersionRepository for SQLite.
type versionRepository struct {
	db *DB
}

// NewVersionRepository creates a new SQLite version repository.
func NewVersionRepository(db *DB) repository.VersionRepository {
	return &versionRepository{db: db}
}

// Create creates a new version.
func (r *versionRepository) Create(ctx context.Context, v *domain.Version) error {
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO versions (box_id, version_number, description, created_at)
		VALUES (?, ?, ?, ?)
	`, v.BoxID, v.VersionNumber, v.Description, formatTime(v.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: version %s", domain.ErrAlreadyExists, v.VersionNumber)
		}
		if isForeignKeyViolation(err) {
			return domain.ErrBoxNotFound
		}
		return fmt.Errorf("failed to create version: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	v.ID = id
	return nil
}

// GetByNumber retrieves a version of a box by exact version number.
func (r *versionRepository) GetByNumber(ctx context.Context, boxID int64, number string) (*domain.Version, error) {
	v := &domain.Version{}
	var createdAt string

	err := r.db.QueryRowContext(ctx, `
		SELECT id, box_id, version_number, description, created_at
		FROM versions
		WHERE box_id = ? AND version_number = ?
	`, boxID, number).Scan(&v.ID, &v.BoxID, &v.VersionNumber, &v.Description, &createdAt)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrVersionNotFound
		}
		return nil, fmt.Errorf("failed to get version: %w", err)
	}

	v.CreatedAt = parseTime(createdAt)
	return v, nil
}

// ListByBox returns every version of a box, oldest first.
func (r *versionRepository) ListByBox(ctx context.Context, boxID int64) ([]*domain.Version, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, box_id, version_number, description, created_at
		FROM versions
		WHERE box_id = ?
		ORDER BY id ASC
	`, boxID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var versions []*domain.Version
	for rows.Next() {
		v := &domain.Version{}
		var createdAt string
		if err := rows.Scan(&v.ID, &v.BoxID, &v.VersionNumber, &v.Description, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		v.CreatedAt = parseTime(createdAt)
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

// providerRepository implements repository.ProviderRepository for SQLite.
type providerRepository struct {
	db *DB
}

// NewProviderRepository creates a new SQLite provider repository.
func NewProviderRepository(db *DB) repository.ProviderRepository {
	return &providerRepository{db: db}
}

// Create creates a new provider.
func (r *providerRepository) Create(ctx context.Context, p *domain.Provider) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO providers (version_id, name, description, created_at)
		VALUES (?, ?, ?, ?)
	`, p.VersionID, p.Name, p.Description, formatTime(p.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: provider %s", domain.ErrAlreadyExists, p.Name)
		}
		if isForeignKeyViolation(err) {
			return domain.ErrVersionNotFound
		}
		return fmt.Errorf("failed to create provider: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	p.ID = id
	return nil
}

// GetByName retrieves a provider of a version by exact name.
func (r *providerRepository) GetByName(ctx context.Context, versionID int64, name string) (*domain.Provider, error) {
	p := &domain.Provider{}
	var createdAt string

	err := r.db.QueryRowContext(ctx, `
		SELECT id, version_id, name, description, created_at
		FROM providers
		WHERE version_id = ? AND name = ?
	`, versionID, name).Scan(&p.ID, &p.VersionID, &p.Name, &p.Description, &createdAt)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrProviderNotFound
		}
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}

	p.CreatedAt = parseTime(createdAt)
	return p, nil
}

// ListByVersion returns every provider of a version ordered by name.
func (r *providerRepository) ListByVersion(ctx context.Context, versionID int64) ([]*domain.Provider, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, version_id, name, description, created_at
		FROM providers
		WHERE version_id = ?
		ORDER BY name ASC
	`, versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	defer rows.Close()

	var providers []*domain.Provider
	for rows.Next() {
		p := &domain.Provider{}
		var createdAt string
		if err := rows.Scan(&p.ID, &p.VersionID, &p.Name, &p.Description, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan provider: %w", err)
		}
		p.CreatedAt = parseTime(createdAt)
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

// architectureRepository implements repository.ArchitectureRepository for SQLite.
type architectureRepository struct {
	db *DB
}

// NewArchitectureRepository creates a new SQLite architecture repository.
func NewArchitectureRepository(db *DB) repository.ArchitectureRepository {
	return &architectureRepository{db: db}
}

// Create creates a new architecture.
func (r *architectureRepository) Create(ctx context.Context, a *domain.Architecture) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO architectures (provider_id, name, default_box, created_at)
		VALUES (?, ?, ?, ?)
	`, a.ProviderID, a.Name, nullableBool(a.DefaultBox), formatTime(a.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: architecture %s", domain.ErrAlreadyExists, a.Name)
		}
		if isForeignKeyViolation(err) {
			return domain.ErrProviderNotFound
		}
		return fmt.Errorf("failed to create architecture: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	a.ID = id
	return nil
}

// GetByName retrieves an architecture of a provider by exact name.
func (r *architectureRepository) GetByName(ctx context.Context, providerID int64, name string) (*domain.Architecture, error) {
	a := &domain.Architecture{}
	var defaultBox sql.NullInt64
	var createdAt string

	err := r.db.QueryRowContext(ctx, `
		SELECT id, provider_id, name, default_box, created_at
		FROM architectures
		WHERE provider_id = ? AND name = ?
	`, providerID, name).Scan(&a.ID, &a.ProviderID, &a.Name, &defaultBox, &createdAt)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrArchitectureNotFound
		}
		return nil, fmt.Errorf("failed to get architecture: %w", err)
	}

	a.DefaultBox = boolPtr(defaultBox)
	a.CreatedAt = parseTime(createdAt)
	return a, nil
}

// ListByProvider returns every architecture of a provider ordered by name.
func (r *architectureRepository) ListByProvider(ctx context.Context, providerID int64) ([]*domain.Architecture, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, provider_id, name, default_box, created_at
		FROM architectures
		WHERE provider_id = ?
		ORDER BY name ASC
	`, providerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list architectures: %w", err)
	}
	defer rows.Close()

	var archs []*domain.Architecture
	for rows.Next() {
		a := &domain.Architecture{}
		var defaultBox sql.NullInt64
		var createdAt string
		if err := rows.Scan(&a.ID, &a.ProviderID, &a.Name, &defaultBox, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan architecture: %w", err)
		}
		a.DefaultBox = boolPtr(defaultBox)
		a.CreatedAt = parseTime(createdAt)
		archs = append(archs, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating architectures: %w", err)
	}
	return archs, nil
}

var (
	_ repository.VersionRepository      = (*versionRepository)(nil)
	_ repository.ProviderRepository     = (*providerRepository)(nil)
	_ repository.ArchitectureRepository = (*architectureRepository)(nil)
)
