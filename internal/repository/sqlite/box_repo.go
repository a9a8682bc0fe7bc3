package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/prn-tf/boxvault/internal/domain"
	"github.com/prn-tf/boxvault/internal/repository"
)

// boxRepository implements repository.BoxRepository for SQLite.
type boxRepository struct {
	db *DB
}

// NewBoxRepository creates a new SQLite box repository.
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

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO boxes (organization_id, name, description, is_public, user_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		box.OrganizationID,
		box.Name,
		box.Description,
		boolToInt(box.IsPublic),
		box.UserID,
		formatTime(box.CreatedAt),
		formatTime(box.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: box %s", domain.ErrAlreadyExists, box.Name)
		}
		if isForeignKeyViolation(err) {
			return domain.ErrOrganizationNotFound
		}
		return fmt.Errorf("failed to create box: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	box.ID = id
	return nil
}

// GetByName retrieves a box by exact name within an organization.
func (r *boxRepository) GetByName(ctx context.Context, orgID int64, name string) (*domain.Box, error) {
	return r.getOne(ctx, `SELECT `+boxColumns+` FROM boxes WHERE organization_id = ? AND name = ?`, orgID, name)
}

// FindByNameFold retrieves a box by case-insensitive name within an organization.
// An exact match wins over a folded one.
func (r *boxRepository) FindByNameFold(ctx context.Context, orgID int64, name string) (*domain.Box, error) {
	return r.getOne(ctx, `
		SELECT `+boxColumns+` FROM boxes
		WHERE organization_id = ? AND name = ? COLLATE NOCASE
		ORDER BY CASE WHEN name = ? THEN 0 ELSE 1 END, id
		LIMIT 1
	`, orgID, name, name)
}

func (r *boxRepository) getOne(ctx context.Context, query string, args ...interface{}) (*domain.Box, error) {
	box := &domain.Box{}
	var isPublic int
	var createdAt, updatedAt string

	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&box.ID,
		&box.OrganizationID,
		&box.Name,
		&box.Description,
		&isPublic,
		&box.UserID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrBoxNotFound
		}
		return nil, fmt.Errorf("failed to get box: %w", err)
	}

	box.IsPublic = isPublic != 0
	box.CreatedAt = parseTime(createdAt)
	box.UpdatedAt = parseTime(updatedAt)
	return box, nil
}

var _ repository.BoxRepository = (*boxRepository)(nil)
