package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/prn-tf/boxvault/internal/domain"
	"github.com/prn-tf/boxvault/internal/repository"
)

// fileRepository implements repository.FileRepository.
type fileRepository struct {
	db *DB
}

// NewFileRepository creates a new PostgreSQL file repository.
func NewFileRepository(db *DB) repository.FileRepository {
	return &fileRepository{db: db}
}

// GetByArchitecture retrieves the file of an architecture slot.
func (r *fileRepository) GetByArchitecture(ctx context.Context, archID int64) (*domain.File, error) {
	f := &domain.File{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, architecture_id, file_name, checksum, checksum_type,
		       file_size, download_count, created_at, updated_at
		FROM files
		WHERE architecture_id = $1
	`, archID).Scan(
		&f.ID,
		&f.ArchitectureID,
		&f.FileName,
		&f.Checksum,
		&f.ChecksumType,
		&f.FileSize,
		&f.DownloadCount,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return f, nil
}

// Upsert creates the slot's file row or updates it in place.
func (r *fileRepository) Upsert(ctx context.Context, f *domain.File) error {
	now := time.Now().UTC()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	f.UpdatedAt = now

	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO files (architecture_id, file_name, checksum, checksum_type, file_size, download_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7)
		ON CONFLICT (architecture_id) DO UPDATE SET
			file_name     = EXCLUDED.file_name,
			checksum      = EXCLUDED.checksum,
			checksum_type = EXCLUDED.checksum_type,
			file_size     = EXCLUDED.file_size,
			updated_at    = EXCLUDED.updated_at
		RETURNING id, download_count, created_at
	`,
		f.ArchitectureID,
		f.FileName,
		f.Checksum,
		f.ChecksumType,
		f.FileSize,
		f.CreatedAt,
		f.UpdatedAt,
	).Scan(&f.ID, &f.DownloadCount, &f.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrArchitectureNotFound
		}
		return fmt.Errorf("failed to upsert file: %w", err)
	}
	return nil
}

// MoveToArchitecture re-parents an existing file row onto another slot.
func (r *fileRepository) MoveToArchitecture(ctx context.Context, fileID, archID int64) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE files SET architecture_id = $1, updated_at = now() WHERE id = $2`,
		archID, fileID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: target architecture already has a file", domain.ErrConflict)
		}
		if isForeignKeyViolation(err) {
			return domain.ErrArchitectureNotFound
		}
		return fmt.Errorf("failed to move file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrFileNotFound
	}
	return nil
}

// DeleteByArchitecture removes the slot's file row.
func (r *fileRepository) DeleteByArchitecture(ctx context.Context, archID int64) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM files WHERE architecture_id = $1`, archID)
	if err != nil {
		return false, fmt.Errorf("failed to delete file: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// IncrementDownloadCount atomically adds one to the slot's download count.
func (r *fileRepository) IncrementDownloadCount(ctx context.Context, archID int64) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE files SET download_count = download_count + 1 WHERE architecture_id = $1`, archID,
	)
	if err != nil {
		return fmt.Errorf("failed to increment download count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrFileNotFound
	}
	return nil
}

var _ repository.FileRepository = (*fileRepository)(nil)
