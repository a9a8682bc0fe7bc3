package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prn-tf/boxvault/internal/domain"
	"github.com/prn-tf/boxvault/internal/repository"
)

// fileRepository implements repository.FileRepository for SQLite.
type fileRepository struct {
	db *DB
}

// NewFileRepository creates a new SQLite file repository.
func NewFileRepository(db *DB) repository.FileRepository {
	return &fileRepository{db: db}
}

// GetByArchitecture retrieves the file of an architecture slot.
func (r *fileRepository) GetByArchitecture(ctx context.Context, archID int64) (*domain.File, error) {
	f := &domain.File{}
	var checksum, checksumType sql.NullString
	var createdAt, updatedAt string

	err := r.db.QueryRowContext(ctx, `
		SELECT id, architecture_id, file_name, checksum, checksum_type,
		       file_size, download_count, created_at, updated_at
		FROM files
		WHERE architecture_id = ?
	`, archID).Scan(
		&f.ID,
		&f.ArchitectureID,
		&f.FileName,
		&checksum,
		&checksumType,
		&f.FileSize,
		&f.DownloadCount,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to get file: %w", err)
	}

	f.Checksum = stringPtr(checksum)
	f.ChecksumType = stringPtr(checksumType)
	f.CreatedAt = parseTime(createdAt)
	f.UpdatedAt = parseTime(updatedAt)
	return f, nil
}

// Upsert creates the slot's file row or updates it in place.
func (r *fileRepository) Upsert(ctx context.Context, f *domain.File) error {
	now := time.Now().UTC()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	f.UpdatedAt = now

	var createdAt string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO files (architecture_id, file_name, checksum, checksum_type, file_size, download_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT (architecture_id) DO UPDATE SET
			file_name     = excluded.file_name,
			checksum      = excluded.checksum,
			checksum_type = excluded.checksum_type,
			file_size     = excluded.file_size,
			updated_at    = excluded.updated_at
		RETURNING id, download_count, created_at
	`,
		f.ArchitectureID,
		f.FileName,
		nullableString(f.Checksum),
		nullableString(f.ChecksumType),
		f.FileSize,
		formatTime(f.CreatedAt),
		formatTime(f.UpdatedAt),
	).Scan(&f.ID, &f.DownloadCount, &createdAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrArchitectureNotFound
		}
		return fmt.Errorf("failed to upsert file: %w", err)
	}

	f.CreatedAt = parseTime(createdAt)
	return nil
}

// MoveToArchitecture re-parents an existing file row onto another slot.
func (r *fileRepository) MoveToArchitecture(ctx context.Context, fileID, archID int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE files SET architecture_id = ?, updated_at = ? WHERE id = ?`,
		archID, formatTime(time.Now()), fileID,
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

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrFileNotFound
	}
	return nil
}

// DeleteByArchitecture removes the slot's file row.
func (r *fileRepository) DeleteByArchitecture(ctx context.Context, archID int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE architecture_id = ?`, archID)
	if err != nil {
		return false, fmt.Errorf("failed to delete file: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// IncrementDownloadCount atomically adds one to the slot's download count.
func (r *fileRepository) IncrementDownloadCount(ctx context.Context, archID int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE files SET download_count = download_count + 1 WHERE architecture_id = ?`, archID,
	)
	if err != nil {
		return fmt.Errorf("failed to increment download count: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrFileNotFound
	}
	return nil
}

var _ repository.FileRepository = (*fileRepository)(nil)
