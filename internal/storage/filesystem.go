package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prn-tf/boxvault/internal/domain"
)

// FilesystemConfig configures the local filesystem backend.
type FilesystemConfig struct {
	// RootDir is the root of the artifact tree.
	RootDir string

	// TempPrefix prefixes in-flight upload files inside slot directories.
	TempPrefix string
}

// FilesystemStore implements Backend on the local filesystem.
// Uploads stream into a temp file in the target directory and are renamed
// onto the artifact name once complete, so readers never see a partial file.
type FilesystemStore struct {
	paths      PathConfig
	tempPrefix string
	logger     zerolog.Logger
}

// NewFilesystemStore creates the backend, creating the root directory if absent.
func NewFilesystemStore(cfg FilesystemConfig, logger zerolog.Logger) (*FilesystemStore, error) {
	if err := os.MkdirAll(cfg.RootDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	prefix := cfg.TempPrefix
	if prefix == "" {
		prefix = ".upload-"
	}
	return &FilesystemStore{
		paths:      DefaultPathConfig(cfg.RootDir),
		tempPrefix: prefix,
		logger:     logger.With().Str("component", "storage").Logger(),
	}, nil
}

// Root returns the storage root directory.
func (s *FilesystemStore) Root() string {
	return s.paths.BasePath
}

// Write streams r into the slot, replacing any existing artifact atomically.
func (s *FilesystemStore) Write(ctx context.Context, addr domain.Address, r io.Reader, opts WriteOptions) (*WriteResult, error) {
	started := time.Now()

	if opts.MaxSize > 0 && opts.ExpectedSize > opts.MaxSize {
		return nil, &StreamError{Kind: ErrSizeExceeded, Limit: opts.MaxSize, Elapsed: time.Since(started)}
	}

	dest, err := ComputePath(s.paths, addr)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, newStreamError(fmt.Errorf("failed to create slot directory: %w", err), 0, started)
	}

	tmpPath := filepath.Join(dir, s.tempPrefix+uuid.NewString())
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, newStreamError(fmt.Errorf("failed to create temp file: %w", err), 0, started)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			if rmErr := os.Remove(tmpPath); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				s.logger.Warn().Err(rmErr).Str("path", tmpPath).Msg("failed to remove temp upload")
			}
		}
	}()

	src := NewContextReader(ctx, r)
	if opts.MaxSize > 0 {
		src = &limitReader{r: src, limit: opts.MaxSize}
	}

	written, err := io.Copy(tmp, src)
	if err != nil {
		se := newStreamError(err, written, started)
		var streamErr *StreamError
		if errors.As(se, &streamErr) && errors.Is(streamErr.Kind, ErrSizeExceeded) {
			streamErr.Limit = opts.MaxSize
		}
		return nil, se
	}

	if err := tmp.Sync(); err != nil {
		return nil, newStreamError(fmt.Errorf("failed to sync temp file: %w", err), written, started)
	}
	if err := tmp.Close(); err != nil {
		return nil, newStreamError(fmt.Errorf("failed to close temp file: %w", err), written, started)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return nil, fmt.Errorf("failed to commit artifact: %w", err)
	}
	committed = true

	return &WriteResult{Size: written, Elapsed: time.Since(started)}, nil
}

// osArtifact adapts an *os.File to Artifact.
type osArtifact struct {
	*os.File
	size    int64
	modTime time.Time
}

func (a *osArtifact) Size() int64        { return a.size }
func (a *osArtifact) ModTime() time.Time { return a.modTime }

// Open opens the slot's artifact for reading.
func (s *FilesystemStore) Open(ctx context.Context, addr domain.Address) (Artifact, error) {
	path, err := ComputePath(s.paths, addr)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrArtifactNotFound
		}
		return nil, fmt.Errorf("failed to open artifact: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat artifact: %w", err)
	}
	return &osArtifact{File: f, size: info.Size(), modTime: info.ModTime()}, nil
}

// Exists reports whether the slot's artifact is on disk.
func (s *FilesystemStore) Exists(ctx context.Context, addr domain.Address) (bool, error) {
	path, err := ComputePath(s.paths, addr)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat artifact: %w", err)
}

// Remove deletes the slot's artifact.
func (s *FilesystemStore) Remove(ctx context.Context, addr domain.Address) (bool, error) {
	path, err := ComputePath(s.paths, addr)
	if err != nil {
		return false, err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to remove artifact: %w", err)
	}
	return true, nil
}

// RemoveSlot recursively removes the slot directory.
func (s *FilesystemStore) RemoveSlot(ctx context.Context, addr domain.Address) (bool, error) {
	dir, err := SlotDir(s.paths, addr)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat slot directory: %w", err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return false, fmt.Errorf("failed to remove slot directory: %w", err)
	}
	return true, nil
}

// Move relocates the artifact from one slot to another.
func (s *FilesystemStore) Move(ctx context.Context, from, to domain.Address) error {
	src, err := ComputePath(s.paths, from)
	if err != nil {
		return err
	}
	dst, err := ComputePath(s.paths, to)
	if err != nil {
		return err
	}

	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrArtifactNotFound
		}
		return fmt.Errorf("failed to stat source artifact: %w", err)
	}
	if _, err := os.Stat(dst); err == nil {
		return ErrTargetExists
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create target directory: %w", err)
	}

	err = os.Rename(src, dst)
	if errors.Is(err, syscall.EXDEV) {
		err = s.copyAcross(ctx, src, dst)
	}
	if err != nil {
		return fmt.Errorf("failed to move artifact: %w", err)
	}
	return nil
}

// copyAcross moves a file between filesystems by streaming it into a temp
// file next to dst and renaming.
func (s *FilesystemStore) copyAcross(ctx context.Context, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmpPath := filepath.Join(filepath.Dir(dst), s.tempPrefix+uuid.NewString())
	out, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, NewContextReader(ctx, in)); err != nil {
		out.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Remove(src)
}

// SweepTemp removes in-flight upload files older than olderThan.
func (s *FilesystemStore) SweepTemp(ctx context.Context, olderThan time.Duration, dryRun bool) (*SweepResult, error) {
	result := &SweepResult{}
	cutoff := time.Now().Add(-olderThan)

	err := filepath.WalkDir(s.paths.BasePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !strings.HasPrefix(d.Name(), s.tempPrefix) {
			return nil
		}

		result.Scanned++
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().After(cutoff) {
			return nil
		}

		if dryRun {
			s.logger.Info().Str("path", path).Int64("size", info.Size()).Msg("dry run: would remove temp upload")
		} else if err := os.Remove(path); err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("failed to remove temp upload")
			return nil
		}
		result.Removed++
		result.Bytes += info.Size()
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("failed to sweep temp uploads: %w", err)
	}
	return result, nil
}

// HealthCheck verifies the storage root is writable.
func (s *FilesystemStore) HealthCheck(ctx context.Context) error {
	probe := filepath.Join(s.paths.BasePath, s.tempPrefix+"health-"+uuid.NewString())
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		return fmt.Errorf("storage root not writable: %w", err)
	}
	return os.Remove(probe)
}

var _ Backend = (*FilesystemStore)(nil)
