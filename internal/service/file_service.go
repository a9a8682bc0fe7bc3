package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/boxvault/internal/auth"
	"github.com/prn-tf/boxvault/internal/domain"
	"github.com/prn-tf/boxvault/internal/lock"
	"github.com/prn-tf/boxvault/internal/metrics"
	"github.com/prn-tf/boxvault/internal/pkg/crypto"
	"github.com/prn-tf/boxvault/internal/repository"
	"github.com/prn-tf/boxvault/internal/storage"
)

// FileServiceConfig holds artifact transfer limits.
type FileServiceConfig struct {
	// MaxArtifactSize is the upload byte ceiling.
	MaxArtifactSize int64

	// UploadTimeout bounds a single upload.
	UploadTimeout time.Duration

	// Lock controls per-artifact mutual exclusion.
	Lock lock.Options
}

// FileService handles upload, download, info and deletion of artifacts.
type FileService struct {
	resolver   *Resolver
	authorizer *Authorizer
	files      repository.FileRepository
	storage    storage.Backend
	locker     lock.Locker
	tokens     *auth.DownloadTokens
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	config     FileServiceConfig
}

// NewFileService creates a new FileService.
func NewFileService(
	resolver *Resolver,
	authorizer *Authorizer,
	files repository.FileRepository,
	backend storage.Backend,
	locker lock.Locker,
	tokens *auth.DownloadTokens,
	m *metrics.Metrics,
	logger zerolog.Logger,
	config FileServiceConfig,
) *FileService {
	if config.Lock.TTL == 0 {
		config.Lock = lock.DefaultOptions
	}
	return &FileService{
		resolver:   resolver,
		authorizer: authorizer,
		files:      files,
		storage:    backend,
		locker:     locker,
		tokens:     tokens,
		metrics:    m,
		logger:     logger.With().Str("service", "file").Logger(),
		config:     config,
	}
}

// =============================================================================
// Upload
// =============================================================================

// UploadInput describes an upload or replace.
type UploadInput struct {
	Address  domain.Address
	Identity auth.Identity

	// Body is the payload stream, or nil for a metadata-only replace.
	Body io.Reader

	// Size is the declared payload length, or -1 when unknown.
	Size int64

	Checksum     string
	ChecksumType string

	// Target holds replacement address fields. Empty fields keep the current value.
	Target domain.Address

	// Replace marks a PUT; only replaces may omit the payload.
	Replace bool
}

// hasChecksum reports whether the caller sent any checksum field.
func (in *UploadInput) hasChecksum() bool {
	return strings.TrimSpace(in.Checksum) != "" || strings.TrimSpace(in.ChecksumType) != ""
}

// UploadOutput describes a completed upload.
type UploadOutput struct {
	File      *domain.File
	Address   domain.Address
	Relocated bool
	Duration  time.Duration

	// ChecksumVerified is nil when no supported checksum was sent.
	ChecksumVerified *bool
}

// Upload streams a payload into an existing architecture slot, or updates and
// optionally relocates the current artifact when no payload is given.
func (s *FileService) Upload(ctx context.Context, in UploadInput) (*UploadOutput, error) {
	start := time.Now()

	source, err := s.resolver.Resolve(ctx, in.Address, ResolveOptions{})
	if err != nil {
		return nil, err
	}
	if err := s.authorizer.RequireWrite(ctx, in.Identity, source.Organization, source.Box); err != nil {
		return nil, err
	}
	if in.Body == nil && !in.Replace {
		return nil, ErrNoPayload
	}

	target := source
	requested := source.Address.Merge(in.Target)
	relocate := requested != source.Address
	if relocate {
		if err := requested.Validate(); err != nil {
			return nil, err
		}
		target, err = s.resolver.Resolve(ctx, requested, ResolveOptions{})
		if err != nil {
			return nil, err
		}
		if err := s.authorizer.RequireWrite(ctx, in.Identity, target.Organization, target.Box); err != nil {
			return nil, err
		}
	}

	held, err := lock.AcquireAll(ctx, s.locker, s.config.Lock,
		lock.Keys.Artifact(source.Address),
		lock.Keys.Artifact(target.Address),
	)
	if err != nil {
		return nil, lockError(err)
	}
	defer held.Release(context.WithoutCancel(ctx))

	// Re-read slot state under the lock.
	if source.File, err = s.currentFile(ctx, source.Architecture.ID); err != nil {
		return nil, err
	}
	if relocate {
		if target.File, err = s.currentFile(ctx, target.Architecture.ID); err != nil {
			return nil, err
		}
		if target.File != nil {
			return nil, fmt.Errorf("%w: target %s already holds a file", domain.ErrConflict, target.Address)
		}
	}

	var out *UploadOutput
	if in.Body != nil {
		out, err = s.writePayload(ctx, in, source, target, relocate, held)
	} else {
		out, err = s.replaceMetadata(ctx, in, source, target, relocate)
	}
	if err != nil {
		s.metrics.OperationError("upload")
		return nil, err
	}

	out.Duration = time.Since(start)
	s.logger.Info().
		Str("address", out.Address.String()).
		Int64("size", out.File.FileSize).
		Bool("relocated", out.Relocated).
		Dur("duration", out.Duration).
		Str("identity", in.Identity.String()).
		Msg("artifact stored")
	return out, nil
}

func (s *FileService) writePayload(ctx context.Context, in UploadInput, source, target *domain.Bound, relocate bool, held *lock.Held) (*UploadOutput, error) {
	logger := s.logger.With().Str("address", target.Address.String()).Logger()
	checksum, checksumType := domain.NormalizeChecksum(in.Checksum, in.ChecksumType)

	uploadCtx := ctx
	if s.config.UploadTimeout > 0 {
		var cancel context.CancelFunc
		uploadCtx, cancel = context.WithTimeout(ctx, s.config.UploadTimeout)
		defer cancel()
	}

	stop := s.keepAlive(uploadCtx, held)
	defer stop()

	body := in.Body
	var hr *crypto.HashReader
	if checksum != nil {
		algorithm := domain.SerializeChecksumType(checksumType)
		if r, err := crypto.NewHashReader(body, algorithm); err == nil {
			hr = r
			body = hr
		} else {
			logger.Debug().Str("checksum_type", algorithm).Msg("checksum type not verifiable, storing as given")
		}
	}

	res, err := s.storage.Write(uploadCtx, target.Address, body, storage.WriteOptions{
		MaxSize:      s.config.MaxArtifactSize,
		ExpectedSize: in.Size,
	})
	if err != nil {
		ev := logger.Error().Err(err)
		var se *storage.StreamError
		if errors.As(err, &se) {
			ev = ev.Int64("written", se.Written).Dur("elapsed", se.Elapsed).Int64("limit", se.Limit)
		}
		ev.Msg("artifact write failed")
		return nil, err
	}

	var verified *bool
	if hr != nil {
		ok := hr.Verify(*checksum)
		verified = &ok
		if !ok {
			logger.Warn().
				Str("declared", *checksum).
				Str("computed", hr.Sum()).
				Msg("uploaded artifact checksum does not match declared value")
		}
	}

	dbCtx := context.WithoutCancel(ctx)
	file := target.File
	moved := false
	if relocate && source.File != nil {
		if err := s.files.MoveToArchitecture(dbCtx, source.File.ID, target.Architecture.ID); err != nil {
			s.discardWrite(target.Address)
			return nil, errors.Join(ErrRelocationFailed, err)
		}
		file = source.File
		file.ArchitectureID = target.Architecture.ID
		moved = true
	}
	if file == nil {
		file = domain.NewFile(target.Architecture.ID)
	}
	file.FileName = domain.ArtifactFileName
	file.Checksum = checksum
	file.ChecksumType = checksumType
	file.FileSize = res.Size

	if err := s.files.Upsert(dbCtx, file); err != nil {
		if relocate {
			if moved {
				if rbErr := s.files.MoveToArchitecture(dbCtx, file.ID, source.Architecture.ID); rbErr != nil {
					logger.Error().Err(rbErr).Msg("failed to restore file row after relocation failure")
				}
			}
			s.discardWrite(target.Address)
		}
		return nil, fmt.Errorf("failed to record file: %w", err)
	}

	if relocate && source.File != nil {
		if _, err := s.storage.Remove(dbCtx, source.Address); err != nil {
			logger.Warn().Err(err).Str("source", source.Address.String()).Msg("failed to remove replaced artifact")
		}
	}

	s.metrics.AddUploadBytes(res.Size)
	return &UploadOutput{
		File:             file,
		Address:          target.Address,
		Relocated:        relocate,
		ChecksumVerified: verified,
	}, nil
}

func (s *FileService) replaceMetadata(ctx context.Context, in UploadInput, source, target *domain.Bound, relocate bool) (*UploadOutput, error) {
	file := source.File
	if file == nil {
		return nil, domain.NewNotFoundError(domain.LevelFile, source.Address.String())
	}
	dbCtx := context.WithoutCancel(ctx)

	if relocate {
		if err := s.storage.Move(ctx, source.Address, target.Address); err != nil {
			switch {
			case errors.Is(err, storage.ErrTargetExists):
				return nil, fmt.Errorf("%w: target %s already holds a file", domain.ErrConflict, target.Address)
			case errors.Is(err, storage.ErrArtifactNotFound):
				return nil, domain.NewNotFoundError(domain.LevelFile, source.Address.String())
			}
			return nil, errors.Join(ErrRelocationFailed, err)
		}

		if err := s.files.MoveToArchitecture(dbCtx, file.ID, target.Architecture.ID); err != nil {
			if rbErr := s.storage.Move(dbCtx, target.Address, source.Address); rbErr != nil {
				s.logger.Error().
					Err(rbErr).
					Str("source", source.Address.String()).
					Str("target", target.Address.String()).
					Msg("relocation rollback failed: file is on disk at target but cataloged at source")
				return nil, errors.Join(ErrRelocationFailed, err, rbErr)
			}
			return nil, errors.Join(ErrRelocationFailed, err)
		}
		file.ArchitectureID = target.Architecture.ID
	}

	if in.hasChecksum() {
		file.Checksum, file.ChecksumType = domain.NormalizeChecksum(in.Checksum, in.ChecksumType)
		if err := s.files.Upsert(dbCtx, file); err != nil {
			return nil, fmt.Errorf("failed to record file: %w", err)
		}
	}

	return &UploadOutput{File: file, Address: target.Address, Relocated: relocate}, nil
}

// discardWrite removes a freshly written artifact after a catalog failure.
func (s *FileService) discardWrite(addr domain.Address) {
	if _, err := s.storage.Remove(context.Background(), addr); err != nil {
		s.logger.Error().Err(err).Str("address", addr.String()).Msg("failed to discard written artifact")
	}
}

// lockError maps an AcquireAll failure: a busy artifact is a conflict.
func lockError(err error) error {
	if errors.Is(err, lock.ErrNotAcquired) {
		return fmt.Errorf("%w: artifact is being modified by another request", domain.ErrConflict)
	}
	return fmt.Errorf("failed to lock artifact: %w", err)
}

// keepAlive refreshes the held locks while a long transfer runs.
// The returned stop blocks until the refresher has exited.
func (s *FileService) keepAlive(ctx context.Context, held *lock.Held) func() {
	interval := s.config.Lock.TTL / 2
	if interval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := held.Extend(ctx, s.config.Lock.TTL); err != nil {
					s.logger.Warn().Err(err).Strs("keys", held.Keys()).Msg("failed to extend artifact lock")
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func (s *FileService) currentFile(ctx context.Context, archID int64) (*domain.File, error) {
	f, err := s.files.GetByArchitecture(ctx, archID)
	if errors.Is(err, domain.ErrFileNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load file: %w", err)
	}
	return f, nil
}

// =============================================================================
// Download
// =============================================================================

// DownloadInput describes a download request.
type DownloadInput struct {
	Address  domain.Address
	Identity auth.Identity

	// Token is the capability token from the query string.
	Token string

	// Client marks distribution client requests, whose session identity
	// substitutes for a token.
	Client bool

	// Options relaxes name resolution for client routes.
	Options ResolveOptions
}

// Download is an authorized, open artifact. Callers must Close it.
type Download struct {
	Bound    *domain.Bound
	File     *domain.File
	Artifact storage.Artifact
}

// Close releases the underlying artifact.
func (d *Download) Close() error {
	return d.Artifact.Close()
}

// OpenDownload authorizes a download and opens the artifact.
// A token, when present, must match the requested address exactly.
func (s *FileService) OpenDownload(ctx context.Context, in DownloadInput) (*Download, error) {
	if in.Token != "" {
		if _, err := s.tokens.Verify(in.Token, in.Address); err != nil {
			s.metrics.TokenRejected(auth.RejectionReason(err))
			s.logger.Warn().Err(err).Str("address", in.Address.String()).Msg("download token rejected")
			return nil, errors.Join(domain.ErrForbidden, err)
		}
	}

	bound, err := s.resolver.Resolve(ctx, in.Address, in.Options)
	if err != nil {
		return nil, err
	}

	if in.Token == "" && !bound.Box.IsPublic {
		if !in.Client {
			s.metrics.TokenRejected(auth.RejectionReason(auth.ErrTokenMissing))
			return nil, errors.Join(domain.ErrForbidden, auth.ErrTokenMissing)
		}
		ok, err := s.authorizer.CanRead(ctx, in.Identity, bound.Organization, bound.Box)
		if err != nil {
			return nil, fmt.Errorf("authorization check failed: %w", err)
		}
		if !ok {
			return nil, domain.ErrForbidden
		}
	}

	if bound.File == nil {
		return nil, domain.NewNotFoundError(domain.LevelFile, bound.Address.String())
	}

	artifact, err := s.storage.Open(ctx, bound.Address)
	if err != nil {
		if errors.Is(err, storage.ErrArtifactNotFound) {
			s.logger.Warn().Str("address", bound.Address.String()).Msg("cataloged file missing on disk")
			return nil, domain.NewNotFoundError(domain.LevelFile, bound.Address.String())
		}
		return nil, fmt.Errorf("failed to open artifact: %w", err)
	}

	return &Download{Bound: bound, File: bound.File, Artifact: artifact}, nil
}

// RecordDownload accounts for a served download. counted increments the
// download count; partial continuations pass false.
func (s *FileService) RecordDownload(ctx context.Context, d *Download, sent int64, counted bool) {
	s.metrics.AddDownloadBytes(sent)
	if !counted {
		return
	}
	if err := s.files.IncrementDownloadCount(context.WithoutCancel(ctx), d.Bound.Architecture.ID); err != nil {
		s.logger.Warn().Err(err).Str("address", d.Bound.Address.String()).Msg("failed to increment download count")
	}
}

// =============================================================================
// Info and download links
// =============================================================================

// LinkInput describes an info or download-link request.
type LinkInput struct {
	Address  domain.Address
	Identity auth.Identity

	// BaseURL is the public base URL download links are built on.
	BaseURL string
}

// FileInfo describes a stored artifact with a fresh download URL.
type FileInfo struct {
	FileName      string
	DownloadURL   string
	ExpiresAt     time.Time
	DownloadCount int64
	Checksum      *string
	ChecksumType  *string
	FileSize      int64
}

// Info returns the artifact's details and mints a download URL.
func (s *FileService) Info(ctx context.Context, in LinkInput) (*FileInfo, error) {
	bound, err := s.readable(ctx, in)
	if err != nil {
		return nil, err
	}

	link, expiresAt, err := s.mintLink(in, bound)
	if err != nil {
		return nil, err
	}

	f := bound.File
	info := &FileInfo{
		FileName:      f.FileName,
		DownloadURL:   link,
		ExpiresAt:     expiresAt,
		DownloadCount: f.DownloadCount,
		Checksum:      f.Checksum,
		FileSize:      f.FileSize,
	}
	if f.ChecksumType != nil {
		ct := strings.ToLower(*f.ChecksumType)
		info.ChecksumType = &ct
	}
	return info, nil
}

// DownloadLink mints a download URL for the artifact.
func (s *FileService) DownloadLink(ctx context.Context, in LinkInput) (string, time.Time, error) {
	bound, err := s.readable(ctx, in)
	if err != nil {
		return "", time.Time{}, err
	}
	return s.mintLink(in, bound)
}

func (s *FileService) readable(ctx context.Context, in LinkInput) (*domain.Bound, error) {
	bound, err := s.resolver.Resolve(ctx, in.Address, ResolveOptions{})
	if err != nil {
		return nil, err
	}
	if err := s.authorizer.RequireRead(ctx, in.Identity, bound.Organization, bound.Box); err != nil {
		return nil, err
	}
	if bound.File == nil {
		return nil, domain.NewNotFoundError(domain.LevelFile, bound.Address.String())
	}
	return bound, nil
}

func (s *FileService) mintLink(in LinkInput, bound *domain.Bound) (string, time.Time, error) {
	token, expiresAt, err := s.tokens.Issue(in.Identity, bound.Address)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to issue download token: %w", err)
	}
	s.metrics.TokenIssued()
	link := strings.TrimRight(in.BaseURL, "/") + ArtifactPath(bound.Address) + "/file/download?token=" + url.QueryEscape(token)
	return link, expiresAt, nil
}

// ArtifactPath returns the canonical API path prefix of an artifact slot.
func ArtifactPath(addr domain.Address) string {
	return "/api/organization/" + url.PathEscape(addr.Organization) +
		"/box/" + url.PathEscape(addr.Box) +
		"/version/" + url.PathEscape(addr.Version) +
		"/provider/" + url.PathEscape(addr.Provider) +
		"/architecture/" + url.PathEscape(addr.Architecture)
}

// =============================================================================
// Delete
// =============================================================================

// DeleteResult reports which cleanup steps took effect.
type DeleteResult struct {
	FileDeleted      bool
	RecordDeleted    bool
	DirectoryRemoved bool

	// Partial is set when any step failed.
	Partial bool
}

// Delete removes the artifact file, its catalog row and the slot directory.
// Only an unresolvable address fails; missing pieces are skipped and step
// failures are reported as partial cleanup.
func (s *FileService) Delete(ctx context.Context, addr domain.Address, id auth.Identity) (*DeleteResult, error) {
	bound, err := s.resolver.Resolve(ctx, addr, ResolveOptions{})
	if err != nil {
		return nil, err
	}
	if err := s.authorizer.RequireWrite(ctx, id, bound.Organization, bound.Box); err != nil {
		return nil, err
	}

	held, err := lock.AcquireAll(ctx, s.locker, s.config.Lock, lock.Keys.Artifact(bound.Address))
	if err != nil {
		return nil, lockError(err)
	}
	defer held.Release(context.WithoutCancel(ctx))

	logger := s.logger.With().Str("address", bound.Address.String()).Logger()
	result := &DeleteResult{}

	if result.FileDeleted, err = s.storage.Remove(ctx, bound.Address); err != nil {
		logger.Warn().Err(err).Msg("failed to remove artifact file")
		result.Partial = true
	}
	if result.RecordDeleted, err = s.files.DeleteByArchitecture(ctx, bound.Architecture.ID); err != nil {
		logger.Warn().Err(err).Msg("failed to delete file record")
		result.Partial = true
	}
	if result.DirectoryRemoved, err = s.storage.RemoveSlot(ctx, bound.Address); err != nil {
		logger.Warn().Err(err).Msg("failed to remove slot directory")
		result.Partial = true
	}

	if result.Partial {
		s.metrics.OperationError("delete")
	}
	logger.Info().
		Bool("file_deleted", result.FileDeleted).
		Bool("record_deleted", result.RecordDeleted).
		Bool("directory_removed", result.DirectoryRemoved).
		Str("identity", id.String()).
		Msg("artifact deletion attempted")
	return result, nil
}
