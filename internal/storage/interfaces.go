// Package storage holds box artifacts on a single local hierarchical
// filesystem tree: root/organization/box/version/provider/architecture/vagrant.box.
package storage

import (
	"context"
	"io"
	"time"

	"github.com/prn-tf/boxvault/internal/domain"
)

// Artifact is an open stored artifact. Callers must Close it.
type Artifact interface {
	io.ReaderAt
	io.Closer

	// Size is the file size at open time.
	Size() int64

	// ModTime is the file modification time at open time.
	ModTime() time.Time
}

// WriteOptions bounds a single artifact write.
type WriteOptions struct {
	// MaxSize is the byte ceiling. Zero disables the check.
	MaxSize int64

	// ExpectedSize is the declared payload length, or -1 when unknown.
	// A declared size above MaxSize fails before any byte is written.
	ExpectedSize int64
}

// WriteResult describes a completed write.
type WriteResult struct {
	Size    int64
	Elapsed time.Duration
}

// SweepResult describes one temp-file sweep.
type SweepResult struct {
	Scanned int
	Removed int
	Bytes   int64
}

// Backend defines the interface for artifact storage backends.
// Every method takes the five-part address; implementations map it to a location.
type Backend interface {
	// Write streams r into the slot, replacing any existing artifact atomically.
	// Failures are *StreamError values whose Kind is one of the stream sentinels,
	// or plain errors for anything else.
	Write(ctx context.Context, addr domain.Address, r io.Reader, opts WriteOptions) (*WriteResult, error)

	// Open opens the slot's artifact for reading.
	// Returns ErrArtifactNotFound when the slot has no file on disk.
	Open(ctx context.Context, addr domain.Address) (Artifact, error)

	// Exists reports whether the slot's artifact is on disk.
	Exists(ctx context.Context, addr domain.Address) (bool, error)

	// Remove deletes the slot's artifact. A missing file returns false, nil.
	Remove(ctx context.Context, addr domain.Address) (bool, error)

	// RemoveSlot recursively removes the slot directory. A missing directory returns false, nil.
	RemoveSlot(ctx context.Context, addr domain.Address) (bool, error)

	// Move relocates the artifact from one slot to another, creating the
	// target directory. Returns ErrTargetExists when the target holds a file.
	Move(ctx context.Context, from, to domain.Address) error

	// SweepTemp removes in-flight upload files older than olderThan.
	SweepTemp(ctx context.Context, olderThan time.Duration, dryRun bool) (*SweepResult, error)

	// HealthCheck verifies the storage root is writable.
	HealthCheck(ctx context.Context) error
}
