package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"time"
)

var (
	// ErrArtifactNotFound indicates the slot has no file on disk.
	ErrArtifactNotFound = errors.New("artifact not found on disk")

	// ErrTargetExists indicates a move target already holds a file.
	ErrTargetExists = errors.New("target artifact already exists")

	// ErrInvalidPath indicates an address segment cannot be mapped to a path.
	ErrInvalidPath = errors.New("invalid storage path segment")
)

// Stream error kinds. Every transfer failure carries exactly one of these.
var (
	ErrSizeExceeded    = errors.New("size limit exceeded")
	ErrTimeout         = errors.New("transfer timed out")
	ErrDiskFull        = errors.New("no space left on device")
	ErrTransportClosed = errors.New("transport closed")
)

// StreamError reports a failed byte transfer.
type StreamError struct {
	// Kind is one of ErrSizeExceeded, ErrTimeout, ErrDiskFull, ErrTransportClosed.
	Kind error

	// Written is the number of bytes transferred before the failure.
	Written int64

	// Elapsed is the transfer duration before the failure.
	Elapsed time.Duration

	// Limit is the size ceiling, set for ErrSizeExceeded.
	Limit int64

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s after %d bytes in %s: %v", e.Kind, e.Written, e.Elapsed.Round(time.Millisecond), e.Err)
	}
	return fmt.Sprintf("%s after %d bytes in %s", e.Kind, e.Written, e.Elapsed.Round(time.Millisecond))
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *StreamError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Classify maps a raw transfer error to a stream error kind.
// It returns nil for errors outside the closed set.
func Classify(err error) error {
	var se *StreamError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &se):
		return se.Kind
	case errors.Is(err, ErrSizeExceeded):
		return ErrSizeExceeded
	case errors.Is(err, syscall.ENOSPC), errors.Is(err, syscall.EDQUOT):
		return ErrDiskFull
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return ErrTimeout
	case isNetTimeout(err):
		return ErrTimeout
	case errors.Is(err, context.Canceled),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.ECONNRESET):
		return ErrTransportClosed
	}
	return nil
}

func isNetTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// newStreamError wraps err when it belongs to the closed set.
func newStreamError(err error, written int64, started time.Time) error {
	kind := Classify(err)
	if kind == nil {
		return err
	}
	var se *StreamError
	if errors.As(err, &se) {
		return se
	}
	return &StreamError{Kind: kind, Written: written, Elapsed: time.Since(started), Err: err}
}
