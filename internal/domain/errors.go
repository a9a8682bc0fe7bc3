package domain

import (
	"errors"
	"fmt"
)

// Domain errors - these represent business rule violations.
// They are distinct from infrastructure errors (database, network, etc.).

var (
	// ===========================================
	// Catalog Errors
	// ===========================================

	// ErrOrganizationNotFound indicates the requested organization does not exist.
	ErrOrganizationNotFound = errors.New("organization not found")

	// ErrBoxNotFound indicates the requested box does not exist in the organization.
	ErrBoxNotFound = errors.New("box not found")

	// ErrVersionNotFound indicates the requested version does not exist in the box.
	ErrVersionNotFound = errors.New("version not found")

	// ErrProviderNotFound indicates the requested provider does not exist in the version.
	ErrProviderNotFound = errors.New("provider not found")

	// ErrArchitectureNotFound indicates the requested architecture does not exist in the provider.
	ErrArchitectureNotFound = errors.New("architecture not found")

	// ErrFileNotFound indicates the architecture slot holds no artifact.
	ErrFileNotFound = errors.New("file not found")

	// ErrAlreadyExists indicates a catalog entity with the same name exists under the parent.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidName indicates a name segment has a forbidden character set.
	ErrInvalidName = errors.New("invalid name")

	// ===========================================
	// Authorization Errors
	// ===========================================

	// ErrUnauthenticated indicates a private resource was requested anonymously.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrForbidden indicates the caller's identity does not grant access.
	ErrForbidden = errors.New("access denied")

	// ===========================================
	// Artifact Mutation Errors
	// ===========================================

	// ErrConflict indicates a concurrent mutation holds the artifact, or a
	// relocation target already holds a file.
	ErrConflict = errors.New("conflict")

	// ErrInvalidRequest indicates malformed request input.
	ErrInvalidRequest = errors.New("invalid request")
)

// Level names one tier of the catalog hierarchy.
type Level string

const (
	LevelOrganization Level = "organization"
	LevelBox          Level = "box"
	LevelVersion      Level = "version"
	LevelProvider     Level = "provider"
	LevelArchitecture Level = "architecture"
	LevelFile         Level = "file"
)

// sentinel maps a level to its not-found error.
func (l Level) sentinel() error {
	switch l {
	case LevelOrganization:
		return ErrOrganizationNotFound
	case LevelBox:
		return ErrBoxNotFound
	case LevelVersion:
		return ErrVersionNotFound
	case LevelProvider:
		return ErrProviderNotFound
	case LevelArchitecture:
		return ErrArchitectureNotFound
	default:
		return ErrFileNotFound
	}
}

// NotFoundError names the first hierarchy level that failed to resolve.
// It unwraps to the level's sentinel, so errors.Is(err, ErrBoxNotFound) works.
type NotFoundError struct {
	Level Level
	Name  string
}

// NewNotFoundError creates a NotFoundError for the given level.
func NewNotFoundError(level Level, name string) *NotFoundError {
	return &NotFoundError{Level: level, Name: name}
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Level, e.Name)
}

// Unwrap returns the level sentinel.
func (e *NotFoundError) Unwrap() error {
	return e.Level.sentinel()
}

// IsNotFound reports whether err is any catalog not-found error.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return true
	}
	return errors.Is(err, ErrOrganizationNotFound) ||
		errors.Is(err, ErrBoxNotFound) ||
		errors.Is(err, ErrVersionNotFound) ||
		errors.Is(err, ErrProviderNotFound) ||
		errors.Is(err, ErrArchitectureNotFound) ||
		errors.Is(err, ErrFileNotFound)
}

// DomainError wraps a domain error with additional context.
type DomainError struct {
	// Err is the underlying domain error.
	Err error

	// Message provides additional context.
	Message string

	// Resource identifies the affected resource (e.g., box name, address).
	Resource string
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Err.Error(), e.Message, e.Resource)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/errors.As.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError with context.
func NewDomainError(err error, message, resource string) *DomainError {
	return &DomainError{
		Err:      err,
		Message:  message,
		Resource: resource,
	}
}
