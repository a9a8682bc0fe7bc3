// Package service provides the artifact gateway business logic for BoxVault.
package service

import "errors"

// Service errors.
var (
	// ErrNoPayload indicates an upload request without a file part.
	ErrNoPayload = errors.New("no file provided")

	// ErrRelocationFailed indicates a replace moved neither or only one of
	// the file and its catalog row.
	ErrRelocationFailed = errors.New("artifact relocation failed")

	// ErrInternalError indicates an unexpected failure.
	ErrInternalError = errors.New("internal server error")
)
