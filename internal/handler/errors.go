package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/prn-tf/boxvault/internal/auth"
	"github.com/prn-tf/boxvault/internal/domain"
	"github.com/prn-tf/boxvault/internal/service"
	"github.com/prn-tf/boxvault/internal/storage"
)

// Symbolic error codes returned in error bodies.
const (
	CodeNotFound            = "NOT_FOUND"
	CodeForbidden           = "FORBIDDEN"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeBadRequest          = "BAD_REQUEST"
	CodeConflict            = "CONFLICT"
	CodeFileTooLarge        = "FILE_TOO_LARGE"
	CodeUploadTimeout       = "UPLOAD_TIMEOUT"
	CodeNoStorageSpace      = "NO_STORAGE_SPACE"
	CodeUploadError         = "UPLOAD_ERROR"
	CodeInternalError       = "INTERNAL_SERVER_ERROR"
	CodeRangeNotSatisfiable = "RANGE_NOT_SATISFIABLE"
)

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// operation selects the fallback code for unexpected failures.
type operation string

const (
	opUpload   operation = "upload"
	opDownload operation = "download"
	opInfo     operation = "info"
	opLink     operation = "link"
	opDelete   operation = "delete"
	opBox      operation = "box"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message, Details: details})
}

// writeServiceError is the single place service errors become HTTP responses.
// Operator detail goes to the log; the body never carries filesystem paths.
func writeServiceError(w http.ResponseWriter, logger zerolog.Logger, op operation, err error) {
	var nf *domain.NotFoundError
	var se *storage.StreamError

	switch {
	case errors.As(err, &nf):
		writeError(w, http.StatusNotFound, CodeNotFound, nf.Error(), map[string]any{"level": nf.Level})

	case domain.IsNotFound(err):
		writeError(w, http.StatusNotFound, CodeNotFound, err.Error(), nil)

	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, domain.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Authentication required", nil)

	case errors.Is(err, domain.ErrForbidden):
		var details map[string]any
		if reason := auth.RejectionReason(err); reason != "other" {
			details = map[string]any{"reason": reason}
		}
		writeError(w, http.StatusForbidden, CodeForbidden, "Access denied", details)

	case errors.Is(err, domain.ErrInvalidName),
		errors.Is(err, domain.ErrInvalidRequest),
		errors.Is(err, storage.ErrInvalidPath):
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error(), nil)

	case errors.Is(err, service.ErrNoPayload):
		writeError(w, http.StatusBadRequest, CodeBadRequest, "No file provided", nil)

	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, CodeConflict, err.Error(), nil)

	case errors.As(err, &se):
		writeStreamError(w, logger, op, se)

	case errors.Is(err, storage.ErrSizeExceeded):
		writeError(w, http.StatusRequestEntityTooLarge, CodeFileTooLarge, "File exceeds the maximum allowed size", nil)

	case errors.Is(err, service.ErrRelocationFailed):
		logger.Error().Err(err).Str("operation", string(op)).Msg("artifact relocation failed")
		writeError(w, http.StatusInternalServerError, CodeUploadError, "Failed to relocate the stored file", nil)

	default:
		logger.Error().Err(err).Str("operation", string(op)).Msg("request failed")
		code, message := CodeInternalError, "Internal server error"
		if op == opUpload {
			code, message = CodeUploadError, "File upload failed"
		}
		writeError(w, http.StatusInternalServerError, code, message, nil)
	}
}

func writeStreamError(w http.ResponseWriter, logger zerolog.Logger, op operation, se *storage.StreamError) {
	details := map[string]any{
		"elapsedMs": se.Elapsed.Milliseconds(),
		"written":   se.Written,
	}

	switch {
	case errors.Is(se.Kind, storage.ErrSizeExceeded):
		if se.Limit > 0 {
			details["limit"] = se.Limit
		}
		writeError(w, http.StatusRequestEntityTooLarge, CodeFileTooLarge, "File exceeds the maximum allowed size", details)
	case errors.Is(se.Kind, storage.ErrTimeout):
		writeError(w, http.StatusRequestTimeout, CodeUploadTimeout, "Upload timed out", details)
	case errors.Is(se.Kind, storage.ErrDiskFull):
		logger.Error().Err(se).Str("operation", string(op)).Msg("storage out of space")
		writeError(w, http.StatusInsufficientStorage, CodeNoStorageSpace, "Not enough storage space", details)
	default:
		logger.Warn().Err(se).Str("operation", string(op)).Msg("transfer aborted")
		writeError(w, http.StatusInternalServerError, CodeUploadError, "Upload interrupted", details)
	}
}
