package s1st2md

import (
	"errors"
	"fmt"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// NetworkError represents network-related errors
	NetworkError ErrorType = "network_error"

	// ParseError represents parsing-related errors
	ParseError ErrorType = "parse_error"

	// ValidationError represents validation-related errors
	ValidationError ErrorType = "validation_error"

	// SessionError represents authentication/session errors
	SessionError ErrorType = "session_error"

	// DownloadError represents download-related errors
	DownloadError ErrorType = "download_error"

	// ExportError represents export sequencing errors
	ExportError ErrorType = "export_error"
)

// Sentinel errors shared across components.
var (
	// ErrSessionInvalid marks an API response in the "50x" family. The stored
	// session token must be evicted before the operation is retried.
	ErrSessionInvalid = errors.New("session invalid")

	// ErrAPIMissingData marks a successful envelope without a data payload.
	ErrAPIMissingData = errors.New("api response missing data")

	// ErrLoginCancelled is returned when the credential source declines to
	// provide credentials.
	ErrLoginCancelled = errors.New("login cancelled")

	// ErrExportRunning is returned when a second export is started while one
	// is already in flight.
	ErrExportRunning = errors.New("an export is already running")
)

// AppError represents a structured application error
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new network error
func NewNetworkError(message string, err error) *AppError {
	return &AppError{Type: NetworkError, Message: message, Err: err}
}

// NewParseError creates a new parsing error
func NewParseError(message string, err error) *AppError {
	return &AppError{Type: ParseError, Message: message, Err: err}
}

// NewValidationError creates a new validation error
func NewValidationError(message string) *AppError {
	return &AppError{Type: ValidationError, Message: message}
}

// NewSessionError creates a new session error
func NewSessionError(message string, err error) *AppError {
	return &AppError{Type: SessionError, Message: message, Err: err}
}

// NewDownloadError creates a new download error
func NewDownloadError(message string, err error) *AppError {
	return &AppError{Type: DownloadError, Message: message, Err: err}
}

// NewExportError creates a new export error
func NewExportError(message string, err error) *AppError {
	return &AppError{Type: ExportError, Message: message, Err: err}
}
