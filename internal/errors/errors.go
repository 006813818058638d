// Package errors provides error code definitions shared across the backend.
package errors

import "fmt"

// ErrorCode represents a unique error code surfaced to the SPA.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Storage errors
	ErrStorage     ErrorCode = "STORAGE_ERROR"
	ErrStorageFull ErrorCode = "STORAGE_FULL"
	ErrMigration   ErrorCode = "MIGRATION_FAILED"

	// Sync errors
	ErrSyncFailed       ErrorCode = "SYNC_FAILED"
	ErrSyncInProgress   ErrorCode = "SYNC_IN_PROGRESS"
	ErrSyncConflict     ErrorCode = "SYNC_CONFLICT"
	ErrSyncUnavailable  ErrorCode = "SYNC_UNAVAILABLE"  // transient: timeout, 5xx, refused
	ErrSyncUnauthorized ErrorCode = "SYNC_UNAUTHORIZED" // 401: credential needs attention
	ErrSyncRejected     ErrorCode = "SYNC_REJECTED"     // 400/403: non-retryable
	ErrSyncTimeout      ErrorCode = "SYNC_TIMEOUT"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is checks if an error is of a specific code.
func Is(err error, code ErrorCode) bool {
	for err != nil {
		if appErr, ok := err.(*AppError); ok && appErr.Code == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// CodeOf returns the error code of err, or ErrInternal when err carries none.
func CodeOf(err error) ErrorCode {
	for err != nil {
		if appErr, ok := err.(*AppError); ok {
			return appErr.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return ErrInternal
}

// Retryable reports whether an error should stay queued for the next drain
// cycle. Conflicts are retryable (resolution may persist on the next pass);
// credential and validation rejections are not.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case ErrSyncUnauthorized, ErrSyncRejected, ErrValidation, ErrInvalid:
		return false
	default:
		return true
	}
}
