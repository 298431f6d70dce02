// Package errors provides error code definitions for the DailyMeds core.
package errors

import "fmt"

// ErrorCode represents a unique error code surfaced in logs and stats.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Storage errors
	ErrStorage     ErrorCode = "STORAGE_ERROR"
	ErrSerialize   ErrorCode = "SERIALIZE_FAILED"
	ErrDeserialize ErrorCode = "DESERIALIZE_FAILED"

	// Identity errors
	ErrNoUser ErrorCode = "NO_ACTIVE_USER"

	// History errors
	ErrMissingDateKey ErrorCode = "MISSING_DATE_KEY"
	ErrMigration      ErrorCode = "MIGRATION_FAILED"

	// Sync errors
	ErrSyncOffline     ErrorCode = "SYNC_OFFLINE"
	ErrSyncFailed      ErrorCode = "SYNC_FAILED"
	ErrSyncMergeFailed ErrorCode = "SYNC_MERGE_FAILED"
	ErrTaskDropped     ErrorCode = "SYNC_TASK_DROPPED"
	ErrRemoteRejected  ErrorCode = "REMOTE_REJECTED"
	ErrRemoteTimeout   ErrorCode = "REMOTE_TIMEOUT"
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
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == code
	}
	return false
}
