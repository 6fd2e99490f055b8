// Package errors provides error code definitions shared by the sync engine
// and the relay server.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode identifies a class of failure. Codes are stable strings so they
// can be surfaced to an embedding UI shell as-is.
type ErrorCode string

const (
	// General errors
	ErrInternal ErrorCode = "INTERNAL_ERROR"
	ErrInvalid  ErrorCode = "INVALID_INPUT"
	ErrNotFound ErrorCode = "NOT_FOUND"

	// Channel errors
	ErrConnectionFailed ErrorCode = "CONNECTION_FAILED"
	ErrConnectionClosed ErrorCode = "CONNECTION_CLOSED"
	ErrDecodeFailed     ErrorCode = "MESSAGE_DECODE_FAILED"

	// Persistence collaborator errors
	ErrSnapshotSaveFailed ErrorCode = "SNAPSHOT_SAVE_FAILED"
	ErrDocumentNotFound   ErrorCode = "DOCUMENT_NOT_FOUND"

	// Editor state errors
	ErrCursorApplyFailed ErrorCode = "CURSOR_APPLY_FAILED"
	ErrSessionClosed     ErrorCode = "SESSION_CLOSED"

	// Relay store errors
	ErrStoreFailed ErrorCode = "STORE_FAILED"
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

// Is reports whether err (or any error in its chain) carries the given code.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// CodeOf returns the error code of err, or ErrInternal if err carries none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}
