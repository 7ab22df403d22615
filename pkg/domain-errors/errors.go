// Package domainerrors carries the stable error codes services return to the
// transport layer. Stores return sentinel errors; services translate them into
// one of these codes so handlers never inspect infrastructure errors directly.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code identifies a class of rejection. The string value is part of the public
// API and appears in logs and metrics labels.
type Code string

const (
	CodeValidation         Code = "validation_error"
	CodeNotYetOpen         Code = "not_yet_open"
	CodeRateLimited        Code = "rate_limited"
	CodeDuplicate          Code = "duplicate_submission"
	CodeStorageUnavailable Code = "storage_unavailable"
	CodeUnauthorized       Code = "unauthorized"
	CodeBadRequest         Code = "bad_request"
	CodeInternal           Code = "internal_error"
)

// Error is a domain error with a code and a human-readable message that is safe
// to show to the caller (except for CodeInternal, see httputil.WriteError).
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a domain error without a cause.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// As extracts the outermost domain error from an error chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	de, ok := As(err)
	return ok && de.Code == code
}

// Is is an alias of HasCode kept for call sites that read better with it.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the code of err, or CodeInternal when err carries none.
func CodeOf(err error) Code {
	if de, ok := As(err); ok {
		return de.Code
	}
	return CodeInternal
}

// HTTPStatus maps a code to its response status.
func HTTPStatus(code Code) int {
	switch code {
	case CodeValidation, CodeBadRequest:
		return http.StatusBadRequest
	case CodeNotYetOpen:
		return http.StatusForbidden
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeDuplicate:
		return http.StatusConflict
	case CodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
