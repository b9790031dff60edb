// Package apperr defines the error taxonomy shared by the server and the
// client CLI. Every failure the HTTP layer can surface carries one of the
// codes below; anything without a code is treated as internal.
package apperr

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeInvalidUUID        Code = "INVALID_UUID"
	CodeInvalidObservation Code = "INVALID_OBSERVATION"
	CodeInvalidLimit       Code = "INVALID_LIMIT"
	CodeRateLimited        Code = "RATE_LIMITED"
	CodeStorage            Code = "STORAGE"
	CodeConfig             Code = "CONFIG"
	CodeInternal           Code = "INTERNAL"
)

type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// Is makes the predefined error values below usable with errors.Is even when
// an error has been wrapped with a cause: two AppErrors match iff their codes
// match.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

func New(code Code, message string) error {
	return &AppError{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &AppError{Code: code, Message: message, Cause: cause}
}

// Predefined domain errors. Malformed and unknown credentials collapse into
// the single ErrUnauthorized value so callers cannot distinguish them.
var (
	ErrUnauthorized       = New(CodeUnauthorized, "unauthorized")
	ErrInvalidUUID        = New(CodeInvalidUUID, "invalid uuid")
	ErrInvalidObservation = New(CodeInvalidObservation, "invalid observation")
	ErrInvalidLimit       = New(CodeInvalidLimit, "invalid limit")
	ErrRateLimited        = New(CodeRateLimited, "observation limit reached")
)

func Storage(cause error) error {
	return Wrap(CodeStorage, "database error", cause)
}

func Internal(message string, cause error) error {
	return Wrap(CodeInternal, message, cause)
}

func MissingConfig(key string) error {
	return New(CodeConfig, fmt.Sprintf("missing configuration: %s", key))
}

func InvalidConfig(key string) error {
	return New(CodeConfig, fmt.Sprintf("invalid configuration: %s", key))
}

// CodeOf extracts the taxonomy code from err, or CodeInternal when err does
// not carry one.
func CodeOf(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// MessageOf returns the externally safe message for err. Causes are never
// included; unknown errors get a generic message.
func MessageOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal error"
}
