// Package apperror defines the error kinds the application reports.
//
// Every failure a caller is expected to react to is an *AppError wrapping
// one of the sentinel kinds below. The service layer returns them, and the
// HTTP layer maps kinds to status codes in exactly one place
// (handler.writeError). Anything else is an internal error.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("Validation Error")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")

	// Session kinds.
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("expired token")

	// External provider kinds.
	ErrConfiguration           = errors.New("configuration error")
	ErrTokenExchange           = errors.New("token exchange failed")
	ErrUserInfo                = errors.New("user info failed")
	ErrRefreshFailed           = errors.New("refresh failed")
	ErrInvalidProviderResponse = errors.New("invalid provider response")
	ErrProviderUnavailable     = errors.New("provider unavailable")
	ErrUpstream                = errors.New("upstream error")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error

	// Detail is server-side context such as an upstream response body.
	// It is logged by the HTTP layer and never sent to the client.
	Detail string
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized means the request carries no usable identity.
func Unauthorized(message string) *AppError {
	return &AppError{Err: ErrUnauthorized, Message: message}
}

// InvalidCredentials is returned for both unknown emails and wrong
// passwords. The message is identical in both cases.
func InvalidCredentials() *AppError {
	return &AppError{Err: ErrInvalidCredentials, Message: "invalid email or password"}
}

func InvalidToken(message string) *AppError {
	return &AppError{Err: ErrInvalidToken, Message: message}
}

func ExpiredToken(message string) *AppError {
	return &AppError{Err: ErrExpiredToken, Message: message}
}

// Configuration reports a missing or placeholder setting. The message is
// meant for the operator and should say how to fix it.
func Configuration(message string) *AppError {
	return &AppError{Err: ErrConfiguration, Message: message}
}

// Provider wraps a failure talking to the external identity provider.
// kind must be one of ErrTokenExchange, ErrUserInfo, ErrRefreshFailed,
// ErrInvalidProviderResponse or ErrProviderUnavailable.
func Provider(kind error, message string) *AppError {
	return &AppError{Err: kind, Message: message}
}

// WithDetail attaches server-side detail and returns e.
func (e *AppError) WithDetail(detail string) *AppError {
	e.Detail = detail
	return e
}

// Upstream wraps a failure of a downstream API called on the user's behalf.
func Upstream(message string) *AppError {
	return &AppError{Err: ErrUpstream, Message: message}
}

// IsProvider reports whether err is any of the external provider kinds.
func IsProvider(err error) bool {
	return errors.Is(err, ErrTokenExchange) ||
		errors.Is(err, ErrUserInfo) ||
		errors.Is(err, ErrRefreshFailed) ||
		errors.Is(err, ErrInvalidProviderResponse) ||
		errors.Is(err, ErrProviderUnavailable)
}
