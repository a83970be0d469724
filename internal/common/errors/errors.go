// Package errors provides the application error taxonomy returned by the API.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes as returned in the "error" field of API responses.
const (
	CodeValidation            = "validation"
	CodeNotFound              = "not_found"
	CodeConflict              = "conflict"
	CodeAuth                  = "auth"
	CodeRateLimited           = "rate_limited"
	CodeDependencyUnavailable = "dependency_unavailable"
	CodeInternal              = "internal"
)

// AppError is an application error with a stable code and HTTP status.
type AppError struct {
	Code       string `json:"error"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for use with errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Validation creates a 400 error for a malformed or schema-failing input.
func Validation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NotFound creates a 404 error for an absent entity.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s '%s' not found", resource, id),
		HTTPStatus: http.StatusNotFound,
	}
}

// Conflict creates a 409 error for an idempotency-violating duplicate.
func Conflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// Auth creates a 401 error for a missing or invalid credential.
func Auth(message string) *AppError {
	return &AppError{
		Code:       CodeAuth,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// RateLimited creates a 429 error. The middleware layer attaches Retry-After.
func RateLimited(message string) *AppError {
	return &AppError{
		Code:       CodeRateLimited,
		Message:    message,
		HTTPStatus: http.StatusTooManyRequests,
	}
}

// DependencyUnavailable creates a 503 error for a down or saturated backend.
func DependencyUnavailable(dependency string, err error) *AppError {
	return &AppError{
		Code:       CodeDependencyUnavailable,
		Message:    fmt.Sprintf("dependency '%s' unavailable", dependency),
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// Internal creates a 500 error wrapping an unexpected failure.
func Internal(message string, err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// Wrap wraps err with additional context, preserving an existing AppError's
// code and status.
func Wrap(err error, message string) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Code:       appErr.Code,
			Message:    fmt.Sprintf("%s: %s", message, appErr.Message),
			HTTPStatus: appErr.HTTPStatus,
			Err:        err,
		}
	}

	return &AppError{
		Code:       CodeInternal,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == CodeNotFound
}

// IsConflict checks if the error is a conflict error.
func IsConflict(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == CodeConflict
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == CodeValidation
}

// HTTPStatus returns the HTTP status code for err, defaulting to 500.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
