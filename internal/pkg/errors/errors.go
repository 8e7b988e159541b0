// Package errors provides standardized API error types.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/lapolinarweb/contracts/internal/account"
)

// APIError represents a standardized API error response.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Details    any    `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// WithDetails returns a copy of the error with additional details.
func (e *APIError) WithDetails(details any) *APIError {
	return &APIError{
		Code:       e.Code,
		Message:    e.Message,
		StatusCode: e.StatusCode,
		Details:    details,
	}
}

// WithMessage returns a copy of the error with a custom message.
func (e *APIError) WithMessage(message string) *APIError {
	return &APIError{
		Code:       e.Code,
		Message:    message,
		StatusCode: e.StatusCode,
		Details:    e.Details,
	}
}

// Standard error definitions
var (
	// ErrBadRequest is returned when the request is malformed.
	ErrBadRequest = &APIError{
		Code:       "bad_request",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}

	// ErrUnauthorized is returned when credentials are missing or invalid.
	ErrUnauthorized = &APIError{
		Code:       "unauthorized",
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
	}

	// ErrForbidden is returned when the caller lacks a required scope.
	ErrForbidden = &APIError{
		Code:       "forbidden",
		Message:    "Insufficient permissions",
		StatusCode: http.StatusForbidden,
	}

	// ErrRateLimited is returned when rate limits are exceeded.
	ErrRateLimited = &APIError{
		Code:       "rate_limited",
		Message:    "Too many requests. Please try again later.",
		StatusCode: http.StatusTooManyRequests,
	}

	// ErrInternal is returned for unexpected server errors.
	ErrInternal = &APIError{
		Code:       "internal_error",
		Message:    "An internal error occurred",
		StatusCode: http.StatusInternalServerError,
	}

	// ErrAccountBusy is returned when another relay holds the account lock.
	ErrAccountBusy = &APIError{
		Code:       "account_busy",
		Message:    "Account is processing another transaction",
		StatusCode: http.StatusConflict,
	}

	// ErrServiceUnavailable is returned when a dependent service is unavailable.
	ErrServiceUnavailable = &APIError{
		Code:       "service_unavailable",
		Message:    "Service temporarily unavailable",
		StatusCode: http.StatusServiceUnavailable,
	}
)

// NewValidationError creates a validation error for a specific field.
func NewValidationError(field, message string) *APIError {
	return &APIError{
		Code:       "validation_error",
		Message:    fmt.Sprintf("Validation failed: %s", message),
		StatusCode: http.StatusBadRequest,
		Details: map[string]string{
			"field": field,
			"error": message,
		},
	}
}

// NewNotFoundError creates a not found error for a specific resource type.
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Code:       "not_found",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

// kindStatus maps account error kinds to HTTP status codes.
var kindStatus = map[account.Kind]int{
	account.KindAuthorization: http.StatusForbidden,
	account.KindPolicy:        http.StatusForbidden,
	account.KindGovernance:    http.StatusConflict,
	account.KindInvariant:     http.StatusUnprocessableEntity,
	account.KindEconomic:      http.StatusPaymentRequired,
	account.KindExecution:     http.StatusUnprocessableEntity,
}

// FromAccountError converts a classified account error. The stable code is
// kept and the kind is reported in the details.
func FromAccountError(err *account.Error) *APIError {
	status, ok := kindStatus[err.Kind]
	if !ok {
		status = http.StatusUnprocessableEntity
	}
	return &APIError{
		Code:       err.Code,
		Message:    err.Message,
		StatusCode: status,
		Details:    map[string]string{"kind": string(err.Kind)},
	}
}

// IsAPIError checks if an error is an APIError.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// AsAPIError converts an error to an APIError if possible.
// Returns ErrInternal if the error is neither an APIError nor an account error.
func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if accErr, ok := account.AsError(err); ok {
		return FromAccountError(accErr)
	}
	return ErrInternal
}
