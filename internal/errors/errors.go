package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized is returned when a protected action carries no valid identity.
	ErrUnauthorized = errors.New("authentication required")
	// ErrForbidden is returned when the caller does not own the target issue.
	// Missing issues are reported the same way so existence is not disclosed.
	ErrForbidden = errors.New("not allowed to modify this issue")
	// ErrOTPInvalid covers a missing, mismatched or expired one-time code.
	ErrOTPInvalid = errors.New("invalid or expired code")
	// ErrRateLimited is returned when a per-email or per-user budget is exhausted.
	ErrRateLimited = errors.New("too many requests")
	// ErrDeliveryFailed is returned when the one-time code could not be delivered.
	ErrDeliveryFailed = errors.New("code delivery failed")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ErrorResponse represents a standardized error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// NewHTTPError creates a new HTTP error.
func NewHTTPError(statusCode int, message, code string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
		Code:       code,
	}
}

// ToErrorResponse converts an HTTPError to ErrorResponse.
func (e *HTTPError) ToErrorResponse() ErrorResponse {
	return ErrorResponse{
		Error: e.Message,
		Code:  e.Code,
	}
}

// Internal is the only body ever sent for a 5xx.
func Internal() *HTTPError {
	return NewHTTPError(http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
}

// MapErrorToHTTP maps domain errors to HTTP errors. Anything unrecognised
// becomes a generic 500 so store or driver text never reaches the client.
func MapErrorToHTTP(err error) *HTTPError {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return NewHTTPError(http.StatusBadRequest, verr.Error(), "VALIDATION_ERROR")
	case errors.Is(err, ErrUnauthorized):
		return NewHTTPError(http.StatusUnauthorized, ErrUnauthorized.Error(), "UNAUTHORIZED")
	case errors.Is(err, ErrForbidden):
		return NewHTTPError(http.StatusForbidden, ErrForbidden.Error(), "FORBIDDEN")
	case errors.Is(err, ErrOTPInvalid):
		return NewHTTPError(http.StatusBadRequest, ErrOTPInvalid.Error(), "OTP_INVALID")
	case errors.Is(err, ErrRateLimited):
		return NewHTTPError(http.StatusTooManyRequests, ErrRateLimited.Error(), "RATE_LIMITED")
	default:
		return Internal()
	}
}
