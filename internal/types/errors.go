package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// All handlers MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationInvalidAddress ErrorCode = "validation_invalid_wallet_address"
	ErrCodeValidationInvalidChain   ErrorCode = "validation_invalid_chain"
	ErrCodeValidationInvalidAmount  ErrorCode = "validation_invalid_amount"
	ErrCodeValidationMissingField   ErrorCode = "validation_missing_required_field"

	// Not Found (404)
	// ErrCodeNotFoundWallet means the (address, chain) pair is unknown to
	// the system. Recoverable by registration; the message carries the
	// remediation hint.
	ErrCodeNotFoundWallet   ErrorCode = "not_found_wallet"
	ErrCodeNotFoundIdentity ErrorCode = "not_found_identity"

	// Conflict (409)
	ErrCodeConflictWalletExists ErrorCode = "conflict_wallet_exists"

	// Internal/Upstream (500/502)
	// ErrCodeLookupFailed means the backing store could not answer. It is
	// never conflated with not-found: callers must be able to distinguish
	// "wallet truly unregistered" from "could not determine".
	ErrCodeLookupFailed       ErrorCode = "lookup_failed"
	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamStripe     ErrorCode = "upstream_stripe_unavailable"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Used by the API layer to translate AppErrors into HTTP responses.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound // 404
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict // 409
	case s == string(ErrCodeLookupFailed), strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway // 502
	case strings.HasPrefix(s, "internal_"):
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// AppError is the standard application error type used throughout the
// platform. All domain and handler errors are expressed as AppError to
// enable consistent error formatting, HTTP status mapping, and error
// chain support.
//
// Gate denials are NOT AppErrors; they are Decision values, because a
// Deny is a valid business outcome rather than a failure.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// NewAppError creates a new AppError with the given code, message, and
// optional underlying error. This is the standard constructor for domain
// errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with the given code, message,
// underlying error, and structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}

// IsNotFound reports whether err is an AppError carrying a not_found_* code.
func IsNotFound(err error) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return strings.HasPrefix(string(appErr.Code), "not_found_")
}

// IsLookupFailed reports whether err represents a storage availability
// failure (retryable), as opposed to a definitive not-found answer.
func IsLookupFailed(err error) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Code == ErrCodeLookupFailed || appErr.Code == ErrCodeInternalDB
}
