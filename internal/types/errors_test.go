package types

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected int
	}{
		{ErrCodeValidationInvalidAddress, http.StatusBadRequest},
		{ErrCodeValidationInvalidChain, http.StatusBadRequest},
		{ErrCodeValidationInvalidAmount, http.StatusBadRequest},
		{ErrCodeValidationMissingField, http.StatusBadRequest},
		{ErrCodeNotFoundWallet, http.StatusNotFound},
		{ErrCodeNotFoundIdentity, http.StatusNotFound},
		{ErrCodeConflictWalletExists, http.StatusConflict},
		{ErrCodeLookupFailed, http.StatusBadGateway},
		{ErrCodeUpstreamStripe, http.StatusBadGateway},
		{ErrCodeInternalDB, http.StatusInternalServerError},
		{ErrCodeInternalUnexpected, http.StatusInternalServerError},
		{ErrorCode("something_unknown"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(string(tc.code), func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.code.HTTPStatus())
		})
	}
}

func TestAppError_ErrorAndUnwrap(t *testing.T) {
	inner := errors.New("connection refused")
	appErr := NewAppError(ErrCodeInternalDB, "failed to query", inner)

	assert.Equal(t, "internal_database_error: failed to query", appErr.Error())
	assert.Equal(t, inner, errors.Unwrap(appErr))
	assert.True(t, errors.Is(appErr, inner))
}

func TestNewAppErrorWithDetails(t *testing.T) {
	appErr := NewAppErrorWithDetails(ErrCodeValidationMissingField, "bad request", nil, map[string]any{
		"field": "wallet_address",
	})

	require.NotNil(t, appErr.Details)
	assert.Equal(t, "wallet_address", appErr.Details["field"])
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(NewAppError(ErrCodeNotFoundWallet, "nope", nil)))
	assert.True(t, IsNotFound(NewAppError(ErrCodeNotFoundIdentity, "nope", nil)))
	assert.False(t, IsNotFound(NewAppError(ErrCodeLookupFailed, "down", nil)))
	assert.False(t, IsNotFound(errors.New("plain error")))
	assert.False(t, IsNotFound(nil))
}

func TestIsNotFound_WrappedError(t *testing.T) {
	wrapped := NewAppError(ErrCodeInternalUnexpected, "outer",
		NewAppError(ErrCodeNotFoundWallet, "inner", nil))

	// errors.As finds the outermost AppError first.
	assert.False(t, IsNotFound(wrapped))
}

func TestIsLookupFailed(t *testing.T) {
	assert.True(t, IsLookupFailed(NewAppError(ErrCodeLookupFailed, "store down", nil)))
	assert.True(t, IsLookupFailed(NewAppError(ErrCodeInternalDB, "query failed", nil)))
	assert.False(t, IsLookupFailed(NewAppError(ErrCodeNotFoundWallet, "not registered", nil)))
	assert.False(t, IsLookupFailed(errors.New("plain error")))
	assert.False(t, IsLookupFailed(nil))
}
