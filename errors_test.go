package admission_test

import (
	"errors"
	"testing"

	"github.com/goliatone/go-admission"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
)

func TestIsTokenExpiredError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "Structured token expired error",
			err:      admission.ErrTokenExpired,
			expected: true,
		},
		{
			name:     "Legacy token expired error (string match)",
			err:      errors.New("some wrapper: token is expired"),
			expected: true,
		},
		{
			name:     "Different structured error",
			err:      admission.ErrIdentityNotFound,
			expected: false,
		},
		{
			name:     "Different legacy error",
			err:      errors.New("invalid token"),
			expected: false,
		},
		{
			name:     "Nil error",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := admission.IsTokenExpiredError(tt.err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestIsMalformedError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "Structured malformed error",
			err:      admission.ErrTokenMalformed,
			expected: true,
		},
		{
			name:     "Legacy malformed error (string match)",
			err:      errors.New("token is malformed"),
			expected: true,
		},
		{
			name:     "Legacy missing JWT error (string match)",
			err:      errors.New("missing or malformed JWT"),
			expected: true,
		},
		{
			name:     "Different legacy error",
			err:      errors.New("invalid token"),
			expected: false,
		},
		{
			name:     "Nil error",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := admission.IsMalformedError(tt.err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestStructuredErrorProperties(t *testing.T) {
	t.Run("ErrIdentityNotFound", func(t *testing.T) {
		assert.Equal(t, goerrors.CategoryNotFound, admission.ErrIdentityNotFound.Category)
		assert.Equal(t, "identity not found", admission.ErrIdentityNotFound.Message)
	})

	t.Run("ErrAuthenticationDenied", func(t *testing.T) {
		assert.Equal(t, goerrors.CategoryAuth, admission.ErrAuthenticationDenied.Category)
		assert.Equal(t, admission.TextCodeAuthDenied, admission.ErrAuthenticationDenied.TextCode)
		assert.Equal(t, "authentication denied", admission.ErrAuthenticationDenied.Message)
	})

	t.Run("ErrMismatchedHashAndPassword", func(t *testing.T) {
		assert.Equal(t, goerrors.CategoryAuth, admission.ErrMismatchedHashAndPassword.Category)
		assert.Equal(t, admission.TextCodeInvalidCreds, admission.ErrMismatchedHashAndPassword.TextCode)
		assert.Equal(t, "the credentials provided are invalid", admission.ErrMismatchedHashAndPassword.Message)
	})

	t.Run("ErrDuplicateEmail", func(t *testing.T) {
		assert.Equal(t, goerrors.CategoryConflict, admission.ErrDuplicateEmail.Category)
		assert.Equal(t, admission.TextCodeDuplicateEmail, admission.ErrDuplicateEmail.TextCode)
		assert.Equal(t, admission.MsgEmailInUse, admission.ErrDuplicateEmail.Message)
	})

	t.Run("ErrTooManyLoginAttempts", func(t *testing.T) {
		assert.Equal(t, goerrors.CategoryRateLimit, admission.ErrTooManyLoginAttempts.Category)
		assert.Equal(t, admission.TextCodeTooManyAttempts, admission.ErrTooManyLoginAttempts.TextCode)
	})

	t.Run("ErrUnableToFindSession", func(t *testing.T) {
		assert.Equal(t, goerrors.CategoryAuth, admission.ErrUnableToFindSession.Category)
		assert.Equal(t, admission.TextCodeSessionNotFound, admission.ErrUnableToFindSession.TextCode)
	})

	t.Run("ErrUnableToDecodeSession", func(t *testing.T) {
		assert.Equal(t, goerrors.CategoryAuth, admission.ErrUnableToDecodeSession.Category)
		assert.Equal(t, admission.TextCodeSessionDecodeError, admission.ErrUnableToDecodeSession.TextCode)
	})

	t.Run("ErrUnableToMapClaims", func(t *testing.T) {
		assert.Equal(t, goerrors.CategoryAuth, admission.ErrUnableToMapClaims.Category)
		assert.Equal(t, admission.TextCodeClaimsMappingError, admission.ErrUnableToMapClaims.TextCode)
	})

	t.Run("ErrNoEmptyString", func(t *testing.T) {
		assert.Equal(t, goerrors.CategoryValidation, admission.ErrNoEmptyString.Category)
		assert.Equal(t, admission.TextCodeEmptyPassword, admission.ErrNoEmptyString.TextCode)
	})
}
