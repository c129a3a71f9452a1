package admission_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-admission"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenService() admission.TokenService {
	return admission.NewTokenService(
		[]byte("test-signing-key"),
		24,
		"test-issuer",
		jwt.ClaimStrings{"test-audience"},
		nil,
	)
}

func TestTokenServiceNewClaims(t *testing.T) {
	service := newTestTokenService()

	claims := service.NewClaims("user-1")

	assert.Equal(t, "user-1", claims.Subject())
	assert.Equal(t, "user-1", claims.UID)
	assert.Equal(t, "test-issuer", claims.RegisteredClaims.Issuer)
	assert.Equal(t, jwt.ClaimStrings{"test-audience"}, claims.RegisteredClaims.Audience)
	require.NotNil(t, claims.RegisteredClaims.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), claims.Expires(), time.Minute)
}

func TestTokenServiceSignAndValidate(t *testing.T) {
	service := newTestTokenService()

	claims := service.NewClaims("user-1")
	claims.UserName = "Test User"
	claims.UserRole = admission.RoleAdmin
	claims.SetEmail("user@example.com")
	claims.TwoFactorEnabled = true
	claims.OAuth = true

	token, err := service.SignClaims(claims)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	decoded, err := service.Validate(token)
	require.NoError(t, err)

	assert.Equal(t, "user-1", decoded.Subject())
	assert.Equal(t, "Test User", decoded.Name())
	assert.Equal(t, string(admission.RoleAdmin), decoded.Role())
	assert.True(t, decoded.IsTwoFactorEnabled())
	assert.True(t, decoded.IsOAuth())

	email, ok := decoded.Email()
	require.True(t, ok)
	assert.Equal(t, "user@example.com", email)
}

func TestTokenServiceSignNilClaims(t *testing.T) {
	service := newTestTokenService()

	_, err := service.SignClaims(nil)
	assert.Error(t, err)
}

func TestTokenServiceValidateExpiredToken(t *testing.T) {
	service := newTestTokenService()

	claims := service.NewClaims("user-1")
	claims.RegisteredClaims.IssuedAt = jwt.NewNumericDate(time.Now().Add(-2 * time.Hour))
	claims.RegisteredClaims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	token, err := service.SignClaims(claims)
	require.NoError(t, err)

	_, err = service.Validate(token)
	require.Error(t, err)
	assert.True(t, admission.IsTokenExpiredError(err))
}

func TestTokenServiceValidateWrongKey(t *testing.T) {
	service := newTestTokenService()
	other := admission.NewTokenService(
		[]byte("other-signing-key"),
		24,
		"test-issuer",
		jwt.ClaimStrings{"test-audience"},
		nil,
	)

	token, err := other.SignClaims(other.NewClaims("user-1"))
	require.NoError(t, err)

	_, err = service.Validate(token)
	require.Error(t, err)
	assert.True(t, admission.IsMalformedError(err))
}

func TestTokenServiceValidateIssuerMismatch(t *testing.T) {
	service := newTestTokenService()
	other := admission.NewTokenService(
		[]byte("test-signing-key"),
		24,
		"other-issuer",
		jwt.ClaimStrings{"test-audience"},
		nil,
	)

	token, err := other.SignClaims(other.NewClaims("user-1"))
	require.NoError(t, err)

	_, err = service.Validate(token)
	assert.Error(t, err)
}

func TestTokenServiceValidateGarbage(t *testing.T) {
	service := newTestTokenService()

	_, err := service.Validate("not-a-token")
	require.Error(t, err)
	assert.True(t, admission.IsMalformedError(err))
}
