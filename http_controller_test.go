package admission_test

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-admission"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The session must be readable from the context value ProtectedRoute itself
// stores, not only from the fiber-contrib token shape.
func TestGetRouterSessionBehindProtectedRoute(t *testing.T) {
	userID := uuid.New().String()
	cfg := newMockConfig()

	auther := admission.NewAuthenticator(new(MockIdentityProvider), newFakeRepoManager(), cfg)
	httpAuth, err := admission.NewHTTPAuthenticator(auther, cfg)
	require.NoError(t, err)

	ts := auther.TokenService()
	token, err := ts.SignClaims(ts.NewClaims(userID))
	require.NoError(t, err)

	// run the middleware and capture what it stores on the context
	writeCtx := router.NewMockContext()
	writeCtx.CookiesM[cfg.GetContextKey()] = token
	writeCtx.On("Locals", cfg.GetContextKey(), mock.Anything).Return(nil)

	handler := httpAuth.ProtectedRoute(cfg, func(c router.Context, err error) error {
		return err
	})(func(c router.Context) error { return nil })

	require.NoError(t, handler(writeCtx))
	require.True(t, writeCtx.NextCalled)
	stored := writeCtx.LocalsMock[cfg.GetContextKey()]
	require.NotNil(t, stored)

	readCtx := router.NewMockContext()
	readCtx.LocalsMock[cfg.GetContextKey()] = stored

	session, err := admission.GetRouterSession(readCtx, cfg.GetContextKey())
	require.NoError(t, err)
	assert.Equal(t, userID, session.GetUserID())
}

func TestGetRouterSessionFromStoredClaims(t *testing.T) {
	claims := &admission.SessionClaims{
		UID:      "user-7",
		UserName: "Seven",
		UserRole: admission.RoleAdmin,
	}
	claims.RegisteredClaims.Subject = "user-7"

	ctx := router.NewMockContext()
	ctx.LocalsMock["user"] = claims

	session, err := admission.GetRouterSession(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, "user-7", session.GetUserID())
	assert.True(t, session.HasRole(string(admission.RoleAdmin)))
}

func TestGetRouterSessionFromJWTToken(t *testing.T) {
	claims := &admission.SessionClaims{UID: "user-9"}
	claims.RegisteredClaims.Subject = "user-9"

	ctx := router.NewMockContext()
	ctx.LocalsMock["user"] = &jwt.Token{Claims: claims}

	session, err := admission.GetRouterSession(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, "user-9", session.GetUserID())
}

func TestGetRouterSessionErrors(t *testing.T) {
	t.Run("missing value", func(t *testing.T) {
		ctx := router.NewMockContext()

		_, err := admission.GetRouterSession(ctx, "user")
		assert.ErrorIs(t, err, admission.ErrUnableToFindSession)
	})

	t.Run("unexpected value type", func(t *testing.T) {
		ctx := router.NewMockContext()
		ctx.LocalsMock["user"] = "not-a-session"

		_, err := admission.GetRouterSession(ctx, "user")
		assert.ErrorIs(t, err, admission.ErrUnableToDecodeSession)
	})

	t.Run("token without session claims", func(t *testing.T) {
		ctx := router.NewMockContext()
		ctx.LocalsMock["user"] = &jwt.Token{Claims: jwt.MapClaims{}}

		_, err := admission.GetRouterSession(ctx, "user")
		assert.ErrorIs(t, err, admission.ErrUnableToMapClaims)
	})
}
