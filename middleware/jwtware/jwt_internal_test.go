package jwtware

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKeyfuncOptionsRefreshErrorHandlerIsSafe(t *testing.T) {
	opts := keyfuncOptions(nil)
	require.NotNil(t, opts.RefreshErrorHandler)
	require.NotPanics(t, func() {
		opts.RefreshErrorHandler(errors.New("refresh failed"))
	})

	require.Equal(t, time.Hour, opts.RefreshInterval)
	require.Equal(t, 5*time.Minute, opts.RefreshRateLimit)
	require.Equal(t, 10*time.Second, opts.RefreshTimeout)
	require.True(t, opts.RefreshUnknownKID)
}

func TestGetExtractorsParsesLookupString(t *testing.T) {
	extractors := GetExtractors("header:Authorization,query:auth_token,param:token,cookie:jwt")
	require.Len(t, extractors, 4)

	extractors = GetExtractors(" header : Authorization , cookie : jwt ")
	require.Len(t, extractors, 2)

	extractors = GetExtractors("body:token")
	require.Empty(t, extractors)
}

func TestGetDefaultConfigRequiresValidator(t *testing.T) {
	require.Panics(t, func() {
		GetDefaultConfig(Config{
			SigningKey: SigningKey{Key: []byte("secret")},
		})
	})
}

func TestGetDefaultConfigRequiresKeySource(t *testing.T) {
	require.Panics(t, func() {
		GetDefaultConfig(Config{
			TokenValidator: validatorFunc(func(string) (AuthClaims, error) {
				return nil, nil
			}),
		})
	})
}

type validatorFunc func(string) (AuthClaims, error)

func (f validatorFunc) Validate(tokenString string) (AuthClaims, error) {
	return f(tokenString)
}

func TestGetDefaultConfigDefaults(t *testing.T) {
	cfg := GetDefaultConfig(Config{
		SigningKey: SigningKey{Key: []byte("secret")},
		TokenValidator: validatorFunc(func(string) (AuthClaims, error) {
			return nil, nil
		}),
	})

	require.Equal(t, "user", cfg.ContextKey)
	require.Equal(t, defaultTokenLookup, cfg.TokenLookup)
	require.Equal(t, "Bearer", cfg.AuthScheme)
	require.NotNil(t, cfg.SuccessHandler)
	require.NotNil(t, cfg.ErrorHandler)
	require.NotNil(t, cfg.KeyFunc)
}
