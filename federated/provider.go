package federated

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"time"
)

// Provider is the surface the federated flow needs from an OAuth2 identity
// provider: build the authorization redirect, trade the callback code for a
// token, and fetch the normalized profile. Token lifecycle beyond the login
// exchange (refresh, revocation) is the provider's business, not ours.
type Provider interface {
	Name() string
	AuthCodeURL(state string, opts ...AuthCodeOption) string
	Exchange(ctx context.Context, code string, opts ...ExchangeOption) (*Token, error)
	UserInfo(ctx context.Context, token *Token) (*Profile, error)
}

// AuthCodeConfig carries the per-request authorization parameters.
type AuthCodeConfig struct {
	Scopes              []string
	CodeChallenge       string
	CodeChallengeMethod string
}

// AuthCodeOption configures the authorization URL.
type AuthCodeOption func(*AuthCodeConfig)

// WithScopes appends scopes to the auth request.
func WithScopes(scopes ...string) AuthCodeOption {
	return func(c *AuthCodeConfig) {
		c.Scopes = append(c.Scopes, scopes...)
	}
}

// WithPKCE sets the PKCE code challenge for the auth request.
func WithPKCE(codeChallenge, method string) AuthCodeOption {
	return func(c *AuthCodeConfig) {
		c.CodeChallenge = codeChallenge
		c.CodeChallengeMethod = method
	}
}

// ApplyAuthCodeOptions folds options over the provider's base scopes.
func ApplyAuthCodeOptions(scopes []string, opts ...AuthCodeOption) AuthCodeConfig {
	cfg := AuthCodeConfig{Scopes: append([]string(nil), scopes...)}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// ExchangeConfig carries the per-request token exchange parameters.
type ExchangeConfig struct {
	CodeVerifier string
}

// ExchangeOption configures the token exchange.
type ExchangeOption func(*ExchangeConfig)

// WithCodeVerifier sets the PKCE code verifier for token exchange.
func WithCodeVerifier(verifier string) ExchangeOption {
	return func(c *ExchangeConfig) {
		c.CodeVerifier = verifier
	}
}

// ApplyExchangeOptions folds exchange options into a config.
func ApplyExchangeOptions(opts ...ExchangeOption) ExchangeConfig {
	cfg := ExchangeConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// Token is the provider credential used to fetch the profile. Only the
// access token outlives the exchange call.
type Token struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
}

// Profile is the provider identity normalized to the fields account
// resolution consumes: the (provider, provider user id) key, the address
// with its verification bit, and the display name fallbacks.
type Profile struct {
	ProviderUserID string
	Provider       string
	Email          string
	EmailVerified  bool
	Name           string
	Username       string
}

// PKCE S256: a random verifier travels inside the encrypted state, its
// SHA-256 digest goes to the provider with the authorization request.

func generateCodeVerifier() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func computeCodeChallenge(verifier string) string {
	h := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(h[:])
}
