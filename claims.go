package admission

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthClaims represents the structured claims carried by a session token.
type AuthClaims interface {
	Subject() string
	UserID() string
	Role() string
	Email() (string, bool)
	Name() string
	IsTwoFactorEnabled() bool
	IsOAuth() bool
	HasRole(role string) bool
	IsAtLeast(minRole string) bool
	Expires() time.Time
	IssuedAt() time.Time
}

// SessionClaims is the concrete session token payload. It is the single
// schema shared by token synthesis and session projection; both sides agree
// on it instead of merging shapes at runtime.
type SessionClaims struct {
	jwt.RegisteredClaims
	UID              string   `json:"uid,omitempty"`
	UserName         string   `json:"name,omitempty"`
	UserEmail        *string  `json:"email,omitempty"`
	UserRole         UserRole `json:"role,omitempty"`
	TwoFactorEnabled bool     `json:"is_two_factor_enabled"`
	OAuth            bool     `json:"is_oauth"`
}

// Verify interface compliance
var _ AuthClaims = (*SessionClaims)(nil)

// Subject returns the subject claim
func (c *SessionClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the user ID
func (c *SessionClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject()
}

// Role returns the user's role
func (c *SessionClaims) Role() string {
	return string(c.UserRole)
}

// Email returns the email claim and whether it is present. Absent and empty
// string are distinct states and must not be conflated.
func (c *SessionClaims) Email() (string, bool) {
	if c.UserEmail == nil {
		return "", false
	}
	return *c.UserEmail, true
}

// SetEmail records the email claim as present.
func (c *SessionClaims) SetEmail(email string) {
	c.UserEmail = &email
}

// ClearEmail marks the email claim as absent.
func (c *SessionClaims) ClearEmail() {
	c.UserEmail = nil
}

// Name returns the display name claim
func (c *SessionClaims) Name() string {
	return c.UserName
}

// IsTwoFactorEnabled reports the two-factor flag carried by the token
func (c *SessionClaims) IsTwoFactorEnabled() bool {
	return c.TwoFactorEnabled
}

// IsOAuth reports whether the identity has at least one federated account
func (c *SessionClaims) IsOAuth() bool {
	return c.OAuth
}

// HasRole checks if the user has a specific role
func (c *SessionClaims) HasRole(role string) bool {
	return string(c.UserRole) == role
}

// IsAtLeast checks if the user's role is at least the minimum required role
func (c *SessionClaims) IsAtLeast(minRole string) bool {
	return c.UserRole.IsAtLeast(UserRole(minRole))
}

// Expires returns the expiration time
func (c *SessionClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *SessionClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

// CloneWithoutTimestamps copies the identity-bearing claims, leaving the
// registered time claims for the signer to restamp.
func (c *SessionClaims) CloneWithoutTimestamps() *SessionClaims {
	clone := &SessionClaims{
		UID:              c.UID,
		UserName:         c.UserName,
		UserRole:         c.UserRole,
		TwoFactorEnabled: c.TwoFactorEnabled,
		OAuth:            c.OAuth,
	}
	clone.RegisteredClaims.Subject = c.RegisteredClaims.Subject
	clone.RegisteredClaims.Issuer = c.RegisteredClaims.Issuer
	clone.RegisteredClaims.Audience = c.RegisteredClaims.Audience
	if c.UserEmail != nil {
		email := *c.UserEmail
		clone.UserEmail = &email
	}
	return clone
}
