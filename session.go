package admission

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

var _ Session = &SessionObject{}

// SessionUser is the user sub-object exposed on a session.
type SessionUser struct {
	ID               string   `json:"id,omitempty"`
	Email            string   `json:"email,omitempty"`
	Name             string   `json:"name,omitempty"`
	Role             UserRole `json:"role,omitempty"`
	TwoFactorEnabled bool     `json:"is_two_factor_enabled"`
	IsOAuth          bool     `json:"is_oauth"`
}

// SessionObject is the externally visible session. It is always passed in and
// returned explicitly, never held as module state.
type SessionObject struct {
	User           *SessionUser `json:"user,omitempty"`
	Audience       []string     `json:"audience,omitempty"`
	Issuer         string       `json:"issuer,omitempty"`
	IssuedAt       *time.Time   `json:"issued_at,omitempty"`
	ExpirationDate *time.Time   `json:"expiration_date,omitempty"`
}

func (s *SessionObject) GetUserID() string {
	if s.User == nil {
		return ""
	}
	return s.User.ID
}

func (s *SessionObject) GetUserUUID() (uuid.UUID, error) {
	return uuid.Parse(s.GetUserID())
}

func (s *SessionObject) GetAudience() []string {
	return s.Audience
}

func (s *SessionObject) GetIssuer() string {
	return s.Issuer
}

func (s *SessionObject) GetIssuedAt() *time.Time {
	return s.IssuedAt
}

// HasRole checks if the session user has a specific role
func (s *SessionObject) HasRole(role string) bool {
	return s.User != nil && string(s.User.Role) == role
}

// IsAtLeast checks if the session user's role is at least the minimum required role
func (s *SessionObject) IsAtLeast(minRole UserRole) bool {
	if s.User == nil {
		return false
	}
	return s.User.Role.IsAtLeast(minRole)
}

func (s SessionObject) String() string {
	issuedAt := "<nil>"
	if s.IssuedAt != nil {
		issuedAt = s.IssuedAt.Format(time.RFC1123)
	}
	return fmt.Sprintf(
		"user=%s aud=%v iss=%s iat=%s",
		s.GetUserID(),
		s.Audience,
		s.Issuer,
		issuedAt,
	)
}

// ProjectSession copies the token claims onto the session's user sub-object
// and returns the session for the boundary to serialize. A session without a
// user sub-object passes through untouched. The email claim only overwrites
// the session email when present; an absent claim never clears it.
func ProjectSession(claims AuthClaims, session *SessionObject) *SessionObject {
	if session == nil || session.User == nil {
		return session
	}

	if email, ok := claims.Email(); ok {
		session.User.Email = email
	}

	session.User.TwoFactorEnabled = claims.IsTwoFactorEnabled()
	session.User.Name = claims.Name()
	session.User.Role = UserRole(claims.Role())
	session.User.ID = claims.Subject()
	session.User.IsOAuth = claims.IsOAuth()

	return session
}

// sessionFromClaims shapes a full session view from validated claims,
// stamping the ambient fields from the registered claims.
func sessionFromClaims(claims AuthClaims) (*SessionObject, error) {
	if claims == nil {
		return nil, ErrUnableToMapClaims
	}

	session := &SessionObject{
		User: &SessionUser{},
	}

	if sc, ok := claims.(*SessionClaims); ok {
		session.Issuer = sc.RegisteredClaims.Issuer
		session.Audience = append([]string(nil), sc.RegisteredClaims.Audience...)
	}

	issuedAt := claims.IssuedAt()
	expiresAt := claims.Expires()
	session.IssuedAt = &issuedAt
	session.ExpirationDate = &expiresAt

	return ProjectSession(claims, session), nil
}
