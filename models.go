package admission

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRole is the user's role
type UserRole string

const (
	// RoleUser is the default role for registered accounts
	RoleUser UserRole = "USER"
	// RoleAdmin is the administrative role
	RoleAdmin UserRole = "ADMIN"
)

// User is the identity record. PasswordHash is empty for identities that only
// ever signed in through a federated provider.
type User struct {
	bun.BaseModel    `bun:"table:users,alias:usr"`
	ID               uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email            string     `bun:"email,notnull,unique" json:"email,omitempty"`
	EmailVerifiedAt  *time.Time `bun:"email_verified_at,nullzero" json:"email_verified_at,omitempty"`
	Name             string     `bun:"name" json:"name,omitempty"`
	Role             UserRole   `bun:"user_role,notnull" json:"user_role,omitempty"`
	PasswordHash     string     `bun:"password_hash" json:"-"`
	TwoFactorEnabled bool       `bun:"is_two_factor_enabled" json:"is_two_factor_enabled,omitempty"`
	LoginAttempts    int        `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt   *time.Time `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LoggedInAt       *time.Time `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	CreatedAt        *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt        *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// IsEmailVerified reports whether the verification timestamp is set. Presence
// is what matters downstream, never the actual time.
func (u *User) IsEmailVerified() bool {
	return u != nil && u.EmailVerifiedAt != nil
}

// MarkEmailVerified stamps the user as verified. Re-stamping on repeat
// linkage is harmless.
func (u *User) MarkEmailVerified(at time.Time) *User {
	u.EmailVerifiedAt = &at
	return u
}

// LinkedAccount associates a user with a federated identity provider. Created
// once per provider per user by the linking hook, read-only afterward.
type LinkedAccount struct {
	bun.BaseModel  `bun:"table:linked_accounts,alias:lnk"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID         uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	Provider       string     `bun:"provider,notnull" json:"provider,omitempty"`
	ProviderUserID string     `bun:"provider_user_id,notnull" json:"provider_user_id,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// TwoFactorConfirmation marks that a user completed a second factor for the
// current login attempt. The sign-in gate consumes it exactly once.
type TwoFactorConfirmation struct {
	bun.BaseModel `bun:"table:two_factor_confirmations,alias:tfc"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,unique,type:uuid" json:"user_id,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}
