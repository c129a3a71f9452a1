package federated

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-admission"
	"github.com/goliatone/go-repository-bun"
)

// LinkingStrategy determines how federated profiles are linked to users.
type LinkingStrategy interface {
	ResolveUser(ctx context.Context, lc LinkingContext) (*LinkingResult, error)
}

// LinkingPolicy decides which linking mode/flags to apply for a request.
type LinkingPolicy func(ctx context.Context, lc LinkingContext) (LinkDecision, error)

// LinkDecision controls resolution behavior for a single auth flow.
type LinkDecision struct {
	Mode                 string
	AllowSignup          bool
	AllowLinking         bool
	RequireEmailVerified bool
}

// PolicyLinkingStrategy applies a LinkingPolicy and then performs resolution.
type PolicyLinkingStrategy struct {
	Policy LinkingPolicy
}

// ResolveUser implements LinkingStrategy.
func (s *PolicyLinkingStrategy) ResolveUser(ctx context.Context, lc LinkingContext) (*LinkingResult, error) {
	if s == nil || s.Policy == nil {
		return nil, ErrLinkingNotAllowed
	}

	decision, err := s.Policy(ctx, lc)
	if err != nil {
		return nil, err
	}

	resolver := &DefaultLinkingStrategy{
		AllowSignup:          decision.AllowSignup,
		AllowLinking:         decision.AllowLinking,
		RequireEmailVerified: decision.RequireEmailVerified,
	}

	return resolver.ResolveUser(ctx, lc.withMode(decision.Mode))
}

// LinkingContext provides context for user resolution.
type LinkingContext struct {
	Profile     *Profile
	Action      string
	Mode        string
	LinkUserID  string
	AccountRepo admission.LinkedAccounts
	UserRepo    admission.Users
}

func (lc LinkingContext) withMode(mode string) LinkingContext {
	if mode == "" {
		return lc
	}
	copy := lc
	copy.Mode = mode
	return copy
}

// LinkingResult contains the resolved user and metadata.
type LinkingResult struct {
	User      *admission.User
	IsNewUser bool
	Linked    bool
}

// DefaultLinkingStrategy implements common linking logic.
type DefaultLinkingStrategy struct {
	AllowSignup          bool
	AllowLinking         bool
	RequireEmailVerified bool
	DefaultRole          string

	OnUserCreated   func(ctx context.Context, user *admission.User, profile *Profile) error
	OnAccountLinked func(ctx context.Context, user *admission.User, profile *Profile) error
}

// ResolveUser implements LinkingStrategy.
func (s *DefaultLinkingStrategy) ResolveUser(ctx context.Context, lc LinkingContext) (*LinkingResult, error) {
	if lc.Profile == nil {
		return nil, ErrUserInfoFailed
	}
	if lc.AccountRepo == nil || lc.UserRepo == nil {
		return nil, ErrLinkingNotAllowed
	}

	profile := lc.Profile

	if s.RequireEmailVerified && !profile.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	existing, err := lc.AccountRepo.FindByProviderID(ctx, profile.Provider, profile.ProviderUserID)
	if err == nil && existing != nil {
		user, err := lc.UserRepo.GetByIdentifier(ctx, existing.UserID.String())
		if err != nil {
			return nil, fmt.Errorf("failed to find linked user: %w", err)
		}
		return &LinkingResult{User: user, IsNewUser: false}, nil
	}
	if err != nil && !repository.IsRecordNotFound(err) && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to find linked account: %w", err)
	}

	if lc.Action == ActionLink && lc.LinkUserID != "" {
		if !s.AllowLinking {
			return nil, ErrLinkingNotAllowed
		}

		user, err := lc.UserRepo.GetByIdentifier(ctx, lc.LinkUserID)
		if err != nil {
			return nil, fmt.Errorf("failed to find user to link: %w", err)
		}

		if err := s.accountLinked(ctx, user, profile); err != nil {
			return nil, err
		}

		return &LinkingResult{User: user, IsNewUser: false, Linked: true}, nil
	}

	if lc.Mode == LinkModeExplicitOnly {
		return nil, ErrLinkingNotAllowed
	}

	if profile.Email != "" && lc.Mode != LinkModeRejectUnknown {
		user, err := lc.UserRepo.GetByIdentifier(ctx, profile.Email)
		if err == nil && user != nil {
			if s.AllowLinking {
				if err := s.accountLinked(ctx, user, profile); err != nil {
					return nil, err
				}
				return &LinkingResult{User: user, IsNewUser: false, Linked: true}, nil
			}
			return nil, ErrEmailAlreadyExists
		}
		if err != nil && !repository.IsRecordNotFound(err) {
			return nil, fmt.Errorf("failed to find user by email: %w", err)
		}
	}

	if lc.Mode == LinkModeEmailMatch || lc.Mode == LinkModeRejectUnknown {
		return nil, ErrSignupNotAllowed
	}

	if !s.AllowSignup {
		return nil, ErrSignupNotAllowed
	}

	newUser := s.createUserFromProfile(profile)

	created, err := lc.UserRepo.Create(ctx, newUser)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if s.OnUserCreated != nil {
		if err := s.OnUserCreated(ctx, created, profile); err != nil {
			return nil, err
		}
	}

	return &LinkingResult{User: created, IsNewUser: true}, nil
}

// accountLinked runs the OnAccountLinked hook. The default hook stamps the
// user's email as verified, a provider vouched for the address.
func (s *DefaultLinkingStrategy) accountLinked(ctx context.Context, user *admission.User, profile *Profile) error {
	if s.OnAccountLinked != nil {
		return s.OnAccountLinked(ctx, user, profile)
	}
	return nil
}

func (s *DefaultLinkingStrategy) createUserFromProfile(profile *Profile) *admission.User {
	role := admission.RoleUser
	if s.DefaultRole != "" {
		if parsed, ok := admission.ParseRole(s.DefaultRole); ok {
			role = parsed
		}
	}

	user := &admission.User{
		Email: profile.Email,
		Role:  role,
	}

	if profile.EmailVerified {
		now := time.Now()
		user.EmailVerifiedAt = &now
	}

	if profile.Name != "" {
		user.Name = profile.Name
	} else if profile.Username != "" {
		user.Name = profile.Username
	} else if profile.Email != "" {
		user.Name = strings.Split(profile.Email, "@")[0]
	} else if profile.ProviderUserID != "" {
		user.Name = fmt.Sprintf("%s_%s", profile.Provider, profile.ProviderUserID)
	}

	return user
}

// MarkEmailVerifiedOnLink returns an OnAccountLinked hook that stamps the
// user's email as verified when a federated account gets linked.
func MarkEmailVerifiedOnLink(users admission.Users) func(ctx context.Context, user *admission.User, profile *Profile) error {
	return func(ctx context.Context, user *admission.User, profile *Profile) error {
		if user == nil {
			return admission.ErrIdentityNotFound
		}

		updated, err := users.MarkEmailVerified(ctx, user.ID, time.Now())
		if err != nil {
			return fmt.Errorf("failed to mark email verified: %w", err)
		}

		user.EmailVerifiedAt = updated.EmailVerifiedAt
		return nil
	}
}

// Linking modes (used by LinkingPolicy decisions).
const (
	LinkModeAutoCreate    = "auto_create"
	LinkModeEmailMatch    = "email_match"
	LinkModeExplicitOnly  = "explicit_only"
	LinkModeRejectUnknown = "reject_unknown"
)

// PolicyAutoCreate creates a new user if one does not exist.
func PolicyAutoCreate() LinkingPolicy {
	return func(ctx context.Context, lc LinkingContext) (LinkDecision, error) {
		return LinkDecision{
			Mode:                 LinkModeAutoCreate,
			AllowSignup:          true,
			AllowLinking:         true,
			RequireEmailVerified: true,
		}, nil
	}
}

// PolicyExplicitOnly only links when explicitly requested.
func PolicyExplicitOnly() LinkingPolicy {
	return func(ctx context.Context, lc LinkingContext) (LinkDecision, error) {
		return LinkDecision{
			Mode:                 LinkModeExplicitOnly,
			AllowSignup:          false,
			AllowLinking:         true,
			RequireEmailVerified: true,
		}, nil
	}
}

// PolicyEmailMatch only links when email matches an existing account.
func PolicyEmailMatch() LinkingPolicy {
	return func(ctx context.Context, lc LinkingContext) (LinkDecision, error) {
		return LinkDecision{
			Mode:                 LinkModeEmailMatch,
			AllowSignup:          false,
			AllowLinking:         true,
			RequireEmailVerified: true,
		}, nil
	}
}

// PolicyRejectUnknown rejects accounts that do not already exist.
func PolicyRejectUnknown() LinkingPolicy {
	return func(ctx context.Context, lc LinkingContext) (LinkDecision, error) {
		return LinkDecision{
			Mode:                 LinkModeRejectUnknown,
			AllowSignup:          false,
			AllowLinking:         false,
			RequireEmailVerified: true,
		}, nil
	}
}
