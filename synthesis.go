package admission

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// TokenSynthesizer rebuilds the identity claims of a session token from
// current store state. It runs on initial login and on every refresh, so role
// or verification changes reach already-issued sessions without a re-login.
type TokenSynthesizer struct {
	repo   RepositoryManager
	logger Logger
}

// NewTokenSynthesizer returns a synthesizer over the given repositories.
func NewTokenSynthesizer(repo RepositoryManager) *TokenSynthesizer {
	return &TokenSynthesizer{
		repo:   repo,
		logger: defLogger{},
	}
}

func (s *TokenSynthesizer) WithLogger(logger Logger) *TokenSynthesizer {
	s.logger = logger
	return s
}

// Refresh re-derives the claims from the store. A token without a subject is
// not yet authenticated and passes through unchanged. A subject that no
// longer resolves to a user also passes through: the session degrades
// silently on the next projection instead of failing the refresh.
func (s *TokenSynthesizer) Refresh(ctx context.Context, claims *SessionClaims) (*SessionClaims, error) {
	if claims == nil || claims.Subject() == "" {
		return claims, nil
	}

	subject, err := uuid.Parse(claims.Subject())
	if err != nil {
		s.logger.Debug("token refresh: unparseable subject, passing through", "subject", claims.Subject())
		return claims, nil
	}

	user, err := s.repo.Users().GetByID(ctx, subject.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return claims, nil
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load user for token refresh")
	}

	isOAuth, err := s.repo.LinkedAccounts().ExistsForUser(ctx, user.ID)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to look up linked accounts for token refresh")
	}

	claims.UID = user.ID.String()
	claims.UserName = user.Name
	claims.SetEmail(user.Email)
	claims.UserRole = user.Role
	claims.TwoFactorEnabled = user.TwoFactorEnabled
	claims.OAuth = isOAuth

	return claims, nil
}
