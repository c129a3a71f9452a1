package admission

import (
	"context"
	"reflect"
	"time"
)

// Auther wires identity verification, the sign in gate, and token synthesis
// into a single authentication surface.
type Auther struct {
	provider        IdentityProvider
	gate            *SignInGate
	synthesizer     *TokenSynthesizer
	signingKey      []byte
	tokenExpiration int
	issuer          string
	audience        []string
	logger          Logger
	tokenService    TokenService
	tokenValidator  TokenValidator
	activitySink    ActivitySink
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(provider IdentityProvider, repo RepositoryManager, opts Config) *Auther {
	tokenService := NewTokenService(
		[]byte(opts.GetSigningKey()),
		opts.GetTokenExpiration(),
		opts.GetIssuer(),
		opts.GetAudience(),
		defLogger{},
	)

	return &Auther{
		provider:        provider,
		gate:            NewSignInGate(repo),
		synthesizer:     NewTokenSynthesizer(repo),
		signingKey:      []byte(opts.GetSigningKey()),
		tokenExpiration: opts.GetTokenExpiration(),
		audience:        opts.GetAudience(),
		issuer:          opts.GetIssuer(),
		logger:          defLogger{},
		tokenService:    tokenService,
		activitySink:    noopActivitySink{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.logger = logger
	s.tokenService = NewTokenService(
		s.signingKey,
		s.tokenExpiration,
		s.issuer,
		s.audience,
		logger,
	)
	s.gate = s.gate.WithLogger(logger)
	s.synthesizer = s.synthesizer.WithLogger(logger)
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	s.gate = s.gate.WithActivitySink(s.activitySink)
	return s
}

// WithTokenValidator sets a custom token validator for externally issued tokens.
func (s *Auther) WithTokenValidator(validator TokenValidator) *Auther {
	s.tokenValidator = validator
	return s
}

// WithFallbackTokenValidators accepts tokens the session token service cannot
// parse, such as tokens minted under a rotated signing key or by a federated
// issuer. Validators run in order after the primary service.
func (s *Auther) WithFallbackTokenValidators(validators ...TokenValidator) *Auther {
	chain := append([]TokenValidator{s.tokenService}, validators...)
	s.tokenValidator = NewMultiTokenValidator(chain...)
	return s
}

// WithSignInGate overrides the default sign in gate.
func (s *Auther) WithSignInGate(gate *SignInGate) *Auther {
	if gate != nil {
		s.gate = gate
	}
	return s
}

// WithTokenSynthesizer overrides the default token synthesizer.
func (s *Auther) WithTokenSynthesizer(synth *TokenSynthesizer) *Auther {
	if synth != nil {
		s.synthesizer = synth
	}
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// Login verifies credentials, runs the admission gate, and mints a session
// token with claims derived from the current user record. Callers get the
// same generic denial whether credentials, verification status, or the
// two factor check failed.
func (s *Auther) Login(ctx context.Context, identifier, password string) (string, error) {
	var err error
	var identity Identity

	if identity, err = s.provider.VerifyIdentity(ctx, identifier, password); err != nil {
		s.logger.Error("Login verify identity error", "error", err)
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"identifier": identifier,
			"error":      err.Error(),
		})
		return "", ErrAuthenticationDenied
	}

	if identity == nil || reflect.ValueOf(identity).IsZero() {
		s.logger.Error("Login identity is nil or zero value")
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"identifier": identifier,
			"error":      ErrIdentityNotFound.Error(),
		})
		return "", ErrAuthenticationDenied
	}

	admitted, err := s.gate.Admit(ctx, SignInAttempt{
		UserID:   identity.ID(),
		Provider: ProviderCredentials,
	})
	if err != nil {
		s.logger.Error("Login admission check error", "error", err)
		return "", err
	}

	if !admitted {
		return "", ErrAuthenticationDenied
	}

	token, err := s.generateJWT(ctx, identity)
	if err != nil {
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, s.actorFromIdentity(identity), identity.ID(), map[string]any{
			"identifier": identifier,
			"error":      err.Error(),
		})
		return "", err
	}

	s.emitAuthEvent(ctx, ActivityEventLoginSuccess, s.actorFromIdentity(identity), identity.ID(), map[string]any{
		"identifier": identifier,
	})

	return token, nil
}

// RefreshToken validates a session token and re issues it with claims
// re derived from the user record, so role or email changes land in the
// next token instead of persisting until expiry.
func (s *Auther) RefreshToken(ctx context.Context, raw string) (string, error) {
	validator := s.tokenValidator
	if validator == nil {
		validator = s.tokenService
	}

	claims, err := validator.Validate(raw)
	if err != nil {
		s.logger.Error("RefreshToken validation failed", "error", err)
		return "", err
	}

	sessionClaims, ok := claims.(*SessionClaims)
	if !ok {
		return "", ErrUnableToMapClaims
	}

	next := s.tokenService.NewClaims(sessionClaims.Subject())
	carry := sessionClaims.CloneWithoutTimestamps()
	carry.RegisteredClaims.Issuer = next.RegisteredClaims.Issuer
	carry.RegisteredClaims.Audience = next.RegisteredClaims.Audience
	carry.RegisteredClaims.IssuedAt = next.RegisteredClaims.IssuedAt
	carry.RegisteredClaims.ExpiresAt = next.RegisteredClaims.ExpiresAt

	refreshed, err := s.synthesizer.Refresh(ctx, carry)
	if err != nil {
		s.logger.Error("RefreshToken synthesis failed", "error", err)
		return "", err
	}

	token, err := s.tokenService.SignClaims(refreshed)
	if err != nil {
		return "", err
	}

	s.emitAuthEvent(ctx, ActivityEventSessionRefreshed, ActorRef{ID: refreshed.UserID(), Type: "user"}, refreshed.UserID(), nil)

	return token, nil
}

// SessionFromToken validates a raw token and projects it into a session view
func (s *Auther) SessionFromToken(raw string) (*SessionObject, error) {
	validator := s.tokenValidator
	if validator == nil {
		validator = s.tokenService
	}

	claims, err := validator.Validate(raw)
	if err != nil {
		s.logger.Error("SessionFromToken validation failed", "error", err)
		return nil, err
	}

	session, err := sessionFromClaims(claims)
	if err != nil {
		s.logger.Error("SessionFromToken failed to create session from claims", "error", err)
		return nil, err
	}

	return session, nil
}

func (s *Auther) IdentityFromSession(ctx context.Context, session Session) (Identity, error) {
	identity, err := s.provider.FindIdentityByIdentifier(ctx, session.GetUserID())
	if err != nil {
		s.logger.Error("IdentityFromSession find identity by identifier", "error", err)
		return nil, err
	}

	return identity, nil
}

func (s *Auther) generateJWT(ctx context.Context, identity Identity) (string, error) {
	claims := s.tokenService.NewClaims(identity.ID())
	claims.UserName = identity.Name()
	claims.SetEmail(identity.Email())
	claims.UserRole = UserRole(identity.Role())

	// let the store decide the final claim values
	claims, err := s.synthesizer.Refresh(ctx, claims)
	if err != nil {
		s.logger.Error("claims synthesis failed", "error", err)
		return "", err
	}

	return s.tokenService.SignClaims(claims)
}

func (s *Auther) emitAuthEvent(ctx context.Context, eventType ActivityEventType, actor ActorRef, userID string, metadata map[string]any) {
	sink := normalizeActivitySink(s.activitySink)
	event := ActivityEvent{
		EventType: eventType,
		Actor:     actor,
		UserID:    userID,
		Metadata:  metadata,
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error", "error", err)
	}
}

func (s *Auther) actorFromIdentity(identity Identity) ActorRef {
	if identity == nil {
		return ActorRef{Type: "unknown"}
	}

	return ActorRef{
		ID:   identity.ID(),
		Type: "user",
	}
}

var _ Authenticator = (*Auther)(nil)
