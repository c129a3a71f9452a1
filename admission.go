package admission

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// ProviderCredentials is the local-credential provider name. Anything else is
// a federated provider.
const ProviderCredentials = "credentials"

// SignInAttempt identifies an authenticating identity and the provider that
// produced it.
type SignInAttempt struct {
	UserID   string
	Provider string
}

// IsCredentials reports whether the attempt came through the local-credential
// provider.
func (a SignInAttempt) IsCredentials() bool {
	return a.Provider == ProviderCredentials
}

// SignInGate decides whether a sign-in attempt is admitted. Federated
// attempts are admitted unconditionally: the provider already verified the
// email at its end. Credential attempts require a verified email and, when
// the user has two-factor enabled, a confirmation record that the gate
// consumes exactly once.
type SignInGate struct {
	repo         RepositoryManager
	logger       Logger
	activitySink ActivitySink
}

// NewSignInGate returns a gate over the given repositories.
func NewSignInGate(repo RepositoryManager) *SignInGate {
	return &SignInGate{
		repo:         repo,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}
}

func (g *SignInGate) WithLogger(logger Logger) *SignInGate {
	g.logger = logger
	return g
}

// WithActivitySink configures an ActivitySink for emitting gate events.
func (g *SignInGate) WithActivitySink(sink ActivitySink) *SignInGate {
	g.activitySink = normalizeActivitySink(sink)
	return g
}

// Admit evaluates the admission policy for the attempt. The boolean is the
// whole decision: false never explains itself beyond a generic denial, so a
// caller cannot distinguish a missing user from an unverified one.
func (g *SignInGate) Admit(ctx context.Context, attempt SignInAttempt) (bool, error) {
	if !attempt.IsCredentials() {
		return true, nil
	}

	userID, err := uuid.Parse(attempt.UserID)
	if err != nil {
		g.logger.Debug("admission denied: unparseable subject", "user_id", attempt.UserID)
		return false, nil
	}

	user, err := g.repo.Users().GetByID(ctx, userID.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			g.deny(ctx, attempt, "user not found")
			return false, nil
		}
		return false, errors.Wrap(err, errors.CategoryInternal, "failed to load user for admission")
	}

	if !user.IsEmailVerified() {
		g.deny(ctx, attempt, "email not verified")
		return false, nil
	}

	if user.TwoFactorEnabled {
		consumed, err := g.repo.TwoFactorConfirmations().Consume(ctx, user.ID)
		if err != nil {
			return false, errors.Wrap(err, errors.CategoryInternal, "failed to consume two-factor confirmation")
		}

		if !consumed {
			g.deny(ctx, attempt, "missing two-factor confirmation")
			return false, nil
		}

		g.emit(ctx, ActivityEventTwoFactorConsume, user.ID.String(), nil)
	}

	return true, nil
}

func (g *SignInGate) deny(ctx context.Context, attempt SignInAttempt, reason string) {
	// The reason stays in logs and audit events; callers only ever see a
	// generic denial.
	g.logger.Debug("admission denied", "user_id", attempt.UserID, "reason", reason)
	g.emit(ctx, ActivityEventLoginFailure, attempt.UserID, map[string]any{
		"provider": attempt.Provider,
		"reason":   reason,
	})
}

func (g *SignInGate) emit(ctx context.Context, eventType ActivityEventType, userID string, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		Actor:      ActorRef{ID: userID, Type: "user"},
		UserID:     userID,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if err := g.activitySink.Record(ctx, event); err != nil {
		g.logger.Warn("activity sink record error", "error", err)
	}
}
