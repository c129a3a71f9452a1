package admission_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/goliatone/go-admission"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const (
	sqliteCreateUsers = `CREATE TABLE users (
    id TEXT NOT NULL PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    email_verified_at TIMESTAMP NULL,
    name TEXT,
    user_role TEXT NOT NULL,
    password_hash TEXT,
    is_two_factor_enabled BOOLEAN NOT NULL DEFAULT 0,
    login_attempts INTEGER NOT NULL DEFAULT 0,
    login_attempt_at TIMESTAMP NULL,
    loggedin_at TIMESTAMP NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`

	sqliteCreateLinkedAccounts = `CREATE TABLE linked_accounts (
    id TEXT NOT NULL PRIMARY KEY,
    user_id TEXT NOT NULL,
    provider TEXT NOT NULL,
    provider_user_id TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE,
    CONSTRAINT uq_linked_accounts_provider_id UNIQUE (provider, provider_user_id)
);`

	sqliteCreateTwoFactorConfirmations = `CREATE TABLE two_factor_confirmations (
    id TEXT NOT NULL PRIMARY KEY,
    user_id TEXT NOT NULL UNIQUE,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
);`
)

func setupRepoManager(t *testing.T) admission.RepositoryManager {
	t.Helper()

	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())

	for _, ddl := range []string{
		"PRAGMA foreign_keys = ON;",
		sqliteCreateUsers,
		sqliteCreateLinkedAccounts,
		sqliteCreateTwoFactorConfirmations,
	} {
		_, err = bunDB.Exec(ddl)
		require.NoError(t, err)
	}

	t.Cleanup(func() {
		_ = bunDB.Close()
		_ = db.Close()
	})

	manager := admission.NewRepositoryManager(bunDB)
	require.NoError(t, manager.Validate())

	return manager
}

func TestUsersRepositoryCreateIfAbsent(t *testing.T) {
	ctx := context.Background()
	manager := setupRepoManager(t)

	first := &admission.User{
		Email:        "user@example.com",
		Name:         "First",
		PasswordHash: "hash-1",
	}

	created, inserted, err := manager.Users().CreateIfAbsent(ctx, first)
	require.NoError(t, err)
	require.True(t, inserted)
	require.NotNil(t, created)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, admission.RoleUser, created.Role)

	// second registration for the same email loses
	second := &admission.User{
		Email:        "user@example.com",
		Name:         "Second",
		PasswordHash: "hash-2",
	}

	dup, inserted, err := manager.Users().CreateIfAbsent(ctx, second)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Nil(t, dup)

	// the stored record is untouched by the losing insert
	stored, err := manager.Users().GetByIdentifier(ctx, "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, "First", stored.Name)
}

func TestUsersRepositoryGetByIdentifier(t *testing.T) {
	ctx := context.Background()
	manager := setupRepoManager(t)

	user, _, err := manager.Users().CreateIfAbsent(ctx, &admission.User{
		Email: "lookup@example.com",
		Name:  "Lookup",
	})
	require.NoError(t, err)

	byEmail, err := manager.Users().GetByIdentifier(ctx, "lookup@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	byID, err := manager.Users().GetByIdentifier(ctx, user.ID.String())
	require.NoError(t, err)
	assert.Equal(t, user.Email, byID.Email)

	_, err = manager.Users().GetByIdentifier(ctx, "missing@example.com")
	require.Error(t, err)
	assert.True(t, repository.IsRecordNotFound(err))
}

func TestUsersRepositoryMarkEmailVerified(t *testing.T) {
	ctx := context.Background()
	manager := setupRepoManager(t)

	user, _, err := manager.Users().CreateIfAbsent(ctx, &admission.User{
		Email: "verify@example.com",
	})
	require.NoError(t, err)
	require.False(t, user.IsEmailVerified())

	verified, err := manager.Users().MarkEmailVerified(ctx, user.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, verified.IsEmailVerified())

	stored, err := manager.Users().GetByID(ctx, user.ID.String())
	require.NoError(t, err)
	assert.True(t, stored.IsEmailVerified())

	_, err = manager.Users().MarkEmailVerified(ctx, uuid.New(), time.Now())
	require.Error(t, err)
	assert.True(t, repository.IsRecordNotFound(err))
}

func TestUsersRepositoryLoginTracking(t *testing.T) {
	ctx := context.Background()
	manager := setupRepoManager(t)

	user, _, err := manager.Users().CreateIfAbsent(ctx, &admission.User{
		Email: "track@example.com",
	})
	require.NoError(t, err)

	require.NoError(t, manager.Users().TrackAttemptedLogin(ctx, user))

	stored, err := manager.Users().GetByID(ctx, user.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 1, stored.LoginAttempts)
	assert.NotNil(t, stored.LoginAttemptAt)

	require.NoError(t, manager.Users().TrackSuccessfulLogin(ctx, stored))

	stored, err = manager.Users().GetByID(ctx, user.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 0, stored.LoginAttempts)
	assert.Nil(t, stored.LoginAttemptAt)
	assert.NotNil(t, stored.LoggedInAt)
}

func TestTwoFactorConfirmationsConsume(t *testing.T) {
	ctx := context.Background()
	manager := setupRepoManager(t)

	user, _, err := manager.Users().CreateIfAbsent(ctx, &admission.User{
		Email: "twofactor@example.com",
	})
	require.NoError(t, err)

	// nothing to consume yet
	consumed, err := manager.TwoFactorConfirmations().Consume(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, consumed)

	_, err = manager.TwoFactorConfirmations().Create(ctx, &admission.TwoFactorConfirmation{
		UserID: user.ID,
	})
	require.NoError(t, err)

	consumed, err = manager.TwoFactorConfirmations().Consume(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, consumed)

	// a confirmation only ever admits once
	consumed, err = manager.TwoFactorConfirmations().Consume(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, consumed)
}

func TestLinkedAccountsRepository(t *testing.T) {
	ctx := context.Background()
	manager := setupRepoManager(t)

	user, _, err := manager.Users().CreateIfAbsent(ctx, &admission.User{
		Email: "linked@example.com",
	})
	require.NoError(t, err)

	exists, err := manager.LinkedAccounts().ExistsForUser(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, exists)

	account := &admission.LinkedAccount{
		UserID:         user.ID,
		Provider:       "google",
		ProviderUserID: "google-123",
	}

	_, err = manager.LinkedAccounts().Link(ctx, account)
	require.NoError(t, err)

	// repeat linkage of the same federated identity is a no-op
	_, err = manager.LinkedAccounts().Link(ctx, &admission.LinkedAccount{
		UserID:         user.ID,
		Provider:       "google",
		ProviderUserID: "google-123",
	})
	require.NoError(t, err)

	exists, err = manager.LinkedAccounts().ExistsForUser(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	found, err := manager.LinkedAccounts().FindByProviderID(ctx, "google", "google-123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.UserID)

	_, err = manager.LinkedAccounts().FindByProviderID(ctx, "google", "unknown")
	require.Error(t, err)
	assert.True(t, repository.IsRecordNotFound(err))
}

func TestRegistrationAndAdmissionEndToEnd(t *testing.T) {
	ctx := context.Background()
	manager := setupRepoManager(t)

	handler := admission.NewRegisterUserHandler(manager)

	var response *admission.RegisterUserResponse
	err := handler.Execute(ctx, admission.RegisterUserMessage{
		Name:     "End To End",
		Email:    "e2e@example.com",
		Password: "long-enough-password",
		OnResponse: func(r *admission.RegisterUserResponse) {
			response = r
		},
	})
	require.NoError(t, err)
	require.NotNil(t, response)
	require.True(t, response.Created)

	user, err := manager.Users().GetByIdentifier(ctx, "e2e@example.com")
	require.NoError(t, err)

	gate := admission.NewSignInGate(manager)
	attempt := admission.SignInAttempt{
		UserID:   user.ID.String(),
		Provider: admission.ProviderCredentials,
	}

	// fresh registrations are unverified, the gate denies them
	admitted, err := gate.Admit(ctx, attempt)
	require.NoError(t, err)
	assert.False(t, admitted)

	_, err = manager.Users().MarkEmailVerified(ctx, user.ID, time.Now())
	require.NoError(t, err)

	admitted, err = gate.Admit(ctx, attempt)
	require.NoError(t, err)
	assert.True(t, admitted)
}
