package admission_test

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/goliatone/go-admission"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
)

// MockUserTracker implements admission.UserTracker
type MockUserTracker struct {
	mock.Mock
}

func (m *MockUserTracker) GetByIdentifier(ctx context.Context, identifier string) (*admission.User, error) {
	args := m.Called(ctx, identifier)
	user, _ := args.Get(0).(*admission.User)
	return user, args.Error(1)
}

func (m *MockUserTracker) TrackAttemptedLogin(ctx context.Context, user *admission.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserTracker) TrackSuccessfulLogin(ctx context.Context, user *admission.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// MockIdentityProvider implements admission.IdentityProvider
type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) VerifyIdentity(ctx context.Context, identifier, password string) (admission.Identity, error) {
	args := m.Called(ctx, identifier, password)
	identity, _ := args.Get(0).(admission.Identity)
	return identity, args.Error(1)
}

func (m *MockIdentityProvider) FindIdentityByIdentifier(ctx context.Context, identifier string) (admission.Identity, error) {
	args := m.Called(ctx, identifier)
	identity, _ := args.Get(0).(admission.Identity)
	return identity, args.Error(1)
}

// TestIdentity is a plain Identity value for provider mocks
type TestIdentity struct {
	id    string
	email string
	name  string
	role  string
}

func (t TestIdentity) ID() string    { return t.id }
func (t TestIdentity) Email() string { return t.email }
func (t TestIdentity) Name() string  { return t.name }
func (t TestIdentity) Role() string  { return t.role }

// mockConfig implements admission.Config
type mockConfig struct {
	signingKey      string
	tokenExpiration int
	issuer          string
	audience        []string
}

func newMockConfig() *mockConfig {
	return &mockConfig{
		signingKey:      "test-signing-key",
		tokenExpiration: 24,
		issuer:          "test-issuer",
		audience:        []string{"test-audience"},
	}
}

func (m *mockConfig) GetSigningKey() string           { return m.signingKey }
func (m *mockConfig) GetSigningMethod() string        { return "HS256" }
func (m *mockConfig) GetTokenExpiration() int         { return m.tokenExpiration }
func (m *mockConfig) GetExtendedTokenDuration() int   { return m.tokenExpiration * 7 }
func (m *mockConfig) GetIssuer() string               { return m.issuer }
func (m *mockConfig) GetAudience() []string           { return m.audience }
func (m *mockConfig) GetContextKey() string           { return "user" }
func (m *mockConfig) GetTokenLookup() string          { return "cookie:user" }
func (m *mockConfig) GetAuthScheme() string           { return "Bearer" }
func (m *mockConfig) GetRejectedRouteKey() string     { return "rejected_route" }
func (m *mockConfig) GetRejectedRouteDefault() string { return "/" }

// capturingSink records activity events for assertions
type capturingSink struct {
	mu     sync.Mutex
	events []admission.ActivityEvent
}

func (c *capturingSink) Record(ctx context.Context, event admission.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *capturingSink) Events() []admission.ActivityEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]admission.ActivityEvent, len(c.events))
	copy(out, c.events)
	return out
}

func (c *capturingSink) EventsOfType(t admission.ActivityEventType) []admission.ActivityEvent {
	var out []admission.ActivityEvent
	for _, evt := range c.Events() {
		if evt.EventType == t {
			out = append(out, evt)
		}
	}
	return out
}

// fakeUsers is an in-memory Users store. The embedded Repository is nil, so
// only the overridden methods may be called.
type fakeUsers struct {
	repository.Repository[*admission.User]

	mu      sync.Mutex
	byID    map[string]*admission.User
	byEmail map[string]*admission.User
}

func newFakeUsers(seed ...*admission.User) *fakeUsers {
	f := &fakeUsers{
		byID:    map[string]*admission.User{},
		byEmail: map[string]*admission.User{},
	}
	for _, u := range seed {
		f.byID[u.ID.String()] = u
		f.byEmail[u.Email] = u
	}
	return f
}

func (f *fakeUsers) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*admission.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user, ok := f.byID[id]; ok {
		return user, nil
	}
	return nil, repository.NewRecordNotFound()
}

func (f *fakeUsers) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*admission.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user, ok := f.byID[identifier]; ok {
		return user, nil
	}
	if user, ok := f.byEmail[identifier]; ok {
		return user, nil
	}
	return nil, repository.NewRecordNotFound()
}

func (f *fakeUsers) Create(ctx context.Context, record *admission.User, criteria ...repository.InsertCriteria) (*admission.User, error) {
	return f.CreateTx(ctx, nil, record, criteria...)
}

func (f *fakeUsers) CreateTx(ctx context.Context, tx bun.IDB, record *admission.User, criteria ...repository.InsertCriteria) (*admission.User, error) {
	user, _, err := f.CreateIfAbsentTx(ctx, tx, record)
	return user, err
}

func (f *fakeUsers) CreateIfAbsent(ctx context.Context, record *admission.User) (*admission.User, bool, error) {
	return f.CreateIfAbsentTx(ctx, nil, record)
}

func (f *fakeUsers) CreateIfAbsentTx(ctx context.Context, tx bun.IDB, record *admission.User) (*admission.User, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, taken := f.byEmail[record.Email]; taken {
		return nil, false, nil
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.Role == "" {
		record.Role = admission.RoleUser
	}

	f.byID[record.ID.String()] = record
	f.byEmail[record.Email] = record

	return record, true, nil
}

func (f *fakeUsers) MarkEmailVerified(ctx context.Context, id uuid.UUID, at time.Time) (*admission.User, error) {
	return f.MarkEmailVerifiedTx(ctx, nil, id, at)
}

func (f *fakeUsers) MarkEmailVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) (*admission.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.byID[id.String()]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}
	user.EmailVerifiedAt = &at
	return user, nil
}

func (f *fakeUsers) TrackAttemptedLogin(ctx context.Context, user *admission.User) error {
	return f.TrackAttemptedLoginTx(ctx, nil, user)
}

func (f *fakeUsers) TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, user *admission.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if stored, ok := f.byID[user.ID.String()]; ok {
		stored.LoginAttempts = user.LoginAttempts + 1
		now := time.Now()
		stored.LoginAttemptAt = &now
	}
	return nil
}

func (f *fakeUsers) TrackSuccessfulLogin(ctx context.Context, user *admission.User) error {
	return f.TrackSuccessfulLoginTx(ctx, nil, user)
}

func (f *fakeUsers) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, user *admission.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if stored, ok := f.byID[user.ID.String()]; ok {
		now := time.Now()
		stored.LoggedInAt = &now
		stored.LoginAttemptAt = nil
		stored.LoginAttempts = 0
	}
	return nil
}

// fakeLinkedAccounts is an in-memory LinkedAccounts store
type fakeLinkedAccounts struct {
	mu       sync.Mutex
	accounts []*admission.LinkedAccount
}

func (f *fakeLinkedAccounts) FindByUserID(ctx context.Context, userID uuid.UUID) (*admission.LinkedAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, acc := range f.accounts {
		if acc.UserID == userID {
			return acc, nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (f *fakeLinkedAccounts) FindByProviderID(ctx context.Context, provider, providerUserID string) (*admission.LinkedAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, acc := range f.accounts {
		if acc.Provider == provider && acc.ProviderUserID == providerUserID {
			return acc, nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (f *fakeLinkedAccounts) ExistsForUser(ctx context.Context, userID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, acc := range f.accounts {
		if acc.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeLinkedAccounts) Link(ctx context.Context, account *admission.LinkedAccount) (*admission.LinkedAccount, error) {
	return f.LinkTx(ctx, nil, account)
}

func (f *fakeLinkedAccounts) LinkTx(ctx context.Context, tx bun.IDB, account *admission.LinkedAccount) (*admission.LinkedAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, acc := range f.accounts {
		if acc.Provider == account.Provider && acc.ProviderUserID == account.ProviderUserID {
			return account, nil
		}
	}
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	f.accounts = append(f.accounts, account)
	return account, nil
}

// fakeTwoFactor is an in-memory TwoFactorConfirmations store. Consume is
// mutex-guarded so concurrent callers contend the way rows do.
type fakeTwoFactor struct {
	mu            sync.Mutex
	confirmations map[uuid.UUID]*admission.TwoFactorConfirmation
}

func newFakeTwoFactor() *fakeTwoFactor {
	return &fakeTwoFactor{
		confirmations: map[uuid.UUID]*admission.TwoFactorConfirmation{},
	}
}

func (f *fakeTwoFactor) FindByUserID(ctx context.Context, userID uuid.UUID) (*admission.TwoFactorConfirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if record, ok := f.confirmations[userID]; ok {
		return record, nil
	}
	return nil, repository.NewRecordNotFound()
}

func (f *fakeTwoFactor) Create(ctx context.Context, record *admission.TwoFactorConfirmation) (*admission.TwoFactorConfirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	f.confirmations[record.UserID] = record
	return record, nil
}

func (f *fakeTwoFactor) Consume(ctx context.Context, userID uuid.UUID) (bool, error) {
	return f.ConsumeTx(ctx, nil, userID)
}

func (f *fakeTwoFactor) ConsumeTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.confirmations[userID]; !ok {
		return false, nil
	}
	delete(f.confirmations, userID)
	return true, nil
}

// fakeRepoManager bundles the in-memory stores behind RepositoryManager
type fakeRepoManager struct {
	users     *fakeUsers
	linked    *fakeLinkedAccounts
	twoFactor *fakeTwoFactor
}

func newFakeRepoManager(seed ...*admission.User) *fakeRepoManager {
	return &fakeRepoManager{
		users:     newFakeUsers(seed...),
		linked:    &fakeLinkedAccounts{},
		twoFactor: newFakeTwoFactor(),
	}
}

func (f *fakeRepoManager) Validate() error { return nil }
func (f *fakeRepoManager) MustValidate()   {}

func (f *fakeRepoManager) RunInTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx bun.Tx) error) error {
	return fn(ctx, bun.Tx{})
}

func (f *fakeRepoManager) Users() admission.Users { return f.users }

func (f *fakeRepoManager) LinkedAccounts() admission.LinkedAccounts { return f.linked }

func (f *fakeRepoManager) TwoFactorConfirmations() admission.TwoFactorConfirmations {
	return f.twoFactor
}

var _ admission.RepositoryManager = (*fakeRepoManager)(nil)
